package pg

import (
	"context"

	"procur.org/internal/auth"
	"procur.org/internal/group"
)

func (s *Store) AddMember(ctx context.Context, m auth.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into group_members(group_id, user_id, role, joined_at)
		values ($1,$2,$3,$4)
	`, m.GroupID, m.UserID, string(m.Role), m.JoinedAt)
	return mapErr(err)
}

func (s *Store) RemoveMember(ctx context.Context, groupID, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from group_members where group_id=$1 and user_id=$2
	`, groupID, userID)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// FindMember implements auth.MembershipStore.
func (s *Store) FindMember(ctx context.Context, groupID, userID string) (*auth.Membership, error) {
	var m auth.Membership
	var role string
	err := s.db.QueryRowContext(ctx, `
		select group_id, user_id, role, joined_at
		from group_members where group_id=$1 and user_id=$2
	`, groupID, userID).Scan(&m.GroupID, &m.UserID, &role, &m.JoinedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	m.Role = auth.Role(role)
	return &m, nil
}

// ListUserMemberships implements auth.MembershipStore.
func (s *Store) ListUserMemberships(ctx context.Context, userID string) ([]auth.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select group_id, user_id, role, joined_at
		from group_members where user_id=$1
	`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []auth.Membership
	for rows.Next() {
		var m auth.Membership
		var role string
		if err := rows.Scan(&m.GroupID, &m.UserID, &role, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.Role = auth.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ListMembers(ctx context.Context, groupID string) ([]group.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		select m.user_id, u.display_name, u.email, u.avatar_url, m.role, m.joined_at
		from group_members m
		join users u on u.id = m.user_id
		where m.group_id=$1
		order by m.joined_at asc
	`, groupID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []group.Member
	for rows.Next() {
		var m group.Member
		var role string
		if err := rows.Scan(&m.UserID, &m.DisplayName, &m.Email, &m.AvatarURL, &role, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.Role = auth.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CountAdmins(ctx context.Context, groupID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from group_members where group_id=$1 and role='admin'
	`, groupID).Scan(&n)
	if err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func (s *Store) ListUserGroups(ctx context.Context, userID string) ([]group.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+groupColumns+`
		from groups g
		join group_members m on m.group_id = g.id
		where m.user_id=$1
		order by m.joined_at asc
	`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []group.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}
