package pg

import (
	"context"

	"procur.org/internal/invite"
)

const invitationColumns = `id, group_id, token, created_by, expires_at,
	max_uses, current_uses, is_active, created_at, updated_at`

func scanInvitation(row interface{ Scan(...any) error }) (*invite.Invitation, error) {
	var inv invite.Invitation
	err := row.Scan(&inv.ID, &inv.GroupID, &inv.Token, &inv.CreatedBy,
		&inv.ExpiresAt, &inv.MaxUses, &inv.CurrentUses, &inv.Active,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &inv, nil
}

func (s *Store) CreateInvitation(ctx context.Context, inv *invite.Invitation) error {
	_, err := s.db.ExecContext(ctx, `
		insert into invitations(id, group_id, token, created_by, expires_at,
			max_uses, current_uses, is_active, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, inv.ID, inv.GroupID, inv.Token, inv.CreatedBy, inv.ExpiresAt,
		inv.MaxUses, inv.CurrentUses, inv.Active, inv.CreatedAt, inv.UpdatedAt)
	return mapErr(err)
}

func (s *Store) GetInvitation(ctx context.Context, id string) (*invite.Invitation, error) {
	row := s.db.QueryRowContext(ctx, `select `+invitationColumns+` from invitations where id=$1`, id)
	return scanInvitation(row)
}

func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*invite.Invitation, error) {
	row := s.db.QueryRowContext(ctx, `select `+invitationColumns+` from invitations where token=$1`, token)
	return scanInvitation(row)
}

func (s *Store) ListGroupInvitations(ctx context.Context, groupID string) ([]invite.Invitation, error) {
	return s.listInvitations(ctx, `group_id=$1`, groupID)
}

func (s *Store) ListInvitationsByCreator(ctx context.Context, userID string) ([]invite.Invitation, error) {
	return s.listInvitations(ctx, `created_by=$1`, userID)
}

func (s *Store) listInvitations(ctx context.Context, cond string, arg any) ([]invite.Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+invitationColumns+` from invitations where `+cond+` order by created_at desc`, arg)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []invite.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *Store) UpdateInvitation(ctx context.Context, inv *invite.Invitation) error {
	res, err := s.db.ExecContext(ctx, `
		update invitations set token=$2, current_uses=$3, is_active=$4, updated_at=$5
		where id=$1
	`, inv.ID, inv.Token, inv.CurrentUses, inv.Active, inv.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}
