package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"procur.org/internal/auth"
	"procur.org/internal/group"
)

const groupColumns = `id, name, description, industry, privacy, max_members,
	min_order_value, commission_rate, logo_url, banner_url, tags, admin_id,
	member_count, is_active, created_at, updated_at`

func scanGroup(row interface{ Scan(...any) error }) (*group.Group, error) {
	var g group.Group
	var privacy string
	var tags []byte
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Industry, &privacy,
		&g.MaxMembers, &g.MinOrderValue, &g.CommissionRate, &g.LogoURL,
		&g.BannerURL, &tags, &g.AdminID, &g.MemberCount, &g.Active,
		&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	g.Privacy = auth.Privacy(privacy)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &g.Tags); err != nil {
			return nil, fmt.Errorf("pg: decode tags: %w", err)
		}
	}
	return &g, nil
}

func encodeTags(tags []string) ([]byte, error) {
	if len(tags) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(tags)
}

func (s *Store) CreateGroup(ctx context.Context, g *group.Group) error {
	tags, err := encodeTags(g.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into groups(id, name, description, industry, privacy, max_members,
			min_order_value, commission_rate, logo_url, banner_url, tags, admin_id,
			member_count, is_active, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, g.ID, g.Name, g.Description, g.Industry, string(g.Privacy), g.MaxMembers,
		g.MinOrderValue, g.CommissionRate, g.LogoURL, g.BannerURL, tags, g.AdminID,
		g.MemberCount, g.Active, g.CreatedAt, g.UpdatedAt)
	return mapErr(err)
}

func (s *Store) GetGroup(ctx context.Context, id string) (*group.Group, error) {
	row := s.db.QueryRowContext(ctx, `select `+groupColumns+` from groups where id=$1`, id)
	return scanGroup(row)
}

func (s *Store) ListGroups(ctx context.Context, filter group.ListFilter) ([]group.Group, int, error) {
	where := []string{"is_active = true"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.PublicOnly {
		where = append(where, fmt.Sprintf("privacy = %s", arg(string(auth.PrivacyPublic))))
	}
	if filter.Industry != "" {
		where = append(where, fmt.Sprintf("industry = %s", arg(filter.Industry)))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, fmt.Sprintf("(name ilike %s or description ilike %s)", p, p))
	}
	cond := strings.Join(where, " and ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from groups where `+cond, args...).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}

	order := "created_at desc"
	switch filter.Sort {
	case "name":
		order = "name asc"
	case "member_count":
		order = "member_count desc"
	}
	query := fmt.Sprintf(`select %s from groups where %s order by %s limit %s offset %s`,
		groupColumns, cond, order,
		arg(filter.PageSize), arg((filter.Page-1)*filter.PageSize))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	var out []group.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *g)
	}
	return out, total, rows.Err()
}

func (s *Store) UpdateGroup(ctx context.Context, g *group.Group) error {
	tags, err := encodeTags(g.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update groups set name=$2, description=$3, industry=$4, privacy=$5,
			max_members=$6, min_order_value=$7, commission_rate=$8, logo_url=$9,
			banner_url=$10, tags=$11, updated_at=$12
		where id=$1
	`, g.ID, g.Name, g.Description, g.Industry, string(g.Privacy), g.MaxMembers,
		g.MinOrderValue, g.CommissionRate, g.LogoURL, g.BannerURL, tags, g.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s *Store) SetGroupActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update groups set is_active=$2, updated_at=now() where id=$1
	`, id, active)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s *Store) AdjustMemberCount(ctx context.Context, groupID string, delta int) error {
	res, err := s.db.ExecContext(ctx, `
		update groups set member_count = greatest(member_count + $2, 0), updated_at=now()
		where id=$1
	`, groupID, delta)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// PrivacyOf implements auth.GroupDirectory.
func (s *Store) PrivacyOf(ctx context.Context, groupID string) (auth.Privacy, error) {
	var privacy string
	err := s.db.QueryRowContext(ctx, `select privacy from groups where id=$1`, groupID).Scan(&privacy)
	if err != nil {
		return "", mapErr(err)
	}
	return auth.Privacy(privacy), nil
}

// GroupActive implements auth.GroupDirectory.
func (s *Store) GroupActive(ctx context.Context, groupID string) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx, `select is_active from groups where id=$1`, groupID).Scan(&active)
	if err != nil {
		return false, mapErr(err)
	}
	return active, nil
}
