package pg

import (
	"context"

	"procur.org/internal/auth"
)

const userColumns = `id, email, display_name, company_name, industry, phone,
	avatar_url, bio, is_active, is_admin, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.CompanyName, &u.Industry,
		&u.Phone, &u.AvatarURL, &u.Bio, &u.Active, &u.Admin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

// Find implements auth.UserStore.
func (s *Store) Find(ctx context.Context, userID string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, userID)
	return scanUser(row)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, display_name, company_name, industry, phone,
			avatar_url, bio, is_active, is_admin, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, u.ID, u.Email, u.DisplayName, u.CompanyName, u.Industry, u.Phone,
		u.AvatarURL, u.Bio, u.Active, u.Admin, u.CreatedAt, u.UpdatedAt)
	return mapErr(err)
}

func (s *Store) UpdateUser(ctx context.Context, u *auth.User) error {
	res, err := s.db.ExecContext(ctx, `
		update users set display_name=$2, company_name=$3, industry=$4, phone=$5,
			avatar_url=$6, bio=$7, updated_at=$8
		where id=$1
	`, u.ID, u.DisplayName, u.CompanyName, u.Industry, u.Phone,
		u.AvatarURL, u.Bio, u.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s *Store) SetUserActive(ctx context.Context, userID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update users set is_active=$2, updated_at=now() where id=$1
	`, userID, active)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}
