package pg

import (
	"context"
	"database/sql"
	"time"

	"procur.org/internal/idp"
)

func scanAccount(row interface{ Scan(...any) error }) (*idp.Account, error) {
	var acc idp.Account
	var validAfter sql.NullTime
	err := row.Scan(&acc.SubjectID, &acc.Email, &acc.PasswordHash, &acc.Disabled,
		&validAfter, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if validAfter.Valid {
		acc.TokensValidAfter = validAfter.Time
	}
	return &acc, nil
}

const accountColumns = `subject_id, email, password_hash, disabled,
	tokens_valid_after, created_at, updated_at`

// FindAccount implements idp.AccountStore.
func (s *Store) FindAccount(ctx context.Context, subjectID string) (*idp.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from idp_accounts where subject_id=$1`, subjectID)
	return scanAccount(row)
}

// FindAccountByEmail implements idp.AccountStore.
func (s *Store) FindAccountByEmail(ctx context.Context, email string) (*idp.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from idp_accounts where email=$1`, email)
	return scanAccount(row)
}

// CreateAccount implements idp.AccountStore.
func (s *Store) CreateAccount(ctx context.Context, acc *idp.Account) error {
	_, err := s.db.ExecContext(ctx, `
		insert into idp_accounts(subject_id, email, password_hash, disabled, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6)
	`, acc.SubjectID, acc.Email, acc.PasswordHash, acc.Disabled, acc.CreatedAt, acc.UpdatedAt)
	return mapErr(err)
}

// SetTokensValidAfter implements idp.AccountStore.
func (s *Store) SetTokensValidAfter(ctx context.Context, subjectID string, t time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update idp_accounts set tokens_valid_after=$2, updated_at=now() where subject_id=$1
	`, subjectID, t)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// SetAccountDisabled implements idp.AccountStore.
func (s *Store) SetAccountDisabled(ctx context.Context, subjectID string, disabled bool) error {
	res, err := s.db.ExecContext(ctx, `
		update idp_accounts set disabled=$2, updated_at=now() where subject_id=$1
	`, subjectID, disabled)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}
