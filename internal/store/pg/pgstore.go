// Package pg is the PostgreSQL store behind users, groups, memberships,
// join requests, invitations and identity-provider accounts.
package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"procur.org/internal/auth"
	"procur.org/internal/group"
	"procur.org/internal/idp"
	"procur.org/internal/invite"
)

type Store struct {
	db *sql.DB
}

var (
	_ auth.UserStore       = (*Store)(nil)
	_ auth.MembershipStore = (*Store)(nil)
	_ auth.GroupDirectory  = (*Store)(nil)
	_ group.Store          = (*Store)(nil)
	_ invite.Store         = (*Store)(nil)
	_ idp.AccountStore     = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection (used by tests with sqlmock).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// requireRow turns a zero-row update into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// mapErr translates driver errors into the shared sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return auth.ErrConflict
	}
	return err
}
