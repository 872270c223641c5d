package pg

import (
	"context"
	"database/sql"

	"procur.org/internal/group"
)

const requestColumns = `id, group_id, user_id, message, status, reviewed_at,
	reviewed_by, admin_message, created_at, updated_at`

func scanJoinRequest(row interface{ Scan(...any) error }) (*group.JoinRequest, error) {
	var req group.JoinRequest
	var status string
	var reviewedAt sql.NullTime
	var reviewedBy, adminMessage sql.NullString
	err := row.Scan(&req.ID, &req.GroupID, &req.UserID, &req.Message, &status,
		&reviewedAt, &reviewedBy, &adminMessage, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	req.Status = group.JoinRequestStatus(status)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		req.ReviewedAt = &t
	}
	req.ReviewedBy = reviewedBy.String
	req.AdminMessage = adminMessage.String
	return &req, nil
}

func (s *Store) CreateJoinRequest(ctx context.Context, req *group.JoinRequest) error {
	_, err := s.db.ExecContext(ctx, `
		insert into join_requests(id, group_id, user_id, message, status, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, req.ID, req.GroupID, req.UserID, req.Message, string(req.Status),
		req.CreatedAt, req.UpdatedAt)
	return mapErr(err)
}

func (s *Store) GetJoinRequest(ctx context.Context, id string) (*group.JoinRequest, error) {
	row := s.db.QueryRowContext(ctx, `select `+requestColumns+` from join_requests where id=$1`, id)
	return scanJoinRequest(row)
}

func (s *Store) FindPendingJoinRequest(ctx context.Context, groupID, userID string) (*group.JoinRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+requestColumns+` from join_requests
		where group_id=$1 and user_id=$2 and status='pending'
	`, groupID, userID)
	return scanJoinRequest(row)
}

func (s *Store) ListJoinRequests(ctx context.Context, groupID string, status group.JoinRequestStatus) ([]group.JoinRequest, error) {
	query := `select ` + requestColumns + ` from join_requests where group_id=$1`
	args := []any{groupID}
	if status != "" {
		query += ` and status=$2`
		args = append(args, string(status))
	}
	query += ` order by created_at asc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []group.JoinRequest
	for rows.Next() {
		req, err := scanJoinRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (s *Store) UpdateJoinRequest(ctx context.Context, req *group.JoinRequest) error {
	var reviewedAt any
	if req.ReviewedAt != nil {
		reviewedAt = req.ReviewedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		update join_requests set status=$2, reviewed_at=$3, reviewed_by=nullif($4,''),
			admin_message=nullif($5,''), updated_at=$6
		where id=$1
	`, req.ID, string(req.Status), reviewedAt, req.ReviewedBy, req.AdminMessage,
		req.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}
