package passes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository persists pass requests in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const requestColumns = `
	r.enrollment_id, r.pass_type, r.destination, r.travel_date, r.return_date,
	r.reason, COALESCE(r.guardian_name, ''), COALESCE(r.address, ''),
	r.status, r.submitted_at, r.decided_at, COALESCE(r.decided_by, ''),
	COALESCE(r.remark, ''), COALESCE(s.name, '')`

func scanRequest(row interface{ Scan(...any) error }) (Request, error) {
	var req Request
	err := row.Scan(
		&req.EnrollmentID, &req.Type, &req.Destination, &req.TravelDate, &req.ReturnDate,
		&req.Reason, &req.GuardianName, &req.Address,
		&req.Status, &req.SubmittedAt, &req.DecidedAt, &req.DecidedBy,
		&req.Remark, &req.StudentName,
	)
	return req, err
}

// Replace creates the student's request or supersedes the existing one.
// The row comes back Pending with a fresh server-assigned submittedAt and
// the previous decision cleared.
func (r *Repository) Replace(ctx context.Context, sub Submission) (Request, error) {
	row := r.db.QueryRowContext(ctx, `
		WITH upserted AS (
			INSERT INTO pass_requests
				(enrollment_id, pass_type, destination, travel_date, return_date,
				 reason, guardian_name, address, status, submitted_at,
				 decided_at, decided_by, remark)
			VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),NULLIF($8,''),'Pending',NOW(),NULL,NULL,NULL)
			ON CONFLICT (enrollment_id) DO UPDATE SET
				pass_type = EXCLUDED.pass_type,
				destination = EXCLUDED.destination,
				travel_date = EXCLUDED.travel_date,
				return_date = EXCLUDED.return_date,
				reason = EXCLUDED.reason,
				guardian_name = EXCLUDED.guardian_name,
				address = EXCLUDED.address,
				status = 'Pending',
				submitted_at = NOW(),
				decided_at = NULL,
				decided_by = NULL,
				remark = NULL
			RETURNING *
		)
		SELECT `+requestColumns+`
		FROM upserted r LEFT JOIN students s ON s.enrollment_id = r.enrollment_id
	`, sub.EnrollmentID, sub.Type, sub.Destination, sub.TravelDate, sub.ReturnDate,
		sub.Reason, sub.GuardianName, sub.Address)
	return scanRequest(row)
}

// TryDecide applies a decision as a conditional update evaluated by the
// store, never read-then-write: the row is touched only while Pending, or
// when overwrite permits flipping a different terminal outcome. Re-applying
// the stored outcome matches zero rows, which the service treats as the
// idempotent case.
func (r *Repository) TryDecide(ctx context.Context, enrollmentID string, outcome Status, decidedBy, remark string, overwrite bool) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pass_requests
		SET status = $2, decided_at = NOW(), decided_by = $3, remark = NULLIF($4, '')
		WHERE enrollment_id = $1
		  AND status <> $2
		  AND (status = 'Pending' OR $5)
	`, enrollmentID, outcome, decidedBy, remark, overwrite)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Get returns the current request for an enrollment id.
func (r *Repository) Get(ctx context.Context, enrollmentID string) (Request, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM pass_requests r LEFT JOIN students s ON s.enrollment_id = r.enrollment_id
		WHERE r.enrollment_id = $1
	`, enrollmentID)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	return req, err
}

// List returns requests newest-first with optional status/type/search filters.
func (r *Repository) List(ctx context.Context, f Filter) ([]Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM pass_requests r LEFT JOIN students s ON s.enrollment_id = r.enrollment_id`
	args := []any{}
	clauses := []string{}
	if f.Status != "" {
		args = append(args, f.Status)
		clauses = append(clauses, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		clauses = append(clauses, fmt.Sprintf("r.pass_type = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		clauses = append(clauses, fmt.Sprintf("(r.enrollment_id ILIKE $%d OR s.name ILIKE $%d)", len(args), len(args)))
	}
	for i, cl := range clauses {
		if i == 0 {
			query += " WHERE " + cl
		} else {
			query += " AND " + cl
		}
	}
	query += " ORDER BY r.submitted_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

// ScanEligible reports whether the student holds an approved request whose
// travel window contains today (server clock). A local pass with no return
// date is valid for the travel day only.
func (r *Repository) ScanEligible(ctx context.Context, enrollmentID string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pass_requests
			WHERE enrollment_id = $1
			  AND status = 'Approved'
			  AND travel_date <= CURRENT_DATE
			  AND COALESCE(return_date, travel_date) >= CURRENT_DATE
		)
	`, enrollmentID)
	var ok bool
	return ok, row.Scan(&ok)
}
