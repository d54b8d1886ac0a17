package movement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository persists movement state in Postgres. Every transition is a
// single conditional statement so two guards racing on the same student
// cannot both win; the loser sees zero rows affected.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// TransitionOut moves Absent/IN -> OUT. Returns false when the student is
// already OUT. Timestamps are assigned by the store at commit time.
func (r *Repository) TransitionOut(ctx context.Context, enrollmentID, guardID string) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO movement_state (enrollment_id, status, out_at, in_at, recorded_by, updated_at)
		VALUES ($1, 'OUT', NOW(), NULL, $2, NOW())
		ON CONFLICT (enrollment_id) DO UPDATE SET
			status = 'OUT', out_at = NOW(), in_at = NULL,
			recorded_by = $2, updated_at = NOW()
		WHERE movement_state.status = 'IN'
		RETURNING enrollment_id, status, out_at, in_at, recorded_by, updated_at
	`, enrollmentID, guardID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	return rec, err == nil, err
}

// TransitionIn moves OUT -> IN, keeping out_at. Returns false when the
// student is not OUT.
func (r *Repository) TransitionIn(ctx context.Context, enrollmentID, guardID string) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE movement_state
		SET status = 'IN', in_at = NOW(), recorded_by = $2, updated_at = NOW()
		WHERE enrollment_id = $1 AND status = 'OUT'
		RETURNING enrollment_id, status, out_at, in_at, recorded_by, updated_at
	`, enrollmentID, guardID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	return rec, err == nil, err
}

// TransitionCorrectOut moves IN -> OUT with a fresh out_at and a cleared
// in_at. Returns false when the student is not IN.
func (r *Repository) TransitionCorrectOut(ctx context.Context, enrollmentID, guardID string) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE movement_state
		SET status = 'OUT', out_at = NOW(), in_at = NULL, recorded_by = $2, updated_at = NOW()
		WHERE enrollment_id = $1 AND status = 'IN'
		RETURNING enrollment_id, status, out_at, in_at, recorded_by, updated_at
	`, enrollmentID, guardID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	return rec, err == nil, err
}

// Current returns the movement record for one student.
func (r *Repository) Current(ctx context.Context, enrollmentID string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT enrollment_id, status, out_at, in_at, recorded_by, updated_at
		FROM movement_state WHERE enrollment_id = $1
	`, enrollmentID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// List returns movement records newest-first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status Status) ([]Record, error) {
	query := `
		SELECT enrollment_id, status, out_at, in_at, recorded_by, updated_at
		FROM movement_state`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// AppendAudit writes one crossing to the append-only log.
func (r *Repository) AppendAudit(ctx context.Context, evt AuditEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO movement_audit (id, enrollment_id, transition, recorded_by, correction, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, evt.EnrollmentID, evt.Transition, evt.RecordedBy, evt.Correction, evt.OccurredAt)
	return err
}

// ListAudit returns the crossing log newest-first.
func (r *Repository) ListAudit(ctx context.Context, enrollmentID string, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		SELECT id, enrollment_id, transition, recorded_by, correction, occurred_at
		FROM movement_audit`
	args := []any{}
	if enrollmentID != "" {
		query += ` WHERE enrollment_id = $1`
		args = append(args, enrollmentID)
	}
	query += ` ORDER BY occurred_at DESC LIMIT $` + itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AuditEvent
	for rows.Next() {
		var evt AuditEvent
		if err := rows.Scan(&evt.ID, &evt.EnrollmentID, &evt.Transition, &evt.RecordedBy, &evt.Correction, &evt.OccurredAt); err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	err := row.Scan(&rec.EnrollmentID, &rec.Status, &rec.OutAt, &rec.InAt, &rec.RecordedBy, &rec.UpdatedAt)
	return rec, err
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }
