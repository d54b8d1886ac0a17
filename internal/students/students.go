// Package students is the warden-maintained profile store.
package students

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned for an unknown enrollment id.
var ErrNotFound = errors.New("student not found")

// Profile is one student's record, keyed by enrollment id.
type Profile struct {
	EnrollmentID string    `json:"enrollment_id"`
	Name         string    `json:"name"`
	Room         string    `json:"room,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Course       string    `json:"course,omitempty"`
	GuardianName string    `json:"guardian_name,omitempty"`
	Address      string    `json:"address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Repository persists profiles in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert creates or updates a profile. Warden edits replace all fields.
func (r *Repository) Upsert(ctx context.Context, p Profile) (Profile, error) {
	if p.EnrollmentID == "" {
		return Profile{}, errors.New("enrollment id required")
	}
	if p.Name == "" {
		return Profile{}, errors.New("name required")
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (enrollment_id, name, room, phone, course, guardian_name, address)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), NULLIF($7,''))
		ON CONFLICT (enrollment_id) DO UPDATE SET
			name = EXCLUDED.name,
			room = EXCLUDED.room,
			phone = EXCLUDED.phone,
			course = EXCLUDED.course,
			guardian_name = EXCLUDED.guardian_name,
			address = EXCLUDED.address,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`, p.EnrollmentID, p.Name, p.Room, p.Phone, p.Course, p.GuardianName, p.Address)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Get returns one profile.
func (r *Repository) Get(ctx context.Context, enrollmentID string) (Profile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT enrollment_id, name, COALESCE(room,''), COALESCE(phone,''), COALESCE(course,''),
		       COALESCE(guardian_name,''), COALESCE(address,''), created_at, updated_at
		FROM students WHERE enrollment_id = $1
	`, enrollmentID)
	var p Profile
	err := row.Scan(&p.EnrollmentID, &p.Name, &p.Room, &p.Phone, &p.Course,
		&p.GuardianName, &p.Address, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}

// List returns all profiles ordered by enrollment id.
func (r *Repository) List(ctx context.Context) ([]Profile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT enrollment_id, name, COALESCE(room,''), COALESCE(phone,''), COALESCE(course,''),
		       COALESCE(guardian_name,''), COALESCE(address,''), created_at, updated_at
		FROM students ORDER BY enrollment_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.EnrollmentID, &p.Name, &p.Room, &p.Phone, &p.Course,
			&p.GuardianName, &p.Address, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
