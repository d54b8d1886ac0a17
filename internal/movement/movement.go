// Package movement is the gate ledger. Each student has one current
// movement record cycling Absent -> OUT -> IN -> OUT; every accepted
// transition also emits an audit event for the append-only crossing log.
package movement

import (
	"errors"
	"time"
)

// Status is a student's current movement state. A student with no record
// yet has never crossed the gate.
type Status string

const (
	StatusOut Status = "OUT"
	StatusIn  Status = "IN"
)

// Transition names for the audit log.
const (
	TransitionOut        = "OUT"
	TransitionIn         = "IN"
	TransitionCorrectOut = "CORRECT_OUT"
)

var (
	// ErrNotAuthorized rejects a scan with no approved pass behind it.
	ErrNotAuthorized = errors.New("no approved pass for this student")
	// ErrAlreadyOut rejects a second exit scan while the student is OUT.
	ErrAlreadyOut = errors.New("student is already out")
	// ErrNotCurrentlyOut rejects mark-in for a student who is not OUT.
	ErrNotCurrentlyOut = errors.New("student is not currently out")
	// ErrNotCurrentlyIn rejects a correction for a student who is not IN.
	ErrNotCurrentlyIn = errors.New("student is not currently in")
	// ErrNotFound is returned when no movement record exists.
	ErrNotFound = errors.New("no movement record")
)

// Record is the current movement state of one student. OutAt survives the
// IN transition for audit; a correction resets it and clears InAt.
type Record struct {
	EnrollmentID string     `json:"enrollment_id"`
	Status       Status     `json:"status"`
	OutAt        *time.Time `json:"out_at,omitempty"`
	InAt         *time.Time `json:"in_at,omitempty"`
	RecordedBy   string     `json:"recorded_by"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AuditEvent is one accepted gate transition, queued for the crossing log.
type AuditEvent struct {
	ID           string    `json:"id"`
	EnrollmentID string    `json:"enrollment_id"`
	Transition   string    `json:"transition"`
	RecordedBy   string    `json:"recorded_by"`
	Correction   bool      `json:"correction"`
	OccurredAt   time.Time `json:"occurred_at"`
}
