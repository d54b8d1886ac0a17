// Package passes holds the pass-request store: one request per student,
// replaced on resubmission, decided once by the warden.
package passes

import (
	"errors"
	"fmt"
	"time"
)

// Type distinguishes a same-day local pass from a multi-day home pass.
type Type string

const (
	TypeLocal Type = "local"
	TypeHome  Type = "home"
)

// Status is the request lifecycle state.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

var (
	// ErrNotFound is returned when no request exists for an enrollment id.
	ErrNotFound = errors.New("pass request not found")
	// ErrDecisionConflict is returned under the strict decision policy when
	// a warden re-decides a terminal request with a different outcome.
	ErrDecisionConflict = errors.New("request already decided with a different outcome")
)

// ValidationError reports a missing or malformed submission field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// Request is a student's pass request. Exactly one row exists per
// enrollment id; a new submission supersedes the previous one.
type Request struct {
	EnrollmentID string     `json:"enrollment_id"`
	Type         Type       `json:"type"`
	Destination  string     `json:"destination"`
	TravelDate   time.Time  `json:"travel_date"`
	ReturnDate   *time.Time `json:"return_date,omitempty"`
	Reason       string     `json:"reason"`
	GuardianName string     `json:"guardian_name,omitempty"`
	Address      string     `json:"address,omitempty"`
	Status       Status     `json:"status"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	DecidedBy    string     `json:"decided_by,omitempty"`
	Remark       string     `json:"remark,omitempty"`

	// StudentName is joined in from the profile store for warden listings.
	StudentName string `json:"student_name,omitempty"`
}

// Submission carries the student-supplied fields of a new request.
// Use NewLocalSubmission or NewHomeSubmission so the per-type required
// fields are enforced by construction.
type Submission struct {
	EnrollmentID string
	Type         Type
	Destination  string
	TravelDate   time.Time
	ReturnDate   *time.Time
	Reason       string
	GuardianName string
	Address      string
}

// NewLocalSubmission builds a local-pass submission.
func NewLocalSubmission(enrollmentID, destination, reason string, travelDate time.Time) (Submission, error) {
	s := Submission{
		EnrollmentID: enrollmentID,
		Type:         TypeLocal,
		Destination:  destination,
		TravelDate:   travelDate,
		Reason:       reason,
	}
	return s, s.validate()
}

// NewHomeSubmission builds a home-pass submission; guardian name and home
// address are required on top of the common fields.
func NewHomeSubmission(enrollmentID, destination, reason, guardianName, address string, travelDate time.Time, returnDate *time.Time) (Submission, error) {
	s := Submission{
		EnrollmentID: enrollmentID,
		Type:         TypeHome,
		Destination:  destination,
		TravelDate:   travelDate,
		ReturnDate:   returnDate,
		Reason:       reason,
		GuardianName: guardianName,
		Address:      address,
	}
	return s, s.validate()
}

func (s Submission) validate() error {
	switch {
	case s.EnrollmentID == "":
		return &ValidationError{Field: "enrollment_id", Msg: "required"}
	case s.Type != TypeLocal && s.Type != TypeHome:
		return &ValidationError{Field: "type", Msg: "must be local or home"}
	case s.Destination == "":
		return &ValidationError{Field: "destination", Msg: "required"}
	case s.TravelDate.IsZero():
		return &ValidationError{Field: "travel_date", Msg: "required"}
	case s.Reason == "":
		return &ValidationError{Field: "reason", Msg: "required"}
	}
	if s.Type == TypeHome {
		if s.GuardianName == "" {
			return &ValidationError{Field: "guardian_name", Msg: "required for home pass"}
		}
		if s.Address == "" {
			return &ValidationError{Field: "address", Msg: "required for home pass"}
		}
	}
	if s.ReturnDate != nil && s.ReturnDate.Before(s.TravelDate) {
		return &ValidationError{Field: "return_date", Msg: "before travel date"}
	}
	return nil
}

// Filter narrows a warden listing. Zero values match everything.
type Filter struct {
	Status Status
	Type   Type
	Search string
}
