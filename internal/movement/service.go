package movement

import (
	"context"
	"log"

	"github.com/google/uuid"

	"campuspass/internal/credential"
)

// Ledger is the persistence surface for movement state. Transitions are
// conditional: ok=false means the guard lost the state check and nothing
// was written.
type Ledger interface {
	TransitionOut(ctx context.Context, enrollmentID, guardID string) (Record, bool, error)
	TransitionIn(ctx context.Context, enrollmentID, guardID string) (Record, bool, error)
	TransitionCorrectOut(ctx context.Context, enrollmentID, guardID string) (Record, bool, error)
	Current(ctx context.Context, enrollmentID string) (Record, error)
	List(ctx context.Context, status Status) ([]Record, error)
}

// PassChecker answers whether a student currently holds a scan-eligible
// approved pass.
type PassChecker interface {
	ScanEligible(ctx context.Context, enrollmentID string) (bool, error)
}

// AuditPublisher hands accepted transitions to the crossing-log queue.
type AuditPublisher interface {
	PublishAudit(ctx context.Context, evt AuditEvent) error
}

// Notifier announces committed changes so dashboard subscriptions refresh.
type Notifier interface {
	Changed(ctx context.Context, topic string)
}

// TopicMovements is the change-notification topic for movement records.
const TopicMovements = "movements"

// Service applies gate transitions.
type Service struct {
	ledger   Ledger
	passes   PassChecker
	audit    AuditPublisher
	notifier Notifier
}

// NewService creates a service.
func NewService(ledger Ledger, passes PassChecker, audit AuditPublisher, notifier Notifier) *Service {
	return &Service{ledger: ledger, passes: passes, audit: audit, notifier: notifier}
}

// ScanOut handles an exit scan: decode the token, check the pass, then
// transition Absent/IN -> OUT. A student already OUT is rejected with
// ErrAlreadyOut and the stored record is untouched, so a double scan can
// never double-record an exit.
func (s *Service) ScanOut(ctx context.Context, token, guardID string) (Record, error) {
	enrollmentID, err := credential.Decode(token)
	if err != nil {
		return Record{}, err
	}
	eligible, err := s.passes.ScanEligible(ctx, enrollmentID)
	if err != nil {
		return Record{}, err
	}
	if !eligible {
		return Record{}, ErrNotAuthorized
	}
	rec, ok, err := s.ledger.TransitionOut(ctx, enrollmentID, guardID)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrAlreadyOut
	}
	s.committed(ctx, rec, TransitionOut, false)
	return rec, nil
}

// MarkIn records the student's return. Only valid from OUT; out_at is kept
// for the audit trail.
func (s *Service) MarkIn(ctx context.Context, enrollmentID, guardID string) (Record, error) {
	rec, ok, err := s.ledger.TransitionIn(ctx, enrollmentID, guardID)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotCurrentlyOut
	}
	s.committed(ctx, rec, TransitionIn, false)
	return rec, nil
}

// CorrectBackToOut is the guard's explicit mistouch undo: IN -> OUT with a
// fresh out_at. It is the only transition not caused by a physical scan and
// is flagged as a correction in the audit log.
func (s *Service) CorrectBackToOut(ctx context.Context, enrollmentID, guardID string) (Record, error) {
	rec, ok, err := s.ledger.TransitionCorrectOut(ctx, enrollmentID, guardID)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotCurrentlyIn
	}
	s.committed(ctx, rec, TransitionCorrectOut, true)
	return rec, nil
}

// Current returns one student's movement record.
func (s *Service) Current(ctx context.Context, enrollmentID string) (Record, error) {
	return s.ledger.Current(ctx, enrollmentID)
}

// List returns movement records for the guard dashboard.
func (s *Service) List(ctx context.Context, status Status) ([]Record, error) {
	return s.ledger.List(ctx, status)
}

func (s *Service) committed(ctx context.Context, rec Record, transition string, correction bool) {
	evt := AuditEvent{
		ID:           uuid.NewString(),
		EnrollmentID: rec.EnrollmentID,
		Transition:   transition,
		RecordedBy:   rec.RecordedBy,
		Correction:   correction,
		OccurredAt:   rec.UpdatedAt,
	}
	if err := s.audit.PublishAudit(ctx, evt); err != nil {
		log.Printf("audit publish failed for %s %s: %v", rec.EnrollmentID, transition, err)
	}
	s.notifier.Changed(ctx, TopicMovements)
}
