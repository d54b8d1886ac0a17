package passes

import (
	"context"
	"fmt"
)

// Store is the persistence surface the service needs.
type Store interface {
	Replace(ctx context.Context, sub Submission) (Request, error)
	TryDecide(ctx context.Context, enrollmentID string, outcome Status, decidedBy, remark string, overwrite bool) (bool, error)
	Get(ctx context.Context, enrollmentID string) (Request, error)
	List(ctx context.Context, f Filter) ([]Request, error)
	ScanEligible(ctx context.Context, enrollmentID string) (bool, error)
}

// Notifier announces committed changes so dashboard subscriptions refresh.
type Notifier interface {
	Changed(ctx context.Context, topic string)
}

// TopicRequests is the change-notification topic for pass requests.
const TopicRequests = "requests"

// Service coordinates submissions and warden decisions.
type Service struct {
	store    Store
	notifier Notifier
	// overwrite permits a different-outcome re-decision to replace the
	// stored one; when false such a re-decision is a conflict.
	overwrite bool
}

// NewService creates a service. decisionPolicy is "overwrite" or "strict".
func NewService(store Store, notifier Notifier, decisionPolicy string) *Service {
	return &Service{
		store:     store,
		notifier:  notifier,
		overwrite: decisionPolicy != "strict",
	}
}

// Submit creates or replaces the student's request. Whatever was there
// before, exactly one request exists for the enrollment id afterwards and
// it is Pending.
func (s *Service) Submit(ctx context.Context, sub Submission) (Request, error) {
	if err := sub.validate(); err != nil {
		return Request{}, err
	}
	req, err := s.store.Replace(ctx, sub)
	if err != nil {
		return Request{}, err
	}
	s.notifier.Changed(ctx, TopicRequests)
	return req, nil
}

// Decide applies a warden decision. Re-applying the stored outcome is an
// idempotent no-op returning the stored row, so a double-click cannot
// rewrite decidedAt. A different outcome on a terminal request either
// overwrites or conflicts depending on the configured policy.
func (s *Service) Decide(ctx context.Context, enrollmentID string, outcome Status, decidedBy, remark string) (Request, error) {
	if outcome != StatusApproved && outcome != StatusRejected {
		return Request{}, fmt.Errorf("outcome must be %s or %s", StatusApproved, StatusRejected)
	}
	applied, err := s.store.TryDecide(ctx, enrollmentID, outcome, decidedBy, remark, s.overwrite)
	if err != nil {
		return Request{}, err
	}
	cur, err := s.store.Get(ctx, enrollmentID)
	if err != nil {
		return Request{}, err
	}
	if !applied && cur.Status != outcome {
		return Request{}, ErrDecisionConflict
	}
	if applied {
		s.notifier.Changed(ctx, TopicRequests)
	}
	return cur, nil
}

// Get returns the student's current request.
func (s *Service) Get(ctx context.Context, enrollmentID string) (Request, error) {
	return s.store.Get(ctx, enrollmentID)
}

// List returns requests for the warden dashboard, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Request, error) {
	return s.store.List(ctx, f)
}

// ScanEligible reports whether a gate scan may proceed for the student.
func (s *Service) ScanEligible(ctx context.Context, enrollmentID string) (bool, error) {
	return s.store.ScanEligible(ctx, enrollmentID)
}
