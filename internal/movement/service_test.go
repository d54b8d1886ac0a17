package movement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campuspass/internal/credential"
)

// memLedger mirrors the repository's conditional transitions in memory.
type memLedger struct {
	rows map[string]Record
	now  time.Time
}

func newMemLedger() *memLedger {
	return &memLedger{rows: map[string]Record{}, now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (m *memLedger) tick() time.Time {
	m.now = m.now.Add(time.Minute)
	return m.now
}

func (m *memLedger) TransitionOut(_ context.Context, enrollmentID, guardID string) (Record, bool, error) {
	rec, exists := m.rows[enrollmentID]
	if exists && rec.Status == StatusOut {
		return Record{}, false, nil
	}
	at := m.tick()
	rec = Record{EnrollmentID: enrollmentID, Status: StatusOut, OutAt: &at, RecordedBy: guardID, UpdatedAt: at}
	m.rows[enrollmentID] = rec
	return rec, true, nil
}

func (m *memLedger) TransitionIn(_ context.Context, enrollmentID, guardID string) (Record, bool, error) {
	rec, exists := m.rows[enrollmentID]
	if !exists || rec.Status != StatusOut {
		return Record{}, false, nil
	}
	at := m.tick()
	rec.Status = StatusIn
	rec.InAt = &at
	rec.RecordedBy = guardID
	rec.UpdatedAt = at
	m.rows[enrollmentID] = rec
	return rec, true, nil
}

func (m *memLedger) TransitionCorrectOut(_ context.Context, enrollmentID, guardID string) (Record, bool, error) {
	rec, exists := m.rows[enrollmentID]
	if !exists || rec.Status != StatusIn {
		return Record{}, false, nil
	}
	at := m.tick()
	rec.Status = StatusOut
	rec.OutAt = &at
	rec.InAt = nil
	rec.RecordedBy = guardID
	rec.UpdatedAt = at
	m.rows[enrollmentID] = rec
	return rec, true, nil
}

func (m *memLedger) Current(_ context.Context, enrollmentID string) (Record, error) {
	rec, ok := m.rows[enrollmentID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *memLedger) List(_ context.Context, status Status) ([]Record, error) {
	var res []Record
	for _, rec := range m.rows {
		if status == "" || rec.Status == status {
			res = append(res, rec)
		}
	}
	return res, nil
}

type approvedSet map[string]bool

func (a approvedSet) ScanEligible(_ context.Context, enrollmentID string) (bool, error) {
	return a[enrollmentID], nil
}

type auditLog struct{ events []AuditEvent }

func (a *auditLog) PublishAudit(_ context.Context, evt AuditEvent) error {
	a.events = append(a.events, evt)
	return nil
}

type nopNotifier struct{ calls int }

func (n *nopNotifier) Changed(context.Context, string) { n.calls++ }

func newTestService(approved ...string) (*Service, *memLedger, *auditLog) {
	ledger := newMemLedger()
	set := approvedSet{}
	for _, id := range approved {
		set[id] = true
	}
	audit := &auditLog{}
	return NewService(ledger, set, audit, &nopNotifier{}), ledger, audit
}

func TestApprovedPassLifecycle(t *testing.T) {
	t.Parallel()

	svc, _, audit := newTestService("ASU2023001")
	ctx := context.Background()

	rec, err := svc.ScanOut(ctx, "PASS-ASU2023001", "guard-1")
	require.NoError(t, err)
	require.Equal(t, StatusOut, rec.Status)
	require.NotNil(t, rec.OutAt)
	require.Equal(t, "guard-1", rec.RecordedBy)

	rec, err = svc.MarkIn(ctx, "ASU2023001", "guard-1")
	require.NoError(t, err)
	require.Equal(t, StatusIn, rec.Status)
	require.NotNil(t, rec.InAt)
	// The exit time survives the return for audit.
	require.NotNil(t, rec.OutAt)

	require.Len(t, audit.events, 2)
	require.Equal(t, TransitionOut, audit.events[0].Transition)
	require.Equal(t, TransitionIn, audit.events[1].Transition)
	require.False(t, audit.events[0].Correction)
}

func TestScanOutUnapprovedStudent(t *testing.T) {
	t.Parallel()

	svc, ledger, _ := newTestService()
	_, err := svc.ScanOut(context.Background(), "PASS-ASU2023001", "guard-1")
	require.ErrorIs(t, err, ErrNotAuthorized)

	// State stays Absent.
	_, err = ledger.Current(context.Background(), "ASU2023001")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestScanOutMalformedToken(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService("ASU2023001")
	for _, tok := range []string{"", "ASU2023001", "PASS-", "pass-ASU2023001"} {
		_, err := svc.ScanOut(context.Background(), tok, "guard-1")
		require.ErrorIs(t, err, credential.ErrMalformedToken, "token %q", tok)
	}
}

func TestScanOutTwiceChangesStateOnce(t *testing.T) {
	t.Parallel()

	svc, ledger, audit := newTestService("ASU2023001")
	ctx := context.Background()

	first, err := svc.ScanOut(ctx, "PASS-ASU2023001", "guard-1")
	require.NoError(t, err)

	_, err = svc.ScanOut(ctx, "PASS-ASU2023001", "guard-2")
	require.ErrorIs(t, err, ErrAlreadyOut)

	// The stored record is exactly the first scan's.
	cur, err := ledger.Current(ctx, "ASU2023001")
	require.NoError(t, err)
	require.Equal(t, first.OutAt, cur.OutAt)
	require.Equal(t, "guard-1", cur.RecordedBy)
	require.Len(t, audit.events, 1)
}

func TestMarkInFromAbsent(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService("ASU2023001")
	_, err := svc.MarkIn(context.Background(), "ASU2023001", "guard-1")
	require.ErrorIs(t, err, ErrNotCurrentlyOut)
}

func TestMarkInTwice(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService("ASU2023001")
	ctx := context.Background()

	_, err := svc.ScanOut(ctx, "PASS-ASU2023001", "guard-1")
	require.NoError(t, err)
	_, err = svc.MarkIn(ctx, "ASU2023001", "guard-1")
	require.NoError(t, err)
	_, err = svc.MarkIn(ctx, "ASU2023001", "guard-1")
	require.ErrorIs(t, err, ErrNotCurrentlyOut)
}

func TestCorrectBackToOut(t *testing.T) {
	t.Parallel()

	svc, _, audit := newTestService("ASU2023001")
	ctx := context.Background()

	out1, err := svc.ScanOut(ctx, "PASS-ASU2023001", "guard-1")
	require.NoError(t, err)
	_, err = svc.MarkIn(ctx, "ASU2023001", "guard-1")
	require.NoError(t, err)

	rec, err := svc.CorrectBackToOut(ctx, "ASU2023001", "guard-1")
	require.NoError(t, err)
	require.Equal(t, StatusOut, rec.Status)
	require.Nil(t, rec.InAt)
	require.True(t, rec.OutAt.After(*out1.OutAt), "correction must take a fresh out time")

	last := audit.events[len(audit.events)-1]
	require.Equal(t, TransitionCorrectOut, last.Transition)
	require.True(t, last.Correction)
}

func TestCorrectBackToOutRequiresIn(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService("ASU2023001")
	ctx := context.Background()

	// Absent.
	_, err := svc.CorrectBackToOut(ctx, "ASU2023001", "guard-1")
	require.ErrorIs(t, err, ErrNotCurrentlyIn)

	// OUT.
	_, err = svc.ScanOut(ctx, "PASS-ASU2023001", "guard-1")
	require.NoError(t, err)
	_, err = svc.CorrectBackToOut(ctx, "ASU2023001", "guard-1")
	require.ErrorIs(t, err, ErrNotCurrentlyIn)
}

// Replay arbitrary call sequences and check the final state against the
// transition table.
func TestTransitionTableReplay(t *testing.T) {
	t.Parallel()

	type step struct {
		op   string // "out", "in", "correct"
		ok   bool
		want Status // expected state after the step ("" = Absent)
	}
	tests := []struct {
		name  string
		steps []step
	}{
		{"out in out cycle", []step{
			{"out", true, StatusOut},
			{"in", true, StatusIn},
			{"out", true, StatusOut},
		}},
		{"rejected ops leave state alone", []step{
			{"in", false, ""},
			{"correct", false, ""},
			{"out", true, StatusOut},
			{"out", false, StatusOut},
			{"correct", false, StatusOut},
			{"in", true, StatusIn},
			{"in", false, StatusIn},
		}},
		{"correction then normal return", []step{
			{"out", true, StatusOut},
			{"in", true, StatusIn},
			{"correct", true, StatusOut},
			{"in", true, StatusIn},
		}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc, ledger, _ := newTestService("S1")
			ctx := context.Background()

			for i, st := range tc.steps {
				var err error
				switch st.op {
				case "out":
					_, err = svc.ScanOut(ctx, "PASS-S1", "guard-1")
				case "in":
					_, err = svc.MarkIn(ctx, "S1", "guard-1")
				case "correct":
					_, err = svc.CorrectBackToOut(ctx, "S1", "guard-1")
				}
				if st.ok {
					require.NoError(t, err, "step %d (%s)", i, st.op)
				} else {
					require.Error(t, err, "step %d (%s)", i, st.op)
				}

				cur, cerr := ledger.Current(ctx, "S1")
				if st.want == "" {
					require.ErrorIs(t, cerr, ErrNotFound, "step %d", i)
				} else {
					require.NoError(t, cerr, "step %d", i)
					require.Equal(t, st.want, cur.Status, "step %d", i)
				}
			}
		})
	}
}
