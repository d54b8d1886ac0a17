package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"campuspass/internal/movement"
)

func TestMovementsXLSX(t *testing.T) {
	t.Parallel()

	events := []movement.AuditEvent{
		{
			ID:           "1",
			EnrollmentID: "ASU2023001",
			Transition:   movement.TransitionOut,
			RecordedBy:   "guard-1",
			OccurredAt:   time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		},
		{
			ID:           "2",
			EnrollmentID: "ASU2023001",
			Transition:   movement.TransitionCorrectOut,
			RecordedBy:   "guard-2",
			Correction:   true,
			OccurredAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
	}

	blob, err := MovementsXLSX(events)
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	f, err := excelize.OpenReader(bytes.NewReader(blob))
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetCellValue("Movements", "A2")
	require.NoError(t, err)
	require.Equal(t, "ASU2023001", got)

	got, err = f.GetCellValue("Movements", "B3")
	require.NoError(t, err)
	require.Equal(t, movement.TransitionCorrectOut, got)

	got, err = f.GetCellValue("Movements", "D3")
	require.NoError(t, err)
	require.Equal(t, "TRUE", got)
}
