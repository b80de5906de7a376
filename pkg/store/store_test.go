package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("", zerolog.Nop())
	require.Error(t, err)
}

func TestOpenInitializesSchema(t *testing.T) {
	s := newTestStore(t)

	// Schema init is idempotent: round-trip through each table.
	ctx := context.Background()

	plan, err := s.CreatePlan(ctx, "u1", "2026-08-30", []string{"j1"})
	require.NoError(t, err)
	require.NotEmpty(t, plan.ID)

	require.NoError(t, s.CreateJob(ctx, &Job{
		UserID:        "u1",
		Title:         "Fix boiler",
		Type:          JobTypeService,
		Priority:      PriorityMedium,
		ScheduledDate: "2026-08-30",
	}))

	require.NoError(t, s.UpsertInventoryItem(ctx, &InventoryItem{
		UserID:   "u1",
		Name:     "copper pipe",
		Quantity: 4,
		Unit:     "m",
	}))

	require.NoError(t, s.SavePreferencesRaw(ctx, "u1", []byte(`{"work_start":"07:00"}`)))
}
