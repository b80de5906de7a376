package janitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/pkg/store"
)

func newTestJanitor(t *testing.T, staleAfter time.Duration) (*Service, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	svc, err := NewService(Config{
		Store:      s,
		Logger:     zerolog.Nop(),
		SweepEvery: time.Hour,
		StaleAfter: staleAfter,
	})
	require.NoError(t, err)
	return svc, s
}

func TestSweepTimesOutStalePlans(t *testing.T) {
	svc, s := newTestJanitor(t, time.Millisecond)
	ctx := context.Background()

	plan, err := s.CreatePlan(ctx, "u1", "2026-08-30", []string{"j1"})
	require.NoError(t, err)
	require.NoError(t, s.UpdatePlanStatus(ctx, plan.ID, store.PlanStatusRoute, "route"))

	time.Sleep(20 * time.Millisecond)

	swept, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := s.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PlanStatusError, got.Status)
	require.NotNil(t, got.ErrorState)
	assert.Equal(t, store.ErrKindTimeout, got.ErrorState.Kind)
	assert.Equal(t, "janitor", got.ErrorState.FailedStep)
	assert.False(t, got.ErrorState.RetrySuggested)
}

func TestSweepSkipsFreshAndTerminalPlans(t *testing.T) {
	svc, s := newTestJanitor(t, time.Hour)
	ctx := context.Background()

	fresh, err := s.CreatePlan(ctx, "u1", "2026-08-30", []string{"j1"})
	require.NoError(t, err)

	cancelled, err := s.CreatePlan(ctx, "u1", "2026-08-31", []string{"j2"})
	require.NoError(t, err)
	require.NoError(t, s.CancelPlan(ctx, cancelled.ID))

	swept, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)

	got, err := s.GetPlan(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PlanStatusPending, got.Status)
}

func TestSweepIgnoresAlreadyTerminalStalePlans(t *testing.T) {
	svc, s := newTestJanitor(t, time.Millisecond)
	ctx := context.Background()

	plan, err := s.CreatePlan(ctx, "u1", "2026-08-30", []string{"j1"})
	require.NoError(t, err)
	require.NoError(t, s.CancelPlan(ctx, plan.ID))

	time.Sleep(20 * time.Millisecond)

	swept, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)
}
