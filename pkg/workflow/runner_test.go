package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/pkg/agent"
	"github.com/fieldops/fieldops/pkg/dispatch"
	"github.com/fieldops/fieldops/pkg/inventory"
	"github.com/fieldops/fieldops/pkg/prefs"
	"github.com/fieldops/fieldops/pkg/route"
	"github.com/fieldops/fieldops/pkg/store"
)

type fakeProvider struct {
	content string
	err     error
	calls   atomic.Int32
}

func (f *fakeProvider) Call(_ context.Context, _ agent.LLMRequest) (*agent.LLMResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &agent.LLMResponse{Content: f.content}, nil
}

func (f *fakeProvider) Provider() string { return "fake" }

type harness struct {
	store       *store.Store
	service     *Service
	provider    *fakeProvider
	jobIDs      []string
	emergencyID string
}

// newHarness seeds four jobs spanning every priority, all with required
// parts and no stock on hand.
func newHarness(t *testing.T, provider *fakeProvider, autoApprove bool, approvalTimeout time.Duration) *harness {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	jobs := []*store.Job{
		{UserID: "u1", Title: "Burst pipe at Obermaier", Type: store.JobTypeEmergency, Priority: store.PriorityUrgent,
			Latitude: 52.520, Longitude: 13.405, EstimatedDurationMins: 90, ScheduledDate: "2026-08-30",
			RequiredItems: []store.RequiredItem{{Name: "pipe coupling", Quantity: 2, Unit: "pcs"}}},
		{UserID: "u1", Title: "Annual boiler inspection", Type: store.JobTypeInspection, Priority: store.PriorityHigh,
			Latitude: 52.530, Longitude: 13.410, EstimatedDurationMins: 45, ScheduledDate: "2026-08-30",
			RequiredItems: []store.RequiredItem{{Name: "gasket set", Quantity: 1, Unit: "set"}}},
		{UserID: "u1", Title: "Radiator service", Type: store.JobTypeService, Priority: store.PriorityMedium,
			Latitude: 52.540, Longitude: 13.420, EstimatedDurationMins: 60, ScheduledDate: "2026-08-30",
			RequiredItems: []store.RequiredItem{{Name: "bleed valve", Quantity: 4, Unit: "pcs"}}},
		{UserID: "u1", Title: "Faucet check", Type: store.JobTypeService, Priority: store.PriorityLow,
			Latitude: 52.550, Longitude: 13.430, EstimatedDurationMins: 30, ScheduledDate: "2026-08-30",
			RequiredItems: []store.RequiredItem{{Name: "o-ring", Quantity: 6, Unit: "pcs"}}},
	}

	h := &harness{store: s, provider: provider}
	for _, job := range jobs {
		require.NoError(t, s.CreateJob(ctx, job))
		h.jobIDs = append(h.jobIDs, job.ID)
	}
	h.emergencyID = jobs[0].ID

	logger := zerolog.Nop()
	runner := NewRunner(RunnerConfig{
		Store: s,
		Dispatch: dispatch.NewStage(dispatch.Config{
			Provider: provider, Store: s, Logger: logger, Model: "test-model",
		}),
		Route: route.NewStage(route.Config{
			Solver: &route.StandInSolver{}, Store: s, Logger: logger,
		}),
		Inventory: inventory.NewStage(inventory.Config{
			Catalog: &inventory.StandInCatalog{}, Store: s, Logger: logger,
		}),
		Logger:          logger,
		MaxRetries:      3,
		AutoApprove:     autoApprove,
		ApprovalTimeout: approvalTimeout,
	})
	h.service = NewService(ServiceConfig{
		Store: s, Prefs: prefs.NewService(s), Runner: runner, Logger: logger,
	})
	return h
}

func TestRunPlanEndToEnd(t *testing.T) {
	// Model replies with prose, so the deterministic fallback orders
	// the jobs; every part is missing, so a store run must be created.
	provider := &fakeProvider{content: "I cannot produce JSON today."}
	h := newHarness(t, provider, true, 0)
	ctx := context.Background()

	res, err := h.service.RunPlan(ctx, "u1", h.jobIDs, "2026-08-30", nil)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, res.FinalState)

	require.NotNil(t, res.Dispatch)
	assert.Equal(t, dispatch.FallbackReasoning, res.Dispatch.AgentReasoning)
	require.Len(t, res.Dispatch.PrioritizedJobs, 4)
	assert.Equal(t, h.emergencyID, res.Dispatch.PrioritizedJobs[0].JobID)

	require.NotNil(t, res.Inventory)
	names := map[string]bool{}
	for _, item := range res.Inventory.ShoppingList {
		names[item.Name] = true
	}
	for _, part := range []string{"pipe coupling", "gasket set", "bleed valve", "o-ring"} {
		assert.True(t, names[part], part)
	}

	plan := res.Plan
	assert.Equal(t, store.PlanStatusApproved, plan.Status)
	require.Len(t, plan.CreatedJobIDs, 1)
	assert.Greater(t, plan.TotalDistanceKm, 0.0)
	assert.NotNil(t, plan.CompletedAt)

	storeJob, err := h.store.GetJob(ctx, plan.CreatedJobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, store.JobTypePickup, storeJob.Type)

	require.NotEmpty(t, res.Trail)
	assert.Equal(t, StateDispatch, res.Trail[0].From)
	var visitedStore bool
	for _, tr := range res.Trail {
		if tr.To == StateHardwareStore {
			visitedStore = true
		}
	}
	assert.True(t, visitedStore)
}

func TestRunPlanRetryBound(t *testing.T) {
	provider := &fakeProvider{err: errors.New("model unavailable")}
	h := newHarness(t, provider, true, 0)
	ctx := context.Background()

	res, err := h.service.RunPlan(ctx, "u1", h.jobIDs, "2026-08-30", nil)
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.FinalState)

	// Exactly three failed attempts, then terminal with no further retry.
	assert.Equal(t, int32(3), provider.calls.Load())

	plan := res.Plan
	assert.Equal(t, store.PlanStatusError, plan.Status)
	assert.Equal(t, 2, plan.RetryCount)
	require.NotNil(t, plan.ErrorState)
	assert.Equal(t, store.ErrKindAgentFailure, plan.ErrorState.Kind)
	assert.Equal(t, "dispatch", plan.ErrorState.FailedStep)
}

func TestRunPlanEmptyJobList(t *testing.T) {
	h := newHarness(t, &fakeProvider{content: "{}"}, true, 0)

	_, err := h.service.RunPlan(context.Background(), "u1", nil, "2026-08-30", nil)
	require.Error(t, err)
}

func TestRunPlanApprovalGate(t *testing.T) {
	provider := &fakeProvider{content: "no json here"}
	h := newHarness(t, provider, false, 5*time.Second)
	ctx := context.Background()

	events, cancel := h.store.WatchPlans("u1", "2026-08-30")
	defer cancel()

	type outcome struct {
		res *RunResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.service.RunPlan(ctx, "u1", h.jobIDs, "2026-08-30", nil)
		done <- outcome{res, err}
	}()

	planID := waitForChange(t, events, "awaiting_verification")
	require.NoError(t, h.service.Approve(ctx, planID, true))

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, StateComplete, out.res.FinalState)
	assert.Equal(t, store.PlanStatusApproved, out.res.Plan.Status)
}

func TestRunPlanRejectionCancels(t *testing.T) {
	provider := &fakeProvider{content: "no json here"}
	h := newHarness(t, provider, false, 5*time.Second)
	ctx := context.Background()

	events, cancel := h.store.WatchPlans("u1", "2026-08-30")
	defer cancel()

	type outcome struct {
		res *RunResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.service.RunPlan(ctx, "u1", h.jobIDs, "2026-08-30", nil)
		done <- outcome{res, err}
	}()

	planID := waitForChange(t, events, "awaiting_verification")
	require.NoError(t, h.service.Approve(ctx, planID, false))

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, StateCancelled, out.res.FinalState)
	assert.Equal(t, store.PlanStatusCancelled, out.res.Plan.Status)
}

func TestRunPlanApprovalTimeout(t *testing.T) {
	provider := &fakeProvider{content: "no json here"}
	h := newHarness(t, provider, false, 50*time.Millisecond)
	ctx := context.Background()

	res, err := h.service.RunPlan(ctx, "u1", h.jobIDs, "2026-08-30", nil)
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.FinalState)

	plan := res.Plan
	assert.Equal(t, store.PlanStatusError, plan.Status)
	require.NotNil(t, plan.ErrorState)
	assert.Equal(t, store.ErrKindTimeout, plan.ErrorState.Kind)

	// A gate timeout is not retryable; the pipeline ran once.
	assert.Equal(t, int32(1), provider.calls.Load())
	assert.Equal(t, 0, plan.RetryCount)
}

func TestApproveParkedPlan(t *testing.T) {
	h := newHarness(t, &fakeProvider{content: "{}"}, false, 0)
	ctx := context.Background()

	plan, err := h.store.CreatePlan(ctx, "u1", "2026-08-30", h.jobIDs)
	require.NoError(t, err)
	require.NoError(t, h.store.SetStageOutput(ctx, plan.ID, "route",
		&route.Result{TotalKm: 12.5, TotalMins: 90}))
	require.NoError(t, h.store.SetAwaitingVerification(ctx, plan.ID, ApprovalStepInventory))

	require.NoError(t, h.service.Approve(ctx, plan.ID, true))

	got, err := h.store.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PlanStatusApproved, got.Status)
	assert.Equal(t, 90, got.TotalDurationMins)
	assert.InDelta(t, 12.5, got.TotalDistanceKm, 0.001)
}

func TestApproveUnknownPlan(t *testing.T) {
	h := newHarness(t, &fakeProvider{content: "{}"}, false, 0)

	err := h.service.Approve(context.Background(), "nope", true)
	assert.Error(t, err)
}

func waitForChange(t *testing.T, events <-chan store.PlanEvent, change string) string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Change == change {
				return ev.Plan.ID
			}
		case <-deadline:
			t.Fatalf("no %q event within deadline", change)
		}
	}
}
