package route

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldops/pkg/dispatch"
	"github.com/fieldops/fieldops/pkg/prefs"
	"github.com/fieldops/fieldops/pkg/store"
)

type fakeSolver struct {
	result *Result
	err    error
	lastReq Request
}

func (f *fakeSolver) Solve(_ context.Context, req Request) (*Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func setupStage(t *testing.T, solver Solver) (*Stage, *store.Store, *store.Plan, *dispatch.Result) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	j1 := &store.Job{UserID: "u1", Title: "A", Type: store.JobTypeEmergency, Priority: store.PriorityUrgent,
		Latitude: 52.52, Longitude: 13.40, EstimatedDurationMins: 60, ScheduledDate: "2026-08-30"}
	j2 := &store.Job{UserID: "u1", Title: "B", Type: store.JobTypeService, Priority: store.PriorityMedium,
		Latitude: 52.53, Longitude: 13.42, EstimatedDurationMins: 30, ScheduledDate: "2026-08-30"}
	require.NoError(t, s.CreateJob(ctx, j1))
	require.NoError(t, s.CreateJob(ctx, j2))

	plan, err := s.CreatePlan(ctx, "u1", "2026-08-30", []string{j1.ID, j2.ID})
	require.NoError(t, err)

	disp := &dispatch.Result{
		PrioritizedJobs: []dispatch.PrioritizedJob{
			{JobID: j1.ID, Rank: 1, ScheduledSlot: "08:00"},
			{JobID: j2.ID, Rank: 2, ScheduledSlot: "10:00"},
		},
	}

	return NewStage(Config{Solver: solver, Store: s, Logger: zerolog.Nop()}), s, plan, disp
}

func TestStageRunPersistsRoute(t *testing.T) {
	solver := &fakeSolver{result: &Result{
		Waypoints: []Waypoint{{Seq: 1, JobID: "x", ArrivalTime: "08:10", DepartureTime: "09:10"}},
		TotalKm:   12.5,
		TotalMins: 130,
	}}
	stage, s, plan, disp := setupStage(t, solver)

	ctx := context.Background()
	result, err := stage.Run(ctx, plan.ID, "u1", disp, "2026-08-30", prefs.Defaults())
	require.NoError(t, err)
	assert.Len(t, result.Waypoints, 1)

	got, err := s.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PlanStatusRouteComplete, got.Status)
	assert.Contains(t, string(got.RouteOutput), "waypoints")

	// Request carries job-buffered service times and the vehicle profile.
	require.Len(t, solver.lastReq.Stops, 2)
	assert.Equal(t, 66, solver.lastReq.Stops[0].ServiceMins) // 60 + 10%
	assert.Equal(t, "08:00", solver.lastReq.Stops[0].WindowStart)
	assert.InDelta(t, prefs.Defaults().VehicleCapacityKg, solver.lastReq.Vehicle.CapacityKg, 0.001)
}

func TestStageRunMissingDispatchOutput(t *testing.T) {
	stage, s, plan, _ := setupStage(t, &fakeSolver{})

	ctx := context.Background()
	_, err := stage.Run(ctx, plan.ID, "u1", nil, "2026-08-30", prefs.Defaults())
	require.Error(t, err)

	got, err := s.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorState)
	assert.Equal(t, store.ErrKindValidation, got.ErrorState.Kind)
	assert.Equal(t, "route", got.ErrorState.FailedStep)
}

func TestStageRunSolverErrorIsExternalAPIError(t *testing.T) {
	stage, s, plan, disp := setupStage(t, &fakeSolver{err: errors.New("solver offline")})

	ctx := context.Background()
	_, err := stage.Run(ctx, plan.ID, "u1", disp, "2026-08-30", prefs.Defaults())
	require.Error(t, err)

	got, err := s.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorState)
	assert.Equal(t, store.ErrKindExternalAPI, got.ErrorState.Kind)
	assert.True(t, got.ErrorState.RetrySuggested)
}

func TestStageRunEmptyRouteIsError(t *testing.T) {
	stage, _, plan, disp := setupStage(t, &fakeSolver{result: &Result{}})

	_, err := stage.Run(context.Background(), plan.ID, "u1", disp, "2026-08-30", prefs.Defaults())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no route")
}
