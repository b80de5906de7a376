package route

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldops/fieldops/internal/observability"
	"github.com/fieldops/fieldops/pkg/dispatch"
	"github.com/fieldops/fieldops/pkg/prefs"
	"github.com/fieldops/fieldops/pkg/store"
)

// Stage turns a dispatch ordering into a timed route.
type Stage struct {
	solver Solver
	store  *store.Store
	logger zerolog.Logger
}

// Config holds route stage dependencies.
type Config struct {
	Solver Solver
	Store  *store.Store
	Logger zerolog.Logger
}

// NewStage creates a route stage.
func NewStage(cfg Config) *Stage {
	return &Stage{
		solver: cfg.Solver,
		store:  cfg.Store,
		logger: cfg.Logger.With().Str("stage", "route").Logger(),
	}
}

// Run builds a routing request from the dispatch output and the vehicle
// profile derived from preferences, then invokes the solver. Mirrors the
// dispatch stage's status and error semantics; a solver reply without
// waypoints is an error.
func (st *Stage) Run(ctx context.Context, planID, userID string, disp *dispatch.Result, date string, p prefs.Preferences) (*Result, error) {
	start := time.Now()

	if disp == nil || len(disp.PrioritizedJobs) == 0 {
		return nil, st.fail(ctx, planID, store.ErrKindValidation,
			errors.New("dispatch output is missing"), start)
	}

	if err := st.store.UpdatePlanStatus(ctx, planID, store.PlanStatusRoute, "route"); err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindValidation, err, start)
	}

	req, err := st.buildRequest(ctx, userID, disp, date, p)
	if err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindValidation, err, start)
	}

	result, err := st.solver.Solve(ctx, *req)
	if err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindExternalAPI, err, start)
	}
	if result == nil || len(result.Waypoints) == 0 {
		return nil, st.fail(ctx, planID, store.ErrKindExternalAPI,
			errors.New("solver returned no route"), start)
	}

	if err := st.store.SetStageOutput(ctx, planID, "route", result); err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindExternalAPI, err, start)
	}
	if err := st.store.UpdatePlanStatus(ctx, planID, store.PlanStatusRouteComplete, "route"); err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindExternalAPI, err, start)
	}

	observability.ObserveStageRun("route", "ok", time.Since(start))
	st.logger.Info().
		Str("plan_id", planID).
		Int("waypoints", len(result.Waypoints)).
		Float64("total_km", result.TotalKm).
		Msg("Route complete")

	return result, nil
}

// buildRequest fetches the prioritized jobs and derives stops with time
// windows from the dispatch estimates plus the per-job buffer.
func (st *Stage) buildRequest(ctx context.Context, userID string, disp *dispatch.Result, date string, p prefs.Preferences) (*Request, error) {
	ids := make([]string, len(disp.PrioritizedJobs))
	for i, pj := range disp.PrioritizedJobs {
		ids[i] = pj.JobID
	}

	jobs, err := st.store.GetJobsByIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load prioritized jobs: %w", err)
	}

	stops := make([]Stop, len(jobs))
	for i, job := range jobs {
		service := job.EstimatedDurationMins
		service += service * p.JobBufferPct / 100

		stops[i] = Stop{
			JobID:       job.ID,
			Latitude:    job.Latitude,
			Longitude:   job.Longitude,
			ServiceMins: service,
			WindowStart: disp.PrioritizedJobs[i].ScheduledSlot,
			WindowEnd:   p.WorkEnd,
		}
	}

	return &Request{
		Stops: stops,
		Vehicle: VehicleProfile{
			CapacityKg:    p.VehicleCapacityKg,
			MaxDistanceKm: p.MaxRouteDistanceKm,
			DepartureTime: p.WorkStart,
		},
		Date: date,
	}, nil
}

func (st *Stage) fail(ctx context.Context, planID string, kind store.ErrorKind, err error, start time.Time) error {
	observability.ObserveStageRun("route", "error", time.Since(start))
	observability.ObserveStageError("route", string(kind))

	es := store.ErrorState{
		Kind:           kind,
		Message:        err.Error(),
		FailedStep:     "route",
		RetrySuggested: true,
	}
	if serr := st.store.SetPlanError(ctx, planID, es); serr != nil {
		st.logger.Error().Err(serr).Str("plan_id", planID).Msg("Failed to record route error")
	}

	return fmt.Errorf("route stage: %w", err)
}
