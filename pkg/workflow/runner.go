package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldops/fieldops/internal/observability"
	"github.com/fieldops/fieldops/pkg/dispatch"
	"github.com/fieldops/fieldops/pkg/inventory"
	"github.com/fieldops/fieldops/pkg/prefs"
	"github.com/fieldops/fieldops/pkg/route"
	"github.com/fieldops/fieldops/pkg/store"
)

var errApprovalTimeout = errors.New("verification gate timed out")

// Runner drives one plan through the state machine, executing a stage per
// state and persisting the outcome after every transition. Stages receive
// their dependencies here instead of reaching for globals.
type Runner struct {
	store     *store.Store
	dispatch  *dispatch.Stage
	route     *route.Stage
	inventory *inventory.Stage
	logger    zerolog.Logger

	maxRetries      int
	autoApprove     bool
	approvalTimeout time.Duration

	mu      sync.Mutex
	waiters map[string]chan bool
}

// RunnerConfig holds runner dependencies and workflow settings.
type RunnerConfig struct {
	Store     *store.Store
	Dispatch  *dispatch.Stage
	Route     *route.Stage
	Inventory *inventory.Stage
	Logger    zerolog.Logger

	// MaxRetries bounds failed attempts of the whole pipeline. Zero
	// means 3.
	MaxRetries int
	// AutoApprove skips the human verification gate.
	AutoApprove bool
	// ApprovalTimeout bounds the wait at the gate. Zero waits until
	// the context is cancelled.
	ApprovalTimeout time.Duration
}

// NewRunner creates a workflow runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Runner{
		store:           cfg.Store,
		dispatch:        cfg.Dispatch,
		route:           cfg.Route,
		inventory:       cfg.Inventory,
		logger:          cfg.Logger.With().Str("component", "workflow").Logger(),
		maxRetries:      cfg.MaxRetries,
		autoApprove:     cfg.AutoApprove,
		approvalTimeout: cfg.ApprovalTimeout,
		waiters:         make(map[string]chan bool),
	}
}

// RunResult is the final state of a run plus the stage outputs and the
// transition trail.
type RunResult struct {
	Plan       *store.Plan       `json:"plan"`
	Dispatch   *dispatch.Result  `json:"dispatch,omitempty"`
	Route      *route.Result     `json:"route,omitempty"`
	Inventory  *inventory.Result `json:"inventory,omitempty"`
	Trail      []Transition      `json:"trail"`
	FinalState State             `json:"final_state"`
}

// Run executes the pipeline for a freshly created plan until a terminal
// state. A stage failure routes through the error handler, which restarts
// the whole pipeline from dispatch while the retry budget lasts. The
// returned error is non-nil when the run ends in StateFailed.
func (r *Runner) Run(ctx context.Context, plan *store.Plan, p prefs.Preferences) (*RunResult, error) {
	start := time.Now()
	res := &RunResult{Plan: plan}

	observability.PlanStarted()
	if err := r.store.MarkPlanStarted(ctx, plan.ID); err != nil {
		return res, fmt.Errorf("failed to start plan: %w", err)
	}

	state := StateDispatch
	var lastErr error

	for !state.Terminal() {
		var (
			ev  Event
			err error
		)

		switch state {
		case StateDispatch:
			var d *dispatch.Result
			d, err = r.dispatch.Run(ctx, plan.ID, plan.UserID, plan.JobIDs, plan.Date, p)
			if err == nil {
				res.Dispatch = d
				ev = EventStageCompleted
			}

		case StateRoute:
			var rt *route.Result
			rt, err = r.route.Run(ctx, plan.ID, plan.UserID, res.Dispatch, plan.Date, p)
			if err == nil {
				res.Route = rt
				ev = EventStageCompleted
			}

		case StateInventory:
			var inv *inventory.Result
			inv, err = r.inventory.Run(ctx, plan.ID, plan.UserID, res.Dispatch, p)
			if err == nil {
				res.Inventory = inv
				if inv.StoreRun != nil && len(inv.StoreRun.Stores) > 0 {
					ev = EventStoreRunNeeded
				} else {
					ev = r.completionEvent()
				}
			}

		case StateHardwareStore:
			err = r.createStoreJobs(ctx, plan, res.Inventory)
			if err == nil {
				ev = r.completionEvent()
			}

		case StateHumanVerification:
			ev, err = r.verify(ctx, plan.ID)

		case StateErrorHandler:
			ev, err = r.handleError(ctx, plan.ID)
			if err != nil {
				return res, err
			}

		default:
			return res, &ErrInvalidTransition{From: state, Event: ev}
		}

		if err != nil {
			lastErr = err
			ev = EventStageFailed
		}

		next, terr := Next(state, ev)
		if terr != nil {
			return res, terr
		}
		res.Trail = append(res.Trail, Transition{From: state, Event: ev, To: next, At: time.Now().UTC()})
		r.logger.Debug().
			Str("plan_id", plan.ID).
			Str("from", string(state)).
			Str("event", string(ev)).
			Str("to", string(next)).
			Msg("Transition")
		state = next
	}

	res.FinalState = state
	return r.finish(ctx, res, state, start, lastErr)
}

// completionEvent decides between the verification gate and immediate
// completion.
func (r *Runner) completionEvent() Event {
	if r.autoApprove {
		return EventStageCompleted
	}
	return EventApprovalRequired
}

// createStoreJobs runs the hardware store step and records failures on
// the plan so the error handler sees them.
func (r *Runner) createStoreJobs(ctx context.Context, plan *store.Plan, inv *inventory.Result) error {
	if err := r.store.UpdatePlanStatus(ctx, plan.ID, store.PlanStatusHardwareStore, "hardware_store_creation"); err != nil {
		return err
	}

	created, err := r.inventory.CreateStoreJobs(ctx, plan.ID, plan.UserID, plan.Date, inv)
	if err != nil {
		r.recordError(ctx, plan.ID, store.ErrKindAgentFailure, "hardware_store_creation", err)
		return err
	}

	r.logger.Info().
		Str("plan_id", plan.ID).
		Int("store_jobs", len(created)).
		Msg("Hardware store jobs created")
	return nil
}

// verify parks the plan at the gate and waits for a decision. A timeout
// or cancellation marks the plan timed out; the error handler gives up on
// it because the recorded state is not retryable.
func (r *Runner) verify(ctx context.Context, planID string) (Event, error) {
	step := ApprovalStepFor(StateComplete)
	if err := r.store.SetAwaitingVerification(ctx, planID, step); err != nil {
		r.recordError(ctx, planID, store.ErrKindAgentFailure, "human_verification", err)
		return EventStageFailed, err
	}

	approved, err := r.awaitApproval(ctx, planID)
	if err != nil {
		// Another process may have resolved the gate by writing the
		// plan directly. Honor that before declaring a timeout.
		if plan, gerr := r.store.GetPlan(ctx, planID); gerr == nil {
			switch plan.Status {
			case store.PlanStatusApproved:
				return EventApproved, nil
			case store.PlanStatusCancelled:
				return EventRejected, nil
			}
		}
		if merr := r.store.MarkPlanTimedOut(ctx, planID, err.Error()); merr != nil {
			r.logger.Error().Err(merr).Str("plan_id", planID).Msg("Failed to record gate timeout")
		}
		return EventStageFailed, err
	}

	if approved {
		return EventApproved, nil
	}
	return EventRejected, nil
}

// handleError is the shared error handler: restart from dispatch while
// the failure is retryable and the budget lasts, otherwise give up and
// leave the plan in its terminal error status.
func (r *Runner) handleError(ctx context.Context, planID string) (Event, error) {
	plan, err := r.store.GetPlan(ctx, planID)
	if err != nil {
		return EventGiveUp, err
	}

	retryable := plan.ErrorState == nil || plan.ErrorState.RetrySuggested
	if retryable && plan.RetryCount+1 < r.maxRetries {
		if err := r.store.RestartPlan(ctx, planID); err != nil {
			return EventGiveUp, err
		}
		observability.PlanRetried()
		r.logger.Warn().
			Str("plan_id", planID).
			Int("attempt", plan.RetryCount+2).
			Msg("Restarting pipeline after failure")
		return EventRetry, nil
	}

	r.logger.Error().
		Str("plan_id", planID).
		Int("failed_attempts", plan.RetryCount+1).
		Msg("Retry budget exhausted, plan failed")
	return EventGiveUp, nil
}

// finish applies the terminal side effect and completion metrics.
func (r *Runner) finish(ctx context.Context, res *RunResult, state State, start time.Time, lastErr error) (*RunResult, error) {
	planID := res.Plan.ID

	switch state {
	case StateComplete:
		var distanceKm float64
		var durationMins int
		if res.Route != nil {
			distanceKm = res.Route.TotalKm
			durationMins = res.Route.TotalMins
		}
		var storeJobs, shoppingItems, alerts int
		if res.Inventory != nil {
			shoppingItems = len(res.Inventory.ShoppingList)
			alerts = len(res.Inventory.Alerts)
			if res.Inventory.StoreRun != nil {
				storeJobs = len(res.Inventory.StoreRun.CreatedJobIDs)
			}
		}
		if err := r.store.CompletePlan(ctx, planID, durationMins, distanceKm); err != nil {
			return res, err
		}
		observability.PlanFinished("approved")
		r.logger.Info().
			Str("plan_id", planID).
			Int("jobs", len(res.Plan.JobIDs)).
			Int("store_jobs", storeJobs).
			Float64("distance_km", distanceKm).
			Int("shopping_items", shoppingItems).
			Int("alerts", alerts).
			Dur("wall_clock", time.Since(start)).
			Msg("Plan approved")

	case StateCancelled:
		if err := r.store.CancelPlan(ctx, planID); err != nil {
			return res, err
		}
		observability.PlanFinished("cancelled")
		r.logger.Info().Str("plan_id", planID).Msg("Plan cancelled")

	case StateFailed:
		// Status is already error via the recorded failure.
		observability.PlanFinished("error")
		if lastErr == nil {
			lastErr = errors.New("plan failed")
		}
	}

	if plan, err := r.store.GetPlan(ctx, planID); err == nil {
		res.Plan = plan
	}

	if state == StateFailed {
		return res, fmt.Errorf("plan %s failed: %w", planID, lastErr)
	}
	return res, nil
}

func (r *Runner) recordError(ctx context.Context, planID string, kind store.ErrorKind, step string, err error) {
	observability.ObserveStageError(step, string(kind))
	es := store.ErrorState{
		Kind:           kind,
		Message:        err.Error(),
		FailedStep:     step,
		RetrySuggested: true,
	}
	if serr := r.store.SetPlanError(ctx, planID, es); serr != nil {
		r.logger.Error().Err(serr).Str("plan_id", planID).Msg("Failed to record error state")
	}
}

// awaitApproval blocks until Resolve is called for the plan, the timeout
// elapses, or the context is cancelled.
func (r *Runner) awaitApproval(ctx context.Context, planID string) (bool, error) {
	if r.autoApprove {
		return true, nil
	}

	ch := make(chan bool, 1)
	r.mu.Lock()
	r.waiters[planID] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.waiters, planID)
		r.mu.Unlock()
	}()

	var timeout <-chan time.Time
	if r.approvalTimeout > 0 {
		t := time.NewTimer(r.approvalTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case approved := <-ch:
		return approved, nil
	case <-timeout:
		return false, errApprovalTimeout
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve delivers a verification decision to a run parked at the gate.
// It reports whether a run was waiting for this plan.
func (r *Runner) Resolve(planID string, approved bool) bool {
	r.mu.Lock()
	ch, ok := r.waiters[planID]
	if ok {
		delete(r.waiters, planID)
	}
	r.mu.Unlock()

	if ok {
		ch <- approved
	}
	return ok
}
