package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldops/fieldops/pkg/prefs"
	"github.com/fieldops/fieldops/pkg/route"
	"github.com/fieldops/fieldops/pkg/store"
)

// Service is the workflow entry point used by the CLI and the gateway.
type Service struct {
	store  *store.Store
	prefs  *prefs.Service
	runner *Runner
	logger zerolog.Logger
}

// ServiceConfig holds service dependencies.
type ServiceConfig struct {
	Store  *store.Store
	Prefs  *prefs.Service
	Runner *Runner
	Logger zerolog.Logger
}

// NewService creates the workflow service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:  cfg.Store,
		prefs:  cfg.Prefs,
		runner: cfg.Runner,
		logger: cfg.Logger.With().Str("component", "workflow.service").Logger(),
	}
}

// RunPlan creates a pending plan for the user, date, and job set and
// drives it to a terminal state. Overrides, when present, are merged over
// the user's stored preferences for this run only. An empty job list or a
// store failure aborts before any plan record exists.
func (s *Service) RunPlan(ctx context.Context, userID string, jobIDs []string, date string, overrides json.RawMessage) (*RunResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if len(jobIDs) == 0 {
		return nil, fmt.Errorf("job id list is empty")
	}
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	p, err := s.prefs.LoadWithOverrides(ctx, userID, overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	plan, err := s.store.CreatePlan(ctx, userID, date, jobIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	s.logger.Info().
		Str("plan_id", plan.ID).
		Str("user_id", userID).
		Str("date", date).
		Int("jobs", len(jobIDs)).
		Msg("Starting daily plan")

	return s.runner.Run(ctx, plan, p)
}

// Approve resolves the verification gate for a plan. When the run is
// in flight the decision is delivered to it; a plan parked from a
// previous process is finalized directly from its persisted outputs.
func (s *Service) Approve(ctx context.Context, planID string, approved bool) error {
	if s.runner.Resolve(planID, approved) {
		return nil
	}

	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if plan.Status != store.PlanStatusAwaitingVerification {
		return fmt.Errorf("plan %s is not awaiting verification (status %s)", planID, plan.Status)
	}

	if !approved {
		return s.store.CancelPlan(ctx, planID)
	}

	var rt route.Result
	if len(plan.RouteOutput) > 0 {
		if err := json.Unmarshal(plan.RouteOutput, &rt); err != nil {
			return fmt.Errorf("failed to decode route output: %w", err)
		}
	}
	return s.store.CompletePlan(ctx, planID, rt.TotalMins, rt.TotalKm)
}

// Plan returns the current plan record.
func (s *Service) Plan(ctx context.Context, planID string) (*store.Plan, error) {
	return s.store.GetPlan(ctx, planID)
}
