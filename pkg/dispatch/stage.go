package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldops/fieldops/internal/observability"
	"github.com/fieldops/fieldops/pkg/agent"
	"github.com/fieldops/fieldops/pkg/prefs"
	"github.com/fieldops/fieldops/pkg/store"
)

const systemPrompt = `You are a dispatch planner for a field-service technician.
Given the day's jobs and the technician's preferences, produce a prioritized
schedule. Respond with a single JSON object of the form:
{
  "prioritized_jobs": [{"job_id": "...", "rank": 1, "scheduled_slot": "HH:MM", "reason": "..."}],
  "scheduling_constraints": {},
  "recommendations": ["..."],
  "agent_reasoning": "..."
}
Emergency and urgent jobs come first. Respect the work hours and the
emergency response target.`

// Stage runs dispatch prioritization for a plan.
type Stage struct {
	provider    agent.LLMProvider
	store       *store.Store
	logger      zerolog.Logger
	model       string
	temperature float64
	maxTokens   int
}

// Config holds dispatch stage dependencies.
type Config struct {
	Provider    agent.LLMProvider
	Store       *store.Store
	Logger      zerolog.Logger
	Model       string
	Temperature float64
	MaxTokens   int
}

// NewStage creates a dispatch stage.
func NewStage(cfg Config) *Stage {
	return &Stage{
		provider:    cfg.Provider,
		store:       cfg.Store,
		logger:      cfg.Logger.With().Str("stage", "dispatch").Logger(),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Run executes the dispatch stage: fetch jobs and preferences, ask the
// model for an ordering, and fall back to the deterministic sorter when
// the reply fails the response contract. The plan moves to dispatch while
// running and dispatch_complete with the output on success. Any error is
// recorded on the plan with retry suggested and returned to the caller;
// no partial output is persisted.
func (st *Stage) Run(ctx context.Context, planID, userID string, jobIDs []string, date string, p prefs.Preferences) (*Result, error) {
	start := time.Now()

	if len(jobIDs) == 0 {
		return nil, st.fail(ctx, planID, store.ErrKindValidation, errors.New("job id list is empty"), start)
	}

	if err := st.store.UpdatePlanStatus(ctx, planID, store.PlanStatusDispatch, "dispatch"); err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindValidation, err, start)
	}

	jobs, err := st.store.GetJobsByIDs(ctx, userID, jobIDs)
	if err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindValidation, err, start)
	}

	result, err := st.prioritize(ctx, jobs, date, p)
	if err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindAgentFailure, err, start)
	}

	if err := st.store.SetStageOutput(ctx, planID, "dispatch", result); err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindAgentFailure, err, start)
	}
	if err := st.store.UpdatePlanStatus(ctx, planID, store.PlanStatusDispatchComplete, "dispatch"); err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindAgentFailure, err, start)
	}

	observability.ObserveStageRun("dispatch", "ok", time.Since(start))
	st.logger.Info().
		Str("plan_id", planID).
		Int("jobs", len(result.PrioritizedJobs)).
		Msg("Dispatch complete")

	return result, nil
}

// prioritize asks the model for an ordering and validates the reply.
// Contract violations are an expected path, not an error: they take the
// named deterministic fallback.
func (st *Stage) prioritize(ctx context.Context, jobs []*store.Job, date string, p prefs.Preferences) (*Result, error) {
	resp, err := st.provider.Call(ctx, agent.LLMRequest{
		Model:        st.model,
		Temperature:  st.temperature,
		MaxTokens:    st.maxTokens,
		SystemPrompt: systemPrompt,
		Messages: []agent.Message{
			{Role: "user", Content: buildPrompt(jobs, date, p)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch model call failed: %w", err)
	}

	result, perr := ParseResponse(resp.Content)
	if perr != nil {
		st.logger.Warn().
			Err(perr).
			Msg("Model reply failed dispatch contract, using priority-sort fallback")
		return Fallback(jobs, p), nil
	}

	return result, nil
}

func (st *Stage) fail(ctx context.Context, planID string, kind store.ErrorKind, err error, start time.Time) error {
	observability.ObserveStageRun("dispatch", "error", time.Since(start))
	observability.ObserveStageError("dispatch", string(kind))

	es := store.ErrorState{
		Kind:           kind,
		Message:        err.Error(),
		FailedStep:     "dispatch",
		RetrySuggested: true,
	}
	if serr := st.store.SetPlanError(ctx, planID, es); serr != nil {
		st.logger.Error().Err(serr).Str("plan_id", planID).Msg("Failed to record dispatch error")
	}

	return fmt.Errorf("dispatch stage: %w", err)
}

func buildPrompt(jobs []*store.Job, date string, p prefs.Preferences) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Plan date: %s\n\nPreferences:\n%s\nJobs:\n", date, p.PromptParams())
	for _, job := range jobs {
		fmt.Fprintf(&b, "- id=%s type=%s priority=%s duration=%dmin title=%q address=%q\n",
			job.ID, job.Type, job.Priority, job.EstimatedDurationMins, job.Title, job.Address)
	}
	b.WriteString("\nReturn the JSON object only.")

	return b.String()
}
