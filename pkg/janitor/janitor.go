package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/fieldops/fieldops/internal/observability"
	"github.com/fieldops/fieldops/pkg/store"
)

// Service sweeps plans stuck in a non-terminal status past the stale
// window into a terminal timeout error. A crashed or abandoned run is
// otherwise invisible to subscribers waiting on its plan.
type Service struct {
	store      *store.Store
	logger     zerolog.Logger
	staleAfter time.Duration
	cron       *cron.Cron
}

// Config holds janitor settings.
type Config struct {
	Store  *store.Store
	Logger zerolog.Logger

	// SweepEvery is the cron cadence. Zero means 5 minutes.
	SweepEvery time.Duration
	// StaleAfter is how long a non-terminal plan may sit without an
	// update before it is timed out. Zero means 30 minutes.
	StaleAfter time.Duration
}

// NewService creates the janitor and schedules its sweep.
func NewService(cfg Config) (*Service, error) {
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}

	s := &Service{
		store:      cfg.Store,
		logger:     cfg.Logger.With().Str("component", "janitor").Logger(),
		staleAfter: cfg.StaleAfter,
		cron:       cron.New(),
	}

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", cfg.SweepEvery), func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Sweep failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule sweep: %w", err)
	}

	return s, nil
}

// Start begins the sweep schedule.
func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info().Dur("stale_after", s.staleAfter).Msg("Janitor started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Janitor stopped")
}

// Sweep marks every stale non-terminal plan as timed out and returns how
// many were swept.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.staleAfter)
	plans, err := s.store.ListStalePlans(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale plans: %w", err)
	}

	swept := 0
	for _, plan := range plans {
		msg := fmt.Sprintf("plan stalled in step %q for over %s", plan.CurrentStep, s.staleAfter)
		if err := s.store.MarkPlanTimedOut(ctx, plan.ID, msg); err != nil {
			s.logger.Error().Err(err).Str("plan_id", plan.ID).Msg("Failed to time out stale plan")
			continue
		}
		observability.StalePlanSwept()
		swept++
		s.logger.Warn().
			Str("plan_id", plan.ID).
			Str("user_id", plan.UserID).
			Str("status", string(plan.Status)).
			Msg("Timed out stale plan")
	}

	return swept, nil
}
