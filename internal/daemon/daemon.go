package daemon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/fieldops/fieldops/internal/config"
	"github.com/fieldops/fieldops/internal/logger"
	"github.com/fieldops/fieldops/pkg/agent"
	"github.com/fieldops/fieldops/pkg/dispatch"
	"github.com/fieldops/fieldops/pkg/gateway"
	"github.com/fieldops/fieldops/pkg/inventory"
	"github.com/fieldops/fieldops/pkg/janitor"
	"github.com/fieldops/fieldops/pkg/prefs"
	"github.com/fieldops/fieldops/pkg/route"
	"github.com/fieldops/fieldops/pkg/store"
	"github.com/fieldops/fieldops/pkg/workflow"
)

// Daemon wires the store, the planning workflow, the gateway, and the
// janitor together and manages their lifecycle.
type Daemon struct {
	cfg        *config.Config
	configPath string
	log        *logger.Logger
	zlog       zerolog.Logger

	store    *store.Store
	workflow *workflow.Service
	gateway  *gateway.Server
	janitor  *janitor.Service

	cfgWatcher *fsnotify.Watcher
	watchDone  chan struct{}
}

// New builds the daemon from configuration. The route solver and the
// supplier catalog are the stand-in implementations; swapping in real
// ones only touches this constructor.
func New(cfg *config.Config, configPath string, log *logger.Logger) (*Daemon, error) {
	zlog := log.GetZerolog()

	st, err := store.Open(cfg.DatabasePath, zlog)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	provider, err := agent.NewProvider(cfg.AI.Provider, cfg.AI.APIKey)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	runner := workflow.NewRunner(workflow.RunnerConfig{
		Store: st,
		Dispatch: dispatch.NewStage(dispatch.Config{
			Provider:    provider,
			Store:       st,
			Logger:      zlog,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
		}),
		Route: route.NewStage(route.Config{
			Solver: &route.StandInSolver{},
			Store:  st,
			Logger: zlog,
		}),
		Inventory: inventory.NewStage(inventory.Config{
			Catalog: &inventory.StandInCatalog{},
			Store:   st,
			Logger:  zlog,
		}),
		Logger:          zlog,
		MaxRetries:      cfg.Workflow.MaxRetries,
		AutoApprove:     cfg.Workflow.AutoApprove,
		ApprovalTimeout: cfg.Workflow.ApprovalTimeout,
	})

	svc := workflow.NewService(workflow.ServiceConfig{
		Store:  st,
		Prefs:  prefs.NewService(st),
		Runner: runner,
		Logger: zlog,
	})

	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		log:        log,
		zlog:       zlog.With().Str("component", "daemon").Logger(),
		store:      st,
		workflow:   svc,
	}

	if cfg.Gateway.Enabled {
		gw, err := gateway.NewServer(gateway.Config{
			Port:         cfg.Gateway.Port,
			SharedSecret: cfg.Gateway.SharedSecret,
			Store:        st,
			Workflow:     svc,
			Logger:       zlog,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create gateway: %w", err)
		}
		d.gateway = gw
	}

	if cfg.Janitor.Enabled {
		jn, err := janitor.NewService(janitor.Config{
			Store:      st,
			Logger:     zlog,
			SweepEvery: cfg.Janitor.SweepEvery,
			StaleAfter: cfg.Janitor.StaleAfter,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create janitor: %w", err)
		}
		d.janitor = jn
	}

	return d, nil
}

// Workflow exposes the planning service for in-process callers.
func (d *Daemon) Workflow() *workflow.Service {
	return d.workflow
}

// Store exposes the data store for in-process callers.
func (d *Daemon) Store() *store.Store {
	return d.store
}

// Start brings the components up and begins watching the config file.
func (d *Daemon) Start() error {
	if d.gateway != nil {
		if err := d.gateway.Start(); err != nil {
			return fmt.Errorf("failed to start gateway: %w", err)
		}
	}
	if d.janitor != nil {
		d.janitor.Start()
	}
	if err := d.watchConfig(); err != nil {
		d.zlog.Warn().Err(err).Msg("Config watching disabled")
	}

	d.zlog.Info().
		Bool("gateway", d.gateway != nil).
		Bool("janitor", d.janitor != nil).
		Msg("Daemon started")
	return nil
}

// Stop shuts the components down in reverse order.
func (d *Daemon) Stop() error {
	if d.cfgWatcher != nil {
		d.cfgWatcher.Close()
		<-d.watchDone
	}
	if d.janitor != nil {
		d.janitor.Stop()
	}
	if d.gateway != nil {
		if err := d.gateway.Stop(); err != nil {
			d.zlog.Error().Err(err).Msg("Gateway shutdown error")
		}
	}
	if err := d.store.Close(); err != nil {
		d.zlog.Error().Err(err).Msg("Store close error")
	}

	d.zlog.Info().Msg("Daemon stopped")
	return nil
}

// Wait blocks until the context is cancelled, then stops the daemon.
func (d *Daemon) Wait(ctx context.Context) error {
	<-ctx.Done()
	return d.Stop()
}

// watchConfig applies log-level changes from the config file without a
// restart. Other settings still require one.
func (d *Daemon) watchConfig() error {
	if d.configPath == "" {
		return fmt.Errorf("no config path to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(d.configPath)); err != nil {
		watcher.Close()
		return err
	}

	d.cfgWatcher = watcher
	d.watchDone = make(chan struct{})

	go func() {
		defer close(d.watchDone)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != d.configPath || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				d.reloadLogLevel()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.zlog.Warn().Err(err).Msg("Config watcher error")
			}
		}
	}()

	return nil
}

func (d *Daemon) reloadLogLevel() {
	fresh, err := config.NewLoader(d.configPath).Load()
	if err != nil {
		d.zlog.Warn().Err(err).Msg("Config reload failed")
		return
	}
	if fresh.Logging.Level == d.cfg.Logging.Level {
		return
	}

	d.zlog.Info().
		Str("from", d.cfg.Logging.Level).
		Str("to", fresh.Logging.Level).
		Msg("Applying new log level")
	d.log.SetLevel(fresh.Logging.Level)
	d.cfg.Logging.Level = fresh.Logging.Level
}
