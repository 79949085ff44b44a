package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/neodify/neodify/internal/config"
	"github.com/neodify/neodify/internal/observability"
	"github.com/neodify/neodify/pkg/agent"
	"github.com/neodify/neodify/pkg/conversation"
	"github.com/neodify/neodify/pkg/gateway"
	"github.com/neodify/neodify/pkg/provider"
	"github.com/neodify/neodify/pkg/run"
	"github.com/neodify/neodify/pkg/schedule"
	"github.com/neodify/neodify/pkg/skill"
	"github.com/neodify/neodify/pkg/store"
)

// Daemon wires all components together and owns their lifecycle.
type Daemon struct {
	cfg    *config.Config
	logger zerolog.Logger

	store   *store.Store
	watcher *skill.Watcher
	runner  *schedule.Runner
	gateway *gateway.Server
}

// New builds the full component graph from configuration.
func New(cfg *config.Config, logger zerolog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	observability.EnsureRegistered()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := observability.InitAuditLogger(filepath.Join(cfg.DataDir, "audit.log")); err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "neodify.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	bus := run.NewBus(logger)
	guard := run.NewGuard()
	resolver := agent.NewResolver(st, logger)
	tracker := conversation.NewTracker(st, cfg.DataDir, logger)

	skillFiles := skill.NewFiles(cfg.DataDir, logger)
	skillRuntime := skill.NewRuntime(skillFiles, logger)
	skillSyncer := skill.NewSyncer(st, skillFiles, logger)
	watcher, err := skill.NewWatcher(skill.WatcherConfig{
		Syncer:       skillSyncer,
		PollInterval: time.Duration(cfg.Skills.SyncIntervalSec) * time.Second,
		Logger:       logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	providers := &provider.Factory{
		AnthropicAPIKey: cfg.Providers.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.Providers.OpenAIAPIKey,
	}

	runs, err := run.NewService(run.Config{
		Store:         st,
		Resolver:      resolver,
		Conversations: tracker,
		Runtime:       skillRuntime,
		Providers:     providers,
		Bus:           bus,
		Guard:         guard,
		Logger:        logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	schedules, err := schedule.NewService(st, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	runner := schedule.NewRunner(st, runs, logger)

	auth, err := gateway.NewAuthService(gateway.AuthConfig{
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
		Secret:   cfg.Auth.TokenSecret,
		TokenTTL: time.Duration(cfg.Auth.TokenTTLSec) * time.Second,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	gw, err := gateway.NewServer(gateway.Config{
		Port:      cfg.Gateway.Port,
		APIKey:    cfg.Gateway.APIKey,
		Auth:      auth,
		Store:     st,
		Agents:    agent.NewService(st, logger),
		Runs:      runs,
		Bus:       bus,
		Skills:    skillFiles,
		Syncer:    skillSyncer,
		Schedules: schedules,
		Logger:    logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &Daemon{
		cfg:     cfg,
		logger:  logger.With().Str("component", "daemon").Logger(),
		store:   st,
		watcher: watcher,
		runner:  runner,
		gateway: gw,
	}, nil
}

// Start brings the daemon up: skill watcher, schedule runner, gateway.
func (d *Daemon) Start() error {
	if err := d.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start skill watcher: %w", err)
	}
	if err := d.runner.Start(); err != nil {
		return fmt.Errorf("failed to start schedule runner: %w", err)
	}
	if err := d.gateway.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	d.logger.Info().Str("data_dir", d.cfg.DataDir).Msg("daemon started")
	return nil
}

// Stop shuts components down in reverse start order.
func (d *Daemon) Stop() error {
	var firstErr error
	if err := d.gateway.Stop(); err != nil {
		firstErr = err
	}
	d.runner.Stop()
	if err := d.watcher.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := d.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := observability.GetAuditLogger().Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	d.logger.Info().Msg("daemon stopped")
	return firstErr
}
