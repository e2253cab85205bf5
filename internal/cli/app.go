package cli

import (
	"log/slog"

	"github.com/rivercweiss/chime/internal/config"
	"github.com/rivercweiss/chime/internal/engine"
	"github.com/rivercweiss/chime/internal/host"
	"github.com/rivercweiss/chime/internal/ics"
	"github.com/rivercweiss/chime/internal/rules"
	"github.com/rivercweiss/chime/internal/store"
)

// app wires the engine's four ports from configuration. Every command
// that runs passes goes through here.
type app struct {
	cfg     *config.Config
	store   *store.Store
	rules   *rules.Store
	engine  *engine.Engine
	metrics *engine.Metrics
}

func openApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	sources := make([]ics.Source, 0, len(cfg.ICS))
	for _, s := range cfg.ICS {
		sources = append(sources, ics.Source{ID: s.ID, Name: s.Name, URL: s.URL})
	}

	ruleStore := rules.NewStore(cfg.RulesDir)
	metrics := engine.NewMetrics()

	// There is no wake-alarm integration on this platform yet; the
	// in-process backend keeps registrations observable for the
	// reconciler within a daemon run.
	scheduler := host.NewMemoryScheduler(true)

	eng, err := engine.New(st, ics.NewClient(sources), ruleStore, scheduler,
		engine.WithLookahead(cfg.Horizon()),
		engine.WithAllDayAlarmTime(cfg.AllDayWallClock()),
		engine.WithDuplicateHandling(cfg.DuplicateMode()),
		engine.WithMetrics(metrics),
		engine.WithRecoveryTracker(engine.NewRecoveryTracker(
			cfg.Recovery.MaxAttempts,
			cfg.Recovery.Backoff.Std(),
			cfg.Recovery.SweepCooldown.Std(),
			0,
		)),
	)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to build engine", err)
	}

	return &app{
		cfg:     cfg,
		store:   st,
		rules:   ruleStore,
		engine:  eng,
		metrics: metrics,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
