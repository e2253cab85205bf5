package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command, the long-lived daemon mode.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduling daemon",
		Long: `Run chime as a daemon: an immediate scheduling pass at startup,
then periodic scheduling and reconciliation passes on the configured
cron schedules. If metrics_listen is set, Prometheus metrics are served
on that address.

Example:
  chime run --config chime.yaml
  chime run -c chime.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(rootOpts, cmd)
		},
	}
}

func runDaemon(rootOpts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var metricsSrv *http.Server
	if a.cfg.MetricsListen != "" {
		metricsSrv = serveMetrics(a)
	}

	if !a.engine.CanScheduleExactlyNow(ctx) {
		slog.Warn("host cannot schedule exact instants; alarms may fire late")
	}

	schedule := func() {
		res, err := a.engine.RunSchedulingPass(ctx)
		if err != nil {
			slog.Error("scheduling pass failed", "error", err)
			return
		}
		slog.Info("scheduling pass", "result", res.Message)
	}
	reconcile := func() {
		res, err := a.engine.RunReconciliationPass(ctx)
		if err != nil {
			slog.Error("reconciliation pass failed", "error", err)
			return
		}
		slog.Info("reconciliation pass", "result", res.Message)
	}

	c := cron.New()
	if _, err := c.AddFunc(a.cfg.ScheduleCron, schedule); err != nil {
		return WrapExitError(ExitCommandError, "invalid schedule_cron", err)
	}
	if _, err := c.AddFunc(a.cfg.ReconcileCron, reconcile); err != nil {
		return WrapExitError(ExitCommandError, "invalid reconcile_cron", err)
	}

	slog.Info("daemon starting",
		"db", a.cfg.Database,
		"rules_dir", a.cfg.RulesDir,
		"sources", len(a.cfg.ICS),
		"schedule_cron", a.cfg.ScheduleCron,
		"reconcile_cron", a.cfg.ReconcileCron,
	)
	fmt.Fprintln(cmd.OutOrStdout(), "Daemon started. Press Ctrl-C to stop.")

	schedule()
	c.Start()

	<-ctx.Done()

	cronCtx := c.Stop()
	<-cronCtx.Done()

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown", "error", err)
		}
	}

	slog.Info("daemon stopped gracefully")
	return nil
}

func serveMetrics(a *app) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())

	srv := &http.Server{
		Addr:    a.cfg.MetricsListen,
		Handler: mux,
	}
	go func() {
		slog.Info("metrics server listening", "addr", a.cfg.MetricsListen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
