package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/blesim/internal/scenario"
)

// metricsLingerSeconds keeps the metrics endpoint serving after a run
// completes, so a scrape in flight when the simulation finishes still
// gets a consistent final snapshot.
const metricsLingerSeconds = 5

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a scenario to completion and print final statistics",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runScenario(scenarioPath)
		},
	}
}

func runScenario(path string) error {
	cfg, err := loadScenario(path)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	logger.Info("blesim starting",
		slog.Int("nodes", len(cfg.Nodes)),
		slog.Int("connections", len(cfg.Connections)),
		slog.Float64("duration_seconds", cfg.DurationSeconds),
	)

	sim, err := buildSimulation(cfg, logger)
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := newMetricsServer(cfg.Metrics, sim.registry)

	g, gCtx := errgroup.WithContext(ctx)
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		sim.run()
		printSummary(os.Stdout, sim)

		select {
		case <-gCtx.Done():
		case <-time.After(metricsLingerSeconds * time.Second):
		}
		return metricsSrv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	logger.Info("blesim stopped")
	return nil
}

// printSummary writes one final line per node tracked by the console
// registry, giving the number of connections still active on it.
func printSummary(w *os.File, sim *simulation) {
	for _, name := range sim.reg.NodeNames() {
		n := sim.reg.Node(name)
		fmt.Fprintf(w, "%s: %d active connection(s)\n", name, n.ActiveConnectionCount())
	}
}

// newLogger builds a structured logger from a scenario's log section,
// grounded on the teacher's newLoggerWithLevel (cmd/gobfd/main.go) minus
// the SIGHUP-reloadable level, since blesim is a one-shot batch job.
func newLogger(cfg scenario.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: scenario.ParseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// listenAndServe mirrors the teacher's cmd/gobfd/main.go helper of the
// same name: listen via lc (for Go's noctx linting), serve until the
// server shuts down, and treat ErrServerClosed as a clean exit.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer builds the Prometheus metrics HTTP server.
func newMetricsServer(cfg scenario.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
