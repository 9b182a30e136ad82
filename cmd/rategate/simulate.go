package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pgvanniekerk/rategate/internal/simulate"
	"github.com/pgvanniekerk/rategate/pkg/config"
	"github.com/pgvanniekerk/rategate/pkg/factory"
)

var (
	simCallers     int
	simDuration    time.Duration
	simArrivalRate float64
	simMaxCount    int
	simResetSpan   time.Duration
	simWork        time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run concurrent callers through a rate gate",
	Long: `Run concurrent callers through a rate gate and report how many were admitted.

Limits come from the configuration file and RATEGATE_* environment variables.
Flags given on the command line override both.

When metrics are enabled a Prometheus endpoint is served for the length of the run.
When redis is enabled admission counters are written to Redis as well.`,
	Example: `  rategate simulate --max-count 5 --reset-span 200ms --callers 100 --duration 2s
  rategate simulate --config rategate.yaml --arrival-rate 50`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simCallers, "callers", config.DefaultDemoCallers, "number of concurrent callers")
	simulateCmd.Flags().DurationVar(&simDuration, "duration", config.DefaultDemoDuration, "how long to run")
	simulateCmd.Flags().Float64Var(&simArrivalRate, "arrival-rate", 0, "call attempts per second across all callers (0 = unpaced)")
	simulateCmd.Flags().IntVar(&simMaxCount, "max-count", config.DefaultGateMaxCount, "admissions allowed per reset span")
	simulateCmd.Flags().DurationVar(&simResetSpan, "reset-span", config.DefaultGateResetSpan, "length of the rolling window")
	simulateCmd.Flags().DurationVar(&simWork, "work", 0, "time each admitted call holds its slot")

	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.ReadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}
	applySimulateFlags(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger, err := cfg.Logging.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	recorder := factory.RecorderFromConfig(cfg, reg, logger)

	gate, err := factory.FromConfig(cfg, logger, recorder)
	if err != nil {
		return err
	}
	defer gate.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		shutdown := serveMetrics(cfg.Metrics, reg, logger)
		defer shutdown()
	}

	report, err := simulate.Run(ctx, gate, simulate.Options{
		Callers:     cfg.Demo.Callers,
		Duration:    cfg.Demo.Duration,
		ArrivalRate: cfg.Demo.ArrivalRate,
		Work:        simWork,
		Logger:      logger,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	printReport(cmd.OutOrStdout(), cfg, report)
	return nil
}

// applySimulateFlags copies the flags the user actually set into cfg.
func applySimulateFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("callers") {
		cfg.Demo.Callers = simCallers
	}
	if flags.Changed("duration") {
		cfg.Demo.Duration = simDuration
	}
	if flags.Changed("arrival-rate") {
		cfg.Demo.ArrivalRate = simArrivalRate
	}
	if flags.Changed("max-count") {
		cfg.Gate.MaxCount = simMaxCount
	}
	if flags.Changed("reset-span") {
		cfg.Gate.ResetSpan = simResetSpan
	}
}

// serveMetrics starts the Prometheus endpoint and returns a func that shuts it down.
func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", slog.String("address", cfg.Address), slog.String("path", cfg.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printReport(w io.Writer, cfg *config.Config, report simulate.Report) {
	fmt.Fprintf(w, "Gate:            %d per %s\n", cfg.Gate.MaxCount, cfg.Gate.ResetSpan)
	fmt.Fprintf(w, "Callers:         %d for %s\n", cfg.Demo.Callers, cfg.Demo.Duration)
	fmt.Fprintf(w, "Admissions:      %d (expected about %d)\n", report.Admissions, report.Expected)
	fmt.Fprintf(w, "Max in a window: %d\n", report.MaxInWindow)
	fmt.Fprintf(w, "Delayed:         %d\n", report.Stats.Delayed)
	fmt.Fprintf(w, "Canceled:        %d waiting for a slot, %d waiting for the window\n",
		report.Stats.CanceledWaitingForSlot, report.Stats.CanceledWaitingForWindow)
	fmt.Fprintf(w, "Elapsed:         %s\n", report.Elapsed.Round(time.Millisecond))
}
