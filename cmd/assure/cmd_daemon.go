package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudprobe/assure/config"
	"github.com/cloudprobe/assure/telemetry"
)

var (
	daemonConfigPath  string
	daemonMetricsPort int
	daemonIngestDir   string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run continuous compliance assessment",
	Long: `Run Assure in daemon mode for continuous compliance assessment.

The daemon watches an ingest directory for discovery results, evaluates
each batch as it arrives, and periodically reloads the rule documents
and recomputes control fulfillment.

Features:
- Discovery result ingestion from a drop directory
- Periodic rule reload and full re-aggregation
- Prometheus metrics on /metrics endpoint
- Health check on /health
- Graceful shutdown on SIGTERM/SIGINT`,
	Example: `  assure daemon --config assure.yaml
  assure daemon --config assure.yaml --ingest ./scans
  assure daemon --config assure.yaml --metrics-port 9090`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVarP(&daemonConfigPath, "config", "c", "assure.yaml", "Configuration file")
	daemonCmd.Flags().IntVar(&daemonMetricsPort, "metrics-port", 2112, "Metrics HTTP server port")
	daemonCmd.Flags().StringVar(&daemonIngestDir, "ingest", "", "Directory polled for discovery result JSON files")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(daemonConfigPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	shutdownTelemetry := initTelemetry(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.Insecure)
	defer shutdownTelemetry()

	engine, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	log.Info().
		Int("rules", engine.rules.Count()).
		Int("certifications", len(engine.certifications.Certifications())).
		Dur("interval", cfg.Schedule.Interval).
		Msg("daemon starting")

	var group run.Group

	// SIGTERM/SIGINT
	group.Add(run.SignalHandler(ctx, syscall.SIGTERM, syscall.SIGINT))

	// metrics and health endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", daemonMetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}
	group.Add(func() error {
		log.Info().Str("addr", listener.Addr().String()).Msg("metrics server listening")
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	// periodic rule reload and re-aggregation
	loopCtx, cancelLoop := context.WithCancel(ctx)
	group.Add(func() error {
		return assessmentLoop(loopCtx, cfg, engine)
	}, func(error) {
		cancelLoop()
	})

	err = group.Run()
	if err != nil && !errors.As(err, &run.SignalError{}) {
		return err
	}

	log.Info().Msg("daemon stopped")
	return nil
}

// assessmentLoop ingests dropped discovery results and periodically
// reloads the rules and recomputes every active control.
func assessmentLoop(ctx context.Context, cfg *config.Config, engine *engine) error {
	ticker := time.NewTicker(cfg.Schedule.Interval)
	defer ticker.Stop()

	ingest := time.NewTicker(2 * time.Second)
	defer ingest.Stop()
	processed := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ingest.C:
			ingestScans(ctx, engine, processed)
		case <-ticker.C:
			if err := engine.rules.Load(ctx, cfg.RulesDir); err != nil {
				log.Warn().Err(err).Msg("rule reload failed, keeping previous rules")
			}
			engine.replayScans(ctx)
			engine.certifications.UpdateCertifications(ctx)
		}
	}
}

// ingestScans feeds every not yet processed JSON file in the ingest
// directory through the pipeline. Files are left in place; the daemon
// remembers what it has seen.
func ingestScans(ctx context.Context, engine *engine, processed map[string]bool) {
	if daemonIngestDir == "" {
		return
	}

	entries, err := os.ReadDir(daemonIngestDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", daemonIngestDir).Msg("cannot read ingest directory")
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || processed[entry.Name()] {
			continue
		}
		processed[entry.Name()] = true

		path := filepath.Join(daemonIngestDir, entry.Name())
		result, err := loadDiscovery(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("skipping malformed discovery result")
			continue
		}

		engine.handleScan(ctx, result)
	}
}
