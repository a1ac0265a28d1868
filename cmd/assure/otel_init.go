package main

import (
	"context"
	"log"
	"os"

	"github.com/cloudprobe/assure/telemetry"
)

// initTelemetry initializes OTEL for Assure
// Can be disabled with ASSURE_TELEMETRY_DISABLED=true
func initTelemetry(ctx context.Context, endpoint string, insecure bool) func() {
	if os.Getenv("ASSURE_TELEMETRY_DISABLED") == "true" {
		return func() {}
	}

	cfg := telemetry.Config{
		ServiceName:    "assure",
		ServiceVersion: version,
		Environment:    os.Getenv("ASSURE_ENVIRONMENT"),
		OTELEndpoint:   endpoint,
		Insecure:       insecure,
	}

	if cfg.OTELEndpoint == "" {
		cfg.OTELEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	shutdown, err := telemetry.InitOTEL(ctx, cfg)
	if err != nil {
		// Don't fail on telemetry problems - just warn and run without it
		log.Printf("telemetry initialization failed: %v", err)
		return func() {}
	}

	return func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("error shutting down telemetry: %v", err)
		}
	}
}
