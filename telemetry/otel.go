package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	// Tracer and Meter are the module-wide OTEL handles.
	Tracer = otel.Tracer("github.com/cloudprobe/assure")
	Meter  = otel.Meter("github.com/cloudprobe/assure")

	// PrometheusRegistry serves pull-based scraping next to OTLP push.
	PrometheusRegistry = promclient.NewRegistry()

	// Instruments.
	AssetsEvaluated   metric.Int64Counter
	RuleFailures      metric.Int64Counter
	AggregationPasses metric.Int64Counter
	PublishesDropped  metric.Int64Counter
	BatchDuration     metric.Float64Histogram
)

// The global meter delegates to the real provider once InitOTEL has run,
// so instruments created here are safe to use from library code at any
// point in the process lifetime.
func init() {
	if err := initInstruments(); err != nil {
		panic(fmt.Sprintf("telemetry: %v", err))
	}
}

// Config for OTEL initialization.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTELEndpoint   string
	Insecure       bool
}

// InitOTEL initializes tracing and dual-export metrics (Prometheus pull +
// OTLP push). The returned shutdown flushes both providers.
func InitOTEL(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	cfg = applyDefaults(cfg)

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceShutdown, err := setupTraceProvider(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("failed to setup traces: %w", err)
	}

	metricShutdown, err := setupMetricProvider(ctx, cfg, res)
	if err != nil {
		_ = traceShutdown(ctx)
		return nil, fmt.Errorf("failed to setup metrics: %w", err)
	}

	return func(ctx context.Context) error {
		var err error
		if e := traceShutdown(ctx); e != nil {
			err = fmt.Errorf("trace shutdown failed: %w", e)
		}
		if e := metricShutdown(ctx); e != nil && err == nil {
			err = fmt.Errorf("metric shutdown failed: %w", e)
		}
		return err
	}, nil
}

func applyDefaults(cfg Config) Config {
	if cfg.OTELEndpoint == "" {
		cfg.OTELEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "assure"
	}
	return cfg
}

func setupTraceProvider(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTELEndpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithDialOption(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return provider.Shutdown, nil
}

func setupMetricProvider(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	prometheusExporter, err := prometheus.New(prometheus.WithRegisterer(PrometheusRegistry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	readers := []sdkmetric.Reader{prometheusExporter}

	if cfg.OTELEndpoint != "" {
		otlpReader, err := createOTLPReader(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric reader: %w", err)
		}
		readers = append(readers, otlpReader)
	}

	providerOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, reader := range readers {
		providerOpts = append(providerOpts, sdkmetric.WithReader(reader))
	}

	provider := sdkmetric.NewMeterProvider(providerOpts...)
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

func createOTLPReader(ctx context.Context, cfg Config) (sdkmetric.Reader, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.OTELEndpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second)), nil
}

func initInstruments() error {
	var err error

	AssetsEvaluated, err = Meter.Int64Counter("assure.assets.evaluated.total",
		metric.WithDescription("Total number of rule evaluations against assets"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create assets_evaluated counter: %w", err)
	}

	RuleFailures, err = Meter.Int64Counter("assure.rules.failed.total",
		metric.WithDescription("Total number of rule evaluations with failed conditions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rule_failures counter: %w", err)
	}

	AggregationPasses, err = Meter.Int64Counter("assure.aggregation.passes.total",
		metric.WithDescription("Total number of control aggregation passes"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create aggregation_passes counter: %w", err)
	}

	PublishesDropped, err = Meter.Int64Counter("assure.publish.dropped.total",
		metric.WithDescription("Certification updates dropped because a subscriber was slow"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create publishes_dropped counter: %w", err)
	}

	BatchDuration, err = Meter.Float64Histogram("assure.batch.duration",
		metric.WithDescription("Duration of discovery batch handling"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create batch_duration histogram: %w", err)
	}

	return nil
}
