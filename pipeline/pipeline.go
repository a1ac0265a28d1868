// Package pipeline turns completed discovery batches into evaluation
// results and triggers fulfillment aggregation.
package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudprobe/assure/assets"
	"github.com/cloudprobe/assure/rules"
	"github.com/cloudprobe/assure/telemetry"
)

// Aggregator recomputes control fulfillment after a batch has been
// evaluated. *certification.Service implements it.
type Aggregator interface {
	UpdateCertifications(ctx context.Context)
}

// Pipeline evaluates discovered assets against the active rules. Handle
// tolerates concurrent invocations for batches arriving at overlapping
// times; per-asset work is serialized by the registry.
type Pipeline struct {
	rules      *rules.Store
	registry   *assets.Registry
	aggregator Aggregator

	logger *telemetry.Logger
	tracer trace.Tracer
}

// New creates a pipeline. aggregator may be nil, in which case evaluation
// results are recorded without recomputing fulfillment.
func New(ruleStore *rules.Store, registry *assets.Registry, aggregator Aggregator) *Pipeline {
	return &Pipeline{
		rules:      ruleStore,
		registry:   registry,
		aggregator: aggregator,
		logger:     telemetry.NewLogger("pipeline"),
		tracer:     otel.Tracer("pipeline"),
	}
}

// Handle processes one completed discovery batch: every asset is stored,
// matched against the rules for its type and evaluated. Afterwards every
// active control is re-aggregated. A failure for one asset or rule never
// aborts the batch.
func (p *Pipeline) Handle(ctx context.Context, result *assets.DiscoveryResult) {
	ctx, span := p.tracer.Start(ctx, "pipeline.handle",
		trace.WithAttributes(
			attribute.String("scan.id", result.ScanID),
			attribute.Int("scan.assets", result.Len()),
		))
	defer span.End()

	started := time.Now()

	p.logger.WithContext(ctx).Info().
		Str("scan_id", result.ScanID).
		Int("assets", result.Len()).
		Msg("handling discovery batch")

	for _, asset := range result.Assets() {
		p.evaluateAsset(ctx, asset)
	}

	if p.aggregator != nil {
		p.aggregator.UpdateCertifications(ctx)
	}

	telemetry.BatchDuration.Record(ctx, time.Since(started).Seconds())
}

// evaluateAsset stores the asset and runs every candidate rule. The whole
// read-modify-write step is atomic relative to the asset id.
func (p *Pipeline) evaluateAsset(ctx context.Context, discovered *assets.Asset) {
	candidates := p.rules.Get(discovered.Type)

	// the asset is recorded even when no rules match, so that an asset
	// with an empty rule set still becomes visible
	p.registry.Update(discovered)

	if len(candidates) == 0 {
		return
	}

	p.registry.WithAsset(discovered.ID, func(asset *assets.Asset) {
		if asset == nil {
			return
		}
		for _, rule := range candidates {
			asset.SetEvaluationResult(p.evaluateRule(ctx, rule, asset))
		}
	})
}

func (p *Pipeline) evaluateRule(ctx context.Context, rule *rules.Rule, asset *assets.Asset) (result assets.EvaluationResult) {
	// a panic from a malformed property value is recorded as a failed
	// rule, never allowed to abort the batch
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithContext(ctx).Error().
				Str("rule_id", rule.ID).
				Str("asset_id", asset.ID).
				Any("panic", r).
				Msg("rule evaluation panicked")
			result = assets.EvaluationResult{
				RuleID:           rule.ID,
				Timestamp:        time.Now(),
				Properties:       asset.Properties,
				FailedConditions: []string{"evaluation error"},
			}
		}
	}()

	telemetry.AssetsEvaluated.Add(ctx, 1)

	if rule.IsAssetFiltered(asset) {
		// filtered-out assets report compliant by convention
		return rule.Vacuous(asset)
	}

	result = rule.Evaluate(ctx, asset)
	if !result.IsOk() {
		telemetry.RuleFailures.Add(ctx, 1)
		p.logger.LogEvaluationFailure(ctx, rule.ID, asset.ID, len(result.FailedConditions))
	}

	return result
}
