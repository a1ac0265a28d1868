// Package rules holds the rule model, the rule document loaders and the
// asset-type indexed rule store.
package rules

import (
	"context"
	"errors"
	"time"

	"github.com/cloudprobe/assure/assets"
	"github.com/cloudprobe/assure/ccl"
)

var (
	// ErrMalformedRule is returned when a rule document cannot be parsed.
	// The whole document fails atomically; partial rules are never produced.
	ErrMalformedRule = errors.New("malformed rule document")

	// ErrAssetTypeMismatch signals that conditions within one rule reference
	// more than one asset type. Non-fatal: the first condition wins.
	ErrAssetTypeMismatch = errors.New("rule conditions reference more than one asset type")
)

// Rule is a named, document-sourced set of AND-ed conditions tied to one
// asset type and zero or more controls. Immutable after load except Active.
type Rule struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Active      bool     `json:"active"`
	Controls    []string `json:"controls,omitempty"`

	Conditions []*ccl.Condition `json:"-"`

	// regoAssetType and regoEval are set for Rego-backed rules, which carry
	// no CCL conditions.
	regoAssetType string
	regoEval      func(ctx context.Context, asset *assets.Asset) (bool, []string, error)
}

// AssetType derives the rule's asset type from its first condition. A rule
// without conditions has no asset type and matches nothing.
func (r *Rule) AssetType() string {
	if len(r.Conditions) > 0 {
		return r.Conditions[0].AssetType.Value
	}
	return r.regoAssetType
}

// IsAssetFiltered reports whether the rule does NOT apply to the asset
// because its asset type carries a filter predicate that evaluates false.
// A rule with an unfiltered asset type never reports itself filtered.
func (r *Rule) IsAssetFiltered(asset *assets.Asset) bool {
	if len(r.Conditions) == 0 {
		return false
	}
	assetType := r.Conditions[0].AssetType
	if !assetType.IsFiltered() {
		return false
	}
	return !assetType.Evaluate(asset.Properties)
}

// Evaluate checks every condition against the asset and returns the result
// with the failed subset in document order. Evaluation never fails; a
// condition that cannot be applied counts as failed.
func (r *Rule) Evaluate(ctx context.Context, asset *assets.Asset) assets.EvaluationResult {
	result := assets.EvaluationResult{
		RuleID:     r.ID,
		Timestamp:  time.Now(),
		Properties: asset.Properties,
	}

	if r.regoEval != nil {
		return r.evaluateRego(ctx, asset, result)
	}

	for _, condition := range r.Conditions {
		if !condition.Evaluate(asset.Properties) {
			result.FailedConditions = append(result.FailedConditions, condition.Source)
		}
	}

	return result
}

// Vacuous builds a passing result without evaluating anything. Filtered-out
// assets report as compliant by convention.
func (r *Rule) Vacuous(asset *assets.Asset) assets.EvaluationResult {
	return assets.EvaluationResult{
		RuleID:     r.ID,
		Timestamp:  time.Now(),
		Properties: asset.Properties,
	}
}

func (r *Rule) evaluateRego(ctx context.Context, asset *assets.Asset, result assets.EvaluationResult) assets.EvaluationResult {
	compliant, reasons, err := r.regoEval(ctx, asset)
	if err != nil {
		result.FailedConditions = []string{"rego: " + err.Error()}
		return result
	}
	if !compliant {
		if len(reasons) == 0 {
			reasons = []string{"rego: policy not satisfied"}
		}
		result.FailedConditions = reasons
	}
	return result
}
