package rules

import "github.com/cloudprobe/assure/assets"

// RuleEvaluation summarizes how one rule stands across all known assets of
// its type: the per-asset compliance map plus aggregate counts. Reporting
// layers consume this shape.
type RuleEvaluation struct {
	RuleID       string          `json:"rule_id"`
	Assets       map[string]bool `json:"assets"`
	Compliant    int             `json:"compliant"`
	NonCompliant int             `json:"non_compliant"`
}

// Status computes the evaluation summary for a rule. An asset without a
// stored result for this rule counts as non-compliant.
func Status(rule *Rule, registry *assets.Registry) *RuleEvaluation {
	status := &RuleEvaluation{
		RuleID: rule.ID,
		Assets: make(map[string]bool),
	}

	for _, asset := range registry.WithType(rule.AssetType()) {
		result, ok := asset.ResultForRule(rule.ID)
		compliant := ok && result.IsOk()

		status.Assets[asset.ID] = compliant
		if compliant {
			status.Compliant++
		} else {
			status.NonCompliant++
		}
	}

	return status
}
