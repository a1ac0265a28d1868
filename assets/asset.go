package assets

import "time"

// Asset is the normalized representation of one discovered cloud resource.
type Asset struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Properties AssetProperties `json:"properties"`

	// EvaluationResults holds the most recent result per rule id.
	EvaluationResults []EvaluationResult `json:"evaluation_results,omitempty"`
}

// EvaluationResult is an immutable record of one rule evaluation against one
// asset. Rules are referenced by id, not by pointer, so results stay valid
// across rule reloads. Failed conditions are recorded by their source text in
// document order.
type EvaluationResult struct {
	RuleID           string          `json:"rule_id"`
	Timestamp        time.Time       `json:"timestamp"`
	Properties       AssetProperties `json:"properties"`
	FailedConditions []string        `json:"failed_conditions,omitempty"`
}

// IsOk reports whether the evaluation found no failed conditions.
func (r EvaluationResult) IsOk() bool {
	return len(r.FailedConditions) == 0
}

// HasFailedConditions is the inverse of IsOk.
func (r EvaluationResult) HasFailedConditions() bool {
	return len(r.FailedConditions) > 0
}

// SetEvaluationResult merges a new result into the asset's history,
// replacing any prior result for the same rule id.
func (a *Asset) SetEvaluationResult(result EvaluationResult) {
	for i, existing := range a.EvaluationResults {
		if existing.RuleID == result.RuleID {
			a.EvaluationResults[i] = result
			return
		}
	}
	a.EvaluationResults = append(a.EvaluationResults, result)
}

// ResultForRule returns the stored result for the given rule id, if any.
func (a *Asset) ResultForRule(ruleID string) (EvaluationResult, bool) {
	for _, result := range a.EvaluationResults {
		if result.RuleID == ruleID {
			return result, true
		}
	}
	return EvaluationResult{}, false
}

// IsCompliant reports whether every known evaluation result passed.
func (a *Asset) IsCompliant() bool {
	for _, result := range a.EvaluationResults {
		if !result.IsOk() {
			return false
		}
	}
	return true
}
