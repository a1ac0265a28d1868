package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/cloudprobe/assure/assets"
)

// regoPackage is the package all Rego rule documents must declare.
const regoPackage = "assure.rules"

// LoadRegoRule loads a rule expressed as a Rego policy instead of a CCL
// document. The policy lives in package assure.rules and provides:
//
//	asset_type  - taxonomy string the rule applies to (required)
//	name        - display name (optional, defaults to the rule id)
//	description - prose (optional)
//	controls    - list of "certificationId/controlId" strings (optional)
//	compliant   - boolean document over input {id, type, name, properties}
//	violations  - set of failure messages (optional)
func LoadRegoRule(ctx context.Context, path string) (*Rule, error) {
	code, err := os.ReadFile(path) // #nosec G304 -- rule paths come from the configured rules dir
	if err != nil {
		return nil, fmt.Errorf("read rego document: %w", err)
	}

	prepared, err := rego.New(
		rego.Query("data."+regoPackage),
		rego.Module(filepath.Base(path), string(code)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrMalformedRule, err)
	}

	rule := &Rule{
		ID:     ruleID(path),
		Active: true,
	}
	if err := fillRegoMetadata(ctx, rule, prepared); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	rule.regoEval = func(ctx context.Context, asset *assets.Asset) (bool, []string, error) {
		return evalRego(ctx, prepared, asset)
	}

	return rule, nil
}

// fillRegoMetadata evaluates the policy without input; data-only documents
// like asset_type and controls are defined regardless of input.
func fillRegoMetadata(ctx context.Context, rule *Rule, prepared rego.PreparedEvalQuery) error {
	doc, err := regoDocument(ctx, prepared, rego.EvalInput(map[string]any{}))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRule, err)
	}

	assetType, ok := doc["asset_type"].(string)
	if !ok || assetType == "" {
		return fmt.Errorf("%w: rego rule defines no asset_type", ErrMalformedRule)
	}
	rule.regoAssetType = assetType

	rule.Name = rule.ID
	if name, ok := doc["name"].(string); ok {
		rule.Name = name
	}
	if description, ok := doc["description"].(string); ok {
		rule.Description = description
	}
	if controls, ok := doc["controls"].([]any); ok {
		for _, control := range controls {
			if s, ok := control.(string); ok {
				rule.Controls = append(rule.Controls, s)
			}
		}
	}

	return nil
}

func evalRego(ctx context.Context, prepared rego.PreparedEvalQuery, asset *assets.Asset) (bool, []string, error) {
	input := map[string]any{
		"id":         asset.ID,
		"type":       asset.Type,
		"name":       asset.Name,
		"properties": map[string]any(asset.Properties),
	}

	doc, err := regoDocument(ctx, prepared, rego.EvalInput(input))
	if err != nil {
		return false, nil, err
	}

	compliant, _ := doc["compliant"].(bool)

	var reasons []string
	if violations, ok := doc["violations"].([]any); ok {
		for _, violation := range violations {
			if s, ok := violation.(string); ok {
				reasons = append(reasons, s)
			}
		}
		sort.Strings(reasons)
	}

	return compliant, reasons, nil
}

func regoDocument(ctx context.Context, prepared rego.PreparedEvalQuery, opts ...rego.EvalOption) (map[string]any, error) {
	rs, err := prepared.Eval(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, fmt.Errorf("rego policy produced no document")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("rego policy produced no document")
	}
	return doc, nil
}
