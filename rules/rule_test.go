package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudprobe/assure/assets"
	"github.com/cloudprobe/assure/ccl"
)

func mustCondition(t *testing.T, line string) *ccl.Condition {
	t.Helper()
	cond, err := ccl.ParseCondition(line)
	require.NoError(t, err)
	return cond
}

func TestRuleEvaluate(t *testing.T) {
	rule := &Rule{
		ID:     "aws-s3-encryption",
		Active: true,
		Conditions: []*ccl.Condition{
			mustCondition(t, `Bucket.encryption.enabled == true`),
			mustCondition(t, `Bucket.encryption.algorithm exists`),
		},
	}

	compliant := &assets.Asset{
		ID:   "b-1",
		Type: "Bucket",
		Properties: assets.AssetProperties{
			"encryption": map[string]any{"enabled": true, "algorithm": "aws:kms"},
		},
	}
	result := rule.Evaluate(context.Background(), compliant)
	assert.True(t, result.IsOk())
	assert.Equal(t, "aws-s3-encryption", result.RuleID)

	// both conditions fail, reported in document order by source text
	violating := &assets.Asset{ID: "b-2", Type: "Bucket", Properties: assets.AssetProperties{}}
	result = rule.Evaluate(context.Background(), violating)
	assert.Equal(t, []string{
		`Bucket.encryption.enabled == true`,
		`Bucket.encryption.algorithm exists`,
	}, result.FailedConditions)
}

func TestRuleIsAssetFiltered(t *testing.T) {
	rule := &Rule{
		ID: "aws-ec2-win-antivirus",
		Conditions: []*ccl.Condition{
			mustCondition(t, `Instance(platform == "windows").antivirus == true`),
		},
	}

	windows := &assets.Asset{ID: "i-1", Type: "Instance",
		Properties: assets.AssetProperties{"platform": "windows"}}
	linux := &assets.Asset{ID: "i-2", Type: "Instance",
		Properties: assets.AssetProperties{"platform": "linux"}}

	assert.False(t, rule.IsAssetFiltered(windows))
	assert.True(t, rule.IsAssetFiltered(linux))

	// filtered-out assets get a passing result without evaluation
	result := rule.Vacuous(linux)
	assert.True(t, result.IsOk())
	assert.Equal(t, rule.ID, result.RuleID)

	plain := &Rule{Conditions: []*ccl.Condition{mustCondition(t, `Instance.x == 1`)}}
	assert.False(t, plain.IsAssetFiltered(linux))
}

func TestRuleWithoutConditions(t *testing.T) {
	rule := &Rule{ID: "empty"}
	assert.Empty(t, rule.AssetType())
	assert.False(t, rule.IsAssetFiltered(&assets.Asset{ID: "x"}))
}
