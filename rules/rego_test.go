package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudprobe/assure/assets"
)

const publicAccessPolicy = `package assure.rules

import rego.v1

asset_type := "Bucket"
name := "No public access"
description := "Buckets must block all public access."
controls := ["demo-cert/CLD.2.1"]

default compliant := false

compliant if {
	input.properties.publicAccessBlocked == true
}

violations contains msg if {
	not input.properties.publicAccessBlocked == true
	msg := "public access is not blocked"
}`

func writeRego(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "aws", "s3")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	path := filepath.Join(dir, "public-access.rego")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRegoRule(t *testing.T) {
	ctx := context.Background()
	rule, err := LoadRegoRule(ctx, writeRego(t, publicAccessPolicy))
	require.NoError(t, err)

	assert.Equal(t, "aws-s3-public-access", rule.ID)
	assert.Equal(t, "No public access", rule.Name)
	assert.Equal(t, "Buckets must block all public access.", rule.Description)
	assert.Equal(t, []string{"demo-cert/CLD.2.1"}, rule.Controls)
	assert.Equal(t, "Bucket", rule.AssetType())
	assert.True(t, rule.Active)

	blocked := &assets.Asset{ID: "b-1", Type: "Bucket",
		Properties: assets.AssetProperties{"publicAccessBlocked": true}}
	result := rule.Evaluate(context.Background(), blocked)
	assert.True(t, result.IsOk())

	open := &assets.Asset{ID: "b-2", Type: "Bucket", Properties: assets.AssetProperties{}}
	result = rule.Evaluate(context.Background(), open)
	assert.Equal(t, []string{"public access is not blocked"}, result.FailedConditions)
}

func TestRegoEvalReceivesCallerContext(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "batch-7")

	var seen any
	rule := &Rule{
		ID:            "aws-s3-public-access",
		Active:        true,
		regoAssetType: "Bucket",
		regoEval: func(ctx context.Context, asset *assets.Asset) (bool, []string, error) {
			seen = ctx.Value(ctxKey{})
			return true, nil, nil
		},
	}

	rule.Evaluate(ctx, &assets.Asset{ID: "b-1", Type: "Bucket"})
	assert.Equal(t, "batch-7", seen)
}

func TestLoadRegoRuleWithoutAssetType(t *testing.T) {
	policy := `package assure.rules

import rego.v1

compliant := true`

	_, err := LoadRegoRule(context.Background(), writeRego(t, policy))
	assert.ErrorIs(t, err, ErrMalformedRule)
}

func TestLoadRegoRuleSyntaxError(t *testing.T) {
	_, err := LoadRegoRule(context.Background(), writeRego(t, "package assure.rules\n\nthis is not rego"))
	assert.ErrorIs(t, err, ErrMalformedRule)
}
