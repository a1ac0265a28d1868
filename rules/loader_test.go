package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const encryptionRule = `# S3 Bucket Encryption

All S3 buckets must have default encryption enabled.

## Controls

* demo-cert/CLD.1.2
* demo-cert/CLD.4.1

` + "```ccl" + `
Bucket.encryption.enabled == true
Bucket.encryption.algorithm exists
` + "```" + `
`

func writeRule(t *testing.T, dir, catalogue, category, name, content string) string {
	t.Helper()
	ruleDir := filepath.Join(dir, catalogue, category)
	require.NoError(t, os.MkdirAll(ruleDir, 0o750))
	path := filepath.Join(ruleDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRule(t *testing.T) {
	path := writeRule(t, t.TempDir(), "aws", "s3", "encryption.md", encryptionRule)

	rule, err := LoadRule(path)
	require.NoError(t, err)

	assert.Equal(t, "aws-s3-encryption", rule.ID)
	assert.Equal(t, "S3 Bucket Encryption", rule.Name)
	assert.Equal(t, "All S3 buckets must have default encryption enabled.", rule.Description)
	assert.Equal(t, []string{"demo-cert/CLD.1.2", "demo-cert/CLD.4.1"}, rule.Controls)
	assert.True(t, rule.Active)
	require.Len(t, rule.Conditions, 2)
	assert.Equal(t, "Bucket", rule.AssetType())
	assert.Equal(t, "Bucket.encryption.enabled == true", rule.Conditions[0].Source)
}

func TestLoadRuleCommentsAndBlanks(t *testing.T) {
	doc := `# Minimal

` + "```ccl" + `
# leading comment

Bucket.versioning == true
` + "```" + `
`
	path := writeRule(t, t.TempDir(), "aws", "s3", "versioning.md", doc)

	rule, err := LoadRule(path)
	require.NoError(t, err)
	require.Len(t, rule.Conditions, 1)
	assert.Empty(t, rule.Controls)
	assert.Empty(t, rule.Description)
}

func TestLoadRuleMissingHeading(t *testing.T) {
	doc := "just a paragraph\n\n```ccl\nBucket.x == 1\n```\n"
	path := writeRule(t, t.TempDir(), "aws", "s3", "broken.md", doc)

	_, err := LoadRule(path)
	assert.ErrorIs(t, err, ErrMalformedRule)
}

func TestLoadRuleBadCondition(t *testing.T) {
	doc := "# Broken\n\n```ccl\nBucket.x == 1\nnot a condition at all ??\n```\n"
	path := writeRule(t, t.TempDir(), "aws", "s3", "broken.md", doc)

	// one bad line fails the whole document
	_, err := LoadRule(path)
	assert.ErrorIs(t, err, ErrMalformedRule)
}

func TestCheckAssetTypes(t *testing.T) {
	doc := "# Mixed\n\n```ccl\nBucket.x == 1\nInstance.y == 2\n```\n"
	path := writeRule(t, t.TempDir(), "aws", "s3", "mixed.md", doc)

	rule, err := LoadRule(path)
	require.NoError(t, err)

	assert.ErrorIs(t, CheckAssetTypes(rule), ErrAssetTypeMismatch)
	// the first condition's type stays authoritative
	assert.Equal(t, "Bucket", rule.AssetType())
}
