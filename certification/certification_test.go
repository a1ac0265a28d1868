package certification

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFulfillmentJSON(t *testing.T) {
	data, err := json.Marshal(Warning)
	require.NoError(t, err)
	assert.Equal(t, `"WARNING"`, string(data))

	var f Fulfillment
	require.NoError(t, json.Unmarshal([]byte(`"GOOD"`), &f))
	assert.Equal(t, Good, f)

	require.NoError(t, json.Unmarshal([]byte(`"NOT_EVALUATED"`), &f))
	assert.Equal(t, NotEvaluated, f)

	assert.Error(t, json.Unmarshal([]byte(`"MAYBE"`), &f))
}

func TestControlStates(t *testing.T) {
	control := &Control{ControlID: "CLD.1.2", Fulfilled: Good}

	// fulfillment is only meaningful while monitored
	assert.False(t, control.IsGood())
	control.Active = true
	assert.True(t, control.IsGood())
	assert.False(t, control.HasWarning())

	control.Fulfilled = Warning
	assert.True(t, control.HasWarning())
	assert.False(t, control.IsGood())
}

const demoCatalog = `id: demo-cert
publisher: Demo Institute
description: Demonstration catalogue
website: https://example.com/demo
controls:
  - id: CLD.1.2
    name: Encryption at rest
    domain: Cryptography
  - id: CLD.2.1
    name: Public access prevention
    domain: Access Control
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCatalog(t *testing.T) {
	cert, err := LoadCatalog(writeCatalog(t, demoCatalog))
	require.NoError(t, err)

	assert.Equal(t, "demo-cert", cert.ID)
	assert.Equal(t, "Demo Institute", cert.Publisher)
	require.Len(t, cert.Controls, 2)

	control := cert.Control("CLD.1.2")
	require.NotNil(t, control)
	assert.Equal(t, "Encryption at rest", control.Name)
	assert.False(t, control.Automated)
	assert.Equal(t, NotEvaluated, control.Fulfilled)

	assert.Nil(t, cert.Control("CLD.9.9"))
}

func TestLoadCatalogValidation(t *testing.T) {
	_, err := LoadCatalog(writeCatalog(t, "publisher: nobody\n"))
	assert.Error(t, err)

	_, err = LoadCatalog(writeCatalog(t, "id: empty-cert\n"))
	assert.Error(t, err)

	_, err = LoadCatalog(writeCatalog(t, "{not yaml"))
	assert.Error(t, err)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
