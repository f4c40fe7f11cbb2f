package fbac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validBundle = `
version: "1.2.0"
name: hrms-defaults
policies:
  - tenant: tenant-a
    table: employees
    field: email
    access: read
    allowed: true
  - tenant: tenant-a
    table: employees
    field: ssn
    access: read
    allowed: true
    mask: partial
    guard: '"hr" in roles'
`

func TestParseBundle_Valid(t *testing.T) {
	b, err := ParseBundle([]byte(validBundle))
	require.NoError(t, err)
	require.Equal(t, "hrms-defaults", b.Name)
	require.Len(t, b.Policies, 2)
	require.Equal(t, "partial", b.Policies[1].Mask)
}

func TestParseBundle_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing version": `
name: x
policies: []
`,
		"bad access": `
version: "1.0.0"
name: x
policies:
  - {tenant: t, table: a, field: b, access: execute}
`,
		"bad mask": `
version: "1.0.0"
name: x
policies:
  - {tenant: t, table: a, field: b, access: read, mask: rot13}
`,
		"unknown key": `
version: "1.0.0"
name: x
unknown: true
policies: []
`,
	}

	for name, doc := range cases {
		_, err := ParseBundle([]byte(doc))
		require.Error(t, err, name)
	}
}

func TestParseBundle_VersionGate(t *testing.T) {
	_, err := ParseBundle([]byte(`
version: "2.0.0"
name: future
policies: []
`))
	require.Error(t, err)

	_, err = ParseBundle([]byte(`
version: "not-semver"
name: bad
policies: []
`))
	require.Error(t, err)
}

func TestLoadBundle_Install(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validBundle), 0o600))

	b, err := LoadBundle(path)
	require.NoError(t, err)

	store := NewStaticStore()
	b.Install(store)

	p, found, err := store.Lookup(t.Context(), "tenant-a", "employees", "ssn", AccessRead)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, p.Allowed)
	require.Equal(t, MaskPartial, p.Mask)
	require.NotEmpty(t, p.Guard)
}
