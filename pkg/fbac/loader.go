package fbac

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// bundleSchema validates the shape of a policy bundle before anything is
// installed. Schema-invalid bundles are rejected whole; there is no partial
// install.
const bundleSchema = `{
  "type": "object",
  "required": ["version", "name", "policies"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "policies": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["tenant", "table", "field", "access"],
        "properties": {
          "tenant": {"type": "string", "minLength": 1},
          "table": {"type": "string", "minLength": 1},
          "field": {"type": "string", "minLength": 1},
          "access": {"enum": ["read", "write"]},
          "allowed": {"type": "boolean"},
          "mask": {"enum": ["", "full", "partial", "hash"]},
          "guard": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

var compiledBundleSchema = jsonschema.MustCompileString("bundle.schema.json", bundleSchema)

// supportedBundleMajor gates the bundle format version. Minor/patch bumps
// are additive; a major bump means the format changed incompatibly.
const supportedBundleMajor = 1

// Bundle is a versioned set of field policies loaded from YAML.
type Bundle struct {
	Version  string         `yaml:"version" json:"version"`
	Name     string         `yaml:"name" json:"name"`
	Policies []BundlePolicy `yaml:"policies" json:"policies"`
}

// BundlePolicy is the on-disk form of one policy row.
type BundlePolicy struct {
	Tenant  string `yaml:"tenant" json:"tenant"`
	Table   string `yaml:"table" json:"table"`
	Field   string `yaml:"field" json:"field"`
	Access  string `yaml:"access" json:"access"`
	Allowed bool   `yaml:"allowed" json:"allowed"`
	Mask    string `yaml:"mask" json:"mask"`
	Guard   string `yaml:"guard" json:"guard"`
}

// ParseBundle decodes and validates a YAML policy bundle.
func ParseBundle(data []byte) (*Bundle, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("fbac: decode bundle: %w", err)
	}
	if err := compiledBundleSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("fbac: bundle failed schema validation: %w", err)
	}

	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("fbac: decode bundle: %w", err)
	}

	v, err := semver.NewVersion(b.Version)
	if err != nil {
		return nil, fmt.Errorf("fbac: bundle version %q: %w", b.Version, err)
	}
	if v.Major() != supportedBundleMajor {
		return nil, fmt.Errorf("fbac: unsupported bundle version %s (want major %d)", b.Version, supportedBundleMajor)
	}

	return &b, nil
}

// LoadBundle reads and parses a bundle file.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fbac: read bundle: %w", err)
	}
	return ParseBundle(data)
}

// PolicyRows returns the bundle's policies in store form.
func (b *Bundle) PolicyRows() []Policy {
	rows := make([]Policy, 0, len(b.Policies))
	for _, p := range b.Policies {
		rows = append(rows, Policy{
			TenantID: p.Tenant,
			Table:    p.Table,
			Field:    p.Field,
			Access:   AccessType(p.Access),
			Allowed:  p.Allowed,
			Mask:     MaskType(p.Mask),
			Guard:    p.Guard,
		})
	}
	return rows
}

// Install writes every bundle policy into the store.
func (b *Bundle) Install(store *StaticStore) {
	for _, p := range b.PolicyRows() {
		store.Put(p)
	}
}
