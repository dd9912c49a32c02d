// Package secrets loads the sandbox to tenant secret mapping at startup.
package secrets

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/ports"
)

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *santhosh.Schema {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource("secrets.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("secrets.schema.json")
}

type secretEntry struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	APIKey       string `yaml:"x-api-key"`
	OrgID        string `yaml:"x-gw-ims-org-id"`
	SandboxName  string `yaml:"x-sandbox-name"`
}

// Store is an immutable sandbox -> secret mapping.
type Store struct {
	secrets map[string]domain.TenantSecret
	names   []string
}

var _ ports.SecretStore = (*Store)(nil)

// LoadFile reads a JSON or YAML secrets document. Every failure is a
// configuration error.
func LoadFile(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: secrets file is not set", domain.ErrConfiguration)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read secrets file: %v", domain.ErrConfiguration, err)
	}
	return Parse(raw)
}

// Parse validates raw against the secrets schema and builds a Store.
func Parse(raw []byte) (*Store, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode secrets: %v", domain.ErrConfiguration, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: secrets document is empty", domain.ErrConfiguration)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return nil, fmt.Errorf("%w: invalid secrets: %s", domain.ErrConfiguration, firstCause(ve))
		}
		return nil, fmt.Errorf("%w: invalid secrets: %v", domain.ErrConfiguration, err)
	}

	var entries map[string]secretEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode secrets: %v", domain.ErrConfiguration, err)
	}
	return newStore(entries)
}

func newStore(entries map[string]secretEntry) (*Store, error) {
	s := &Store{secrets: make(map[string]domain.TenantSecret, len(entries))}
	for key, e := range entries {
		sandbox := e.SandboxName
		if sandbox == "" {
			sandbox = key
		}
		if sandbox != key {
			return nil, fmt.Errorf("%w: secrets entry %q names sandbox %q", domain.ErrConfiguration, key, sandbox)
		}
		s.secrets[key] = domain.TenantSecret{
			ClientID:     e.ClientID,
			ClientSecret: e.ClientSecret,
			APIKey:       e.APIKey,
			OrgID:        e.OrgID,
			SandboxName:  sandbox,
		}
		s.names = append(s.names, key)
	}
	if len(s.names) == 0 {
		return nil, fmt.Errorf("%w: no sandboxes configured", domain.ErrConfiguration)
	}
	sort.Strings(s.names)
	return s, nil
}

func (s *Store) Lookup(sandbox string) (domain.TenantSecret, error) {
	secret, ok := s.secrets[sandbox]
	if !ok {
		return domain.TenantSecret{}, fmt.Errorf("%w: %q", domain.ErrUnknownSandbox, sandbox)
	}
	return secret, nil
}

// Sandboxes returns the configured sandbox names in sorted order.
func (s *Store) Sandboxes() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func firstCause(ve *santhosh.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return fmt.Sprintf("%s: %s", ve.InstanceLocation, ve.Message)
}
