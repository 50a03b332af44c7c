package environ

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Provider is a named unit of environment setup. Applying a provider writes
// the variables it supplies through the Mutator it is handed; Members lists
// the providers a toolchain bundle expands into (empty for plain providers).
type Provider interface {
	Name() string
	Members() []string
	Apply(m Mutator) error
}

// Manifest is the YAML description of a provider.
type Manifest struct {
	// Name is the provider name used in cache and resolver bookkeeping.
	Name string `yaml:"name" validate:"required"`

	// Members lists member providers when this provider is a toolchain
	// bundle; applying the bundle applies every member.
	Members []string `yaml:"members,omitempty"`

	// Sets are variables written unconditionally on every application.
	Sets map[string]any `yaml:"sets,omitempty"`

	// Defaults are variables written only when not already present.
	Defaults map[string]any `yaml:"defaults,omitempty"`

	// Appends are list variables extended on every application.
	Appends map[string][]string `yaml:"appends,omitempty"`

	// Prepends are list variables prefixed on every application.
	Prepends map[string][]string `yaml:"prepends,omitempty"`
}

// manifestProvider implements Provider for a YAML-defined manifest.
type manifestProvider struct {
	m Manifest
}

func (p *manifestProvider) Name() string      { return p.m.Name }
func (p *manifestProvider) Members() []string { return p.m.Members }

func (p *manifestProvider) Apply(mut Mutator) error {
	// Deterministic write order keeps discovery and application reproducible.
	for _, key := range sortedKeys(p.m.Sets) {
		mut.Set(key, p.m.Sets[key])
	}
	for _, key := range sortedKeys(p.m.Defaults) {
		mut.SetDefault(key, p.m.Defaults[key])
	}
	for _, key := range sortedKeysSlice(p.m.Appends) {
		mut.Append(key, p.m.Appends[key]...)
	}
	for _, key := range sortedKeysSlice(p.m.Prepends) {
		mut.Prepend(key, p.m.Prepends[key]...)
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysSlice(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FuncProvider adapts a Go function (plus optional members) to Provider.
// It is how tests and embedding programs register providers without
// manifests.
type FuncProvider struct {
	ProviderName    string
	ProviderMembers []string
	ApplyFunc       func(m Mutator) error
}

// Name implements Provider.
func (p *FuncProvider) Name() string { return p.ProviderName }

// Members implements Provider.
func (p *FuncProvider) Members() []string { return p.ProviderMembers }

// Apply implements Provider.
func (p *FuncProvider) Apply(m Mutator) error {
	if p.ApplyFunc == nil {
		return nil
	}
	return p.ApplyFunc(m)
}

// Catalog holds the known providers and the search path they were loaded
// from. Lookups are by name; Names preserves registration order, which is
// the order candidate providers are probed in.
type Catalog struct {
	order     []string
	providers map[string]Provider
	paths     []string
	validate  *validator.Validate
}

// NewCatalog creates an empty provider catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		providers: make(map[string]Provider),
		validate:  validator.New(),
	}
}

// Register adds a provider, replacing any existing provider with the same
// name while keeping its position in the order.
func (c *Catalog) Register(p Provider) {
	if _, ok := c.providers[p.Name()]; !ok {
		c.order = append(c.order, p.Name())
	}
	c.providers[p.Name()] = p
}

// Lookup returns the named provider.
func (c *Catalog) Lookup(name string) (Provider, error) {
	p, ok := c.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not in catalog", name)
	}
	return p, nil
}

// Has reports whether the named provider is registered.
func (c *Catalog) Has(name string) bool {
	_, ok := c.providers[name]
	return ok
}

// Names returns provider names in registration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// SearchPath returns the manifest directories loaded so far.
func (c *Catalog) SearchPath() []string {
	return append([]string(nil), c.paths...)
}

// LoadDir loads every provider manifest (*.yaml, *.yml) from dir, in
// lexical filename order.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read manifest directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ext := filepath.Ext(entry.Name()); ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := c.LoadFile(filepath.Join(dir, name)); err != nil {
			return err
		}
	}

	c.paths = append(c.paths, dir)
	return nil
}

// LoadFile loads a single provider manifest. A file may hold one manifest or
// a list of manifests.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	manifests, err := decodeManifests(data)
	if err != nil {
		return fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	for i := range manifests {
		if err := c.validate.Struct(&manifests[i]); err != nil {
			return fmt.Errorf("invalid manifest %s: %w", path, err)
		}
		if err := validateValues(&manifests[i]); err != nil {
			return fmt.Errorf("invalid manifest %s: %w", path, err)
		}
		c.Register(&manifestProvider{m: manifests[i]})
	}
	return nil
}

func decodeManifests(data []byte) ([]Manifest, error) {
	var list []Manifest
	if err := yaml.Unmarshal(data, &list); err == nil {
		return normalizeManifests(list)
	}

	var single Manifest
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return normalizeManifests([]Manifest{single})
}

// normalizeManifests coerces YAML-decoded values into the string / []string
// shapes the environment works with.
func normalizeManifests(list []Manifest) ([]Manifest, error) {
	for i := range list {
		for _, vars := range []map[string]any{list[i].Sets, list[i].Defaults} {
			for k, v := range vars {
				nv, err := normalizeValue(v)
				if err != nil {
					return nil, fmt.Errorf("key %s: %w", k, err)
				}
				vars[k] = nv
			}
		}
	}
	return list, nil
}

func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool, int, int64, float64:
		return fmt.Sprintf("%v", val), nil
	case []any:
		list := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				s = fmt.Sprintf("%v", item)
			}
			list = append(list, s)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func validateValues(m *Manifest) error {
	for _, member := range m.Members {
		if strings.TrimSpace(member) == "" {
			return fmt.Errorf("provider %s has an empty member name", m.Name)
		}
	}
	// A variable is either forced or defaulted, never both: overlap
	// detection classifies each supplied component one way.
	for k := range m.Sets {
		if _, ok := m.Defaults[k]; ok {
			return fmt.Errorf("provider %s both sets and defaults %s", m.Name, k)
		}
	}
	return nil
}

// Apply applies the named provider from catalog to the environment: the
// provider's writes go through the environment itself and its name (and, for
// a toolchain, its member names) are appended to the applied-provider list.
// This is the provider-application primitive the resolver builds on.
func (e *Environment) Apply(c *Catalog, name string) error {
	return e.apply(c, name, e)
}

// ApplyRecorded is Apply with the provider's writes routed through rec.
// Discovery uses it to observe which keys a provider touches.
func (e *Environment) ApplyRecorded(c *Catalog, name string, rec *Recorder) error {
	return e.apply(c, name, rec)
}

func (e *Environment) apply(c *Catalog, name string, mut Mutator) error {
	p, err := c.Lookup(name)
	if err != nil {
		return err
	}

	e.providers = append(e.providers, name)
	if err := p.Apply(mut); err != nil {
		return fmt.Errorf("provider %s failed to apply: %w", name, err)
	}

	for _, member := range p.Members() {
		if member == name {
			continue
		}
		if err := e.apply(c, member, mut); err != nil {
			return err
		}
	}
	return nil
}
