// Package cache maintains the process-wide provider cache: a lazily
// discovered, append-only map from provider name to the components it
// supplies. Discovery trial-applies a provider to a clone of the base
// environment and records which component keys change.
package cache

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/confix/confix/pkg/environ"
	"github.com/confix/confix/pkg/telemetry"
)

// Component describes one component a provider supplies.
type Component struct {
	// Overlap reports whether the component may be supplied simultaneously
	// by another provider. Discovery flags a component as overlapping when a
	// second trial application of the same provider touches it again: only
	// unconditional writes show up twice, so a key that reappears is not
	// exclusive provider state.
	//
	// This is a heuristic carried over from the original tool: re-applying a
	// provider to its own output may under- or over-report overlap for
	// providers whose application is not idempotent.
	Overlap bool
}

// Cache is the provider cache for one base environment. Entries are only
// ever added; discovery of a provider happens at most once and is serialized
// by the cache mutex.
type Cache struct {
	mu         sync.Mutex
	base       *environ.Environment
	catalog    *environ.Catalog
	providers  []string
	components map[string]map[string]Component
	log        zerolog.Logger
	metrics    *telemetry.Metrics
}

// SetMetrics attaches a metrics collector; discovery passes are counted per
// provider. Safe to call with nil.
func (c *Cache) SetMetrics(m *telemetry.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

var (
	registryMu sync.Mutex
	registry   = make(map[*environ.Environment]*Cache)
)

// For returns the cache for the given base environment, creating it on first
// use. Caches are shared across resolver sessions built from the same base
// environment; a fresh base environment gets a fresh cache.
func For(base *environ.Environment, catalog *environ.Catalog, logger zerolog.Logger) *Cache {
	registryMu.Lock()
	defer registryMu.Unlock()

	if c, ok := registry[base]; ok {
		return c
	}

	c := &Cache{
		base:       base,
		catalog:    catalog,
		components: make(map[string]map[string]Component),
		log:        logger.With().Str("component", "provider-cache").Logger(),
	}

	// Seed provider order from the catalog, then from providers already
	// present in the base environment.
	c.providers = catalog.Names()
	for _, name := range base.Providers() {
		if c.indexOf(name) < 0 {
			c.providers = append(c.providers, name)
		}
	}

	registry[base] = c
	return c
}

// Providers returns the current provider order. The returned slice is a
// copy.
func (c *Cache) Providers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.providers...)
}

// Components returns the discovered component map for a provider, or nil if
// the provider has not been discovered yet.
func (c *Cache) Components(provider string) map[string]Component {
	c.mu.Lock()
	defer c.mu.Unlock()

	src, ok := c.components[provider]
	if !ok {
		return nil
	}
	out := make(map[string]Component, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Supplies reports whether the provider is known to supply the component.
func (c *Cache) Supplies(provider, component string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	comps, ok := c.components[provider]
	if !ok {
		return false
	}
	_, ok = comps[component]
	return ok
}

// Overlaps reports whether the provider's component is flagged as able to
// coexist with another provider of the same component. Unknown pairs report
// false.
func (c *Cache) Overlaps(provider, component string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	comps, ok := c.components[provider]
	if !ok {
		return false
	}
	comp, ok := comps[component]
	return ok && comp.Overlap
}

// Add registers a provider, discovering its components if it has not been
// seen yet. When discovery reveals a toolchain bundle, the members are
// registered and ordered immediately before the bundle, recursively. Add is
// idempotent.
func (c *Cache) Add(provider string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLocked(provider)
}

func (c *Cache) addLocked(provider string) error {
	if c.indexOf(provider) < 0 {
		c.providers = append(c.providers, provider)
	}
	return c.discoverLocked(provider)
}

func (c *Cache) discoverLocked(provider string) error {
	if _, ok := c.components[provider]; ok {
		return nil
	}

	members, comps, err := c.Detect(provider)
	if err != nil {
		// A provider that cannot be applied supplies nothing; remember that
		// so the search skips it instead of re-probing on every pass.
		c.log.Warn().Err(err).Str("provider", provider).Msg("Provider discovery failed")
		c.components[provider] = make(map[string]Component)
		return nil
	}

	c.components[provider] = comps
	if c.metrics != nil {
		c.metrics.RecordProviderDetection(provider)
	}
	c.log.Debug().
		Str("provider", provider).
		Int("components", len(comps)).
		Int("members", len(members)).
		Msg("Provider discovered")

	if len(members) > 1 {
		for _, member := range members {
			if member == provider {
				continue
			}
			c.placeBefore(member, provider)
			if err := c.discoverLocked(member); err != nil {
				return err
			}
		}
	}
	return nil
}

// placeBefore inserts member immediately before bundle in the provider
// order, moving it if a stale position exists after the bundle.
func (c *Cache) placeBefore(member, bundle string) {
	bi := c.indexOf(bundle)
	mi := c.indexOf(member)

	if mi >= 0 && mi < bi {
		return
	}
	if mi > bi {
		c.providers = append(c.providers[:mi], c.providers[mi+1:]...)
	}
	c.providers = append(c.providers, "")
	copy(c.providers[bi+1:], c.providers[bi:])
	c.providers[bi] = member
}

// Detect trial-applies the provider to a clone of the base environment and
// returns the provider names the application added (more than one means the
// provider is a toolchain bundle) and the component map. The clone is
// discarded; no side effects reach the base environment.
func (c *Cache) Detect(provider string) ([]string, map[string]Component, error) {
	clone := c.base.Clone()
	before := clone.ProviderCount()

	rec := environ.NewRecorder(clone, environ.IsComponentKey)
	if err := clone.ApplyRecorded(c.catalog, provider, rec); err != nil {
		return nil, nil, fmt.Errorf("detect %s: %w", provider, err)
	}

	comps := make(map[string]Component)
	for _, key := range rec.Keys() {
		comps[key] = Component{Overlap: false}
	}
	members := clone.Providers()[before:]

	// Second trial application, to the already-modified clone: keys touched
	// again are re-flagged as overlapping.
	rec = environ.NewRecorder(clone, environ.IsComponentKey)
	if err := clone.ApplyRecorded(c.catalog, provider, rec); err != nil {
		return nil, nil, fmt.Errorf("detect %s (overlap pass): %w", provider, err)
	}
	for _, key := range rec.Keys() {
		comps[key] = Component{Overlap: true}
	}

	return members, comps, nil
}

// Next scans (provider, component) pairs bidirectionally starting at the
// reference pair, skipping |*offset| matches before returning the first
// remaining pair supplying one of components. *offset is consumed toward
// zero as matches are skipped; it is the probe distance backtracking uses to
// advance a candidate choice. Providers encountered before discovery are
// discovered on the fly.
func (c *Cache) Next(components []string, refComponent, refProvider string, offset *int) (component, provider string, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.providers) == 0 {
		return "", "", false, nil
	}

	forward := *offset >= 0
	compIdx := 0
	if refComponent != "" {
		if i := indexOfString(components, refComponent); i >= 0 {
			compIdx = i
		}
	}
	toolIdx := 0
	if refProvider != "" {
		toolIdx = c.indexOf(refProvider)
	}

	for {
		if toolIdx < 0 || toolIdx >= len(c.providers) {
			return "", "", false, nil
		}

		name := c.providers[toolIdx]
		if _, known := c.components[name]; !known {
			if err := c.addLocked(name); err != nil {
				return "", "", false, err
			}
			// Re-examine the same index: member insertion may have shifted
			// the order, and the scan should visit inserted members.
			continue
		}

		for compIdx >= 0 && compIdx < len(components) {
			comp := components[compIdx]
			if _, supplies := c.components[name][comp]; supplies {
				switch {
				case *offset < 0:
					*offset++
				case *offset > 0:
					*offset--
				default:
					return comp, name, true, nil
				}
			}
			if forward {
				compIdx++
			} else {
				compIdx--
			}
		}

		if forward {
			toolIdx++
			compIdx = 0
		} else {
			toolIdx--
			compIdx = len(components) - 1
		}
	}
}

func (c *Cache) indexOf(provider string) int {
	return indexOfString(c.providers, provider)
}

func indexOfString(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
