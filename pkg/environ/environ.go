package environ

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
)

// providersKey is reserved for provider bookkeeping and is never a component.
const providersKey = "TOOLS"

// Mutator is the write surface a provider sees when it is applied.
// Environment implements it directly; Recorder wraps another Mutator to
// observe writes during discovery.
type Mutator interface {
	// Set unconditionally sets key to value.
	Set(key string, value any)

	// SetDefault sets key to value only if key is not already present.
	SetDefault(key string, value any)

	// Append appends values to the list stored under key, creating it if
	// absent and promoting a scalar value to a list.
	Append(key string, values ...string)

	// AppendUnique appends only values not already in the list under key.
	AppendUnique(key string, values ...string)

	// Prepend prepends values to the list stored under key.
	Prepend(key string, values ...string)

	// PrependUnique prepends only values not already in the list under key.
	PrependUnique(key string, values ...string)

	// Replace sets several keys at once.
	Replace(vars map[string]any)

	// AppendPath appends dir to a PATH-style (list-separator joined) value.
	AppendPath(key, dir string)

	// PrependPath prepends dir to a PATH-style value.
	PrependPath(key, dir string)
}

// Environment is a mutable build environment: a variable map plus the
// ordered list of providers currently applied. Values are strings or string
// lists. It is not safe for concurrent use.
type Environment struct {
	vars      map[string]any
	providers []string
}

// New creates an environment seeded with the given variables. The map is
// deep-copied; the caller keeps ownership of its argument.
func New(vars map[string]any) *Environment {
	e := &Environment{vars: make(map[string]any, len(vars))}
	for k, v := range vars {
		e.vars[k] = cloneValue(v)
	}
	return e
}

// Clone returns a deep copy of the environment, including the applied
// provider list.
func (e *Environment) Clone() *Environment {
	c := &Environment{
		vars:      make(map[string]any, len(e.vars)),
		providers: append([]string(nil), e.providers...),
	}
	for k, v := range e.vars {
		c.vars[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	if list, ok := v.([]string); ok {
		return append([]string(nil), list...)
	}
	return v
}

// Get returns the value stored under key, or nil.
func (e *Environment) Get(key string) any {
	return e.vars[key]
}

// Lookup returns the value stored under key and whether it is present.
func (e *Environment) Lookup(key string) (any, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Has reports whether key is present.
func (e *Environment) Has(key string) bool {
	_, ok := e.vars[key]
	return ok
}

// String returns the value under key as a string. List values are joined
// with spaces, matching how command lines are assembled from them.
func (e *Environment) String(key string) string {
	switch v := e.vars[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, " ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// List returns the value under key as a string list. A scalar value becomes
// a one-element list.
func (e *Environment) List(key string) []string {
	switch v := e.vars[key].(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return v
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}

// Keys returns all variable keys in sorted order.
func (e *Environment) Keys() []string {
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of variables.
func (e *Environment) Len() int {
	return len(e.vars)
}

// Providers returns the ordered list of providers applied so far. The
// returned slice is a copy.
func (e *Environment) Providers() []string {
	return append([]string(nil), e.providers...)
}

// ProviderCount returns the number of providers applied so far.
func (e *Environment) ProviderCount() int {
	return len(e.providers)
}

// TrimProviders truncates the applied provider list to n entries. Applying a
// toolchain bundle pulls in member names; the resolver trims them back so its
// own bookkeeping stays exact.
func (e *Environment) TrimProviders(n int) {
	if n >= 0 && n < len(e.providers) {
		e.providers = e.providers[:n]
	}
}

// Set implements Mutator.
func (e *Environment) Set(key string, value any) {
	e.vars[key] = cloneValue(value)
}

// SetDefault implements Mutator.
func (e *Environment) SetDefault(key string, value any) {
	if _, ok := e.vars[key]; !ok {
		e.vars[key] = cloneValue(value)
	}
}

// Append implements Mutator.
func (e *Environment) Append(key string, values ...string) {
	e.vars[key] = append(e.List(key), values...)
}

// AppendUnique implements Mutator.
func (e *Environment) AppendUnique(key string, values ...string) {
	current := e.List(key)
	for _, v := range values {
		if !containsString(current, v) {
			current = append(current, v)
		}
	}
	e.vars[key] = current
}

// Prepend implements Mutator.
func (e *Environment) Prepend(key string, values ...string) {
	e.vars[key] = append(append([]string(nil), values...), e.List(key)...)
}

// PrependUnique implements Mutator.
func (e *Environment) PrependUnique(key string, values ...string) {
	current := e.List(key)
	var head []string
	for _, v := range values {
		if !containsString(current, v) {
			head = append(head, v)
		}
	}
	e.vars[key] = append(head, current...)
}

// Replace implements Mutator.
func (e *Environment) Replace(vars map[string]any) {
	for k, v := range vars {
		e.vars[k] = cloneValue(v)
	}
}

// AppendPath implements Mutator.
func (e *Environment) AppendPath(key, dir string) {
	e.vars[key] = joinPath(e.String(key), dir, false)
}

// PrependPath implements Mutator.
func (e *Environment) PrependPath(key, dir string) {
	e.vars[key] = joinPath(e.String(key), dir, true)
}

func joinPath(current, dir string, front bool) string {
	if current == "" {
		return dir
	}
	if front {
		return dir + string(os.PathListSeparator) + current
	}
	return current + string(os.PathListSeparator) + dir
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// IsComponentKey reports whether key names a component rather than naming
// metadata. Provider bookkeeping, private keys, and keys describing how a
// component is invoked (prefixes, suffixes, flags, command lines, versions)
// are not components.
func IsComponentKey(key string) bool {
	if key == providersKey || strings.HasPrefix(key, "_") || !isUpper(key) {
		return false
	}
	for _, suffix := range []string{"PREFIX", "SUFFIX", "FLAGS", "COM", "VERSION"} {
		if strings.HasSuffix(key, suffix) {
			return false
		}
	}
	return true
}

// isUpper mirrors Python's str.isupper: every cased character is upper case
// and at least one cased character exists.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}
