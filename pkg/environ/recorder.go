package environ

import "sort"

// Recorder is a Mutator decorator that records every written key accepted by
// its filter while forwarding all writes to the wrapped Mutator. It is used
// only during provider discovery.
type Recorder struct {
	next   Mutator
	filter func(string) bool
	keys   map[string]struct{}
}

// NewRecorder wraps next with a recording layer. A nil filter records every
// key.
func NewRecorder(next Mutator, filter func(string) bool) *Recorder {
	return &Recorder{
		next:   next,
		filter: filter,
		keys:   make(map[string]struct{}),
	}
}

// Keys returns the recorded keys in sorted order.
func (r *Recorder) Keys() []string {
	keys := make([]string, 0, len(r.keys))
	for k := range r.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Recorder) record(key string) {
	if r.filter == nil || r.filter(key) {
		r.keys[key] = struct{}{}
	}
}

// Set implements Mutator.
func (r *Recorder) Set(key string, value any) {
	r.record(key)
	r.next.Set(key, value)
}

// SetDefault implements Mutator. The key is recorded only when the default
// takes effect: a second application of the same provider therefore records
// only its unconditional writes, which is how discovery tells overlapping
// components apart from provider-exclusive ones.
func (r *Recorder) SetDefault(key string, value any) {
	if h, ok := r.next.(interface{ Has(string) bool }); !ok || !h.Has(key) {
		r.record(key)
	}
	r.next.SetDefault(key, value)
}

// Append implements Mutator.
func (r *Recorder) Append(key string, values ...string) {
	r.record(key)
	r.next.Append(key, values...)
}

// AppendUnique implements Mutator. The key is recorded whether or not the
// values were already present, which may over-report components for
// providers relying on uniqueness.
func (r *Recorder) AppendUnique(key string, values ...string) {
	r.record(key)
	r.next.AppendUnique(key, values...)
}

// Prepend implements Mutator.
func (r *Recorder) Prepend(key string, values ...string) {
	r.record(key)
	r.next.Prepend(key, values...)
}

// PrependUnique implements Mutator.
func (r *Recorder) PrependUnique(key string, values ...string) {
	r.record(key)
	r.next.PrependUnique(key, values...)
}

// Replace implements Mutator.
func (r *Recorder) Replace(vars map[string]any) {
	for k := range vars {
		r.record(k)
	}
	r.next.Replace(vars)
}

// AppendPath implements Mutator.
func (r *Recorder) AppendPath(key, dir string) {
	r.record(key)
	r.next.AppendPath(key, dir)
}

// PrependPath implements Mutator.
func (r *Recorder) PrependPath(key, dir string) {
	r.record(key)
	r.next.PrependPath(key, dir)
}
