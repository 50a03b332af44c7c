package resolver

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/confix/confix/pkg/cache"
	"github.com/confix/confix/pkg/checks"
	"github.com/confix/confix/pkg/environ"
	"github.com/confix/confix/pkg/telemetry"
)

// Only one session may be live at a time: sessions own the process-wide
// probe scratch space and the provider cache mutates shared state.
var (
	sessionMu     sync.Mutex
	sessionActive bool
)

// Options configure a session. The zero value is usable.
type Options struct {
	// Logger receives resolution progress at debug level.
	Logger zerolog.Logger

	// WorkDir is where probe artifacts (trial links) are written. Defaults
	// to the OS temp directory.
	WorkDir string

	// PreVars are set on the working environment before the first augment
	// and re-applied after every reset.
	PreVars map[string]any

	// PostVars are set on the final environment during Finalize.
	PostVars map[string]any

	// Listing, when non-nil, puts the session in listing mode: facade calls
	// record requested names into it and no environment work happens.
	Listing *Listing

	// Metrics, when non-nil, receives resolution counters.
	Metrics *telemetry.Metrics
}

// Session is an in-progress environment resolution. Augments accumulate via
// AddAugment (usually through the Find* facade); Finalize applies the
// accepted set exactly and returns the configured environment.
//
// A session is single-threaded and at most one may be active per process.
type Session struct {
	base    *environ.Environment
	current *environ.Environment
	catalog *environ.Catalog
	cache   *cache.Cache

	log      zerolog.Logger
	checkCtx *checks.Context
	metrics  *telemetry.Metrics
	listing  *Listing

	augments          []*augment
	appliedProviders  []string
	executedChecks    map[*checks.Check]bool
	preVars, postVars map[string]any
	preApplied        bool
	finalized         bool
	released          bool
}

// Begin opens a resolution session over the given base environment and
// provider catalog. It fails with KindSessionActive when another session has
// not yet been finalized or discarded.
func Begin(base *environ.Environment, catalog *environ.Catalog, opts *Options) (*Session, error) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if sessionActive {
		return nil, &ResolveError{Kind: KindSessionActive}
	}

	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger.With().Str("component", "resolver").Logger()

	s := &Session{
		catalog:        catalog,
		log:            log,
		metrics:        opts.Metrics,
		listing:        opts.Listing,
		executedChecks: make(map[*checks.Check]bool),
		preVars:        opts.PreVars,
		postVars:       opts.PostVars,
	}

	// Listing mode records requested names only; no environment is built.
	if s.listing == nil {
		log.Debug().Msg("Creating a configuration environment")
		s.base = base
		s.current = base.Clone()
		s.cache = cache.For(base, catalog, opts.Logger)
		s.cache.SetMetrics(opts.Metrics)
		s.checkCtx = checks.NewContext(workDir(opts.WorkDir), opts.Logger)
	}

	sessionActive = true
	if s.metrics != nil {
		mode := "resolve"
		if s.listing != nil {
			mode = "listing"
		}
		s.metrics.RecordSessionStarted(mode)
	}
	return s, nil
}

func workDir(dir string) string {
	if dir != "" {
		return dir
	}
	return os.TempDir()
}

// Discard retires the session without finalizing, releasing the process-wide
// session slot.
func (s *Session) Discard() {
	s.release()
}

func (s *Session) release() {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if !s.released {
		s.released = true
		sessionActive = false
		if s.metrics != nil {
			s.metrics.RecordSessionEnded()
		}
	}
}

// Assignments reports the accepted augments with their resolved provider and
// component.
func (s *Session) Assignments() []Assignment {
	out := make([]Assignment, 0, len(s.augments))
	for _, a := range s.augments {
		out = append(out, Assignment{
			Spec:      a.spec.Name,
			Provider:  a.provider,
			Component: a.component,
		})
	}
	return out
}

// AddAugment tries to fit spec into the accepted augment set. It searches
// provider and component alternatives, reorders the set, and revalidates it,
// backtracking through a worklist of change sets when ordering conflicts or
// check failures arise. It reports whether the set (including spec) was
// accepted; a rejected spec leaves the session unchanged.
func (s *Session) AddAugment(spec *Specification) (bool, error) {
	if s.finalized {
		return false, NewResolveError(KindSessionFinalized, spec.Name)
	}

	added := false
	augments := cloneAugments(s.augments)
	aug := &augment{spec: spec}
	var change []*augment
	var changes [][]*augment

	s.log.Debug().Str("spec", spec.Name).Msg("Augmenting environment")

	if !s.preApplied && s.preVars != nil {
		for k, v := range s.preVars {
			s.current.Set(k, v)
		}
		s.preApplied = true
	}

	augments = append(augments, aug)

	doLoop := false
	if spec.Components == nil {
		// Check-only spec: nothing to vary, accept iff the set validates.
		invalid, err := s.validateAugments(augments)
		if err != nil {
			return false, err
		}
		if len(invalid) == 0 {
			s.augments = augments
			added = true
		}
	} else {
		s.log.Debug().Str("spec", spec.Name).Msg("Setting augment component")
		ok, err := s.setComponent(aug, 0)
		if err != nil {
			return false, err
		}
		doLoop = ok
	}

	for len(changes) > 0 || doLoop {
		// The first iteration runs on the initial assignment; later ones pop
		// a change set and move the named augments to their next candidate.
		if doLoop {
			doLoop = false
		} else {
			lastChange := change
			change = changes[len(changes)-1]
			changes = changes[:len(changes)-1]

			s.log.Debug().Msg("Reconfiguring augments")
			if s.metrics != nil {
				s.metrics.RecordProbeRetry()
			}

			// Delta between the last applied change set and this one: each
			// augment's net offset through the candidate sequence.
			var deltaAugs []*augment
			var deltaOffsets []int
			for _, co := range []struct {
				list   []*augment
				offset int
			}{{change, 1}, {lastChange, -1}} {
				for _, a := range co.list {
					if idx := indexOfAugment(deltaAugs, a); idx >= 0 {
						deltaOffsets[idx] += co.offset
						if deltaOffsets[idx] == 0 {
							deltaAugs = append(deltaAugs[:idx], deltaAugs[idx+1:]...)
							deltaOffsets = append(deltaOffsets[:idx], deltaOffsets[idx+1:]...)
						}
					} else {
						deltaAugs = append(deltaAugs, a)
						deltaOffsets = append(deltaOffsets, co.offset)
					}
				}
			}

			noComponent := false
			applied := 0
			for i := range deltaAugs {
				ok, err := s.setComponent(deltaAugs[i], deltaOffsets[i])
				if err != nil {
					return false, err
				}
				if !ok {
					noComponent = true
					applied = i
					break
				}
			}
			if noComponent {
				// Rebuild change to reflect only the offsets that were
				// actually applied before the search space ran out.
				change = append([]*augment(nil), lastChange...)
				for x := 0; x < applied; x++ {
					a := deltaAugs[x]
					off := deltaOffsets[x]
					for n := 0; n < abs(off); n++ {
						if off > 0 {
							change = append(change, a)
						} else {
							change = removeFirstAugment(change, a)
						}
					}
				}
				continue
			}
		}

		conflicting := s.orderAugments(augments)
		if conflicting == nil {
			invalid, err := s.validateAugments(augments)
			if err != nil {
				return false, err
			}
			conflicting = invalid
		}
		if len(conflicting) > 0 {
			for _, a := range conflicting {
				newChange := append(append([]*augment(nil), change...), a)
				changes = append(changes, newChange)
			}
			continue
		}

		s.augments = augments
		added = true
		break
	}

	if added {
		s.log.Debug().Str("spec", spec.Name).Msg("Environment augmented")
	} else {
		s.log.Debug().Str("spec", spec.Name).Msg("Environment augmentation failed")
	}
	// The augment outcome counter is owned by the telemetry request context;
	// counting here as well would double it.
	return added, nil
}

// setComponent assigns the augment its next candidate (component, provider)
// pair, skipping offset matches forward (positive) or backward (negative)
// from its current assignment. Candidates come from two sources in order:
// components already present in the base environment, then components
// supplied by catalog providers.
func (s *Session) setComponent(aug *augment, offset int) (bool, error) {
	off := offset
	refComponent := aug.component
	components := aug.spec.Components

	const srcLocal, srcProvider = "local", "provider"
	sources := []string{srcLocal, srcProvider}
	if off < 0 {
		sources[0], sources[1] = sources[1], sources[0]
	}

	srcStart := 0
	for i, src := range sources {
		if (aug.provider != "" && src == srcProvider) ||
			(aug.provider == "" && src == srcLocal) {
			srcStart = i
			break
		}
	}

	var component, provider string
	found := false
	for _, src := range sources[srcStart:] {
		if src == srcLocal {
			if comp := s.nextLocalComponent(components, refComponent, &off); comp != "" {
				component, provider, found = comp, "", true
				break
			}
			refComponent = components[0]
		} else {
			comp, prov, ok, err := s.cache.Next(components, refComponent, aug.provider, &off)
			if err != nil {
				return false, err
			}
			if ok {
				component, provider, found = comp, prov, true
				break
			}
			refComponent = components[len(components)-1]
		}
	}

	if found {
		aug.component = component
		aug.provider = provider
		aug.valid = false
		s.log.Debug().
			Str("component", component).
			Str("provider", provider).
			Msg("Using component")
	} else {
		s.log.Debug().Str("spec", aug.spec.Name).Msg("No component found for augment")
	}
	return found, nil
}

// nextLocalComponent scans the spec's component alternatives for ones the
// base environment already defines, consuming offset matches.
func (s *Session) nextLocalComponent(components []string, refComponent string, offset *int) string {
	forward := *offset >= 0

	idx := 0
	if refComponent != "" {
		idx = indexOfString(components, refComponent)
	}

	for idx >= 0 && idx < len(components) {
		if s.base.Has(components[idx]) {
			switch {
			case *offset < 0:
				*offset++
			case *offset > 0:
				*offset--
			default:
				return components[idx]
			}
		}
		if forward {
			idx++
		} else {
			idx--
		}
	}
	return ""
}

// orderAugments rearranges augments so every provider's components stay
// contiguous and no exclusive component is shadowed by a later provider that
// also supplies it. It returns the incompatible pair when no legal position
// exists, leaving the input order transposed for the caller's backtracking.
//
// The scan runs over the reversed list: when no reordering is needed the
// result equals the input, which lets validation reuse the already applied
// provider prefix instead of resetting.
func (s *Session) orderAugments(augments []*augment) []*augment {
	s.log.Debug().Msg("Ordering environment augments")

	ordered := make([]*augment, 0, len(augments))
	reverseAugments(augments)

	for _, aug := range augments {
		activeIdx := 0
		var overlap *augment

		if aug.provider != "" && !s.cache.Overlaps(aug.provider, aug.component) {
			overlap = aug
		}

		providerPresent := false
		for i := range ordered {
			if aug.provider != "" && aug.provider == ordered[i].provider {
				if !providerPresent {
					providerPresent = true
					activeIdx = i
				}
				continue
			}

			if aug.provider != "" && s.cache.Supplies(aug.provider, ordered[i].component) {
				overlap = ordered[i]
			}

			if ordered[i].provider != "" && s.cache.Supplies(ordered[i].provider, aug.component) {
				if overlap != nil || providerPresent {
					s.log.Debug().Msg("Incompatible augments")
					return []*augment{aug, ordered[i]}
				}
				activeIdx = i + 1
			}
		}

		ordered = append(ordered, nil)
		copy(ordered[activeIdx+1:], ordered[activeIdx:])
		ordered[activeIdx] = aug
	}

	copy(augments, ordered)
	return nil
}

// validateAugments applies the pending augments' providers and runs their
// checks, plus the checks of any already valid augment that a pending one
// depends on. Augments whose checks fail are marked invalid and returned.
func (s *Session) validateAugments(augments []*augment) ([]*augment, error) {
	s.log.Debug().Msg("Validating augmented environment")

	var providers []string
	var reqChecks, optChecks []*checks.Check

	for _, aug := range augments {
		dependencyAugment := false
		if aug.valid {
			for _, dep := range augments {
				if !dep.valid && dep.spec.dependsOn(aug.spec) {
					dependencyAugment = true
					break
				}
			}
			if !dependencyAugment {
				continue
			}
		}

		if aug.provider != "" && !containsString(providers, aug.provider) {
			providers = append(providers, aug.provider)
		}
		if len(aug.spec.Checks) > 0 {
			if dependencyAugment {
				optChecks = append(optChecks, aug.spec.Checks...)
			} else {
				reqChecks = append(reqChecks, aug.spec.Checks...)
			}
		}
	}

	failed, err := s.applyEnv(providers, false, reqChecks, optChecks)
	if err != nil {
		return nil, err
	}

	var invalid []*augment
	for _, aug := range augments {
		aug.valid = true
		if len(failed) > 0 && len(aug.spec.Checks) > 0 {
			for _, c := range failed {
				if containsCheck(aug.spec.Checks, c) {
					aug.valid = false
				}
			}
		}
		if !aug.valid {
			invalid = append(invalid, aug)
		}
	}

	if len(invalid) > 0 {
		s.log.Debug().Int("count", len(invalid)).Msg("Invalid augments")
	}
	return invalid, nil
}

// applyEnv brings the working environment to the given provider list and
// runs checks against it. When the list extends what is already applied the
// new providers are appended; otherwise the environment is rebuilt from the
// base. With exact set, providers applied earlier but absent from the list
// also force a rebuild, so the result contains exactly the listed providers.
//
// Required checks always run; optional checks run once per environment and
// are skipped when already executed against it.
func (s *Session) applyEnv(providers []string, exact bool, reqChecks, optChecks []*checks.Check) ([]*checks.Check, error) {
	reset := false
	expected := -1
	appendIdx := len(providers)

	if exact {
		for _, p := range s.appliedProviders {
			if !containsString(providers, p) {
				reset = true
				break
			}
		}
	}

	// Find where the requested list diverges from the applied prefix.
	if !reset {
		for i := 0; i < len(providers); i++ {
			actual := indexOfString(s.appliedProviders, providers[i])
			if actual >= 0 {
				if i == 0 && (len(providers) > 1 || actual == len(s.appliedProviders)-1) {
					expected = actual
				}
				if actual == expected {
					expected++
				} else {
					// Provider found, but out of order.
					reset = true
					break
				}
			} else {
				if expected == -1 {
					appendIdx = 0
				} else if expected == len(s.appliedProviders) {
					if appendIdx == len(providers) {
						appendIdx = i
					}
				} else {
					reset = true
					break
				}
			}
		}
	}

	start := appendIdx
	if reset {
		s.resetEnvironment()
		start = 0
	}

	// Toolchain providers drag their members in; the provider list keeps
	// only the names applied here.
	expectedLen := s.current.ProviderCount() + 1
	for i := start; i < len(providers); i++ {
		s.appliedProviders = append(s.appliedProviders, providers[i])
		if err := s.current.Apply(s.catalog, providers[i]); err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.RecordProviderApplied(providers[i])
		}
		if s.current.ProviderCount() != expectedLen {
			s.current.TrimProviders(expectedLen)
		}
		expectedLen++
	}

	s.checkCtx.SetEnv(s.current)

	var failed []*checks.Check
	groups := []struct {
		checks   []*checks.Check
		required bool
	}{{reqChecks, true}, {optChecks, false}}

	for _, group := range groups {
		for _, c := range group.checks {
			if !s.executedChecks[c] {
				s.executedChecks[c] = true
			} else if !group.required {
				continue
			}

			result := s.runCheck(c)
			if s.metrics != nil {
				s.metrics.RecordCheck(c.Name, result.Failed())
			}
			if result.Failed() {
				s.log.Debug().
					Str("check", c.Name).
					Str("reason", result.Reason).
					Msg("Check failed")
				failed = append(failed, c)
			}
		}
	}
	return failed, nil
}

// runCheck executes a check, downgrading panics to failures.
func (s *Session) runCheck(c *checks.Check) (result checks.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn().Str("check", c.Name).Interface("panic", r).Msg("Check panicked")
			result = checks.Failf("check panicked: %v", r)
		}
	}()
	return c.Fn(s.checkCtx)
}

func (s *Session) resetEnvironment() {
	s.log.Debug().Msg("Resetting environment")
	s.current = s.base.Clone()
	s.appliedProviders = nil
	s.executedChecks = make(map[*checks.Check]bool)
	s.preApplied = true
	for k, v := range s.preVars {
		s.current.Set(k, v)
	}
	if s.metrics != nil {
		s.metrics.RecordEnvironmentReset()
	}
}

// Finalize applies exactly the accepted augments' providers, re-running any
// check not yet executed against the resulting environment, sets the
// post-configure variables, and returns the configured environment. The
// session slot is released; further AddAugment calls fail. Finalize may be
// called again and returns the same environment.
func (s *Session) Finalize() (*environ.Environment, error) {
	if s.listing != nil {
		s.release()
		return nil, nil
	}

	s.log.Debug().Msg("Finalizing environment")
	started := time.Now()

	var providers []string
	var allChecks []*checks.Check
	// Augments sharing a provider contribute it once: the final environment
	// contains each committed provider exactly once.
	for _, aug := range s.augments {
		if aug.provider != "" && !containsString(providers, aug.provider) {
			providers = append(providers, aug.provider)
		}
		allChecks = append(allChecks, aug.spec.Checks...)
	}

	if _, err := s.applyEnv(providers, true, nil, allChecks); err != nil {
		return nil, err
	}

	for k, v := range s.postVars {
		s.current.Set(k, v)
	}

	s.finalized = true
	s.release()
	if s.metrics != nil {
		s.metrics.RecordFinalize(time.Since(started).Seconds())
	}
	s.log.Debug().Msg("Environment configured")
	return s.current, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func indexOfAugment(list []*augment, a *augment) int {
	for i, x := range list {
		if x == a {
			return i
		}
	}
	return -1
}

func removeFirstAugment(list []*augment, a *augment) []*augment {
	if idx := indexOfAugment(list, a); idx >= 0 {
		return append(list[:idx], list[idx+1:]...)
	}
	return list
}

func reverseAugments(list []*augment) {
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
}

func indexOfString(list []string, v string) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}

func containsString(list []string, v string) bool {
	return indexOfString(list, v) >= 0
}

func containsCheck(list []*checks.Check, c *checks.Check) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}
