package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDebounce coalesces bursts of file events (editors often write
// a rule file several times in quick succession) into one reload.
const reloadDebounce = 500 * time.Millisecond

// cachedPolicy pairs a parsed rule with the mod time of the file it
// came from, so a re-load can skip files that have not changed.
type cachedPolicy struct {
	policy  *Policy
	modTime time.Time
}

// Loader reads Rego rule files for the policy gate. Rules live either
// as single .rego files or in rule directories next to the manifest.
type Loader struct {
	logger  zerolog.Logger
	mu      sync.RWMutex
	cache   map[string]cachedPolicy
	watcher *fsnotify.Watcher
}

// NewLoader creates a rule loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		cache:  make(map[string]cachedPolicy),
	}
}

// LoadFromPaths loads every rule reachable from the given files and
// directories, in path order.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var rules []Policy

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		loaded, err := l.loadFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		rules = append(rules, loaded...)
	}

	l.logger.Info().
		Int("total", len(rules)).
		Int("sources", len(paths)).
		Msg("Policy rules loaded")

	return rules, nil
}

func (l *Loader) loadFromPath(path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if !info.IsDir() {
		rule, err := l.loadRuleFile(path)
		if err != nil {
			return nil, err
		}
		return []Policy{*rule}, nil
	}

	var rules []Policy
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".rego") {
			return nil
		}

		rule, err := l.loadRuleFile(p)
		if err != nil {
			// A broken rule file must not take down the rest of
			// the rule directory.
			l.logger.Warn().Err(err).Str("path", p).Msg("Skipping rule file")
			return nil
		}
		rules = append(rules, *rule)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk rule directory: %w", err)
	}

	return rules, nil
}

// loadRuleFile parses a single .rego file, consulting the mod-time
// cache first so repeated resolutions do not re-read unchanged rules.
func (l *Loader) loadRuleFile(path string) (*Policy, error) {
	if !strings.HasSuffix(path, ".rego") {
		return nil, fmt.Errorf("not a rego rule file: %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat rule file: %w", err)
	}

	l.mu.RLock()
	cached, ok := l.cache[path]
	l.mu.RUnlock()
	if ok && cached.modTime.Equal(info.ModTime()) {
		return cached.policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	rule := parseRule(path, string(data))

	l.mu.Lock()
	l.cache[path] = cachedPolicy{policy: rule, modTime: info.ModTime()}
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", path).
		Str("policy", rule.Name).
		Str("severity", string(rule.Severity)).
		Msg("Rule file loaded")

	return rule, nil
}

// parseRule builds a Policy from a rule file. The leading comment
// block doubles as metadata: plain comment lines become the
// description, and a "severity: <level>" line overrides the default
// warning severity.
func parseRule(path, source string) *Policy {
	name := strings.TrimSuffix(filepath.Base(path), ".rego")
	description, severity := parseRuleHeader(source)

	now := time.Now()
	return &Policy{
		Name:        name,
		Description: description,
		Rego:        source,
		Severity:    severity,
		Enabled:     true,
		Metadata: map[string]interface{}{
			"source": path,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func parseRuleHeader(source string) (string, Severity) {
	severity := SeverityWarning
	var description []string

	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if trimmed == "" ||
				strings.HasPrefix(trimmed, "package ") ||
				strings.HasPrefix(trimmed, "import ") {
				// The header may surround the package clause and imports.
				continue
			}
			// Header ends at the first rule.
			break
		}

		comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		if comment == "" {
			continue
		}
		if v, ok := strings.CutPrefix(comment, "severity:"); ok {
			switch Severity(strings.TrimSpace(v)) {
			case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
				severity = Severity(strings.TrimSpace(v))
			}
			continue
		}
		description = append(description, comment)
	}

	return strings.Join(description, " "), severity
}

// Watch starts watching the rule paths and invokes reloadFn with the
// full reloaded rule set whenever a .rego file changes. Watching stops
// when ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	l.watcher = watcher

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat rule path for watching")
			continue
		}

		if !info.IsDir() {
			if err := watcher.Add(path); err != nil {
				l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch rule file")
			}
			continue
		}

		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return watcher.Add(p)
			}
			return nil
		})
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch rule directory")
		}
	}

	go l.watchLoop(ctx, paths, reloadFn)

	l.logger.Info().Int("paths", len(paths)).Msg("Watching rule paths")
	return nil
}

func (l *Loader) watchLoop(ctx context.Context, paths []string, reloadFn func([]Policy) error) {
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			_ = l.watcher.Close()
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".rego") {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Rule file changed")

			l.mu.Lock()
			delete(l.cache, event.Name)
			l.mu.Unlock()

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				rules, err := l.LoadFromPaths(ctx, paths)
				if err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload rules")
					return
				}
				if err := reloadFn(rules); err != nil {
					l.logger.Error().Err(err).Msg("Failed to apply reloaded rules")
					return
				}
				l.logger.Info().Int("count", len(rules)).Msg("Rules reloaded")
			})

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// StopWatching stops watching for rule file changes.
func (l *Loader) StopWatching() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// ClearCache drops all cached rules.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]cachedPolicy)
}
