package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/confix/confix/pkg/config"
	"github.com/confix/confix/pkg/environ"
	"github.com/confix/confix/pkg/policy"
	"github.com/confix/confix/pkg/resolver"
	"github.com/confix/confix/pkg/stores"
	"github.com/confix/confix/pkg/telemetry"
)

func newResolveCommand() *cobra.Command {
	var (
		workDir      string
		enableTrace  bool
		serveMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [manifest...]",
		Short: "Resolve a build environment from a manifest",
		Long: `Resolve a build environment from a CUE manifest.

This command:
  - Parses the manifest and evaluates its settings script
  - Loads the provider catalog from the manifest's search paths
  - Adds each request to a resolution session, backtracking through
    provider and component alternatives until the set validates
  - Finalizes the environment with exactly the accepted providers
  - Runs the policy gate over the finalized environment
  - Records the run, its augments, and its events in the history store
  - Prints the resolved environment`,
		Example: `  # Resolve a manifest
  confix resolve build.cue

  # Resolve a directory of manifest files
  confix resolve ./manifests

  # Resolve with JSON output and a custom history database
  confix resolve build.cue --json --store history.db`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := newCLITelemetry(enableTrace, serveMetrics)
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tel.Shutdown(shutdownCtx)
			}()
			ctx = tel.WithContext(ctx)

			if serveMetrics {
				if err := tel.StartMetricsServer(); err != nil {
					return fmt.Errorf("failed to start metrics server: %w", err)
				}
			}

			parser := config.NewCUEParser()
			mc, err := loadManifest(ctx, parser, args)
			if err != nil {
				return err
			}

			return runResolution(ctx, parser, mc, args[0], workDir, tel)
		},
	}

	cmd.Flags().StringVarP(&workDir, "work-dir", "w", "", "directory for probe artifacts (default: OS temp)")
	cmd.Flags().BoolVar(&enableTrace, "trace", false, "export trace spans to stdout")
	cmd.Flags().BoolVar(&serveMetrics, "metrics", false, "serve Prometheus metrics while resolving")

	return cmd
}

// newCLITelemetry builds a telemetry stack suited to one-shot CLI runs:
// logs to stderr, tracing and the metrics endpoint off unless asked for.
func newCLITelemetry(enableTrace, serveMetrics bool) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	if verbose {
		cfg.Logging.Level = "debug"
	}
	cfg.Tracing.Enabled = enableTrace
	cfg.Metrics.Enabled = serveMetrics
	return telemetry.NewTelemetry(cfg)
}

// requestOutcome records how one request fared for history and output.
type requestOutcome struct {
	Request   string `json:"request"`
	Kind      string `json:"kind"`
	Provider  string `json:"provider,omitempty"`
	Component string `json:"component,omitempty"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

func runResolution(ctx context.Context, parser *config.CUEParser, mc *config.ManifestConfig, manifestPath, workDir string, tel *telemetry.Telemetry) error {
	runID := uuid.New().String()
	log := tel.Logger.WithRunID(runID)

	pre, err := parser.EvaluateSettings(ctx, mc)
	if err != nil {
		return err
	}

	catalog, err := buildCatalog(mc)
	if err != nil {
		return err
	}

	store, err := openHistoryStore(ctx, mc)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		if err := recordRunStart(ctx, store, runID, manifestPath); err != nil {
			return err
		}
	}

	ctx = telemetry.WithRunContext(ctx, runID, manifestPath)

	session, err := resolver.Begin(baseEnvironment(), catalog, &resolver.Options{
		Logger:   tel.Logger.Zerolog(),
		WorkDir:  workDir,
		PreVars:  pre,
		PostVars: mc.Settings.Post,
		Metrics:  tel.Metrics,
	})
	if err != nil {
		return failRun(ctx, store, runID, err)
	}
	defer session.Discard()

	specs := make(map[string]*resolver.Specification, len(mc.Requests))
	outcomes := make([]requestOutcome, 0, len(mc.Requests))

	for _, req := range mc.Requests {
		spec, err := addRequest(ctx, session, specs, req, runID)
		outcome := requestOutcome{Request: req.Name, Kind: req.Kind, Status: string(stores.AugmentStatusResolved)}
		if err != nil {
			outcome.Status = string(stores.AugmentStatusRejected)
			outcome.Reason = err.Error()
			outcomes = append(outcomes, outcome)
			recordAugments(ctx, store, runID, outcomes)
			log.WithSpec(req.Name).WithError(err).Error("Request rejected")
			return failRun(ctx, store, runID, fmt.Errorf("request %s: %w", req.Name, err))
		}
		if spec != nil {
			if a := lastAssignment(session, spec.Name); a != nil {
				outcome.Provider = a.Provider
				outcome.Component = a.Component
			}
			specs[req.Name] = spec
		}
		outcomes = append(outcomes, outcome)
		log.WithSpec(req.Name).WithProvider(outcome.Provider).Debug("Request resolved")
	}

	env, err := session.Finalize()
	if err != nil {
		recordAugments(ctx, store, runID, outcomes)
		return failRun(ctx, store, runID, fmt.Errorf("finalize: %w", err))
	}

	status := stores.RunStatusCompleted
	gateErr := applyPolicyGate(ctx, mc, env, runID, manifestPath, tel)
	if gateErr != nil {
		status = stores.RunStatusRejected
	}

	recordAugments(ctx, store, runID, outcomes)
	if store != nil {
		if err := recordRunEnd(ctx, store, runID, status, env, gateErr); err != nil {
			log.WithError(err).Warn("Failed to record run in history store")
		}
	}
	telemetry.EndRunContext(ctx, runID, string(status), gateErr)

	if gateErr != nil {
		return gateErr
	}
	return printEnvironment(runID, env, outcomes)
}

// addRequest dispatches one manifest request to the session facade.
func addRequest(ctx context.Context, session *resolver.Session, specs map[string]*resolver.Specification, req config.RequestConfig, runID string) (*resolver.Specification, error) {
	ctx = telemetry.WithSpecContext(ctx, runID, req.Name)

	chks, err := req.BuildChecks()
	if err != nil {
		telemetry.EndSpecContext(ctx, runID, req.Name, "", "", err)
		return nil, err
	}

	var depends []*resolver.Specification
	for _, dep := range req.Depends {
		if s := specs[dep]; s != nil {
			depends = append(depends, s)
		}
	}

	var spec *resolver.Specification
	switch req.Kind {
	case config.KindRequirement:
		spec, err = session.Require(req.Name, chks...)
	case config.KindComponent:
		spec, err = session.FindComponent(req.Name, req.Components, chks, depends...)
	case config.KindLibrary:
		spec, err = session.FindLibrary(req.Name, chks, depends...)
	case config.KindProgram:
		spec, err = session.FindProgram(req.Name, chks...)
	default:
		err = fmt.Errorf("unknown request kind %q", req.Kind)
	}

	provider, component := "", ""
	if err == nil && spec != nil {
		if a := lastAssignment(session, spec.Name); a != nil {
			provider, component = a.Provider, a.Component
		}
	}
	telemetry.EndSpecContext(ctx, runID, req.Name, provider, component, err)
	return spec, err
}

// lastAssignment finds the most recent assignment for a spec name.
func lastAssignment(session *resolver.Session, name string) *resolver.Assignment {
	assignments := session.Assignments()
	for i := len(assignments) - 1; i >= 0; i-- {
		if assignments[i].Spec == name {
			return &assignments[i]
		}
	}
	return nil
}

// applyPolicyGate evaluates the finalized environment against the policy
// set. In advisory mode (or on_violation: warn) violations are logged but do
// not fail the run.
func applyPolicyGate(ctx context.Context, mc *config.ManifestConfig, env *environ.Environment, runID, manifestPath string, tel *telemetry.Telemetry) error {
	if mc.Policy == nil || !mc.Policy.Enabled {
		return nil
	}

	engine, err := policy.NewEngine(tel.Logger.Zerolog())
	if err != nil {
		return fmt.Errorf("failed to create policy engine: %w", err)
	}
	if len(mc.Policy.Paths) > 0 {
		if err := engine.LoadPolicies(ctx, mc.Policy.Paths); err != nil {
			return fmt.Errorf("failed to load policies: %w", err)
		}
	}

	result, err := engine.EvaluateEnvironment(ctx, env, &policy.RunInput{ID: runID, Manifest: manifestPath})
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}

	log := tel.Logger.WithRunID(runID)
	for _, v := range result.Violations {
		log.WithField("policy", v.Policy).WithField("severity", string(v.Severity)).Warn(v.Message)
		_ = tel.Events.PublishPolicyViolation(runID, v.Policy, v.Message)
	}

	if result.Allowed {
		return nil
	}
	if mc.Policy.Mode == "advisory" || mc.Policy.OnViolation == "warn" {
		log.Warnf("Policy gate reported %d violation(s); advisory mode, continuing", len(result.Violations))
		return nil
	}
	return fmt.Errorf("policy gate rejected the environment with %d violation(s)", len(result.Violations))
}

// openHistoryStore opens the history database when one is configured, by
// flag or by the manifest.
func openHistoryStore(ctx context.Context, mc *config.ManifestConfig) (*stores.SQLiteStore, error) {
	path := storePath
	if path == "" && mc.Store != nil {
		path = mc.Store.Path
	}
	if path == "" {
		return nil, nil
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to create history store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate history store: %w", err)
	}
	return store, nil
}

func recordRunStart(ctx context.Context, store *stores.SQLiteStore, runID, manifestPath string) error {
	now := time.Now().UTC()
	return store.CreateRun(ctx, &stores.Run{
		ID:           runID,
		ManifestPath: manifestPath,
		Status:       stores.RunStatusRunning,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func recordAugments(ctx context.Context, store *stores.SQLiteStore, runID string, outcomes []requestOutcome) {
	if store == nil {
		return
	}
	for _, o := range outcomes {
		augment := &stores.Augment{
			ID:        uuid.New().String(),
			RunID:     runID,
			SpecName:  o.Request,
			Kind:      o.Kind,
			Status:    stores.AugmentStatus(o.Status),
			CreatedAt: time.Now().UTC(),
		}
		if o.Provider != "" {
			provider := o.Provider
			augment.Provider = &provider
		}
		if o.Component != "" {
			component := o.Component
			augment.Component = &component
		}
		if o.Reason != "" {
			reason := o.Reason
			augment.Reason = &reason
		}
		if err := store.CreateAugment(ctx, augment); err != nil {
			return
		}
	}
}

func recordRunEnd(ctx context.Context, store *stores.SQLiteStore, runID string, status stores.RunStatus, env *environ.Environment, gateErr error) error {
	envJSON, err := environmentJSON(env)
	if err != nil {
		return err
	}
	provJSON, err := providersJSON(env.Providers())
	if err != nil {
		return err
	}
	if err := store.SetRunEnvironment(ctx, runID, envJSON, provJSON); err != nil {
		return err
	}

	var reason *string
	if gateErr != nil {
		msg := gateErr.Error()
		reason = &msg
	}
	return store.UpdateRunStatus(ctx, runID, status, reason)
}

// failRun marks the run failed in the store and ends run telemetry.
func failRun(ctx context.Context, store *stores.SQLiteStore, runID string, err error) error {
	if store != nil {
		msg := err.Error()
		_ = store.UpdateRunStatus(ctx, runID, stores.RunStatusFailed, &msg)
	}
	telemetry.EndRunContext(ctx, runID, string(stores.RunStatusFailed), err)
	return err
}

// printEnvironment writes the resolved environment to stdout.
func printEnvironment(runID string, env *environ.Environment, outcomes []requestOutcome) error {
	if jsonOutput {
		vars := make(map[string]any, env.Len())
		for _, key := range env.Keys() {
			vars[key] = env.Get(key)
		}
		out := struct {
			RunID       string           `json:"run_id"`
			Providers   []string         `json:"providers"`
			Requests    []requestOutcome `json:"requests"`
			Environment map[string]any   `json:"environment"`
		}{
			RunID:       runID,
			Providers:   env.Providers(),
			Requests:    outcomes,
			Environment: vars,
		}
		encoded, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	}

	fmt.Printf("Run %s\n\n", runID)

	fmt.Println("Requests:")
	for _, o := range outcomes {
		line := fmt.Sprintf("  ✓ %s (%s)", o.Request, o.Kind)
		if o.Provider != "" {
			line += " via " + o.Provider
		}
		if o.Component != "" {
			line += " -> $" + o.Component
		}
		fmt.Println(line)
	}

	if providers := env.Providers(); len(providers) > 0 {
		fmt.Println("\nProviders applied:")
		for _, p := range providers {
			fmt.Printf("  - %s\n", p)
		}
	}

	fmt.Println("\nEnvironment:")
	for _, key := range env.Keys() {
		fmt.Printf("  %s = %v\n", key, env.Get(key))
	}

	fmt.Fprintln(os.Stdout)
	return nil
}
