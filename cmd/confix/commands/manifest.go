package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/confix/confix/pkg/config"
	"github.com/confix/confix/pkg/environ"
)

// loadManifest parses the manifest sources and fails on any diagnostic.
func loadManifest(ctx context.Context, parser *config.CUEParser, sources []string) (*config.ManifestConfig, error) {
	mc, err := parser.Parse(ctx, sources)
	if err != nil {
		return nil, err
	}
	if len(mc.Errors) > 0 {
		for _, e := range mc.Errors {
			fmt.Fprintln(os.Stderr, formatDiagnostic(e))
		}
		return nil, fmt.Errorf("manifest has %d error(s)", len(mc.Errors))
	}
	return mc, nil
}

// formatDiagnostic renders a validation error with its location.
func formatDiagnostic(e config.ValidationError) string {
	var b strings.Builder
	b.WriteString(e.Severity)
	b.WriteString(": ")
	if e.File != "" {
		fmt.Fprintf(&b, "%s:%d:%d: ", e.File, e.Line, e.Column)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	b.WriteString(strings.TrimSpace(e.Message))
	return b.String()
}

// buildCatalog loads the provider catalog named by the manifest.
func buildCatalog(mc *config.ManifestConfig) (*environ.Catalog, error) {
	catalog := environ.NewCatalog()
	for _, dir := range mc.Providers.Paths {
		if err := catalog.LoadDir(dir); err != nil {
			return nil, fmt.Errorf("failed to load providers from %s: %w", dir, err)
		}
	}
	for _, file := range mc.Providers.Files {
		if err := catalog.LoadFile(file); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", file, err)
		}
	}
	return catalog, nil
}

// baseEnvironment builds the environment resolution starts from. The host
// PATH seeds the ENV component so program requests can probe it; pre
// variables may override it.
func baseEnvironment() *environ.Environment {
	vars := map[string]any{}
	if path := os.Getenv("PATH"); path != "" {
		vars["ENV"] = path
	}
	return environ.New(vars)
}

// environmentJSON serializes the environment variables to a JSON object.
func environmentJSON(env *environ.Environment) (string, error) {
	vars := make(map[string]any, env.Len())
	for _, key := range env.Keys() {
		vars[key] = env.Get(key)
	}
	out, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("failed to serialize environment: %w", err)
	}
	return string(out), nil
}

// providersJSON serializes the applied provider list to a JSON array.
func providersJSON(providers []string) (string, error) {
	if providers == nil {
		providers = []string{}
	}
	out, err := json.Marshal(providers)
	if err != nil {
		return "", fmt.Errorf("failed to serialize providers: %w", err)
	}
	return string(out), nil
}
