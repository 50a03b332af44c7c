package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeRule(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write rule file: %v", err)
	}
	return path
}

func TestLoadRuleFile(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	content := `package confix.toolchain

# Compiler driver must never resolve to an empty string.

deny[msg] {
	input.environment.vars.CC == ""
	msg := "Compiler driver must not be empty"
}`
	path := writeRule(t, t.TempDir(), "toolchain-presence.rego", content)

	rule, err := loader.loadRuleFile(path)
	if err != nil {
		t.Fatalf("Failed to load rule: %v", err)
	}

	if rule.Name != "toolchain-presence" {
		t.Errorf("Expected name 'toolchain-presence', got '%s'", rule.Name)
	}
	if rule.Rego != content {
		t.Error("Rego source doesn't match")
	}
	if !rule.Enabled {
		t.Error("Rule should be enabled by default")
	}
	if rule.Severity != SeverityWarning {
		t.Errorf("Expected default severity warning, got '%s'", rule.Severity)
	}
	if rule.Description != "Compiler driver must never resolve to an empty string." {
		t.Errorf("Unexpected description: %q", rule.Description)
	}
}

func TestLoadRuleFile_SeverityHeader(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	content := `# Search paths must stay inside the workspace.
# severity: error
package confix.hygiene

deny[msg] { false }`
	path := writeRule(t, t.TempDir(), "search-path-hygiene.rego", content)

	rule, err := loader.loadRuleFile(path)
	if err != nil {
		t.Fatalf("Failed to load rule: %v", err)
	}

	if rule.Severity != SeverityError {
		t.Errorf("Expected severity error, got '%s'", rule.Severity)
	}
	if rule.Description != "Search paths must stay inside the workspace." {
		t.Errorf("Severity line leaked into description: %q", rule.Description)
	}
}

func TestLoadRuleFile_UnknownSeverityIgnored(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	content := `# severity: catastrophic
package confix

deny[msg] { false }`
	path := writeRule(t, t.TempDir(), "rule.rego", content)

	rule, err := loader.loadRuleFile(path)
	if err != nil {
		t.Fatalf("Failed to load rule: %v", err)
	}
	if rule.Severity != SeverityWarning {
		t.Errorf("Unknown severity should fall back to warning, got '%s'", rule.Severity)
	}
}

func TestLoadRuleFile_NotRego(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	path := writeRule(t, t.TempDir(), "rule.txt", "not a rule")

	if _, err := loader.loadRuleFile(path); err == nil {
		t.Error("Expected error for non-rego file")
	}
}

func TestLoadFromPaths(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	tmpDir := t.TempDir()

	ruleDir := filepath.Join(tmpDir, "policies")
	if err := os.Mkdir(ruleDir, 0755); err != nil {
		t.Fatalf("Failed to create rule directory: %v", err)
	}
	writeRule(t, ruleDir, "one.rego", "package p1\ndeny[msg] { false }")
	writeRule(t, ruleDir, "two.rego", "package p2\ndeny[msg] { false }")

	single := writeRule(t, tmpDir, "three.rego", "package p3\ndeny[msg] { false }")

	rules, err := loader.LoadFromPaths(context.Background(), []string{ruleDir, single})
	if err != nil {
		t.Fatalf("Failed to load paths: %v", err)
	}
	if len(rules) != 3 {
		t.Errorf("Expected 3 rules, got %d", len(rules))
	}
}

func TestLoadFromPaths_RecursiveAndIgnoresOtherFiles(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	tmpDir := t.TempDir()

	subDir := filepath.Join(tmpDir, "toolchain")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}
	writeRule(t, tmpDir, "top.rego", "package top\ndeny[msg] { false }")
	writeRule(t, subDir, "nested.rego", "package nested\ndeny[msg] { false }")
	writeRule(t, tmpDir, "README.md", "# rule directory")

	rules, err := loader.LoadFromPaths(context.Background(), []string{tmpDir})
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("Expected 2 rules, got %d", len(rules))
	}
}

func TestLoadFromPaths_NonExistent(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))

	if _, err := loader.LoadFromPaths(context.Background(), []string{"/nonexistent/path"}); err == nil {
		t.Error("Expected error for non-existent path")
	}
}

func TestLoadRuleFile_CachePicksUpEdits(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	tmpDir := t.TempDir()

	path := writeRule(t, tmpDir, "rule.rego", "# first\npackage p\ndeny[msg] { false }")
	rule, err := loader.loadRuleFile(path)
	if err != nil {
		t.Fatalf("Failed to load rule: %v", err)
	}
	if rule.Description != "first" {
		t.Fatalf("Unexpected description: %q", rule.Description)
	}

	// Rewrite with a mod time in the future so the cache check cannot
	// miss the edit on coarse-grained filesystems.
	writeRule(t, tmpDir, "rule.rego", "# second\npackage p\ndeny[msg] { false }")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Failed to bump mod time: %v", err)
	}

	rule, err = loader.loadRuleFile(path)
	if err != nil {
		t.Fatalf("Failed to reload rule: %v", err)
	}
	if rule.Description != "second" {
		t.Errorf("Expected reloaded description 'second', got %q", rule.Description)
	}
}

func TestClearCache(t *testing.T) {
	loader := NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
	path := writeRule(t, t.TempDir(), "rule.rego", "package p\ndeny[msg] { false }")

	if _, err := loader.loadRuleFile(path); err != nil {
		t.Fatalf("Failed to load rule: %v", err)
	}
	if len(loader.cache) != 1 {
		t.Errorf("Expected 1 cache entry, got %d", len(loader.cache))
	}

	loader.ClearCache()
	if len(loader.cache) != 0 {
		t.Errorf("Expected empty cache after clear, got %d entries", len(loader.cache))
	}
}

func TestParseRuleHeader(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantDesc     string
		wantSeverity Severity
	}{
		{
			name:         "single line",
			content:      "# Providers must be unique\npackage test",
			wantDesc:     "Providers must be unique",
			wantSeverity: SeverityWarning,
		},
		{
			name: "multi line with severity",
			content: `# Budget for provider count
# per resolved environment.
# severity: critical
package test`,
			wantDesc:     "Budget for provider count per resolved environment.",
			wantSeverity: SeverityCritical,
		},
		{
			name:         "no header",
			content:      "package test\ndeny[msg] { false }",
			wantDesc:     "",
			wantSeverity: SeverityWarning,
		},
		{
			name: "comment after package clause",
			content: `package test

# Search paths must stay inside the workspace.
# severity: error

deny[msg] { false }`,
			wantDesc:     "Search paths must stay inside the workspace.",
			wantSeverity: SeverityError,
		},
		{
			name: "comment after rule ignored",
			content: `# Header line
package test
deny[msg] { false }
# trailing comment`,
			wantDesc:     "Header line",
			wantSeverity: SeverityWarning,
		},
		{
			name: "header around imports",
			content: `# Applied providers
package test
import future.keywords.in
# must be catalog members.
deny[msg] { false }`,
			wantDesc:     "Applied providers must be catalog members.",
			wantSeverity: SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, severity := parseRuleHeader(tt.content)
			if desc != tt.wantDesc {
				t.Errorf("Expected description %q, got %q", tt.wantDesc, desc)
			}
			if severity != tt.wantSeverity {
				t.Errorf("Expected severity %q, got %q", tt.wantSeverity, severity)
			}
		})
	}
}
