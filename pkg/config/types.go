package config

import (
	"fmt"
	"time"

	"github.com/confix/confix/pkg/checks"
)

// Request kinds understood by the resolver facade.
const (
	KindRequirement = "requirement"
	KindComponent   = "component"
	KindLibrary     = "library"
	KindProgram     = "program"
)

// ManifestMeta identifies a resolution manifest.
type ManifestMeta struct {
	// Name is the manifest name.
	Name string `json:"name" validate:"required"`

	// Version is the manifest version.
	Version string `json:"version,omitempty"`
}

// SettingsConfig holds the environment variables set around resolution.
type SettingsConfig struct {
	// Pre are variables set on the working environment before the first
	// request and re-applied after every reset.
	Pre map[string]interface{} `json:"pre,omitempty"`

	// Post are variables set on the final environment during finalization.
	Post map[string]interface{} `json:"post,omitempty"`

	// Script is an optional Starlark script evaluated at parse time. It
	// must define a `vars` dict whose entries merge over Pre.
	Script string `json:"script,omitempty"`
}

// ProvidersConfig configures the provider catalog.
type ProvidersConfig struct {
	// Paths lists directories searched for provider manifests.
	Paths []string `json:"paths,omitempty"`

	// Files lists individual provider manifest files.
	Files []string `json:"files,omitempty"`
}

// RequestConfig represents one resolution request from CUE.
type RequestConfig struct {
	// Name identifies the request in logs, history, and depends references.
	Name string `json:"name" validate:"required"`

	// Kind selects the facade operation.
	Kind string `json:"kind" validate:"required,oneof=requirement component library program"`

	// Components are the acceptable environment components, tried in order.
	// Only meaningful for component requests.
	Components []string `json:"components,omitempty"`

	// Checks must all pass for a candidate to be accepted.
	Checks []CheckConfig `json:"checks,omitempty"`

	// Depends names earlier requests whose checks are revalidated alongside
	// this one.
	Depends []string `json:"depends,omitempty"`
}

// CheckConfig represents one validation check from CUE. Type selects the
// check; the remaining fields parameterize it and unused ones are ignored.
type CheckConfig struct {
	// Type is the check type: link, dir-contains, component-value, program,
	// or starlark.
	Type string `json:"type" validate:"required,oneof=link dir-contains component-value program starlark"`

	// Source is the probe program for link checks.
	Source string `json:"source,omitempty"`

	// Ext is the probe source extension for link checks.
	Ext string `json:"ext,omitempty"`

	// Format is the expected object format for link checks.
	Format string `json:"format,omitempty"`

	// ISA is the expected machine type for link checks.
	ISA string `json:"isa,omitempty"`

	// Component names the environment variable for dir-contains and
	// component-value checks.
	Component string `json:"component,omitempty"`

	// Value is the expected value for component-value checks.
	Value string `json:"value,omitempty"`

	// Entry is the file looked for by dir-contains checks.
	Entry string `json:"entry,omitempty"`

	// Program is the executable looked for by program checks. Defaults to
	// the request name.
	Program string `json:"program,omitempty"`

	// Script is the Starlark source for starlark checks.
	Script string `json:"script,omitempty"`

	// TimeoutSeconds bounds starlark check execution. Zero means the
	// package default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// PolicyConfig configures the policy gate applied to finalized environments.
type PolicyConfig struct {
	// Enabled indicates if policy evaluation is enabled.
	Enabled bool `json:"enabled"`

	// Paths lists policy file paths loaded in addition to the builtins.
	Paths []string `json:"paths,omitempty"`

	// Mode is the enforcement mode (advisory, enforcing).
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=advisory enforcing"`

	// OnViolation specifies the action on violation (warn, fail).
	OnViolation string `json:"on_violation,omitempty" validate:"omitempty,oneof=warn fail"`
}

// StoreConfig configures resolution history persistence.
type StoreConfig struct {
	// Path is the SQLite database path.
	Path string `json:"path,omitempty"`
}

// ManifestConfig represents the fully parsed manifest from CUE.
type ManifestConfig struct {
	// Manifest is the manifest metadata.
	Manifest ManifestMeta `json:"manifest"`

	// Settings are the pre/post environment variables.
	Settings SettingsConfig `json:"settings"`

	// Providers configures the provider catalog search path.
	Providers ProvidersConfig `json:"providers"`

	// Requests are the resolution requests in declaration order.
	Requests []RequestConfig `json:"requests"`

	// Policy configures the policy gate.
	Policy *PolicyConfig `json:"policy,omitempty"`

	// Store configures history persistence.
	Store *StoreConfig `json:"store,omitempty"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the manifest was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "requests.compiler.checks").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output is the output data from Starlark.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}

const defaultStarlarkCheckTimeout = 30 * time.Second

// Build constructs the runtime check described by this configuration.
// requestName supplies defaults for checks that name their subject after
// the request.
func (cc CheckConfig) Build(requestName string) (*checks.Check, error) {
	switch cc.Type {
	case "link":
		return checks.Link(checks.LinkOptions{
			Source: cc.Source,
			Ext:    cc.Ext,
			Format: cc.Format,
			ISA:    cc.ISA,
		}), nil

	case "dir-contains":
		if cc.Component == "" {
			return nil, fmt.Errorf("dir-contains check requires a component")
		}
		entry := cc.Entry
		if entry == "" {
			entry = requestName
		}
		return checks.DirContains(cc.Component, entry), nil

	case "component-value":
		if cc.Component == "" {
			return nil, fmt.Errorf("component-value check requires a component")
		}
		return checks.ComponentValue(cc.Component, cc.Value), nil

	case "program":
		program := cc.Program
		if program == "" {
			program = requestName
		}
		return checks.Program(program), nil

	case "starlark":
		if cc.Script == "" {
			return nil, fmt.Errorf("starlark check requires a script")
		}
		timeout := defaultStarlarkCheckTimeout
		if cc.TimeoutSeconds > 0 {
			timeout = time.Duration(cc.TimeoutSeconds) * time.Second
		}
		return checks.Starlark(requestName, cc.Script, timeout), nil

	default:
		return nil, fmt.Errorf("unknown check type %q", cc.Type)
	}
}

// BuildChecks constructs the runtime checks for this request.
func (rc RequestConfig) BuildChecks() ([]*checks.Check, error) {
	if len(rc.Checks) == 0 {
		return nil, nil
	}
	built := make([]*checks.Check, 0, len(rc.Checks))
	for i, cc := range rc.Checks {
		c, err := cc.Build(rc.Name)
		if err != nil {
			return nil, fmt.Errorf("request %s check %d: %w", rc.Name, i, err)
		}
		built = append(built, c)
	}
	return built, nil
}
