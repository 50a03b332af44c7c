package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	// Register built-in schemas
	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	sr.RegisterSchema("manifest", builtinManifestSchema)
	sr.RegisterSchema("settings", builtinSettingsSchema)
	sr.RegisterSchema("request", builtinRequestSchema)
	sr.RegisterSchema("check", builtinCheckSchema)
	sr.RegisterSchema("policy", builtinPolicySchema)
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	// A schema file with a single top-level definition is stored as that
	// definition, so validation closes the struct and applies constraints.
	if iter, err := val.Fields(cue.Definitions(true)); err == nil {
		var def cue.Value
		count := 0
		for iter.Next() {
			if iter.Selector().IsDefinition() {
				def = iter.Value()
				count++
			}
		}
		if count == 1 {
			val = def
		}
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	// Convert data to CUE value
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	// Unify with schema (validates)
	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// Built-in schema definitions

const builtinManifestSchema = `
// Manifest schema for resolution manifest metadata
#Manifest: {
	// Name is the manifest name
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// Version is the manifest version
	version?: string
}
`

const builtinSettingsSchema = `
// Settings schema for pre/post environment variables
#Settings: {
	// Pre variables are set before the first request
	pre?: {[string]: _}

	// Post variables are set during finalization
	post?: {[string]: _}

	// Script is a Starlark script computing additional pre variables
	script?: string
}
`

const builtinRequestSchema = `
// Request schema for resolution requests
#Request: {
	// Name identifies the request
	name?: string & =~"^[a-zA-Z0-9._+-]+$"

	// Kind selects the resolver operation
	kind: "requirement" | "component" | "library" | "program"

	// Components are the acceptable environment components
	components?: [...string & =~"^[A-Z][A-Z0-9_]*$"]

	// Checks validate a candidate
	checks?: [...{
		type: "link" | "dir-contains" | "component-value" | "program" | "starlark"
		source?:          string
		ext?:             string
		format?:          "ELF" | "PE" | "<target>"
		isa?:             string
		component?:       string
		value?:           string
		entry?:           string
		program?:         string
		script?:          string
		timeout_seconds?: int & >=0
	}]

	// Depends names earlier requests revalidated with this one
	depends?: [...string]
}
`

const builtinCheckSchema = `
// Check schema for validation checks
#Check: {
	// Type selects the check
	type: "link" | "dir-contains" | "component-value" | "program" | "starlark"

	// Link check parameters
	source?: string
	ext?:    string
	format?: "ELF" | "PE" | "<target>"
	isa?:    string

	// Environment inspection parameters
	component?: string & =~"^[A-Z][A-Z0-9_]*$"
	value?:     string
	entry?:     string

	// Program check parameter
	program?: string

	// Starlark check parameters
	script?:          string
	timeout_seconds?: int & >=0
}
`

const builtinPolicySchema = `
// Policy schema for the environment policy gate
#Policy: {
	// Enabled turns policy evaluation on
	enabled: bool

	// Paths lists policy files loaded in addition to the builtins
	paths?: [...string]

	// Mode is the enforcement mode
	mode?: "advisory" | "enforcing"

	// OnViolation specifies the action on violation
	on_violation?: "warn" | "fail"
}
`

// ValidateManifestMeta validates manifest metadata against the manifest schema.
func (sr *SchemaRegistry) ValidateManifestMeta(ctx context.Context, meta ManifestMeta) error {
	return sr.ValidateAgainstSchema(ctx, "manifest", meta)
}

// ValidateSettings validates settings against the settings schema.
func (sr *SchemaRegistry) ValidateSettings(ctx context.Context, settings SettingsConfig) error {
	return sr.ValidateAgainstSchema(ctx, "settings", settings)
}

// ValidateRequest validates a request configuration against the request schema.
func (sr *SchemaRegistry) ValidateRequest(ctx context.Context, request RequestConfig) error {
	return sr.ValidateAgainstSchema(ctx, "request", request)
}

// ValidateCheck validates a check configuration against the check schema.
func (sr *SchemaRegistry) ValidateCheck(ctx context.Context, check CheckConfig) error {
	return sr.ValidateAgainstSchema(ctx, "check", check)
}

// ValidatePolicy validates a policy configuration against the policy schema.
func (sr *SchemaRegistry) ValidatePolicy(ctx context.Context, policy PolicyConfig) error {
	return sr.ValidateAgainstSchema(ctx, "policy", policy)
}
