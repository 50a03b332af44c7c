package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
)

// CUEParser parses and validates CUE resolution manifests.
type CUEParser struct {
	ctx             *cue.Context
	schemaRegistry  *SchemaRegistry
	scriptEvaluator *ScriptEvaluator
	validator       *validator.Validate
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	return &CUEParser{
		ctx:             cuecontext.New(),
		schemaRegistry:  NewSchemaRegistry(),
		scriptEvaluator: NewScriptEvaluator(30 * time.Second),
		validator:       validator.New(),
	}
}

// Parse parses a resolution manifest from the given sources.
func (cp *CUEParser) Parse(ctx context.Context, sources []string) (*ManifestConfig, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var cueValue cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	// Determine if sources are files or directories
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if info.IsDir() {
			// Load directory as CUE package
			val, files, errs := cp.loadDirectory(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if cueValue.Exists() {
					cueValue = cueValue.Unify(val)
				} else {
					cueValue = val
				}
			}
			sourceFiles = append(sourceFiles, files...)
		} else {
			// Load single file
			val, errs := cp.loadFile(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if cueValue.Exists() {
					cueValue = cueValue.Unify(val)
				} else {
					cueValue = val
				}
			}
			sourceFiles = append(sourceFiles, source)
		}
	}

	// Check for parse errors
	if len(parseErrors) > 0 {
		return &ManifestConfig{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	// Validate the unified value
	if err := cueValue.Err(); err != nil {
		parseErrors = append(parseErrors, cp.convertCUEErrors(err)...)
		return &ManifestConfig{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	// Extract the manifest
	manifest, err := cp.extractManifest(cueValue, sourceFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to extract manifest: %w", err)
	}

	return manifest, nil
}

// ParseInline parses inline CUE content.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*ManifestConfig, error) {
	val := cp.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return &ManifestConfig{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      cp.convertCUEErrors(err),
		}, nil
	}

	return cp.extractManifest(val, []string{"inline"})
}

// EvaluateSettings resolves the manifest's pre-variables, running the
// settings Starlark script when one is given. Script values merge over the
// static pre block.
func (cp *CUEParser) EvaluateSettings(ctx context.Context, mc *ManifestConfig) (map[string]interface{}, error) {
	pre := make(map[string]interface{}, len(mc.Settings.Pre))
	for k, v := range mc.Settings.Pre {
		pre[k] = v
	}

	if mc.Settings.Script == "" {
		return pre, nil
	}

	input := map[string]interface{}{
		"pre":      mc.Settings.Pre,
		"manifest": map[string]interface{}{"name": mc.Manifest.Name, "version": mc.Manifest.Version},
	}
	result, err := cp.scriptEvaluator.Evaluate(ctx, mc.Settings.Script, input)
	if err != nil {
		return nil, fmt.Errorf("settings script failed: %w", err)
	}

	vars, ok := result.Output["vars"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("settings script must define a 'vars' dict")
	}
	for k, v := range vars {
		pre[k] = v
	}
	return pre, nil
}

// EvaluateStarlark executes a Starlark script for procedural logic.
func (cp *CUEParser) EvaluateStarlark(ctx context.Context, script string, input map[string]interface{}) (map[string]interface{}, error) {
	result, err := cp.scriptEvaluator.Evaluate(ctx, script, input)
	if err != nil {
		return nil, err
	}

	if result.Error != "" {
		return nil, fmt.Errorf("starlark error: %s", result.Error)
	}

	return result.Output, nil
}

// loadDirectory loads a directory as a CUE package. The pattern is
// relative with Dir anchoring it; load.Instances rejects absolute
// directories as package paths.
func (cp *CUEParser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(inst.Err)
	}

	val := cp.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(err)
	}

	// Get list of files
	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// loadFile loads a single CUE file.
func (cp *CUEParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := cp.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, cp.convertCUEErrors(err)
	}

	return val, nil
}

// extractManifest extracts the manifest from a CUE value.
func (cp *CUEParser) extractManifest(val cue.Value, sourceFiles []string) (*ManifestConfig, error) {
	mc := &ManifestConfig{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	// Extract manifest metadata
	metaVal := val.LookupPath(cue.ParsePath("manifest"))
	if metaVal.Exists() {
		var meta ManifestMeta
		if err := metaVal.Decode(&meta); err != nil {
			mc.Errors = append(mc.Errors, ValidationError{
				Path:     "manifest",
				Message:  fmt.Sprintf("failed to decode manifest: %v", err),
				Severity: "error",
			})
		} else {
			mc.Manifest = meta
		}
	}

	// Extract settings
	settingsVal := val.LookupPath(cue.ParsePath("settings"))
	if settingsVal.Exists() {
		var settings SettingsConfig
		if err := settingsVal.Decode(&settings); err != nil {
			mc.Errors = append(mc.Errors, ValidationError{
				Path:     "settings",
				Message:  fmt.Sprintf("failed to decode settings: %v", err),
				Severity: "error",
			})
		} else {
			mc.Settings = settings
		}
	}

	// Extract provider catalog configuration
	providersVal := val.LookupPath(cue.ParsePath("providers"))
	if providersVal.Exists() {
		var providers ProvidersConfig
		if err := providersVal.Decode(&providers); err != nil {
			mc.Errors = append(mc.Errors, ValidationError{
				Path:     "providers",
				Message:  fmt.Sprintf("failed to decode providers: %v", err),
				Severity: "error",
			})
		} else {
			mc.Providers = providers
		}
	}

	// Extract requests
	requestsVal := val.LookupPath(cue.ParsePath("requests"))
	if requestsVal.Exists() {
		cp.extractRequests(requestsVal, mc)
	}

	// Extract policy configuration
	policyVal := val.LookupPath(cue.ParsePath("policy"))
	if policyVal.Exists() {
		var policy PolicyConfig
		if err := policyVal.Decode(&policy); err != nil {
			mc.Errors = append(mc.Errors, ValidationError{
				Path:     "policy",
				Message:  fmt.Sprintf("failed to decode policy: %v", err),
				Severity: "error",
			})
		} else {
			mc.Policy = &policy
		}
	}

	// Extract store configuration
	storeVal := val.LookupPath(cue.ParsePath("store"))
	if storeVal.Exists() {
		var store StoreConfig
		if err := storeVal.Decode(&store); err != nil {
			mc.Errors = append(mc.Errors, ValidationError{
				Path:     "store",
				Message:  fmt.Sprintf("failed to decode store: %v", err),
				Severity: "error",
			})
		} else {
			mc.Store = &store
		}
	}

	cp.checkDependReferences(mc)

	return mc, nil
}

// extractRequests extracts the request set. Requests can be a map keyed by
// name or an ordered list with explicit names.
func (cp *CUEParser) extractRequests(val cue.Value, mc *ManifestConfig) {
	switch val.Kind() {
	case cue.StructKind:
		iter, err := val.Fields(cue.All())
		if err != nil {
			mc.Errors = append(mc.Errors, ValidationError{
				Path:     "requests",
				Message:  fmt.Sprintf("failed to iterate requests: %v", err),
				Severity: "error",
			})
			return
		}
		for iter.Next() {
			name := strings.Trim(iter.Selector().String(), `"`)
			request, err := cp.extractRequest(name, iter.Value())
			if err != nil {
				mc.Errors = append(mc.Errors, ValidationError{
					Path:     fmt.Sprintf("requests.%s", name),
					Message:  err.Error(),
					Severity: "error",
				})
			} else {
				mc.Requests = append(mc.Requests, request)
			}
		}

	case cue.ListKind:
		list, err := val.List()
		if err != nil {
			mc.Errors = append(mc.Errors, ValidationError{
				Path:     "requests",
				Message:  fmt.Sprintf("failed to list requests: %v", err),
				Severity: "error",
			})
			return
		}
		idx := 0
		for list.Next() {
			request, err := cp.extractRequest("", list.Value())
			if err != nil {
				mc.Errors = append(mc.Errors, ValidationError{
					Path:     fmt.Sprintf("requests[%d]", idx),
					Message:  err.Error(),
					Severity: "error",
				})
			} else {
				mc.Requests = append(mc.Requests, request)
			}
			idx++
		}

	default:
		mc.Errors = append(mc.Errors, ValidationError{
			Path:     "requests",
			Message:  "requests must be a struct or a list",
			Severity: "error",
		})
	}
}

// extractRequest extracts a request configuration from a CUE value.
func (cp *CUEParser) extractRequest(name string, val cue.Value) (RequestConfig, error) {
	var request RequestConfig

	// Decode the request
	if err := val.Decode(&request); err != nil {
		return request, fmt.Errorf("failed to decode request: %w", err)
	}

	// If the name is provided as key and not in the value, use the key
	if request.Name == "" && name != "" {
		request.Name = name
	}

	// Validate using struct tags
	if err := cp.validator.Struct(request); err != nil {
		return request, fmt.Errorf("validation failed: %w", err)
	}

	// Component requests must name at least one component
	if request.Kind == KindComponent && len(request.Components) == 0 {
		return request, fmt.Errorf("component request %s names no components", request.Name)
	}

	// Requirement requests are check-only
	if request.Kind == KindRequirement && len(request.Checks) == 0 {
		return request, fmt.Errorf("requirement request %s has no checks", request.Name)
	}

	// Checks must build
	if _, err := request.BuildChecks(); err != nil {
		return request, err
	}

	return request, nil
}

// checkDependReferences verifies that depends entries name earlier requests.
func (cp *CUEParser) checkDependReferences(mc *ManifestConfig) {
	seen := make(map[string]bool, len(mc.Requests))
	for _, req := range mc.Requests {
		for _, dep := range req.Depends {
			if !seen[dep] {
				mc.Errors = append(mc.Errors, ValidationError{
					Path:     fmt.Sprintf("requests.%s.depends", req.Name),
					Message:  fmt.Sprintf("depends references %q which is not an earlier request", dep),
					Severity: "error",
				})
			}
		}
		seen[req.Name] = true
	}
}

// Validate validates a parsed manifest against struct tags.
func (cp *CUEParser) Validate(ctx context.Context, mc *ManifestConfig) error {
	if err := cp.validator.Struct(mc.Manifest); err != nil {
		return fmt.Errorf("manifest validation failed: %w", err)
	}
	for _, req := range mc.Requests {
		if err := cp.validator.Struct(req); err != nil {
			return fmt.Errorf("request %s validation failed: %w", req.Name, err)
		}
	}
	if mc.Policy != nil {
		if err := cp.validator.Struct(mc.Policy); err != nil {
			return fmt.Errorf("policy validation failed: %w", err)
		}
	}
	return nil
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (cp *CUEParser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	// Handle CUE error types
	errs := errors.Errors(err)
	for _, e := range errs {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// ValidateWithSchema validates a CUE value against a schema.
func (cp *CUEParser) ValidateWithSchema(ctx context.Context, data interface{}, schemaName string) error {
	return cp.schemaRegistry.ValidateAgainstSchema(ctx, schemaName, data)
}

// GetSchemaRegistry returns the schema registry.
func (cp *CUEParser) GetSchemaRegistry() *SchemaRegistry {
	return cp.schemaRegistry
}

// ExtractValue extracts a specific path from a CUE configuration.
func (cp *CUEParser) ExtractValue(val cue.Value, path string) (interface{}, error) {
	v := val.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return nil, fmt.Errorf("path %s not found", path)
	}

	// Try to decode to JSON first
	var result interface{}
	if err := v.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode value at %s: %w", path, err)
	}

	return result, nil
}

// MergeValues merges two CUE values.
func (cp *CUEParser) MergeValues(val1, val2 cue.Value) (cue.Value, error) {
	merged := val1.Unify(val2)
	if err := merged.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to merge values: %w", err)
	}
	return merged, nil
}

// ExportJSON exports a CUE value to JSON.
func (cp *CUEParser) ExportJSON(val cue.Value) ([]byte, error) {
	var data interface{}
	if err := val.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}

	return json.MarshalIndent(data, "", "  ")
}

// LoadFromDirectory loads all CUE files from a directory.
func (cp *CUEParser) LoadFromDirectory(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return files, nil
}
