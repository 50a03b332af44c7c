// Package config provides CUE manifest parsing and Starlark evaluation for
// Confix build-environment resolution.
//
// # Overview
//
// The config package implements the manifest evaluation phase of Confix,
// responsible for parsing CUE files that describe resolution requests,
// validating schemas, and executing Starlark scripts for procedural
// settings.
//
// # Features
//
//   - CUE manifest parsing from files, directories, and inline content
//   - Schema validation with built-in schemas for requests, checks, and policy
//   - Starlark script execution for procedural settings
//   - Type-safe manifest structures that build runtime checks
//   - Error reporting with file locations and line numbers
//
// # Components
//
// CUEParser: Main parser for CUE manifests. Produces a ManifestConfig whose
// requests drive the resolver session.
//
// SchemaRegistry: Manages CUE schemas for validation. Provides built-in
// schemas for the manifest shapes and supports custom schema registration.
//
// ScriptEvaluator: sandboxed Starlark execution with timeout enforcement
// and sandboxing. Provides built-in functions and type conversion between Go
// and Starlark.
//
// # Manifest Structure
//
// A resolution manifest names the environment components a build needs, the
// checks that validate them, and the providers that can supply them:
//
//	manifest: {
//	    name: "firmware"
//	    version: "1.0"
//	}
//
//	settings: {
//	    pre: {CC: "cc"}
//	    post: {VERBOSE: "1"}
//	}
//
//	providers: {
//	    paths: ["providers"]
//	}
//
//	requests: {
//	    compiler: {
//	        kind: "component"
//	        components: ["CC", "CXX"]
//	        checks: [{type: "link", format: "ELF", isa: "x86_64"}]
//	    }
//	    m: {kind: "library"}
//	    "pkg-config": {kind: "program"}
//	}
//
// Requests may also be given as an ordered list with explicit names. In the
// struct form, depends references must name requests declared earlier.
//
// # Starlark Integration
//
// A settings script computes pre-variables procedurally. The script sees the
// static pre block and the manifest metadata as inputs and must define a
// vars dict:
//
//	settings: script: """
//	    vars = {"BUILD_TAG": manifest["name"] + "-ci"}
//	    """
//
// # Security
//
// Starlark execution is sandboxed:
//   - No filesystem access
//   - No network access
//   - Timeout enforcement (default 30 seconds)
//   - Print statements suppressed
//   - Only safe built-in functions provided
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package config
