// Package policy provides Open Policy Agent (OPA) integration for Confix.
//
// This package implements a policy gate for resolved build environments using
// the Rego policy language. It includes built-in policies for common hygiene
// requirements and supports custom policy loading.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Loader - Loads policies from files and directories
//  3. Types - Data structures for policies, violations, and results
//  4. Built-in Policies - Pre-defined policies for common requirements
//
// # Usage
//
// Creating a policy engine:
//
//	logger := zerolog.New(os.Stdout)
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Evaluating a resolved environment:
//
//	result, err := engine.EvaluateEnvironment(ctx, env, &policy.RunInput{
//	    ID:       runID,
//	    Manifest: "build.cue",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Allowed {
//	    for _, violation := range result.Violations {
//	        fmt.Printf("Policy %s violated: %s\n", violation.Policy, violation.Message)
//	    }
//	}
//
// Loading custom policies:
//
//	paths := []string{
//	    "/etc/confix/policies",
//	    "/opt/policies/custom.rego",
//	}
//
//	err = engine.LoadPolicies(ctx, paths)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Policy Input
//
// Policies receive the resolved environment in the following shape:
//
//	{
//	    "environment": {
//	        "vars":      {"CC": "clang", "LIBPATH": ["/usr/lib"]},
//	        "providers": ["llvm", "binutils"]
//	    },
//	    "run":     {"id": "...", "manifest": "build.cue"},
//	    "context": {"timestamp": "...", "operation": "finalize"}
//	}
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. unique-providers - Rejects environments where a provider is applied twice
//  2. search-path-hygiene - Flags empty or parent-relative search path entries
//  3. toolchain-presence - Warns when providers are applied but no driver is set
//  4. provider-budget - Warns about unusual provider fan-out
//
// # Custom Policies
//
// Custom policies can be written in Rego and loaded from files:
//
//	package custom.policies.nodebug
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.environment
//	    vars := input.environment.vars
//
//	    contains(vars.CCFLAGS, "-g")
//
//	    violation := {
//	        "message": "Release environments must not carry debug flags",
//	        "severity": "error",
//	        "variable": "CCFLAGS",
//	    }
//	}
//
// # Severity Levels
//
// Violations have four severity levels:
//
//   - info: Informational messages
//   - warning: Issues that should be reviewed but don't block the run
//   - error: Issues that block the run
//   - critical: Severe issues requiring immediate attention
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return engine.LoadPolicies(ctx, paths)
//	})
//
// # Performance
//
// Policies are compiled once and reused for multiple evaluations. The engine
// uses OPA's PreparedEvalQuery for optimal performance. Caching is implemented
// at both the loader and engine levels.
package policy
