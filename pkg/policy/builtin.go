package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		uniqueProvidersPolicy(),
		searchPathHygienePolicy(),
		toolchainPresencePolicy(),
		providerBudgetPolicy(),
	}
}

// uniqueProvidersPolicy rejects environments where a provider appears twice.
func uniqueProvidersPolicy() Policy {
	return Policy{
		Name:        "unique-providers",
		Description: "Rejects environments where the same provider has been applied more than once",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"providers", "consistency"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package confix.policies.providers

import rego.v1

deny contains violation if {
	input.environment
	providers := input.environment.providers

	some i, j
	providers[i] == providers[j]
	i < j

	violation := {
		"message": sprintf("Provider '%s' is applied more than once", [providers[i]]),
		"severity": "error",
		"provider": providers[i],
	}
}`,
	}
}

// searchPathHygienePolicy checks search-path variables for empty or relative entries.
func searchPathHygienePolicy() Policy {
	return Policy{
		Name:        "search-path-hygiene",
		Description: "Flags empty or parent-relative entries in search-path variables (LIBPATH, INCLUDE, ENV)",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"paths", "hygiene"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package confix.policies.paths

import rego.v1

search_path_vars := ["LIBPATH", "INCLUDE", "ENV", "CPPPATH"]

deny contains violation if {
	input.environment
	vars := input.environment.vars

	some key in search_path_vars
	entries := vars[key]
	is_array(entries)

	some entry in entries
	entry == ""

	violation := {
		"message": sprintf("Search path variable %s contains an empty entry", [key]),
		"severity": "warning",
		"variable": key,
	}
}

deny contains violation if {
	input.environment
	vars := input.environment.vars

	some key in search_path_vars
	entries := vars[key]
	is_array(entries)

	some entry in entries
	startswith(entry, "..")

	violation := {
		"message": sprintf("Search path variable %s contains parent-relative entry '%s'", [key, entry]),
		"severity": "warning",
		"variable": key,
	}
}`,
	}
}

// toolchainPresencePolicy warns when providers were applied but no compiler driver is set.
func toolchainPresencePolicy() Policy {
	return Policy{
		Name:        "toolchain-presence",
		Description: "Warns when providers were applied but neither CC nor LINK is set in the environment",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"toolchain"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package confix.policies.toolchain

import rego.v1

deny contains violation if {
	input.environment
	env := input.environment

	count(env.providers) > 0
	not env.vars.CC
	not env.vars.LINK

	violation := {
		"message": "Providers were applied but no compiler driver (CC or LINK) is set",
		"severity": "warning",
	}
}`,
	}
}

// providerBudgetPolicy warns when an environment accumulates an unusual number of providers.
func providerBudgetPolicy() Policy {
	return Policy{
		Name:        "provider-budget",
		Description: "Warns when a resolved environment carries more than 32 providers",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"providers", "budget"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package confix.policies.budget

import rego.v1

max_providers := 32

deny contains violation if {
	input.environment
	providers := input.environment.providers

	count(providers) > max_providers

	violation := {
		"message": sprintf("Environment carries %d providers (budget: %d) - check for toolchain fan-out", [count(providers), max_providers]),
		"severity": "warning",
	}
}`,
	}
}
