// Package resolver implements incremental build-environment resolution. A
// Session accumulates augments, each backed by a Specification naming the
// environment components a caller needs, the checks that validate them, and
// the specifications it depends on. Adding an augment searches providers,
// reorders the applied set, and revalidates it, backtracking through
// alternative component assignments until the whole set passes or the search
// space is exhausted.
package resolver

import "github.com/confix/confix/pkg/checks"

// Specification describes one environment augment request: the acceptable
// components (alternatives, tried in order), the checks that must pass, and
// the specifications whose checks must also hold while this one is
// validated.
type Specification struct {
	// Name identifies the specification in logs and errors.
	Name string

	// Components are the acceptable environment components. Nil means the
	// specification is check-only.
	Components []string

	// Checks must all pass for a chosen component to be considered valid.
	Checks []*checks.Check

	// Dependencies are specifications whose checks are re-run whenever this
	// one is validated.
	Dependencies []*Specification
}

// NewSpecification builds a specification, deriving a display name when none
// is given: the first component, "[check]" for a check-only spec, or
// "[dependency]".
func NewSpecification(name string, components []string, chks []*checks.Check, depends []*Specification) *Specification {
	if name == "" {
		switch {
		case len(components) > 0:
			name = components[0]
		case len(chks) > 0:
			name = "[check]"
		default:
			name = "[dependency]"
		}
	}
	return &Specification{
		Name:         name,
		Components:   components,
		Checks:       chks,
		Dependencies: depends,
	}
}

// String returns the specification name.
func (s *Specification) String() string {
	return s.Name
}

// dependsOn reports whether other is among the specification's dependencies.
func (s *Specification) dependsOn(other *Specification) bool {
	for _, dep := range s.Dependencies {
		if dep == other {
			return true
		}
	}
	return false
}
