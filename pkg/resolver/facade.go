package resolver

import (
	"fmt"

	"github.com/confix/confix/pkg/checks"
)

// Require adds a bare requirement: checks with no component to resolve. The
// checks must pass against the environment as configured so far, possibly
// after other augments are reassigned.
func (s *Session) Require(name string, chks ...*checks.Check) (*Specification, error) {
	if len(chks) == 0 {
		return nil, fmt.Errorf("requirement check not specified")
	}
	if s.listing != nil {
		s.listing.add(ListRequires, name)
		return nil, nil
	}

	spec := NewSpecification(name, nil, chks, nil)
	added, err := s.AddAugment(spec)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, NewResolveError(KindRequirementNotMet, spec.Name)
	}
	return spec, nil
}

// FindComponent resolves one of the named component alternatives, searching
// the base environment and then the provider catalog. The optional checks
// must pass for a candidate to be accepted; depends names specifications
// whose checks are revalidated alongside this one.
func (s *Session) FindComponent(name string, components []string, chks []*checks.Check, depends ...*Specification) (*Specification, error) {
	if len(components) == 0 {
		return nil, fmt.Errorf("component not specified")
	}
	if s.listing != nil {
		s.listing.add(ListComponent, name)
		return nil, nil
	}

	spec := NewSpecification(name, components, chks, depends)
	added, err := s.AddAugment(spec)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, NewResolveError(KindProviderNotFound, spec.Name)
	}
	return spec, nil
}

// FindLibrary resolves a library. With no checks given it looks for the
// library by name in the LIBPATH directories; with checks given the library
// is check-only and the checks define what finding it means.
func (s *Session) FindLibrary(name string, chks []*checks.Check, depends ...*Specification) (*Specification, error) {
	if name == "" {
		return nil, fmt.Errorf("library name not specified")
	}
	if s.listing != nil {
		s.listing.add(ListLibrary, name)
		return nil, nil
	}

	var components []string
	if len(chks) == 0 {
		components = []string{"LIBPATH"}
		chks = []*checks.Check{checks.DirContains("LIBPATH", name)}
	}

	spec := NewSpecification(name, components, chks, depends)
	added, err := s.AddAugment(spec)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, NewResolveError(KindLibraryNotFound, spec.Name)
	}
	return spec, nil
}

// FindProgram resolves an external program on the environment's PATH,
// provided via the ENV component. Extra checks run in addition to the
// presence check.
func (s *Session) FindProgram(name string, extra ...*checks.Check) (*Specification, error) {
	if name == "" {
		return nil, fmt.Errorf("program name not specified")
	}
	if s.listing != nil {
		s.listing.add(ListProgram, name)
		return nil, nil
	}

	chks := append([]*checks.Check{checks.Program(name)}, extra...)
	spec := NewSpecification(name, []string{"ENV"}, chks, nil)
	added, err := s.AddAugment(spec)
	if err != nil {
		return nil, err
	}
	if !added {
		return nil, NewResolveError(KindProgramNotFound, spec.Name)
	}
	return spec, nil
}
