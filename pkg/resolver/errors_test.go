package resolver

import (
	"errors"
	"fmt"
	"testing"
)

func TestResolveErrorMessages(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		name string
		want string
	}{
		{KindProviderNotFound, "LD", "no provider found that supplies a suitable 'LD'"},
		{KindLibraryNotFound, "m", "library 'm' not found"},
		{KindProgramNotFound, "gawk", "external program 'gawk' not found"},
		{KindRequirementNotMet, "threads", "requires 'threads' support"},
		{KindSessionActive, "", "a resolution session is already active"},
	}
	for _, tt := range tests {
		err := NewResolveError(tt.kind, tt.name)
		if err.Error() != tt.want {
			t.Errorf("%s: got %q, want %q", tt.kind, err.Error(), tt.want)
		}
	}
}

func TestResolveErrorClassification(t *testing.T) {
	err := fmt.Errorf("resolving: %w", NewResolveError(KindLibraryNotFound, "z"))

	if KindOf(err) != KindLibraryNotFound {
		t.Errorf("KindOf = %q", KindOf(err))
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound = false")
	}
	if !errors.Is(err, &ResolveError{Kind: KindLibraryNotFound}) {
		t.Error("errors.Is mismatch")
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("plain error classified as not-found")
	}
}
