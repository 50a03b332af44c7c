package config

import (
	"testing"
)

func TestCheckConfig_Build(t *testing.T) {
	tests := []struct {
		name        string
		check       CheckConfig
		requestName string
		wantName    string
		wantErr     bool
	}{
		{
			name:        "link check",
			check:       CheckConfig{Type: "link", Format: "ELF", ISA: "x86_64"},
			requestName: "compiler",
			wantName:    "link",
		},
		{
			name:        "dir-contains with explicit entry",
			check:       CheckConfig{Type: "dir-contains", Component: "LIBPATH", Entry: "libm.a"},
			requestName: "m",
			wantName:    "dir-contains libm.a in $LIBPATH",
		},
		{
			name:        "dir-contains defaults entry to request name",
			check:       CheckConfig{Type: "dir-contains", Component: "INCLUDE"},
			requestName: "stdio.h",
			wantName:    "dir-contains stdio.h in $INCLUDE",
		},
		{
			name:        "dir-contains without component",
			check:       CheckConfig{Type: "dir-contains", Entry: "libm.a"},
			requestName: "m",
			wantErr:     true,
		},
		{
			name:        "component-value",
			check:       CheckConfig{Type: "component-value", Component: "CC", Value: "clang"},
			requestName: "compiler",
			wantName:    `component $CC has "clang"`,
		},
		{
			name:        "component-value without component",
			check:       CheckConfig{Type: "component-value", Value: "clang"},
			requestName: "compiler",
			wantErr:     true,
		},
		{
			name:        "program defaults to request name",
			check:       CheckConfig{Type: "program"},
			requestName: "pkg-config",
			wantName:    "program pkg-config",
		},
		{
			name:        "starlark",
			check:       CheckConfig{Type: "starlark", Script: "result = True", TimeoutSeconds: 5},
			requestName: "sane",
			wantName:    "sane",
		},
		{
			name:        "starlark without script",
			check:       CheckConfig{Type: "starlark"},
			requestName: "sane",
			wantErr:     true,
		},
		{
			name:        "unknown type",
			check:       CheckConfig{Type: "telepathy"},
			requestName: "x",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.check.Build(tt.requestName)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c == nil {
				t.Fatal("expected a check")
			}
			if tt.wantName != "" && c.Name != tt.wantName {
				t.Errorf("check name = %q, want %q", c.Name, tt.wantName)
			}
		})
	}
}

func TestRequestConfig_BuildChecks(t *testing.T) {
	rc := RequestConfig{
		Name: "compiler",
		Kind: KindComponent,
		Checks: []CheckConfig{
			{Type: "link", Format: "ELF"},
			{Type: "component-value", Component: "CC", Value: "clang"},
		},
	}

	built, err := rc.BuildChecks()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(built) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(built))
	}
}

func TestRequestConfig_BuildChecksPropagatesErrors(t *testing.T) {
	rc := RequestConfig{
		Name: "compiler",
		Kind: KindComponent,
		Checks: []CheckConfig{
			{Type: "starlark"},
		},
	}

	if _, err := rc.BuildChecks(); err == nil {
		t.Error("expected error for starlark check without script")
	}
}

func TestRequestConfig_BuildChecksEmpty(t *testing.T) {
	rc := RequestConfig{Name: "m", Kind: KindLibrary}

	built, err := rc.BuildChecks()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built != nil {
		t.Errorf("expected nil checks, got %v", built)
	}
}
