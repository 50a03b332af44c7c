package config

import (
	"context"
	"testing"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	customSchema := `
#CustomType: {
	field1: string
	field2: int
}
`

	err := sr.RegisterSchema("custom", customSchema)
	if err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("custom")
	if !ok {
		t.Fatal("expected to find custom schema")
	}

	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}
}

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	builtins := []string{
		"manifest",
		"settings",
		"request",
		"check",
		"policy",
	}

	for _, name := range builtins {
		t.Run(name, func(t *testing.T) {
			schema, ok := sr.GetSchema(name)
			if !ok {
				t.Fatalf("built-in schema %s not found", name)
			}

			if schema.Err() != nil {
				t.Errorf("built-in schema %s has errors: %v", name, schema.Err())
			}
		})
	}
}

func TestSchemaRegistry_ValidateManifestMeta(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		meta    ManifestMeta
		wantErr bool
	}{
		{
			name:    "valid manifest",
			meta:    ManifestMeta{Name: "firmware", Version: "1.0"},
			wantErr: false,
		},
		{
			name:    "valid manifest without version",
			meta:    ManifestMeta{Name: "firmware"},
			wantErr: false,
		},
		{
			name:    "invalid manifest - bad name",
			meta:    ManifestMeta{Name: "has spaces"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateManifestMeta(ctx, tt.meta)

			if tt.wantErr {
				if err == nil {
					t.Error("expected validation error, got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected validation error: %v", err)
				}
			}
		})
	}
}

func TestSchemaRegistry_ValidateRequest(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		request RequestConfig
		wantErr bool
	}{
		{
			name: "valid component request",
			request: RequestConfig{
				Name:       "compiler",
				Kind:       KindComponent,
				Components: []string{"CC", "CXX"},
			},
			wantErr: false,
		},
		{
			name: "valid request with checks",
			request: RequestConfig{
				Name: "linker",
				Kind: KindComponent,
				Components: []string{"LINK"},
				Checks: []CheckConfig{
					{Type: "link", Format: "ELF", ISA: "x86_64"},
				},
			},
			wantErr: false,
		},
		{
			name: "invalid request - unknown kind",
			request: RequestConfig{
				Name: "compiler",
				Kind: "conjure",
			},
			wantErr: true,
		},
		{
			name: "invalid request - lowercase component",
			request: RequestConfig{
				Name:       "compiler",
				Kind:       KindComponent,
				Components: []string{"cc"},
			},
			wantErr: true,
		},
		{
			name: "invalid request - unknown check type",
			request: RequestConfig{
				Name: "compiler",
				Kind: KindComponent,
				Components: []string{"CC"},
				Checks: []CheckConfig{
					{Type: "telepathy"},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateRequest(ctx, tt.request)

			if tt.wantErr {
				if err == nil {
					t.Error("expected validation error, got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected validation error: %v", err)
				}
			}
		})
	}
}

func TestSchemaRegistry_ValidateCheck(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		check   CheckConfig
		wantErr bool
	}{
		{
			name:    "valid link check",
			check:   CheckConfig{Type: "link", Format: "ELF", ISA: "x86_64"},
			wantErr: false,
		},
		{
			name:    "valid starlark check",
			check:   CheckConfig{Type: "starlark", Script: "result = True", TimeoutSeconds: 5},
			wantErr: false,
		},
		{
			name:    "invalid check - bad format",
			check:   CheckConfig{Type: "link", Format: "COFF"},
			wantErr: true,
		},
		{
			name:    "invalid check - negative timeout",
			check:   CheckConfig{Type: "starlark", Script: "x = 1", TimeoutSeconds: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateCheck(ctx, tt.check)

			if tt.wantErr {
				if err == nil {
					t.Error("expected validation error, got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected validation error: %v", err)
				}
			}
		})
	}
}

func TestSchemaRegistry_ValidatePolicy(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	valid := PolicyConfig{Enabled: true, Mode: "enforcing", OnViolation: "fail"}
	if err := sr.ValidatePolicy(ctx, valid); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}

	invalid := PolicyConfig{Enabled: true, Mode: "strict"}
	if err := sr.ValidatePolicy(ctx, invalid); err == nil {
		t.Error("expected validation error for unknown mode")
	}
}

func TestSchemaRegistry_ListSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	names := sr.ListSchemas()
	if len(names) != 5 {
		t.Errorf("expected 5 built-in schemas, got %d: %v", len(names), names)
	}
}

func TestSchemaRegistry_ValidateUnknownSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	if err := sr.ValidateAgainstSchema(ctx, "nonexistent", struct{}{}); err == nil {
		t.Error("expected error for unknown schema")
	}
}
