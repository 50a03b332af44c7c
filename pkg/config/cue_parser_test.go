package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCUEParser_ParseInline(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	tests := []struct {
		name      string
		content   string
		wantErr   bool
		errCount  int
		checkFunc func(*testing.T, *ManifestConfig)
	}{
		{
			name: "valid simple manifest",
			content: `
manifest: {
	name: "firmware"
	version: "1.0"
}

requests: {
	compiler: {
		kind: "component"
		components: ["CC", "CXX"]
	}
	m: {
		kind: "library"
	}
}
`,
			wantErr: false,
			checkFunc: func(t *testing.T, mc *ManifestConfig) {
				if mc.Manifest.Name != "firmware" {
					t.Errorf("expected manifest name 'firmware', got %s", mc.Manifest.Name)
				}
				if len(mc.Requests) != 2 {
					t.Fatalf("expected 2 requests, got %d", len(mc.Requests))
				}
				compiler := findRequest(mc.Requests, "compiler")
				if compiler == nil {
					t.Fatal("compiler request not found")
				}
				if compiler.Kind != KindComponent {
					t.Errorf("expected kind 'component', got %s", compiler.Kind)
				}
				if len(compiler.Components) != 2 || compiler.Components[0] != "CC" {
					t.Errorf("unexpected components: %v", compiler.Components)
				}
			},
		},
		{
			name: "invalid CUE syntax",
			content: `
manifest: {
	name: "test"
	invalid syntax here
}
`,
			wantErr:  true,
			errCount: 1,
		},
		{
			name: "missing request kind",
			content: `
requests: {
	compiler: {
		components: ["CC"]
	}
}
`,
			wantErr:  true,
			errCount: 1,
		},
		{
			name: "component request without components",
			content: `
requests: {
	compiler: {
		kind: "component"
	}
}
`,
			wantErr:  true,
			errCount: 1,
		},
		{
			name: "requirement request without checks",
			content: `
requests: {
	sane: {
		kind: "requirement"
	}
}
`,
			wantErr:  true,
			errCount: 1,
		},
		{
			name: "unknown check type",
			content: `
requests: {
	compiler: {
		kind: "component"
		components: ["CC"]
		checks: [{type: "telepathy"}]
	}
}
`,
			wantErr:  true,
			errCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc, err := parser.ParseInline(ctx, tt.content)

			if tt.wantErr {
				if err == nil && len(mc.Errors) == 0 {
					t.Errorf("expected error, got none")
				}
				if tt.errCount > 0 && len(mc.Errors) != tt.errCount {
					t.Errorf("expected %d errors, got %d: %v", tt.errCount, len(mc.Errors), mc.Errors)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if len(mc.Errors) > 0 {
					t.Errorf("unexpected validation errors: %v", mc.Errors)
				}
				if tt.checkFunc != nil {
					tt.checkFunc(t, mc)
				}
			}
		})
	}
}

func findRequest(requests []RequestConfig, name string) *RequestConfig {
	for i := range requests {
		if requests[i].Name == name {
			return &requests[i]
		}
	}
	return nil
}

func TestCUEParser_ParseFile(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	// Create temporary test file
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "build.cue")

	content := `
manifest: {
	name: "filetest"
	version: "1.0"
}

settings: {
	pre: {
		CC: "cc"
	}
	post: {
		VERBOSE: "1"
	}
}

providers: {
	paths: ["providers"]
}

requests: {
	linker: {
		kind: "component"
		components: ["LINK", "LD"]
		checks: [{type: "link", format: "ELF", isa: "x86_64"}]
	}
}

store: {
	path: "confix.db"
}
`

	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	mc, err := parser.Parse(ctx, []string{testFile})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mc.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", mc.Errors)
	}

	if mc.Manifest.Name != "filetest" {
		t.Errorf("expected manifest name 'filetest', got %s", mc.Manifest.Name)
	}

	if mc.Settings.Pre["CC"] != "cc" {
		t.Errorf("expected pre CC='cc', got %v", mc.Settings.Pre["CC"])
	}
	if mc.Settings.Post["VERBOSE"] != "1" {
		t.Errorf("expected post VERBOSE='1', got %v", mc.Settings.Post["VERBOSE"])
	}

	if len(mc.Providers.Paths) != 1 || mc.Providers.Paths[0] != "providers" {
		t.Errorf("unexpected provider paths: %v", mc.Providers.Paths)
	}

	if len(mc.Requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(mc.Requests))
	}
	linker := mc.Requests[0]
	if linker.Name != "linker" {
		t.Errorf("expected request name 'linker', got %s", linker.Name)
	}
	if len(linker.Checks) != 1 || linker.Checks[0].Type != "link" {
		t.Errorf("unexpected checks: %v", linker.Checks)
	}
	if linker.Checks[0].Format != "ELF" || linker.Checks[0].ISA != "x86_64" {
		t.Errorf("unexpected link constraints: %+v", linker.Checks[0])
	}

	if mc.Store == nil || mc.Store.Path != "confix.db" {
		t.Errorf("unexpected store config: %+v", mc.Store)
	}
}

func TestCUEParser_RequestList(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	content := `
manifest: {name: "listform", version: "1.0"}

requests: [
	{name: "compiler", kind: "component", components: ["CC"]},
	{name: "m", kind: "library"},
	{name: "pkg-config", kind: "program"},
]
`

	mc, err := parser.ParseInline(ctx, content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mc.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", mc.Errors)
	}

	if len(mc.Requests) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(mc.Requests))
	}

	// List form preserves declaration order
	want := []string{"compiler", "m", "pkg-config"}
	for i, name := range want {
		if mc.Requests[i].Name != name {
			t.Errorf("request %d = %s, want %s", i, mc.Requests[i].Name, name)
		}
	}
}

func TestCUEParser_Depends(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	content := `
manifest: {name: "deps", version: "1.0"}

requests: [
	{name: "compiler", kind: "component", components: ["CC"]},
	{
		name: "m"
		kind: "library"
		depends: ["compiler"]
	},
]
`

	mc, err := parser.ParseInline(ctx, content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mc.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", mc.Errors)
	}

	m := findRequest(mc.Requests, "m")
	if m == nil {
		t.Fatal("library request not found")
	}
	if len(m.Depends) != 1 || m.Depends[0] != "compiler" {
		t.Errorf("unexpected depends: %v", m.Depends)
	}
}

func TestCUEParser_DependsForwardReference(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	content := `
requests: [
	{
		name: "m"
		kind: "library"
		depends: ["compiler"]
	},
	{name: "compiler", kind: "component", components: ["CC"]},
]
`

	mc, err := parser.ParseInline(ctx, content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mc.Errors) != 1 {
		t.Fatalf("expected 1 error for forward depends reference, got %d: %v", len(mc.Errors), mc.Errors)
	}
}

func TestCUEParser_Policy(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	content := `
manifest: {name: "gated", version: "1.0"}

policy: {
	enabled: true
	paths: ["policies"]
	mode: "enforcing"
	on_violation: "fail"
}
`

	mc, err := parser.ParseInline(ctx, content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mc.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", mc.Errors)
	}

	if mc.Policy == nil {
		t.Fatal("expected policy config")
	}
	if !mc.Policy.Enabled {
		t.Error("expected policy enabled")
	}
	if mc.Policy.Mode != "enforcing" || mc.Policy.OnViolation != "fail" {
		t.Errorf("unexpected policy config: %+v", mc.Policy)
	}
}

func TestCUEParser_EvaluateSettings(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	mc := &ManifestConfig{
		Manifest: ManifestMeta{Name: "firmware", Version: "2.1"},
		Settings: SettingsConfig{
			Pre: map[string]interface{}{"CC": "cc"},
			Script: `
vars = {"BUILD_TAG": manifest["name"] + "-" + manifest["version"]}
`,
		},
	}

	pre, err := parser.EvaluateSettings(ctx, mc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pre["CC"] != "cc" {
		t.Errorf("expected static CC to survive, got %v", pre["CC"])
	}
	if pre["BUILD_TAG"] != "firmware-2.1" {
		t.Errorf("expected BUILD_TAG='firmware-2.1', got %v", pre["BUILD_TAG"])
	}
}

func TestCUEParser_EvaluateSettingsNoScript(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	mc := &ManifestConfig{
		Settings: SettingsConfig{
			Pre: map[string]interface{}{"CC": "gcc"},
		},
	}

	pre, err := parser.EvaluateSettings(ctx, mc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pre) != 1 || pre["CC"] != "gcc" {
		t.Errorf("unexpected pre vars: %v", pre)
	}
}

func TestCUEParser_EvaluateSettingsBadScript(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	tests := []struct {
		name   string
		script string
	}{
		{"no vars dict", `other = 1`},
		{"vars not a dict", `vars = "nope"`},
		{"runtime error", `vars = undefined_variable`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := &ManifestConfig{Settings: SettingsConfig{Script: tt.script}}
			if _, err := parser.EvaluateSettings(ctx, mc); err == nil {
				t.Error("expected error, got none")
			}
		})
	}
}

func TestCUEParser_ParseDirectory(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	tmpDir := t.TempDir()

	manifest := `package build

manifest: {name: "split", version: "1.0"}
`
	requests := `package build

requests: {
	compiler: {
		kind: "component"
		components: ["CC"]
	}
}
`
	// A third file extends the requests struct; the loaded package must
	// unify it with requests.cue rather than shadow it.
	extra := `package build

requests: {
	zlib: {
		kind: "library"
	}
}
`
	if err := os.WriteFile(filepath.Join(tmpDir, "manifest.cue"), []byte(manifest), 0644); err != nil {
		t.Fatalf("failed to write manifest.cue: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "requests.cue"), []byte(requests), 0644); err != nil {
		t.Fatalf("failed to write requests.cue: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "extra.cue"), []byte(extra), 0644); err != nil {
		t.Fatalf("failed to write extra.cue: %v", err)
	}

	mc, err := parser.Parse(ctx, []string{tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mc.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", mc.Errors)
	}

	if mc.Manifest.Name != "split" {
		t.Errorf("expected manifest name 'split', got %s", mc.Manifest.Name)
	}
	if len(mc.Requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(mc.Requests))
	}
	kinds := map[string]string{}
	for _, req := range mc.Requests {
		kinds[req.Name] = req.Kind
	}
	if kinds["compiler"] != KindComponent || kinds["zlib"] != KindLibrary {
		t.Errorf("unexpected merged requests: %v", kinds)
	}
}

func TestCUEParser_Validate(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	valid := &ManifestConfig{
		Manifest: ManifestMeta{Name: "ok"},
		Requests: []RequestConfig{
			{Name: "compiler", Kind: KindComponent, Components: []string{"CC"}},
		},
	}
	if err := parser.Validate(ctx, valid); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	invalid := &ManifestConfig{
		Manifest: ManifestMeta{Name: "ok"},
		Requests: []RequestConfig{
			{Name: "compiler", Kind: "conjure"},
		},
	}
	if err := parser.Validate(ctx, invalid); err == nil {
		t.Error("expected error for unknown request kind")
	}
}

func TestCUEParser_LoadFromDirectory(t *testing.T) {
	parser := NewCUEParser()

	tmpDir := t.TempDir()
	for _, name := range []string{"a.cue", "b.cue", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("x: 1\n"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	files, err := parser.LoadFromDirectory(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("expected 2 CUE files, got %d: %v", len(files), files)
	}
}
