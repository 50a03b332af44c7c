package environ

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestEnvironment_CloneIsDeep(t *testing.T) {
	env := New(map[string]any{
		"CC":      "gcc",
		"LIBPATH": []string{"/usr/lib"},
	})

	clone := env.Clone()
	clone.Set("CC", "clang")
	clone.Append("LIBPATH", "/opt/lib")

	if env.String("CC") != "gcc" {
		t.Errorf("Expected original CC to stay gcc, got %s", env.String("CC"))
	}
	if len(env.List("LIBPATH")) != 1 {
		t.Errorf("Expected original LIBPATH unchanged, got %v", env.List("LIBPATH"))
	}
	if clone.String("CC") != "clang" {
		t.Errorf("Expected clone CC to be clang, got %s", clone.String("CC"))
	}
}

func TestEnvironment_SetDefault(t *testing.T) {
	env := New(map[string]any{"CC": "gcc"})

	env.SetDefault("CC", "clang")
	env.SetDefault("LD", "ld")

	if env.String("CC") != "gcc" {
		t.Errorf("Expected SetDefault to keep existing CC, got %s", env.String("CC"))
	}
	if env.String("LD") != "ld" {
		t.Errorf("Expected SetDefault to set absent LD, got %s", env.String("LD"))
	}
}

func TestEnvironment_AppendPromotesScalar(t *testing.T) {
	env := New(map[string]any{"LIBPATH": "/usr/lib"})

	env.Append("LIBPATH", "/opt/lib")

	want := []string{"/usr/lib", "/opt/lib"}
	if !reflect.DeepEqual(env.List("LIBPATH"), want) {
		t.Errorf("Expected %v, got %v", want, env.List("LIBPATH"))
	}
}

func TestEnvironment_AppendUnique(t *testing.T) {
	env := New(nil)

	env.Append("INCLUDE", "/usr/include")
	env.AppendUnique("INCLUDE", "/usr/include", "/opt/include")

	want := []string{"/usr/include", "/opt/include"}
	if !reflect.DeepEqual(env.List("INCLUDE"), want) {
		t.Errorf("Expected %v, got %v", want, env.List("INCLUDE"))
	}
}

func TestEnvironment_PathHelpers(t *testing.T) {
	env := New(nil)
	sep := string(os.PathListSeparator)

	env.AppendPath("PATH", "/usr/bin")
	env.AppendPath("PATH", "/usr/local/bin")
	env.PrependPath("PATH", "/opt/bin")

	want := "/opt/bin" + sep + "/usr/bin" + sep + "/usr/local/bin"
	if env.String("PATH") != want {
		t.Errorf("Expected %q, got %q", want, env.String("PATH"))
	}
}

func TestEnvironment_TrimProviders(t *testing.T) {
	env := New(nil)
	env.providers = []string{"a", "b", "c"}

	env.TrimProviders(2)

	if got := env.Providers(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Expected providers [a b], got %v", got)
	}
}

func TestIsComponentKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"LD", true},
		{"LIBPATH", true},
		{"TARGET_ARCH_TYPE", true},
		{"TOOLS", false},
		{"_PRIVATE", false},
		{"ldflags", false},
		{"Mixed", false},
		{"CCPREFIX", false},
		{"OBJSUFFIX", false},
		{"LINKFLAGS", false},
		{"LINKCOM", false},
		{"CCVERSION", false},
		{"123", false},
	}

	for _, tt := range tests {
		if got := IsComponentKey(tt.key); got != tt.want {
			t.Errorf("IsComponentKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestRecorder_FiltersAndRecords(t *testing.T) {
	env := New(nil)
	rec := NewRecorder(env, IsComponentKey)

	rec.Set("LD", "ld")
	rec.Set("LINKFLAGS", "-static")
	rec.Append("LIBPATH", "/usr/lib")

	want := []string{"LD", "LIBPATH"}
	if !reflect.DeepEqual(rec.Keys(), want) {
		t.Errorf("Expected recorded keys %v, got %v", want, rec.Keys())
	}
	if env.String("LINKFLAGS") != "-static" {
		t.Errorf("Expected write to pass through filter, got %q", env.String("LINKFLAGS"))
	}
}

func TestRecorder_SetDefaultRecordsOnlyEffectiveWrites(t *testing.T) {
	env := New(map[string]any{"CC": "gcc"})
	rec := NewRecorder(env, IsComponentKey)

	rec.SetDefault("CC", "clang")
	rec.SetDefault("LD", "ld")

	if got := rec.Keys(); !reflect.DeepEqual(got, []string{"LD"}) {
		t.Errorf("Expected only LD recorded, got %v", got)
	}
	if env.String("CC") != "gcc" {
		t.Errorf("Expected CC untouched, got %s", env.String("CC"))
	}
}

func TestCatalog_LoadDirAndApply(t *testing.T) {
	dir := t.TempDir()
	manifest := `
name: gnu-ld
sets:
  LD: ld
  LDVERSION: "2.40"
appends:
  LIBPATH:
    - /usr/lib
`
	if err := os.WriteFile(filepath.Join(dir, "gnu-ld.yaml"), []byte(manifest), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	catalog := NewCatalog()
	if err := catalog.LoadDir(dir); err != nil {
		t.Fatalf("Expected LoadDir to succeed, got: %v", err)
	}
	if !catalog.Has("gnu-ld") {
		t.Fatal("Expected gnu-ld in catalog")
	}

	env := New(nil)
	if err := env.Apply(catalog, "gnu-ld"); err != nil {
		t.Fatalf("Expected Apply to succeed, got: %v", err)
	}
	if env.String("LD") != "ld" {
		t.Errorf("Expected LD=ld, got %s", env.String("LD"))
	}
	if got := env.Providers(); !reflect.DeepEqual(got, []string{"gnu-ld"}) {
		t.Errorf("Expected providers [gnu-ld], got %v", got)
	}
}

func TestCatalog_LoadFileList(t *testing.T) {
	dir := t.TempDir()
	manifest := `
- name: binutils
  sets:
    AR: ar
- name: gcc-toolchain
  members: [binutils]
  sets:
    CC: gcc
`
	path := filepath.Join(dir, "toolchain.yaml")
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	catalog := NewCatalog()
	if err := catalog.LoadFile(path); err != nil {
		t.Fatalf("Expected LoadFile to succeed, got: %v", err)
	}

	env := New(nil)
	if err := env.Apply(catalog, "gcc-toolchain"); err != nil {
		t.Fatalf("Expected Apply to succeed, got: %v", err)
	}

	want := []string{"gcc-toolchain", "binutils"}
	if got := env.Providers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected providers %v, got %v", want, got)
	}
	if env.String("AR") != "ar" {
		t.Errorf("Expected member apply to set AR, got %q", env.String("AR"))
	}
}

func TestCatalog_RejectsInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("sets:\n  LD: ld\n"), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	catalog := NewCatalog()
	if err := catalog.LoadFile(path); err == nil {
		t.Fatal("Expected error for manifest without a name")
	}
}

func TestCatalog_RejectsSetAndDefaultOverlap(t *testing.T) {
	dir := t.TempDir()
	manifest := `
name: clashing
sets:
  LD: lld
defaults:
  LD: ld
`
	path := filepath.Join(dir, "clashing.yaml")
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	catalog := NewCatalog()
	if err := catalog.LoadFile(path); err == nil {
		t.Fatal("Expected error for manifest that sets and defaults the same variable")
	}
}
