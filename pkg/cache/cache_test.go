package cache

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/confix/confix/pkg/environ"
)

func newTestCatalog() *environ.Catalog {
	catalog := environ.NewCatalog()
	catalog.Register(&environ.FuncProvider{
		ProviderName: "gnu-ld",
		ApplyFunc: func(m environ.Mutator) error {
			m.SetDefault("LD", "ld")
			m.Set("LDVERSION", "2.40")
			return nil
		},
	})
	catalog.Register(&environ.FuncProvider{
		ProviderName: "llvm-ld",
		ApplyFunc: func(m environ.Mutator) error {
			m.SetDefault("LD", "ld.lld")
			return nil
		},
	})
	catalog.Register(&environ.FuncProvider{
		ProviderName: "headers",
		ApplyFunc: func(m environ.Mutator) error {
			m.Append("INCLUDE", "/usr/include")
			return nil
		},
	})
	return catalog
}

func TestFor_SharesCachePerBaseEnvironment(t *testing.T) {
	catalog := newTestCatalog()
	base := environ.New(nil)
	other := environ.New(nil)

	a := For(base, catalog, zerolog.Nop())
	b := For(base, catalog, zerolog.Nop())
	c := For(other, catalog, zerolog.Nop())

	if a != b {
		t.Error("Expected the same cache for the same base environment")
	}
	if a == c {
		t.Error("Expected a fresh cache for a fresh base environment")
	}
}

func TestDetect_OverlapFlags(t *testing.T) {
	catalog := newTestCatalog()
	c := For(environ.New(nil), catalog, zerolog.Nop())

	members, comps, err := c.Detect("gnu-ld")
	if err != nil {
		t.Fatalf("Expected detect to succeed, got: %v", err)
	}

	if !reflect.DeepEqual(members, []string{"gnu-ld"}) {
		t.Errorf("Expected members [gnu-ld], got %v", members)
	}

	// LD is written with a default: the second application does not touch
	// it, so it stays exclusive. LDVERSION is filtered out as metadata.
	ld, ok := comps["LD"]
	if !ok {
		t.Fatal("Expected LD component")
	}
	if ld.Overlap {
		t.Error("Expected LD to be flagged no-overlap")
	}
	if _, ok := comps["LDVERSION"]; ok {
		t.Error("Expected LDVERSION to be filtered out")
	}
}

func TestDetect_OverlappingComponent(t *testing.T) {
	catalog := newTestCatalog()
	c := For(environ.New(nil), catalog, zerolog.Nop())

	_, comps, err := c.Detect("headers")
	if err != nil {
		t.Fatalf("Expected detect to succeed, got: %v", err)
	}

	// Appends fire on every application, so INCLUDE shows up in the second
	// pass and is flagged as overlapping.
	inc, ok := comps["INCLUDE"]
	if !ok {
		t.Fatal("Expected INCLUDE component")
	}
	if !inc.Overlap {
		t.Error("Expected INCLUDE to be flagged overlapping")
	}
}

func TestAdd_IdempotentDiscovery(t *testing.T) {
	catalog := newTestCatalog()
	c := For(environ.New(nil), catalog, zerolog.Nop())

	if err := c.Add("gnu-ld"); err != nil {
		t.Fatalf("Expected add to succeed, got: %v", err)
	}
	before := c.Providers()

	if err := c.Add("gnu-ld"); err != nil {
		t.Fatalf("Expected second add to succeed, got: %v", err)
	}
	if !reflect.DeepEqual(c.Providers(), before) {
		t.Errorf("Expected provider order unchanged, got %v", c.Providers())
	}
	if !c.Supplies("gnu-ld", "LD") {
		t.Error("Expected gnu-ld to supply LD")
	}
}

func TestAdd_ToolchainMembersOrderedBeforeBundle(t *testing.T) {
	catalog := environ.NewCatalog()
	catalog.Register(&environ.FuncProvider{
		ProviderName: "cc",
		ApplyFunc: func(m environ.Mutator) error {
			m.SetDefault("CC", "gcc")
			return nil
		},
	})
	catalog.Register(&environ.FuncProvider{
		ProviderName: "ld",
		ApplyFunc: func(m environ.Mutator) error {
			m.SetDefault("LD", "ld")
			return nil
		},
	})
	catalog.Register(&environ.FuncProvider{
		ProviderName:    "toolchain",
		ProviderMembers: []string{"cc", "ld"},
	})

	c := For(environ.New(nil), catalog, zerolog.Nop())
	if err := c.Add("toolchain"); err != nil {
		t.Fatalf("Expected add to succeed, got: %v", err)
	}

	providers := c.Providers()
	ti := indexOfString(providers, "toolchain")
	ci := indexOfString(providers, "cc")
	li := indexOfString(providers, "ld")
	if ci >= ti || li >= ti {
		t.Errorf("Expected members before bundle, got order %v", providers)
	}
	if !c.Supplies("cc", "CC") || !c.Supplies("ld", "LD") {
		t.Error("Expected members to be discovered recursively")
	}
}

func TestNext_ForwardScanAndOffsets(t *testing.T) {
	catalog := newTestCatalog()
	c := For(environ.New(nil), catalog, zerolog.Nop())

	offset := 0
	comp, provider, ok, err := c.Next([]string{"LD"}, "", "", &offset)
	if err != nil || !ok {
		t.Fatalf("Expected a match, got ok=%v err=%v", ok, err)
	}
	if comp != "LD" || provider != "gnu-ld" {
		t.Errorf("Expected (LD, gnu-ld), got (%s, %s)", comp, provider)
	}

	// Probe one step forward from the current choice.
	offset = 1
	comp, provider, ok, err = c.Next([]string{"LD"}, "LD", "gnu-ld", &offset)
	if err != nil || !ok {
		t.Fatalf("Expected a match, got ok=%v err=%v", ok, err)
	}
	if provider != "llvm-ld" {
		t.Errorf("Expected llvm-ld one step forward, got %s", provider)
	}

	// And back again.
	offset = -1
	comp, provider, ok, err = c.Next([]string{"LD"}, "LD", "llvm-ld", &offset)
	if err != nil || !ok {
		t.Fatalf("Expected a match, got ok=%v err=%v", ok, err)
	}
	if provider != "gnu-ld" {
		t.Errorf("Expected gnu-ld one step backward, got %s", provider)
	}
	if comp != "LD" {
		t.Errorf("Expected component LD, got %s", comp)
	}
}

func TestNext_ExhaustionReturnsNoMatch(t *testing.T) {
	catalog := newTestCatalog()
	c := For(environ.New(nil), catalog, zerolog.Nop())

	offset := 0
	_, _, ok, err := c.Next([]string{"FORTRAN"}, "", "", &offset)
	if err != nil {
		t.Fatalf("Expected scan to succeed, got: %v", err)
	}
	if ok {
		t.Error("Expected no match for an unknown component")
	}

	offset = 5
	_, _, ok, err = c.Next([]string{"LD"}, "", "", &offset)
	if err != nil {
		t.Fatalf("Expected scan to succeed, got: %v", err)
	}
	if ok {
		t.Error("Expected no match when the offset exceeds the match count")
	}
}
