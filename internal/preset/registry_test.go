package preset

import "testing"

func replaceRegistry(t *testing.T) func() {
	t.Helper()
	prev := globalRegistry
	globalRegistry = newRegistry()
	return func() { globalRegistry = prev }
}

func TestRegisterResolveAndList(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	if err := Register(Preset{Key: "trunk"}); err != nil {
		t.Fatalf("register trunk failed: %v", err)
	}
	if err := Register(Preset{Key: "Static"}); err != nil {
		t.Fatalf("register static failed: %v", err)
	}

	if _, ok := Resolve("TRUNK"); !ok {
		t.Fatalf("resolve should be case-insensitive")
	}
	if _, ok := Resolve(""); ok {
		t.Fatalf("empty key should not resolve")
	}

	list := List()
	if len(list) != 2 {
		t.Fatalf("list length mismatch: %d", len(list))
	}
	if list[0].Key != "static" || list[1].Key != "trunk" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if keys := Keys(); len(keys) != 2 || keys[0] != "static" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	if err := Register(Preset{Key: "static"}); err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	if err := Register(Preset{Key: " STATIC "}); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
	if err := Register(Preset{}); err == nil {
		t.Fatalf("empty key should fail")
	}
}

func TestRequiresCrate(t *testing.T) {
	p := Preset{ImmutablePatterns: []string{"/favicon-{hash}.svg"}}
	if p.RequiresCrate() {
		t.Fatalf("pattern without {crate} should not require crate")
	}
	p.ImmutablePatterns = append(p.ImmutablePatterns, "/{crate}-{hash}.js")
	if !p.RequiresCrate() {
		t.Fatalf("pattern with {crate} should require crate")
	}
}
