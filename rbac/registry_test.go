package rbac

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegistryDeterministicLayout(t *testing.T) {
	a, err := NewRegistry([]string{"b.read", "a.read", "c.write"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	b, err := NewRegistry([]string{"c.write", "b.read", "a.read"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	for _, name := range a.Names() {
		ai, _ := a.Bit(name)
		bi, _ := b.Bit(name)
		if ai != bi {
			t.Fatalf("bit for %q differs across insertion orders: %d vs %d", name, ai, bi)
		}
	}
}

func TestRegistryRejectsDuplicatesAndEmpty(t *testing.T) {
	if _, err := NewRegistry(nil); err == nil {
		t.Fatal("expected error for empty registry")
	}
	if _, err := NewRegistry([]string{"a", "a"}); err == nil {
		t.Fatal("expected error for duplicate name")
	}
	if _, err := NewRegistry([]string{""}); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestMaskOfAndHas(t *testing.T) {
	r, err := NewRegistry([]string{"users.read", "users.write", "audit.read"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	mask, err := r.MaskOf("users.read", "audit.read")
	if err != nil {
		t.Fatalf("MaskOf: %v", err)
	}

	if !r.Has(mask, "users.read") || !r.Has(mask, "audit.read") {
		t.Fatal("granted permissions not reported")
	}
	if r.Has(mask, "users.write") {
		t.Fatal("ungranted permission reported")
	}
	if r.Has(mask, "unknown.perm") {
		t.Fatal("unknown permission reported as granted")
	}
}

func TestMaskOfRejectsUnknownName(t *testing.T) {
	r, err := NewRegistry([]string{"users.read"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := r.MaskOf("nope"); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
}

func TestExpandRoundTrip(t *testing.T) {
	names := []string{"a.read", "b.read", "c.read", "d.read"}
	r, err := NewRegistry(names)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	mask, err := r.MaskOf("a.read", "c.read")
	if err != nil {
		t.Fatalf("MaskOf: %v", err)
	}
	got := r.Expand(mask)
	want := []string{"a.read", "c.read"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand mismatch: got %v want %v", got, want)
	}
}

func TestUnion(t *testing.T) {
	r, err := NewRegistry([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	ma, _ := r.MaskOf("a")
	mb, _ := r.MaskOf("b")

	merged := Union(ma, mb)
	if !r.Has(merged, "a") || !r.Has(merged, "b") || r.Has(merged, "c") {
		t.Fatalf("union wrong: %v", r.Expand(merged))
	}
}

func TestLargeRegistrySpansWords(t *testing.T) {
	names := make([]string, 130)
	for i := range names {
		names[i] = "perm." + string(rune('a'+i/26)) + string(rune('a'+i%26))
	}
	r, err := NewRegistry(names)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if len(r.NewMask()) != 3 {
		t.Fatalf("expected 3 words for 130 bits, got %d", len(r.NewMask()))
	}

	last := r.Names()[129]
	mask, err := r.MaskOf(last)
	if err != nil {
		t.Fatalf("MaskOf: %v", err)
	}
	if !r.Has(mask, last) {
		t.Fatal("high bit not set")
	}
}

func TestDefaultCatalogConsistency(t *testing.T) {
	perms := DefaultPermissions()
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
		if p.Name != p.Resource+"."+p.Action {
			t.Fatalf("permission name %q does not match resource.action", p.Name)
		}
	}

	r, err := NewRegistry(names)
	if err != nil {
		t.Fatalf("registry over default catalog: %v", err)
	}

	// Every role grant must reference a registered permission.
	for role, grants := range DefaultRoles() {
		if !role.System {
			t.Fatalf("default role %q must be a system role", role.Name)
		}
		if _, err := r.MaskOf(grants...); err != nil {
			t.Fatalf("role %q references unknown permission: %v", role.Name, err)
		}
	}
}
