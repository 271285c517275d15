package fieldtype

import (
	"errors"
	"sort"
	"testing"
)

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	d := &Descriptor{ID: "custom"}
	if err := r.Register(d); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	err := r.Register(&Descriptor{ID: "custom"})
	if !errors.Is(err, ErrDuplicateType) {
		t.Fatalf("expected ErrDuplicateType, got %v", err)
	}
}

func TestResolveUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("no_such_type")
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestResolveReturnsRegistered(t *testing.T) {
	r := NewRegistry()
	d := &Descriptor{ID: "custom"}
	if err := r.Register(d); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, err := r.Resolve("custom")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != d {
		t.Fatal("resolve returned a different descriptor")
	}
}

func TestTypesSorted(t *testing.T) {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	ids := r.Types()
	if len(ids) != 16 {
		t.Fatalf("expected 16 builtin types, got %d: %v", len(ids), ids)
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatalf("Types() not sorted: %v", ids)
	}
}

func TestRegisterBuiltinsTwice(t *testing.T) {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if err := RegisterBuiltins(r); !errors.Is(err, ErrDuplicateType) {
		t.Fatalf("expected ErrDuplicateType on second pass, got %v", err)
	}
}
