package registry

import (
	"errors"
	"testing"

	"github.com/tablefabric/vtable/internal/table"
)

func TestAddRejectsDuplicateName(t *testing.T) {
	r := New()
	if err := r.Add(table.New("orders")); err != nil {
		t.Fatalf("unexpected error registering the first table: %v", err)
	}
	err := r.Add(table.New("orders"))
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestGetAutoCreate(t *testing.T) {
	r := New()
	tbl := r.Get("widgets", true)
	if tbl == nil {
		t.Fatalf("expected auto-created table")
	}
	if again := r.Get("widgets", false); again != tbl {
		t.Fatalf("expected the same table instance on a second lookup")
	}
}

func TestGetWithoutAutoCreateReturnsNil(t *testing.T) {
	r := New()
	if r.Get("missing", false) != nil {
		t.Fatalf("expected nil for an unregistered name with autoCreate=false")
	}
}

func TestGetEmptyNameResolvesDefaultSingleton(t *testing.T) {
	r := New()
	a := r.Get("", true)
	b := r.Get("", true)
	if a != b {
		t.Fatalf("expected the empty-name lookup to resolve to one shared default table")
	}
}

func TestRemove(t *testing.T) {
	r := New()
	r.Add(table.New("temp"))
	r.Remove("temp")
	if r.Get("temp", false) != nil {
		t.Fatalf("expected the table to be gone after Remove")
	}
}

func TestDefaultIsProcessWide(t *testing.T) {
	ResetDefaultForTest()
	defer ResetDefaultForTest()
	if Default() != Default() {
		t.Fatalf("Default() must return the same singleton across calls")
	}
}
