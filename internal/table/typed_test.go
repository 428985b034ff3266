package table

import (
	"testing"

	"github.com/tablefabric/vtable/internal/value"
)

func TestTypedRoundTrip(t *testing.T) {
	tbl := New("t")
	base := tbl.GetAccessor("count")
	typed := NewTyped(base, int32(0))

	if err := typed.Set(value.I32(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := typed.Get(); got.Int64() != 5 {
		t.Fatalf("expected 5, got %v", got.Int64())
	}
	if typed.LastGetError() != nil {
		t.Fatalf("unexpected decode error: %v", typed.LastGetError())
	}
}

func TestTypedCapturesConvertError(t *testing.T) {
	tbl := New("t")
	base := tbl.GetAccessor("count")
	base.Set(value.String("not a number"))

	typed := NewTyped(base, int32(0))
	typed.Get()
	if typed.LastGetError() == nil {
		t.Fatalf("expected a conversion error decoding a string as i32")
	}
}

func TestTypedNullableZero(t *testing.T) {
	tbl := New("t")
	base := tbl.GetAccessor("maybe")
	typed := NewTyped(base, new(int32))

	got := typed.Get()
	if !got.IsNull {
		t.Fatalf("expected a null value for an unset nullable accessor")
	}
}
