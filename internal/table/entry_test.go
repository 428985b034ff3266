package table

import (
	"testing"

	"github.com/tablefabric/vtable/internal/value"
)

func TestBumpSeqSkipsZeroOnWrap(t *testing.T) {
	if got := bumpSeq(0xFFFFFFFF); got != 1 {
		t.Fatalf("expected wraparound to skip zero and land on 1, got %d", got)
	}
	if got := bumpSeq(0); got != 1 {
		t.Fatalf("expected the first bump from zero to land on 1, got %d", got)
	}
	if got := bumpSeq(5); got != 6 {
		t.Fatalf("expected a plain increment, got %d", got)
	}
}

func TestEntryResetClearsSeq(t *testing.T) {
	e := newEntry("x", 1)
	e.write(value.Empty())
	if e.entrySeq == 0 {
		t.Fatalf("write must leave a nonzero entrySeq")
	}
	e.reset()
	if e.entrySeq != 0 {
		t.Fatalf("reset must zero entrySeq, got %d", e.entrySeq)
	}
}
