package table

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tablefabric/vtable/internal/value"
)

func TestGetAccessorCreatesDenseIDs(t *testing.T) {
	tbl := New("t")
	a := tbl.GetAccessor("x")
	b := tbl.GetAccessor("y")
	if a.ID() != 1 || b.ID() != 2 {
		t.Fatalf("expected dense 1-based ids, got %d and %d", a.ID(), b.ID())
	}
	if again := tbl.GetAccessor("x"); again.ID() != a.ID() {
		t.Fatalf("re-resolving an existing name must return its original id")
	}
}

func TestSetPropagatesAcrossAccessors(t *testing.T) {
	tbl := New("t")
	a := tbl.GetAccessor("x")
	a.Set(value.I32(42))

	b := tbl.GetAccessor("x")
	if b.UpdateNeeded() {
		t.Fatalf("a freshly created accessor is pre-updated from its entry")
	}
	b.Update()
	if b.Value().Int64() != 42 {
		t.Fatalf("expected 42 after Update, got %v", b.Value().Int64())
	}
	if a.LocalSeq() != 1 || b.LocalSeq() != 1 {
		t.Fatalf("expected both accessors at entry-seq 1, got %d and %d", a.LocalSeq(), b.LocalSeq())
	}
	// Exactly two observable transitions: creating "x", then the set.
	// Re-resolving the existing name must not bump global-seq.
	if got := tbl.GlobalSeq(); got != 2 {
		t.Fatalf("expected global-seq 2 after create+set, got %d", got)
	}
}

func TestSetManyBumpsGlobalSeqOnce(t *testing.T) {
	tbl := New("t")
	a := tbl.GetAccessor("x")
	b := tbl.GetAccessor("y")
	before := tbl.GlobalSeq()

	a.Stage(value.I32(1))
	b.Stage(value.I32(2))
	tbl.SetMany([]*Accessor{a, b}, true)

	if tbl.GlobalSeq() != before+1 {
		t.Fatalf("expected global-seq to advance by exactly 1 for the whole batch, got %d -> %d", before, tbl.GlobalSeq())
	}
	if a.LocalSeq() != 1 || b.LocalSeq() != 1 {
		t.Fatalf("expected both entry-seqs at 1 after their first write, got %d and %d", a.LocalSeq(), b.LocalSeq())
	}
	// Two creates then one batch set: global-seq lands on exactly 3.
	if got := tbl.GlobalSeq(); got != 3 {
		t.Fatalf("expected global-seq 3, got %d", got)
	}
}

func TestSetManyOptimizeSkipsNonPending(t *testing.T) {
	tbl := New("t")
	a := tbl.GetAccessor("x")
	before := tbl.GlobalSeq()

	tbl.SetMany([]*Accessor{a}, true)
	if tbl.GlobalSeq() != before {
		t.Fatalf("optimize=true with no pending accessor must not touch global-seq")
	}
}

func TestNotifySubscriberOnChange(t *testing.T) {
	tbl := New("t")
	var seen uint32
	unsub := tbl.Subscribe(func(seq uint32) { seen = seq })
	defer unsub()

	a := tbl.GetAccessor("x")
	a.Set(value.Bool(true))

	if seen != tbl.GlobalSeq() {
		t.Fatalf("notifier did not observe the final global-seq: got %d want %d", seen, tbl.GlobalSeq())
	}
}

func TestResetClearsEntryAndBumpsSeq(t *testing.T) {
	tbl := New("t")
	a := tbl.GetAccessor("x")
	a.Set(value.I32(9))
	before := tbl.GlobalSeq()

	a.Reset()
	if !a.Value().Equal(value.Empty()) {
		t.Fatalf("expected the accessor's cache to clear to empty after Reset")
	}
	if tbl.GlobalSeq() != before+1 {
		t.Fatalf("Reset must bump global-seq")
	}
}

func TestDetachedAccessorIsNoOp(t *testing.T) {
	tbl := New("t")
	a := tbl.GetAccessor("")
	if !a.Detached() {
		t.Fatalf("empty name must return a detached accessor")
	}
	a.Set(value.I32(1)) // must not panic
	if a.Value().Kind != value.KindEmpty {
		t.Fatalf("detached accessor's value must stay empty")
	}
}

func TestPostSetHookFiresPerEntry(t *testing.T) {
	tbl := New("t")
	var names []string
	tbl.SetPostSetHook(func(name string, id uint32) { names = append(names, name) })

	a := tbl.GetAccessor("x")
	b := tbl.GetAccessor("y")
	a.Stage(value.I32(1))
	b.Stage(value.I32(2))
	tbl.SetMany([]*Accessor{a, b}, false)

	if len(names) != 2 || names[0] != "x" || names[1] != "y" {
		t.Fatalf("expected post-set hook once per written entry, got %v", names)
	}
}

func TestMappingPrefixRule(t *testing.T) {
	tbl := New("t")
	tbl.AddMapping([]Rule{{Kind: RulePrefix, From: "remote.", To: "local."}})

	a := tbl.GetAccessor("remote.foo")
	if a.Name() != "local.foo" {
		t.Fatalf("expected prefix rule to rewrite the name, got %q", a.Name())
	}
}

func TestMappingExactRuleTakesPrecedence(t *testing.T) {
	tbl := New("t")
	tbl.SetMapping([]Rule{
		{Kind: RulePrefix, From: "x", To: "prefix-hit"},
		{Kind: RuleExact, From: "xyz", To: "exact-hit"},
	})
	a := tbl.GetAccessor("xyz")
	if a.Name() != "exact-hit" {
		t.Fatalf("exact-map should win over a prefix rule listed after it, got %q", a.Name())
	}
}

func TestNamesRangeSnapshot(t *testing.T) {
	tbl := New("t")
	tbl.GetAccessor("a")
	tbl.GetAccessor("b")
	tbl.GetAccessor("c")

	names := tbl.NamesRange(1, 1)
	if len(names) != 1 || names[0] != "b" {
		t.Fatalf("expected [\"b\"], got %v", names)
	}
}

func TestSetManyBatchIsAtomicToReaders(t *testing.T) {
	tbl := New("t")
	a := tbl.GetAccessor("a")
	b := tbl.GetAccessor("b")
	ra := tbl.GetAccessor("a")
	rb := tbl.GetAccessor("b")

	stop := make(chan struct{})
	var torn atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			tbl.UpdateMany([]*Accessor{ra, rb})
			if ra.Value().Int64() != rb.Value().Int64() {
				torn.Store(true)
				return
			}
		}
	}()

	for i := int64(1); i <= 500; i++ {
		a.Stage(value.I64(i))
		b.Stage(value.I64(i))
		tbl.SetMany([]*Accessor{a, b}, false)
	}
	close(stop)
	wg.Wait()

	if torn.Load() {
		t.Fatalf("a reader observed one entry from a batch without the other")
	}
}

func TestCloseStopsFurtherSets(t *testing.T) {
	tbl := New("t")
	a := tbl.GetAccessor("x")
	tbl.Close()
	before := tbl.GlobalSeq()

	a.Set(value.I32(1))
	if tbl.GlobalSeq() != before {
		t.Fatalf("Set after Close must not bump global-seq")
	}
}
