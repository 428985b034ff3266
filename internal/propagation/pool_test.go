package propagation

import "testing"

func TestFramePoolReusesAndZeroes(t *testing.T) {
	p := newFramePool(2)
	f := p.Get()
	f.Seq = 7
	f.Vpis = append(f.Vpis, Vpi{ID: 1, Name: "x"})
	p.Put(f)

	got := p.Get()
	if got.Seq != 0 || len(got.Vpis) != 0 {
		t.Fatalf("expected a zeroed frame from the pool, got %+v", got)
	}
}

func TestFramePoolDropsBeyondMaxKept(t *testing.T) {
	p := newFramePool(1)
	p.Put(&Frame{Seq: 1})
	p.Put(&Frame{Seq: 2})
	if len(p.kept) != 1 {
		t.Fatalf("expected at most 1 kept frame, got %d", len(p.kept))
	}
}
