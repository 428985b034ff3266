package propagation

import "testing"

func TestTrackingTableServerIDIsPosition(t *testing.T) {
	tt := newTrackingTable()
	tt.add(&trackingItem{connectionName: "a", id: tt.serverIDForPosition()})
	if got := tt.serverIDForPosition(); got != 2 {
		t.Fatalf("expected the next position id to be 2, got %d", got)
	}
}

func TestTrackingTableLookups(t *testing.T) {
	tt := newTrackingTable()
	item := &trackingItem{connectionName: "a"}
	tt.add(item)
	tt.assignID(item, 5)

	if got, ok := tt.byConnectionName("a"); !ok || got != item {
		t.Fatalf("expected to find item by connection name")
	}
	if got, ok := tt.byIDLookup(5); !ok || got != item {
		t.Fatalf("expected to find item by assigned id")
	}
	if _, ok := tt.byIDLookup(99); ok {
		t.Fatalf("expected no item for an unassigned id")
	}
}
