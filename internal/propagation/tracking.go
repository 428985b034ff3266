package propagation

import "github.com/tablefabric/vtable/internal/table"

// trackingItem is a session's per-propagated-name bookkeeping. On the
// server, ID equals the item's position in items; on the client, it is
// the id carried by the server's Registration Record. Both roles look
// ids up through byID.
type trackingItem struct {
	accessor          *table.Accessor
	connectionName    string // wire-level name (local prefix stripped)
	id                uint32 // 0 until the server assigns one
	registrationSent  bool   // server only
	addRequestSent    bool   // client only
}

// trackingTable indexes a session's trackingItems both by connection
// name and by assigned id.
type trackingTable struct {
	items    []*trackingItem
	byName   map[string]*trackingItem
	byID     map[uint32]*trackingItem // every item with a nonzero id
}

func newTrackingTable() *trackingTable {
	return &trackingTable{
		byName: make(map[string]*trackingItem),
		byID:   make(map[uint32]*trackingItem),
	}
}

func (t *trackingTable) add(item *trackingItem) {
	t.items = append(t.items, item)
	t.byName[item.connectionName] = item
	if item.id != 0 {
		t.byID[item.id] = item
	}
}

func (t *trackingTable) byConnectionName(name string) (*trackingItem, bool) {
	it, ok := t.byName[name]
	return it, ok
}

func (t *trackingTable) byIDLookup(id uint32) (*trackingItem, bool) {
	it, ok := t.byID[id]
	return it, ok
}

// assignID records the peer-assigned id for item and indexes it for
// subsequent byIDLookup calls.
func (t *trackingTable) assignID(item *trackingItem, id uint32) {
	item.id = id
	t.byID[id] = item
}

// serverIDForPosition returns the 1-based id a new server-side
// tracking item should use: its position in items.
func (t *trackingTable) serverIDForPosition() uint32 {
	return uint32(len(t.items) + 1)
}
