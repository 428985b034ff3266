package table

import "github.com/tablefabric/vtable/internal/value"

// entry is a table's per-name slot. entrySeq is 0 iff the
// entry has never been written; writes skip zero on wraparound.
type entry struct {
	name     string
	id       uint32
	cont     value.Value
	entrySeq uint32
}

func newEntry(name string, id uint32) *entry {
	return &entry{name: name, id: id, cont: value.Empty()}
}

// bumpSeq advances entrySeq by one, skipping zero on wrap. Caller must
// hold the table lock.
func bumpSeq(seq uint32) uint32 {
	seq++
	if seq == 0 {
		seq = 1
	}
	return seq
}

func (e *entry) write(v value.Value) {
	e.cont = v.DeepCopy()
	e.entrySeq = bumpSeq(e.entrySeq)
}

func (e *entry) reset() {
	e.cont = value.Empty()
	e.entrySeq = 0
}
