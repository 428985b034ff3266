package table

import "github.com/tablefabric/vtable/internal/value"

// Accessor is a per-client handle to one entry. The
// zero value is a detached stub: every operation on it is a no-op, and
// getters return the empty container.
type Accessor struct {
	table    *Table
	entry    *entry
	cont     value.Value
	localSeq uint32
	pending  bool
}

// Detached reports whether this accessor has no backing table/entry.
func (a *Accessor) Detached() bool {
	return a == nil || a.table == nil || a.entry == nil
}

// Name returns the entry's (post-mapping) name, or "" if detached.
func (a *Accessor) Name() string {
	if a.Detached() {
		return ""
	}
	return a.entry.name
}

// ID returns the entry's id, or 0 if detached.
func (a *Accessor) ID() uint32 {
	if a.Detached() {
		return 0
	}
	return a.entry.id
}

// Value returns the accessor's locally cached container.
func (a *Accessor) Value() value.Value {
	if a == nil {
		return value.Empty()
	}
	return a.cont
}

// LocalSeq returns the accessor's local sequence number.
func (a *Accessor) LocalSeq() uint32 {
	if a == nil {
		return 0
	}
	return a.localSeq
}

// Pending reports the accessor's set-pending bit.
func (a *Accessor) Pending() bool {
	return a != nil && a.pending
}

// UpdateNeeded reports local-seq != entry-seq.
func (a *Accessor) UpdateNeeded() bool {
	if a.Detached() {
		return false
	}
	return a.localSeq != a.entry.entrySeq
}

// HasValueBeenSet reports local-seq != 0 OR set-pending.
func (a *Accessor) HasValueBeenSet() bool {
	if a == nil {
		return false
	}
	return a.localSeq != 0 || a.pending
}

// Stage stages v into the accessor's cache without routing through the
// table. Setting to a value unequal to the current cache sets
// set-pending; re-setting to an equal value does not.
func (a *Accessor) Stage(v value.Value) {
	if a.Detached() {
		return
	}
	if !a.cont.Equal(v) {
		a.pending = true
	}
	a.cont = v.DeepCopy()
}

// Set stages v and routes the write through the owning table
// immediately.
func (a *Accessor) Set(v value.Value) {
	if a.Detached() {
		return
	}
	a.Stage(v)
	a.table.Set(a)
}

// SetIfDifferent stages v and writes through the owning table only if
// set-pending is then set: staging a value equal to the cache leaves
// set-pending clear, and the optimized SetMany skips the write.
func (a *Accessor) SetIfDifferent(v value.Value) {
	if a.Detached() {
		return
	}
	a.Stage(v)
	a.table.SetMany([]*Accessor{a}, true)
}

// Commit routes the currently staged cache through the owning table
// without changing it first.
func (a *Accessor) Commit() {
	if a.Detached() {
		return
	}
	a.table.Set(a)
}

// Update refreshes the accessor from its entry if update is needed;
// a no-op otherwise.
func (a *Accessor) Update() {
	if a.Detached() || !a.UpdateNeeded() {
		return
	}
	a.table.Update(a)
}

// updateLocked mirrors Update but assumes the table lock is already
// held by the caller (used right after GetAccessor creates the entry).
func (a *Accessor) updateLocked() {
	if a.Detached() {
		return
	}
	a.cont = a.entry.cont.DeepCopy()
	a.localSeq = a.entry.entrySeq
}

// Reset clears the backing entry through the table.
func (a *Accessor) Reset() {
	if a.Detached() {
		return
	}
	a.table.Reset(a)
}
