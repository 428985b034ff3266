// Package table implements the value interconnection table: named
// entries, accessors, atomic multi-entry set/update, sequence
// numbering, and change notification.
package table

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tablefabric/vtable/internal/value"
)

// ErrDetached names the detached-stub condition — the no-op accessor
// returned for an empty name. The accessor operations themselves are
// silent no-ops on a detached stub and do not return it.
var ErrDetached = errors.New("table: accessor is detached")

// PostSetHook is invoked synchronously, under the table lock, once per
// successfully written entry inside a Set/SetMany batch. The contract
// is strict: it must be cheap and must never acquire
// another lock — the table accepts the deadlock risk the caller takes
// on, and makes no attempt to enforce it.
type PostSetHook func(name string, id uint32)

// Notifier is called after the table lock is released, once per
// Set/SetMany/Reset that bumped global-seq. Creating an entry (through
// GetAccessor or EntryIDByName) bumps global-seq without notifying.
// Implementations must not block.
type Notifier func(globalSeq uint32)

// Table is a named registry of entries.
type Table struct {
	name string

	mu        sync.Mutex
	entries   []*entry // dense, id-1 indexed
	byName    map[string]*entry
	nameOrder []string
	nameCount atomic.Int64 // fast-path length, bumped after full link

	mapper *mapper

	globalSeq uint32
	closed    bool

	postSet   PostSetHook
	notifiers []Notifier
}

// New creates a table that is not registered anywhere; the caller owns
// its lifetime. Every table serializes its operations through mu; there
// is no unlocked single-threaded mode.
func New(name string) *Table {
	return &Table{
		name:   name,
		byName: make(map[string]*entry),
		mapper: newMapper(),
	}
}

func (t *Table) Name() string { return t.name }

// SetPostSetHook installs the synchronous post-set callback. Pass
// nil to clear it.
func (t *Table) SetPostSetHook(h PostSetHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.postSet = h
}

// Subscribe registers a notifier invoked after any Set/SetMany/Reset
// that bumps global-seq. Returns an unsubscribe function.
func (t *Table) Subscribe(n Notifier) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifiers = append(t.notifiers, n)
	idx := len(t.notifiers) - 1
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if idx < len(t.notifiers) {
			t.notifiers[idx] = nil
		}
	}
}

// SetMapping replaces the table's name-mapping rule list wholesale.
func (t *Table) SetMapping(rules []Rule) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mapper.set(rules)
}

// AddMapping appends to the table's name-mapping rule list.
func (t *Table) AddMapping(rules []Rule) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mapper.add(rules)
}

// ResetMapping clears the name-mapping rule list.
func (t *Table) ResetMapping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mapper.reset()
}

// GetAccessor resolves name through the mapping rules, finds or
// creates the backing entry, and returns an accessor pre-updated from
// it. An empty name returns a detached stub whose operations are
// no-ops.
func (t *Table) GetAccessor(name string) *Accessor {
	if name == "" {
		return &Accessor{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	mapped := t.mapper.resolve(name)
	e, created := t.findOrCreateLocked(mapped)
	if created {
		t.bumpGlobalLocked()
	}

	a := &Accessor{table: t, entry: e}
	a.updateLocked()
	return a
}

func (t *Table) findOrCreateLocked(name string) (*entry, bool) {
	if e, ok := t.byName[name]; ok {
		return e, false
	}
	id := uint32(len(t.entries) + 1)
	e := newEntry(name, id)
	t.entries = append(t.entries, e)
	t.byName[name] = e
	t.nameOrder = append(t.nameOrder, name)
	t.nameCount.Add(1)
	return e, true
}

// NamesRange returns a snapshot slice of the insertion-ordered name
// list starting at start; max==0 returns everything from start.
func (t *Table) NamesRange(start, max int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if start < 0 || start >= len(t.nameOrder) {
		return nil
	}
	end := len(t.nameOrder)
	if max > 0 && start+max < end {
		end = start + max
	}
	out := make([]string, end-start)
	copy(out, t.nameOrder[start:end])
	return out
}

// NamesLength returns a fast-path counter that may briefly read as n-1
// while another writer links in a new name; callers needing the strong
// view must go through a locked operation.
func (t *Table) NamesLength() int {
	return int(t.nameCount.Load())
}

// EntryIDByName returns the id of the entry mapped from name, creating
// it if necessary, without allocating a full accessor.
func (t *Table) EntryIDByName(name string) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	mapped := t.mapper.resolve(name)
	e, created := t.findOrCreateLocked(mapped)
	if created {
		t.bumpGlobalLocked()
	}
	return e.id
}

func (t *Table) bumpGlobalLocked() {
	t.globalSeq = bumpSeq(t.globalSeq)
}

// GlobalSeq returns the current global sequence number.
func (t *Table) GlobalSeq() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.globalSeq
}

// Close marks the table closed. Existing accessors and entries remain
// valid, but Set/SetMany after Close are no-ops that don't bump
// global-seq — a safety net for deterministic test teardown.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// Stats is a supplemental read-only snapshot.
type Stats struct {
	Name            string
	NameCount       int
	GlobalSeq       uint32
	SubscriberCount int
}

func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := 0
	for _, n := range t.notifiers {
		if n != nil {
			subs++
		}
	}
	return Stats{Name: t.name, NameCount: len(t.nameOrder), GlobalSeq: t.globalSeq, SubscriberCount: subs}
}

// Set stages a single accessor's cached value into its entry, exactly
// as SetMany([a], false) would.
func (t *Table) Set(a *Accessor) {
	t.SetMany([]*Accessor{a}, false)
}

// SetMany writes the cached container of every accessor in as that
// belongs to this table into its entry, atomically with respect to
// observers. When optimize is true, only accessors with
// set-pending participate, and a batch with no pending writer never
// takes the lock.
func (t *Table) SetMany(as []*Accessor, optimize bool) {
	if optimize {
		any := false
		for _, a := range as {
			if a != nil && a.table == t && a.pending {
				any = true
				break
			}
		}
		if !any {
			return
		}
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	changed := false
	for _, a := range as {
		if a == nil || a.table != t || a.entry == nil {
			continue
		}
		if optimize && !a.pending {
			continue
		}
		a.entry.write(a.cont)
		a.pending = false
		a.localSeq = a.entry.entrySeq
		changed = true
		if t.postSet != nil {
			t.postSet(a.entry.name, a.entry.id)
		}
	}
	if changed {
		t.bumpGlobalLocked()
	}
	seq := t.globalSeq
	notifiers := t.snapshotNotifiersLocked()
	t.mu.Unlock()

	if changed {
		t.notify(notifiers, seq)
	}
}

// Update refreshes a single accessor from its entry, exactly as
// UpdateMany([a]) would.
func (t *Table) Update(a *Accessor) {
	t.UpdateMany([]*Accessor{a})
}

// UpdateMany refreshes every accessor in as whose local-seq differs
// from its entry's entry-seq. Never bumps global-seq.
func (t *Table) UpdateMany(as []*Accessor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range as {
		if a == nil || a.table != t || a.entry == nil {
			continue
		}
		if a.localSeq == a.entry.entrySeq {
			continue
		}
		a.cont = a.entry.cont.DeepCopy()
		a.localSeq = a.entry.entrySeq
		a.pending = false
	}
}

// Reset clears the entry backing a and resets its entry-seq to 0.
func (t *Table) Reset(a *Accessor) {
	if a == nil || a.table != t || a.entry == nil {
		return
	}
	t.mu.Lock()
	a.entry.reset()
	a.cont = value.Empty()
	a.localSeq = 0
	a.pending = false
	t.bumpGlobalLocked()
	seq := t.globalSeq
	notifiers := t.snapshotNotifiersLocked()
	t.mu.Unlock()

	t.notify(notifiers, seq)
}

func (t *Table) snapshotNotifiersLocked() []Notifier {
	out := make([]Notifier, 0, len(t.notifiers))
	for _, n := range t.notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (t *Table) notify(notifiers []Notifier, seq uint32) {
	for _, n := range notifiers {
		n(seq)
	}
}
