package session

import "sync/atomic"

// Table is the fixed-capacity array of session slots spec.md §3 requires:
// "At most max_open_sockets session slots are non-free at any moment; the
// accept loop enforces this." Engine-private — never touched from another
// goroutine except through the control-plane work queue (spec.md §5).
type Table struct {
	slots   []Slot
	lruTick uint64
}

// NewTable allocates a table with the given fixed capacity.
func NewTable(capacity int) *Table {
	t := &Table{slots: make([]Slot, capacity)}
	for i := range t.slots {
		t.slots[i].FD = freeFD
	}
	return t
}

// Cap returns the fixed slot capacity.
func (t *Table) Cap() int { return len(t.slots) }

// Slot returns the slot at index i.
func (t *Table) Slot(i int) *Slot { return &t.slots[i] }

// AllocFree finds and returns a free slot, or nil if the table is full.
func (t *Table) AllocFree() *Slot {
	for i := range t.slots {
		if t.slots[i].IsFree() {
			return &t.slots[i]
		}
	}
	return nil
}

// ByFD linearly scans for the slot holding fd. The table is small by design
// (spec.md's embedded-origin max_open_sockets defaults are single digits to
// low hundreds), so a linear scan is the same approach the teacher's
// low-level accept path uses rather than an auxiliary fd->index map.
func (t *Table) ByFD(fd int) *Slot {
	for i := range t.slots {
		if !t.slots[i].IsFree() && t.slots[i].FD == fd {
			return &t.slots[i]
		}
	}
	return nil
}

// Touch stamps slot with a fresh LRU counter value, called every time bytes
// are sent or received on it (spec.md §4.1 "LRU counter").
func (t *Table) Touch(s *Slot) {
	s.LRUCounter = atomic.AddUint64(&t.lruTick, 1)
}

// EvictionCandidate returns the idle slot with the smallest LRU counter, or
// nil if no slot is currently eligible (spec.md §4.1: "sessions in the
// middle of a request are not eligible").
func (t *Table) EvictionCandidate() *Slot {
	var best *Slot
	for i := range t.slots {
		s := &t.slots[i]
		if s.IsFree() || !s.LRUIdle {
			continue
		}
		if best == nil || s.LRUCounter < best.LRUCounter {
			best = s
		}
	}
	return best
}

// Range calls fn for every occupied slot; fn must not mutate the table's
// slice structure (adding/removing slots), only mutate the slot it is given.
func (t *Table) Range(fn func(*Slot)) {
	for i := range t.slots {
		if !t.slots[i].IsFree() {
			fn(&t.slots[i])
		}
	}
}

// Count returns the number of currently occupied slots.
func (t *Table) Count() int {
	n := 0
	for i := range t.slots {
		if !t.slots[i].IsFree() {
			n++
		}
	}
	return n
}
