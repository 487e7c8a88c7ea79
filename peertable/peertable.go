// Package peertable implements a bounded table of neighbor liveness records.
// The table is array-backed: a fixed number of slots allocated up front, looked up by
// linear scan. Inserting into a full table is rejected, it never displaces another entry.
package peertable

import (
	"errors"

	"pingmesh/hwaddr"
)

const DefaultCapacity = 16

var ErrCapacityExceeded = errors.New("peer table capacity exceeded")
var ErrNotFound = errors.New("peer not found")

// Record is the liveness state of a single peer. A peer is idle when Pending is false;
// otherwise a probe was sent at ProbeSentAt and no response has been observed yet.
type Record struct {
	Pending     bool
	ProbeSentAt uint64
}

type slot struct {
	used   bool
	addr   hwaddr.Addr
	record Record
}

// Table is not safe for concurrent use. It is owned by a single engine.
type Table struct {
	slots []slot
	count int
}

func New(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{slots: make([]slot, capacity)}
}

func (t *Table) find(addr hwaddr.Addr) int {
	for i := range t.slots {
		if t.slots[i].used && t.slots[i].addr == addr {
			return i
		}
	}
	return -1
}

// Lookup returns a copy of the record for addr.
func (t *Table) Lookup(addr hwaddr.Addr) (Record, bool) {
	i := t.find(addr)
	if i < 0 {
		return Record{}, false
	}
	return t.slots[i].record, true
}

func (t *Table) Contains(addr hwaddr.Addr) bool {
	return t.find(addr) >= 0
}

// InsertIfAbsent adds an idle record for addr. A duplicate insert is a no-op and not an error.
func (t *Table) InsertIfAbsent(addr hwaddr.Addr) error {
	if t.find(addr) >= 0 {
		return nil
	}
	if t.count >= len(t.slots) {
		return ErrCapacityExceeded
	}
	for i := range t.slots {
		if !t.slots[i].used {
			t.slots[i] = slot{used: true, addr: addr}
			t.count++
			return nil
		}
	}
	return ErrCapacityExceeded
}

func (t *Table) MarkProbeSent(addr hwaddr.Addr, at uint64) error {
	i := t.find(addr)
	if i < 0 {
		return ErrNotFound
	}
	t.slots[i].record = Record{Pending: true, ProbeSentAt: at}
	return nil
}

// ClearProbe moves addr back to idle and returns the time the outstanding probe was sent.
// ok is false when addr is absent or had no probe outstanding.
func (t *Table) ClearProbe(addr hwaddr.Addr) (sentAt uint64, ok bool) {
	i := t.find(addr)
	if i < 0 || !t.slots[i].record.Pending {
		return 0, false
	}
	sentAt = t.slots[i].record.ProbeSentAt
	t.slots[i].record = Record{}
	return sentAt, true
}

func (t *Table) Evict(addr hwaddr.Addr) error {
	i := t.find(addr)
	if i < 0 {
		return ErrNotFound
	}
	t.slots[i] = slot{}
	t.count--
	return nil
}

// Sweep calls fn once for every entry. fn may modify the record in place but must not
// insert or evict; collect addresses and mutate after Sweep returns.
func (t *Table) Sweep(fn func(addr hwaddr.Addr, rec *Record)) {
	for i := range t.slots {
		if t.slots[i].used {
			fn(t.slots[i].addr, &t.slots[i].record)
		}
	}
}

// Addrs returns a snapshot of the current keys in slot order.
func (t *Table) Addrs() []hwaddr.Addr {
	addrs := make([]hwaddr.Addr, 0, t.count)
	for i := range t.slots {
		if t.slots[i].used {
			addrs = append(addrs, t.slots[i].addr)
		}
	}
	return addrs
}

func (t *Table) Len() int   { return t.count }
func (t *Table) Cap() int   { return len(t.slots) }
func (t *Table) Full() bool { return t.count >= len(t.slots) }
