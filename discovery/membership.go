package discovery

import (
	"errors"
	"fmt"

	"pingmesh/hwaddr"
	"pingmesh/link"
	"pingmesh/peertable"
)

// Membership keeps the peer table and the link's peer registry identical. It is the only
// path through which either side is mutated: an address is in the table iff it is
// registered with the link.
type Membership struct {
	table *peertable.Table
	link  link.Link
}

func NewMembership(table *peertable.Table, l link.Link) *Membership {
	return &Membership{table: table, link: l}
}

// Known reports whether the link already has addr registered.
func (m *Membership) Known(addr hwaddr.Addr) bool {
	return m.link.PeerExists(addr)
}

// Add registers addr with the link (no encryption, default channel) and inserts an idle
// record. Adding a known peer is a no-op. When the table is full nothing is registered and
// peertable.ErrCapacityExceeded is returned.
func (m *Membership) Add(addr hwaddr.Addr) error {
	if m.Known(addr) {
		return nil
	}
	if m.table.Full() {
		return peertable.ErrCapacityExceeded
	}

	if err := m.link.AddPeer(link.PeerInfo{Addr: addr}); err != nil {
		return fmt.Errorf("failed to register peer %s: %w", addr, err)
	}

	if err := m.table.InsertIfAbsent(addr); err != nil {
		// Undo the registration so neither side holds addr
		if rerr := m.link.RemovePeer(addr); rerr != nil {
			return fmt.Errorf("failed to insert peer %s: %w (rollback: %v)", addr, err, rerr)
		}
		return err
	}
	return nil
}

// Evict unregisters addr from the link and drops its record. If the link refuses, the record
// is kept so both sides stay in agreement, and the next sweep tries again.
func (m *Membership) Evict(addr hwaddr.Addr) error {
	if !m.table.Contains(addr) {
		return peertable.ErrNotFound
	}
	// A link that already forgot addr counts as unregistered
	if err := m.link.RemovePeer(addr); err != nil && !errors.Is(err, link.ErrUnknownPeer) {
		return fmt.Errorf("failed to unregister peer %s: %w", addr, err)
	}
	return m.table.Evict(addr)
}

func (m *Membership) Table() *peertable.Table {
	return m.table
}
