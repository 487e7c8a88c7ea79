// Package memlink implements link.Link on top of a shared in-memory medium.
// It behaves like a lossy radio: broadcasts reach every attached endpoint, unicasts are
// acknowledged only when the destination is attached and the frame was not dropped.
package memlink

import (
	"fmt"
	"math/rand"
	"sync"

	"pingmesh/hwaddr"
	"pingmesh/link"
)

const DefaultQueueSize = 64

var _ link.Link = (*Endpoint)(nil)

type Medium struct {
	mu        sync.Mutex
	endpoints map[hwaddr.Addr]*Endpoint
	lossRate  float64
	rng       *rand.Rand
	queueSize int
}

// NewMedium creates a medium that drops each delivery with probability lossRate.
func NewMedium(lossRate float64, seed int64) *Medium {
	return &Medium{
		endpoints: make(map[hwaddr.Addr]*Endpoint),
		lossRate:  lossRate,
		rng:       rand.New(rand.NewSource(seed)),
		queueSize: DefaultQueueSize,
	}
}

// Attach connects a new endpoint with the given address to the medium.
func (m *Medium) Attach(addr hwaddr.Addr) (*Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.endpoints[addr]; ok {
		return nil, fmt.Errorf("memlink: address %s already attached", addr)
	}
	ep := &Endpoint{
		medium: m,
		addr:   addr,
		peers:  make(map[hwaddr.Addr]link.PeerInfo),
	}
	m.endpoints[addr] = ep
	return ep, nil
}

// Detach takes the endpoint off the medium, as if the node lost power.
func (m *Medium) Detach(addr hwaddr.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.endpoints, addr)
}

func (m *Medium) dropped() bool {
	return m.lossRate > 0 && m.rng.Float64() < m.lossRate
}

// deliver must be called with m.mu held. Returns whether the destination acknowledged.
func (m *Medium) deliver(f link.Frame) bool {
	if f.Dst.IsBroadcast() {
		for a, ep := range m.endpoints {
			if a == f.Src || m.dropped() {
				continue
			}
			ep.enqueue(f, m.queueSize)
		}
		return true
	}

	ep, ok := m.endpoints[f.Dst]
	if !ok || m.dropped() {
		return false
	}
	ep.enqueue(f, m.queueSize)
	return true
}

type Endpoint struct {
	medium *Medium
	addr   hwaddr.Addr
	inbox  []link.Frame
	peers  map[hwaddr.Addr]link.PeerInfo
	sent   []link.Frame

	failSends  bool
	failRemove bool
}

func (e *Endpoint) Addr() hwaddr.Addr {
	return e.addr
}

func (e *Endpoint) Version() string {
	return "memlink/1"
}

// enqueue must be called with the medium lock held. A full queue drops the frame.
func (e *Endpoint) enqueue(f link.Frame, limit int) {
	if len(e.inbox) >= limit {
		return
	}
	f.Payload = append([]byte(nil), f.Payload...)
	e.inbox = append(e.inbox, f)
}

func (e *Endpoint) Receive() (*link.Frame, bool) {
	e.medium.mu.Lock()
	defer e.medium.mu.Unlock()

	if len(e.inbox) == 0 {
		return nil, false
	}
	f := e.inbox[0]
	e.inbox = e.inbox[1:]
	return &f, true
}

func (e *Endpoint) Send(dst hwaddr.Addr, payload []byte) error {
	e.medium.mu.Lock()
	defer e.medium.mu.Unlock()

	f := link.Frame{Src: e.addr, Dst: dst, Payload: append([]byte(nil), payload...)}
	e.sent = append(e.sent, f)

	if e.failSends {
		return fmt.Errorf("%w: injected failure", link.ErrSendFailed)
	}
	if _, attached := e.medium.endpoints[e.addr]; !attached {
		return fmt.Errorf("%w: endpoint detached", link.ErrSendFailed)
	}
	if !e.medium.deliver(f) {
		return fmt.Errorf("%w: no ack from %s", link.ErrSendFailed, dst)
	}
	return nil
}

func (e *Endpoint) PeerExists(addr hwaddr.Addr) bool {
	e.medium.mu.Lock()
	defer e.medium.mu.Unlock()
	_, ok := e.peers[addr]
	return ok
}

func (e *Endpoint) AddPeer(info link.PeerInfo) error {
	e.medium.mu.Lock()
	defer e.medium.mu.Unlock()

	if _, ok := e.peers[info.Addr]; ok {
		return link.ErrPeerExists
	}
	e.peers[info.Addr] = info
	return nil
}

func (e *Endpoint) RemovePeer(addr hwaddr.Addr) error {
	e.medium.mu.Lock()
	defer e.medium.mu.Unlock()

	if e.failRemove {
		return fmt.Errorf("memlink: injected remove failure for %s", addr)
	}
	if _, ok := e.peers[addr]; !ok {
		return link.ErrUnknownPeer
	}
	delete(e.peers, addr)
	return nil
}

// Inject queues a frame as if it had been received from the air. Used by tests.
func (e *Endpoint) Inject(f link.Frame) {
	e.medium.mu.Lock()
	defer e.medium.mu.Unlock()
	e.enqueue(f, e.medium.queueSize)
}

// Sent returns and clears the frames this endpoint transmitted.
func (e *Endpoint) Sent() []link.Frame {
	e.medium.mu.Lock()
	defer e.medium.mu.Unlock()
	s := e.sent
	e.sent = nil
	return s
}

// Peers returns the registered peer addresses.
func (e *Endpoint) Peers() []hwaddr.Addr {
	e.medium.mu.Lock()
	defer e.medium.mu.Unlock()
	addrs := make([]hwaddr.Addr, 0, len(e.peers))
	for a := range e.peers {
		addrs = append(addrs, a)
	}
	return addrs
}

func (e *Endpoint) FailSends(fail bool) {
	e.medium.mu.Lock()
	defer e.medium.mu.Unlock()
	e.failSends = fail
}

func (e *Endpoint) FailRemove(fail bool) {
	e.medium.mu.Lock()
	defer e.medium.mu.Unlock()
	e.failRemove = fail
}
