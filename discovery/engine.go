// Package discovery implements neighbor discovery and liveness tracking over a broadcast link.
//
// Every interval the engine broadcasts SEARCH and sweeps the peer table: idle peers get a
// PING, peers whose PING has been outstanding for longer than the timeout are evicted.
// Unknown senders of SEARCH are registered; PING is answered with PONG; PONG clears the
// outstanding probe and yields the round-trip latency.
//
// The engine is a single-threaded state machine. It never blocks: Step polls the link for at
// most one frame and then checks the tick deadline against the clock.
package discovery

import (
	"context"
	"errors"
	"time"

	"pingmesh/clock"
	"pingmesh/helper/timer"
	"pingmesh/hwaddr"
	"pingmesh/link"
	"pingmesh/peertable"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultInterval = 1000  // ms between ticks
	DefaultTimeout  = 10000 // ms a probe may stay unanswered

	// Frames handled per paced poll before yielding to the ticker again
	maxFramesPerPoll = 64
)

type Config struct {
	Capacity int
	Interval uint64
	Timeout  uint64
}

func DefaultConfig() Config {
	return Config{
		Capacity: peertable.DefaultCapacity,
		Interval: DefaultInterval,
		Timeout:  DefaultTimeout,
	}
}

// PeerStatus is a snapshot of one table entry.
type PeerStatus struct {
	Addr   hwaddr.Addr
	Record peertable.Record
}

type Engine struct {
	link     link.Link
	clock    clock.Clock
	members  *Membership
	observer Observer

	interval     uint64
	timeout      uint64
	nextSendTime uint64
}

// New creates an engine that owns a fresh peer table. The first tick fires one interval after
// creation. obs may be nil.
func New(l link.Link, c clock.Clock, cfg Config, obs Observer) *Engine {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if obs == nil {
		obs = NopObserver{}
	}

	return &Engine{
		link:         l,
		clock:        c,
		members:      NewMembership(peertable.New(cfg.Capacity), l),
		observer:     obs,
		interval:     cfg.Interval,
		timeout:      cfg.Timeout,
		nextSendTime: c.Millis() + cfg.Interval,
	}
}

// Step runs one loop iteration: handle at most one inbound frame, then service the tick if it
// is due. It reports whether a frame was consumed.
func (e *Engine) Step() bool {
	f, ok := e.link.Receive()
	if ok {
		e.HandleFrame(f)
	}

	if now := e.clock.Millis(); now >= e.nextSendTime {
		e.nextSendTime = now + e.interval
		e.tick(now)
	}
	return ok
}

// HandleFrame reacts to a single inbound frame.
func (e *Engine) HandleFrame(f *link.Frame) {
	msg := Classify(f.Payload)
	now := e.clock.Millis()

	if f.IsBroadcast() {
		if msg == MessageSearch {
			e.handleSearch(f.Src, now)
			return
		}
		log.Debugf("discovery: ignoring broadcast %s from %s", msg, f.Src)
		return
	}

	switch msg {
	case MessagePing:
		e.send(f.Src, MessagePong, now)
	case MessagePong:
		e.handlePong(f.Src, now)
	default:
		log.Debugf("discovery: ignoring unicast payload (%d bytes) from %s", len(f.Payload), f.Src)
	}
}

func (e *Engine) handleSearch(src hwaddr.Addr, now uint64) {
	if e.members.Known(src) {
		return
	}

	log.Infof("Adding a new peer: %s", src)
	if err := e.members.Add(src); err != nil {
		log.Warnf("Failed to add peer %s: %v", src, err)
		e.observer.PeerRejected(src, now, err)
		return
	}

	log.Infof("Successfully added peer: %s", src)
	e.observer.PeerAdded(src, now)
}

func (e *Engine) handlePong(src hwaddr.Addr, now uint64) {
	sentAt, ok := e.members.Table().ClearProbe(src)
	if !ok {
		log.Debugf("discovery: unsolicited PONG from %s", src)
		return
	}

	rtt := now - sentAt
	log.Infof("Ping of %d ms with %s", rtt, src)
	e.observer.ProbeLatency(src, now, rtt)
}

func (e *Engine) tick(now uint64) {
	// Find more peers
	e.send(hwaddr.Broadcast, MessageSearch, now)

	var expired []hwaddr.Addr
	var probe []hwaddr.Addr

	e.members.Table().Sweep(func(addr hwaddr.Addr, rec *peertable.Record) {
		switch {
		case !rec.Pending:
			probe = append(probe, addr)
		case now-rec.ProbeSentAt > e.timeout:
			expired = append(expired, addr)
		}
	})

	for _, addr := range probe {
		e.send(addr, MessagePing, now)
		if err := e.members.Table().MarkProbeSent(addr, now); err != nil {
			log.Errorf("Failed to mark probe for %s: %v", addr, err)
			continue
		}
		e.observer.ProbeSent(addr, now)
	}

	for _, addr := range expired {
		if err := e.members.Evict(addr); err != nil {
			log.Errorf("Failed to remove inactive peer %s: %v", addr, err)
			e.observer.EvictFailed(addr, now, err)
			continue
		}
		log.Infof("Successfully removed inactive peer: %s", addr)
		e.observer.PeerEvicted(addr, now)
	}
}

// send is best effort. The outcome is observed and logged; the next tick is the retry.
func (e *Engine) send(dst hwaddr.Addr, msg MessageType, now uint64) {
	err := e.link.Send(dst, msg.Payload())
	if err == nil {
		return
	}
	if errors.Is(err, link.ErrClosed) {
		log.Debugf("discovery: %s to %s dropped, link closed", msg, dst)
	} else {
		log.Warnf("Failed to send %s to %s: %v", msg, dst, err)
	}
	e.observer.SendFailed(dst, msg, now, err)
}

// Run drives Step on a paced ticker until ctx is cancelled. Each poll drains the frames
// already queued, one Step per frame, so a tick is never starved by a backlog.
func (e *Engine) Run(ctx context.Context, pollInterval time.Duration) error {
	interval := &timer.Interval{Duration: pollInterval}
	return timer.RunWithTicker(ctx, interval, e.poll)
}

func (e *Engine) poll(ctx context.Context) error {
	for i := 0; i < maxFramesPerPoll; i++ {
		if !e.Step() {
			break
		}
	}
	return nil
}

// Peers returns a snapshot of the peer table.
func (e *Engine) Peers() []PeerStatus {
	var peers []PeerStatus
	e.members.Table().Sweep(func(addr hwaddr.Addr, rec *peertable.Record) {
		peers = append(peers, PeerStatus{Addr: addr, Record: *rec})
	})
	return peers
}

// Lookup returns the record for addr, if present.
func (e *Engine) Lookup(addr hwaddr.Addr) (peertable.Record, bool) {
	return e.members.Table().Lookup(addr)
}

// NextTick returns the clock reading at which the next tick fires.
func (e *Engine) NextTick() uint64 {
	return e.nextSendTime
}
