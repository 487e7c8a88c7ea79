package leveldb

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	log "github.com/sirupsen/logrus"

	"pingmesh/discovery"
	"pingmesh/hwaddr"
)

const (
	keyPrefixEvent = "EVT" // Journal events indexed by sequence number. Followed by a 16-digit hexadecimal sequence number (64 bit)

	DefaultMaxEvents = 10000
)

type EventKind uint8

const (
	EventPeerAdded EventKind = iota + 1
	EventPeerRejected
	EventPeerEvicted
	EventEvictFailed
	EventProbeLatency
	EventSendFailed
)

func (k EventKind) String() string {
	switch k {
	case EventPeerAdded:
		return "added"
	case EventPeerRejected:
		return "rejected"
	case EventPeerEvicted:
		return "evicted"
	case EventEvictFailed:
		return "evict-failed"
	case EventProbeLatency:
		return "latency"
	case EventSendFailed:
		return "send-failed"
	default:
		return "unknown"
	}
}

type Event struct {
	SequenceNumber uint64      `cbor:"1,keyasint,omitempty"`
	Kind           EventKind   `cbor:"2,keyasint,omitempty"`
	Peer           hwaddr.Addr `cbor:"3,keyasint"`
	ClockMillis    uint64      `cbor:"4,keyasint,omitempty"` // Engine clock reading
	Time           time.Time   `cbor:"5,keyasint,omitempty"` // Wall clock, for humans only
	RTTMillis      uint64      `cbor:"6,keyasint,omitempty"`
	Detail         string      `cbor:"7,keyasint,omitempty"`
}

// Journal is an append-only record of what the engine observed. It is write-only from the
// engine's point of view and never replayed into a peer table.
type Journal struct {
	LevelDB
	seq       uint64
	maxEvents uint64
	now       func() time.Time
}

var _ discovery.Observer = (*Journal)(nil)

func NewJournal(path string, maxEvents uint64) (*Journal, error) {
	ldb, err := initLevelDb(path)
	if err != nil {
		return nil, err
	}

	// Scan the database to identify the sequence
	iter := ldb.NewIterator(util.BytesPrefix([]byte(keyPrefixEvent)), nil)
	defer iter.Release()

	var maxSeq uint64 = 0
	if iter.Last() {
		seq, err := seqFromKey(keyPrefixEvent, iter.Key())
		if err != nil {
			ldb.Close()
			return nil, err
		}
		maxSeq = seq
	}

	if maxEvents == 0 {
		maxEvents = DefaultMaxEvents
	}

	return &Journal{
		LevelDB: LevelDB{
			path: path,
			db:   ldb,
		},
		seq:       maxSeq,
		maxEvents: maxEvents,
		now:       time.Now,
	}, nil
}

// Append stores ev under the next sequence number and drops the oldest entries past the
// retention limit in the same batch.
func (j *Journal) Append(ev *Event) (*Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	newSeq := j.seq + 1

	md := *ev
	md.SequenceNumber = newSeq
	if md.Time.IsZero() {
		md.Time = j.now()
	}

	raw, err := cbor.Marshal(&md)
	if err != nil {
		return nil, err
	}

	batch := new(leveldb.Batch)
	batch.Put(keyFromSeq(keyPrefixEvent, newSeq), raw)
	if newSeq > j.maxEvents {
		batch.Delete(keyFromSeq(keyPrefixEvent, newSeq-j.maxEvents))
	}

	if err := j.db.Write(batch, nil); err != nil {
		return nil, err
	}

	j.seq = newSeq

	return &md, nil
}

func (j *Journal) Get(seq uint64) (*Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	raw, err := j.db.Get(keyFromSeq(keyPrefixEvent, seq), nil)
	if err != nil {
		return nil, err
	}

	ev := &Event{}
	if err := cbor.Unmarshal(raw, ev); err != nil {
		return nil, err
	}

	// Compare the Sequence Number just in case
	if ev.SequenceNumber != seq {
		log.Errorf("Get: Sequence Number mismatch: %d != %d", seq, ev.SequenceNumber)
		return nil, ErrCorrupted
	}

	return ev, nil
}

// EnumerateBySeq returns events with start <= seq < end.
func (j *Journal) EnumerateBySeq(start uint64, end uint64) ([]*Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if start > end {
		return nil, fmt.Errorf("EnumerateBySeq: invalid range: start (%d) > end (%d)", start, end)
	}

	iter := j.db.NewIterator(&util.Range{Start: keyFromSeq(keyPrefixEvent, start), Limit: keyFromSeq(keyPrefixEvent, end)}, nil)
	defer iter.Release()

	var results []*Event
	for iter.Next() {
		ev := &Event{}
		if err := cbor.Unmarshal(iter.Value(), ev); err != nil {
			return nil, err
		}
		results = append(results, ev)
	}

	return results, iter.Error()
}

// Tail returns up to n of the most recent events, oldest first.
func (j *Journal) Tail(n uint64) ([]*Event, error) {
	last := j.GetSeq()
	start := uint64(1)
	if last > n {
		start = last - n + 1
	}
	return j.EnumerateBySeq(start, last+1)
}

func (j *Journal) GetSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

func (j *Journal) record(ev *Event) {
	if _, err := j.Append(ev); err != nil {
		log.Errorf("Failed to append %s event for %s: %v", ev.Kind, ev.Peer, err)
	}
}

func (j *Journal) PeerAdded(addr hwaddr.Addr, now uint64) {
	j.record(&Event{Kind: EventPeerAdded, Peer: addr, ClockMillis: now})
}

func (j *Journal) PeerRejected(addr hwaddr.Addr, now uint64, err error) {
	j.record(&Event{Kind: EventPeerRejected, Peer: addr, ClockMillis: now, Detail: err.Error()})
}

func (j *Journal) PeerEvicted(addr hwaddr.Addr, now uint64) {
	j.record(&Event{Kind: EventPeerEvicted, Peer: addr, ClockMillis: now})
}

func (j *Journal) EvictFailed(addr hwaddr.Addr, now uint64, err error) {
	j.record(&Event{Kind: EventEvictFailed, Peer: addr, ClockMillis: now, Detail: err.Error()})
}

// ProbeSent is not journaled; every tick would produce one entry per peer.
func (j *Journal) ProbeSent(hwaddr.Addr, uint64) {}

func (j *Journal) ProbeLatency(addr hwaddr.Addr, now uint64, rttMillis uint64) {
	j.record(&Event{Kind: EventProbeLatency, Peer: addr, ClockMillis: now, RTTMillis: rttMillis})
}

func (j *Journal) SendFailed(dst hwaddr.Addr, msg discovery.MessageType, now uint64, err error) {
	j.record(&Event{Kind: EventSendFailed, Peer: dst, ClockMillis: now, Detail: fmt.Sprintf("%s: %v", msg, err)})
}

// PeerSummary condenses the journal into one line per peer.
type PeerSummary struct {
	Peer        hwaddr.Addr
	LastKind    EventKind
	LastSeen    time.Time
	LastRTT     uint64
	Probes      uint64
	SendFailure uint64
}

// Summarize folds events into per-peer summaries, in first-seen order.
func Summarize(events []*Event) []*PeerSummary {
	var order []hwaddr.Addr
	byPeer := make(map[hwaddr.Addr]*PeerSummary)

	for _, ev := range events {
		s, ok := byPeer[ev.Peer]
		if !ok {
			s = &PeerSummary{Peer: ev.Peer}
			byPeer[ev.Peer] = s
			order = append(order, ev.Peer)
		}
		s.LastSeen = ev.Time
		switch ev.Kind {
		case EventProbeLatency:
			s.LastRTT = ev.RTTMillis
			s.Probes++
		case EventSendFailed:
			s.SendFailure++
			continue
		}
		s.LastKind = ev.Kind
	}

	summaries := make([]*PeerSummary, 0, len(order))
	for _, a := range order {
		summaries = append(summaries, byPeer[a])
	}
	return summaries
}
