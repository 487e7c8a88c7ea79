// Package udplink implements link.Link over a UDP multicast group.
// Send: a CBOR-encoded envelope carrying source, destination and payload is written to the group.
// Listen: datagrams are read from the group, decoded and queued for the engine's non-blocking Receive.
// Every member of the group hears every datagram; frames for other destinations and the
// node's own echoes are dropped here, as a radio would.
package udplink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"

	log "github.com/sirupsen/logrus"

	"pingmesh/hwaddr"
	"pingmesh/link"
)

const (
	DefaultQueueSize = 256
	maxDatagramSize  = 1500
	protocolVersion  = 1
)

var _ link.Link = (*Link)(nil)

type Envelope struct {
	Version uint8       `cbor:"1,keyasint,omitempty"`
	Src     hwaddr.Addr `cbor:"2,keyasint"`
	Dst     hwaddr.Addr `cbor:"3,keyasint"`
	Payload []byte      `cbor:"4,keyasint,omitempty"`
}

func Encode(f *link.Frame) ([]byte, error) {
	return cbor.Marshal(&Envelope{
		Version: protocolVersion,
		Src:     f.Src,
		Dst:     f.Dst,
		Payload: f.Payload,
	})
}

func Decode(data []byte) (*link.Frame, error) {
	var env Envelope
	dec := cbor.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&env); err != nil {
		return nil, err
	}
	if env.Version != protocolVersion {
		return nil, fmt.Errorf("udplink: unsupported envelope version %d", env.Version)
	}
	return &link.Frame{Src: env.Src, Dst: env.Dst, Payload: env.Payload}, nil
}

type Link struct {
	addr   hwaddr.Addr
	rc     *net.UDPConn
	wc     *net.UDPConn
	frames chan link.Frame
	closed atomic.Bool

	mu    sync.Mutex
	peers map[hwaddr.Addr]link.PeerInfo
}

func New(addr hwaddr.Addr, rconn *net.UDPConn, wconn *net.UDPConn, queueSize int) *Link {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Link{
		addr:   addr,
		rc:     rconn,
		wc:     wconn,
		frames: make(chan link.Frame, queueSize),
		peers:  make(map[hwaddr.Addr]link.PeerInfo),
	}
}

// Open joins the multicast group and returns a link reading from and writing to it.
// An empty ifname lets the system choose the interface.
func Open(addr hwaddr.Addr, group string, ifname string, queueSize int) (*Link, error) {
	gaddr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve multicast group %s: %w", group, err)
	}

	var ifi *net.Interface
	if ifname != "" {
		ifi, err = net.InterfaceByName(ifname)
		if err != nil {
			return nil, fmt.Errorf("failed to find interface %s: %w", ifname, err)
		}
	}

	rc, err := net.ListenMulticastUDP("udp4", ifi, gaddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create multicast listener: %w", err)
	}

	wc, err := net.DialUDP("udp4", nil, gaddr)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to create multicast writer: %w", err)
	}

	log.Infof("udplink: %s joined multicast group %s", addr, gaddr)

	return New(addr, rc, wc, queueSize), nil
}

func (l *Link) Addr() hwaddr.Addr {
	return l.addr
}

func (l *Link) Version() string {
	return fmt.Sprintf("udplink/%d", protocolVersion)
}

// Listen reads datagrams until ctx is cancelled or the link is closed.
func (l *Link) Listen(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	buf := make([]byte, maxDatagramSize)
	l.rc.SetReadBuffer(64 * maxDatagramSize)
	for {
		n, from, err := l.rc.ReadFromUDP(buf)
		if err != nil {
			if l.closed.Load() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			log.Errorf("udplink: failed to read datagram: %v", err)
			continue
		}

		f, err := Decode(buf[:n])
		if err != nil {
			log.Debugf("udplink: dropping undecodable datagram from %s: %v", from, err)
			continue
		}

		l.deliver(f)
	}
}

// deliver queues f if it is addressed to this node. The queue never blocks the reader;
// overflow is dropped like an overrun radio buffer.
func (l *Link) deliver(f *link.Frame) bool {
	if f.Src == l.addr {
		return false
	}
	if !f.IsBroadcast() && f.Dst != l.addr {
		return false
	}

	select {
	case l.frames <- *f:
		return true
	default:
		log.Warnf("udplink: receive queue full, dropping frame from %s", f.Src)
		return false
	}
}

func (l *Link) Receive() (*link.Frame, bool) {
	select {
	case f := <-l.frames:
		return &f, true
	default:
		return nil, false
	}
}

func (l *Link) Send(dst hwaddr.Addr, payload []byte) error {
	if l.closed.Load() {
		return fmt.Errorf("%w: %w", link.ErrSendFailed, link.ErrClosed)
	}

	data, err := Encode(&link.Frame{Src: l.addr, Dst: dst, Payload: payload})
	if err != nil {
		return fmt.Errorf("%w: %w", link.ErrSendFailed, err)
	}

	if _, err := l.wc.Write(data); err != nil {
		return fmt.Errorf("%w: %w", link.ErrSendFailed, err)
	}
	return nil
}

func (l *Link) PeerExists(addr hwaddr.Addr) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.peers[addr]
	return ok
}

func (l *Link) AddPeer(info link.PeerInfo) error {
	if info.Encrypt {
		return errors.New("udplink: encrypted peers are not supported")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.peers[info.Addr]; ok {
		return link.ErrPeerExists
	}
	l.peers[info.Addr] = info
	return nil
}

func (l *Link) RemovePeer(addr hwaddr.Addr) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.peers[addr]; !ok {
		return link.ErrUnknownPeer
	}
	delete(l.peers, addr)
	return nil
}

func (l *Link) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return errors.Join(l.rc.Close(), l.wc.Close())
}
