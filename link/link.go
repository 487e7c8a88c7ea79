// Package link defines the connectionless, broadcast-capable frame interface the discovery
// engine runs on. Adapters own channel access, encryption and physical addressing.
package link

import (
	"errors"

	"pingmesh/hwaddr"
)

var (
	ErrSendFailed  = errors.New("send failed")
	ErrUnknownPeer = errors.New("peer not registered")
	ErrPeerExists  = errors.New("peer already registered")
	ErrClosed      = errors.New("link closed")
)

// Frame is a single inbound or outbound unit. Dst equal to hwaddr.Broadcast marks a
// discovery-class frame.
type Frame struct {
	Src     hwaddr.Addr
	Dst     hwaddr.Addr
	Payload []byte
}

func (f *Frame) IsBroadcast() bool {
	return f.Dst.IsBroadcast()
}

// PeerInfo describes a peer registration. Zero Channel means the adapter's default channel.
type PeerInfo struct {
	Addr    hwaddr.Addr
	Channel uint8
	Encrypt bool
	LMK     []byte
}

type Link interface {
	// Receive returns at most one pending frame and never blocks.
	Receive() (*Frame, bool)
	// Send transmits payload to dst and reports whether the link layer accepted it.
	// Failures wrap ErrSendFailed.
	Send(dst hwaddr.Addr, payload []byte) error
	PeerExists(addr hwaddr.Addr) bool
	AddPeer(info PeerInfo) error
	RemovePeer(addr hwaddr.Addr) error
}

// Versioner is implemented by adapters that can report their link layer version.
type Versioner interface {
	Version() string
}
