package udplink

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingmesh/hwaddr"
	"pingmesh/link"
)

var (
	addrA = hwaddr.Addr{0x02, 0, 0, 0, 0, 0x0a}
	addrB = hwaddr.Addr{0x02, 0, 0, 0, 0, 0x0b}
	addrC = hwaddr.Addr{0x02, 0, 0, 0, 0, 0x0c}
)

func TestEnvelopeRoundTrip(t *testing.T) {
	f := &link.Frame{Src: addrA, Dst: hwaddr.Broadcast, Payload: []byte("SEARCH")}
	data, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("SEARCH"))
	assert.Error(t, err)

	data, err := cbor.Marshal(&Envelope{Version: 9, Src: addrA, Dst: addrB})
	require.NoError(t, err)
	_, err = Decode(data)
	assert.Error(t, err)
}

// loopbackPair wires a writer on A straight into a reader on B, standing in for the
// multicast group.
func loopbackPair(t *testing.T) (a *Link, b *Link) {
	t.Helper()
	rcB, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	wcA, err := net.DialUDP("udp4", nil, rcB.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	// A never reads in these tests; give it a valid but idle socket
	rcA, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	wcB, err := net.DialUDP("udp4", nil, rcA.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	a = New(addrA, rcA, wcA, 8)
	b = New(addrB, rcB, wcB, 8)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func waitFrame(t *testing.T, l *Link) *link.Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f, ok := l.Receive(); ok {
			return f
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for a frame")
	return nil
}

func TestSendAndListen(t *testing.T) {
	a, b := loopbackPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Listen(ctx) }()

	require.NoError(t, a.Send(addrC, []byte("PING")))
	require.NoError(t, a.Send(addrB, []byte("PING")))
	require.NoError(t, a.Send(hwaddr.Broadcast, []byte("SEARCH")))

	// The frame for C is filtered; the other two arrive in order
	f := waitFrame(t, b)
	assert.Equal(t, addrB, f.Dst)
	assert.Equal(t, "PING", string(f.Payload))

	f = waitFrame(t, b)
	assert.True(t, f.IsBroadcast())
	assert.Equal(t, addrA, f.Src)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}

	assert.ErrorIs(t, b.Send(addrA, []byte("PONG")), link.ErrSendFailed)
}

func TestDeliverFiltersOwnEcho(t *testing.T) {
	l := New(addrA, nil, nil, 1)

	assert.False(t, l.deliver(&link.Frame{Src: addrA, Dst: hwaddr.Broadcast}))
	assert.False(t, l.deliver(&link.Frame{Src: addrB, Dst: addrC}))
	assert.True(t, l.deliver(&link.Frame{Src: addrB, Dst: addrA}))

	// Queue of one is now full
	assert.False(t, l.deliver(&link.Frame{Src: addrC, Dst: hwaddr.Broadcast}))

	f, ok := l.Receive()
	require.True(t, ok)
	assert.Equal(t, addrB, f.Src)
	_, ok = l.Receive()
	assert.False(t, ok)
}

func TestPeerRegistry(t *testing.T) {
	l := New(addrA, nil, nil, 1)

	require.NoError(t, l.AddPeer(link.PeerInfo{Addr: addrB}))
	assert.True(t, l.PeerExists(addrB))
	assert.ErrorIs(t, l.AddPeer(link.PeerInfo{Addr: addrB}), link.ErrPeerExists)
	assert.Error(t, l.AddPeer(link.PeerInfo{Addr: addrC, Encrypt: true}))

	require.NoError(t, l.RemovePeer(addrB))
	assert.ErrorIs(t, l.RemovePeer(addrB), link.ErrUnknownPeer)
}
