package node

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingmesh/datastore/leveldb"
	"pingmesh/discovery"
	"pingmesh/hwaddr"
	"pingmesh/metrics"
	"pingmesh/net/udplink"
)

var (
	addrA = hwaddr.Addr{0x02, 0, 0, 0, 0, 0x0a}
	addrB = hwaddr.Addr{0x02, 0, 0, 0, 0, 0x0b}
)

// crossedLinks connects A's writer to B's reader and the other way around.
func crossedLinks(t *testing.T) (*udplink.Link, *udplink.Link) {
	t.Helper()
	loopback := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}

	rcA, err := net.ListenUDP("udp4", loopback)
	require.NoError(t, err)
	rcB, err := net.ListenUDP("udp4", loopback)
	require.NoError(t, err)

	wcA, err := net.DialUDP("udp4", nil, rcB.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	wcB, err := net.DialUDP("udp4", nil, rcA.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	return udplink.New(addrA, rcA, wcA, 16), udplink.New(addrB, rcB, wcB, 16)
}

func TestNewRejectsZeroPoll(t *testing.T) {
	a, b := crossedLinks(t)
	defer a.Close()
	defer b.Close()

	_, err := New(a, Options{Addr: addrA})
	assert.Error(t, err)
}

func TestNodesDiscoverEachOther(t *testing.T) {
	a, b := crossedLinks(t)

	journal, err := leveldb.NewJournal(filepath.Join(t.TempDir(), "journal"), 0)
	require.NoError(t, err)

	cfg := discovery.Config{Capacity: 4, Interval: 20, Timeout: 1000}
	m := metrics.NewMetrics("test")

	na, err := New(a, Options{Addr: addrA, Engine: cfg, PollInterval: 2 * time.Millisecond, Journal: journal, Metrics: m})
	require.NoError(t, err)
	nb, err := New(b, Options{Addr: addrB, Engine: cfg, PollInterval: 2 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	errs := make(chan error, 2)
	go func() { errs <- na.Run(ctx) }()
	go func() { errs <- nb.Run(ctx) }()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	_, ok := na.Engine.Lookup(addrB)
	assert.True(t, ok, "A should know B")
	_, ok = nb.Engine.Lookup(addrA)
	assert.True(t, ok, "B should know A")

	events, err := journal.Tail(100)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, leveldb.EventPeerAdded, events[0].Kind)
	assert.Equal(t, addrB, events[0].Peer)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Peers))

	require.NoError(t, na.Close())
	require.NoError(t, nb.Close())
}
