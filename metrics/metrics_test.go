package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingmesh/discovery"
	"pingmesh/hwaddr"
)

var peer = hwaddr.Addr{0x02, 0, 0, 0, 0, 0x0a}

func TestObserverCounters(t *testing.T) {
	m := NewMetrics("test")

	m.PeerAdded(peer, 0)
	m.PeerAdded(peer, 0)
	m.PeerEvicted(peer, 0)
	m.PeerRejected(peer, 0, errors.New("full"))
	m.ProbeSent(peer, 0)
	m.SendFailed(peer, discovery.MessagePing, 0, errors.New("no ack"))
	m.SendFailed(peer, discovery.MessagePing, 0, errors.New("no ack"))
	m.SendFailed(hwaddr.Broadcast, discovery.MessageSearch, 0, errors.New("no ack"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Peers))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PeersAdded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PeersEvicted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PeersRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProbesSent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SendFailures.WithLabelValues("PING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendFailures.WithLabelValues("SEARCH")))
}

func TestHandlerExposesLatency(t *testing.T) {
	m := NewMetrics("test")
	m.ProbeLatency(peer, 1500, 500)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rr.Code)

	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "test_probe_rtt_seconds_count 1"), body)
	assert.True(t, strings.Contains(body, "test_probe_rtt_seconds_sum 0.5"), body)
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances with the same namespace must not collide
	a := NewMetrics("dup")
	b := NewMetrics("dup")
	a.PeerAdded(peer, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PeersAdded))
}
