package discovery

import "pingmesh/hwaddr"

// Observer receives diagnostic events. Observers are a side channel: they must not call back
// into the engine and cannot influence protocol behavior.
type Observer interface {
	PeerAdded(addr hwaddr.Addr, now uint64)
	PeerRejected(addr hwaddr.Addr, now uint64, err error)
	PeerEvicted(addr hwaddr.Addr, now uint64)
	EvictFailed(addr hwaddr.Addr, now uint64, err error)
	ProbeSent(addr hwaddr.Addr, now uint64)
	ProbeLatency(addr hwaddr.Addr, now uint64, rttMillis uint64)
	SendFailed(dst hwaddr.Addr, msg MessageType, now uint64, err error)
}

// Observers fans every event out to each member in order.
type Observers []Observer

var _ Observer = Observers(nil)

func (o Observers) PeerAdded(addr hwaddr.Addr, now uint64) {
	for _, obs := range o {
		obs.PeerAdded(addr, now)
	}
}

func (o Observers) PeerRejected(addr hwaddr.Addr, now uint64, err error) {
	for _, obs := range o {
		obs.PeerRejected(addr, now, err)
	}
}

func (o Observers) PeerEvicted(addr hwaddr.Addr, now uint64) {
	for _, obs := range o {
		obs.PeerEvicted(addr, now)
	}
}

func (o Observers) EvictFailed(addr hwaddr.Addr, now uint64, err error) {
	for _, obs := range o {
		obs.EvictFailed(addr, now, err)
	}
}

func (o Observers) ProbeSent(addr hwaddr.Addr, now uint64) {
	for _, obs := range o {
		obs.ProbeSent(addr, now)
	}
}

func (o Observers) ProbeLatency(addr hwaddr.Addr, now uint64, rttMillis uint64) {
	for _, obs := range o {
		obs.ProbeLatency(addr, now, rttMillis)
	}
}

func (o Observers) SendFailed(dst hwaddr.Addr, msg MessageType, now uint64, err error) {
	for _, obs := range o {
		obs.SendFailed(dst, msg, now, err)
	}
}

// NopObserver ignores every event. Embed it to implement only a subset of Observer.
type NopObserver struct{}

func (NopObserver) PeerAdded(hwaddr.Addr, uint64) {}
func (NopObserver) PeerRejected(hwaddr.Addr, uint64, error) {}
func (NopObserver) PeerEvicted(hwaddr.Addr, uint64) {}
func (NopObserver) EvictFailed(hwaddr.Addr, uint64, error) {}
func (NopObserver) ProbeSent(hwaddr.Addr, uint64) {}
func (NopObserver) ProbeLatency(hwaddr.Addr, uint64, uint64) {}
func (NopObserver) SendFailed(hwaddr.Addr, MessageType, uint64, error) {}
