// Package clock provides the millisecond counter the discovery engine compares deadlines against.
package clock

import "time"

// Clock is a monotonic millisecond counter. Only differences between readings are meaningful.
type Clock interface {
	Millis() uint64
}

// Monotonic counts milliseconds since it was created. It relies on the monotonic reading
// carried by time.Time, so wall clock adjustments do not affect it.
type Monotonic struct {
	start time.Time
}

func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

func (m *Monotonic) Millis() uint64 {
	return uint64(time.Since(m.start).Milliseconds())
}

// Manual is a clock that only moves when told to. Used by tests and by the simulator.
type Manual struct {
	now uint64
}

func NewManual(start uint64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Millis() uint64 {
	return m.now
}

// Set moves the clock to t. Moving backwards is ignored.
func (m *Manual) Set(t uint64) {
	if t > m.now {
		m.now = t
	}
}

func (m *Manual) Advance(d uint64) {
	m.now += d
}
