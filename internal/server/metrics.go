package server

import "sync/atomic"

// RoomMetrics counts room activity for the /metrics endpoint.
type RoomMetrics struct {
	Joins      int64
	Updates    int64
	Heartbeats int64
	Departures int64
	Evictions  int64
	Malformed  int64
	Broadcasts int64
}

func (m *RoomMetrics) IncJoins()      { atomic.AddInt64(&m.Joins, 1) }
func (m *RoomMetrics) IncUpdates()    { atomic.AddInt64(&m.Updates, 1) }
func (m *RoomMetrics) IncHeartbeats() { atomic.AddInt64(&m.Heartbeats, 1) }
func (m *RoomMetrics) IncDepartures() { atomic.AddInt64(&m.Departures, 1) }
func (m *RoomMetrics) IncEvictions()  { atomic.AddInt64(&m.Evictions, 1) }
func (m *RoomMetrics) IncMalformed()  { atomic.AddInt64(&m.Malformed, 1) }
func (m *RoomMetrics) IncBroadcasts() { atomic.AddInt64(&m.Broadcasts, 1) }

// Snapshot returns a read-only copy for HTTP output.
func (m *RoomMetrics) Snapshot() map[string]any {
	return map[string]any{
		"joins":      atomic.LoadInt64(&m.Joins),
		"updates":    atomic.LoadInt64(&m.Updates),
		"heartbeats": atomic.LoadInt64(&m.Heartbeats),
		"departures": atomic.LoadInt64(&m.Departures),
		"evictions":  atomic.LoadInt64(&m.Evictions),
		"malformed":  atomic.LoadInt64(&m.Malformed),
		"broadcasts": atomic.LoadInt64(&m.Broadcasts),
	}
}
