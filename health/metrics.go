package health

import "sync/atomic"

// Counters holds gateway operation counters. The zero value is ready to
// use and a nil *Counters ignores every increment.
type Counters struct {
	frames           atomic.Int64
	dispatches       atomic.Int64
	reconnects       atomic.Int64
	missedHeartbeats atomic.Int64
	eventsPublished  atomic.Int64
	handlerErrors    atomic.Int64
}

// IncrementFrames counts a frame read from a gateway transport.
func (c *Counters) IncrementFrames() {
	if c != nil {
		c.frames.Add(1)
	}
}

// IncrementDispatches counts a dispatch event handed to the dispatcher.
func (c *Counters) IncrementDispatches() {
	if c != nil {
		c.dispatches.Add(1)
	}
}

// IncrementReconnects counts a scheduled reconnect.
func (c *Counters) IncrementReconnects() {
	if c != nil {
		c.reconnects.Add(1)
	}
}

// IncrementMissedHeartbeats counts a heartbeat that was never acknowledged.
func (c *Counters) IncrementMissedHeartbeats() {
	if c != nil {
		c.missedHeartbeats.Add(1)
	}
}

// IncrementEventsPublished counts an event mirrored to Redis.
func (c *Counters) IncrementEventsPublished() {
	if c != nil {
		c.eventsPublished.Add(1)
	}
}

// IncrementHandlerErrors counts a dispatch handler failure.
func (c *Counters) IncrementHandlerErrors() {
	if c != nil {
		c.handlerErrors.Add(1)
	}
}

// Snapshot returns the current counter values keyed by name.
func (c *Counters) Snapshot() map[string]int64 {
	if c == nil {
		return map[string]int64{}
	}
	return map[string]int64{
		"frames":            c.frames.Load(),
		"dispatches":        c.dispatches.Load(),
		"reconnects":        c.reconnects.Load(),
		"missed_heartbeats": c.missedHeartbeats.Load(),
		"events_published":  c.eventsPublished.Load(),
		"handler_errors":    c.handlerErrors.Load(),
	}
}
