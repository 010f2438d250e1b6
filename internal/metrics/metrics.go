// Package metrics provides lightweight counters for tracking runtime
// statistics of a secchat server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for a chat server.
// A nil Collector is safe to use — all methods become no-ops.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	eventsDelivered   atomic.Int64
	messagesRelayed   atomic.Int64
	sendFailures      atomic.Int64
	evictions         atomic.Int64
	rejectedFrames    atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── Relay metrics ────────────────────────────────────────────────────

// EventDelivered records one successful per-recipient delivery.
func (c *Collector) EventDelivered() {
	if c == nil {
		return
	}
	c.eventsDelivered.Add(1)
}

// MessageRelayed records one inbound chat message fanned out.
func (c *Collector) MessageRelayed() {
	if c == nil {
		return
	}
	c.messagesRelayed.Add(1)
}

// SendFailure records a failed write to one recipient.
func (c *Collector) SendFailure() {
	if c == nil {
		return
	}
	c.sendFailures.Add(1)
}

// Eviction records a recipient removed by the relay after a failed send.
func (c *Collector) Eviction() {
	if c == nil {
		return
	}
	c.evictions.Add(1)
}

// RejectedFrame records an inbound frame dropped for failing to
// decrypt or parse.
func (c *Collector) RejectedFrame() {
	if c == nil {
		return
	}
	c.rejectedFrames.Add(1)
}

// MessagesRelayed returns the lifetime relayed-message count.
func (c *Collector) MessagesRelayed() int64 {
	if c == nil {
		return 0
	}
	return c.messagesRelayed.Load()
}

// Evictions returns the lifetime eviction count.
func (c *Collector) Evictions() int64 {
	if c == nil {
		return 0
	}
	return c.evictions.Load()
}

// RejectedFrames returns the lifetime rejected-frame count.
func (c *Collector) RejectedFrames() int64 {
	if c == nil {
		return 0
	}
	return c.rejectedFrames.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError stores the message and time of the most recent error.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	EventsDelivered   int64  `json:"events_delivered"`
	MessagesRelayed   int64  `json:"messages_relayed"`
	SendFailures      int64  `json:"send_failures"`
	Evictions         int64  `json:"evictions"`
	RejectedFrames    int64  `json:"rejected_frames"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		EventsDelivered:   c.eventsDelivered.Load(),
		MessagesRelayed:   c.messagesRelayed.Load(),
		SendFailures:      c.sendFailures.Load(),
		Evictions:         c.evictions.Load(),
		RejectedFrames:    c.rejectedFrames.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
