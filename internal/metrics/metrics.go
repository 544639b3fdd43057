// Package metrics provides lightweight, lock-free counters and gauges
// for tracking the sessions of a termphyrio process.
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

// Collector tracks runtime metrics across all sessions.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive    atomic.Int64
	sessionsConnected atomic.Int64
	sessionsFailed    atomic.Int64
	sessionsClosed    atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	errorsTotal       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionConnected records a session reaching Connected.
func (c *Collector) SessionConnected() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsConnected.Add(1)
}

// SessionFailed records a session that never got a shell.
func (c *Collector) SessionFailed() {
	if c == nil {
		return
	}
	c.sessionsFailed.Add(1)
}

// SessionClosed records a Connected session being torn down.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
	c.sessionsClosed.Add(1)
}

// ActiveSessions returns the number of sessions with a live shell.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// ConnectedSessions returns the lifetime count of established sessions.
func (c *Collector) ConnectedSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsConnected.Load()
}

// FailedSessions returns the lifetime count of failed establishments.
func (c *Collector) FailedSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsFailed.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from shell channels.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to shell channels.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	SessionsActive    int64  `json:"sessions_active"`
	SessionsConnected int64  `json:"sessions_connected"`
	SessionsFailed    int64  `json:"sessions_failed"`
	SessionsClosed    int64  `json:"sessions_closed"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	ErrorsTotal       int64  `json:"errors_total"`
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
		SessionsActive:    c.sessionsActive.Load(),
		SessionsConnected: c.sessionsConnected.Load(),
		SessionsFailed:    c.sessionsFailed.Load(),
		SessionsClosed:    c.sessionsClosed.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
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
