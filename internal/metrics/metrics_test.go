package metrics

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestCollector_Sessions(t *testing.T) {
	c := New()

	c.SessionConnected()
	c.SessionConnected()
	c.SessionFailed()
	if c.ActiveSessions() != 2 {
		t.Errorf("active = %d, want 2", c.ActiveSessions())
	}
	if c.ConnectedSessions() != 2 {
		t.Errorf("connected = %d, want 2", c.ConnectedSessions())
	}
	if c.FailedSessions() != 1 {
		t.Errorf("failed = %d, want 1", c.FailedSessions())
	}

	c.SessionClosed()
	if c.ActiveSessions() != 1 {
		t.Errorf("active = %d, want 1", c.ActiveSessions())
	}
	if c.Snapshot().SessionsClosed != 1 {
		t.Errorf("closed = %d, want 1", c.Snapshot().SessionsClosed)
	}
}

func TestCollector_Bytes(t *testing.T) {
	c := New()

	c.BytesReceived(1024)
	c.BytesSent(512)
	c.BytesReceived(100)

	if c.TotalBytesIn() != 1124 {
		t.Errorf("bytes in = %d, want 1124", c.TotalBytesIn())
	}
	if c.TotalBytesOut() != 512 {
		t.Errorf("bytes out = %d, want 512", c.TotalBytesOut())
	}
}

func TestCollector_ConcurrentBytes(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.BytesReceived(1)
			}
		}()
	}
	wg.Wait()
	if c.TotalBytesIn() != 8000 {
		t.Errorf("bytes in = %d, want 8000", c.TotalBytesIn())
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.RecordError("second error")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
	if msg := c.Snapshot().LastErrorMessage; msg != "second error" {
		t.Errorf("last error = %q", msg)
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.SessionConnected()
	c.BytesSent(42)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.SessionsActive != 1 {
		t.Errorf("JSON active = %d", snap.SessionsActive)
	}
	if snap.BytesOut != 42 {
		t.Errorf("JSON bytes out = %d", snap.BytesOut)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.SessionConnected()
	c.SessionFailed()
	c.SessionClosed()
	c.BytesReceived(100)
	c.BytesSent(100)
	c.RecordError("test")

	if c.ActiveSessions() != 0 || c.TotalBytesIn() != 0 || c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.Snapshot().SessionsActive != 0 {
		t.Error("nil snapshot should be zero")
	}
	if c.JSON() == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
