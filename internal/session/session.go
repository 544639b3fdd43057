// Package session tracks every interactive shell the client has open.
//
// A Session moves Connecting → Connected → Closed, or Connecting →
// Failed when the connection or shell cannot be established.  Each
// Connected session owns one reader task that filters shell output into
// text events and one writer task that drains its send queue.  The
// Registry is the only owner of sessions; everything else refers to
// them by ID.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"termphyrio/internal/history"
	"termphyrio/internal/transport"
)

// Status is a session's lifecycle state.
type Status int

const (
	Connecting Status = iota
	Connected
	Closed
	Failed
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Session is one SSH shell ("tab").
type Session struct {
	ID        uuid.UUID
	Endpoint  transport.Endpoint
	CreatedAt time.Time

	// History is the session's input log.  It is not synchronised and
	// belongs to the goroutine that submits input.
	History *history.Buffer

	mu        sync.Mutex
	status    Status
	err       error
	transport transport.Transport
	channel   transport.Channel

	cancel    context.CancelFunc // aborts establishment
	stop      chan struct{}      // closed on teardown; stops the writer
	outbox    chan []byte
	closeOnce sync.Once
}

func newSession(ep transport.Endpoint, historySize, queueSize int, cancel context.CancelFunc) *Session {
	return &Session{
		ID:        uuid.New(),
		Endpoint:  ep,
		CreatedAt: time.Now(),
		History:   history.New(historySize),
		status:    Connecting,
		cancel:    cancel,
		stop:      make(chan struct{}),
		outbox:    make(chan []byte, queueSize),
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the establishment error of a Failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Info is a point-in-time copy of a session's listing fields.
type Info struct {
	ID        uuid.UUID
	Endpoint  transport.Endpoint
	Status    Status
	Err       error
	CreatedAt time.Time
}

// Info snapshots the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.ID,
		Endpoint:  s.Endpoint,
		Status:    s.status,
		Err:       s.err,
		CreatedAt: s.CreatedAt,
	}
}

// attach moves a Connecting session to Connected.  It reports false
// if the session was closed while connecting.
func (s *Session) attach(tr transport.Transport, ch transport.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Connecting {
		return false
	}
	s.status = Connected
	s.transport = tr
	s.channel = ch
	return true
}

// markFailed moves a Connecting session to Failed.  It reports false
// if the session was closed while connecting.
func (s *Session) markFailed(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Connecting {
		return false
	}
	s.status = Failed
	s.err = err
	return true
}

// teardown marks the session Closed and releases its channel and
// transport.  It returns the status the session had before.  Only the
// first call does anything.
func (s *Session) teardown() (prev Status, done bool) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev = s.status
		s.status = Closed
		ch, tr := s.channel, s.transport
		s.mu.Unlock()

		s.cancel()
		close(s.stop)
		if ch != nil {
			ch.Close() //nolint:errcheck
		}
		if tr != nil {
			tr.Close() //nolint:errcheck
		}
		done = true
	})
	return prev, done
}

func (s *Session) shell() transport.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Connected {
		return nil
	}
	return s.channel
}
