package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"termphyrio/internal/ansi"
	tperr "termphyrio/internal/errors"
	"termphyrio/internal/history"
	"termphyrio/internal/metrics"
	"termphyrio/internal/transport"
	"termphyrio/util"
)

// Defaults for Options.
const (
	DefaultQueueSize   = 64
	DefaultEventBuffer = 256
)

// EventKind tells Output events from state changes.
type EventKind int

const (
	EventOutput EventKind = iota
	EventState
)

// Event is posted by session tasks to the registry's event queue.  An
// Output event carries filtered text of exactly one session; a State
// event carries the new status and, for Failed and Closed, the cause.
type Event struct {
	Kind    EventKind
	Session uuid.UUID
	Text    string
	Status  Status
	Err     error
}

// Options tunes a Registry.
type Options struct {
	PTY         transport.PTYRequest
	QueueSize   int // per-session send queue
	HistorySize int // per-session history capacity
	EventBuffer int
}

// Registry owns every session and the tasks serving them.  All methods
// are safe for concurrent use.
type Registry struct {
	connector transport.Connector
	metrics   *metrics.Collector
	logger    *util.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	order    []uuid.UUID
	pty      transport.PTYRequest

	queueSize   int
	historySize int

	events   chan Event
	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry returns an empty registry that connects through conn.
func NewRegistry(conn transport.Connector, opts Options, m *metrics.Collector, logger *util.Logger) *Registry {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = history.DefaultCapacity
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	return &Registry{
		connector:   conn,
		metrics:     m,
		logger:      logger,
		sessions:    make(map[uuid.UUID]*Session),
		pty:         opts.PTY,
		queueSize:   opts.QueueSize,
		historySize: opts.HistorySize,
		events:      make(chan Event, opts.EventBuffer),
		done:        make(chan struct{}),
	}
}

// Events is the queue session tasks post to.  It is never closed.
func (r *Registry) Events() <-chan Event { return r.events }

// Open registers a Connecting session for ep and establishes it in the
// background.  The returned session is already listed; its outcome
// arrives as a State event (Connected or Failed).
func (r *Registry) Open(ctx context.Context, ep transport.Endpoint, cred transport.Credential) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := newSession(ep, r.historySize, r.queueSize, cancel)

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
	pty := r.pty
	r.mu.Unlock()

	r.logger.Verbose("session %s: connecting to %s", s.ID, util.SanitizeForLog(ep.String()))

	r.wg.Add(1)
	go r.establish(ctx, s, cred, pty)
	return s
}

func (r *Registry) establish(ctx context.Context, s *Session, cred transport.Credential, pty transport.PTYRequest) {
	defer r.wg.Done()

	tr, err := r.connector.Connect(ctx, s.Endpoint, cred)
	var ch transport.Channel
	if err == nil {
		ch, err = tr.OpenShell(ctx, pty)
		if err != nil {
			tr.Close() //nolint:errcheck
		}
	}

	if err != nil {
		if !s.markFailed(err) {
			return
		}
		r.metrics.SessionFailed()
		r.metrics.RecordError(fmt.Sprintf("connect %s: %v", s.Endpoint, err))
		r.logger.Warn("session %s: %v", s.ID, err)
		r.post(Event{Kind: EventState, Session: s.ID, Status: Failed, Err: err})
		return
	}

	if !s.attach(tr, ch) {
		// Closed while connecting.
		ch.Close() //nolint:errcheck
		tr.Close() //nolint:errcheck
		return
	}
	r.metrics.SessionConnected()
	r.logger.Info("session %s: connected to %s", s.ID, util.SanitizeForLog(s.Endpoint.String()))

	// Posted before the tasks start so it precedes any output.
	r.post(Event{Kind: EventState, Session: s.ID, Status: Connected})

	r.wg.Add(2)
	go r.readLoop(s, ch)
	go r.writeLoop(s, ch)
}

// readLoop pulls shell output, filters it and posts it in order.  On
// end of stream or error the session is removed.
func (r *Registry) readLoop(s *Session, ch transport.Channel) {
	defer r.wg.Done()

	bufp := util.GetBuf()
	defer util.PutBuf(bufp)
	buf := *bufp

	filter := ansi.NewFilter()
	for {
		n, err := ch.Receive(buf)
		if n > 0 {
			r.metrics.BytesReceived(int64(n))
			if text := filter.Write(buf[:n]); text != "" {
				r.post(Event{Kind: EventOutput, Session: s.ID, Text: text})
			}
		}
		if err != nil {
			if text := filter.Flush(); text != "" {
				r.post(Event{Kind: EventOutput, Session: s.ID, Text: text})
			}
			var cause error
			if !tperr.Is(err, io.EOF) {
				cause = tperr.WrapChannel("read", s.ID.String(), err)
			}
			r.remove(s.ID, cause, true) //nolint:errcheck
			return
		}
	}
}

// writeLoop drains the session's send queue into the channel.
func (r *Registry) writeLoop(s *Session, ch transport.Channel) {
	defer r.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case p := <-s.outbox:
			if err := ch.Send(p); err != nil {
				cause := tperr.WrapChannel("write", s.ID.String(), err)
				r.remove(s.ID, cause, true) //nolint:errcheck
				return
			}
			r.metrics.BytesSent(int64(len(p)))
		}
	}
}

// post delivers ev unless the registry has shut down.
func (r *Registry) post(ev Event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// Close removes the session, stops its tasks and releases its channel
// and transport.  It posts no event; the caller knows.  Closing an ID
// that is not registered returns ErrSessionNotFound.
func (r *Registry) Close(id uuid.UUID) error {
	return r.remove(id, nil, false)
}

// remove deletes id from the registry.  Exactly one caller wins; the
// rest get ErrSessionNotFound.
func (r *Registry) remove(id uuid.UUID, cause error, notify bool) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return tperr.ErrSessionNotFound
	}
	delete(r.sessions, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	prev, _ := s.teardown()
	if prev == Connected {
		r.metrics.SessionClosed()
	}
	if cause != nil {
		r.metrics.RecordError(cause.Error())
		r.logger.Warn("session %s: %v", id, cause)
	} else {
		r.logger.Verbose("session %s: closed", id)
	}

	if notify {
		r.post(Event{Kind: EventState, Session: id, Status: Closed, Err: cause})
	}
	return nil
}

// Send queues line plus a newline for the session's shell.
func (r *Registry) Send(id uuid.UUID, line string) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Connected {
		return fmt.Errorf("session %s is %s: %w", id, s.status, tperr.ErrNotConnected)
	}
	select {
	case s.outbox <- []byte(line + "\n"):
		return nil
	default:
		return tperr.ErrQueueFull
	}
}

// Resize reports a new terminal size to one session's PTY.
func (r *Registry) Resize(id uuid.UUID, cols, rows int) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	ch := s.shell()
	if ch == nil {
		return tperr.ErrNotConnected
	}
	return ch.Resize(cols, rows)
}

// SetPTYSize changes the size requested for sessions opened later.
func (r *Registry) SetPTYSize(cols, rows int) {
	r.mu.Lock()
	r.pty.Cols, r.pty.Rows = cols, rows
	r.mu.Unlock()
}

// Get returns the session registered under id.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) lookup(id uuid.UUID) (*Session, error) {
	s, ok := r.Get(id)
	if !ok {
		return nil, tperr.ErrSessionNotFound
	}
	return s, nil
}

// List returns the sessions in the order they were opened.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown closes every session and waits for all tasks to exit.
// Events are no longer delivered afterwards.
func (r *Registry) Shutdown() {
	r.doneOnce.Do(func() { close(r.done) })

	r.mu.RLock()
	ids := append([]uuid.UUID(nil), r.order...)
	r.mu.RUnlock()
	for _, id := range ids {
		r.remove(id, nil, false) //nolint:errcheck
	}
	r.wg.Wait()
}
