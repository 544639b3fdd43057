// Package core is the orchestration layer.  App is the single
// coordinating loop: it owns every piece of display state, consumes
// session events and input events in the order they arrive, and drives
// the session registry.
//
// Architecture layers (bottom → top):
//
//	transport  →  session  →  core  →  console  →  cmd (CLI)
//
// Session tasks never touch display state; they post immutable events
// that App applies one at a time.
package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	tperr "termphyrio/internal/errors"
	"termphyrio/internal/metrics"
	"termphyrio/internal/records"
	"termphyrio/internal/session"
	"termphyrio/internal/transport"
	"termphyrio/util"
)

// ErrStopped is returned by Post after Run has returned.
var ErrStopped = errors.New("coordinator stopped")

// App is the coordinator.  Create it with NewApp or Build and call Run
// exactly once.
type App struct {
	registry *session.Registry
	store    *records.Store // nil when records are unavailable
	metrics  *metrics.Collector
	sink     Sink
	logger   *util.Logger

	inputs  chan Input
	stopped chan struct{}

	// Loop-owned state.
	ctx            context.Context
	displays       map[uuid.UUID]*Display
	active         uuid.UUID
	scrollbackSize int
}

// NewApp wires a coordinator around an existing registry.  store may
// be nil, in which case connections are not remembered.
func NewApp(reg *session.Registry, store *records.Store, m *metrics.Collector, sink Sink, scrollbackSize int, logger *util.Logger) *App {
	return &App{
		registry:       reg,
		store:          store,
		metrics:        m,
		sink:           sink,
		logger:         logger,
		inputs:         make(chan Input, 16),
		stopped:        make(chan struct{}),
		displays:       make(map[uuid.UUID]*Display),
		scrollbackSize: scrollbackSize,
	}
}

// Post hands an input event to the loop.  It blocks until the loop has
// room for it, ctx ends, or the loop has stopped.
func (a *App) Post(ctx context.Context, in Input) error {
	select {
	case a.inputs <- in:
		return nil
	case <-a.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled or a Quit input arrives.
// Every session is closed before Run returns.
func (a *App) Run(ctx context.Context) error {
	defer close(a.stopped)
	defer func() {
		a.registry.Shutdown()
		a.logger.Debug("final stats: %s", a.metrics.JSON())
	}()

	a.ctx = ctx
	events := a.registry.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			a.handleEvent(ev)
		case in := <-a.inputs:
			if _, quit := in.(Quit); quit {
				return nil
			}
			a.handleInput(in)
		}
	}
}

// ── session events ───────────────────────────────────────────────────

func (a *App) handleEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventOutput:
		d, ok := a.displays[ev.Session]
		if !ok {
			// Late output of a session closed by the user.
			return
		}
		d.Append(ev.Text)
		a.sink.AppendText(ev.Session, ev.Text)

	case session.EventState:
		switch ev.Status {
		case session.Connected:
			s, ok := a.registry.Get(ev.Session)
			if !ok {
				return
			}
			a.sink.SessionChanged(s.Info())
			a.remember(s.Endpoint)
		case session.Failed:
			s, ok := a.registry.Get(ev.Session)
			if !ok {
				return
			}
			a.sink.SessionChanged(s.Info())
			a.sink.Notice(fmt.Sprintf("%s: %s failed: %v", s.Endpoint, tperr.Classify(ev.Err), ev.Err))
		case session.Closed:
			a.dropView(ev.Session, ev.Err)
		}
	}
}

// remember persists a successful connection.  Failures are reported
// but never affect the session.
func (a *App) remember(ep transport.Endpoint) {
	if a.store == nil {
		return
	}
	rec := records.Record{Host: ep.Host, Username: ep.User, Port: ep.Port}
	added, err := a.store.Add(rec)
	if err != nil {
		a.logger.Warn("saving connection record: %v", err)
		a.metrics.RecordError(err.Error())
		a.sink.Notice(fmt.Sprintf("could not save connection record: %v", err))
		return
	}
	if added {
		a.logger.Verbose("remembered %s", util.SanitizeForLog(ep.String()))
	}
}

// dropView forgets a session's display and moves the selection if it
// was active.
func (a *App) dropView(id uuid.UUID, err error) {
	if _, ok := a.displays[id]; !ok {
		return
	}
	delete(a.displays, id)
	a.sink.SessionRemoved(id, err)
	if a.active == id {
		a.active = uuid.Nil
		if list := a.registry.List(); len(list) > 0 {
			a.activate(list[len(list)-1].ID)
		} else {
			a.sink.Activated(uuid.Nil, "")
		}
	}
}

// ── input events ─────────────────────────────────────────────────────

func (a *App) handleInput(in Input) {
	switch in := in.(type) {
	case Connect:
		a.connect(in.Endpoint, in.Credential)

	case ConnectRecord:
		if a.store == nil {
			a.sink.Notice("connection records are unavailable")
			return
		}
		list := a.store.List()
		if in.Index < 1 || in.Index > len(list) {
			a.sink.Notice(fmt.Sprintf("no record #%d (have %d)", in.Index, len(list)))
			return
		}
		rec := list[in.Index-1]
		a.connect(transport.Endpoint{Host: rec.Host, Port: rec.Port, User: rec.Username}, in.Credential)

	case Submit:
		s, ok := a.resolve(in.Target)
		if !ok {
			return
		}
		if err := a.registry.Send(s.ID, in.Line); err != nil {
			a.sink.Notice(fmt.Sprintf("%s: %v", s.Endpoint, err))
			return
		}
		s.History.Append(in.Line)

	case Navigate:
		s, ok := a.resolve(in.Target)
		if !ok {
			return
		}
		if in.Dir == Previous {
			if line, ok := s.History.Previous(); ok {
				a.sink.Recall(s.ID, line)
			}
			return
		}
		a.sink.Recall(s.ID, s.History.Next())

	case Close:
		s, ok := a.resolve(in.Target)
		if !ok {
			return
		}
		if err := a.registry.Close(s.ID); err != nil {
			a.sink.Notice(fmt.Sprintf("close: %v", err))
			return
		}
		a.dropView(s.ID, nil)

	case Select:
		if s, ok := a.resolve(in.Target); ok {
			a.activate(s.ID)
		}

	case ListSessions:
		list := a.registry.List()
		infos := make([]session.Info, len(list))
		for i, s := range list {
			infos[i] = s.Info()
		}
		a.sink.Sessions(infos, a.active)

	case ListRecords:
		if a.store == nil {
			a.sink.Records(nil)
			return
		}
		a.sink.Records(a.store.List())

	case ShowHistory:
		if s, ok := a.resolve(in.Target); ok {
			a.sink.History(s.ID, s.History.Entries())
		}

	case Stats:
		a.sink.Stats(a.metrics.Snapshot())

	case Resize:
		if in.Cols <= 0 || in.Rows <= 0 {
			a.sink.Notice(fmt.Sprintf("invalid size %dx%d", in.Cols, in.Rows))
			return
		}
		a.registry.SetPTYSize(in.Cols, in.Rows)
		for _, s := range a.registry.List() {
			if s.Status() != session.Connected {
				continue
			}
			if err := a.registry.Resize(s.ID, in.Cols, in.Rows); err != nil {
				a.logger.Debug("resize %s: %v", s.ID, err)
			}
		}
	}
}

func (a *App) connect(ep transport.Endpoint, cred transport.Credential) {
	s := a.registry.Open(a.ctx, ep, cred)
	a.displays[s.ID] = NewDisplay(a.scrollbackSize)
	a.sink.SessionAdded(s.Info(), a.registry.Len())
	a.activate(s.ID)
}

func (a *App) activate(id uuid.UUID) {
	d, ok := a.displays[id]
	if !ok {
		return
	}
	a.active = id
	a.sink.Activated(id, d.String())
}

// resolve finds the session t refers to, telling the user when there
// is none.
func (a *App) resolve(t Target) (*session.Session, bool) {
	var (
		s  *session.Session
		ok bool
	)
	switch {
	case t.ID != uuid.Nil:
		s, ok = a.registry.Get(t.ID)
	case t.Index > 0:
		if list := a.registry.List(); t.Index <= len(list) {
			s, ok = list[t.Index-1], true
		}
	default:
		if a.active == uuid.Nil {
			a.sink.Notice("no active session – use :open [user@]host[:port]")
			return nil, false
		}
		s, ok = a.registry.Get(a.active)
	}
	if !ok {
		a.sink.Notice(fmt.Sprintf("%v", tperr.ErrSessionNotFound))
	}
	return s, ok
}
