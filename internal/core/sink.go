package core

import (
	"github.com/google/uuid"

	"termphyrio/internal/metrics"
	"termphyrio/internal/records"
	"termphyrio/internal/session"
)

// Sink renders coordinator output.  Every method is called from the
// coordinator loop goroutine only, so implementations need no locking
// of their own state.
type Sink interface {
	// AppendText delivers filtered output of one session, in order.
	AppendText(id uuid.UUID, text string)

	// SessionAdded announces a new Connecting session at 1-based index.
	SessionAdded(info session.Info, index int)

	// SessionChanged reports a state change (Connected or Failed).
	SessionChanged(info session.Info)

	// SessionRemoved reports that a session is gone.  err is the
	// runtime failure that ended it, or nil.
	SessionRemoved(id uuid.UUID, err error)

	// Activated reports the new active session and its display
	// contents.  id is uuid.Nil when no session is left.
	Activated(id uuid.UUID, replay string)

	// Recall offers a history line for editing.
	Recall(id uuid.UUID, line string)

	// Notice is a one-line status message.
	Notice(msg string)

	// Sessions answers ListSessions.
	Sessions(list []session.Info, active uuid.UUID)

	// Records answers ListRecords.
	Records(list []records.Record)

	// History answers ShowHistory.
	History(id uuid.UUID, lines []string)

	// Stats answers Stats.
	Stats(snap metrics.Snapshot)
}
