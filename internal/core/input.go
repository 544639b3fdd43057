package core

import (
	"github.com/google/uuid"

	"termphyrio/internal/transport"
)

// Input is an event delivered to the coordinator by an input source.
type Input interface {
	input()
}

// Target picks a session.  ID wins when set, then Index (1-based,
// in the order sessions were opened); the zero Target is the active
// session.
type Target struct {
	ID    uuid.UUID
	Index int
}

// Active is the zero Target.
var Active = Target{}

// Direction is a history navigation step.
type Direction int

const (
	Previous Direction = iota
	Next
)

type (
	// Connect opens a new session to Endpoint.
	Connect struct {
		Endpoint   transport.Endpoint
		Credential transport.Credential
	}

	// ConnectRecord opens a session to the Index-th (1-based)
	// connection record.
	ConnectRecord struct {
		Index      int
		Credential transport.Credential
	}

	// Submit sends Line to the target session and records it in its
	// history.
	Submit struct {
		Target Target
		Line   string
	}

	// Navigate moves the target session's history cursor.
	Navigate struct {
		Target Target
		Dir    Direction
	}

	// Close closes the target session.
	Close struct{ Target Target }

	// Select makes the target session active and replays its display.
	Select struct{ Target Target }

	// ListSessions asks for the session table.
	ListSessions struct{}

	// ListRecords asks for the saved connection records.
	ListRecords struct{}

	// ShowHistory asks for the target session's command history.
	ShowHistory struct{ Target Target }

	// Stats asks for a metrics snapshot.
	Stats struct{}

	// Resize changes the terminal size of every session and of
	// sessions opened later.
	Resize struct{ Cols, Rows int }

	// Quit stops the coordinator.
	Quit struct{}
)

func (Connect) input()       {}
func (ConnectRecord) input() {}
func (Submit) input()        {}
func (Navigate) input()      {}
func (Close) input()         {}
func (Select) input()        {}
func (ListSessions) input()  {}
func (ListRecords) input()   {}
func (ShowHistory) input()   {}
func (Stats) input()         {}
func (Resize) input()        {}
func (Quit) input()          {}
