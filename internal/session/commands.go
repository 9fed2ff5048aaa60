package session

import (
	"space-pulse/internal/replica"
)

// command is one unit of work for the session loop. Commands are the only way the replica
// changes.
type command interface {
	exec(st replica.State) replica.State
}

// inboundCmd carries an event received from the transport.
type inboundCmd struct {
	in replica.Inbound
}

func (c inboundCmd) exec(st replica.State) replica.State {
	return replica.Apply(st, c.in)
}

// selectSpaceCmd moves the selection. A successful selection triggers a refetch.
type selectSpaceCmd struct {
	spaceID string
}

func (c selectSpaceCmd) exec(st replica.State) replica.State {
	return replica.SelectSpace(st, c.spaceID)
}

type selectNoteCmd struct {
	noteID string
}

func (c selectNoteCmd) exec(st replica.State) replica.State {
	return replica.SelectNote(st, c.noteID)
}

type toggleBlockCmd struct {
	spaceID, noteID, blockID string
}

func (c toggleBlockCmd) exec(st replica.State) replica.State {
	return replica.ToggleCollapsed(st, c.spaceID, c.noteID, c.blockID)
}

// responseCmd merges the result of a confirmed mutation or fetch.
type responseCmd struct {
	op string
	fn func(replica.State) replica.State
}

func (c responseCmd) exec(st replica.State) replica.State {
	return c.fn(st)
}

// flushCmd completes once every command queued before it has run.
type flushCmd struct {
	done chan struct{}
}

func (c flushCmd) exec(st replica.State) replica.State {
	close(c.done)
	return st
}
