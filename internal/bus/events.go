package bus

import "github.com/joescharf/tix/internal/models"

// Event is a committed-mutation notification published by the store.
// Events are immutable values; subscribers must not retain pointers
// into store state.
type Event interface {
	// TicketID returns the identifier of the mutated ticket.
	TicketID() string
}

// Created is published after a new ticket is persisted.
type Created struct {
	ID   string
	Slug string
}

// Updated is published after an existing ticket is rewritten. Fields
// lists the top-level fields that changed, sorted.
type Updated struct {
	ID     string
	Fields []string
}

// StatusChanged is published when a mutation moved the ticket between
// workflow states.
type StatusChanged struct {
	ID   string
	From models.Status
	To   models.Status
}

// Closed is published when a mutation moved the ticket to done.
type Closed struct {
	ID      string
	Message string
}

func (e Created) TicketID() string       { return e.ID }
func (e Updated) TicketID() string       { return e.ID }
func (e StatusChanged) TicketID() string { return e.ID }
func (e Closed) TicketID() string        { return e.ID }
