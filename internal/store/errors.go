package store

import "errors"

// Typed errors surfaced by the store. Callers match with errors.Is;
// user-facing presentation and exit codes are the CLI's business.
var (
	// ErrNotFound means no ticket exists for the given identifier.
	ErrNotFound = errors.New("ticket not found")

	// ErrAlreadyExists means a create collided with an existing slug.
	ErrAlreadyExists = errors.New("ticket already exists")

	// ErrLockTimeout means mutual exclusion could not be obtained
	// within the configured budget. Never silently retried.
	ErrLockTimeout = errors.New("lock timeout")

	// ErrCorrupt means on-disk content is unparsable or inconsistent.
	// Fatal for that ticket; never retried.
	ErrCorrupt = errors.New("ticket data corrupt")

	// ErrIO means a transient storage failure persisted after
	// exhausting bounded retries.
	ErrIO = errors.New("storage i/o failure")

	// ErrAmbiguous means a ticket reference matched more than one ticket.
	ErrAmbiguous = errors.New("ambiguous ticket reference")

	// ErrNoActive means no active ticket pointer is set.
	ErrNoActive = errors.New("no active ticket")

	// ErrNotInitialized means no .tix data directory was found.
	ErrNotInitialized = errors.New("tix project not initialized")

	// ErrAlreadyInitialized means init was run inside an existing project.
	ErrAlreadyInitialized = errors.New("tix project already initialized")
)
