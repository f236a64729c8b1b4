// Package store persists tickets as one YAML file each under a
// project-local .tix directory, safely shared between concurrent
// processes. Mutations go through a per-ticket lock and an atomic
// temp-file-plus-rename write, so readers only ever observe complete
// snapshots; committed mutations are announced on an in-process bus.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joescharf/tix/internal/models"
)

// DirName is the project-local data directory created by Init.
const DirName = ".tix"

// Filter narrows List results. Zero values match everything; archived
// tickets are excluded unless Archived is set.
type Filter struct {
	Status   models.Status
	Priority models.Priority
	Tag      string
	Archived bool
}

// Transform is a pure mutation applied to the freshly-read on-disk
// state of a ticket while its lock is held. Returning an error aborts
// the update without writing.
type Transform func(*models.Ticket) error

// Repository defines the persistence surface consumed by the CLI and
// the MCP service layer.
type Repository interface {
	// Create persists a new ticket, enforcing project-wide slug
	// uniqueness (ErrAlreadyExists on collision).
	Create(ctx context.Context, t *models.Ticket) error

	// Load reads the latest committed snapshot. Lock-free.
	Load(ctx context.Context, id string) (*models.Ticket, error)

	// Update runs the commit path: lock, re-read, transform the fresh
	// state, write atomically, unlock, publish. Returns the updated
	// ticket.
	Update(ctx context.Context, id string, fn Transform) (*models.Ticket, error)

	// List scans all committed tickets matching the filter. Lock-free.
	List(ctx context.Context, f Filter) ([]*models.Ticket, error)

	// Exists reports whether a ticket file exists for id. Lock-free.
	Exists(ctx context.Context, id string) bool

	// Resolve maps a user-supplied reference (full ID, unique ID
	// prefix, or slug) to a ticket ID.
	Resolve(ctx context.Context, ref string) (string, error)

	// Archive soft-archives a ticket, hiding it from default listings.
	Archive(ctx context.Context, id string) error

	// Delete physically removes a ticket file. Rare, explicit.
	Delete(ctx context.Context, id string) error

	// Active ticket pointer, advisory state for the interactive
	// workflow. Read and written without the locking protocol.
	SetActive(ctx context.Context, id string) error
	Active(ctx context.Context) (string, error)
	ClearActive(ctx context.Context) error

	// Policy returns the transition policy callers use to validate
	// status changes inside transforms.
	Policy() models.TransitionPolicy
}

// Init creates the .tix layout under root. Fails with
// ErrAlreadyInitialized when the directory already exists.
func Init(root string) (string, error) {
	dir := filepath.Join(root, DirName)
	if _, err := os.Stat(dir); err == nil {
		return dir, fmt.Errorf("%w: %s", ErrAlreadyInitialized, dir)
	}
	for _, sub := range []string{ticketsDirName, locksDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", sub, err)
		}
	}
	return dir, nil
}

// Discover walks up from start looking for a .tix directory, the same
// way git finds its repository root.
func Discover(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no %s directory found above %s", ErrNotInitialized, DirName, start)
		}
		dir = parent
	}
}

// IsNotFound is a convenience for callers that only care whether a
// reference resolved.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
