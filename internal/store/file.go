package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/tix/internal/bus"
	"github.com/joescharf/tix/internal/models"
)

const (
	ticketsDirName = "tickets"
	locksDirName   = "locks"
	ticketExt      = ".yaml"

	ioRetries    = 3
	ioRetryDelay = 20 * time.Millisecond
)

// Options configures a FileStore. Zero values select defaults.
type Options struct {
	LockTimeout time.Duration
	StaleAfter  time.Duration
	Policy      models.TransitionPolicy
	Bus         *bus.Bus
}

// FileStore implements Repository over a .tix directory tree.
type FileStore struct {
	dir    string // the .tix directory
	locks  *LockManager
	bus    *bus.Bus
	policy models.TransitionPolicy
}

var _ Repository = (*FileStore)(nil)

// NewFileStore opens an initialized .tix directory. The Bus may be
// nil when no in-process subscriber exists (plain CLI invocations).
func NewFileStore(dir string, opts Options) (*FileStore, error) {
	info, err := os.Stat(filepath.Join(dir, ticketsDirName))
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, dir)
	}
	if len(opts.Policy.BlockedResume) == 0 {
		opts.Policy = models.DefaultTransitionPolicy()
	}
	return &FileStore{
		dir:    dir,
		locks:  NewLockManager(filepath.Join(dir, locksDirName), opts.LockTimeout, opts.StaleAfter),
		bus:    opts.Bus,
		policy: opts.Policy,
	}, nil
}

// Policy returns the configured transition policy.
func (s *FileStore) Policy() models.TransitionPolicy { return s.policy }

func (s *FileStore) ticketPath(id string) string {
	return filepath.Join(s.dir, ticketsDirName, id+ticketExt)
}

// Create persists a new ticket. The slug-keyed lock makes the
// uniqueness check and the write a single critical section, so two
// racing creates with the same slug cannot both succeed.
func (s *FileStore) Create(ctx context.Context, t *models.Ticket) error {
	if err := models.ValidateSlug(t.Slug); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = models.NewID()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = models.StatusTodo
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	if t.NextTaskSeq < 1 {
		t.NextTaskSeq = 1
	}

	handle, err := s.locks.Acquire(ctx, "slug-"+t.Slug)
	if err != nil {
		return err
	}
	defer handle.Release()

	taken, err := s.slugTaken(ctx, t.Slug)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: slug %q", ErrAlreadyExists, t.Slug)
	}

	if err := s.writeTicket(t); err != nil {
		return err
	}

	handle.Release()
	s.publish(bus.Created{ID: t.ID, Slug: t.Slug})
	return nil
}

// Load reads the latest committed snapshot of a ticket. It never
// touches locks: atomic renames guarantee the file is always a
// complete snapshot.
func (s *FileStore) Load(_ context.Context, id string) (*models.Ticket, error) {
	return s.readTicket(s.ticketPath(id))
}

// Update executes the commit path for one ticket: acquire its lock,
// re-read the current on-disk state (not the caller's possibly stale
// view), apply the transform to that fresh state, write atomically,
// release, publish. Writes to the same ticket are linearized by the
// lock; unrelated tickets mutate in parallel.
func (s *FileStore) Update(ctx context.Context, id string, fn Transform) (*models.Ticket, error) {
	handle, err := s.locks.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	before, err := s.readTicket(s.ticketPath(id))
	if err != nil {
		return nil, err
	}

	after := before.Clone()
	if err := fn(after); err != nil {
		return nil, err
	}
	if after.ID != before.ID {
		return nil, fmt.Errorf("%w: transform changed ticket id", ErrCorrupt)
	}
	if after.Slug != before.Slug {
		if err := models.ValidateSlug(after.Slug); err != nil {
			return nil, err
		}
		taken, err := s.slugTaken(ctx, after.Slug)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("%w: slug %q", ErrAlreadyExists, after.Slug)
		}
	}
	after.UpdatedAt = time.Now().UTC()

	if err := s.writeTicket(after); err != nil {
		return nil, err
	}

	// Publish only after the lock is gone so a slow subscriber can
	// never extend the critical section.
	handle.Release()
	s.publishUpdate(before, after)
	return after, nil
}

// List scans all committed ticket files matching the filter. Archived
// tickets are excluded unless f.Archived is set. Results are ordered
// by ID, which for ULIDs means creation order.
func (s *FileStore) List(_ context.Context, f Filter) ([]*models.Ticket, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, ticketsDirName))
	if err != nil {
		return nil, fmt.Errorf("%w: read tickets dir: %v", ErrIO, err)
	}

	var tickets []*models.Ticket
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ticketExt) {
			// Ignore stray temp files from interrupted writes.
			continue
		}
		t, err := s.readTicket(filepath.Join(s.dir, ticketsDirName, entry.Name()))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // removed between ReadDir and read
			}
			return nil, err
		}
		if matches(t, f) {
			tickets = append(tickets, t)
		}
	}

	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })
	return tickets, nil
}

func matches(t *models.Ticket, f Filter) bool {
	if t.IsArchived() && !f.Archived {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range t.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Exists reports whether a ticket file exists for id.
func (s *FileStore) Exists(_ context.Context, id string) bool {
	_, err := os.Stat(s.ticketPath(id))
	return err == nil
}

// Resolve maps a reference to a ticket ID: exact ID first, then slug,
// then unique ID prefix.
func (s *FileStore) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrNotFound)
	}
	if s.Exists(ctx, ref) {
		return ref, nil
	}

	tickets, err := s.List(ctx, Filter{Archived: true})
	if err != nil {
		return "", err
	}

	upper := strings.ToUpper(ref)
	var matches []string
	for _, t := range tickets {
		if t.Slug == ref {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, upper) {
			matches = append(matches, t.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %q matches %d tickets", ErrAmbiguous, ref, len(matches))
	}
}

// Archive soft-archives a ticket through the normal commit path.
func (s *FileStore) Archive(ctx context.Context, id string) error {
	_, err := s.Update(ctx, id, func(t *models.Ticket) error {
		t.SetArchived(true)
		return nil
	})
	return err
}

// Delete physically removes a ticket file. It takes the ticket's lock
// so it cannot race a concurrent Update's read-modify-write.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	handle, err := s.locks.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer handle.Release()

	err = os.Remove(s.ticketPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: delete ticket: %v", ErrIO, err)
	}
	return nil
}

// slugTaken scans all tickets (archived included) for a slug match.
func (s *FileStore) slugTaken(ctx context.Context, slug string) (bool, error) {
	tickets, err := s.List(ctx, Filter{Archived: true})
	if err != nil {
		return false, err
	}
	for _, t := range tickets {
		if t.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

// readTicket parses one ticket file. Missing file is ErrNotFound,
// unparsable or inconsistent content is ErrCorrupt (fatal, never
// retried), other read failures are retried before ErrIO.
func (s *FileStore) readTicket(path string) (*models.Ticket, error) {
	var body []byte
	err := withIORetry(func() error {
		var readErr error
		body, readErr = os.ReadFile(path)
		return readErr
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, path, err)
	}

	var t models.Ticket
	if err := yaml.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	if t.ID == "" || t.Slug == "" {
		return nil, fmt.Errorf("%w: %s: missing id or slug", ErrCorrupt, filepath.Base(path))
	}
	return &t, nil
}

// writeTicket serializes and writes a full snapshot atomically:
// temp file in the same directory, fsync, rename over the target.
func (s *FileStore) writeTicket(t *models.Ticket) error {
	body, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal ticket %s: %w", t.ID, err)
	}
	err = withIORetry(func() error {
		return atomic.WriteFile(s.ticketPath(t.ID), bytes.NewReader(body))
	})
	if err != nil {
		return fmt.Errorf("%w: write ticket %s: %v", ErrIO, t.ID, err)
	}
	return nil
}

// withIORetry retries transient I/O a small bounded number of times.
// Not-exist errors are never transient and surface immediately.
func withIORetry(fn func() error) error {
	var err error
	for i := 0; i < ioRetries; i++ {
		err = fn()
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return err
		}
		time.Sleep(ioRetryDelay)
	}
	return err
}

func (s *FileStore) publish(ev bus.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

// publishUpdate emits the events describing a committed rewrite:
// Updated with the changed field names, then StatusChanged and Closed
// refinements where they apply.
func (s *FileStore) publishUpdate(before, after *models.Ticket) {
	if s.bus == nil {
		return
	}
	fields := changedFields(before, after)
	s.bus.Publish(bus.Updated{ID: after.ID, Fields: fields})
	if before.Status != after.Status {
		s.bus.Publish(bus.StatusChanged{ID: after.ID, From: before.Status, To: after.Status})
		if after.Status == models.StatusDone {
			s.bus.Publish(bus.Closed{ID: after.ID, Message: after.CloseNote})
		}
	}
}

func changedFields(before, after *models.Ticket) []string {
	var fields []string
	add := func(name string, changed bool) {
		if changed {
			fields = append(fields, name)
		}
	}
	add("slug", before.Slug != after.Slug)
	add("title", before.Title != after.Title)
	add("description", before.Description != after.Description)
	add("status", before.Status != after.Status)
	add("priority", before.Priority != after.Priority)
	add("tags", !equalStrings(before.Tags, after.Tags))
	add("tasks", !equalTasks(before.Tasks, after.Tasks))
	add("metadata", !equalMaps(before.Metadata, after.Metadata))
	add("close_note", before.CloseNote != after.CloseNote)
	sort.Strings(fields)
	return fields
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalTasks(a, b []models.Task) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Seq != b[i].Seq || a[i].Title != b[i].Title || a[i].Done != b[i].Done {
			return false
		}
	}
	return true
}

func equalMaps(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
