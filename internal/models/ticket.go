package models

import (
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID generates a new ULID ticket identifier.
func NewID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

var slugRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidateSlug checks that a slug is lowercase alphanumeric with
// single hyphens between segments.
func ValidateSlug(slug string) error {
	if !slugRe.MatchString(slug) {
		return fmt.Errorf("invalid slug %q: use lowercase letters, digits, and hyphens", slug)
	}
	return nil
}

// Task is a sub-record of a ticket. Seq is unique within the owning
// ticket and never reused, even after removal.
type Task struct {
	Seq       int        `yaml:"seq"`
	Title     string     `yaml:"title"`
	Done      bool       `yaml:"done"`
	CreatedAt time.Time  `yaml:"created_at"`
	DoneAt    *time.Time `yaml:"done_at,omitempty"`
}

// Ticket is the unit of work tracked by tix. Its on-disk form is a
// single YAML file holding a complete snapshot.
type Ticket struct {
	ID          string            `yaml:"id"`
	Slug        string            `yaml:"slug"`
	Title       string            `yaml:"title"`
	Description string            `yaml:"description,omitempty"`
	Status      Status            `yaml:"status"`
	Priority    Priority          `yaml:"priority"`
	Tags        []string          `yaml:"tags,omitempty"`
	Tasks       []Task            `yaml:"tasks,omitempty"`
	NextTaskSeq int               `yaml:"next_task_seq"`
	BlockedFrom Status            `yaml:"blocked_from,omitempty"`
	CloseNote   string            `yaml:"close_note,omitempty"`
	CreatedAt   time.Time         `yaml:"created_at"`
	UpdatedAt   time.Time         `yaml:"updated_at"`
	StartedAt   *time.Time        `yaml:"started_at,omitempty"`
	ClosedAt    *time.Time        `yaml:"closed_at,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty"`
}

// NewTicket creates a ticket in the initial todo state.
func NewTicket(slug, title string) *Ticket {
	now := time.Now().UTC()
	return &Ticket{
		ID:          NewID(),
		Slug:        slug,
		Title:       title,
		Status:      StatusTodo,
		Priority:    PriorityMedium,
		NextTaskSeq: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy. The store transforms a clone of the
// freshly-read state so an aborted transform leaves nothing shared.
func (t *Ticket) Clone() *Ticket {
	c := *t
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.Tasks != nil {
		c.Tasks = make([]Task, len(t.Tasks))
		for i, task := range t.Tasks {
			c.Tasks[i] = task
			if task.DoneAt != nil {
				doneAt := *task.DoneAt
				c.Tasks[i].DoneAt = &doneAt
			}
		}
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	if t.StartedAt != nil {
		startedAt := *t.StartedAt
		c.StartedAt = &startedAt
	}
	if t.ClosedAt != nil {
		closedAt := *t.ClosedAt
		c.ClosedAt = &closedAt
	}
	return &c
}

const archivedKey = "archived"

// IsArchived reports whether the ticket is soft-archived. Archived
// tickets are excluded from default listings but remain on disk.
func (t *Ticket) IsArchived() bool {
	return t.Metadata[archivedKey] == "true"
}

// SetArchived toggles the soft-archive flag.
func (t *Ticket) SetArchived(archived bool) {
	if archived {
		if t.Metadata == nil {
			t.Metadata = map[string]string{}
		}
		t.Metadata[archivedKey] = "true"
		return
	}
	delete(t.Metadata, archivedKey)
}

// Transition moves the ticket to a new status after validating the
// change against the policy. It maintains the blocked-resume bookmark
// and the started/closed timestamps.
func (t *Ticket) Transition(to Status, policy TransitionPolicy) error {
	if err := policy.Validate(t.Status, to); err != nil {
		return err
	}

	now := time.Now().UTC()
	switch to {
	case StatusBlocked:
		t.BlockedFrom = t.Status
	case StatusDoing:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case StatusDone:
		t.ClosedAt = &now
	case StatusTodo:
		if t.Status == StatusDone {
			// Reopen clears the closed marker.
			t.ClosedAt = nil
			t.CloseNote = ""
		}
	}
	if t.Status == StatusBlocked && to != StatusBlocked {
		t.BlockedFrom = ""
	}

	t.Status = to
	return nil
}

// Unblock returns a blocked ticket to the state it was blocked from,
// falling back to todo when no bookmark was recorded.
func (t *Ticket) Unblock(policy TransitionPolicy) error {
	if t.Status != StatusBlocked {
		return &InvalidTransitionError{From: t.Status, To: t.BlockedFrom}
	}
	target := t.BlockedFrom
	if target == "" {
		target = StatusTodo
	}
	return t.Transition(target, policy)
}

// Close moves the ticket to done with an optional closing note.
func (t *Ticket) Close(note string, policy TransitionPolicy) error {
	if err := t.Transition(StatusDone, policy); err != nil {
		return err
	}
	t.CloseNote = note
	return nil
}

// AddTask appends a task, assigning the next sequence number. Sequence
// numbers are monotonic per ticket and never reused.
func (t *Ticket) AddTask(title string) *Task {
	if t.NextTaskSeq < 1 {
		t.NextTaskSeq = 1
	}
	task := Task{
		Seq:       t.NextTaskSeq,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	t.NextTaskSeq++
	t.Tasks = append(t.Tasks, task)
	return &t.Tasks[len(t.Tasks)-1]
}

// FindTask returns the task with the given sequence number.
func (t *Ticket) FindTask(seq int) *Task {
	for i := range t.Tasks {
		if t.Tasks[i].Seq == seq {
			return &t.Tasks[i]
		}
	}
	return nil
}

// CompleteTask marks the task with the given sequence number as done.
func (t *Ticket) CompleteTask(seq int) error {
	task := t.FindTask(seq)
	if task == nil {
		return fmt.Errorf("task %d not found in ticket %s", seq, t.Slug)
	}
	if !task.Done {
		now := time.Now().UTC()
		task.Done = true
		task.DoneAt = &now
	}
	return nil
}

// RemoveTask deletes the task with the given sequence number. The
// sequence number is not reused.
func (t *Ticket) RemoveTask(seq int) error {
	for i := range t.Tasks {
		if t.Tasks[i].Seq == seq {
			t.Tasks = append(t.Tasks[:i], t.Tasks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("task %d not found in ticket %s", seq, t.Slug)
}

// TaskProgress returns done and total task counts.
func (t *Ticket) TaskProgress() (done, total int) {
	for _, task := range t.Tasks {
		if task.Done {
			done++
		}
	}
	return done, len(t.Tasks)
}
