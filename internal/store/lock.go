package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Lock acquisition defaults, overridable via Options.
const (
	DefaultLockTimeout = 5 * time.Second
	DefaultStaleAfter  = 30 * time.Second

	lockBackoffBase = 5 * time.Millisecond
	lockBackoffMax  = 250 * time.Millisecond
)

// lockMarker is the on-disk body of a lock file: who holds the lock
// and since when. The timestamp drives stale-lock reclamation.
type lockMarker struct {
	PID        int       `yaml:"pid"`
	Host       string    `yaml:"host"`
	AcquiredAt time.Time `yaml:"acquired_at"`
}

// LockManager hands out per-key exclusive locks shared between
// cooperating processes via marker files under <dir>.
//
// At most one holder exists per key at any instant, modulo the
// staleness window: a holder slower than StaleAfter can be preempted
// by another process that presumes it crashed. That trade-off is
// accepted so an unclean exit never wedges a ticket forever.
type LockManager struct {
	dir        string
	timeout    time.Duration
	staleAfter time.Duration
}

// NewLockManager creates a manager storing marker files under dir.
// Zero durations select the defaults.
func NewLockManager(dir string, timeout, staleAfter time.Duration) *LockManager {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &LockManager{dir: dir, timeout: timeout, staleAfter: staleAfter}
}

// LockHandle represents a held lock. Release is idempotent and safe
// to call on an already-reclaimed lock.
type LockHandle struct {
	path     string
	released atomic.Bool
}

// Release removes the lock marker. Only a successful Acquire returns
// a handle, so only the holder ever removes the marker on purpose.
func (h *LockHandle) Release() {
	if h == nil || h.released.Swap(true) {
		return
	}
	_ = os.Remove(h.path)
}

// Acquire obtains the exclusive lock for key, waiting up to the
// configured timeout. A marker older than the staleness threshold is
// presumed abandoned, deleted, and re-acquired immediately.
//
// Context cancellation aborts the wait without leaving a marker and
// does not count as an acquisition.
func (m *LockManager) Acquire(ctx context.Context, key string) (*LockHandle, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}

	path := filepath.Join(m.dir, key+".lock")
	deadline := time.Now().Add(m.timeout)
	backoff := lockBackoffBase

	for attempt := 0; ; attempt++ {
		ok, err := m.tryAcquire(path)
		if err != nil {
			return nil, err
		}
		if ok {
			return &LockHandle{path: path}, nil
		}

		stale, err := m.reclaimIfStale(path)
		if err != nil {
			return nil, err
		}
		if stale {
			// Marker removed; retry immediately.
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: %s (held by another process)", ErrLockTimeout, key)
		}

		// Bounded exponential backoff with jitter.
		delay := backoff + time.Duration(rand.Int63n(int64(backoff)))
		if delay > remaining {
			delay = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if backoff < lockBackoffMax {
			backoff *= 2
		}
	}
}

// tryAcquire attempts the create-exclusive marker write. Returns
// false without error when the marker already exists.
func (m *LockManager) tryAcquire(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create lock marker: %w", err)
	}

	host, _ := os.Hostname()
	body, err := yaml.Marshal(lockMarker{
		PID:        os.Getpid(),
		Host:       host,
		AcquiredAt: time.Now().UTC(),
	})
	if err == nil {
		_, err = f.Write(body)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return false, fmt.Errorf("write lock marker: %w", err)
	}
	return true, nil
}

// reclaimIfStale deletes the marker when its timestamp is older than
// the staleness threshold, presuming its owner crashed without
// releasing. An unreadable or unparsable marker is reclaimed once it
// is old by mtime, so a torn marker write cannot wedge the key.
func (m *LockManager) reclaimIfStale(path string) (bool, error) {
	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		// Holder released between our attempt and now.
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lock marker: %w", err)
	}

	var marker lockMarker
	age := time.Duration(0)
	if yaml.Unmarshal(body, &marker) == nil && !marker.AcquiredAt.IsZero() {
		age = time.Since(marker.AcquiredAt)
	} else if info, statErr := os.Stat(path); statErr == nil {
		age = time.Since(info.ModTime())
	}

	if age <= m.staleAfter {
		return false, nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("reclaim stale lock: %w", err)
	}
	return true, nil
}
