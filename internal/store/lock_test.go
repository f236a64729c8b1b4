package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAcquireRelease(t *testing.T) {
	m := NewLockManager(t.TempDir(), time.Second, time.Minute)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "T1")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(m.dir, "T1.lock"))
	assert.NoError(t, err, "marker file should exist while held")

	h.Release()
	_, err = os.Stat(filepath.Join(m.dir, "T1.lock"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "marker file should be gone after release")

	// Release is idempotent.
	h.Release()
}

func TestAcquire_MarkerContents(t *testing.T) {
	m := NewLockManager(t.TempDir(), time.Second, time.Minute)

	h, err := m.Acquire(context.Background(), "T1")
	require.NoError(t, err)
	defer h.Release()

	body, err := os.ReadFile(filepath.Join(m.dir, "T1.lock"))
	require.NoError(t, err)

	var marker lockMarker
	require.NoError(t, yaml.Unmarshal(body, &marker))
	assert.Equal(t, os.Getpid(), marker.PID)
	assert.False(t, marker.AcquiredAt.IsZero())
}

func TestAcquire_TimesOutWhenHeld(t *testing.T) {
	m := NewLockManager(t.TempDir(), 150*time.Millisecond, time.Minute)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "T1")
	require.NoError(t, err)
	defer h.Release()

	start := time.Now()
	_, err = m.Acquire(ctx, "T1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestAcquire_DifferentKeysIndependent(t *testing.T) {
	m := NewLockManager(t.TempDir(), time.Second, time.Minute)
	ctx := context.Background()

	h1, err := m.Acquire(ctx, "T1")
	require.NoError(t, err)
	defer h1.Release()

	h2, err := m.Acquire(ctx, "T2")
	require.NoError(t, err)
	defer h2.Release()
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	m := NewLockManager(t.TempDir(), 2*time.Second, time.Minute)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "T1")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		h.Release()
	}()

	h2, err := m.Acquire(ctx, "T1")
	require.NoError(t, err)
	h2.Release()
}

func TestAcquire_ReclaimsStaleLock(t *testing.T) {
	m := NewLockManager(t.TempDir(), time.Second, 100*time.Millisecond)
	ctx := context.Background()

	// Simulate a crashed holder: acquire and never release.
	_, err := m.Acquire(ctx, "T1")
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)

	h2, err := m.Acquire(ctx, "T1")
	require.NoError(t, err, "stale marker should be reclaimed")
	h2.Release()
}

func TestAcquire_FreshLockNotReclaimed(t *testing.T) {
	m := NewLockManager(t.TempDir(), 100*time.Millisecond, time.Minute)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "T1")
	require.NoError(t, err)
	defer h.Release()

	_, err = m.Acquire(ctx, "T1")
	assert.True(t, errors.Is(err, ErrLockTimeout))
}

func TestAcquire_ReclaimsUnparsableMarkerByAge(t *testing.T) {
	dir := t.TempDir()
	m := NewLockManager(dir, time.Second, 50*time.Millisecond)

	// A torn marker write left garbage behind.
	path := filepath.Join(dir, "T1.lock")
	require.NoError(t, os.WriteFile(path, []byte(":::not yaml"), 0o644))
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	h, err := m.Acquire(context.Background(), "T1")
	require.NoError(t, err)
	h.Release()
}

func TestAcquire_ContextCancellation(t *testing.T) {
	m := NewLockManager(t.TempDir(), 10*time.Second, time.Minute)

	h, err := m.Acquire(context.Background(), "T1")
	require.NoError(t, err)
	defer h.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = m.Acquire(ctx, "T1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), 5*time.Second, "cancellation should abort the wait early")
}

func TestAcquire_MutualExclusion(t *testing.T) {
	m := NewLockManager(t.TempDir(), 5*time.Second, time.Minute)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.Acquire(ctx, "T1")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			h.Release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "at most one holder at a time")
}
