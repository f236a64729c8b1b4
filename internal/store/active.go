package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// activeFileName is the pointer file recording the currently active
// ticket for the interactive workflow. It is advisory, not
// authoritative, so it skips the locking protocol entirely.
const activeFileName = "active"

func (s *FileStore) activePath() string {
	return filepath.Join(s.dir, activeFileName)
}

// SetActive records id as the active ticket.
func (s *FileStore) SetActive(ctx context.Context, id string) error {
	if !s.Exists(ctx, id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.WriteFile(s.activePath(), []byte(id+"\n"), 0o644); err != nil {
		return fmt.Errorf("%w: write active pointer: %v", ErrIO, err)
	}
	return nil
}

// Active returns the active ticket ID, or ErrNoActive when the
// pointer is unset.
func (s *FileStore) Active(_ context.Context) (string, error) {
	body, err := os.ReadFile(s.activePath())
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoActive
	}
	if err != nil {
		return "", fmt.Errorf("%w: read active pointer: %v", ErrIO, err)
	}
	id := strings.TrimSpace(string(body))
	if id == "" {
		return "", ErrNoActive
	}
	return id, nil
}

// ClearActive removes the active ticket pointer. Clearing an unset
// pointer is not an error.
func (s *FileStore) ClearActive(_ context.Context) error {
	err := os.Remove(s.activePath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: clear active pointer: %v", ErrIO, err)
	}
	return nil
}
