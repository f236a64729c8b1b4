// Package index maintains a derived SQLite search index over the
// committed ticket tree. The index is rebuilt from the store before
// each query and is never written on the commit path, so it can be
// deleted at any time without losing data.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joescharf/tix/internal/models"

	_ "modernc.org/sqlite"
)

// Index wraps the SQLite database file (pure Go driver, no CGO).
type Index struct {
	db *sql.DB
}

// Open opens (or creates) the index database at the given path and
// ensures the schema exists.
func Open(dbPath string) (*Index, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}

	// SQLite only supports one concurrent writer; a single connection
	// serializes access through Go's connection pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tickets (
		id          TEXT PRIMARY KEY,
		slug        TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		priority    TEXT NOT NULL,
		tags        TEXT NOT NULL DEFAULT '',
		archived    INTEGER NOT NULL DEFAULT 0,
		tasks_done  INTEGER NOT NULL DEFAULT 0,
		tasks_total INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the database.
func (x *Index) Close() error { return x.db.Close() }

// Rebuild repopulates the index from the given committed snapshots in
// one transaction.
func (x *Index) Rebuild(ctx context.Context, tickets []*models.Ticket) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tickets"); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tickets (id, slug, title, description, status, priority, tags, archived, tasks_done, tasks_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tickets {
		done, total := t.TaskProgress()
		archived := 0
		if t.IsArchived() {
			archived = 1
		}
		_, err := stmt.ExecContext(ctx,
			t.ID, t.Slug, t.Title, t.Description, string(t.Status), string(t.Priority),
			strings.Join(t.Tags, ","), archived, done, total, t.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("index ticket %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// Query filters an index search.
type Query struct {
	Text     string // substring match on slug, title, description
	Status   models.Status
	Priority models.Priority
	Tag      string
	Archived bool
}

// Hit is one search result row.
type Hit struct {
	ID         string
	Slug       string
	Title      string
	Status     models.Status
	Priority   models.Priority
	Tags       []string
	TasksDone  int
	TasksTotal int
}

// Search returns hits matching the query, newest first.
func (x *Index) Search(ctx context.Context, q Query) ([]Hit, error) {
	var (
		where []string
		args  []any
	)
	if !q.Archived {
		where = append(where, "archived = 0")
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(q.Priority))
	}
	if q.Tag != "" {
		where = append(where, "(',' || tags || ',') LIKE ?")
		args = append(args, "%,"+q.Tag+",%")
	}
	if q.Text != "" {
		where = append(where, "(slug LIKE ? OR title LIKE ? OR description LIKE ?)")
		pattern := "%" + q.Text + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query := "SELECT id, slug, title, status, priority, tags, tasks_done, tasks_total FROM tickets"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var status, priority, tags string
		if err := rows.Scan(&h.ID, &h.Slug, &h.Title, &status, &priority, &tags, &h.TasksDone, &h.TasksTotal); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		h.Status = models.Status(status)
		h.Priority = models.Priority(priority)
		if tags != "" {
			h.Tags = strings.Split(tags, ",")
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
