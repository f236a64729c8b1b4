package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tix/internal/models"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	x, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}

func seedTickets(t *testing.T, x *Index) {
	t.Helper()

	login := models.NewTicket("fix-login", "Fix the login flow")
	login.Description = "Users get a 500 on submit."
	login.Tags = []string{"auth", "bug"}
	login.Status = models.StatusDoing
	login.Priority = models.PriorityHigh
	login.AddTask("one")
	require.NoError(t, login.CompleteTask(1))
	login.AddTask("two")

	docs := models.NewTicket("update-docs", "Update onboarding docs")
	docs.Tags = []string{"docs"}

	old := models.NewTicket("legacy-cleanup", "Remove legacy auth handler")
	old.SetArchived(true)

	require.NoError(t, x.Rebuild(context.Background(), []*models.Ticket{login, docs, old}))
}

func TestSearch_Text(t *testing.T) {
	x := newTestIndex(t)
	seedTickets(t, x)
	ctx := context.Background()

	hits, err := x.Search(ctx, Query{Text: "login"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "fix-login", hits[0].Slug)
	assert.Equal(t, models.StatusDoing, hits[0].Status)
	assert.Equal(t, models.PriorityHigh, hits[0].Priority)
	assert.Equal(t, []string{"auth", "bug"}, hits[0].Tags)
	assert.Equal(t, 1, hits[0].TasksDone)
	assert.Equal(t, 2, hits[0].TasksTotal)

	// Description text matches too.
	hits, err = x.Search(ctx, Query{Text: "500 on submit"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = x.Search(ctx, Query{Text: "nonexistent"})
	require.NoError(t, err)
	assert.Len(t, hits, 0)
}

func TestSearch_Filters(t *testing.T) {
	x := newTestIndex(t)
	seedTickets(t, x)
	ctx := context.Background()

	hits, err := x.Search(ctx, Query{Status: models.StatusDoing})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = x.Search(ctx, Query{Tag: "docs"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "update-docs", hits[0].Slug)

	// Tag matching is exact, not substring.
	hits, err = x.Search(ctx, Query{Tag: "doc"})
	require.NoError(t, err)
	assert.Len(t, hits, 0)

	hits, err = x.Search(ctx, Query{Priority: models.PriorityHigh})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearch_ArchivedExcludedByDefault(t *testing.T) {
	x := newTestIndex(t)
	seedTickets(t, x)
	ctx := context.Background()

	hits, err := x.Search(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = x.Search(ctx, Query{Archived: true})
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	// Archived tickets still match when included.
	hits, err = x.Search(ctx, Query{Text: "legacy", Archived: true})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestRebuild_ReplacesPreviousContents(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	first := models.NewTicket("first", "First")
	require.NoError(t, x.Rebuild(ctx, []*models.Ticket{first}))

	second := models.NewTicket("second", "Second")
	require.NoError(t, x.Rebuild(ctx, []*models.Ticket{second}))

	hits, err := x.Search(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "second", hits[0].Slug)
}

func TestRebuild_Empty(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, x.Rebuild(ctx, nil))
	hits, err := x.Search(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, hits, 0)
}
