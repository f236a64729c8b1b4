package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tix/internal/bus"
	"github.com/joescharf/tix/internal/models"
	"github.com/joescharf/tix/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.FileStore, *bus.Subscription) {
	t.Helper()
	dir, err := store.Init(t.TempDir())
	require.NoError(t, err)

	b := bus.New()
	t.Cleanup(b.Close)
	sub := b.Subscribe(64)

	fs, err := store.NewFileStore(dir, store.Options{Bus: b})
	require.NoError(t, err)

	return NewServer(fs, b), fs, sub
}

func seedTicket(t *testing.T, fs *store.FileStore, slug, title string) *models.Ticket {
	t.Helper()
	tk := models.NewTicket(slug, title)
	require.NoError(t, fs.Create(context.Background(), tk))
	return tk
}

func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

// --- tix_create_ticket ---

func TestHandleCreateTicket(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	ctx := context.Background()

	req := callToolReq("tix_create_ticket", map[string]any{
		"slug":     "fix-login",
		"title":    "Fix the login flow",
		"priority": "high",
		"tags":     "auth, bug",
	})
	result, err := srv.handleCreateTicket(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	var got map[string]any
	resultJSON(t, result, &got)
	assert.Equal(t, "fix-login", got["slug"])
	assert.Equal(t, "high", got["priority"])
	assert.Equal(t, "todo", got["status"])

	// The ticket really landed on disk.
	id, err := fs.Resolve(ctx, "fix-login")
	require.NoError(t, err)
	tk, err := fs.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"auth", "bug"}, tk.Tags)
}

func TestHandleCreateTicket_MissingParams(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleCreateTicket(ctx, callToolReq("tix_create_ticket", map[string]any{"title": "no slug"}))
	require.NoError(t, err, "handler should not return Go error; should wrap in result")
	assert.True(t, result.IsError)

	result, err = srv.handleCreateTicket(ctx, callToolReq("tix_create_ticket", map[string]any{"slug": "no-title"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleCreateTicket_DuplicateSlug(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	ctx := context.Background()

	seedTicket(t, fs, "fix-login", "first")

	result, err := srv.handleCreateTicket(ctx, callToolReq("tix_create_ticket", map[string]any{
		"slug":  "fix-login",
		"title": "second",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "already exists")
}

// --- tix_get_ticket ---

func TestHandleGetTicket(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	ctx := context.Background()

	tk := seedTicket(t, fs, "fix-login", "Fix login")

	for _, ref := range []string{tk.ID, "fix-login", tk.ID[:10]} {
		result, err := srv.handleGetTicket(ctx, callToolReq("tix_get_ticket", map[string]any{"ticket": ref}))
		require.NoError(t, err)
		assert.False(t, result.IsError, "ref %q", ref)

		var got map[string]any
		resultJSON(t, result, &got)
		assert.Equal(t, tk.ID, got["id"])
	}
}

func TestHandleGetTicket_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleGetTicket(context.Background(), callToolReq("tix_get_ticket", map[string]any{"ticket": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- tix_list_tickets ---

func TestHandleListTickets(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	ctx := context.Background()

	seedTicket(t, fs, "one", "One")
	tk := seedTicket(t, fs, "two", "Two")
	_, err := fs.Update(ctx, tk.ID, func(t *models.Ticket) error {
		return t.Transition(models.StatusDoing, fs.Policy())
	})
	require.NoError(t, err)

	result, err := srv.handleListTickets(ctx, callToolReq("tix_list_tickets", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var all []map[string]any
	resultJSON(t, result, &all)
	assert.Len(t, all, 2)

	result, err = srv.handleListTickets(ctx, callToolReq("tix_list_tickets", map[string]any{"status": "doing"}))
	require.NoError(t, err)
	var doing []map[string]any
	resultJSON(t, result, &doing)
	require.Len(t, doing, 1)
	assert.Equal(t, "two", doing[0]["slug"])

	result, err = srv.handleListTickets(ctx, callToolReq("tix_list_tickets", map[string]any{"status": "bogus"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- tix_update_ticket ---

func TestHandleUpdateTicket(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	ctx := context.Background()

	tk := seedTicket(t, fs, "fix-login", "Fix login")

	result, err := srv.handleUpdateTicket(ctx, callToolReq("tix_update_ticket", map[string]any{
		"ticket": "fix-login",
		"status": "doing",
		"title":  "Fix login properly",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, resultText(t, result))

	got, err := fs.Load(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDoing, got.Status)
	assert.Equal(t, "Fix login properly", got.Title)
}

func TestHandleUpdateTicket_InvalidTransition(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	ctx := context.Background()

	tk := seedTicket(t, fs, "fix-login", "Fix login")

	result, err := srv.handleUpdateTicket(ctx, callToolReq("tix_update_ticket", map[string]any{
		"ticket": "fix-login",
		"status": "review", // todo -> review is not allowed
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid status transition")

	got, err := fs.Load(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTodo, got.Status)
}

func TestHandleUpdateTicket_NoFields(t *testing.T) {
	srv, fs, _ := newTestServer(t)

	seedTicket(t, fs, "fix-login", "Fix login")

	result, err := srv.handleUpdateTicket(context.Background(), callToolReq("tix_update_ticket", map[string]any{
		"ticket": "fix-login",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no fields provided")
}

// --- tix_close_ticket ---

func TestHandleCloseTicket(t *testing.T) {
	srv, fs, sub := newTestServer(t)
	ctx := context.Background()

	tk := seedTicket(t, fs, "fix-login", "Fix login")
	<-sub.Events() // Created

	result, err := srv.handleCloseTicket(ctx, callToolReq("tix_close_ticket", map[string]any{
		"ticket":  "fix-login",
		"message": "shipped in v2",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	got, err := fs.Load(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Equal(t, "shipped in v2", got.CloseNote)

	// Closing publishes Updated, StatusChanged, Closed in order.
	_, ok := (<-sub.Events()).(bus.Updated)
	assert.True(t, ok)
	_, ok = (<-sub.Events()).(bus.StatusChanged)
	assert.True(t, ok)
	closed, ok := (<-sub.Events()).(bus.Closed)
	require.True(t, ok)
	assert.Equal(t, "shipped in v2", closed.Message)
}

// --- tix_add_task / tix_complete_task ---

func TestHandleTaskLifecycle(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	ctx := context.Background()

	tk := seedTicket(t, fs, "fix-login", "Fix login")

	result, err := srv.handleAddTask(ctx, callToolReq("tix_add_task", map[string]any{
		"ticket": "fix-login",
		"title":  "write failing test",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	result, err = srv.handleCompleteTask(ctx, callToolReq("tix_complete_task", map[string]any{
		"ticket": "fix-login",
		"seq":    1,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, resultText(t, result))

	got, err := fs.Load(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, got.Tasks, 1)
	assert.True(t, got.Tasks[0].Done)
}

func TestHandleCompleteTask_UnknownSeq(t *testing.T) {
	srv, fs, _ := newTestServer(t)

	seedTicket(t, fs, "fix-login", "Fix login")

	result, err := srv.handleCompleteTask(context.Background(), callToolReq("tix_complete_task", map[string]any{
		"ticket": "fix-login",
		"seq":    42,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestMCPServer_RegistersTools(t *testing.T) {
	srv, _, _ := newTestServer(t)
	assert.NotNil(t, srv.MCPServer())
}
