package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/tix/internal/bus"
	"github.com/joescharf/tix/internal/models"
	"github.com/joescharf/tix/internal/store"
)

// Server wraps the ticket store and exposes it as MCP tools. It is a
// plain consumer of the repository and the event bus: it cannot touch
// the store's locking state.
type Server struct {
	repo   store.Repository
	events *bus.Bus
}

// NewServer creates the MCP server wrapper. The bus may be nil to
// disable change notifications.
func NewServer(repo store.Repository, events *bus.Bus) *Server {
	return &Server{repo: repo, events: events}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("tix", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.createTicketTool())
	srv.AddTool(s.getTicketTool())
	srv.AddTool(s.listTicketsTool())
	srv.AddTool(s.updateTicketTool())
	srv.AddTool(s.closeTicketTool())
	srv.AddTool(s.addTaskTool())
	srv.AddTool(s.completeTaskTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is
// cancelled. While serving, committed mutations are forwarded to
// connected clients as notifications.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()

	if s.events != nil {
		sub := s.events.Subscribe(0)
		defer sub.Unsubscribe()
		go runBridge(ctx, srv, sub)
	}

	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// tix_create_ticket
func (s *Server) createTicketTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tix_create_ticket",
		mcp.WithDescription("Create a new ticket. The slug must be unique project-wide (lowercase, digits, hyphens). Returns the created ticket as JSON."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Unique slug, e.g. fix-login-bug")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Ticket title")),
		mcp.WithString("description", mcp.Description("Ticket description")),
		mcp.WithString("priority", mcp.Description("Priority: low, medium, high, critical (default: medium)")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
	)
	return tool, s.handleCreateTicket
}

func (s *Server) handleCreateTicket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := request.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: slug"), nil
	}
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	t := models.NewTicket(slug, title)
	t.Description = request.GetString("description", "")
	if p := request.GetString("priority", ""); p != "" {
		priority, err := models.ParsePriority(p)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		t.Priority = priority
	}
	if tags := request.GetString("tags", ""); tags != "" {
		t.Tags = splitTags(tags)
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create ticket: %v", err)), nil
	}
	return ticketResult(t)
}

// tix_get_ticket
func (s *Server) getTicketTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tix_get_ticket",
		mcp.WithDescription("Get a ticket by ID, unique ID prefix, or slug. Returns the full ticket as JSON, including tasks."),
		mcp.WithString("ticket", mcp.Required(), mcp.Description("Ticket ID, ID prefix, or slug")),
	)
	return tool, s.handleGetTicket
}

func (s *Server) handleGetTicket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("ticket")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: ticket"), nil
	}

	t, err := s.loadByRef(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return ticketResult(t)
}

// tix_list_tickets
func (s *Server) listTicketsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tix_list_tickets",
		mcp.WithDescription("List tickets, optionally filtered by status, priority, and/or tag. Archived tickets are excluded unless archived=true. Returns a JSON array."),
		mcp.WithString("status", mcp.Description("Status filter: todo, doing, review, done, blocked")),
		mcp.WithString("priority", mcp.Description("Priority filter: low, medium, high, critical")),
		mcp.WithString("tag", mcp.Description("Tag filter")),
		mcp.WithBoolean("archived", mcp.Description("Include archived tickets")),
	)
	return tool, s.handleListTickets
}

func (s *Server) handleListTickets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.Filter{
		Tag:      request.GetString("tag", ""),
		Archived: request.GetBool("archived", false),
	}
	if v := request.GetString("status", ""); v != "" {
		status, err := models.ParseStatus(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Status = status
	}
	if v := request.GetString("priority", ""); v != "" {
		priority, err := models.ParsePriority(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Priority = priority
	}

	tickets, err := s.repo.List(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tickets: %v", err)), nil
	}

	out := make([]map[string]any, len(tickets))
	for i, t := range tickets {
		out[i] = ticketJSON(t)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal tickets: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// tix_update_ticket
func (s *Server) updateTicketTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tix_update_ticket",
		mcp.WithDescription("Update an existing ticket. Provide the ticket reference and at least one field. Status changes are validated against the workflow state machine (todo -> doing -> review -> done, with blocked). Returns the updated ticket as JSON."),
		mcp.WithString("ticket", mcp.Required(), mcp.Description("Ticket ID, ID prefix, or slug")),
		mcp.WithString("status", mcp.Description("New status: todo, doing, review, done, blocked")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("priority", mcp.Description("New priority: low, medium, high, critical")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags (replaces existing)")),
	)
	return tool, s.handleUpdateTicket
}

func (s *Server) handleUpdateTicket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("ticket")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: ticket"), nil
	}

	var (
		title       = request.GetString("title", "")
		description = request.GetString("description", "")
		statusStr   = request.GetString("status", "")
		priorityStr = request.GetString("priority", "")
		tagsStr     = request.GetString("tags", "")
	)
	if title == "" && description == "" && statusStr == "" && priorityStr == "" && tagsStr == "" {
		return mcp.NewToolResultError("no fields provided to update; specify at least one of: status, title, description, priority, tags"), nil
	}

	id, err := s.repo.Resolve(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ticket not found: %s", ref)), nil
	}

	policy := s.repo.Policy()
	updated, err := s.repo.Update(ctx, id, func(t *models.Ticket) error {
		if statusStr != "" {
			status, err := models.ParseStatus(statusStr)
			if err != nil {
				return err
			}
			if err := t.Transition(status, policy); err != nil {
				return err
			}
		}
		if title != "" {
			t.Title = title
		}
		if description != "" {
			t.Description = description
		}
		if priorityStr != "" {
			priority, err := models.ParsePriority(priorityStr)
			if err != nil {
				return err
			}
			t.Priority = priority
		}
		if tagsStr != "" {
			t.Tags = splitTags(tagsStr)
		}
		return nil
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update ticket: %v", err)), nil
	}
	return ticketResult(updated)
}

// tix_close_ticket
func (s *Server) closeTicketTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tix_close_ticket",
		mcp.WithDescription("Close a ticket (any non-done status) with an optional closing message. Returns the closed ticket as JSON."),
		mcp.WithString("ticket", mcp.Required(), mcp.Description("Ticket ID, ID prefix, or slug")),
		mcp.WithString("message", mcp.Description("Closing message")),
	)
	return tool, s.handleCloseTicket
}

func (s *Server) handleCloseTicket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("ticket")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: ticket"), nil
	}
	message := request.GetString("message", "")

	id, err := s.repo.Resolve(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ticket not found: %s", ref)), nil
	}

	policy := s.repo.Policy()
	updated, err := s.repo.Update(ctx, id, func(t *models.Ticket) error {
		return t.Close(message, policy)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to close ticket: %v", err)), nil
	}
	return ticketResult(updated)
}

// tix_add_task
func (s *Server) addTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tix_add_task",
		mcp.WithDescription("Add a task to a ticket. Tasks get a per-ticket sequence number that is never reused. Returns the updated ticket as JSON."),
		mcp.WithString("ticket", mcp.Required(), mcp.Description("Ticket ID, ID prefix, or slug")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
	)
	return tool, s.handleAddTask
}

func (s *Server) handleAddTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("ticket")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: ticket"), nil
	}
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	id, err := s.repo.Resolve(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ticket not found: %s", ref)), nil
	}

	updated, err := s.repo.Update(ctx, id, func(t *models.Ticket) error {
		t.AddTask(title)
		return nil
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add task: %v", err)), nil
	}
	return ticketResult(updated)
}

// tix_complete_task
func (s *Server) completeTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tix_complete_task",
		mcp.WithDescription("Mark a task as done by its sequence number. Returns the updated ticket as JSON."),
		mcp.WithString("ticket", mcp.Required(), mcp.Description("Ticket ID, ID prefix, or slug")),
		mcp.WithNumber("seq", mcp.Required(), mcp.Description("Task sequence number")),
	)
	return tool, s.handleCompleteTask
}

func (s *Server) handleCompleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("ticket")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: ticket"), nil
	}
	seq, err := request.RequireInt("seq")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: seq"), nil
	}

	id, err := s.repo.Resolve(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ticket not found: %s", ref)), nil
	}

	updated, err := s.repo.Update(ctx, id, func(t *models.Ticket) error {
		return t.CompleteTask(seq)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to complete task: %v", err)), nil
	}
	return ticketResult(updated)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Server) loadByRef(ctx context.Context, ref string) (*models.Ticket, error) {
	id, err := s.repo.Resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("ticket not found: %s", ref)
	}
	return s.repo.Load(ctx, id)
}

func splitTags(s string) []string {
	var tags []string
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func ticketJSON(t *models.Ticket) map[string]any {
	tasks := make([]map[string]any, len(t.Tasks))
	for i, task := range t.Tasks {
		tasks[i] = map[string]any{
			"seq":   task.Seq,
			"title": task.Title,
			"done":  task.Done,
		}
	}
	out := map[string]any{
		"id":          t.ID,
		"slug":        t.Slug,
		"title":       t.Title,
		"description": t.Description,
		"status":      string(t.Status),
		"priority":    string(t.Priority),
		"tags":        t.Tags,
		"tasks":       tasks,
		"archived":    t.IsArchived(),
		"created_at":  t.CreatedAt.Format(time.RFC3339),
		"updated_at":  t.UpdatedAt.Format(time.RFC3339),
	}
	if t.ClosedAt != nil {
		out["closed_at"] = t.ClosedAt.Format(time.RFC3339)
		out["close_note"] = t.CloseNote
	}
	return out
}

func ticketResult(t *models.Ticket) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(ticketJSON(t))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal ticket: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
