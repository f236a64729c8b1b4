package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/tix/internal/bus"
)

// ticketChangedMethod is the notification sent to connected clients
// whenever a mutation commits in this process. Mutations made by
// other OS processes are not observable here; clients wanting those
// must re-read through the tools.
const ticketChangedMethod = "notifications/tix/ticket_changed"

// runBridge drains a bus subscription and forwards each event as an
// MCP notification until the context is cancelled or the subscription
// closes. It is read-only over the bus and holds no store state.
func runBridge(ctx context.Context, srv *server.MCPServer, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			srv.SendNotificationToAllClients(ticketChangedMethod, notificationParams(ev))
		}
	}
}

// notificationParams flattens an event into the notification payload.
func notificationParams(ev bus.Event) map[string]any {
	params := map[string]any{"ticket_id": ev.TicketID()}
	switch e := ev.(type) {
	case bus.Created:
		params["kind"] = "created"
		params["slug"] = e.Slug
	case bus.Updated:
		params["kind"] = "updated"
		params["fields"] = e.Fields
	case bus.StatusChanged:
		params["kind"] = "status_changed"
		params["from"] = string(e.From)
		params["to"] = string(e.To)
	case bus.Closed:
		params["kind"] = "closed"
		params["message"] = e.Message
	default:
		params["kind"] = "changed"
	}
	return params
}
