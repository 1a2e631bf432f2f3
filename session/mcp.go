package session

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/glossmark/kit"
)

// RegisterMCP registers the session tools on an MCP server.
func (m *Manager) RegisterMCP(srv *mcp.Server, logger *slog.Logger) {
	if logger == nil {
		logger = m.logger
	}
	ep := m.endpoints(logger)

	sessionID := map[string]any{"type": "string", "description": "Session id returned by glossmark_open_session"}

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "glossmark_open_session",
		Description: "Open an annotation session on a web page, fetched from a URL or given as HTML.",
		InputSchema: inputSchema(map[string]any{
			"url":    map[string]any{"type": "string", "description": "Page to fetch"},
			"html":   map[string]any{"type": "string", "description": "Inline page, used instead of fetching"},
			"origin": map[string]any{"type": "string", "description": "Origin reported to the backend (defaults to url)"},
		}, nil),
	}, ep.open, kit.DecodeArgs[OpenRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "glossmark_list_sessions",
		Description: "List open annotation sessions.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, ep.list, kit.DecodeArgs[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name: "glossmark_dispatch_event",
		Description: "Send a pointer, timer or popover event to a session and return its state. " +
			"Nodes are addressed by XPath (text() selects a text node) and offsets count characters.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionID,
			"type": map[string]any{"type": "string", "enum": []any{
				EventPointerMove, EventPointerDown, EventPointerUp, EventMouseLeave,
				EventWindowBlur, EventTick, EventClose, EventRegenerate,
			}},
			"xpath":        map[string]any{"type": "string", "description": "Caret node for pointer_move; omit for no caret"},
			"offset":       map[string]any{"type": "integer", "description": "Caret offset"},
			"pointer_type": map[string]any{"type": "string", "enum": []any{"mouse", "pen", "touch"}},
			"selection": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"start_xpath":  map[string]any{"type": "string"},
					"start_offset": map[string]any{"type": "integer"},
					"end_xpath":    map[string]any{"type": "string"},
					"end_offset":   map[string]any{"type": "integer"},
				},
				"description": "Selection at pointer_up",
			},
			"delta_ms": map[string]any{"type": "integer", "description": "Elapsed time for tick"},
			"id":       map[string]any{"type": "string", "description": "Trigger id for close and regenerate"},
			"quality":  map[string]any{"type": "boolean", "description": "Verdict given when closing"},
		}, []string{"session_id", "type"}),
	}, ep.dispatch, kit.DecodeArgs[dispatchRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "glossmark_get_state",
		Description: "Return the pending mark, triggers and visible popovers of a session.",
		InputSchema: inputSchema(map[string]any{"session_id": sessionID}, []string{"session_id"}),
	}, ep.state, kit.DecodeArgs[sessionRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "glossmark_get_trigger",
		Description: "Return one trigger of a session with its annotation.",
		InputSchema: inputSchema(map[string]any{
			"session_id": sessionID,
			"trigger_id": map[string]any{"type": "string"},
		}, []string{"session_id", "trigger_id"}),
	}, ep.trigger, kit.DecodeArgs[triggerRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "glossmark_get_document",
		Description: "Return the current HTML of a session's page, marks included.",
		InputSchema: inputSchema(map[string]any{"session_id": sessionID}, []string{"session_id"}),
	}, ep.document, kit.DecodeArgs[sessionRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "glossmark_get_selection",
		Description: "Return the text of the last selection and the page origin.",
		InputSchema: inputSchema(map[string]any{"session_id": sessionID}, []string{"session_id"}),
	}, ep.selection, kit.DecodeArgs[sessionRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "glossmark_close_session",
		Description: "Close a session.",
		InputSchema: inputSchema(map[string]any{"session_id": sessionID}, []string{"session_id"}),
	}, ep.close, kit.DecodeArgs[sessionRequest]())
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
