package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/widget-studio/pkg/preview"
)

// MCPSession represents an MCP session
type MCPSession struct {
	ID      string
	Created int64
}

// MCPRequest represents an MCP JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an MCP JSON-RPC response
type MCPResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *MCPError `json:"error,omitempty"`
}

// MCPError represents an MCP error
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type widgetToolArgs struct {
	WidgetID string `json:"widgetId"`
	Variant  string `json:"variant,omitempty"`
}

// MCPHandler exposes widget configuration and previews to MCP clients.
func (h *Handler) MCPHandler(c *gin.Context) {
	sessionID := c.GetHeader("Mcp-Session-Id")

	var req MCPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			Error:   &MCPError{Code: -32700, Message: "Parse error"},
		})
		return
	}

	if req.Method == "initialize" {
		if sessionID == "" {
			sessionID = uuid.New().String()
			c.Header("Mcp-Session-Id", sessionID)

			h.mcpMu.Lock()
			h.mcpSessions[sessionID] = &MCPSession{ID: sessionID, Created: time.Now().Unix()}
			h.mcpMu.Unlock()
		}

		c.JSON(http.StatusOK, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"protocolVersion": "2024-11-05",
				"serverInfo": map[string]any{
					"name":    "widget-studio-mcp",
					"version": "1.0.0",
				},
				"capabilities": map[string]any{
					"tools": map[string]any{},
				},
			},
		})
		return
	}

	if sessionID == "" {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &MCPError{Code: -32000, Message: "Bad Request: No valid session ID provided"},
		})
		return
	}

	h.mcpMu.RLock()
	_, exists := h.mcpSessions[sessionID]
	h.mcpMu.RUnlock()
	if !exists {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &MCPError{Code: -32000, Message: "Invalid session ID"},
		})
		return
	}

	switch req.Method {
	case "tools/list":
		h.handleToolsList(c, req)
	case "tools/call":
		h.handleToolsCall(c, req)
	case "ping":
		c.JSON(http.StatusOK, MCPResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}})
	default:
		h.sendError(c, req.ID, -32601, "Method not found")
	}
}

func (h *Handler) handleToolsList(c *gin.Context, req MCPRequest) {
	widgetID := map[string]any{
		"type":        "string",
		"description": "The widget id.",
	}
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"tools": []map[string]any{
				{
					"name":        "get_widget_configuration",
					"description": "Return the live configuration of a widget as JSON.",
					"inputSchema": map[string]any{
						"type":       "object",
						"properties": map[string]any{"widgetId": widgetID},
						"required":   []string{"widgetId"},
					},
				},
				{
					"name":        "render_widget_preview",
					"description": "Render a widget configuration as HTML for one variant.",
					"inputSchema": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"widgetId": widgetID,
							"variant": map[string]any{
								"type":        "string",
								"description": "floating, inline-search, carousel, food or publisher.",
								"default":     "floating",
							},
						},
						"required": []string{"widgetId"},
					},
				},
			},
		},
	})
}

func (h *Handler) handleToolsCall(c *gin.Context, req MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.sendError(c, req.ID, -32602, "Invalid params")
		return
	}

	var args widgetToolArgs
	if err := json.Unmarshal(params.Arguments, &args); err != nil || args.WidgetID == "" {
		h.sendError(c, req.ID, -32602, "Invalid arguments")
		return
	}
	store, err := h.Service.Configs.Get(c.Request.Context(), args.WidgetID)
	if err != nil {
		h.sendError(c, req.ID, -32603, err.Error())
		return
	}

	switch params.Name {
	case "get_widget_configuration":
		data, err := json.MarshalIndent(store.Get(), "", "  ")
		if err != nil {
			h.sendError(c, req.ID, -32603, err.Error())
			return
		}
		h.sendResult(c, req.ID, string(data))

	case "render_widget_preview":
		variant := args.Variant
		if variant == "" {
			variant = "floating"
		}
		rw := preview.Render(variant, store.Get())
		if rw == nil {
			h.sendError(c, req.ID, -32602, fmt.Sprintf("Unknown variant: %s", variant))
			return
		}
		var buf bytes.Buffer
		if err := preview.WriteHTML(&buf, rw, nil); err != nil {
			h.sendError(c, req.ID, -32603, err.Error())
			return
		}
		h.sendResult(c, req.ID, buf.String())

	default:
		h.sendError(c, req.ID, -32601, fmt.Sprintf("Tool not found: %s", params.Name))
	}
}

func (h *Handler) sendError(c *gin.Context, id any, code int, msg string) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &MCPError{Code: code, Message: msg},
	})
}

func (h *Handler) sendResult(c *gin.Context, id any, text string) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
		},
	})
}
