// Package memtools provides the MCP tool handlers for the discussion memory.
//
// Each tool follows the same pattern:
//   - a struct with the memory.Store injected via constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() validates arguments, calls the store and returns JSON text
//
// Failures come back as an error result whose text is
// {"error":{"code":...,"message":...}} with the store's error code.
package memtools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/discussion-memory/internal/memory"
)

// Tool is one registered MCP tool.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// idArg reads an integer id. present is false when the key is absent or
// null; a value that is not a whole number is an INVALID_PARAMETER error.
func idArg(req mcp.CallToolRequest, key string) (id int64, present bool, err error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, true, invalid("%s must be an integer", key)
		}
		return int64(v), true, nil
	case int:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, true, invalid("%s must be an integer", key)
		}
		return n, true, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, true, invalid("%s must be an integer", key)
		}
		return n, true, nil
	default:
		return 0, true, invalid("%s must be an integer", key)
	}
}

// requiredID reads an id the tool cannot run without.
func requiredID(req mcp.CallToolRequest, key string) (int64, error) {
	id, present, err := idArg(req, key)
	if err != nil {
		return 0, err
	}
	if !present {
		return 0, invalid("%s is required", key)
	}
	return id, nil
}

// optionalID returns nil when key is absent.
func optionalID(req mcp.CallToolRequest, key string) (*int64, error) {
	id, present, err := idArg(req, key)
	if err != nil || !present {
		return nil, err
	}
	return &id, nil
}

// optionalString returns nil when key is absent, so updates can tell
// "not given" from "set to empty".
func optionalString(req mcp.CallToolRequest, key string) *string {
	v, ok := req.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func invalid(format string, args ...any) *memory.Error {
	return &memory.Error{Code: memory.CodeInvalidParameter, Message: fmt.Sprintf(format, args...)}
}

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    memory.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// errorResult maps a store error onto the tool error payload.
func errorResult(err error) *mcp.CallToolResult {
	body, _ := json.Marshal(errorBody{Error: errorPayload{
		Code:    memory.CodeOf(err),
		Message: memory.MessageOf(err),
	}})
	return mcp.NewToolResultError(string(body))
}

// jsonResult renders v as the tool's text content.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

// respond is the common tail of every handler.
func respond(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(v)
}

// page wraps a bounded list with its continuation hint.
type page[T any] struct {
	Items []T    `json:"items"`
	Count int    `json:"count"`
	Limit int    `json:"limit"`
	Hint  string `json:"hint,omitempty"`
}

func newPage[T any](items []T, limit int, lastID func(T) int64) page[T] {
	if items == nil {
		items = []T{}
	}
	p := page[T]{Items: items, Count: len(items), Limit: limit}
	if len(items) > 0 {
		p.Hint = memory.NavigationHint(len(items), limit, lastID(items[len(items)-1]))
	}
	return p
}
