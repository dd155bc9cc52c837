package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pkwon/scriptforge/internal/config"
	"github.com/pkwon/scriptforge/internal/db"
	"github.com/pkwon/scriptforge/internal/errors"
	"github.com/pkwon/scriptforge/internal/pipeline"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db     *sql.DB
	cfg    *config.Config
	runner *pipeline.Runner
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(database *sql.DB, cfg *config.Config, runner *pipeline.Runner) *Handlers {
	return &Handlers{db: database, cfg: cfg, runner: runner}
}

// Request types for each tool

// GenerateRequest represents the arguments for app_generate.
type GenerateRequest struct {
	Requirements string `json:"requirements"`
	ProjectID    string `json:"project_id,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	Deploy       bool   `json:"deploy,omitempty"`
}

// ProgressRequest represents the arguments for app_progress.
type ProgressRequest struct {
	SessionID string `json:"session_id"`
}

// ShowRequest represents the arguments for project_show.
type ShowRequest struct {
	ID string `json:"id"`
}

// Handler implementations

// HandleGenerate handles the app_generate tool call. The run is launched in
// the background; the client polls app_progress with the returned session id.
func (h *Handlers) HandleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GenerateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	apiKey := input.APIKey
	if apiKey == "" {
		apiKey = h.cfg.APIKey
	}
	if err := h.runner.Validate(input.Requirements, apiKey); err != nil {
		return errorResult(err), nil
	}

	sessionID := pipeline.NewSessionID()
	h.runner.Launch(pipeline.RunInput{
		SessionID:    sessionID,
		Requirements: input.Requirements,
		APIKey:       apiKey,
		ProjectID:    input.ProjectID,
		SkipDeploy:   !input.Deploy,
	})

	return successResult(map[string]any{
		"status":     "started",
		"session_id": sessionID,
	})
}

// HandleProgress handles the app_progress tool call.
func (h *Handlers) HandleProgress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProgressRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.SessionID == "" {
		return errorResult(errors.NewInvalidRequest("session_id is required")), nil
	}

	return successResult(h.runner.Tracker.Peek(input.SessionID))
}

// HandleList handles the project_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := db.ListProjects(ctx, h.db)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"projects": items,
		"count":    len(items),
	})
}

// HandleShow handles the project_show tool call.
func (h *Handlers) HandleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShowRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewInvalidRequest("id is required")), nil
	}

	p, err := db.GetProject(ctx, h.db, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(p)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if fErr, ok := err.(*errors.ForgeError); ok {
		errorObj := map[string]any{
			"code":    fErr.Code,
			"message": fErr.Message,
			"status":  fErr.Status,
		}
		if fErr.Code != errors.ErrInternal && fErr.Details != nil {
			errorObj["details"] = fErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
