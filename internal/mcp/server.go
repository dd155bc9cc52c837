package mcp

import (
	"database/sql"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pkwon/scriptforge/internal/config"
	"github.com/pkwon/scriptforge/internal/pipeline"
)

var generateToolDef = mcp.NewTool("app_generate",
	mcp.WithDescription("Generate a complete Google Apps Script web application from a natural-language requirements description. Runs the full pipeline and returns the generated files, extracted identifiers, and project id."),
	mcp.WithString("requirements",
		mcp.Required(),
		mcp.Description("Natural-language description of the application to generate"),
	),
	mcp.WithString("project_id",
		mcp.Description("Existing project id to regenerate with continuity context"),
	),
	mcp.WithString("api_key",
		mcp.Description("Anthropic API key; falls back to the configured key"),
	),
	mcp.WithBoolean("deploy",
		mcp.Description("Deploy the generated project via clasp after generation (default false)"),
	),
)

var progressToolDef = mcp.NewTool("app_progress",
	mcp.WithDescription("Poll the progress of a generation session by session id."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session id returned by app_generate"),
	),
)

var listToolDef = mcp.NewTool("project_list",
	mcp.WithDescription("List stored projects, most recently updated first."),
)

var showToolDef = mcp.NewTool("project_show",
	mcp.WithDescription("Fetch the full state of a stored project, including its revision history."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Project id"),
	),
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"app_generate": {
		def:     generateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGenerate },
	},
	"app_progress": {
		def:     progressToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProgress },
	},
	"project_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"project_show": {
		def:     showToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShow },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// NewServer creates a new MCP server with ScriptForge tools registered.
func NewServer(database *sql.DB, cfg *config.Config, runner *pipeline.Runner, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"scriptforge",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(database, cfg, runner)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(database *sql.DB, cfg *config.Config, runner *pipeline.Runner, version string) error {
	s := NewServer(database, cfg, runner, version)
	return server.ServeStdio(s)
}
