package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pkwon/scriptforge/internal/config"
	"github.com/pkwon/scriptforge/internal/db"
	"github.com/pkwon/scriptforge/internal/genai"
	"github.com/pkwon/scriptforge/internal/pipeline"
)

// testSetup creates a temporary database, config, and runner for testing.
// The runner uses a stub model client and a no-op deployer.
func testSetup(t *testing.T) (*sql.DB, *Handlers) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.DesignDelayMS = 1
	cfg.OutputDir = t.TempDir()

	runner := &pipeline.Runner{
		DB:      database,
		Cfg:     cfg,
		Cache:   pipeline.NewCache(false, cfg.CacheTTL(), cfg.CacheMaxEntries),
		Tracker: pipeline.NewTracker(),
		NewClient: func(context.Context, string, string) (genai.Client, error) {
			return stubClient{}, nil
		},
		NewDeployer: func(string) pipeline.Deployer { return stubDeployer{} },
	}

	return database, NewHandlers(database, cfg, runner)
}

type stubClient struct{}

func (stubClient) Analyze(_ context.Context, requirements string, _ *genai.Continuity) (*genai.Analysis, error) {
	return &genai.Analysis{
		ProjectName: "MCP Test Project",
		Description: requirements,
		Files: []genai.FileSpec{
			{Name: "Code.js", Type: genai.FileTypeGAS, Description: "backend"},
		},
	}, nil
}

func (stubClient) GenerateFile(context.Context, *genai.Analysis, genai.FileSpec, *genai.Continuity) (string, error) {
	return "function main() {}", nil
}

type stubDeployer struct{}

func (stubDeployer) RunTests(context.Context) (bool, error) { return true, nil }
func (stubDeployer) Deploy(context.Context) (string, error) { return "", nil }

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// resultText extracts the text payload of a tool result.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", result.Content[0])
	}
	return text.Text
}

// waitFinished polls the tracker until the session finishes.
func waitFinished(t *testing.T, h *Handlers, sessionID string) pipeline.Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := h.runner.Tracker.Peek(sessionID)
		if !rec.Running && rec.Result != nil {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s did not finish", sessionID)
	return pipeline.Record{}
}

func TestHandleGenerate(t *testing.T) {
	_, h := testSetup(t)
	ctx := context.Background()

	result, err := h.HandleGenerate(ctx, makeRequest(map[string]any{
		"requirements": "Build a todo list app",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	var output struct {
		Status    string `json:"status"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &output); err != nil {
		t.Fatalf("invalid result JSON: %v", err)
	}
	if output.Status != "started" {
		t.Errorf("status = %q, want started", output.Status)
	}
	if output.SessionID == "" {
		t.Fatal("expected session id in result")
	}

	// The launched run is observable through app_progress until it completes.
	rec := waitFinished(t, h, output.SessionID)
	if !rec.Result.Success {
		t.Errorf("result = %+v, want success", rec.Result)
	}
	if rec.Result.ProjectName != "MCP Test Project" {
		t.Errorf("project name = %q", rec.Result.ProjectName)
	}

	progress, err := h.HandleProgress(ctx, makeRequest(map[string]any{"session_id": output.SessionID}))
	if err != nil {
		t.Fatalf("progress error: %v", err)
	}
	if progress.IsError {
		t.Fatalf("unexpected progress error: %s", resultText(t, progress))
	}
}

func TestHandleGenerate_InvalidRequirements(t *testing.T) {
	_, h := testSetup(t)
	ctx := context.Background()

	for _, args := range []map[string]any{
		{},
		{"requirements": "   "},
	} {
		result, err := h.HandleGenerate(ctx, makeRequest(args))
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if !result.IsError {
			t.Fatal("expected error result")
		}
		if !strings.Contains(resultText(t, result), "INVALID_REQUEST") {
			t.Errorf("payload = %s, want INVALID_REQUEST", resultText(t, result))
		}
	}
}

func TestHandleGenerate_MissingAPIKey(t *testing.T) {
	_, h := testSetup(t)
	h.cfg.APIKey = ""

	result, err := h.HandleGenerate(context.Background(), makeRequest(map[string]any{
		"requirements": "no key anywhere",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(resultText(t, result), "MISSING_API_KEY") {
		t.Errorf("payload = %s, want MISSING_API_KEY", resultText(t, result))
	}
}

func TestHandleProgress(t *testing.T) {
	_, h := testSetup(t)
	ctx := context.Background()

	h.runner.Tracker.Start("s1")
	h.runner.Tracker.Advance("s1", 3, "")

	result, err := h.HandleProgress(ctx, makeRequest(map[string]any{"session_id": "s1"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, result))
	}

	var record pipeline.Record
	if err := json.Unmarshal([]byte(resultText(t, result)), &record); err != nil {
		t.Fatalf("invalid result JSON: %v", err)
	}
	if !record.Running || record.Step != 3 {
		t.Errorf("record = %+v, want running at step 3", record)
	}
}

func TestHandleProgress_MissingSessionID(t *testing.T) {
	_, h := testSetup(t)

	result, err := h.HandleProgress(context.Background(), makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestHandleList(t *testing.T) {
	database, h := testSetup(t)
	ctx := context.Background()

	if err := db.SaveProject(ctx, database, "p1", "Alpha", "var a;", []string{"a"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveProject(ctx, database, "p2", "Beta", "var b;", []string{"b"}, nil); err != nil {
		t.Fatal(err)
	}

	result, err := h.HandleList(ctx, makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, result))
	}

	var output struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &output); err != nil {
		t.Fatalf("invalid result JSON: %v", err)
	}
	if output.Count != 2 {
		t.Errorf("count = %d, want 2", output.Count)
	}
}

func TestHandleShow(t *testing.T) {
	database, h := testSetup(t)
	ctx := context.Background()

	if err := db.SaveProject(ctx, database, "p1", "Alpha", "var a;", []string{"a"}, []string{"f"}); err != nil {
		t.Fatal(err)
	}

	result, err := h.HandleShow(ctx, makeRequest(map[string]any{"id": "p1"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, result))
	}

	var output struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		History []any  `json:"history"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &output); err != nil {
		t.Fatalf("invalid result JSON: %v", err)
	}
	if output.ID != "p1" || output.Name != "Alpha" || len(output.History) != 1 {
		t.Errorf("output = %+v", output)
	}
}

func TestHandleShow_NotFound(t *testing.T) {
	_, h := testSetup(t)

	result, err := h.HandleShow(context.Background(), makeRequest(map[string]any{"id": "nope"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(resultText(t, result), "NOT_FOUND") {
		t.Errorf("payload = %s, want NOT_FOUND", resultText(t, result))
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 4 {
		t.Fatalf("tool count = %d, want 4", len(names))
	}
	want := map[string]bool{
		"app_generate": true,
		"app_progress": true,
		"project_list": true,
		"project_show": true,
	}
	for _, name := range names {
		if !want[name] {
			t.Errorf("unexpected tool %q", name)
		}
	}
}
