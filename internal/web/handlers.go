package web

import (
	"archive/zip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkwon/scriptforge/internal/config"
	"github.com/pkwon/scriptforge/internal/db"
	"github.com/pkwon/scriptforge/internal/errors"
	"github.com/pkwon/scriptforge/internal/pipeline"
)

// Handlers contains HTTP route handlers for the JSON API.
type Handlers struct {
	db      *sql.DB
	cfg     *config.Config
	runner  *pipeline.Runner
	version string
}

type generateRequest struct {
	Requirements string `json:"requirements"`
	APIKey       string `json:"api_key"`
	ProjectID    string `json:"project_id"`
	SessionID    string `json:"session_id"`
	// Deployment is opt-out: an omitted skip_deploy means skip.
	SkipDeploy *bool `json:"skip_deploy"`
}

// HandleGenerate handles POST /api/generate — start a generation run.
// A live cache entry is returned inline; otherwise the run is launched in the
// background and the caller polls /api/progress?session_id=.
func (h *Handlers) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, errors.NewInvalidRequest("request body must be valid JSON"))
		return
	}

	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = h.cfg.APIKey
	}
	if err := h.runner.Validate(req.Requirements, apiKey); err != nil {
		renderError(w, err)
		return
	}

	if cached, ok := h.runner.Cache.Get(pipeline.Fingerprint(req.Requirements)); ok {
		hit := *cached
		hit.Cached = true
		renderJSON(w, http.StatusOK, map[string]any{
			"status": "complete",
			"cached": true,
			"result": &hit,
		})
		return
	}

	skipDeploy := true
	if req.SkipDeploy != nil {
		skipDeploy = *req.SkipDeploy
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = pipeline.NewSessionID()
	} else if _, err := h.sessionDir(sessionID); err != nil {
		renderError(w, err)
		return
	}

	h.runner.Launch(pipeline.RunInput{
		SessionID:    sessionID,
		Requirements: req.Requirements,
		APIKey:       apiKey,
		ProjectID:    req.ProjectID,
		SkipDeploy:   skipDeploy,
	})

	renderJSON(w, http.StatusAccepted, map[string]any{
		"status":     "started",
		"session_id": sessionID,
	})
}

// HandleProgress handles GET /api/progress?session_id= — poll a run.
func (h *Handlers) HandleProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		renderError(w, errors.NewInvalidRequest("session_id query parameter is required"))
		return
	}
	renderJSON(w, http.StatusOK, h.runner.Tracker.Peek(sessionID))
}

// HandleDownload handles GET /api/download/{session_id} — zip the generated
// file set of a session.
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	dir, err := h.sessionDir(sessionID)
	if err != nil {
		renderError(w, err)
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		renderError(w, errors.NewNotFound("session", sessionID))
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "scriptforge-"+sessionID+".zip"))
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	defer zw.Close()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := addZipEntry(zw, dir, entry.Name()); err != nil {
			// Headers are already sent; nothing left but to stop.
			return
		}
	}
}

func addZipEntry(zw *zip.Writer, dir, name string) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}

// HandleProjects handles GET /api/projects — list stored projects.
func (h *Handlers) HandleProjects(w http.ResponseWriter, r *http.Request) {
	items, err := db.ListProjects(r.Context(), h.db)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"projects": items,
		"count":    len(items),
	})
}

// HandleProject handles GET /api/projects/{id} — full project state including
// revision history.
func (h *Handlers) HandleProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		renderError(w, errors.NewInvalidRequest("project id is required"))
		return
	}

	p, err := db.GetProject(r.Context(), h.db, id)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, p)
}

// HandleReadme handles GET /api/sessions/{session_id}/readme — the generated
// README rendered to HTML.
func (h *Handlers) HandleReadme(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	dir, err := h.sessionDir(sessionID)
	if err != nil {
		renderError(w, err)
		return
	}

	md, err := os.ReadFile(filepath.Join(dir, pipeline.ReadmeFile))
	if err != nil {
		renderError(w, errors.NewNotFound("session", sessionID))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<!DOCTYPE html><html><body>%s</body></html>", renderMarkdown(string(md)))
}

// HandleHealth handles GET /api/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        h.version,
		"model":          h.cfg.Model,
		"api_configured": h.cfg.APIKey != "",
		"cache_entries":  h.runner.Cache.Len(),
	})
}

// sessionDir resolves and validates the output directory of a session id.
func (h *Handlers) sessionDir(sessionID string) (string, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || strings.Contains(sessionID, "..") {
		return "", errors.NewInvalidRequest("invalid session id")
	}
	return filepath.Join(h.cfg.OutputDir, sessionID), nil
}
