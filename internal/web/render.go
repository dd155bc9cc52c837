package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"html/template"
	"log"
	"net/http"

	"github.com/yuin/goldmark"

	"github.com/pkwon/scriptforge/internal/errors"
)

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes a structured JSON error response. Non-ForgeError values
// are wrapped as internal errors.
func renderError(w http.ResponseWriter, err error) {
	var fErr *errors.ForgeError
	if !stderrors.As(err, &fErr) {
		fErr = errors.NewInternal(err)
	}

	renderJSON(w, fErr.Status, map[string]any{
		"error": map[string]any{
			"code":    string(fErr.Code),
			"message": fErr.Message,
			"status":  fErr.Status,
		},
	})
}

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		log.Printf("markdown render failed: %v", err)
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}
