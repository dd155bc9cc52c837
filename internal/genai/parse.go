package genai

import (
	"encoding/json"
	"strings"

	"github.com/pkwon/scriptforge/internal/errors"
)

// ParseAnalysis decodes a model response into an Analysis. The model is asked
// for JSON only, but responses are routinely wrapped in markdown fences or
// surrounded by prose, so this is a best-effort extraction: strip fences,
// then fall back to the outermost brace pair.
func ParseAnalysis(text string) (*Analysis, error) {
	candidate := StripFence(text)

	if !strings.HasPrefix(strings.TrimSpace(candidate), "{") {
		start := strings.Index(candidate, "{")
		end := strings.LastIndex(candidate, "}")
		if start == -1 || end <= start {
			return nil, errors.NewModelUnavailable(nil)
		}
		candidate = candidate[start : end+1]
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(candidate)), &analysis); err != nil {
		return nil, errors.NewModelUnavailable(err)
	}
	if analysis.ProjectName == "" || len(analysis.Files) == 0 {
		return nil, errors.NewModelUnavailable(nil)
	}

	return &analysis, nil
}

// StripFence removes a surrounding markdown code fence, including an optional
// language tag on the opening line. Text without a fence is returned as-is.
func StripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}

	// Drop the opening fence line ("```" or "```json" etc.)
	lines = lines[1:]
	// Drop the closing fence if present
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
