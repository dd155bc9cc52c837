package genai

import "context"

// File types recognized by the generator and its fallback templates.
const (
	FileTypeGAS  = "gas"  // backend script
	FileTypeHTML = "html" // markup/UI
)

// FileSpec describes one file the analysis wants produced.
type FileSpec struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
}

// TestCase is a suggested manual test scenario from the analysis.
type TestCase struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Steps       []string `json:"steps" yaml:"steps"`
}

// Analysis is the structured result of the analyze stage.
type Analysis struct {
	ProjectName      string              `json:"projectName" yaml:"projectName"`
	Description      string              `json:"description" yaml:"description"`
	Features         []string            `json:"features" yaml:"features"`
	Architecture     map[string][]string `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	Files            []FileSpec          `json:"files" yaml:"files"`
	TestCases        []TestCase          `json:"testCases,omitempty" yaml:"testCases,omitempty"`
	DeploymentConfig map[string]string   `json:"deploymentConfig,omitempty" yaml:"deploymentConfig,omitempty"`
}

// Continuity is the bounded set of previously declared identifier names
// passed into a regeneration request to bias the model toward preserving them.
type Continuity struct {
	Code      string // head of the prior primary file
	Variables []string
	Functions []string
}

// Client is the external text-generation model contract. Implementations are
// assumed fallible; callers must degrade to the deterministic fallback paths
// rather than propagate errors.
type Client interface {
	Analyze(ctx context.Context, requirements string, cont *Continuity) (*Analysis, error)
	GenerateFile(ctx context.Context, analysis *Analysis, file FileSpec, cont *Continuity) (string, error)
}

// truncateRunes caps s at n runes. Requirements and project names are often
// non-ASCII, so truncation must never split a multibyte character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
