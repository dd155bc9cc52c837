package pipeline

// Summary aggregates counts over one generated file set.
type Summary struct {
	TotalFiles int     `json:"total_files"`
	TotalLines int     `json:"total_lines"`
	Elapsed    float64 `json:"elapsed"`
}

// Result is the final payload of one pipeline run. Exactly one of the two
// shapes occurs: a success result with the generated artifacts, or a
// structured failure with Error set.
type Result struct {
	Success       bool              `json:"success"`
	Error         string            `json:"error,omitempty"`
	ProjectID     string            `json:"project_id,omitempty"`
	ProjectName   string            `json:"project_name,omitempty"`
	Description   string            `json:"description,omitempty"`
	Features      []string          `json:"features,omitempty"`
	Files         []string          `json:"files,omitempty"`
	Code          map[string]string `json:"code,omitempty"`
	Variables     []string          `json:"variables,omitempty"`
	Functions     []string          `json:"functions,omitempty"`
	ElapsedTime   float64           `json:"elapsed_time"`
	DeploymentURL string            `json:"deployment_url,omitempty"`
	Summary       Summary           `json:"summary"`
	Cached        bool              `json:"cached"`
}

// Failure builds a structured failure result.
func Failure(err error) *Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &Result{Success: false, Error: msg}
}
