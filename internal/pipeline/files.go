package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkwon/scriptforge/internal/genai"
)

// Fixed auxiliary file names produced by every run.
const (
	TestStubFile   = "Test.js"
	ManifestFile   = "appsscript.json"
	ReadmeFile     = "README.md"
	oauthSheetsURL = "https://www.googleapis.com/auth/spreadsheets"
)

// FileSet is an ordered mapping from file name to source text. Order is the
// order files were added; names are unique (re-adding replaces in place).
type FileSet struct {
	names []string
	files map[string]string
}

// NewFileSet creates an empty file set.
func NewFileSet() *FileSet {
	return &FileSet{files: make(map[string]string)}
}

// Add inserts or replaces a file.
func (fs *FileSet) Add(name, content string) {
	if _, exists := fs.files[name]; !exists {
		fs.names = append(fs.names, name)
	}
	fs.files[name] = content
}

// Get returns a file's content.
func (fs *FileSet) Get(name string) (string, bool) {
	content, ok := fs.files[name]
	return content, ok
}

// Names returns file names in insertion order.
func (fs *FileSet) Names() []string {
	return append([]string(nil), fs.names...)
}

// Map returns a copy of the name→content mapping.
func (fs *FileSet) Map() map[string]string {
	out := make(map[string]string, len(fs.files))
	for name, content := range fs.files {
		out[name] = content
	}
	return out
}

// Len returns the number of files.
func (fs *FileSet) Len() int {
	return len(fs.names)
}

// TotalLines counts newline-delimited lines across all files.
func (fs *FileSet) TotalLines() int {
	total := 0
	for _, content := range fs.files {
		total += len(strings.Split(content, "\n"))
	}
	return total
}

// WriteTo writes all files into dir, creating it as needed.
func (fs *FileSet) WriteTo(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	for _, name := range fs.names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(fs.files[name]), 0600); err != nil {
			return err
		}
	}
	return nil
}

// testStub is the fixed auxiliary test file; deterministic, no model call.
func testStub() string {
	return "// Test stub\nfunction testAll() { Logger.log('tests'); }\n"
}

// manifest synthesizes the fixed deployment configuration. The webapp
// access/execution policy is copied from the analysis when present.
func manifest(analysis *genai.Analysis) string {
	webapp := analysis.DeploymentConfig
	if webapp == nil {
		webapp = map[string]string{}
	}

	doc := map[string]any{
		"timeZone":       "Asia/Seoul",
		"runtimeVersion": "V8",
		"webapp":         webapp,
		"oauthScopes":    []string{oauthSheetsURL},
	}

	data, _ := json.MarshalIndent(doc, "", "  ")
	return string(data)
}

// readme synthesizes the fixed project readme.
func readme(analysis *genai.Analysis) string {
	return fmt.Sprintf("# %s\n%s\n\nDeploy: https://script.google.com\n",
		analysis.ProjectName, analysis.Description)
}
