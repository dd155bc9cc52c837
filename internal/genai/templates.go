package genai

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// template is one canned project shape used when the model is unreachable.
type template struct {
	Key          string              `yaml:"key"`
	Keywords     []string            `yaml:"keywords"`
	ProjectName  string              `yaml:"projectName"`
	Features     []string            `yaml:"features"`
	Architecture map[string][]string `yaml:"architecture"`
}

type templateLibrary struct {
	Templates []template `yaml:"templates"`
}

var library templateLibrary

func init() {
	if err := yaml.Unmarshal(templatesYAML, &library); err != nil {
		panic(fmt.Sprintf("genai: bad embedded template library: %v", err))
	}
	if len(library.Templates) == 0 {
		panic("genai: embedded template library is empty")
	}
}

// descriptionHead bounds how much requirements text is echoed into the
// fallback description.
const descriptionHead = 100

// FallbackAnalysis builds a deterministic local analysis from canned project
// templates, matched by keyword against the requirements text. It never
// fails: unmatched requirements land on the generic template.
func FallbackAnalysis(requirements string) *Analysis {
	lower := strings.ToLower(requirements)

	chosen := library.Templates[len(library.Templates)-1]
	for _, t := range library.Templates {
		if matchesAny(lower, t.Keywords) {
			chosen = t
			break
		}
	}

	desc := truncateRunes(requirements, descriptionHead)

	return &Analysis{
		ProjectName:  chosen.ProjectName,
		Description:  desc,
		Features:     append([]string(nil), chosen.Features...),
		Architecture: chosen.Architecture,
		Files: []FileSpec{
			{Name: "Code.js", Type: FileTypeGAS, Description: "backend"},
			{Name: "Index.html", Type: FileTypeHTML, Description: "UI"},
		},
		TestCases: []TestCase{
			{Name: "basic", Description: "smoke test", Steps: []string{"enter data", "save"}},
		},
		DeploymentConfig: map[string]string{
			"access":    "ANYONE",
			"executeAs": "USER_DEPLOYING",
		},
	}
}

func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// FallbackFile returns a deterministic canned file body keyed by file type.
// Unknown types get the markup template, so generation never fails.
func FallbackFile(file FileSpec) string {
	if file.Type == FileTypeGAS {
		return fmt.Sprintf(`// %s
function doGet() {
  return HtmlService.createHtmlOutputFromFile('Index').setTitle('App');
}
function saveData(data) {
  try {
    var sheet = SpreadsheetApp.getActiveSpreadsheet().getActiveSheet();
    sheet.appendRow([new Date(), JSON.stringify(data)]);
    return {success: true};
  } catch(e) { return {success: false, error: e.toString()}; }
}`, file.Name)
	}

	return `<!DOCTYPE html>
<html><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>App</title><style>body{font-family:sans-serif;max-width:800px;margin:50px auto;padding:20px}
.btn{padding:12px 20px;background:#667eea;color:#fff;border:none;border-radius:8px;cursor:pointer}</style>
</head><body><h1>Generated App</h1><input id="inp" placeholder="Enter value">
<button class="btn" onclick="save()">Save</button>
<script>function save(){google.script.run.withSuccessHandler(r=>alert('Saved')).saveData({val:document.getElementById('inp').value})}</script>
</body></html>`
}
