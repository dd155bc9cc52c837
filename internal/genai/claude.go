package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/schema"

	"github.com/pkwon/scriptforge/internal/errors"
)

const analyzeSystemPrompt = `You are an expert Google Apps Script developer.
Rules: 1) keep existing variable/function names 2) handle errors 3) mobile-friendly UI.
Respond with JSON only:
{"projectName":"", "description":"", "features":[], "architecture":{}, "files":[{"name":"Code.js","type":"gas","description":""},{"name":"Index.html","type":"html","description":""}], "deploymentConfig":{"access":"ANYONE","executeAs":"USER_DEPLOYING"}}`

const codegenSystemPrompt = `You are a code generation assistant. Produce complete, working code with error handling. Return only the code, no explanation.`

// continuityLimit bounds how many prior identifier names are carried into a
// regeneration prompt per category.
const continuityLimit = 5

// priorCodeHead bounds how much of the prior primary file is quoted back to
// the model as context.
const priorCodeHead = 300

// ClaudeClient implements Client over the eino Claude chat model.
type ClaudeClient struct {
	model *claude.ChatModel
}

// NewClaudeClient creates a model-backed client. The api key must be non-empty;
// callers that have no key should skip client construction and rely on the
// fallback library instead.
func NewClaudeClient(ctx context.Context, apiKey, model string) (*ClaudeClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.NewMissingAPIKey()
	}

	cm, err := claude.NewChatModel(ctx, &claude.Config{
		APIKey:    apiKey,
		Model:     model,
		MaxTokens: 8000,
	})
	if err != nil {
		return nil, errors.NewModelUnavailable(err)
	}

	return &ClaudeClient{model: cm}, nil
}

// Analyze asks the model for a structured project analysis.
func (c *ClaudeClient) Analyze(ctx context.Context, requirements string, cont *Continuity) (*Analysis, error) {
	messages := []*schema.Message{schema.SystemMessage(analyzeSystemPrompt)}
	messages = append(messages, continuityMessages(cont)...)
	messages = append(messages, schema.UserMessage(requirements))

	out, err := c.model.Generate(ctx, messages)
	if err != nil {
		return nil, errors.NewModelUnavailable(err)
	}

	analysis, err := ParseAnalysis(out.Content)
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

// GenerateFile asks the model for the source text of one file.
func (c *ClaudeClient) GenerateFile(ctx context.Context, analysis *Analysis, file FileSpec, cont *Continuity) (string, error) {
	messages := []*schema.Message{schema.SystemMessage(codegenSystemPrompt)}
	messages = append(messages, continuityMessages(cont)...)

	prompt := fmt.Sprintf("File: %s (%s)\nPurpose: %s\nProject: %s\nReturn only the code:",
		file.Name, file.Type, file.Description, analysis.ProjectName)
	messages = append(messages, schema.UserMessage(prompt))

	out, err := c.model.Generate(ctx, messages)
	if err != nil {
		return "", errors.NewModelUnavailable(err)
	}

	return StripFence(out.Content), nil
}

// continuityMessages renders the prior-revision context as a user/assistant
// exchange so the model commits to preserving the existing names.
func continuityMessages(cont *Continuity) []*schema.Message {
	if cont == nil {
		return nil
	}

	code := truncateRunes(cont.Code, priorCodeHead)
	if code != cont.Code {
		code += "..."
	}

	ctx := fmt.Sprintf("Existing code:\n%s\nVariables: %s\nFunctions: %s\nKeep these names.",
		code,
		strings.Join(cont.Variables, ","),
		strings.Join(cont.Functions, ","))

	return []*schema.Message{
		schema.UserMessage(ctx),
		schema.AssistantMessage("Understood. I will keep the existing variable and function names.", nil),
	}
}
