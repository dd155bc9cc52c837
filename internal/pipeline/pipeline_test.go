package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/pkwon/scriptforge/internal/config"
	"github.com/pkwon/scriptforge/internal/db"
	"github.com/pkwon/scriptforge/internal/genai"
)

// stubClient is a controllable model client.
type stubClient struct {
	failAnalyze  bool
	failGenerate bool
	projectName  string
	analyzeCalls int
	generateCall int
	lastCont     *genai.Continuity
}

func (s *stubClient) Analyze(_ context.Context, requirements string, cont *genai.Continuity) (*genai.Analysis, error) {
	s.analyzeCalls++
	s.lastCont = cont
	if s.failAnalyze {
		return nil, fmt.Errorf("model unreachable")
	}
	name := s.projectName
	if name == "" {
		name = "Stub Project"
	}
	return &genai.Analysis{
		ProjectName: name,
		Description: requirements,
		Features:    []string{"stub"},
		Files: []genai.FileSpec{
			{Name: "Code.js", Type: genai.FileTypeGAS, Description: "backend"},
			{Name: "Index.html", Type: genai.FileTypeHTML, Description: "UI"},
		},
	}, nil
}

func (s *stubClient) GenerateFile(_ context.Context, _ *genai.Analysis, file genai.FileSpec, cont *genai.Continuity) (string, error) {
	s.generateCall++
	s.lastCont = cont
	if s.failGenerate {
		return "", fmt.Errorf("model unreachable")
	}
	return "// generated " + file.Name + "\nfunction stubMain() {}\nvar stubState = 1;", nil
}

// stubDeployer records deploy interactions.
type stubDeployer struct {
	testsRan bool
	deployed bool
	url      string
}

func (s *stubDeployer) RunTests(context.Context) (bool, error) { s.testsRan = true; return true, nil }
func (s *stubDeployer) Deploy(context.Context) (string, error) { s.deployed = true; return s.url, nil }

type runnerEnv struct {
	runner   *Runner
	client   *stubClient
	deployer *stubDeployer
	db       *sql.DB
}

func newTestRunner(t *testing.T, caching bool, clientErr bool) *runnerEnv {
	t.Helper()

	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.DesignDelayMS = 1
	cfg.OutputDir = t.TempDir()

	client := &stubClient{}
	deployer := &stubDeployer{url: "https://script.google.com/macros/s/test/exec"}

	r := &Runner{
		DB:      database,
		Cfg:     cfg,
		Cache:   NewCache(caching, cfg.CacheTTL(), cfg.CacheMaxEntries),
		Tracker: NewTracker(),
		NewClient: func(context.Context, string, string) (genai.Client, error) {
			if clientErr {
				return nil, fmt.Errorf("no api key")
			}
			return client, nil
		},
		NewDeployer: func(string) Deployer { return deployer },
	}

	return &runnerEnv{runner: r, client: client, deployer: deployer, db: database}
}

func TestRun_TodoFallbackScenario(t *testing.T) {
	env := newTestRunner(t, false, true) // caching disabled, model unavailable

	result := env.runner.RunSync(context.Background(), RunInput{
		SessionID:    "s1",
		Requirements: "Build a todo list app",
		SkipDeploy:   true,
	})

	require.True(t, result.Success)
	require.Equal(t, "Todo List Manager", result.ProjectName)
	require.Empty(t, result.DeploymentURL)
	require.False(t, result.Cached)

	for _, name := range []string{"Code.js", "Index.html", TestStubFile, ManifestFile, ReadmeFile} {
		require.Contains(t, result.Code, name)
	}
	require.Equal(t, []string{"Code.js", "Index.html", TestStubFile, ManifestFile, ReadmeFile}, result.Files)

	// Identifiers extracted from the fallback backend file
	require.Contains(t, result.Functions, "doGet")
	require.Contains(t, result.Functions, "saveData")
	require.Contains(t, result.Variables, "sheet")

	require.Equal(t, 5, result.Summary.TotalFiles)
	require.Greater(t, result.Summary.TotalLines, 0)
}

func TestRun_FallbackDeterminism(t *testing.T) {
	env1 := newTestRunner(t, false, true)
	env2 := newTestRunner(t, false, true)

	r1 := env1.runner.RunSync(context.Background(), RunInput{SessionID: "a", Requirements: "Build a todo list app", SkipDeploy: true})
	r2 := env2.runner.RunSync(context.Background(), RunInput{SessionID: "b", Requirements: "Build a todo list app", SkipDeploy: true})

	require.Equal(t, r1.Code, r2.Code)
	require.Equal(t, r1.Files, r2.Files)
	require.Equal(t, r1.Variables, r2.Variables)
	require.Equal(t, r1.Functions, r2.Functions)
	require.Equal(t, r1.ProjectID, r2.ProjectID)
}

func TestRun_CacheIdempotent(t *testing.T) {
	env := newTestRunner(t, true, false)

	first := env.runner.RunSync(context.Background(), RunInput{
		SessionID:    "s1",
		Requirements: "Build a survey form",
		SkipDeploy:   true,
	})
	require.True(t, first.Success)
	require.False(t, first.Cached)

	analyzeCalls := env.client.analyzeCalls
	generateCalls := env.client.generateCall

	second := env.runner.RunSync(context.Background(), RunInput{
		SessionID:    "s2",
		Requirements: "Build a survey form",
		SkipDeploy:   true,
	})

	// Second run performed no external calls
	require.Equal(t, analyzeCalls, env.client.analyzeCalls)
	require.Equal(t, generateCalls, env.client.generateCall)

	// Payloads are identical except the cached flag
	require.True(t, second.Cached)
	normalized := *second
	normalized.Cached = false
	require.Equal(t, *first, normalized)
}

func TestRun_CacheHitWritesNoRevision(t *testing.T) {
	env := newTestRunner(t, true, false)
	ctx := context.Background()

	first := env.runner.RunSync(ctx, RunInput{SessionID: "s1", Requirements: "task tracker", SkipDeploy: true})
	require.True(t, first.Success)

	p, err := db.GetProject(ctx, env.db, first.ProjectID)
	require.NoError(t, err)
	require.Len(t, p.History, 1)

	env.runner.RunSync(ctx, RunInput{SessionID: "s2", Requirements: "task tracker", SkipDeploy: true})

	p, err = db.GetProject(ctx, env.db, first.ProjectID)
	require.NoError(t, err)
	require.Len(t, p.History, 1, "cache hit must not append a revision")
}

func TestRun_ContinuityContext(t *testing.T) {
	env := newTestRunner(t, false, false)
	ctx := context.Background()

	// Seed prior state with more names than the continuity limit carries
	vars := []string{"a", "b", "c", "d", "e", "f", "g"}
	funcs := []string{"f1", "f2"}
	require.NoError(t, db.SaveProject(ctx, env.db, "proj1", "Prior", "var a = 1;", vars, funcs))

	result := env.runner.RunSync(ctx, RunInput{
		SessionID:    "s1",
		Requirements: "regenerate it",
		ProjectID:    "proj1",
		SkipDeploy:   true,
	})
	require.True(t, result.Success)

	require.NotNil(t, env.client.lastCont)
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, env.client.lastCont.Variables)
	require.Equal(t, []string{"f1", "f2"}, env.client.lastCont.Functions)
	require.Equal(t, "var a = 1;", env.client.lastCont.Code)
}

func TestRun_UnknownProjectIDIsFirstGeneration(t *testing.T) {
	env := newTestRunner(t, false, false)

	result := env.runner.RunSync(context.Background(), RunInput{
		SessionID:    "s1",
		Requirements: "fresh start",
		ProjectID:    "never-seen",
		SkipDeploy:   true,
	})

	require.True(t, result.Success)
	require.Equal(t, "never-seen", result.ProjectID)
	require.Nil(t, env.client.lastCont)
}

func TestRun_StorageFailureIsFatal(t *testing.T) {
	env := newTestRunner(t, false, true)
	env.db.Close() // force persistence failure at the save stage

	result := env.runner.RunSync(context.Background(), RunInput{
		SessionID:    "s1",
		Requirements: "anything",
		SkipDeploy:   true,
	})

	require.False(t, result.Success)
	require.NotEmpty(t, result.Error)
}

func TestRun_ProjectNameTruncatedOnRuneBoundary(t *testing.T) {
	env := newTestRunner(t, false, false)
	env.client.projectName = strings.Repeat("급여계산기", 20)

	result := env.runner.RunSync(context.Background(), RunInput{
		SessionID:    "s1",
		Requirements: "payroll calculator",
		SkipDeploy:   true,
	})
	require.True(t, result.Success)

	p, err := db.GetProject(context.Background(), env.db, result.ProjectID)
	require.NoError(t, err)
	require.True(t, utf8.ValidString(p.Name), "stored name must stay valid UTF-8")
	require.Equal(t, projectNameMax, utf8.RuneCountInString(p.Name))
}

func TestRun_DeployStage(t *testing.T) {
	env := newTestRunner(t, false, false)

	result := env.runner.RunSync(context.Background(), RunInput{
		SessionID:    "s1",
		Requirements: "deploy me",
		SkipDeploy:   false,
	})

	require.True(t, result.Success)
	require.True(t, env.deployer.testsRan)
	require.True(t, env.deployer.deployed)
	require.Equal(t, "https://script.google.com/macros/s/test/exec", result.DeploymentURL)
}

func TestRun_TrackerEndsFinished(t *testing.T) {
	env := newTestRunner(t, false, true)

	env.runner.RunSync(context.Background(), RunInput{
		SessionID:    "s1",
		Requirements: "Build a todo list app",
		SkipDeploy:   true,
	})

	rec := env.runner.Tracker.Peek("s1")
	require.False(t, rec.Running)
	require.NotNil(t, rec.Result)
	require.Equal(t, TotalSteps, rec.Step)
}

func TestValidate(t *testing.T) {
	env := newTestRunner(t, false, true)

	require.Error(t, env.runner.Validate("", "key"))
	require.Error(t, env.runner.Validate("   ", "key"))
	require.Error(t, env.runner.Validate("reqs", ""))
	require.NoError(t, env.runner.Validate("reqs", "key"))
}

func TestDeriveProjectID(t *testing.T) {
	a := DeriveProjectID("Build a todo list app")
	b := DeriveProjectID("Build a todo list app")
	require.Equal(t, a, b)
	require.Len(t, a, 12)
	require.NotEqual(t, a, DeriveProjectID("something else"))
}

func TestNewSessionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		require.Len(t, id, 26)
		require.False(t, seen[id])
		seen[id] = true
	}
}
