// Package pipeline implements the staged generation run: fingerprint cache
// check, prior-state load, seven sequential stages with per-stage progress,
// revision persistence, and optional deployment.
package pipeline

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pkwon/scriptforge/internal/config"
	"github.com/pkwon/scriptforge/internal/db"
	"github.com/pkwon/scriptforge/internal/deploy"
	"github.com/pkwon/scriptforge/internal/errors"
	"github.com/pkwon/scriptforge/internal/genai"
	"github.com/pkwon/scriptforge/internal/project"
)

// projectNameMax caps the stored project name length.
const projectNameMax = 50

// projectIDLen is the width of a derived project id (hex chars).
const projectIDLen = 12

// Deployer is the external deployment tool contract. Unavailability of the
// tool must be reported as a benign skip, never as a run-fatal error.
type Deployer interface {
	RunTests(ctx context.Context) (bool, error)
	Deploy(ctx context.Context) (string, error)
}

// RunInput are the parameters of one generation run.
type RunInput struct {
	SessionID    string
	Requirements string
	APIKey       string
	ProjectID    string // empty: derive from requirements on save
	SkipDeploy   bool
}

// Runner executes generation runs. All collaborators are injected; the
// model-client and deployer factories are swappable for tests.
type Runner struct {
	DB      *sql.DB
	Cfg     *config.Config
	Cache   *Cache
	Tracker *Tracker

	// NewClient builds a model client for one run. A construction error is
	// not fatal: the run proceeds on the deterministic fallback library.
	NewClient func(ctx context.Context, apiKey, model string) (genai.Client, error)

	// NewDeployer builds the deployer for a generated project directory.
	NewDeployer func(dir string) Deployer
}

// NewRunner wires a Runner with the real model client and clasp deployer.
func NewRunner(database *sql.DB, cfg *config.Config, cache *Cache, tracker *Tracker) *Runner {
	return &Runner{
		DB:      database,
		Cfg:     cfg,
		Cache:   cache,
		Tracker: tracker,
		NewClient: func(ctx context.Context, apiKey, model string) (genai.Client, error) {
			return genai.NewClaudeClient(ctx, apiKey, model)
		},
		NewDeployer: func(dir string) Deployer {
			return deploy.New(dir)
		},
	}
}

// NewSessionID generates a ULID session id.
func NewSessionID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		// rand.Reader failures are not recoverable at this level
		panic(err)
	}
	return id.String()
}

// DeriveProjectID derives a stable project id from the requirements text.
func DeriveProjectID(requirements string) string {
	sum := md5.Sum([]byte(requirements))
	return hex.EncodeToString(sum[:])[:projectIDLen]
}

// Validate rejects a run before any session exists. The api key is the
// effective one (request value or configured default).
func (r *Runner) Validate(requirements, apiKey string) error {
	if strings.TrimSpace(requirements) == "" {
		return errors.NewInvalidRequest("requirements text is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return errors.NewMissingAPIKey()
	}
	return nil
}

// Launch starts a run on its own goroutine and returns immediately. The
// caller polls the Tracker for completion. There is no cancellation: a
// started run finishes or the process exits.
func (r *Runner) Launch(in RunInput) {
	r.Tracker.Start(in.SessionID)
	go func() {
		result := r.Run(context.Background(), in)
		r.Tracker.Finish(in.SessionID, result)
	}()
}

// RunSync executes a run on the calling goroutine, tracking progress the
// same way Launch does. Used by the CLI.
func (r *Runner) RunSync(ctx context.Context, in RunInput) *Result {
	r.Tracker.Start(in.SessionID)
	result := r.Run(ctx, in)
	r.Tracker.Finish(in.SessionID, result)
	return result
}

// Run executes the seven-stage pipeline and always returns a structured
// result; it never propagates an error or panic to the caller.
func (r *Runner) Run(ctx context.Context, in RunInput) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[%s] pipeline panic: %v", shortID(in.SessionID), rec)
			result = Failure(fmt.Errorf("pipeline panic: %v", rec))
		}
	}()

	start := time.Now()

	// Cache check (pre-stage): a live entry bypasses all generation side
	// effects. No new revision, no new files.
	fingerprint := Fingerprint(in.Requirements)
	if cached, ok := r.Cache.Get(fingerprint); ok {
		log.Printf("[%s] cache hit", shortID(in.SessionID))
		r.Tracker.Advance(in.SessionID, TotalSteps, "loaded from cache")
		hit := *cached
		hit.Cached = true
		return &hit
	}

	// Prior project state: absence is first-generation, not an error.
	var prior *project.Project
	if in.ProjectID != "" {
		p, err := db.GetProject(ctx, r.DB, in.ProjectID)
		switch {
		case err == nil:
			prior = p
		case errors.Is(err, errors.ErrNotFound):
			// first generation under this id
		default:
			return Failure(err)
		}
	}
	cont := continuityFrom(prior)

	client := r.buildClient(ctx, in)

	// Step 1: analyze
	r.advance(in.SessionID, 1, "")
	analysis := r.analyze(ctx, client, in.Requirements, cont)

	// Step 2: design. A settling delay only, but downstream step numbering
	// depends on the stage occurring.
	r.advance(in.SessionID, 2, "")
	time.Sleep(r.Cfg.DesignDelay())

	// Step 3: code generation, in analysis file order
	r.advance(in.SessionID, 3, "")
	files := NewFileSet()
	for i, spec := range analysis.Files {
		msg := fmt.Sprintf("%s (%d/%d): %s", StepLabels[2], i+1, len(analysis.Files), spec.Name)
		r.advance(in.SessionID, 3, msg)
		files.Add(spec.Name, r.generateFile(ctx, client, analysis, spec, cont))
	}

	// Step 4: test stub
	r.advance(in.SessionID, 4, "")
	files.Add(TestStubFile, testStub())

	// Step 5: configuration + readme
	r.advance(in.SessionID, 5, "")
	files.Add(ManifestFile, manifest(analysis))
	files.Add(ReadmeFile, readme(analysis))

	// Step 6: save. This is the single atomic commit point; failures before
	// or inside it leave prior state untouched.
	r.advance(in.SessionID, 6, "")
	outDir := filepath.Join(r.Cfg.OutputDir, in.SessionID)
	if err := files.WriteTo(outDir); err != nil {
		return Failure(errors.NewStorage(err))
	}

	mainCode, _ := files.Get(project.PrimaryFile)
	vars, funcs := project.Extract(mainCode)

	projectID := in.ProjectID
	if projectID == "" {
		projectID = DeriveProjectID(in.Requirements)
	}
	name := analysis.ProjectName
	// Rune-based cap: names are frequently non-ASCII and a byte slice could
	// split a character.
	if r := []rune(name); len(r) > projectNameMax {
		name = string(r[:projectNameMax])
	}
	if err := db.SaveProject(ctx, r.DB, projectID, name, mainCode, vars, funcs); err != nil {
		return Failure(err)
	}

	// Step 7: finalize, optionally deploy
	r.advance(in.SessionID, 7, "")
	deployURL := ""
	if !in.SkipDeploy {
		deployer := r.NewDeployer(outDir)
		if ok, err := deployer.RunTests(ctx); err != nil || !ok {
			log.Printf("[%s] tests did not pass, deploying anyway", shortID(in.SessionID))
		}
		url, err := deployer.Deploy(ctx)
		if err != nil {
			log.Printf("[%s] deploy failed: %v", shortID(in.SessionID), err)
		} else {
			deployURL = url
		}
	}

	elapsed := time.Since(start).Seconds()
	result = &Result{
		Success:       true,
		ProjectID:     projectID,
		ProjectName:   analysis.ProjectName,
		Description:   analysis.Description,
		Features:      analysis.Features,
		Files:         files.Names(),
		Code:          files.Map(),
		Variables:     vars,
		Functions:     funcs,
		ElapsedTime:   elapsed,
		DeploymentURL: deployURL,
		Summary: Summary{
			TotalFiles: files.Len(),
			TotalLines: files.TotalLines(),
			Elapsed:    elapsed,
		},
		Cached: false,
	}

	r.Cache.Put(fingerprint, result)
	log.Printf("[%s] done in %.1fs (%d files)", shortID(in.SessionID), elapsed, files.Len())
	return result
}

// buildClient constructs the model client for this run. Failure is absorbed:
// a nil client routes every stage through the fallback library.
func (r *Runner) buildClient(ctx context.Context, in RunInput) genai.Client {
	client, err := r.NewClient(ctx, in.APIKey, r.Cfg.Model)
	if err != nil {
		log.Printf("[%s] model client unavailable, using fallback: %v", shortID(in.SessionID), err)
		return nil
	}
	return client
}

// analyze delegates to the model and falls back to the deterministic local
// analysis on any failure. Never raises.
func (r *Runner) analyze(ctx context.Context, client genai.Client, requirements string, cont *genai.Continuity) *genai.Analysis {
	if client != nil {
		callCtx, cancel := context.WithTimeout(ctx, r.Cfg.ModelTimeout())
		defer cancel()
		analysis, err := client.Analyze(callCtx, requirements, cont)
		if err == nil {
			return analysis
		}
		log.Printf("analyze failed, using fallback: %v", err)
	}
	return genai.FallbackAnalysis(requirements)
}

// generateFile delegates to the model and falls back to the canned template
// for the file type on any failure. Never raises.
func (r *Runner) generateFile(ctx context.Context, client genai.Client, analysis *genai.Analysis, spec genai.FileSpec, cont *genai.Continuity) string {
	if client != nil {
		callCtx, cancel := context.WithTimeout(ctx, r.Cfg.ModelTimeout())
		defer cancel()
		code, err := client.GenerateFile(callCtx, analysis, spec, cont)
		if err == nil {
			return code
		}
		log.Printf("codegen failed for %s, using fallback: %v", spec.Name, err)
	}
	return genai.FallbackFile(spec)
}

// continuityFrom builds the bounded identifier-continuity context from a
// prior project state. Extraction stores names sorted, so the truncation is
// deterministic and stable.
func continuityFrom(prior *project.Project) *genai.Continuity {
	if prior == nil {
		return nil
	}
	return &genai.Continuity{
		Code:      prior.Code,
		Variables: project.Truncate(prior.Variables, 5),
		Functions: project.Truncate(prior.Functions, 5),
	}
}

func (r *Runner) advance(sessionID string, step int, message string) {
	r.Tracker.Advance(sessionID, step, message)
	label := message
	if label == "" && step >= 1 && step <= TotalSteps {
		label = StepLabels[step-1]
	}
	log.Printf("[%s] step %d/%d: %s", shortID(sessionID), step, TotalSteps, label)
}

func shortID(sessionID string) string {
	if len(sessionID) > 8 {
		return sessionID[:8]
	}
	return sessionID
}
