// Package deploy shells out to the clasp CLI to push and deploy generated
// Apps Script projects. Absence of the tool is not an error: every entry
// point degrades to a "skipped" result so the pipeline can finish without it.
package deploy

import (
	"context"
	"log"
	"os/exec"
	"strings"
	"time"
)

// Clasp drives the clasp CLI against one generated project directory.
type Clasp struct {
	// Dir is the project directory containing the generated files.
	Dir string

	// lookPath is swappable for tests.
	lookPath func(string) (string, error)
}

// New creates a Clasp deployer for the given project directory.
func New(dir string) *Clasp {
	return &Clasp{Dir: dir, lookPath: exec.LookPath}
}

// Available reports whether the clasp binary can be found.
func (c *Clasp) Available() bool {
	look := c.lookPath
	if look == nil {
		look = exec.LookPath
	}
	_, err := look("clasp")
	return err == nil
}

// RunTests pushes the project and runs its test entry point.
// Returns true when tests pass or when clasp is unavailable (skip, not fail).
func (c *Clasp) RunTests(ctx context.Context) (bool, error) {
	if !c.Available() {
		log.Print("clasp not installed, skipping tests")
		return true, nil
	}

	if err := c.run(ctx, "push", "--force"); err != nil {
		log.Printf("clasp push failed: %v", err)
		return false, err
	}

	if err := c.run(ctx, "run", "testAll"); err != nil {
		log.Printf("clasp tests failed: %v", err)
		return false, nil
	}

	return true, nil
}

// Deploy pushes and deploys the project, returning the web app URL scraped
// from clasp output. An empty URL with a nil error means deployment was
// skipped or produced no URL.
func (c *Clasp) Deploy(ctx context.Context) (string, error) {
	if !c.Available() {
		log.Print("clasp not installed, manual deploy required")
		return "", nil
	}

	if err := c.run(ctx, "push", "--force"); err != nil {
		return "", err
	}

	desc := "Auto " + time.Now().Format("20060102_150405")
	out, err := c.output(ctx, "deploy", "--description", desc)
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "https://script.google.com") {
			return strings.TrimSpace(line), nil
		}
	}

	log.Print("clasp deploy produced no URL")
	return "", nil
}

func (c *Clasp) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "clasp", args...)
	cmd.Dir = c.Dir
	return cmd.Run()
}

func (c *Clasp) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "clasp", args...)
	cmd.Dir = c.Dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}
