package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pkwon/scriptforge/internal/config"
	"github.com/pkwon/scriptforge/internal/db"
	"github.com/pkwon/scriptforge/internal/errors"
	"github.com/pkwon/scriptforge/internal/pipeline"
	"github.com/pkwon/scriptforge/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(database *sql.DB, cfg *config.Config, runner *pipeline.Runner) *cli.App {
	app := &cli.App{
		Name:    "scriptforge",
		Usage:   "AI-powered Apps Script generator",
		Version: Version,
		Commands: []*cli.Command{
			generateCmd(cfg, runner),
			projectsCmd(database),
			showCmd(database),
			serveCmd(database, cfg, runner),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// generateCmd creates the generate command.
func generateCmd(cfg *config.Config, runner *pipeline.Runner) *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate an Apps Script project from requirements (file argument or stdin)",
		ArgsUsage: "[requirements-file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Existing project id to regenerate with continuity"},
			&cli.StringFlag{Name: "api-key", Aliases: []string{"k"}, Usage: "Anthropic API key (overrides config and env)"},
			&cli.BoolFlag{Name: "deploy", Aliases: []string{"d"}, Usage: "Deploy via clasp after generation"},
			&cli.BoolFlag{Name: "no-cache", Usage: "Bypass the fingerprint cache for this run"},
		},
		Action: func(c *cli.Context) error {
			requirements, err := readRequirements(c)
			if err != nil {
				return outputError(err)
			}

			apiKey := c.String("api-key")
			if apiKey == "" {
				apiKey = cfg.APIKey
			}
			if err := runner.Validate(requirements, apiKey); err != nil {
				return outputError(err)
			}

			r := runner
			if c.Bool("no-cache") {
				bypass := *runner
				bypass.Cache = pipeline.NewCache(false, cfg.CacheTTL(), cfg.CacheMaxEntries)
				r = &bypass
			}

			result := r.RunSync(c.Context, pipeline.RunInput{
				SessionID:    pipeline.NewSessionID(),
				Requirements: requirements,
				APIKey:       apiKey,
				ProjectID:    c.String("project"),
				SkipDeploy:   !c.Bool("deploy"),
			})

			if err := outputJSON(result); err != nil {
				return err
			}
			if !result.Success {
				return cli.Exit(fmt.Sprintf("generation failed: %s", result.Error), 1)
			}
			return nil
		},
	}
}

// projectsCmd creates the projects command.
func projectsCmd(database *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "projects",
		Usage: "List stored projects",
		Action: func(c *cli.Context) error {
			items, err := db.ListProjects(c.Context, database)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(map[string]any{
				"projects": items,
				"count":    len(items),
			})
		},
	}
}

// showCmd creates the show command.
func showCmd(database *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a stored project with its revision history",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("project id is required"))
			}

			p, err := db.GetProject(c.Context, database, c.Args().First())
			if err != nil {
				return outputError(err)
			}

			return outputJSON(p)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(database *sql.DB, cfg *config.Config, runner *pipeline.Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8000, Usage: "Listen port"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(database, cfg, runner, Version, c.String("bind"), c.Int("port"))
			return web.Run(srv, runner.Tracker, cfg.ProgressMaxAge())
		},
	}
}

// Helper functions

// readRequirements reads the requirements text from the positional file
// argument, or from stdin when piped.
func readRequirements(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		data, err := os.ReadFile(c.Args().First())
		if err != nil {
			return "", errors.NewInvalidRequest(fmt.Sprintf("cannot read requirements file: %v", err))
		}
		return strings.TrimSpace(string(data)), nil
	}

	if !stdinHasData() {
		return "", errors.NewInvalidRequest("requirements must be given as a file argument or piped via stdin")
	}
	return readStdin()
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if fErr, ok := err.(*errors.ForgeError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", fErr.Code, fErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return strings.TrimSpace(string(data)), nil
}
