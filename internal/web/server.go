package web

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkwon/scriptforge/internal/config"
	"github.com/pkwon/scriptforge/internal/pipeline"
)

// NewServer creates and configures the HTTP server for the ScriptForge API.
func NewServer(database *sql.DB, cfg *config.Config, runner *pipeline.Runner, version, bind string, port int) *http.Server {
	h := &Handlers{
		db:      database,
		cfg:     cfg,
		runner:  runner,
		version: version,
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("POST /api/generate", h.HandleGenerate)
	mux.HandleFunc("GET /api/progress", h.HandleProgress)
	mux.HandleFunc("GET /api/download/{session_id}", h.HandleDownload)
	mux.HandleFunc("GET /api/projects", h.HandleProjects)
	mux.HandleFunc("GET /api/projects/{id}", h.HandleProject)
	mux.HandleFunc("GET /api/sessions/{session_id}/readme", h.HandleReadme)
	mux.HandleFunc("GET /api/health", h.HandleHealth)

	handler := securityHeaders(mux)

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", bind, port),
		Handler: handler,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
// A background ticker reaps finished progress records older than maxAge.
func Run(srv *http.Server, tracker *pipeline.Tracker, maxAge time.Duration) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	reapDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(maxAge / 2)
		defer ticker.Stop()
		for {
			select {
			case <-reapDone:
				return
			case <-ticker.C:
				if n := tracker.Reap(maxAge); n > 0 {
					log.Printf("reaped %d finished sessions", n)
				}
			}
		}
	}()
	defer close(reapDone)

	log.Printf("ScriptForge API running at http://%s", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Printf("WARNING: Server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
