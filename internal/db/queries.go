package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkwon/scriptforge/internal/errors"
	"github.com/pkwon/scriptforge/internal/project"
)

// upsertMu serializes read-modify-write upsert sequences so two runs saving
// the same project id cannot lose history updates. Coarse on purpose:
// expected concurrency is low and saves are short.
var upsertMu sync.Mutex

// SaveProject appends a new revision and replaces the stored row in a single
// transaction. created_at is preserved when the row already exists. History
// is truncated to the most recent project.HistoryCap revisions.
func SaveProject(ctx context.Context, db *sql.DB, id, name, code string, vars, funcs []string) error {
	upsertMu.Lock()
	defer upsertMu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorage(err)
	}
	defer tx.Rollback()

	var history []project.Revision
	createdAt := now

	var historyJSON, existingCreated string
	err = tx.QueryRowContext(ctx,
		`SELECT history_json, created_at FROM projects WHERE id = ?`, id,
	).Scan(&historyJSON, &existingCreated)
	switch err {
	case nil:
		if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
			return errors.NewStorage(err)
		}
		createdAt = existingCreated
	case sql.ErrNoRows:
		// first save for this id
	default:
		return errors.NewStorage(err)
	}

	history = append(history, project.Revision{
		Timestamp: now,
		Code:      code,
		Variables: vars,
		Functions: funcs,
	})
	if len(history) > project.HistoryCap {
		history = history[len(history)-project.HistoryCap:]
	}

	varsJSON, err := json.Marshal(emptyIfNil(vars))
	if err != nil {
		return errors.NewStorage(err)
	}
	funcsJSON, err := json.Marshal(emptyIfNil(funcs))
	if err != nil {
		return errors.NewStorage(err)
	}
	newHistoryJSON, err := json.Marshal(history)
	if err != nil {
		return errors.NewStorage(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO projects
			(id, name, code, variables_json, functions_json, history_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, code, string(varsJSON), string(funcsJSON), string(newHistoryJSON), createdAt, now,
	)
	if err != nil {
		return errors.NewStorage(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// GetProject retrieves a project by id.
func GetProject(ctx context.Context, db *sql.DB, id string) (*project.Project, error) {
	var (
		p                             project.Project
		varsJSON, funcsJSON, histJSON string
	)

	err := db.QueryRowContext(ctx, `
		SELECT id, name, code, variables_json, functions_json, history_json, created_at, updated_at
		FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Code, &varsJSON, &funcsJSON, &histJSON, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("project", id)
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}

	if err := json.Unmarshal([]byte(varsJSON), &p.Variables); err != nil {
		return nil, errors.NewStorage(err)
	}
	if err := json.Unmarshal([]byte(funcsJSON), &p.Functions); err != nil {
		return nil, errors.NewStorage(err)
	}
	if err := json.Unmarshal([]byte(histJSON), &p.History); err != nil {
		return nil, errors.NewStorage(err)
	}

	return &p, nil
}

// ListProjects returns summaries of all projects, most recently updated first.
func ListProjects(ctx context.Context, db *sql.DB) ([]project.Summary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, updated_at FROM projects ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	defer rows.Close()

	summaries := make([]project.Summary, 0)
	for rows.Next() {
		var s project.Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.UpdatedAt); err != nil {
			return nil, errors.NewStorage(err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}

	return summaries, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
