package db

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pkwon/scriptforge/internal/errors"
	"github.com/pkwon/scriptforge/internal/project"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestSaveProject_FirstSave(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	err := SaveProject(ctx, database, "p1", "Todo App", "var x = 1;", []string{"x"}, nil)
	require.NoError(t, err)

	p, err := GetProject(ctx, database, "p1")
	require.NoError(t, err)
	require.Equal(t, "Todo App", p.Name)
	require.Equal(t, "var x = 1;", p.Code)
	require.Equal(t, []string{"x"}, p.Variables)
	require.Len(t, p.History, 1)
	require.Equal(t, p.CreatedAt, p.UpdatedAt)
}

func TestSaveProject_PreservesCreatedAt(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	require.NoError(t, SaveProject(ctx, database, "p1", "App", "v1", nil, nil))
	first, err := GetProject(ctx, database, "p1")
	require.NoError(t, err)

	require.NoError(t, SaveProject(ctx, database, "p1", "App", "v2", nil, nil))
	second, err := GetProject(ctx, database, "p1")
	require.NoError(t, err)

	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.Equal(t, "v2", second.Code)
	require.Len(t, second.History, 2)
}

func TestSaveProject_HistoryCap(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	// 13 saves; only the last 10 revisions survive, oldest first.
	for i := 1; i <= 13; i++ {
		code := fmt.Sprintf("// rev %d", i)
		require.NoError(t, SaveProject(ctx, database, "p1", "App", code, nil, nil))
	}

	p, err := GetProject(ctx, database, "p1")
	require.NoError(t, err)
	require.Len(t, p.History, project.HistoryCap)
	require.Equal(t, "// rev 4", p.History[0].Code)
	require.Equal(t, "// rev 13", p.History[len(p.History)-1].Code)

	// History is the last 10 saves in save order.
	for i, rev := range p.History {
		require.Equal(t, fmt.Sprintf("// rev %d", i+4), rev.Code)
	}
}

func TestGetProject_NotFound(t *testing.T) {
	database := testDB(t)

	_, err := GetProject(context.Background(), database, "missing")
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestListProjects_OrderedByUpdatedAt(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	require.NoError(t, SaveProject(ctx, database, "a", "First", "x", nil, nil))
	require.NoError(t, SaveProject(ctx, database, "b", "Second", "y", nil, nil))

	summaries, err := ListProjects(ctx, database)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Both saves may share a timestamp at RFC3339 resolution; the id
	// tiebreaker keeps the order deterministic either way.
	ids := []string{summaries[0].ID, summaries[1].ID}
	require.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestListProjects_Empty(t *testing.T) {
	database := testDB(t)

	summaries, err := ListProjects(context.Background(), database)
	require.NoError(t, err)
	require.Empty(t, summaries)
}
