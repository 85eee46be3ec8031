package audit_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"dockhand/internal/audit"
	"dockhand/internal/models"
)

func newTestStore(t *testing.T) *audit.Store {
	t.Helper()

	sqlx.BindDriver("sqlite", sqlx.DOLLAR)
	db, err := sqlx.Connect("sqlite", filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store := audit.NewStore(db)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestWriteAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Write(ctx, audit.Entry{
		Action:       "task.enqueue",
		ResourceType: "task",
		ResourceID:   "task-1",
		Username:     "alice",
		Detail:       models.JSONMap{"task_type": "image.pull"},
	})
	time.Sleep(5 * time.Millisecond)
	store.Write(ctx, audit.Entry{
		Action:   "task.retry",
		Username: "bob",
	})

	entries, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// newest first
	assert.Equal(t, "task.retry", entries[0].Action)
	assert.Equal(t, "bob", entries[0].Username.ValueOrZero())
	assert.False(t, entries[0].ResourceID.Valid)
	assert.Nil(t, entries[0].Detail)

	assert.Equal(t, "task.enqueue", entries[1].Action)
	assert.Equal(t, "task-1", entries[1].ResourceID.ValueOrZero())
	assert.Equal(t, "image.pull", entries[1].Detail["task_type"])
	assert.False(t, entries[1].CreatedAt.IsZero())
}

func TestListHonorsLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.Write(ctx, audit.Entry{Action: "stack.up", Username: "alice"})
	}

	entries, err := store.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
