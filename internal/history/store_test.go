package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"opsbot/internal/agent/ports"
	apperrors "opsbot/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreAppendAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, ports.ToolResult{
		ID:            "call-1",
		ToolName:      "k8s-get-pods",
		Success:       true,
		Result:        map[string]any{"items": []any{"a"}},
		ExecutionTime: 12.5,
		Timestamp:     base,
	}))
	require.NoError(t, store.Append(ctx, ports.ToolResult{
		ID:        "call-2",
		ToolName:  "k8s-get-logs",
		Error:     apperrors.ToolNotFound("k8s-get-logs"),
		Timestamp: base.Add(time.Second),
		Cached:    false,
	}))

	records, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	newest := records[0]
	assert.Equal(t, "call-2", newest.CallID)
	assert.False(t, newest.Success)
	assert.Equal(t, "TOOL_NOT_FOUND", newest.ErrorCode)
	assert.Empty(t, newest.Payload)

	oldest := records[1]
	assert.Equal(t, "call-1", oldest.CallID)
	assert.True(t, oldest.Success)
	assert.InDelta(t, 12.5, oldest.ExecutionTime, 1e-9)
	assert.JSONEq(t, `{"items":["a"]}`, oldest.Payload)
	assert.True(t, base.Equal(oldest.CreatedAt))
}

func TestStoreListLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i := range 5 {
		store.ObserveCall(ctx, ports.ToolResult{
			ID:        "call",
			ToolName:  "k8s-get-pods",
			Success:   true,
			Result:    i,
			Timestamp: time.UnixMilli(int64(1000 + i)),
		})
	}

	records, err := store.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "4", records[0].Payload)

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStoreReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	first, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Append(ctx, ports.ToolResult{ID: "call-1", ToolName: "t", Success: true}))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path)
	require.NoError(t, err)
	defer second.Close()
	records, err := second.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	query := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, query, sqliteDialect.rebind(query))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", postgresDialect.rebind(query))
}
