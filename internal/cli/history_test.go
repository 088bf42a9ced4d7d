package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/storage"
)

func seedHistory(t *testing.T) (*storage.DB, *storage.Dialogue) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	d, err := db.CreateDialogue(ctx, storage.NewDialogue{Person: "Georgi", BotName: "LLaMA", Model: "ws://localhost/v1/eval"})
	require.NoError(t, err)
	require.NoError(t, db.SetPromptStats(ctx, d.ID, 40, 38))
	require.NoError(t, db.AppendTurn(ctx, &storage.Turn{DialogueID: d.ID, Role: storage.RoleUser, Content: "What is a cat?", Latency: 300 * time.Millisecond}))
	require.NoError(t, db.AppendTurn(ctx, &storage.Turn{DialogueID: d.ID, Role: storage.RoleAssistant, Content: "A small mammal.", Compacted: true}))
	return db, d
}

func TestRunHistoryList(t *testing.T) {
	db, d := seedHistory(t)

	var out bytes.Buffer
	require.NoError(t, runHistoryList(context.Background(), &out, db, 10, false))

	assert.Contains(t, out.String(), shortID(d.ID))
	assert.Contains(t, out.String(), "38/40")
	assert.Contains(t, out.String(), "Total: 1 conversations")
}

func TestRunHistoryList_Empty(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer db.Close()

	var out bytes.Buffer
	require.NoError(t, runHistoryList(context.Background(), &out, db, 10, false))
	assert.Equal(t, "No conversations found.\n", out.String())
}

func TestRunHistoryShow(t *testing.T) {
	db, d := seedHistory(t)

	var out bytes.Buffer
	require.NoError(t, runHistoryShow(context.Background(), &out, db, d.ID[:8], false))

	assert.Contains(t, out.String(), "Conversation: "+d.ID)
	assert.Contains(t, out.String(), "Georgi: What is a cat?")
	assert.Contains(t, out.String(), "LLaMA: A small mammal. (context compacted)")
}

func TestRunHistoryShow_JSON(t *testing.T) {
	db, d := seedHistory(t)

	var out bytes.Buffer
	require.NoError(t, runHistoryShow(context.Background(), &out, db, d.ID, true))

	var got struct {
		ID    string          `json:"id"`
		Turns []*storage.Turn `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, d.ID, got.ID)
	assert.Len(t, got.Turns, 2)
}

func TestRunHistoryShow_NotFound(t *testing.T) {
	db, _ := seedHistory(t)

	err := runHistoryShow(context.Background(), &bytes.Buffer{}, db, "zzzz", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conversation not found")
}

func TestRunHistoryDelete(t *testing.T) {
	db, d := seedHistory(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runHistoryDelete(ctx, &out, db, d.ID))
	assert.Contains(t, out.String(), "Deleted conversation "+d.ID)

	_, err := db.GetDialogue(ctx, d.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
