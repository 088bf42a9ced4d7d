package storage

import (
	"context"
	"fmt"
	"time"
)

// Role 轮次说话方
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn 一次发言
type Turn struct {
	ID         int64         `json:"id"`
	DialogueID string        `json:"dialogue_id"`
	Role       Role          `json:"role"`
	Content    string        `json:"content"`
	Tokens     int           `json:"tokens"`
	Confidence float64       `json:"confidence,omitempty"`
	Latency    time.Duration `json:"latency,omitempty"`
	Compacted  bool          `json:"compacted,omitempty"` // 该轮触发了上下文压缩
	CreatedAt  time.Time     `json:"created_at"`
}

// AppendTurn 追加一轮发言，回填 ID 和创建时间
func (db *DB) AppendTurn(ctx context.Context, t *Turn) error {
	if t.Role != RoleUser && t.Role != RoleAssistant {
		return fmt.Errorf("invalid role %q", t.Role)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	var id int64
	err := db.WithTx(ctx, func(tx *Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM dialogues WHERE id = ?", t.DialogueID).Scan(&exists)
		if isNoRows(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO turns (dialogue_id, role, content, tokens, confidence, latency_ms, compacted, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.DialogueID, string(t.Role), t.Content, t.Tokens, t.Confidence,
			t.Latency.Milliseconds(), boolToInt(t.Compacted), t.CreatedAt,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	t.ID = id
	return nil
}

// ListTurns 按发生顺序返回对话的所有轮次
func (db *DB) ListTurns(ctx context.Context, dialogueID string) ([]*Turn, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, dialogue_id, role, content, tokens, confidence, latency_ms, compacted, created_at
		 FROM turns WHERE dialogue_id = ? ORDER BY id`,
		dialogueID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		var t Turn
		var role string
		var latencyMs int64
		var compacted int
		if err := rows.Scan(&t.ID, &t.DialogueID, &role, &t.Content, &t.Tokens,
			&t.Confidence, &latencyMs, &compacted, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Role = Role(role)
		t.Latency = time.Duration(latencyMs) * time.Millisecond
		t.Compacted = compacted != 0
		turns = append(turns, &t)
	}
	return turns, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
