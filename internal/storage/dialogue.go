package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Dialogue 一次 talk 运行
type Dialogue struct {
	ID           string     `json:"id"`
	Person       string     `json:"person"`
	BotName      string     `json:"bot_name"`
	Model        string     `json:"model"`
	SessionPath  string     `json:"session_path"`
	PromptTokens int        `json:"prompt_tokens"`
	CacheMatched int        `json:"cache_matched"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	TurnCount    int        `json:"turn_count"`
}

// NewDialogue 描述待创建的对话
type NewDialogue struct {
	Person      string
	BotName     string
	Model       string
	SessionPath string
}

// CreateDialogue 创建对话记录，ID 为 uuid
func (db *DB) CreateDialogue(ctx context.Context, d NewDialogue) (*Dialogue, error) {
	now := time.Now().UTC()
	id := uuid.NewString()

	_, err := db.ExecContext(ctx,
		`INSERT INTO dialogues (id, person, bot_name, model, session_path, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, d.Person, d.BotName, d.Model, d.SessionPath, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert dialogue: %w", err)
	}

	return &Dialogue{
		ID:          id,
		Person:      d.Person,
		BotName:     d.BotName,
		Model:       d.Model,
		SessionPath: d.SessionPath,
		StartedAt:   now,
	}, nil
}

// SetPromptStats 记录提示词长度及会话缓存命中的前缀长度
func (db *DB) SetPromptStats(ctx context.Context, id string, promptTokens, cacheMatched int) error {
	res, err := db.ExecContext(ctx,
		"UPDATE dialogues SET prompt_tokens = ?, cache_matched = ? WHERE id = ?",
		promptTokens, cacheMatched, id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// EndDialogue 标记对话结束
func (db *DB) EndDialogue(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx,
		"UPDATE dialogues SET ended_at = ? WHERE id = ? AND ended_at IS NULL",
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

const dialogueColumns = `d.id, d.person, d.bot_name, d.model, d.session_path,
	d.prompt_tokens, d.cache_matched, d.started_at, d.ended_at,
	(SELECT COUNT(*) FROM turns t WHERE t.dialogue_id = d.id)`

// GetDialogue 获取对话；精确匹配失败时接受唯一的 ID 前缀
func (db *DB) GetDialogue(ctx context.Context, id string) (*Dialogue, error) {
	found, err := db.queryDialogues(ctx, "WHERE d.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 && id != "" {
		found, err = db.queryDialogues(ctx, "WHERE d.id LIKE ? || '%' LIMIT 2", id)
		if err != nil {
			return nil, err
		}
	}

	switch len(found) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("dialogue id prefix %q is ambiguous", id)
	}
}

// ListDialogues 按开始时间倒序列出对话，limit <= 0 表示不限
func (db *DB) ListDialogues(ctx context.Context, limit int) ([]*Dialogue, error) {
	clause := "ORDER BY d.started_at DESC, d.rowid DESC"
	var args []any
	if limit > 0 {
		clause += " LIMIT ?"
		args = append(args, limit)
	}
	return db.queryDialogues(ctx, clause, args...)
}

// DeleteDialogue 删除对话及其所有轮次
func (db *DB) DeleteDialogue(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM dialogues WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (db *DB) queryDialogues(ctx context.Context, clause string, args ...any) ([]*Dialogue, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+dialogueColumns+" FROM dialogues d "+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dialogues []*Dialogue
	for rows.Next() {
		d, err := scanDialogue(rows)
		if err != nil {
			return nil, err
		}
		dialogues = append(dialogues, d)
	}
	return dialogues, rows.Err()
}

func scanDialogue(rows *sql.Rows) (*Dialogue, error) {
	var d Dialogue
	var ended sql.NullTime
	if err := rows.Scan(&d.ID, &d.Person, &d.BotName, &d.Model, &d.SessionPath,
		&d.PromptTokens, &d.CacheMatched, &d.StartedAt, &ended, &d.TurnCount); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		d.EndedAt = &t
	}
	return &d, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isNoRows 兼容 QueryRow 的空结果
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
