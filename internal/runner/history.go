package runner

import (
	"context"

	"parley/internal/listen"
	"parley/internal/storage"
)

// TurnStore persists completed turns. *storage.DB implements it.
type TurnStore interface {
	AppendTurn(ctx context.Context, t *storage.Turn) error
}

// record stores the person's utterance and the model's reply. Failures are
// logged and otherwise ignored.
func (r *Runner) record(ctx context.Context, u listen.Utterance, reply *Reply) {
	if r.deps.History == nil || r.deps.DialogueID == "" {
		return
	}

	turns := []*storage.Turn{
		{
			DialogueID: r.deps.DialogueID,
			Role:       storage.RoleUser,
			Content:    u.Text,
			Tokens:     reply.UserTokens,
			Confidence: u.Confidence,
			Latency:    u.Latency,
		},
		{
			DialogueID: r.deps.DialogueID,
			Role:       storage.RoleAssistant,
			Content:    reply.Text,
			Tokens:     reply.Tokens,
			Compacted:  reply.Compacted,
		},
	}
	for _, t := range turns {
		if err := r.deps.History.AppendTurn(ctx, t); err != nil {
			r.logger.Warn().Err(minor("record history", err)).Str("role", string(t.Role)).Msg("history write failed")
			return
		}
	}
}
