package runner

import (
	"errors"
	"fmt"
)

// Runner errors.
var (
	// ErrEmptyInput indicates the heard text was empty.
	ErrEmptyInput = errors.New("empty input")

	// ErrNoTokens indicates the user turn tokenized to nothing.
	ErrNoTokens = errors.New("input produced no tokens")

	// ErrWindowMismatch indicates the evaluator rejected a batch that fits the
	// configured context window; its own window is smaller.
	ErrWindowMismatch = errors.New("evaluator context window smaller than configured")

	// ErrNotStarted indicates RunTurn or Run was called before Start.
	ErrNotStarted = errors.New("runner not started")
)

// Kind tells the dialogue loop what to do with an error.
type Kind int

const (
	// KindContinue is logged and the conversation goes on.
	KindContinue Kind = iota
	// KindAbandonTurn drops the current turn without touching the transcript.
	KindAbandonTurn
	// KindFatal ends the run.
	KindFatal
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindContinue:
		return "continue"
	case KindAbandonTurn:
		return "abandon_turn"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified runner error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fatal(op string, err error) *Error   { return &Error{Kind: KindFatal, Op: op, Err: err} }
func abandon(op string, err error) *Error { return &Error{Kind: KindAbandonTurn, Op: op, Err: err} }
func minor(op string, err error) *Error   { return &Error{Kind: KindContinue, Op: op, Err: err} }

// KindOf classifies err. Errors not produced by the runner are fatal.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindFatal
}
