// Package runner drives the spoken dialogue: it evaluates the preamble,
// feeds each heard utterance to the model, samples the reply token by token
// until an antiprompt or end of text, and keeps the transcript, the
// evaluation cursor and the session cache consistent throughout.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/compaction"
	"parley/internal/listen"
	"parley/internal/prompt"
	"parley/internal/provider"
	"parley/internal/sampling"
	"parley/internal/sessioncache"
	"parley/internal/speech"
	"parley/internal/transcript"
	"parley/internal/turn"
)

// StopReason says why a model turn ended.
type StopReason string

const (
	StopAntiprompt StopReason = "antiprompt"
	StopEOS        StopReason = "eos"
	StopMaxTokens  StopReason = "max_tokens"
)

// Reply is the outcome of one model turn.
type Reply struct {
	Text       string     `json:"text"` // speakable text, antiprompt stripped
	Raw        string     `json:"raw"`  // everything generated
	Tokens     int        `json:"tokens"`
	UserTokens int        `json:"user_tokens"`
	Antiprompt string     `json:"antiprompt,omitempty"`
	Stop       StopReason `json:"stop"`
	Compacted  bool       `json:"compacted,omitempty"`
}

// Deps are the collaborators of a Runner. Provider and Prompt are required;
// everything else is optional.
type Deps struct {
	Provider    provider.Provider
	Prompt      *prompt.Builder
	Listener    listen.Listener
	Synthesizer speech.Synthesizer
	Cache       *sessioncache.Store // nil disables the session cache
	History     TurnStore           // nil disables history
	DialogueID  string
	Logger      zerolog.Logger
	OnEvent     EventHandler
}

// Runner owns the transcript and the evaluation cursor. Not safe for
// concurrent use; one goroutine runs the conversation.
type Runner struct {
	cfg  Config
	deps Deps

	info     provider.ModelInfo
	window   *compaction.Window
	sampler  *sampling.Sampler
	detector *turn.Detector

	transcript *transcript.Transcript
	nPast      int
	logits     []float32

	cache      *sessioncache.Cache
	similarity sessioncache.Similarity
	needSave   bool
	compacted  bool

	logger zerolog.Logger
}

// New creates a Runner. Start must be called before RunTurn or Run.
func New(cfg Config, deps Deps) *Runner {
	if deps.Synthesizer == nil {
		deps.Synthesizer = speech.Silent{}
	}
	if deps.OnEvent == nil {
		deps.OnEvent = func(Event) {}
	}
	return &Runner{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		cache:  sessioncache.NewCache(nil, false),
	}
}

// Start renders and tokenizes the preamble, loads the session cache,
// restores evaluator state when possible and evaluates whatever part of the
// preamble the cache does not cover.
func (r *Runner) Start(ctx context.Context) error {
	p := r.deps.Provider

	info, err := p.Info(ctx)
	if err != nil {
		return fatal("model info", err)
	}
	r.info = info

	capacity := info.ContextSize
	if r.cfg.ContextSize > 0 {
		capacity = r.cfg.ContextSize
	}
	r.window = compaction.NewWindow(compaction.Config{Capacity: capacity, NPrev: r.cfg.NPrev})
	r.sampler = sampling.New(r.cfg.Sampling, info.EOS, info.Newline)
	r.detector = turn.NewDetector(append([]string{r.deps.Prompt.Antiprompt()}, r.cfg.Antiprompts...)...)

	text, err := r.deps.Prompt.Dialogue()
	if err != nil {
		return fatal("render prompt", err)
	}
	toks, err := p.Tokenize(ctx, text, true)
	if err != nil {
		return fatal("tokenize prompt", err)
	}
	if len(toks) > r.window.Capacity() {
		return fatal("evaluate prompt", compaction.ErrBatchTooLarge)
	}

	rec, restored, err := r.loadCache(ctx)
	if err != nil {
		return err
	}

	matched := r.cache.Reuse(toks)
	rest := toks[matched:]
	if len(rest) > 0 {
		r.cache.Record(rest...)
		logits, err := p.Evaluate(ctx, rest, matched)
		if err != nil {
			return fatal("evaluate prompt", err)
		}
		r.logits = logits
	}

	r.transcript = transcript.New(toks)
	r.nPast = len(toks)

	r.similarity = sessioncache.Similarity{Total: len(toks)}
	if rec != nil {
		r.similarity = sessioncache.NewCache(rec, true).Similarity(toks)
		r.logSimilarity()
	}
	// An unrestorable file is rewritten so the next run can reuse it.
	r.needSave = r.cache.Enabled() && (r.similarity.NeedsSave() || (rec != nil && !restored))

	r.logger.Debug().
		Int("n_keep", r.transcript.NKeep()).
		Int("reused", matched).
		Int("evaluated", len(rest)).
		Int("n_ctx", r.window.Capacity()).
		Bool("need_save", r.needSave).
		Msg("prompt ready")

	r.deps.OnEvent(Event{Type: EventTypeReady, Content: text, NPast: r.nPast})
	return nil
}

func (r *Runner) logSimilarity() {
	s := r.similarity
	switch s.Kind() {
	case sessioncache.SimilarityExact:
		r.logger.Info().Msg("session file has exact match for prompt")
	case sessioncache.SimilarityLow:
		r.logger.Warn().Int("matched", s.Matched).Int("total", s.Total).
			Msg("session file has low similarity to prompt; will mostly be re-evaluated")
	default:
		r.logger.Info().Int("matched", s.Matched).Int("total", s.Total).
			Msg("session file partially matches prompt")
	}
}

// loadCache reads the session file and restores the evaluator state it
// carries. Tokens are only reused when that state was restored; otherwise
// the evaluator does not hold them.
func (r *Runner) loadCache(ctx context.Context) (*sessioncache.Record, bool, error) {
	store := r.deps.Cache
	if store == nil {
		return nil, false, nil
	}

	rec, ok, err := store.Load()
	if err != nil {
		return nil, false, fatal("load session", err)
	}
	if !ok {
		r.logger.Info().Str("path", store.Path()).Msg("session file does not exist, will create")
		r.cache = sessioncache.NewCache(nil, true)
		return nil, false, nil
	}

	restored := false
	switch snap, canSnap := r.deps.Provider.(provider.Snapshotter); {
	case len(rec.Tokens) == 0:
	case rec.Model != "" && rec.Model != r.info.Model:
		r.logger.Warn().Str("cached", rec.Model).Str("model", r.info.Model).Msg("session file belongs to another model, ignoring")
	case !canSnap || len(rec.State) == 0:
		r.logger.Debug().Msg("session file carries no evaluator state, tokens will be re-evaluated")
	default:
		if err := snap.Restore(ctx, rec.State); err != nil {
			r.logger.Warn().Err(err).Msg("restore evaluator state failed, tokens will be re-evaluated")
		} else {
			restored = true
		}
	}

	r.logger.Info().
		Str("path", store.Path()).
		Int("tokens", len(rec.Tokens)).
		Bool("restored", restored).
		Msg("loaded session file")

	if restored {
		r.cache = sessioncache.NewCache(rec, true)
	} else {
		r.cache = sessioncache.NewCache(nil, true)
	}
	return rec, restored, nil
}

// RunTurn evaluates the person's text and generates the model's reply. An
// abandoned turn leaves the transcript and cursor untouched.
func (r *Runner) RunTurn(ctx context.Context, text string) (*Reply, error) {
	if r.transcript == nil {
		return nil, fatal("run turn", ErrNotStarted)
	}
	if strings.TrimSpace(text) == "" {
		return nil, abandon("tokenize input", ErrEmptyInput)
	}

	framed := r.deps.Prompt.UserTurn(text)
	batch, err := r.deps.Provider.Tokenize(ctx, framed, false)
	if err != nil {
		if provider.ErrorCodeOf(err) == provider.ErrCodeTokenizeFailed {
			return nil, abandon("tokenize input", err)
		}
		return nil, fatal("tokenize input", err)
	}
	if len(batch) == 0 {
		return nil, abandon("tokenize input", ErrNoTokens)
	}

	r.deps.OnEvent(Event{Type: EventTypeHeard, Content: framed, NPast: r.nPast})

	reply := &Reply{UserTokens: len(batch)}
	var raw strings.Builder
	done := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if len(batch) > 0 {
			if err := r.evaluate(ctx, batch, reply); err != nil {
				return nil, err
			}
			batch = nil
		}
		if done {
			break
		}

		if r.needSave && r.cache.Enabled() {
			r.needSave = false
			r.saveCache(ctx)
		}

		tok := r.sampler.Sample(r.logits, r.transcript.Tail(r.cfg.Sampling.RepeatLastN))
		if tok == r.info.EOS {
			reply.Stop = StopEOS
			break
		}

		piece, err := r.deps.Provider.TokenToPiece(ctx, tok)
		if err != nil {
			return nil, fatal("token to piece", err)
		}
		raw.WriteString(piece)
		reply.Tokens++
		batch = []provider.Token{tok}
		r.deps.OnEvent(Event{Type: EventTypeContent, Content: piece, NPast: r.nPast})

		tail, err := provider.Detokenize(ctx, r.deps.Provider, r.transcript.Tail(turn.TailTokens))
		if err != nil {
			return nil, fatal("token to piece", err)
		}
		if ap, ok := r.detector.Check(tail + piece); ok {
			done = true
			reply.Stop = StopAntiprompt
			reply.Antiprompt = ap
			if r.similarity.NeedsSave() {
				r.needSave = true
			}
		} else if r.cfg.MaxTokens > 0 && reply.Tokens >= r.cfg.MaxTokens {
			done = true
			reply.Stop = StopMaxTokens
		}
	}

	reply.Raw = raw.String()
	reply.Text = raw.String()
	if reply.Antiprompt != "" {
		reply.Text = r.detector.Strip(reply.Text, reply.Antiprompt)
	}
	reply.Text = strings.TrimSpace(reply.Text)

	r.logger.Debug().
		Int("n_past", r.nPast).
		Int("tokens", reply.Tokens).
		Str("stop", string(reply.Stop)).
		Msg("turn done")
	r.deps.OnEvent(Event{Type: EventTypeTurnDone, NPast: r.nPast, Reply: reply})
	return reply, nil
}

// evaluate makes room for batch, skips whatever prefix the session cache
// already covers, evaluates the rest and appends it to the transcript.
func (r *Runner) evaluate(ctx context.Context, batch []provider.Token, reply *Reply) error {
	res, err := r.window.EnsureCapacity(r.transcript, r.nPast, batch)
	if err != nil {
		return fatal("ensure capacity", err)
	}
	if res.Compacted {
		r.compacted = true
		reply.Compacted = true
		r.cache.Disable()
		r.logger.Info().
			Int("n_keep", res.NPast).
			Int("resurfaced", res.Resurfaced).
			Int("batch", len(res.Batch)).
			Msg("context full, compacted transcript; session cache disabled")
		r.deps.OnEvent(Event{Type: EventTypeCompacted, NPast: res.NPast})
	}
	batch, r.nPast = res.Batch, res.NPast

	if n := r.cache.Reuse(batch); n > 0 {
		// The logits of the last token are needed, so it is evaluated again.
		if n == len(batch) {
			r.cache.Rewind(1)
			n--
		}
		r.transcript.Append(batch[:n]...)
		r.nPast += n
		batch = batch[n:]
	}
	r.cache.Record(batch...)

	logits, err := r.deps.Provider.Evaluate(ctx, batch, r.nPast)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if provider.IsContextWindowExceeded(err) {
			return fatal("evaluate", fmt.Errorf("%w (n_past %d, batch %d, window %d): %w",
				ErrWindowMismatch, r.nPast, len(batch), r.window.Capacity(), err))
		}
		return fatal("evaluate", err)
	}
	r.logits = logits
	r.transcript.Append(batch...)
	r.nPast += len(batch)
	return nil
}

// saveCache writes the cached tokens together with the evaluator state.
// Failures are logged; the conversation goes on.
func (r *Runner) saveCache(ctx context.Context) {
	store := r.deps.Cache
	if store == nil {
		return
	}

	start := time.Now()
	rec := &sessioncache.Record{
		Tokens:  r.cache.Tokens(),
		Model:   r.info.Model,
		SavedAt: start.UTC(),
	}
	if snap, ok := r.deps.Provider.(provider.Snapshotter); ok {
		state, err := snap.Snapshot(ctx)
		switch {
		case err == nil:
			rec.State = state
		case provider.ErrorCodeOf(err) == provider.ErrCodeStateUnsupported:
		default:
			r.logger.Warn().Err(minor("snapshot", err)).Msg("saving session without evaluator state")
		}
	}

	if err := store.Save(rec); err != nil {
		r.logger.Warn().Err(minor("save session", err)).Str("path", store.Path()).Msg("session save failed")
		return
	}
	r.logger.Debug().
		Str("path", store.Path()).
		Int("tokens", len(rec.Tokens)).
		Dur("elapsed", time.Since(start)).
		Msg("session saved")
	r.deps.OnEvent(Event{Type: EventTypeCacheSaved, NPast: r.nPast})
}

// Run loops listen → turn → speak → record until the context is cancelled,
// the listener runs dry or a fatal error occurs. Cancellation returns the
// context's error; exhausted input returns nil.
func (r *Runner) Run(ctx context.Context) error {
	if r.transcript == nil {
		return fatal("run", ErrNotStarted)
	}
	if r.deps.Listener == nil {
		return fatal("run", errors.New("no listener configured"))
	}
	r.deps.Listener.Reset()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		u, err := r.deps.Listener.Listen(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, listen.ErrNoSpeech):
			r.logger.Debug().Str("raw", u.Raw).Msg("nothing usable heard")
			r.deps.Listener.Reset()
			continue
		default:
			return fatal("listen", err)
		}

		reply, err := r.RunTurn(ctx, u.Text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if KindOf(err) == KindFatal {
				return err
			}
			r.logger.Info().Err(err).Msg("turn abandoned")
			r.deps.Listener.Reset()
			continue
		}

		r.speak(ctx, reply)
		r.record(ctx, u, reply)
		r.deps.Listener.Reset()
	}
}

func (r *Runner) speak(ctx context.Context, reply *Reply) {
	text := turn.Speakable(reply.Text)
	if text == "" {
		return
	}
	status, err := r.deps.Synthesizer.Speak(ctx, r.cfg.VoiceID, text)
	if err != nil {
		r.logger.Warn().Err(minor("speak", err)).Msg("failed to speak")
		return
	}
	if status != 0 {
		r.logger.Warn().Int("status", status).Msg("failed to speak")
	}
}

// Transcript returns a copy of the transcript tokens.
func (r *Runner) Transcript() []provider.Token {
	if r.transcript == nil {
		return nil
	}
	return r.transcript.Tokens()
}

// NPast returns the evaluation cursor.
func (r *Runner) NPast() int { return r.nPast }

// NKeep returns the preamble length.
func (r *Runner) NKeep() int {
	if r.transcript == nil {
		return 0
	}
	return r.transcript.NKeep()
}

// Similarity returns how much of the preamble the loaded session covered.
func (r *Runner) Similarity() sessioncache.Similarity { return r.similarity }

// Compacted reports whether a context overflow happened in this run.
func (r *Runner) Compacted() bool { return r.compacted }

// Info returns the evaluator's model metadata, valid after Start.
func (r *Runner) Info() provider.ModelInfo { return r.info }
