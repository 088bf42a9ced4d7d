package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"parley/internal/audio"
	"parley/internal/config"
	"parley/internal/listen"
	"parley/internal/prompt"
	"parley/internal/provider"
	_ "parley/internal/provider/remote"
	"parley/internal/runner"
	"parley/internal/sampling"
	"parley/internal/sessioncache"
	"parley/internal/speech"
	"parley/internal/storage"
	"parley/internal/transcribe"
	"parley/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// TalkOptions talk 命令选项，零值表示沿用配置文件
type TalkOptions struct {
	Text          bool
	Endpoint      string
	Person        string
	BotName       string
	PromptFile    string
	SessionPath   string
	NoSession     bool
	NoSpeak       bool
	NoHistory     bool
	VerbosePrompt bool
	ContextSize   int
	MaxTokens     int
	Temperature   float64
	Seed          uint64
	Capture       string
}

// NewTalkCmd 创建 talk 命令
func NewTalkCmd() *cobra.Command {
	opts := &TalkOptions{}

	cmd := &cobra.Command{
		Use:   "talk",
		Short: "Start a conversation with the model",
		Long: `Start a spoken conversation. Parley listens for speech, transcribes it,
lets the model answer and speaks the answer back until interrupted.

With --text, lines read from standard input replace the microphone and
the conversation ends at end of input.`,
		Example: `  # Talk through the configured capture command and speech script
  parley talk

  # Type instead of speaking, no speech output
  parley talk --text --no-speak

  # Use another evaluator and a fresh session cache
  parley talk --model ws://gpu-box:8765/v1/eval --session /tmp/s.bin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return errors.New("configuration not loaded")
			}
			applyTalkFlags(cmd, cliCtx.Config, opts)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err := RunTalk(ctx, cliCtx, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			}
			return err
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.Text, "text", false, "read the person's lines from stdin instead of the microphone")
	f.StringVarP(&opts.Endpoint, "model", "m", "", "evaluator endpoint")
	f.StringVarP(&opts.Person, "person", "p", "", "name of the person talking")
	f.StringVar(&opts.BotName, "bot-name", "", "name of the model in the dialogue")
	f.StringVar(&opts.PromptFile, "prompt-file", "", "dialogue template file")
	f.StringVar(&opts.SessionPath, "session", "", "session cache file")
	f.BoolVar(&opts.NoSession, "no-session", false, "disable the session cache")
	f.BoolVar(&opts.NoSpeak, "no-speak", false, "do not speak replies")
	f.BoolVar(&opts.NoHistory, "no-history", false, "do not record the conversation")
	f.BoolVar(&opts.VerbosePrompt, "verbose-prompt", false, "print the rendered prompt")
	f.IntVar(&opts.ContextSize, "ctx-size", 0, "context window in tokens")
	f.IntVar(&opts.MaxTokens, "max-tokens", 0, "maximum tokens per reply, 0 for unlimited")
	f.Float64Var(&opts.Temperature, "temp", 0, "sampling temperature")
	f.Uint64Var(&opts.Seed, "seed", 0, "sampling seed")
	f.StringVar(&opts.Capture, "capture", "", "command producing 16-bit mono PCM on stdout")

	return cmd
}

// applyTalkFlags 只覆盖用户显式设置的标志
func applyTalkFlags(cmd *cobra.Command, cfg *config.Config, opts *TalkOptions) {
	f := cmd.Flags()
	if f.Changed("model") {
		cfg.Model.Endpoint = opts.Endpoint
	}
	if f.Changed("person") {
		cfg.Dialogue.Person = opts.Person
	}
	if f.Changed("bot-name") {
		cfg.Dialogue.BotName = opts.BotName
	}
	if f.Changed("prompt-file") {
		cfg.Dialogue.PromptFile = opts.PromptFile
	}
	if f.Changed("session") {
		cfg.Dialogue.SessionPath = opts.SessionPath
	}
	if opts.NoSession {
		cfg.Dialogue.SessionPath = ""
	}
	if opts.NoSpeak {
		cfg.Speech.Enabled = false
	}
	if opts.NoHistory {
		cfg.Storage.Enabled = false
	}
	if f.Changed("verbose-prompt") {
		cfg.Dialogue.VerbosePrompt = opts.VerbosePrompt
	}
	if f.Changed("ctx-size") {
		cfg.Model.ContextSize = opts.ContextSize
	}
	if f.Changed("max-tokens") {
		cfg.Dialogue.MaxTokens = opts.MaxTokens
	}
	if f.Changed("temp") {
		cfg.Sampling.Temperature = opts.Temperature
	}
	if f.Changed("seed") {
		cfg.Sampling.Seed = opts.Seed
	}
	if f.Changed("capture") {
		cfg.Audio.CaptureCommand = strings.Fields(opts.Capture)
	}
}

// RunTalk 组装各组件并运行对话，直到输入结束、ctx 取消或出现致命错误
func RunTalk(ctx context.Context, cliCtx *CLIContext, in io.Reader, out io.Writer, opts *TalkOptions) error {
	cfg := cliCtx.Config
	log := logger.Component("talk")

	p, err := provider.Open(cfg.Model.Endpoint, provider.Options{
		Timeout:     cfg.Model.Timeout,
		ContextSize: cfg.Model.ContextSize,
	})
	if err != nil {
		return fmt.Errorf("open evaluator: %w", err)
	}
	if c, ok := p.(provider.Closer); ok {
		defer c.Close()
	}

	builder := prompt.NewBuilder(prompt.Vars{
		Person:     cfg.Dialogue.Person,
		BotName:    cfg.Dialogue.BotName,
		ChatSymbol: cfg.Dialogue.ChatSymbol,
		Now:        time.Now(),
	})
	if cfg.Dialogue.PromptFile != "" {
		path, err := config.ExpandPath(cfg.Dialogue.PromptFile)
		if err != nil {
			return err
		}
		if err := builder.LoadTemplate(path); err != nil {
			return err
		}
	}

	listener, err := newListener(ctx, cfg, builder, in, opts.Text, log)
	if err != nil {
		return err
	}

	var synth speech.Synthesizer = speech.Silent{}
	if cfg.Speech.Enabled {
		synth = speech.NewCommand(cfg.Speech.Command, cfg.Speech.Timeout, logger.Component("speech"))
	}

	store, closeStore, err := newSessionStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	deps := runner.Deps{
		Provider:    p,
		Prompt:      builder,
		Listener:    listener,
		Synthesizer: synth,
		Cache:       store,
		Logger:      logger.Component("runner"),
	}

	var db *storage.DB
	var dialogueID string
	if cfg.Storage.Enabled {
		db, err = cliCtx.GetStorage()
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		d, err := db.CreateDialogue(ctx, storage.NewDialogue{
			Person:      cfg.Dialogue.Person,
			BotName:     cfg.Dialogue.BotName,
			Model:       cfg.Model.Endpoint,
			SessionPath: cfg.Dialogue.SessionPath,
		})
		if err != nil {
			return fmt.Errorf("create dialogue: %w", err)
		}
		dialogueID = d.ID
		deps.History = db
		deps.DialogueID = dialogueID
		defer func() {
			if err := db.EndDialogue(context.Background(), dialogueID); err != nil {
				log.Warn().Err(err).Str("dialogue", dialogueID).Msg("failed to close dialogue")
			}
		}()
	}

	// 终端上手动输入的文本已经回显，无需再打印
	echo := !opts.Text || !isTerminal(in)
	printer := newTalkPrinter(out, builder, cfg.Dialogue.VerbosePrompt, echo)
	deps.OnEvent = printer.handle

	r := runner.New(talkRunnerConfig(cfg), deps)
	if err := r.Start(ctx); err != nil {
		return err
	}

	if db != nil {
		if err := db.SetPromptStats(ctx, dialogueID, r.NKeep(), r.Similarity().Matched); err != nil {
			log.Warn().Err(err).Msg("failed to record prompt stats")
		}
	}

	return r.Run(ctx)
}

func talkRunnerConfig(cfg *config.Config) runner.Config {
	s := cfg.Sampling
	rc := runner.DefaultConfig().
		WithContextSize(cfg.Model.ContextSize).
		WithNPrev(cfg.Dialogue.NPrev).
		WithMaxTokens(cfg.Dialogue.MaxTokens).
		WithSampling(sampling.Config{
			TopK:             s.TopK,
			TopP:             s.TopP,
			Temperature:      s.Temperature,
			RepeatPenalty:    s.RepeatPenalty,
			RepeatLastN:      s.RepeatLastN,
			FrequencyPenalty: s.FrequencyPenalty,
			PresencePenalty:  s.PresencePenalty,
			PenalizeNewline:  s.PenalizeNewline,
			EOSLogit:         s.EOSLogit,
			Seed:             s.Seed,
		})
	rc.VoiceID = cfg.Speech.VoiceID
	rc.Antiprompts = cfg.Dialogue.Antiprompts
	return rc
}

func newListener(ctx context.Context, cfg *config.Config, builder *prompt.Builder, in io.Reader, text bool, log zerolog.Logger) (listen.Listener, error) {
	if text {
		return listen.NewLines(in), nil
	}

	a := cfg.Audio
	capture := audio.NewCapture(a.SampleRate, a.BufferMs)
	captureLog := logger.Component("audio")
	if len(a.CaptureCommand) > 0 {
		if err := capture.StartCommand(ctx, a.CaptureCommand, captureLog); err != nil {
			return nil, err
		}
	} else {
		log.Info().Int("sample_rate", a.SampleRate).Msg("reading PCM from stdin")
		capture.Start(ctx, in, captureLog)
	}

	whisper := transcribe.NewWhisperClient(transcribe.Config{
		Endpoint:   cfg.Whisper.Endpoint,
		Language:   cfg.Whisper.Language,
		Translate:  cfg.Whisper.Translate,
		MaxTokens:  cfg.Whisper.MaxTokens,
		AudioCtx:   cfg.Whisper.AudioCtx,
		SampleRate: a.SampleRate,
		Timeout:    cfg.Whisper.Timeout,
	})

	return listen.NewVoice(capture, whisper, listen.VoiceConfig{
		PollInterval: a.PollInterval,
		WindowMs:     a.WindowMs,
		VoiceMs:      a.VoiceMs,
		VAD: audio.VADConfig{
			LastMs:     a.LastMs,
			Threshold:  a.VadThold,
			FreqCutoff: a.FreqThold,
			Verbose:    a.PrintEnergy,
		},
		Prompt: builder.Whisper(),
	}, logger.Component("listen")), nil
}

// newSessionStore 返回 nil store 表示禁用会话缓存
func newSessionStore(cfg *config.Config, log zerolog.Logger) (*sessioncache.Store, func(), error) {
	noop := func() {}
	if cfg.Dialogue.SessionPath == "" {
		return nil, noop, nil
	}
	path, err := config.ExpandPath(cfg.Dialogue.SessionPath)
	if err != nil {
		return nil, noop, err
	}
	tag, err := sessioncache.ParseCompressionTag(cfg.Dialogue.Compression)
	if err != nil {
		return nil, noop, err
	}
	store := sessioncache.NewStore(path, tag)

	// 外部改写由 watcher 自己告警
	w, err := sessioncache.NewWatcher(path, nil, log)
	if err != nil {
		// 监听失败不影响缓存本身
		log.Warn().Err(err).Str("path", path).Msg("session cache watcher unavailable")
		return store, noop, nil
	}
	store.SetWatcher(w)
	return store, func() { w.Close() }, nil
}

// talkPrinter 把对话事件渲染到终端
type talkPrinter struct {
	out     io.Writer
	builder *prompt.Builder
	verbose bool
	echo    bool
	bold    bool
}

func newTalkPrinter(out io.Writer, builder *prompt.Builder, verbose, echo bool) *talkPrinter {
	return &talkPrinter{
		out:     out,
		builder: builder,
		verbose: verbose,
		echo:    echo,
		bold:    isTerminal(out),
	}
}

func (tp *talkPrinter) handle(ev runner.Event) {
	switch ev.Type {
	case runner.EventTypeReady:
		if tp.verbose {
			fmt.Fprintf(tp.out, "\n%s\n", ev.Content)
		}
		fmt.Fprint(tp.out, tp.builder.Antiprompt())
	case runner.EventTypeHeard:
		if !tp.echo {
			i := strings.LastIndexByte(ev.Content, '\n')
			fmt.Fprint(tp.out, ev.Content[i+1:])
			return
		}
		if tp.bold {
			fmt.Fprintf(tp.out, "\033[1m%s\033[0m", ev.Content)
		} else {
			fmt.Fprint(tp.out, ev.Content)
		}
	case runner.EventTypeContent:
		fmt.Fprint(tp.out, ev.Content)
	case runner.EventTypeTurnDone:
		if ev.Reply != nil && ev.Reply.Stop != runner.StopAntiprompt {
			fmt.Fprintf(tp.out, "\n%s", tp.builder.Antiprompt())
		}
	}
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
