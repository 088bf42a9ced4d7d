package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"parley/internal/gateway"
	"parley/internal/provider/scripted"
	"parley/pkg/logger"

	"github.com/spf13/cobra"
)

// EvaluatorOptions evaluator 命令选项
type EvaluatorOptions struct {
	Listen      string
	Path        string
	ContextSize int
	Trigger     string
	Replies     []string
}

// NewEvaluatorCmd 创建 evaluator 命令
func NewEvaluatorCmd() *cobra.Command {
	opts := &EvaluatorOptions{}

	cmd := &cobra.Command{
		Use:   "evaluator",
		Short: "Serve a scripted model over the evaluator protocol",
		Long: `Serve a deterministic byte-level model on the evaluator websocket.
Each time the evaluated text ends with the trigger the next canned reply is
generated, which makes it possible to exercise 'parley talk' end to end
without a real model.`,
		Example: `  # Terminal 1
  parley evaluator --reply " Hello Georgi." --reply " Goodbye."

  # Terminal 2
  parley talk --text --no-speak`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Trigger == "" {
				if cliCtx := GetCLIContext(cmd); cliCtx != nil {
					opts.Trigger = cliCtx.Config.Dialogue.BotName + cliCtx.Config.Dialogue.ChatSymbol
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return RunEvaluator(ctx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Listen, "listen", "127.0.0.1:8765", "listen address")
	f.StringVar(&opts.Path, "path", gateway.DefaultEvalPath, "websocket route")
	f.IntVar(&opts.ContextSize, "ctx-size", 2048, "context window in tokens")
	f.StringVar(&opts.Trigger, "trigger", "", "text that starts a reply (default bot name + chat symbol)")
	f.StringArrayVar(&opts.Replies, "reply", nil, "canned reply, repeatable")

	return cmd
}

// RunEvaluator 运行网关直到 ctx 取消
func RunEvaluator(ctx context.Context, opts *EvaluatorOptions) error {
	log := logger.Component("evaluator")
	model := scripted.New(opts.ContextSize, opts.Trigger, opts.Replies...)
	srv := gateway.NewServer(gateway.Config{Addr: opts.Listen, EvalPath: opts.Path}, model, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	log.Info().
		Str("addr", opts.Listen).
		Str("path", opts.Path).
		Str("trigger", opts.Trigger).
		Int("replies", len(opts.Replies)).
		Msg("evaluator started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("evaluator stopped")
	return nil
}
