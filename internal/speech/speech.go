// Package speech hands the bot's reply to a text-to-speech program.
package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Synthesizer speaks text with a voice. A non-zero exit status is reported
// without an error; err is reserved for failing to run at all.
type Synthesizer interface {
	Speak(ctx context.Context, voiceID int, text string) (exitStatus int, err error)
}

// Command runs `<path> <voice id> <text>` without a shell.
type Command struct {
	path    string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewCommand creates a synthesizer for the program at path.
func NewCommand(path string, timeout time.Duration, logger zerolog.Logger) *Command {
	return &Command{path: path, timeout: timeout, logger: logger}
}

// Speak blocks until the program exits.
func (c *Command) Speak(ctx context.Context, voiceID int, text string) (int, error) {
	text = strings.ReplaceAll(text, `"`, "")
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, c.path, strconv.Itoa(voiceID), text)
	out, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		c.logger.Debug().Bytes("output", out).Int("status", exitErr.ExitCode()).Msg("speak command failed")
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, fmt.Errorf("speech: run %s: %w", c.path, err)
	}
	c.logger.Debug().Dur("duration", time.Since(start)).Int("chars", len(text)).Msg("spoke")
	return 0, nil
}

// Silent discards everything; used when speech output is disabled.
type Silent struct{}

// Speak does nothing.
func (Silent) Speak(context.Context, int, string) (int, error) { return 0, nil }
