package prompt

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Vars are the values substituted into a template.
type Vars struct {
	Person     string
	BotName    string
	ChatSymbol string
	Now        time.Time
}

// Builder renders the dialogue preamble and the transcription hint.
type Builder struct {
	vars     Vars
	template string
}

// NewBuilder uses the default dialogue template.
func NewBuilder(vars Vars) *Builder {
	if vars.Now.IsZero() {
		vars.Now = time.Now()
	}
	return &Builder{vars: vars, template: DefaultDialogueTemplate}
}

// WithTemplate replaces the dialogue template.
func (b *Builder) WithTemplate(tmpl string) *Builder {
	b.template = tmpl
	return b
}

// LoadTemplate reads a custom dialogue template from path. A single trailing
// newline is removed so the preamble ends right after the person's name.
func (b *Builder) LoadTemplate(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPromptFile, path, err)
	}
	tmpl := string(data)
	tmpl = strings.TrimSuffix(tmpl, "\n")
	tmpl = strings.TrimSuffix(tmpl, "\r")
	b.template = tmpl
	return nil
}

// Dialogue renders the preamble. The model expects a leading space.
func (b *Builder) Dialogue() (string, error) {
	out := " " + b.substitute(b.template)
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyPrompt
	}
	return out, nil
}

// Whisper renders the hint given to the speech recognizer.
func (b *Builder) Whisper() string {
	return b.substitute(DefaultWhisperTemplate)
}

// Antiprompt is the default end-of-turn marker: the person's name followed by
// the chat symbol.
func (b *Builder) Antiprompt() string {
	return b.vars.Person + b.vars.ChatSymbol
}

// UserTurn frames heard text as the person's line followed by the bot's cue.
func (b *Builder) UserTurn(text string) string {
	return " " + text + "\n" + b.vars.BotName + b.vars.ChatSymbol
}

func (b *Builder) substitute(tmpl string) string {
	r := strings.NewReplacer(
		"{0}", b.vars.Person,
		"{1}", b.vars.BotName,
		"{2}", b.vars.Now.Format("15:04"),
		"{3}", b.vars.Now.Format("2006"),
		"{4}", b.vars.ChatSymbol,
	)
	return r.Replace(tmpl)
}
