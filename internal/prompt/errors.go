// Package prompt renders the conversation preamble and the transcription
// hint from their templates.
package prompt

import "errors"

// Prompt errors.
var (
	// ErrPromptFile indicates that a custom prompt file could not be read.
	ErrPromptFile = errors.New("prompt: cannot read prompt file")

	// ErrEmptyPrompt indicates a template that renders to nothing.
	ErrEmptyPrompt = errors.New("prompt: rendered prompt is empty")
)
