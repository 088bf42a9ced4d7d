// Package turn decides when the model has finished speaking.
package turn

import "strings"

// TailTokens is how many trailing transcript tokens, plus the newly sampled
// one, are decoded when looking for an antiprompt.
const TailTokens = 16

// Detector matches antiprompts against the end of the decoded transcript.
type Detector struct {
	antiprompts []string
}

// NewDetector keeps antiprompts in order, dropping empty and duplicate
// entries.
func NewDetector(antiprompts ...string) *Detector {
	seen := make(map[string]bool, len(antiprompts))
	d := &Detector{}
	for _, a := range antiprompts {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		d.antiprompts = append(d.antiprompts, a)
	}
	return d
}

// Antiprompts returns the configured antiprompts.
func (d *Detector) Antiprompts() []string {
	return append([]string(nil), d.antiprompts...)
}

// Check returns the first antiprompt that tail ends with.
func (d *Detector) Check(tail string) (string, bool) {
	for _, a := range d.antiprompts {
		if strings.HasSuffix(tail, a) {
			return a, true
		}
	}
	return "", false
}

// Strip removes every occurrence of antiprompt from text.
func (d *Detector) Strip(text, antiprompt string) string {
	if antiprompt == "" {
		return text
	}
	return strings.ReplaceAll(text, antiprompt, "")
}

// Speakable prepares generated text for the synthesizer; double quotes would
// break the external speak command's argument.
func Speakable(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, `"`, ""))
}
