package answer

import "strings"

// Transcript accumulates recognised speech. Finals are append-only and joined
// by a single space; the interim segment is replaced by every partial.
//
// Transcript is not safe for concurrent use; [Attempt] guards it.
type Transcript struct {
	finals  []string
	interim string
}

// AddFinal appends a committed segment and clears the interim text. Blank
// segments are ignored.
func (t *Transcript) AddFinal(text string) {
	text = strings.TrimSpace(text)
	t.interim = ""
	if text == "" {
		return
	}
	t.finals = append(t.finals, text)
}

// SetInterim replaces the interim segment.
func (t *Transcript) SetInterim(text string) {
	t.interim = strings.TrimSpace(text)
}

// Final returns the committed segments joined by a single space.
func (t *Transcript) Final() string {
	return strings.Join(t.finals, " ")
}

// Interim returns the current interim segment.
func (t *Transcript) Interim() string { return t.interim }

// Answer is the derived user answer: the final text followed by the interim
// segment when there is one.
func (t *Transcript) Answer() string {
	if t.interim == "" {
		return t.Final()
	}
	return t.Final() + " " + t.interim
}

// Reset empties the transcript.
func (t *Transcript) Reset() {
	t.finals = nil
	t.interim = ""
}
