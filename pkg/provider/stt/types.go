package stt

import (
	"strings"
	"time"
)

// Transcript is one recognition result. Partials and finals share the type.
type Transcript struct {
	Text       string
	IsFinal    bool
	Confidence float64

	// Words is nil for providers without word-level output.
	Words []WordDetail

	// Start is the utterance offset from session start.
	Start    time.Duration
	Duration time.Duration

	// Seq numbers results in the order the provider produced them, across
	// both streams of a session, starting at 1. Zero means unknown.
	Seq uint64
}

// WordDetail holds per-word timing.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost raises the recognition probability of a term.
type KeywordBoost struct {
	Keyword string

	// Boost is provider-specific; Deepgram accepts roughly -10 to 10.
	Boost float64
}

// KeywordsFromStack splits a free-form tech stack ("Go, PostgreSQL / Redis")
// into keyword boosts. Duplicates are dropped case-insensitively.
func KeywordsFromStack(stack string, boost float64) []KeywordBoost {
	fields := strings.FieldsFunc(stack, func(r rune) bool {
		switch r {
		case ',', ';', '/', '|', '\n':
			return true
		}
		return false
	})
	seen := make(map[string]bool, len(fields))
	var out []KeywordBoost
	for _, f := range fields {
		f = strings.TrimSpace(f)
		key := strings.ToLower(f)
		if f == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, KeywordBoost{Keyword: f, Boost: boost})
	}
	return out
}
