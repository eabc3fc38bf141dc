// Package tokenutil provides best-effort token counting for diagnostic
// metadata — it is never consulted for correctness, only logged alongside
// round events so an operator can see how close a run is getting to a
// provider's context window.
package tokenutil

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

var encoding *tiktoken.Tiktoken

func init() {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err == nil {
		encoding = enc
	}
}

// CountTokens returns text's token count under cl100k_base, falling back to
// a words/runes heuristic if the encoding failed to load (e.g. no network
// access to fetch its vocabulary file at init time).
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return EstimateFast(text)
}

// EstimateFast is a pure heuristic (max of word count and runes/4) used
// when the real tokenizer is unavailable.
func EstimateFast(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	words := len(strings.Fields(trimmed))
	runeEstimate := len([]rune(trimmed)) / 4
	if words > runeEstimate {
		return words
	}
	return runeEstimate
}

// CountHistory sums CountTokens across every message's content, the
// diagnostic figure recorded on started/continue events.
func CountHistory(contents []string) int {
	total := 0
	for _, c := range contents {
		total += CountTokens(c)
	}
	return total
}
