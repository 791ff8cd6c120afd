// Package text prepares input text for synthesis: light normalization and
// sentence-aware chunking of long inputs so each generation call stays
// within the model's comfortable window.
package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkChars is the target chunk size for long-text synthesis.
const DefaultChunkChars = 200

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// quoteAndDashReplacer folds typographic quotes and dashes into their ASCII
// forms the phonemizer handles predictably.
var quoteAndDashReplacer = strings.NewReplacer(
	emDash, "-",
	enDash, "-",
	figureDash, "-",
	ellipsisChar, ellipsis,
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
)

// Normalize collapses whitespace, folds typographic punctuation, and ensures
// the text ends with a sentence terminator. Empty input stays empty.
func Normalize(input string) string {
	normalized := whitespacePattern.ReplaceAllString(input, " ")
	normalized = quoteAndDashReplacer.Replace(normalized)
	normalized = strings.TrimSpace(normalized)

	if normalized == "" {
		return ""
	}

	return ensureSentenceEnding(normalized)
}

// Chunk splits normalized text into pieces of at most maxChars characters,
// preferring sentence boundaries and falling back to word boundaries for
// oversized sentences. Chunks preserve input order. The budget counts runes,
// not bytes, so multibyte text fills chunks the same as ASCII.
func Chunk(input string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkChars
	}

	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}

	var (
		chunks       []string
		current      strings.Builder
		currentRunes int
	)

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()

			currentRunes = 0
		}
	}

	for _, sentence := range splitSentences(trimmed) {
		sentenceRunes := utf8.RuneCountInString(sentence)

		if sentenceRunes > maxChars {
			flush()

			chunks = append(chunks, splitWords(sentence, maxChars)...)

			continue
		}

		if currentRunes > 0 && currentRunes+1+sentenceRunes > maxChars {
			flush()
		}

		if current.Len() > 0 {
			current.WriteByte(' ')

			currentRunes++
		}

		current.WriteString(sentence)

		currentRunes += sentenceRunes
	}

	flush()

	return chunks
}

// splitSentences cuts text after sentence-ending punctuation.
func splitSentences(input string) []string {
	var (
		sentences []string
		start     int
	)

	for i, r := range input {
		if r == '.' || r == '!' || r == '?' {
			end := i + utf8.RuneLen(r)

			sentence := strings.TrimSpace(input[start:end])
			if sentence != "" {
				sentences = append(sentences, sentence)
			}

			start = end
		}
	}

	tail := strings.TrimSpace(input[start:])
	if tail != "" {
		sentences = append(sentences, tail)
	}

	return sentences
}

// splitWords packs words into chunks of at most maxChars runes, letting a
// single oversized word through rather than cutting it mid-rune.
func splitWords(sentence string, maxChars int) []string {
	var (
		chunks       []string
		current      strings.Builder
		currentRunes int
	)

	for _, word := range strings.Fields(sentence) {
		wordRunes := utf8.RuneCountInString(word)

		if currentRunes > 0 && currentRunes+1+wordRunes > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()

			currentRunes = 0
		}

		if current.Len() > 0 {
			current.WriteByte(' ')

			currentRunes++
		}

		current.WriteString(word)

		currentRunes += wordRunes
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

func ensureSentenceEnding(input string) string {
	lastChar, _ := utf8.DecodeLastRuneInString(input)

	switch lastChar {
	case '.', '!', '?':
		return input
	}

	if unicode.IsPunct(lastChar) {
		return input
	}

	return input + "."
}
