// Package core defines the shared types, interfaces, and error taxonomy for
// the kokoro-service voice pipeline.
package core

import (
	"context"
	"fmt"
)

// SampleRate is the fixed output sample rate of the acoustic model, in Hz.
// All generated audio is mono at this rate.
const SampleRate = 24000

// Accent is the coarse voice classifier encoded as the one-letter Kokoro
// language code.
type Accent byte

// Known accent codes.
const (
	AccentAmerican Accent = 'a'
	AccentBritish  Accent = 'b'
)

// String returns the accent code as a one-letter string.
func (a Accent) String() string {
	return string(rune(a))
}

// Language is the tag passed to generation. It must agree with the accent of
// the voice vector used.
type Language string

// Supported language tags.
const (
	LanguageAmerican Language = "american"
	LanguageBritish  Language = "british"
)

// ParseLanguage converts a user-supplied tag into a Language.
func ParseLanguage(tag string) (Language, error) {
	switch Language(tag) {
	case LanguageAmerican:
		return LanguageAmerican, nil
	case LanguageBritish:
		return LanguageBritish, nil
	default:
		return "", fmt.Errorf("%w: unknown language tag %q", ErrInvalidArgument, tag)
	}
}

// LanguageForAccent returns the language tag matching an accent code.
func LanguageForAccent(accent Accent) (Language, error) {
	switch accent {
	case AccentAmerican:
		return LanguageAmerican, nil
	case AccentBritish:
		return LanguageBritish, nil
	default:
		return "", fmt.Errorf("%w: unknown accent code %q", ErrInvalidArgument, accent.String())
	}
}

// Accent returns the accent code the language tag corresponds to.
func (l Language) Accent() Accent {
	if l == LanguageBritish {
		return AccentBritish
	}

	return AccentAmerican
}

// Code returns the one-letter wire code the acoustic model expects.
func (l Language) Code() string {
	return l.Accent().String()
}

// VoiceVector is a named style embedding. The accent is stored explicitly at
// load time rather than re-derived from the name, so a mixed voice saved
// under an arbitrary name keeps its classification.
type VoiceVector struct {
	Name   string
	Accent Accent
	Data   []float32
}

// Dimensionality returns the length of the style embedding.
func (v VoiceVector) Dimensionality() int {
	return len(v.Data)
}

// GenerationResult is the acoustic model's output: the raw mono sample
// buffer and the ordered phoneme trace actually synthesized. Ownership
// transfers to the caller; no state is retained between calls.
type GenerationResult struct {
	Samples    []float32
	Phonemes   []string
	SampleRate int
}

// AcousticModel is the opaque external collaborator that turns text plus a
// style vector into audio. Implementations are constructed once and treated
// as immutable afterwards. Concurrent Synthesize calls against a single
// instance require external serialization unless the backend documents
// otherwise.
type AcousticModel interface {
	Synthesize(
		ctx context.Context,
		text string,
		style []float32,
		lang Language,
	) (*GenerationResult, error)
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}
