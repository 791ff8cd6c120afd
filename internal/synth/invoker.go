// Package synth validates and dispatches generation requests to an acoustic
// model backend.
package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/book-expert/logger"

	"github.com/kokoro-voice/kokoro-service/internal/core"
)

// Error message formats.
const (
	errFmtEmptyText      = "%w: text is empty"
	errFmtEmptyVoice     = "%w: voice %q carries no style data"
	errFmtAccentMismatch = "%w: voice %q has accent %q, language tag %q requires %q"
	errFmtSynthesis      = "synthesis failed for voice %q: %w"
)

// Invoker validates a generation request and delegates it to the acoustic
// model. It holds no mutable state across calls; the failure taxonomy is
// enforced here so the backend never sees a partially invalid request.
type Invoker struct {
	log *logger.Logger
}

// NewInvoker creates a synthesis invoker.
func NewInvoker(log *logger.Logger) *Invoker {
	return &Invoker{log: log}
}

// Generate checks the request against the input contract and dispatches it.
//
// It fails with core.ErrInvalidArgument when text trims to nothing, and with
// core.ErrAccentMismatch when the language tag's accent does not match the
// voice's stored accent ("don't use British voices with the American tag or
// vice versa"). On success the model output is returned unchanged.
func (i *Invoker) Generate(
	ctx context.Context,
	model core.AcousticModel,
	text string,
	voice core.VoiceVector,
	lang core.Language,
) (*core.GenerationResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf(errFmtEmptyText, core.ErrInvalidArgument)
	}

	if voice.Dimensionality() == 0 {
		return nil, fmt.Errorf(errFmtEmptyVoice, core.ErrInvalidArgument, voice.Name)
	}

	if lang.Accent() != voice.Accent {
		return nil, fmt.Errorf(
			errFmtAccentMismatch,
			core.ErrAccentMismatch,
			voice.Name,
			voice.Accent.String(),
			lang,
			lang.Accent().String(),
		)
	}

	result, err := model.Synthesize(ctx, trimmed, voice.Data, lang)
	if err != nil {
		return nil, fmt.Errorf(errFmtSynthesis, voice.Name, err)
	}

	i.log.Info(
		"Generated %d samples (%d phonemes) with voice %s",
		len(result.Samples), len(result.Phonemes), voice.Name,
	)

	return result, nil
}
