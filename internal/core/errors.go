package core

import "errors"

// Failure taxonomy shared by every component. These are deterministic input
// errors: callers surface them immediately, no retry is attempted anywhere.
var (
	// ErrVoiceNotFound indicates that no voice file exists for the requested name.
	ErrVoiceNotFound = errors.New("voice not found")
	// ErrShapeMismatch indicates a dimensionality disagreement among style vectors.
	ErrShapeMismatch = errors.New("style vector shape mismatch")
	// ErrInvalidArgument indicates empty text, an empty mix, or invalid mix weights.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAccentMismatch indicates a language tag inconsistent with the voice accent.
	ErrAccentMismatch = errors.New("accent mismatch")
)
