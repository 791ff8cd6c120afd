// Package events defines the message payloads exchanged over NATS by the
// synthesis service.
package events

import "time"

// EventHeader carries the identifiers every pipeline event shares.
type EventHeader struct {
	WorkflowID string    `json:"workflow_id"`
	EventID    string    `json:"event_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// SynthesisRequestedEvent asks the service to render one text blob. TextKey
// addresses the text in the object store; Voice names a vector in the voice
// store; Language must agree with the voice's accent.
type SynthesisRequestedEvent struct {
	Header   EventHeader `json:"header"`
	TextKey  string      `json:"text_key"`
	Voice    string      `json:"voice"`
	Language string      `json:"language"`
}

// AudioCreatedEvent is the reply once the rendered WAV has been uploaded.
type AudioCreatedEvent struct {
	Header          EventHeader `json:"header"`
	AudioKey        string      `json:"audio_key"`
	SampleRate      int         `json:"sample_rate"`
	DurationSeconds float64     `json:"duration_seconds"`
	Phonemes        []string    `json:"phonemes,omitempty"`
}
