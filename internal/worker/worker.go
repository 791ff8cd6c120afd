// Package worker provides a NATS worker that processes synthesis jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kokoro-voice/kokoro-service/internal/audio"
	"github.com/kokoro-voice/kokoro-service/internal/core"
	"github.com/kokoro-voice/kokoro-service/internal/events"
	"github.com/kokoro-voice/kokoro-service/internal/synth"
	"github.com/kokoro-voice/kokoro-service/internal/voice"
)

const handleMessageTimeout = 120 * time.Second

// Static errors.
var (
	// ErrVoiceEmpty indicates that the requested voice name is empty.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
	// ErrTextKeyEmpty indicates that the event has no text object key.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
)

// NatsWorker listens for synthesis jobs on a NATS subject, renders them, and
// replies with the key of the uploaded WAV object.
type NatsWorker struct {
	natsConnection   *nats.Conn
	jetstreamContext nats.JetStreamContext
	subject          string
	store            core.ObjectStore
	voices           *voice.Store
	engine           *synth.Engine
	log              *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	jetstreamContext nats.JetStreamContext,
	subject string,
	store core.ObjectStore,
	voices *voice.Store,
	engine *synth.Engine,
	log *logger.Logger,
) (*NatsWorker, error) {
	return &NatsWorker{
		natsConnection:   natsConnection,
		jetstreamContext: jetstreamContext,
		subject:          subject,
		store:            store,
		voices:           voices,
		engine:           engine,
		log:              log,
	}, nil
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	reply, processErr := w.processSynthesisJob(ctx, event)
	if processErr != nil {
		w.log.Error(
			"Failed to process synthesis job for workflow %s: %v",
			event.Header.WorkflowID, processErr,
		)

		return
	}

	err = w.publishReplyEvent(msg, reply)
	if err != nil {
		w.log.Error(
			"Failed to publish reply event for workflow %s: %v",
			event.Header.WorkflowID, err,
		)
	}
}

// processSynthesisJob downloads the text, renders it with the requested
// voice, and uploads the encoded WAV under a fresh key.
func (w *NatsWorker) processSynthesisJob(
	ctx context.Context,
	event *events.SynthesisRequestedEvent,
) (*events.AudioCreatedEvent, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to download text data for key '%s': %w", event.TextKey, err,
		)
	}

	vector, err := w.voices.Load(event.Voice)
	if err != nil {
		return nil, fmt.Errorf("failed to load voice '%s': %w", event.Voice, err)
	}

	lang, err := w.resolveLanguage(event, vector)
	if err != nil {
		return nil, err
	}

	result, err := w.engine.SynthesizeLong(ctx, string(textData), vector, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	wavData, err := audio.EncodeWAV(result.Samples, result.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audio: %w", err)
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.store.Upload(ctx, audioKey, wavData)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to upload audio data for key '%s': %w", audioKey, err,
		)
	}

	return &events.AudioCreatedEvent{
		Header:          event.Header,
		AudioKey:        audioKey,
		SampleRate:      result.SampleRate,
		DurationSeconds: audio.Duration(len(result.Samples), result.SampleRate),
		Phonemes:        result.Phonemes,
	}, nil
}

// resolveLanguage returns the event's language tag, defaulting to the
// voice's own accent when the event leaves it empty.
func (w *NatsWorker) resolveLanguage(
	event *events.SynthesisRequestedEvent,
	vector core.VoiceVector,
) (core.Language, error) {
	if event.Language == "" {
		lang, err := core.LanguageForAccent(vector.Accent)
		if err != nil {
			return "", fmt.Errorf("failed to resolve language for voice '%s': %w", event.Voice, err)
		}

		return lang, nil
	}

	lang, err := core.ParseLanguage(event.Language)
	if err != nil {
		return "", err
	}

	return lang, nil
}

// publishReplyEvent marshals and responds with the AudioCreatedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*events.SynthesisRequestedEvent, error) {
	var event events.SynthesisRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	if event.Voice == "" {
		return nil, ErrVoiceEmpty
	}

	return &event, nil
}
