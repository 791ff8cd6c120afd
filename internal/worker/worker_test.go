// Package worker_test tests the NATS synthesis worker.
package worker_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokoro-voice/kokoro-service/internal/audio"
	"github.com/kokoro-voice/kokoro-service/internal/core"
	"github.com/kokoro-voice/kokoro-service/internal/events"
	"github.com/kokoro-voice/kokoro-service/internal/synth"
	"github.com/kokoro-voice/kokoro-service/internal/voice"
	"github.com/kokoro-voice/kokoro-service/internal/worker"
)

const testSubject = "synthesis.requested.test"

var errMockDownload = errors.New("mock download error")

// mockObjectStore is a mock implementation of the ObjectStore interface.
type mockObjectStore struct {
	downloadShouldFail bool
	downloadedKey      string
	uploadedKey        string
	uploadedData       []byte
}

func (m *mockObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	if m.downloadShouldFail {
		return nil, errMockDownload
	}

	m.downloadedKey = key

	return []byte("Sample text for synthesis."), nil
}

func (m *mockObjectStore) Upload(_ context.Context, key string, data []byte) error {
	m.uploadedKey = key
	m.uploadedData = data

	return nil
}

// mockModel is a fixed-output acoustic model.
type mockModel struct {
	lang core.Language
}

func (m *mockModel) Synthesize(
	_ context.Context,
	_ string,
	_ []float32,
	lang core.Language,
) (*core.GenerationResult, error) {
	m.lang = lang

	return &core.GenerationResult{
		Samples:    []float32{0.1, -0.1, 0.2},
		Phonemes:   []string{"s", "æ"},
		SampleRate: core.SampleRate,
	}, nil
}

func createTestNatsClient(t *testing.T) (*nats.Conn, func()) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	cleanup := func() {
		server.Shutdown()
		natsConnection.Close()
	}

	return natsConnection, cleanup
}

func writeLegacyVoice(t *testing.T, dir, name string, data []float32) {
	t.Helper()

	raw := make([]byte, len(data)*4)
	for i, sample := range data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(sample))
	}

	err := os.WriteFile(filepath.Join(dir, name+".bin"), raw, 0o600)
	require.NoError(t, err)
}

func setupTest(t *testing.T) (
	*worker.NatsWorker,
	*mockObjectStore,
	*mockModel,
	context.Context,
	context.CancelFunc,
	*nats.Conn,
) {
	t.Helper()

	mockStore := &mockObjectStore{
		downloadShouldFail: false,
		downloadedKey:      "",
		uploadedKey:        "",
		uploadedData:       nil,
	}
	model := &mockModel{lang: ""}

	voicesDir := t.TempDir()
	writeLegacyVoice(t, voicesDir, "af_bella", []float32{0.5, -0.5})
	writeLegacyVoice(t, voicesDir, "bm_george", []float32{0.25, 0.75})

	natsConnection, natsCleanup := createTestNatsClient(t)
	t.Cleanup(natsCleanup)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	testLogger, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)

	engine := synth.NewEngine(model, 1, 200, testLogger)

	workerInstance, err := worker.NewNatsWorker(
		natsConnection,
		jetstreamContext,
		testSubject,
		mockStore,
		voice.NewStore(voicesDir),
		engine,
		testLogger,
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	return workerInstance, mockStore, model, ctx, cancel, natsConnection
}

// waitForSubscription blocks until the worker's subscription is registered
// with the server, so a following Request cannot race the subscribe.
func waitForSubscription(t *testing.T, natsConnection *nats.Conn) {
	t.Helper()

	require.Eventually(t, func() bool {
		return natsConnection.NumSubscriptions() > 0
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, natsConnection.Flush())
}

func newTestEvent(voiceName, language string) *events.SynthesisRequestedEvent {
	return &events.SynthesisRequestedEvent{
		Header: events.EventHeader{
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
			Timestamp:  time.Now(),
		},
		TextKey:  "test-text-key",
		Voice:    voiceName,
		Language: language,
	}
}

func TestMessageHandler_Success(t *testing.T) {
	t.Parallel()

	workerInstance, mockStore, model, ctx, cancel, natsConnection := setupTest(t)
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	waitForSubscription(t, natsConnection)

	testEvent := newTestEvent("af_bella", "")
	eventData, err := json.Marshal(testEvent)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request(testSubject, eventData, 5*time.Second)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var replyEvent events.AudioCreatedEvent

	err = json.Unmarshal(replyMsg.Data, &replyEvent)
	require.NoError(t, err)

	assert.Equal(t, "test-text-key", mockStore.downloadedKey)
	assert.NotEmpty(t, mockStore.uploadedKey, "An audio key should have been uploaded")
	assert.True(t, strings.HasSuffix(mockStore.uploadedKey, ".wav"))

	// An empty language tag defaults to the voice's own accent.
	assert.Equal(t, core.LanguageAmerican, model.lang)

	samples, sampleRate, err := audio.DecodeWAV(mockStore.uploadedData)
	require.NoError(t, err)
	assert.Equal(t, core.SampleRate, sampleRate)
	assert.Len(t, samples, 3)

	assert.Equal(t, mockStore.uploadedKey, replyEvent.AudioKey)
	assert.Equal(t, testEvent.Header.WorkflowID, replyEvent.Header.WorkflowID)
	assert.Equal(t, core.SampleRate, replyEvent.SampleRate)
	assert.InEpsilon(t, 3.0/float64(core.SampleRate), replyEvent.DurationSeconds, 1e-9)
	assert.Equal(t, []string{"s", "æ"}, replyEvent.Phonemes)

	cancel()

	shutdownErr := <-errChan
	assert.NoError(t, shutdownErr, "worker.Run should not error on graceful shutdown")
}

func TestMessageHandler_ExplicitLanguage(t *testing.T) {
	t.Parallel()

	workerInstance, _, model, ctx, cancel, natsConnection := setupTest(t)
	defer cancel()

	go func() {
		_ = workerInstance.Run(ctx)
	}()

	waitForSubscription(t, natsConnection)

	eventData, err := json.Marshal(newTestEvent("bm_george", "british"))
	require.NoError(t, err)

	_, err = natsConnection.Request(testSubject, eventData, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, core.LanguageBritish, model.lang)
}

func TestMessageHandler_UnknownVoiceProducesNoReply(t *testing.T) {
	t.Parallel()

	workerInstance, mockStore, _, ctx, cancel, natsConnection := setupTest(t)
	defer cancel()

	go func() {
		_ = workerInstance.Run(ctx)
	}()

	waitForSubscription(t, natsConnection)

	eventData, err := json.Marshal(newTestEvent("af_missing", ""))
	require.NoError(t, err)

	_, err = natsConnection.Request(testSubject, eventData, 500*time.Millisecond)
	require.Error(t, err, "A failed job must not produce a reply")

	assert.Empty(t, mockStore.uploadedKey)
}

func TestMessageHandler_AccentMismatchProducesNoReply(t *testing.T) {
	t.Parallel()

	workerInstance, mockStore, _, ctx, cancel, natsConnection := setupTest(t)
	defer cancel()

	go func() {
		_ = workerInstance.Run(ctx)
	}()

	waitForSubscription(t, natsConnection)

	eventData, err := json.Marshal(newTestEvent("bm_george", "american"))
	require.NoError(t, err)

	_, err = natsConnection.Request(testSubject, eventData, 500*time.Millisecond)
	require.Error(t, err)

	assert.Empty(t, mockStore.uploadedKey)
}

func TestMessageHandler_InvalidEventProducesNoReply(t *testing.T) {
	t.Parallel()

	workerInstance, mockStore, _, ctx, cancel, natsConnection := setupTest(t)
	defer cancel()

	go func() {
		_ = workerInstance.Run(ctx)
	}()

	waitForSubscription(t, natsConnection)

	event := newTestEvent("af_bella", "")
	event.TextKey = ""

	eventData, err := json.Marshal(event)
	require.NoError(t, err)

	_, err = natsConnection.Request(testSubject, eventData, 500*time.Millisecond)
	require.Error(t, err)

	assert.Empty(t, mockStore.downloadedKey)
}

func TestMessageHandler_DownloadFailureProducesNoReply(t *testing.T) {
	t.Parallel()

	workerInstance, mockStore, _, ctx, cancel, natsConnection := setupTest(t)
	defer cancel()

	mockStore.downloadShouldFail = true

	go func() {
		_ = workerInstance.Run(ctx)
	}()

	waitForSubscription(t, natsConnection)

	eventData, err := json.Marshal(newTestEvent("af_bella", ""))
	require.NoError(t, err)

	_, err = natsConnection.Request(testSubject, eventData, 500*time.Millisecond)
	require.Error(t, err)

	assert.Empty(t, mockStore.uploadedKey)
}
