package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokoro-voice/kokoro-service/internal/audio"
	"github.com/kokoro-voice/kokoro-service/internal/core"
	"github.com/kokoro-voice/kokoro-service/internal/engine"
)

func newProcessTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	return log
}

// writeFakeRunner writes a shell script that stands in for the inference
// runner: it copies a pre-rendered WAV to the requested output path and
// emits a fixed phoneme trace.
func writeFakeRunner(t *testing.T, wavPath string) string {
	t.Helper()

	script := "#!/bin/sh\n" +
		"cp \"" + wavPath + "\" \"${12}\"\n" +
		"printf 'h @ l' > \"${14}\"\n"

	runnerPath := filepath.Join(t.TempDir(), "fake-runner.sh")
	err := os.WriteFile(runnerPath, []byte(script), 0o700)
	require.NoError(t, err)

	return runnerPath
}

func TestProcessModel_Synthesize_Success(t *testing.T) {
	t.Parallel()

	wavPath := filepath.Join(t.TempDir(), "canned.wav")
	err := audio.WriteWAVFile(wavPath, []float32{0.1, -0.1, 0.2, -0.2}, core.SampleRate)
	require.NoError(t, err)

	model := engine.NewProcessModel(engine.ProcessConfig{
		BinaryPath:     writeFakeRunner(t, wavPath),
		CheckpointPath: "models/kokoro-v0_19.pth",
		Device:         "cpu",
	}, newProcessTestLogger(t))

	result, err := model.Synthesize(
		context.Background(),
		"Hello.",
		[]float32{0.5, -0.5},
		core.LanguageAmerican,
	)
	require.NoError(t, err)

	assert.Len(t, result.Samples, 4)
	assert.Equal(t, core.SampleRate, result.SampleRate)
	assert.Equal(t, []string{"h", "@", "l"}, result.Phonemes)
}

func TestProcessModel_Synthesize_RunnerFailure(t *testing.T) {
	t.Parallel()

	failingPath := filepath.Join(t.TempDir(), "failing-runner.sh")
	err := os.WriteFile(
		failingPath,
		[]byte("#!/bin/sh\necho 'checkpoint not found' >&2\nexit 1\n"),
		0o700,
	)
	require.NoError(t, err)

	model := engine.NewProcessModel(engine.ProcessConfig{
		BinaryPath:     failingPath,
		CheckpointPath: "missing.pth",
		Device:         "cpu",
	}, newProcessTestLogger(t))

	_, err = model.Synthesize(
		context.Background(),
		"Hello.",
		[]float32{0.5},
		core.LanguageAmerican,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inference runner execution failed")
	assert.Contains(t, err.Error(), "checkpoint not found")
}

func TestProcessModel_Synthesize_MissingBinary(t *testing.T) {
	t.Parallel()

	model := engine.NewProcessModel(engine.ProcessConfig{
		BinaryPath:     filepath.Join(t.TempDir(), "does-not-exist"),
		CheckpointPath: "missing.pth",
		Device:         "cpu",
	}, newProcessTestLogger(t))

	_, err := model.Synthesize(
		context.Background(),
		"Hello.",
		[]float32{0.5},
		core.LanguageAmerican,
	)
	require.Error(t, err)

	if !strings.Contains(err.Error(), "inference runner execution failed") {
		t.Errorf("Expected execution failure error, got: %v", err)
	}
}
