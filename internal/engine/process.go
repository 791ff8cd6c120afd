package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"

	"github.com/book-expert/logger"

	"github.com/kokoro-voice/kokoro-service/internal/audio"
	"github.com/kokoro-voice/kokoro-service/internal/core"
)

// Temp file patterns for one inference round trip.
const (
	tmpVoicePattern    = "kokoro-voice-*.bin"
	tmpAudioPattern    = "kokoro-audio-*.wav"
	tmpPhonemesPattern = "kokoro-phonemes-*.txt"
)

// ProcessConfig describes the local inference runner: the binary to invoke,
// the model checkpoint it loads once, and the compute device selector.
type ProcessConfig struct {
	BinaryPath     string
	CheckpointPath string
	Device         string
}

// ProcessModel is a core.AcousticModel that shells out to a local inference
// runner for every request. The checkpoint is reloaded by the runner per
// invocation, so the handle itself carries no mutable state; concurrent
// Synthesize calls spawn independent processes and are safe.
type ProcessModel struct {
	config ProcessConfig
	log    *logger.Logger
}

// NewProcessModel creates a subprocess-backed acoustic model.
func NewProcessModel(cfg ProcessConfig, log *logger.Logger) *ProcessModel {
	return &ProcessModel{
		config: cfg,
		log:    log,
	}
}

// Synthesize writes the style vector to a temp file, invokes the runner,
// and reads back the WAV output and phoneme trace.
func (p *ProcessModel) Synthesize(
	ctx context.Context,
	text string,
	style []float32,
	lang core.Language,
) (*core.GenerationResult, error) {
	voicePath, err := p.writeTempVoice(style)
	if err != nil {
		return nil, err
	}
	defer p.removeTemp(voicePath)

	audioFile, err := os.CreateTemp("", tmpAudioPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for audio output: %w", err)
	}
	defer p.removeTemp(audioFile.Name())

	phonemesFile, err := os.CreateTemp("", tmpPhonemesPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for phoneme trace: %w", err)
	}
	defer p.removeTemp(phonemesFile.Name())

	args := []string{
		"--checkpoint", p.config.CheckpointPath,
		"--device", p.config.Device,
		"--voice-file", voicePath,
		"--lang", lang.Code(),
		"--text", text,
		"--output", audioFile.Name(),
		"--phonemes-out", phonemesFile.Name(),
	}

	// #nosec G204 -- the binary path comes from the loaded configuration
	cmd := exec.CommandContext(ctx, p.config.BinaryPath, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf(
			"inference runner execution failed: %w - output: %s", err, string(output),
		)
	}

	return p.readResult(audioFile.Name(), phonemesFile.Name())
}

func (p *ProcessModel) readResult(audioPath, phonemesPath string) (*core.GenerationResult, error) {
	wavData, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio output: %w", err)
	}

	samples, sampleRate, err := audio.DecodeWAV(wavData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio output: %w", err)
	}

	traceData, err := os.ReadFile(phonemesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read phoneme trace: %w", err)
	}

	return &core.GenerationResult{
		Samples:    samples,
		Phonemes:   strings.Fields(string(traceData)),
		SampleRate: sampleRate,
	}, nil
}

// writeTempVoice persists the style vector in the bare float32 layout the
// runner consumes.
func (p *ProcessModel) writeTempVoice(style []float32) (string, error) {
	voiceFile, err := os.CreateTemp("", tmpVoicePattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp voice file: %w", err)
	}

	payload := make([]byte, len(style)*4)
	for i, sample := range style {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(sample))
	}

	_, writeErr := voiceFile.Write(payload)
	closeErr := voiceFile.Close()

	if writeErr != nil {
		p.removeTemp(voiceFile.Name())

		return "", fmt.Errorf("failed to write temp voice file: %w", writeErr)
	}

	if closeErr != nil {
		p.removeTemp(voiceFile.Name())

		return "", fmt.Errorf("failed to close temp voice file: %w", closeErr)
	}

	return voiceFile.Name(), nil
}

func (p *ProcessModel) removeTemp(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		p.log.Warn("Failed to remove temp file '%s': %v", path, removeErr)
	}
}
