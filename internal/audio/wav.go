// Package audio converts between raw float sample buffers and WAV files.
// Generated audio is mono 16-bit PCM; the sample rate is fixed by the
// acoustic model (24000 Hz).
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// PCM parameters.
const (
	bitDepth        = 16
	numChannels     = 1
	pcmFormat       = 1
	pcmMaxAmplitude = 1<<(bitDepth-1) - 1
)

// File and directory permissions.
const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// Static errors.
var (
	ErrNoSamples      = errors.New("no samples to encode")
	ErrInvalidWAVData = errors.New("invalid WAV data")
)

// EncodeWAV renders float samples in [-1, 1] as a mono 16-bit PCM WAV byte
// buffer. Samples outside the valid range are clamped rather than wrapped.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	intBuffer := &gaudio.IntBuffer{
		Format: &gaudio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}

	for i, sample := range samples {
		intBuffer.Data[i] = clampSample(sample)
	}

	buf := &writerseeker.WriterSeeker{}

	encoder := wav.NewEncoder(buf, sampleRate, bitDepth, numChannels, pcmFormat)

	err := encoder.Write(intBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to write PCM buffer: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to finalize WAV encoding: %w", err)
	}

	data, err := io.ReadAll(buf.Reader())
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded WAV: %w", err)
	}

	return data, nil
}

// DecodeWAV parses a WAV byte buffer back into float samples in [-1, 1] and
// the file's sample rate. Multi-channel input is rejected; the pipeline is
// mono end to end.
func DecodeWAV(data []byte) ([]float32, int, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, 0, ErrInvalidWAVData
	}

	pcmBuffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read PCM data: %w", err)
	}

	if pcmBuffer.Format.NumChannels != numChannels {
		return nil, 0, fmt.Errorf(
			"%w: expected mono, got %d channels",
			ErrInvalidWAVData,
			pcmBuffer.Format.NumChannels,
		)
	}

	scale := float32(int(1) << (decoder.BitDepth - 1))

	samples := make([]float32, len(pcmBuffer.Data))
	for i, value := range pcmBuffer.Data {
		samples[i] = float32(value) / scale
	}

	return samples, pcmBuffer.Format.SampleRate, nil
}

// WriteWAVFile encodes samples and writes them to path, creating parent
// directories as needed.
func WriteWAVFile(path string, samples []float32, sampleRate int) error {
	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		return err
	}

	dirErr := os.MkdirAll(filepath.Dir(path), dirPermissions)
	if dirErr != nil {
		return fmt.Errorf("failed to create output directory: %w", dirErr)
	}

	writeErr := os.WriteFile(path, data, filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write audio file: %w", writeErr)
	}

	return nil
}

// Duration reports the playback length in seconds of a sample buffer.
func Duration(sampleCount, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}

	return float64(sampleCount) / float64(sampleRate)
}

func clampSample(sample float32) int {
	switch {
	case sample > 1.0:
		return pcmMaxAmplitude
	case sample < -1.0:
		return -pcmMaxAmplitude - 1
	default:
		return int(sample * pcmMaxAmplitude)
	}
}
