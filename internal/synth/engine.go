package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/book-expert/logger"

	"github.com/kokoro-voice/kokoro-service/internal/audio"
	"github.com/kokoro-voice/kokoro-service/internal/core"
	"github.com/kokoro-voice/kokoro-service/internal/text"
)

// Defaults for batch processing.
const (
	defaultWorkers   = 2
	outputFileFormat = "chunk_%04d.wav"
)

// Static errors.
var (
	ErrChunksPathEmpty = errors.New("chunks path cannot be empty")
	ErrOutputDirEmpty  = errors.New("output directory cannot be empty")
	ErrNoChunksFound   = errors.New("no chunks found")
)

// Log formats.
const (
	logFmtProcessingChunks = "Processing %d chunks with voice %s (%d workers)"
	logFmtChunkFailed      = "Failed to process chunk %d: %v"
	logFmtChunkProcessed   = "Processed chunk %d/%d"
	errFmtChunkFailed      = "chunk %d failed: %w"
)

// Engine composes the invoker, an acoustic model, and the WAV writer into
// the higher-level synthesis flows: long-text synthesis with chunking, and
// parallel batch rendering of a chunks file.
type Engine struct {
	invoker    *Invoker
	model      core.AcousticModel
	workers    int
	chunkChars int
	log        *logger.Logger
}

// NewEngine creates a synthesis engine over the given model backend.
// Workers bounds batch concurrency; chunkChars bounds per-call text length.
func NewEngine(
	model core.AcousticModel,
	workers int,
	chunkChars int,
	log *logger.Logger,
) *Engine {
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &Engine{
		invoker:    NewInvoker(log),
		model:      model,
		workers:    workers,
		chunkChars: chunkChars,
		log:        log,
	}
}

// Generate validates and dispatches a single generation request.
func (e *Engine) Generate(
	ctx context.Context,
	textInput string,
	voice core.VoiceVector,
	lang core.Language,
) (*core.GenerationResult, error) {
	return e.invoker.Generate(ctx, e.model, textInput, voice, lang)
}

// SynthesizeLong normalizes the input, splits it into model-sized chunks,
// generates each in order, and concatenates the sample buffers and phoneme
// traces into one result.
func (e *Engine) SynthesizeLong(
	ctx context.Context,
	textInput string,
	voice core.VoiceVector,
	lang core.Language,
) (*core.GenerationResult, error) {
	normalized := text.Normalize(textInput)

	chunks := text.Chunk(normalized, e.chunkChars)
	if len(chunks) == 0 {
		return nil, fmt.Errorf(errFmtEmptyText, core.ErrInvalidArgument)
	}

	combined := &core.GenerationResult{
		Samples:    nil,
		Phonemes:   nil,
		SampleRate: core.SampleRate,
	}

	for _, chunk := range chunks {
		result, err := e.invoker.Generate(ctx, e.model, chunk, voice, lang)
		if err != nil {
			return nil, err
		}

		combined.Samples = append(combined.Samples, result.Samples...)
		combined.Phonemes = append(combined.Phonemes, result.Phonemes...)
		combined.SampleRate = result.SampleRate
	}

	return combined, nil
}

// SynthesizeToFile renders text with SynthesizeLong and writes the result as
// a WAV file at outputPath, returning the generated result for reporting.
func (e *Engine) SynthesizeToFile(
	ctx context.Context,
	textInput string,
	voice core.VoiceVector,
	lang core.Language,
	outputPath string,
) (*core.GenerationResult, error) {
	result, err := e.SynthesizeLong(ctx, textInput, voice, lang)
	if err != nil {
		return nil, err
	}

	writeErr := audio.WriteWAVFile(outputPath, result.Samples, result.SampleRate)
	if writeErr != nil {
		return nil, writeErr
	}

	return result, nil
}

// ProcessChunks reads a JSON array of text chunks and renders each to a
// sequentially named WAV file in outputDir, processing chunks in parallel
// under the configured worker bound. Individual chunk failures are logged
// and reported, but the remaining chunks still run.
func (e *Engine) ProcessChunks(
	ctx context.Context,
	chunksPath, outputDir string,
	voice core.VoiceVector,
	lang core.Language,
) error {
	if chunksPath == "" {
		return ErrChunksPathEmpty
	}

	if outputDir == "" {
		return ErrOutputDirEmpty
	}

	chunks, err := readChunksFile(chunksPath)
	if err != nil {
		return err
	}

	e.log.Info(logFmtProcessingChunks, len(chunks), voice.Name, e.workers)

	return e.processChunksParallel(ctx, chunks, outputDir, voice, lang)
}

// readChunksFile reads and parses a JSON file containing an array of text
// chunks.
func readChunksFile(chunksPath string) ([]string, error) {
	data, err := os.ReadFile(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks file: %w", err)
	}

	var chunks []string

	err = json.Unmarshal(data, &chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunks JSON: %w", err)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoChunksFound, chunksPath)
	}

	return chunks, nil
}

// processChunksParallel renders chunks concurrently using a semaphore-bound
// worker pool.
func (e *Engine) processChunksParallel(
	ctx context.Context,
	chunks []string,
	outputDir string,
	voice core.VoiceVector,
	lang core.Language,
) error {
	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		lastError error
	)

	workerPool := make(chan struct{}, e.workers)

	for chunkIndex, chunk := range chunks {
		if ctxErr := ctx.Err(); ctxErr != nil {
			mutex.Lock()
			lastError = fmt.Errorf(errFmtChunkFailed, chunkIndex+1, ctxErr)
			mutex.Unlock()

			break
		}

		waitGroup.Add(1)

		go func(index int, chunkText string) {
			defer waitGroup.Done()

			workerPool <- struct{}{}

			defer func() { <-workerPool }()

			// Queued work is abandoned once the batch is cancelled.
			if ctx.Err() != nil {
				return
			}

			outputPath := filepath.Join(
				outputDir,
				fmt.Sprintf(outputFileFormat, index+1),
			)

			_, err := e.SynthesizeToFile(ctx, chunkText, voice, lang, outputPath)
			if err != nil {
				mutex.Lock()
				lastError = fmt.Errorf(errFmtChunkFailed, index+1, err)
				mutex.Unlock()

				e.log.Error(logFmtChunkFailed, index+1, err)

				return
			}

			e.log.Info(logFmtChunkProcessed, index+1, len(chunks))
		}(chunkIndex, chunk)
	}

	waitGroup.Wait()
	close(workerPool)

	return lastError
}
