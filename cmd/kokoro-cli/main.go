// Command kokoro-cli renders text to speech with Kokoro style vectors:
// pick or mix a voice, synthesize, and write the result as a WAV file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/kokoro-voice/kokoro-service/internal/config"
	"github.com/kokoro-voice/kokoro-service/internal/core"
	"github.com/kokoro-voice/kokoro-service/internal/engine"
	"github.com/kokoro-voice/kokoro-service/internal/synth"
	"github.com/kokoro-voice/kokoro-service/internal/voice"
	"github.com/kokoro-voice/kokoro-service/internal/voiceutil"
)

// Flag names.
const (
	flagText    = "text"
	flagVoice   = "voice"
	flagLang    = "lang"
	flagOutput  = "output"
	flagList    = "list"
	flagMix     = "mix"
	flagSaveAs  = "save-as"
	flagChunks  = "chunks"
	flagVerbose = "verbose"
	flagHealth  = "health"
)

// Flag descriptions.
const (
	flagTextDesc    = "Text to convert to speech"
	flagVoiceDesc   = "Voice name (e.g. af_bella, bm_george)"
	flagLangDesc    = "Language tag: american or british (defaults to the voice's accent)"
	flagOutputDesc  = "Output file path (.wav)"
	flagListDesc    = "List known voice names and exit"
	flagMixDesc     = "Mix spec, e.g. \"af_bella:0.7,af_sarah:0.3\""
	flagSaveAsDesc  = "Persist the mixed voice under this name"
	flagChunksDesc  = "JSON file containing text chunks to process"
	flagVerboseDesc = "Enable verbose logging"
	flagHealthDesc  = "Check inference service health and exit"
)

// Error and log messages.
const (
	errFailedToLoadConfig = "failed to load configuration: %w"
	errFailedToInitLogger = "failed to initialize logger: %w"
	errNothingToDo        = "one of --text, --chunks, --list, or --mix must be provided"
	errCannotSpecifyBoth  = "cannot specify both --text and --chunks"
	errHealthCheckFailed  = "health check failed: %w"
	errFmtBadMixEntry     = "%w: malformed mix entry %q, want name:weight"
	errFmtBadMixWeight    = "%w: invalid weight in mix entry %q"
	errFmtEmptyMixFlag    = "%w: mix spec is empty"
	msgServiceHealthy     = "inference service is healthy"
	logFmtSavedVoice      = "Saved mixed voice %s (%d dimensions)"
	logFmtGeneratedAudio  = "Generated audio: %s (%s)"
	logFileNameDefault    = "kokoro-cli.log"
	logFileNameVerbose    = "kokoro-cli-verbose.log"
	defaultOutputFile     = "output.wav"
	fallbackDefaultVoice  = "af"
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text    string
	voice   string
	lang    string
	output  string
	mix     string
	saveAs  string
	chunks  string
	list    bool
	verbose bool
	health  bool
}

func main() {
	err := run()
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run() error {
	flags := parseFlags()

	validationErr := validateArguments(flags)
	if validationErr != nil {
		flag.Usage()

		return validationErr
	}

	cfg, appLogger, err := setup(flags.verbose)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := appLogger.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	store := voice.NewStore(voicesDir(cfg))

	if flags.list {
		return handleList(store)
	}

	if flags.health {
		return handleHealthCheck(cfg)
	}

	return handleExecution(cfg, appLogger, store, flags)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags() appFlags {
	var flags appFlags
	flag.StringVar(&flags.text, flagText, "", flagTextDesc)
	flag.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flag.StringVar(&flags.lang, flagLang, "", flagLangDesc)
	flag.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flag.StringVar(&flags.mix, flagMix, "", flagMixDesc)
	flag.StringVar(&flags.saveAs, flagSaveAs, "", flagSaveAsDesc)
	flag.StringVar(&flags.chunks, flagChunks, "", flagChunksDesc)
	flag.BoolVar(&flags.list, flagList, false, flagListDesc)
	flag.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.Parse()

	return flags
}

// validateArguments checks the flag combination before any setup work.
func validateArguments(flags appFlags) error {
	if flags.text == "" && flags.chunks == "" && flags.mix == "" &&
		!flags.list && !flags.health {
		return errors.New(errNothingToDo)
	}

	if flags.text != "" && flags.chunks != "" {
		return errors.New(errCannotSpecifyBoth)
	}

	return nil
}

// setup loads the configuration and initializes the logger.
func setup(verbose bool) (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := logger.New(os.TempDir(), "kokoro-cli-bootstrap.log")
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToLoadConfig, err)
	}

	logFileName := logFileNameDefault
	if verbose {
		logFileName = logFileNameVerbose
	}

	appLogger, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	return cfg, appLogger, nil
}

func voicesDir(cfg *config.Config) string {
	if cfg.Paths.VoicesDir != "" {
		return cfg.Paths.VoicesDir
	}

	return voiceutil.DefaultVoicesDir()
}

// handleList prints the known voice names, one per line.
func handleList(store *voice.Store) error {
	names, err := store.List()
	if err != nil {
		return err
	}

	for _, name := range names {
		fmt.Println(name)
	}

	return nil
}

// handleHealthCheck probes the inference service and prints the result.
func handleHealthCheck(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	model := engine.NewHTTPModel(cfg.Engine.GetServiceURL(), 10*time.Second)

	err := model.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf(errHealthCheckFailed, err)
	}

	fmt.Println(msgServiceHealthy)

	return nil
}

// handleExecution resolves the voice vector, then dispatches to mixing,
// single-text, or chunked processing.
func handleExecution(
	cfg *config.Config,
	appLogger *logger.Logger,
	store *voice.Store,
	flags appFlags,
) error {
	vector, err := resolveVector(cfg, appLogger, store, flags)
	if err != nil {
		return err
	}

	// Mixing with nothing to synthesize is a complete operation.
	if flags.text == "" && flags.chunks == "" {
		return nil
	}

	lang, err := resolveLanguage(flags.lang, vector)
	if err != nil {
		return err
	}

	synthEngine := synth.NewEngine(
		buildModel(cfg, appLogger),
		cfg.Synthesis.Workers,
		cfg.Synthesis.ChunkChars,
		appLogger,
	)

	ctx := context.Background()

	if flags.chunks != "" {
		outputDir := flags.output
		if outputDir == "" {
			outputDir = cfg.Paths.OutputDir
		}

		return synthEngine.ProcessChunks(ctx, flags.chunks, outputDir, vector, lang)
	}

	return processSingleText(ctx, synthEngine, cfg, appLogger, flags, vector, lang)
}

// resolveVector loads the named voice or builds one from the mix spec,
// persisting it when --save-as is given.
func resolveVector(
	cfg *config.Config,
	appLogger *logger.Logger,
	store *voice.Store,
	flags appFlags,
) (core.VoiceVector, error) {
	if flags.mix != "" {
		spec, err := parseMixSpec(flags.mix)
		if err != nil {
			return core.VoiceVector{}, err
		}

		vector, err := store.Mix(spec)
		if err != nil {
			return core.VoiceVector{}, err
		}

		if flags.saveAs != "" {
			saveErr := store.Save(flags.saveAs, vector)
			if saveErr != nil {
				return core.VoiceVector{}, saveErr
			}

			vector.Name = flags.saveAs

			appLogger.Info(logFmtSavedVoice, flags.saveAs, vector.Dimensionality())
			fmt.Printf("Saved voice: %s\n", flags.saveAs)
		}

		return vector, nil
	}

	name := flags.voice
	if name == "" {
		name = cfg.Synthesis.DefaultVoice
	}

	if name == "" {
		name = fallbackDefaultVoice
	}

	return store.Load(name)
}

// resolveLanguage parses the --lang flag, defaulting to the tag matching the
// voice's accent.
func resolveLanguage(langFlag string, vector core.VoiceVector) (core.Language, error) {
	if langFlag == "" {
		return core.LanguageForAccent(vector.Accent)
	}

	return core.ParseLanguage(langFlag)
}

// buildModel constructs the configured acoustic model backend.
func buildModel(cfg *config.Config, appLogger *logger.Logger) core.AcousticModel {
	if cfg.Engine.Mode == config.EngineModeProcess {
		return engine.NewProcessModel(engine.ProcessConfig{
			BinaryPath:     cfg.Engine.BinaryPath,
			CheckpointPath: cfg.Engine.CheckpointPath,
			Device:         cfg.Engine.Device,
		}, appLogger)
	}

	timeout := time.Duration(cfg.Engine.TimeoutSeconds) * time.Second

	return engine.NewHTTPModel(cfg.Engine.GetServiceURL(), timeout)
}

// processSingleText renders one text input to a WAV file and reports the
// phoneme trace.
func processSingleText(
	ctx context.Context,
	synthEngine *synth.Engine,
	cfg *config.Config,
	appLogger *logger.Logger,
	flags appFlags,
	vector core.VoiceVector,
	lang core.Language,
) error {
	outputPath := flags.output
	if outputPath == "" {
		outputPath = filepath.Join(cfg.Paths.OutputDir, defaultOutputFile)
	}

	result, err := synthEngine.SynthesizeToFile(ctx, flags.text, vector, lang, outputPath)
	if err != nil {
		return err
	}

	duration := voiceutil.FormatDuration(
		float64(len(result.Samples)) / float64(result.SampleRate),
	)

	appLogger.Info(logFmtGeneratedAudio, outputPath, duration)
	fmt.Printf("Audio saved to: %s (%s)\n", outputPath, duration)
	fmt.Printf("Phonemes used: %s\n", strings.Join(result.Phonemes, " "))

	return nil
}

// parseMixSpec parses a "name:weight,name:weight" flag value.
func parseMixSpec(raw string) (voice.MixSpec, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf(errFmtEmptyMixFlag, core.ErrInvalidArgument)
	}

	spec := make(voice.MixSpec)

	for _, entry := range strings.Split(trimmed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, weightText, found := strings.Cut(entry, ":")

		name = strings.TrimSpace(name)
		if !found || name == "" {
			return nil, fmt.Errorf(errFmtBadMixEntry, core.ErrInvalidArgument, entry)
		}

		weight, err := strconv.ParseFloat(strings.TrimSpace(weightText), 64)
		if err != nil {
			return nil, fmt.Errorf(errFmtBadMixWeight, core.ErrInvalidArgument, entry)
		}

		spec[name] = weight
	}

	if len(spec) == 0 {
		return nil, fmt.Errorf(errFmtEmptyMixFlag, core.ErrInvalidArgument)
	}

	return spec, nil
}
