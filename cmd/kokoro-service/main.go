// main package for the kokoro-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/kokoro-voice/kokoro-service/internal/config"
	"github.com/kokoro-voice/kokoro-service/internal/core"
	"github.com/kokoro-voice/kokoro-service/internal/engine"
	"github.com/kokoro-voice/kokoro-service/internal/objectstore"
	"github.com/kokoro-voice/kokoro-service/internal/synth"
	"github.com/kokoro-voice/kokoro-service/internal/voice"
	"github.com/kokoro-voice/kokoro-service/internal/voiceutil"
	"github.com/kokoro-voice/kokoro-service/internal/worker"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "kokoro-service-bootstrap.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return runService(cfg, finalLog)
}

// runService wires the NATS transport, object store, voice store, and the
// synthesis engine together, then blocks in the worker loop until a shutdown
// signal arrives.
func runService(cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	voicesDir := cfg.Paths.VoicesDir
	if voicesDir == "" {
		voicesDir = voiceutil.DefaultVoicesDir()
	}

	voices := voice.NewStore(voicesDir)

	synthEngine := synth.NewEngine(
		buildModel(cfg, log),
		cfg.Synthesis.Workers,
		cfg.Synthesis.ChunkChars,
		log,
	)

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		jetstreamContext,
		cfg.NATS.SynthesisRequestedSubject,
		store,
		voices,
		synthEngine,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create NATS worker: %w", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	log.System(
		"Kokoro-Service successfully initialized. Listening for jobs on subject: %s",
		cfg.NATS.SynthesisRequestedSubject,
	)

	runErr := natsWorker.Run(ctx)
	if runErr != nil {
		return fmt.Errorf("worker stopped with error: %w", runErr)
	}

	log.System("Kokoro-Service shut down cleanly.")

	return nil
}

// buildModel constructs the configured acoustic model backend.
func buildModel(cfg *config.Config, log *logger.Logger) core.AcousticModel {
	if cfg.Engine.Mode == config.EngineModeProcess {
		return engine.NewProcessModel(engine.ProcessConfig{
			BinaryPath:     cfg.Engine.BinaryPath,
			CheckpointPath: cfg.Engine.CheckpointPath,
			Device:         cfg.Engine.Device,
		}, log)
	}

	timeout := time.Duration(cfg.Engine.TimeoutSeconds) * time.Second

	return engine.NewHTTPModel(cfg.Engine.GetServiceURL(), timeout)
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
