// Package config provides the configuration structure for kokoro-service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                       string `toml:"url"`
	SynthesisStreamName       string `toml:"synthesis_stream_name"`
	SynthesisConsumerName     string `toml:"synthesis_consumer_name"`
	SynthesisRequestedSubject string `toml:"synthesis_requested_subject"`
	AudioCreatedSubject       string `toml:"audio_created_subject"`
	AudioObjectStoreBucket    string `toml:"audio_object_store_bucket"`
}

// Engine modes.
const (
	EngineModeHTTP    = "http"
	EngineModeProcess = "process"
)

// EngineConfig holds the configuration for the acoustic model backend.
// Mode selects between the HTTP inference service and the local subprocess
// runner; CheckpointPath and Device describe the model handle either backend
// constructs once at startup.
type EngineConfig struct {
	Mode           string `toml:"mode"`
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	BinaryPath     string `toml:"binary_path"`
	CheckpointPath string `toml:"checkpoint_path"`
	Device         string `toml:"device"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// GetServiceURL returns the base URL of the HTTP inference service.
func (e EngineConfig) GetServiceURL() string {
	return fmt.Sprintf("http://%s:%d", e.Host, e.Port)
}

// SynthesisConfig holds the tunables of the synthesis pipeline.
type SynthesisConfig struct {
	DefaultVoice string `toml:"default_voice"`
	Workers      int    `toml:"workers"`
	ChunkChars   int    `toml:"chunk_chars"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	OutputDir   string `toml:"output_dir"`
	VoicesDir   string `toml:"voices_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS      NATSConfig      `toml:"nats"`
	Engine    EngineConfig    `toml:"engine"`
	Synthesis SynthesisConfig `toml:"synthesis"`
	Paths     PathsConfig     `toml:"paths"`
}

// Load loads the configuration for kokoro-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}
