// Package voiceutil provides path and formatting helpers for the voice
// pipeline: resolving the voices directory, creating directories, keeping
// user-chosen voice names filesystem-safe, and reporting audio durations.
package voiceutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variable names used for path resolution.
const (
	envVoicesDir = "KOKORO_VOICES_DIR"
)

// Common application directory and path constants.
const (
	appName                = "kokoro-service"
	voicesDirName          = "voices"
	tmpDir                 = "/tmp"
	dotCache               = ".cache"
	defaultDirPermissions  = 0o750
	invalidCharReplacement = "_"
)

// Duration formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
)

// Error message formats.
const (
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
)

// DefaultVoicesDir returns the directory voice vector files are read from,
// honoring a KOKORO_VOICES_DIR override and falling back to a standard
// user-based cache directory.
func DefaultVoicesDir() string {
	if voicesDir := os.Getenv(envVoicesDir); voicesDir != "" {
		return voicesDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to a temporary directory if home cannot be determined.
		return filepath.Join(tmpDir, appName, voicesDirName)
	}

	return filepath.Join(homeDir, dotCache, appName, voicesDirName)
}

// EnsureDir ensures a directory exists at the given path, creating it if it
// doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// SanitizeVoiceName replaces characters that are invalid in most filesystems
// so a user-chosen mix name maps to exactly one file.
func SanitizeVoiceName(name string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(name)
}

// FormatDuration formats a duration in a human-readable string (e.g.
// "1h 15m", "5m 30.5s", "45.2s").
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remainingSeconds := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, remainingSeconds)
	}

	hours := int(seconds / secondsInHour)
	remainingSeconds := seconds - float64(hours*secondsInHour)
	remainingMinutes := int(remainingSeconds / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}
