// Package voiceutil_test tests the voice pipeline path and formatting helpers.
package voiceutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokoro-voice/kokoro-service/internal/voiceutil"
)

func TestDefaultVoicesDir_EnvironmentOverride(t *testing.T) {
	t.Setenv("KOKORO_VOICES_DIR", "/custom/voices")

	assert.Equal(t, "/custom/voices", voiceutil.DefaultVoicesDir())
}

func TestDefaultVoicesDir_FallsBackToCache(t *testing.T) {
	t.Setenv("KOKORO_VOICES_DIR", "")

	dir := voiceutil.DefaultVoicesDir()
	assert.Contains(t, dir, "kokoro-service")
	assert.Contains(t, dir, "voices")
}

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b", "c")

	err := voiceutil.EnsureDir(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// A second call on an existing directory is a no-op.
	require.NoError(t, voiceutil.EnsureDir(path))
}

func TestSanitizeVoiceName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "clean name untouched", input: "af_bella", want: "af_bella"},
		{name: "path separators replaced", input: "my/mix\\v1", want: "my_mix_v1"},
		{name: "shell characters replaced", input: "a:b?c*d", want: "a_b_c_d"},
		{name: "angle brackets replaced", input: "<voice>", want: "_voice_"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, voiceutil.SanitizeVoiceName(testCase.input))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "45.2s", voiceutil.FormatDuration(45.2))
	assert.Equal(t, "5m 30.5s", voiceutil.FormatDuration(330.5))
	assert.Equal(t, "1h 15m", voiceutil.FormatDuration(4500))
}
