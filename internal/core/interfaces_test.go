// Package core_test tests the shared language and accent primitives.
package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokoro-voice/kokoro-service/internal/core"
)

func TestParseLanguage(t *testing.T) {
	t.Parallel()

	lang, err := core.ParseLanguage("american")
	require.NoError(t, err)
	assert.Equal(t, core.LanguageAmerican, lang)

	lang, err = core.ParseLanguage("british")
	require.NoError(t, err)
	assert.Equal(t, core.LanguageBritish, lang)

	_, err = core.ParseLanguage("klingon")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestLanguageForAccent(t *testing.T) {
	t.Parallel()

	lang, err := core.LanguageForAccent(core.AccentAmerican)
	require.NoError(t, err)
	assert.Equal(t, core.LanguageAmerican, lang)

	lang, err = core.LanguageForAccent(core.AccentBritish)
	require.NoError(t, err)
	assert.Equal(t, core.LanguageBritish, lang)

	_, err = core.LanguageForAccent(core.Accent('z'))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestLanguageAccentAndCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, core.AccentAmerican, core.LanguageAmerican.Accent())
	assert.Equal(t, core.AccentBritish, core.LanguageBritish.Accent())
	assert.Equal(t, "a", core.LanguageAmerican.Code())
	assert.Equal(t, "b", core.LanguageBritish.Code())
}

func TestVoiceVectorDimensionality(t *testing.T) {
	t.Parallel()

	vector := core.VoiceVector{
		Name:   "af",
		Accent: core.AccentAmerican,
		Data:   []float32{1, 2, 3},
	}

	assert.Equal(t, 3, vector.Dimensionality())
	assert.Zero(t, core.VoiceVector{Name: "", Accent: 0, Data: nil}.Dimensionality())
}
