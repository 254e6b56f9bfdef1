package params

import (
	"errors"
	"testing"

	"github.com/ds-ai-discord-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedSettings() models.UserSettings {
	return models.UserSettings{
		UserID:       "u1",
		Model:        "gpt-4o-mini",
		Temperature:  0.7,
		MaxTokens:    1000,
		Memory:       5,
		SystemPrompt: "You are a helpful assistant.",
	}
}

func TestResolveNoDirectives(t *testing.T) {
	cleaned, resolved, err := Resolve("  Hello there  ", storedSettings())
	require.NoError(t, err)

	assert.Equal(t, "Hello there", cleaned)
	assert.Equal(t, "gpt-4o-mini", resolved.Model)
	assert.Equal(t, 0.7, resolved.Temperature)
	assert.Equal(t, 1000, resolved.MaxTokens)
	assert.Equal(t, "You are a helpful assistant.", resolved.SystemPrompt)
}

func TestResolveNumericDirectives(t *testing.T) {
	cleaned, resolved, err := Resolve("[temperature:0.5][max_tokens:200]Hello", storedSettings())
	require.NoError(t, err)

	assert.Equal(t, "Hello", cleaned)
	assert.Equal(t, 0.5, resolved.Temperature)
	assert.Equal(t, 200, resolved.MaxTokens)
	// Untouched fields keep stored values.
	assert.Equal(t, "gpt-4o-mini", resolved.Model)
}

func TestResolveModelAndSystem(t *testing.T) {
	cleaned, resolved, err := Resolve("[model:gpt-4o][system:Answer in French]Bonjour", storedSettings())
	require.NoError(t, err)

	assert.Equal(t, "Bonjour", cleaned)
	assert.Equal(t, "gpt-4o", resolved.Model)
	assert.Equal(t, "Answer in French", resolved.SystemPrompt)
}

func TestResolveDirectiveAnywhere(t *testing.T) {
	cleaned, resolved, err := Resolve("tell me [temperature:1.3] a story", storedSettings())
	require.NoError(t, err)

	assert.Equal(t, "tell me  a story", cleaned)
	assert.Equal(t, 1.3, resolved.Temperature)
}

func TestResolveLaterDuplicateWins(t *testing.T) {
	_, resolved, err := Resolve("[temperature:0.2][temperature:1.8]hi", storedSettings())
	require.NoError(t, err)

	assert.Equal(t, 1.8, resolved.Temperature)
}

func TestResolveMalformedNumberRejected(t *testing.T) {
	_, _, err := Resolve("[temperature:warm]hi", storedSettings())
	var derr *DirectiveError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, KeyTemperature, derr.Key)

	_, _, err = Resolve("[max_tokens:lots]hi", storedSettings())
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, KeyMaxTokens, derr.Key)
}

func TestResolveOutOfRangeRejected(t *testing.T) {
	_, _, err := Resolve("[temperature:5]hi", storedSettings())
	assert.Error(t, err)

	_, _, err = Resolve("[max_tokens:0]hi", storedSettings())
	assert.Error(t, err)

	_, _, err = Resolve("[max_tokens:9999]hi", storedSettings())
	assert.Error(t, err)
}

func TestResolveEmptyModelRejected(t *testing.T) {
	_, _, err := Resolve("[model:]hi", storedSettings())
	assert.Error(t, err)
}

func TestResolveUnknownKeyLeftInPlace(t *testing.T) {
	cleaned, _, err := Resolve("[weather:sunny]hi", storedSettings())
	require.NoError(t, err)
	assert.Equal(t, "[weather:sunny]hi", cleaned)
}

func TestResolveFractionalMaxTokensRejected(t *testing.T) {
	_, _, err := Resolve("[max_tokens:1.5]hi", storedSettings())
	assert.Error(t, err)
}
