package params

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ds-ai-discord-bot/internal/models"
)

// Directive keys recognized inside a message.
const (
	KeyModel       = "model"
	KeySystem      = "system"
	KeyTemperature = "temperature"
	KeyMaxTokens   = "max_tokens"
)

// directivePattern matches [key:value] tokens anywhere in the text.
var directivePattern = regexp.MustCompile(`\[(model|system|temperature|max_tokens):([^\[\]]*)\]`)

// DirectiveError reports an inline directive whose value could not be
// parsed or falls outside the allowed range. It is user-visible.
type DirectiveError struct {
	Key    string
	Value  string
	Reason string
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("invalid [%s:%s]: %s", e.Key, e.Value, e.Reason)
}

// Resolve extracts inline [key:value] directives from raw, strips them and
// returns the cleaned text together with the effective request parameters.
// Precedence per field, highest first: inline directive, stored user
// settings (which already carry process defaults for unset users).
//
// Directives fold left to right, so a later duplicate key overwrites an
// earlier one. Malformed or out-of-range numeric directives are rejected.
func Resolve(raw string, settings models.UserSettings) (string, models.RequestParameters, error) {
	resolved := models.RequestParameters{
		Model:        settings.Model,
		Temperature:  settings.Temperature,
		MaxTokens:    settings.MaxTokens,
		SystemPrompt: settings.SystemPrompt,
	}

	// Tokenize first, then apply typed parsing per key.
	matches := directivePattern.FindAllStringSubmatch(raw, -1)
	for _, m := range matches {
		key, value := m[1], strings.TrimSpace(m[2])

		switch key {
		case KeyModel:
			if value == "" {
				return "", resolved, &DirectiveError{Key: key, Value: value, Reason: "model must not be empty"}
			}
			resolved.Model = value
		case KeySystem:
			resolved.SystemPrompt = value
		case KeyTemperature:
			parsed, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return "", resolved, &DirectiveError{Key: key, Value: value, Reason: "not a number"}
			}
			if parsed < models.TemperatureMin || parsed > models.TemperatureMax {
				return "", resolved, &DirectiveError{
					Key: key, Value: value,
					Reason: fmt.Sprintf("must be between %g and %g", models.TemperatureMin, models.TemperatureMax),
				}
			}
			resolved.Temperature = parsed
		case KeyMaxTokens:
			parsed, err := strconv.Atoi(value)
			if err != nil {
				return "", resolved, &DirectiveError{Key: key, Value: value, Reason: "not an integer"}
			}
			if parsed < models.MaxTokensMin || parsed > models.MaxTokensMax {
				return "", resolved, &DirectiveError{
					Key: key, Value: value,
					Reason: fmt.Sprintf("must be between %d and %d", models.MaxTokensMin, models.MaxTokensMax),
				}
			}
			resolved.MaxTokens = parsed
		}
	}

	cleaned := strings.TrimSpace(directivePattern.ReplaceAllString(raw, ""))

	return cleaned, resolved, nil
}
