package i18n

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/ds-ai-discord-bot/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, lang := range cfg.Languages {
		path := filepath.Join(cfg.Directory, lang+".json")
		if _, err := bundle.LoadMessageFile(path); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Message IDs
const (
	MsgHelp              = "help"
	MsgRateLimited       = "rate_limited"
	MsgAlreadyProcessing = "already_processing"
	MsgModelUnavailable  = "model_unavailable"
	MsgGenericFailure    = "generic_failure"
	MsgInvalidDirective  = "invalid_directive"
	MsgInvalidSetting    = "invalid_setting"
	MsgModelSet          = "model_set"
	MsgParameterSet      = "parameter_set"
	MsgSystemPromptSet   = "system_prompt_set"
	MsgMemorySet         = "memory_set"
	MsgSettingsReset     = "settings_reset"
	MsgSettingsView      = "settings_view"
	MsgHistoryCleared    = "history_cleared"
	MsgModelList         = "model_list"
	MsgUnknownCommand    = "unknown_command"
)
