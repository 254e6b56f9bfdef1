package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/ds-ai-discord-bot/internal/config"
	"github.com/ds-ai-discord-bot/internal/i18n"
	"github.com/ds-ai-discord-bot/internal/middleware"
	"github.com/ds-ai-discord-bot/internal/services/ai"
	"github.com/ds-ai-discord-bot/internal/services/memory"
	"github.com/ds-ai-discord-bot/internal/services/settings"
	"github.com/sirupsen/logrus"
)

// Discord caps option choices per command option.
const maxModelChoices = 25

// CommandHandler handles slash commands
type CommandHandler struct {
	config        *config.Config
	client        *ai.Client
	settings      *settings.Store
	conversations *memory.Conversations
	metrics       *middleware.Metrics
	localizer     *i18n.Localizer
	logger        *logrus.Logger
	lang          string
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(
	cfg *config.Config,
	client *ai.Client,
	settingsStore *settings.Store,
	conversations *memory.Conversations,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *CommandHandler {
	return &CommandHandler{
		config:        cfg,
		client:        client,
		settings:      settingsStore,
		conversations: conversations,
		metrics:       metrics,
		localizer:     localizer,
		logger:        logger,
		lang:          cfg.I18n.DefaultLanguage,
	}
}

// Register overwrites the bot's slash commands. Model choices for
// /set-model come from the (cached) model list; when the list cannot be
// fetched the option degrades to free text.
func (h *CommandHandler) Register(s *discordgo.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	modelOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "model",
		Description: "Model identifier",
		Required:    true,
	}

	modelList, err := h.client.ListModels(ctx)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to list models, registering /set-model without choices")
	} else {
		for i, m := range modelList {
			if i >= maxModelChoices {
				break
			}
			modelOption.Choices = append(modelOption.Choices, &discordgo.ApplicationCommandOptionChoice{
				Name:  m.ID,
				Value: m.ID,
			})
		}
	}

	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "help",
			Description: "How to talk to the bot",
		},
		{
			Name:        "models",
			Description: "List available completion models",
		},
		{
			Name:        "settings",
			Description: "Show your current settings",
		},
		{
			Name:        "set-model",
			Description: "Choose the completion model",
			Options:     []*discordgo.ApplicationCommandOption{modelOption},
		},
		{
			Name:        "set-parameter",
			Description: "Set temperature or max_tokens",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Parameter to set",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "temperature", Value: "temperature"},
						{Name: "max_tokens", Value: "max_tokens"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "value",
					Description: "New value",
					Required:    true,
				},
			},
		},
		{
			Name:        "set-system-prompt",
			Description: "Set your system prompt",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "text",
					Description: "System prompt text",
					Required:    true,
				},
			},
		},
		{
			Name:        "set-memory",
			Description: "How many exchanges to remember (1-10)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "exchanges",
					Description: "Number of exchanges",
					Required:    true,
				},
			},
		},
		{
			Name:        "reset-settings",
			Description: "Reset your settings to defaults",
		},
		{
			Name:        "clear",
			Description: "Clear this channel's conversation history",
		},
	}

	created, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, h.config.Bot.GuildID, commands)
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	h.logger.WithField("count", len(created)).Info("Slash commands registered")
	return nil
}

// HandleInteractionCreate is the discordgo INTERACTION_CREATE handler.
func (h *CommandHandler) HandleInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	userID := interactionUserID(i)
	if userID == "" {
		return
	}

	h.metrics.RecordCommandExecuted(data.Name)
	h.logger.WithFields(logrus.Fields{
		"command": data.Name,
		"user_id": userID,
	}).Debug("Handling slash command")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var response string
	switch data.Name {
	case "help":
		response = h.localizer.Get(h.lang, i18n.MsgHelp, nil)
	case "models":
		response = h.handleModels(ctx)
	case "settings":
		response = h.handleSettings(ctx, userID)
	case "set-model":
		response = h.handleSetModel(ctx, userID, data.Options)
	case "set-parameter":
		response = h.handleSetParameter(ctx, userID, data.Options)
	case "set-system-prompt":
		response = h.handleSetSystemPrompt(ctx, userID, data.Options)
	case "set-memory":
		response = h.handleSetMemory(ctx, userID, data.Options)
	case "reset-settings":
		response = h.handleResetSettings(ctx, userID)
	case "clear":
		h.conversations.Clear(i.ChannelID)
		response = h.localizer.Get(h.lang, i18n.MsgHistoryCleared, nil)
	default:
		response = h.localizer.Get(h.lang, i18n.MsgUnknownCommand, nil)
	}

	h.respond(s, i, response)
}

func (h *CommandHandler) handleModels(ctx context.Context) string {
	modelList, err := h.client.ListModels(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list models")
		return h.localizer.Get(h.lang, i18n.MsgGenericFailure, map[string]interface{}{
			"Error": err.Error(),
		})
	}

	var sb strings.Builder
	for _, m := range modelList {
		sb.WriteString("`" + m.ID + "`")
		if m.Tier != "" {
			sb.WriteString(" (" + m.Tier + ")")
		}
		sb.WriteString("\n")
	}

	return h.localizer.Get(h.lang, i18n.MsgModelList, map[string]interface{}{
		"Models": sb.String(),
	})
}

func (h *CommandHandler) handleSettings(ctx context.Context, userID string) string {
	s := h.settings.Get(ctx, userID)
	return h.localizer.Get(h.lang, i18n.MsgSettingsView, map[string]interface{}{
		"Model":        s.Model,
		"Temperature":  s.Temperature,
		"MaxTokens":    s.MaxTokens,
		"Memory":       s.Memory,
		"SystemPrompt": s.SystemPrompt,
	})
}

func (h *CommandHandler) handleSetModel(ctx context.Context, userID string, opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	model := stringOption(opts, "model")
	if err := h.settings.SetModel(ctx, userID, model); err != nil {
		return h.rejection(err)
	}
	return h.localizer.Get(h.lang, i18n.MsgModelSet, map[string]interface{}{
		"Model": model,
	})
}

func (h *CommandHandler) handleSetParameter(ctx context.Context, userID string, opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	name := stringOption(opts, "name")
	value := stringOption(opts, "value")

	var err error
	switch name {
	case "temperature":
		var parsed float64
		parsed, err = strconv.ParseFloat(value, 64)
		if err != nil {
			err = &settings.ValidationError{Field: "temperature", Reason: "not a number"}
		} else {
			err = h.settings.SetTemperature(ctx, userID, parsed)
		}
	case "max_tokens":
		var parsed int
		parsed, err = strconv.Atoi(value)
		if err != nil {
			err = &settings.ValidationError{Field: "max_tokens", Reason: "not an integer"}
		} else {
			err = h.settings.SetMaxTokens(ctx, userID, parsed)
		}
	default:
		err = &settings.ValidationError{Field: name, Reason: "unknown parameter"}
	}

	if err != nil {
		return h.rejection(err)
	}
	return h.localizer.Get(h.lang, i18n.MsgParameterSet, map[string]interface{}{
		"Name":  name,
		"Value": value,
	})
}

func (h *CommandHandler) handleSetSystemPrompt(ctx context.Context, userID string, opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	if err := h.settings.SetSystemPrompt(ctx, userID, stringOption(opts, "text")); err != nil {
		return h.rejection(err)
	}
	return h.localizer.Get(h.lang, i18n.MsgSystemPromptSet, nil)
}

func (h *CommandHandler) handleSetMemory(ctx context.Context, userID string, opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	value := intOption(opts, "exchanges")
	if err := h.settings.SetMemory(ctx, userID, value); err != nil {
		return h.rejection(err)
	}
	return h.localizer.Get(h.lang, i18n.MsgMemorySet, map[string]interface{}{
		"Memory": value,
	})
}

func (h *CommandHandler) handleResetSettings(ctx context.Context, userID string) string {
	if err := h.settings.Reset(ctx, userID); err != nil {
		return h.rejection(err)
	}
	return h.localizer.Get(h.lang, i18n.MsgSettingsReset, nil)
}

func (h *CommandHandler) rejection(err error) string {
	return h.localizer.Get(h.lang, i18n.MsgInvalidSetting, map[string]interface{}{
		"Error": err.Error(),
	})
}

// respond sends an ephemeral interaction response.
func (h *CommandHandler) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to respond to interaction")
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func stringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range opts {
		if opt.Name == name {
			return strings.TrimSpace(opt.StringValue())
		}
	}
	return ""
}

func intOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) int {
	for _, opt := range opts {
		if opt.Name == name {
			return int(opt.IntValue())
		}
	}
	return 0
}
