package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/ds-ai-discord-bot/internal/config"
	"github.com/ds-ai-discord-bot/internal/i18n"
	"github.com/ds-ai-discord-bot/internal/middleware"
	"github.com/ds-ai-discord-bot/internal/models"
	"github.com/ds-ai-discord-bot/internal/services/ai"
	"github.com/ds-ai-discord-bot/internal/services/memory"
	"github.com/ds-ai-discord-bot/internal/services/params"
	"github.com/ds-ai-discord-bot/internal/services/settings"
	"github.com/ds-ai-discord-bot/pkg/logger"
	"github.com/ds-ai-discord-bot/pkg/text"
	"github.com/sirupsen/logrus"
)

const completionTimeout = 2 * time.Minute

// ChatHandler relays user messages to the completion API.
type ChatHandler struct {
	config        *config.Config
	client        *ai.Client
	settings      *settings.Store
	conversations *memory.Conversations
	rateLimiter   *middleware.RateLimiter
	inflight      *middleware.Inflight
	metrics       *middleware.Metrics
	localizer     *i18n.Localizer
	logger        *logrus.Logger
	lang          string
}

// NewChatHandler creates a new chat handler
func NewChatHandler(
	cfg *config.Config,
	client *ai.Client,
	settingsStore *settings.Store,
	conversations *memory.Conversations,
	rateLimiter *middleware.RateLimiter,
	inflight *middleware.Inflight,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *ChatHandler {
	return &ChatHandler{
		config:        cfg,
		client:        client,
		settings:      settingsStore,
		conversations: conversations,
		rateLimiter:   rateLimiter,
		inflight:      inflight,
		metrics:       metrics,
		localizer:     localizer,
		logger:        logger,
		lang:          cfg.I18n.DefaultLanguage,
	}
}

// HandleMessageCreate is the discordgo MESSAGE_CREATE handler. The bot
// replies in DMs and when mentioned in a guild channel.
func (h *ChatHandler) HandleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.Author.ID == s.State.User.ID {
		return
	}

	isDM := m.GuildID == ""
	if isDM {
		h.metrics.RecordMessageReceived("dm")
	} else {
		h.metrics.RecordMessageReceived("guild")
	}

	if !isDM && !mentionsUser(m, s.State.User.ID) {
		return
	}

	userID := m.Author.ID
	channelID := m.ChannelID
	content := stripMention(m.Content, s.State.User.ID)

	log := logger.WithUser(h.logger, channelID, userID)

	if content == "" {
		return
	}

	verdict := h.rateLimiter.CheckAndAdmit(userID, time.Now())
	if !verdict.Admitted {
		h.metrics.RecordRateLimitRejection(verdict.Gate)
		h.reply(s, m, h.localizer.Get(h.lang, i18n.MsgRateLimited, map[string]interface{}{
			"RetryAfter": verdict.RetryAfter,
		}))
		return
	}

	if !h.inflight.TryAcquire(userID) {
		h.metrics.RecordRateLimitRejection("inflight")
		h.reply(s, m, h.localizer.Get(h.lang, i18n.MsgAlreadyProcessing, nil))
		return
	}

	log.WithField("length", len(content)).Debug("Processing message")

	go func() {
		defer h.inflight.Release(userID)
		h.process(s, m, userID, channelID, content)
	}()
}

func (h *ChatHandler) process(s *discordgo.Session, m *discordgo.MessageCreate, userID, channelID, content string) {
	userSettings := h.settings.Get(context.Background(), userID)

	cleaned, resolved, err := params.Resolve(content, userSettings)
	if err != nil {
		h.metrics.RecordMessageProcessed("rejected")
		h.reply(s, m, h.localizer.Get(h.lang, i18n.MsgInvalidDirective, map[string]interface{}{
			"Error": err.Error(),
		}))
		return
	}
	if cleaned == "" {
		h.metrics.RecordMessageProcessed("empty")
		return
	}

	stopTyping := h.startTyping(s, channelID)
	defer stopTyping()

	userTurn := models.Message{Role: models.RoleUser, Content: cleaned}
	messages := buildMessages(resolved.SystemPrompt, h.conversations.Get(channelID), userTurn)

	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()

	start := time.Now()
	reply, err := h.client.Complete(ctx, messages, resolved)
	if err != nil {
		h.metrics.RecordCompletion(resolved.Model, "error", time.Since(start))
		h.metrics.RecordMessageProcessed("error")
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"model":   resolved.Model,
		}).Error("Completion failed")
		h.reply(s, m, h.failureMessage(resolved.Model, err))
		return
	}
	h.metrics.RecordCompletion(resolved.Model, "success", time.Since(start))

	h.conversations.Append(channelID, userTurn,
		models.Message{Role: models.RoleAssistant, Content: reply},
		userSettings.Memory)

	for _, chunk := range text.Split(reply, text.DiscordMessageLimit) {
		if _, err := s.ChannelMessageSend(channelID, chunk); err != nil {
			h.logger.WithError(err).WithField("channel_id", channelID).
				Error("Failed to send reply")
			h.metrics.RecordMessageProcessed("send_error")
			return
		}
	}

	h.metrics.RecordMessageProcessed("success")
}

// buildMessages assembles the request conversation: the system turn when
// the prompt is non-blank, prior turns, then the new user turn.
func buildMessages(systemPrompt string, history []models.Message, userTurn models.Message) []models.Message {
	messages := make([]models.Message, 0, len(history)+2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, models.Message{
			Role:    models.RoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, history...)
	return append(messages, userTurn)
}

func (h *ChatHandler) failureMessage(model string, err error) string {
	if errors.Is(err, ai.ErrModelUnavailable) {
		return h.localizer.Get(h.lang, i18n.MsgModelUnavailable, map[string]interface{}{
			"Model": model,
		})
	}
	return h.localizer.Get(h.lang, i18n.MsgGenericFailure, map[string]interface{}{
		"Error": err.Error(),
	})
}

func (h *ChatHandler) reply(s *discordgo.Session, m *discordgo.MessageCreate, content string) {
	_, err := s.ChannelMessageSendReply(m.ChannelID, content, m.Reference())
	if err != nil {
		h.logger.WithError(err).WithField("channel_id", m.ChannelID).
			Error("Failed to send reply")
	}
}

// startTyping keeps the typing indicator alive until the returned stop
// function is called. Discord drops the indicator after ~10s, so it is
// refreshed on a ticker while the completion is in flight.
func (h *ChatHandler) startTyping(s *discordgo.Session, channelID string) func() {
	if err := s.ChannelTyping(channelID); err != nil {
		h.logger.WithError(err).Debug("Failed to send typing indicator")
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(8 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := s.ChannelTyping(channelID); err != nil {
					return
				}
			}
		}
	}()

	return func() { close(done) }
}

func mentionsUser(m *discordgo.MessageCreate, userID string) bool {
	for _, mention := range m.Mentions {
		if mention.ID == userID {
			return true
		}
	}
	return false
}

func stripMention(content, userID string) string {
	content = strings.ReplaceAll(content, "<@"+userID+">", "")
	content = strings.ReplaceAll(content, "<@!"+userID+">", "")
	return strings.TrimSpace(content)
}
