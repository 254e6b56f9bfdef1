package handlers

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/ds-ai-discord-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "q1"},
		{Role: models.RoleAssistant, Content: "a1"},
	}
	userTurn := models.Message{Role: models.RoleUser, Content: "q2"}

	messages := buildMessages("be brief", history, userTurn)
	require.Len(t, messages, 4)
	assert.Equal(t, models.RoleSystem, messages[0].Role)
	assert.Equal(t, "be brief", messages[0].Content)
	assert.Equal(t, "a1", messages[2].Content)
	assert.Equal(t, "q2", messages[3].Content)
}

func TestBuildMessagesSkipsBlankSystemPrompt(t *testing.T) {
	userTurn := models.Message{Role: models.RoleUser, Content: "hi"}

	for _, prompt := range []string{"", "   "} {
		messages := buildMessages(prompt, nil, userTurn)
		require.Len(t, messages, 1)
		assert.Equal(t, models.RoleUser, messages[0].Role)
	}
}

func TestStripMention(t *testing.T) {
	assert.Equal(t, "hello", stripMention("<@123> hello", "123"))
	assert.Equal(t, "hello", stripMention("<@!123> hello", "123"))
	assert.Equal(t, "hello <@456>", stripMention("hello <@456>", "123"))
	assert.Equal(t, "", stripMention("<@123>", "123"))
	assert.Equal(t, "plain text", stripMention("plain text", "123"))
}

func TestMentionsUser(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		Mentions: []*discordgo.User{{ID: "123"}, {ID: "456"}},
	}}

	assert.True(t, mentionsUser(m, "123"))
	assert.False(t, mentionsUser(m, "789"))
}

func TestInteractionUserID(t *testing.T) {
	guild := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{User: &discordgo.User{ID: "123"}},
	}}
	assert.Equal(t, "123", interactionUserID(guild))

	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		User: &discordgo.User{ID: "456"},
	}}
	assert.Equal(t, "456", interactionUserID(dm))

	empty := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}
	assert.Equal(t, "", interactionUserID(empty))
}

func TestOptionHelpers(t *testing.T) {
	opts := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "name", Type: discordgo.ApplicationCommandOptionString, Value: "temperature"},
		{Name: "value", Type: discordgo.ApplicationCommandOptionString, Value: " 0.5 "},
		{Name: "exchanges", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(7)},
	}

	assert.Equal(t, "temperature", stringOption(opts, "name"))
	assert.Equal(t, "0.5", stringOption(opts, "value"))
	assert.Equal(t, 7, intOption(opts, "exchanges"))
	assert.Equal(t, "", stringOption(opts, "missing"))
	assert.Equal(t, 0, intOption(opts, "missing"))
}
