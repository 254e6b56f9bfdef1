package memory

import (
	"sync"

	"github.com/ds-ai-discord-bot/internal/models"
)

// Conversations holds per-channel rolling message history. History lives
// only in memory and is never persisted across restarts.
type Conversations struct {
	mu       sync.Mutex
	channels map[string][]models.Message
}

// NewConversations creates an empty conversation store.
func NewConversations() *Conversations {
	return &Conversations{channels: make(map[string][]models.Message)}
}

// Append records one exchange (user turn then assistant reply) for the
// channel, then trims the history from the front until it holds at most
// memory exchanges.
func (c *Conversations) Append(channelID string, userTurn, assistantTurn models.Message, memory int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := append(c.channels[channelID], userTurn, assistantTurn)

	max := 2 * memory
	if max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	c.channels[channelID] = history
}

// Get returns a copy of the channel's history, oldest turn first.
func (c *Conversations) Get(channelID string) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := c.channels[channelID]
	if len(history) == 0 {
		return nil
	}
	out := make([]models.Message, len(history))
	copy(out, history)
	return out
}

// Clear discards the channel's history.
func (c *Conversations) Clear(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channelID)
}
