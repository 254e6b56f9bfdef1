package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/ds-ai-discord-bot/internal/config"
	"github.com/ds-ai-discord-bot/internal/middleware"
	"github.com/ds-ai-discord-bot/internal/models"
	"github.com/ds-ai-discord-bot/internal/services/storage"
	"github.com/sirupsen/logrus"
)

// ValidationError reports a settings value outside its allowed range.
// It is user-visible and rejected before any mutation happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Store owns per-user settings. Reads go through an in-memory map that is
// lazily populated from storage; every accepted mutation is written back
// synchronously. Storage failures are logged and non-fatal: the in-memory
// copy keeps serving.
type Store struct {
	mu       sync.Mutex
	users    map[string]models.UserSettings
	defaults config.DefaultsConfig
	storage  storage.Storage
	metrics  *middleware.Metrics
	logger   *logrus.Logger
}

// NewStore creates a settings store backed by the given storage.
func NewStore(defaults config.DefaultsConfig, st storage.Storage, metrics *middleware.Metrics, logger *logrus.Logger) *Store {
	return &Store{
		users:    make(map[string]models.UserSettings),
		defaults: defaults,
		storage:  st,
		metrics:  metrics,
		logger:   logger,
	}
}

// Defaults returns the process-wide default settings for a user.
func (s *Store) Defaults(userID string) models.UserSettings {
	return models.UserSettings{
		UserID:       userID,
		Model:        s.defaults.Model,
		Temperature:  s.defaults.Temperature,
		MaxTokens:    s.defaults.MaxTokens,
		Memory:       s.defaults.Memory,
		SystemPrompt: s.defaults.SystemPrompt,
	}
}

// Get returns a copy of the user's settings, creating and persisting an
// entry with process defaults on first access.
func (s *Store) Get(ctx context.Context, userID string) models.UserSettings {
	s.mu.Lock()
	if cached, ok := s.users[userID]; ok {
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	stored, err := s.storage.GetUserSettings(ctx, userID)
	if err != nil {
		s.metrics.RecordStorageOperation("get_user_settings", "error")
		s.logger.WithError(err).WithField("user_id", userID).
			Warn("Failed to load user settings, serving defaults")
	} else {
		s.metrics.RecordStorageOperation("get_user_settings", "success")
	}

	settings := s.Defaults(userID)
	if stored != nil {
		settings = *stored
		settings.UserID = userID
	} else if err == nil {
		// First access: materialize the default entry.
		s.persist(ctx, userID, settings)
	}

	s.mu.Lock()
	s.users[userID] = settings
	s.mu.Unlock()

	return settings
}

// SetModel replaces the user's model.
func (s *Store) SetModel(ctx context.Context, userID, model string) error {
	if model == "" {
		return &ValidationError{Field: "model", Reason: "must not be empty"}
	}
	return s.update(ctx, userID, func(u *models.UserSettings) {
		u.Model = model
	})
}

// SetTemperature replaces the user's sampling temperature.
func (s *Store) SetTemperature(ctx context.Context, userID string, value float64) error {
	if value < models.TemperatureMin || value > models.TemperatureMax {
		return &ValidationError{
			Field:  "temperature",
			Reason: fmt.Sprintf("must be between %g and %g", models.TemperatureMin, models.TemperatureMax),
		}
	}
	return s.update(ctx, userID, func(u *models.UserSettings) {
		u.Temperature = value
	})
}

// SetMaxTokens replaces the user's completion token limit.
func (s *Store) SetMaxTokens(ctx context.Context, userID string, value int) error {
	if value < models.MaxTokensMin || value > models.MaxTokensMax {
		return &ValidationError{
			Field:  "max_tokens",
			Reason: fmt.Sprintf("must be between %d and %d", models.MaxTokensMin, models.MaxTokensMax),
		}
	}
	return s.update(ctx, userID, func(u *models.UserSettings) {
		u.MaxTokens = value
	})
}

// SetMemory replaces the number of exchanges kept as conversation context.
func (s *Store) SetMemory(ctx context.Context, userID string, value int) error {
	if value < models.MemoryMin || value > models.MemoryMax {
		return &ValidationError{
			Field:  "memory",
			Reason: fmt.Sprintf("must be between %d and %d", models.MemoryMin, models.MemoryMax),
		}
	}
	return s.update(ctx, userID, func(u *models.UserSettings) {
		u.Memory = value
	})
}

// SetSystemPrompt replaces the user's system prompt.
func (s *Store) SetSystemPrompt(ctx context.Context, userID, prompt string) error {
	return s.update(ctx, userID, func(u *models.UserSettings) {
		u.SystemPrompt = prompt
	})
}

// Reset restores the user's settings to process defaults. The durable
// entry is deleted; the next access recreates and persists the defaults.
func (s *Store) Reset(ctx context.Context, userID string) error {
	s.mu.Lock()
	delete(s.users, userID)
	s.mu.Unlock()

	if err := s.storage.DeleteUserSettings(ctx, userID); err != nil {
		s.metrics.RecordStorageOperation("delete_user_settings", "error")
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to delete user settings")
		return nil
	}
	s.metrics.RecordStorageOperation("delete_user_settings", "success")
	return nil
}

func (s *Store) update(ctx context.Context, userID string, mutate func(*models.UserSettings)) error {
	// Make sure the entry is cached so the read-modify-write below sees
	// the stored value.
	s.Get(ctx, userID)

	// Concurrent mutations for the same user must not lose fields, so the
	// read, the mutation and the write-back share one critical section.
	s.mu.Lock()
	settings := s.users[userID]
	mutate(&settings)
	s.users[userID] = settings
	s.mu.Unlock()

	s.persist(ctx, userID, settings)
	return nil
}

func (s *Store) persist(ctx context.Context, userID string, settings models.UserSettings) {
	if err := s.storage.SaveUserSettings(ctx, userID, &settings); err != nil {
		s.metrics.RecordStorageOperation("save_user_settings", "error")
		s.logger.WithError(err).WithField("user_id", userID).
			Error("Failed to persist user settings")
		return
	}
	s.metrics.RecordStorageOperation("save_user_settings", "success")
}
