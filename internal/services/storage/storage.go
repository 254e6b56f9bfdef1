package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ds-ai-discord-bot/internal/config"
	"github.com/ds-ai-discord-bot/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Storage is the durable mapping from user ID to settings.
type Storage interface {
	GetUserSettings(ctx context.Context, userID string) (*models.UserSettings, error)
	SaveUserSettings(ctx context.Context, userID string, settings *models.UserSettings) error
	DeleteUserSettings(ctx context.Context, userID string) error
}

// NewStorage creates a storage backend from config.
func NewStorage(cfg *config.StorageConfig, logger *logrus.Logger) (Storage, error) {
	switch cfg.Type {
	case "redis":
		return NewRedisStorage(&cfg.Redis, logger)
	case "memory":
		return NewMemoryStorage(&cfg.Memory, logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// RedisStorage implements storage using Redis
type RedisStorage struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStorage(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		logger: logger,
	}, nil
}

func settingsKey(userID string) string {
	return fmt.Sprintf("user_settings:%s", userID)
}

func (r *RedisStorage) GetUserSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	data, err := r.client.Get(ctx, settingsKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var settings models.UserSettings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return nil, err
	}

	return &settings, nil
}

func (r *RedisStorage) SaveUserSettings(ctx context.Context, userID string, settings *models.UserSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}

	// Settings do not expire
	return r.client.Set(ctx, settingsKey(userID), data, 0).Err()
}

func (r *RedisStorage) DeleteUserSettings(ctx context.Context, userID string) error {
	return r.client.Del(ctx, settingsKey(userID)).Err()
}

// MemoryStorage implements storage using an in-memory cache. Settings do
// not survive a restart; intended for development and tests.
type MemoryStorage struct {
	settings *cache.Cache
	logger   *logrus.Logger
}

func NewMemoryStorage(cfg *config.MemoryConfig, logger *logrus.Logger) *MemoryStorage {
	return &MemoryStorage{
		settings: cache.New(cache.NoExpiration, cfg.CleanupInterval),
		logger:   logger,
	}
}

func (m *MemoryStorage) GetUserSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	if val, found := m.settings.Get(settingsKey(userID)); found {
		settings := val.(models.UserSettings)
		return &settings, nil
	}
	return nil, nil
}

func (m *MemoryStorage) SaveUserSettings(ctx context.Context, userID string, settings *models.UserSettings) error {
	// Store by value so callers cannot mutate the stored copy.
	m.settings.Set(settingsKey(userID), *settings, cache.NoExpiration)
	return nil
}

func (m *MemoryStorage) DeleteUserSettings(ctx context.Context, userID string) error {
	m.settings.Delete(settingsKey(userID))
	return nil
}
