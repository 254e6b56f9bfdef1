package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Completion CompletionConfig `mapstructure:"completion"`
	Defaults   DefaultsConfig   `mapstructure:"defaults"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type BotConfig struct {
	Token   string `mapstructure:"token"`
	GuildID string `mapstructure:"guild_id"`
}

type CompletionConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ModelCacheTTL  time.Duration `mapstructure:"model_cache_ttl"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	Burst          int           `mapstructure:"burst"`
}

type DefaultsConfig struct {
	Model        string  `mapstructure:"model"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Memory       int     `mapstructure:"memory"`
}

type StorageConfig struct {
	Type   string       `mapstructure:"type"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Memory MemoryConfig `mapstructure:"memory"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type RateLimitConfig struct {
	MaxMessages   int           `mapstructure:"max_messages"`
	Window        time.Duration `mapstructure:"window"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
	Directory       string   `mapstructure:"directory"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Environment variable overrides
	viper.BindEnv("bot.token", "DISCORD_TOKEN")
	viper.BindEnv("bot.guild_id", "DISCORD_GUILD_ID")
	viper.BindEnv("completion.base_url", "COMPLETION_BASE_URL")
	viper.BindEnv("completion.api_key", "COMPLETION_API_KEY")
	viper.BindEnv("defaults.model", "DEFAULT_MODEL")
	viper.BindEnv("defaults.system_prompt", "DEFAULT_SYSTEM_PROMPT")
	viper.BindEnv("rate_limit.max_messages", "RATE_LIMIT_MAX_MESSAGES")
	viper.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	viper.BindEnv("rate_limit.cooldown", "RATE_LIMIT_COOLDOWN")
	viper.BindEnv("storage.redis.addr", "REDIS_ADDR")
	viper.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	viper.BindEnv("storage.redis.db", "REDIS_DB")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.RateLimit.SweepInterval <= 0 {
		config.RateLimit.SweepInterval = config.RateLimit.Window
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("completion.request_timeout", 120*time.Second)
	viper.SetDefault("completion.model_cache_ttl", 5*time.Minute)
	viper.SetDefault("completion.max_retries", 1)
	viper.SetDefault("completion.retry_backoff", time.Second)
	viper.SetDefault("completion.requests_per_sec", 5.0)
	viper.SetDefault("completion.burst", 10)

	viper.SetDefault("defaults.temperature", 0.7)
	viper.SetDefault("defaults.max_tokens", 1000)
	viper.SetDefault("defaults.memory", 5)
	viper.SetDefault("defaults.system_prompt", "You are a helpful assistant.")

	viper.SetDefault("rate_limit.max_messages", 4)
	viper.SetDefault("rate_limit.window", time.Minute)
	viper.SetDefault("rate_limit.cooldown", 5*time.Second)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.default_expiration", 24*time.Hour)
	viper.SetDefault("storage.memory.cleanup_interval", time.Hour)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stdout")

	viper.SetDefault("monitoring.metrics.path", "/metrics")
	viper.SetDefault("monitoring.metrics.port", 9090)

	viper.SetDefault("i18n.default_language", "en")
	viper.SetDefault("i18n.languages", []string{"en"})
	viper.SetDefault("i18n.directory", "configs/i18n")
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.Token == "" {
		return fmt.Errorf("bot token is required")
	}
	if cfg.Completion.BaseURL == "" {
		return fmt.Errorf("completion base URL is required")
	}
	if cfg.Defaults.Model == "" {
		return fmt.Errorf("default model is required")
	}
	return nil
}
