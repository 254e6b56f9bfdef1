package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/ds-ai-discord-bot/internal/config"
	"github.com/ds-ai-discord-bot/internal/handlers"
	"github.com/ds-ai-discord-bot/internal/i18n"
	"github.com/ds-ai-discord-bot/internal/middleware"
	"github.com/ds-ai-discord-bot/internal/services/ai"
	"github.com/ds-ai-discord-bot/internal/services/memory"
	"github.com/ds-ai-discord-bot/internal/services/settings"
	"github.com/ds-ai-discord-bot/internal/services/storage"
	"github.com/ds-ai-discord-bot/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// It's okay if .env doesn't exist
	if err := godotenv.Load(*envFile); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting Discord bot...")

	store, err := storage.NewStorage(&cfg.Storage, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	metrics := middleware.NewMetrics()
	client := ai.NewClient(&cfg.Completion, metrics, log)
	settingsStore := settings.NewStore(cfg.Defaults, store, metrics, log)
	conversations := memory.NewConversations()

	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	defer rateLimiter.Stop()
	inflight := middleware.NewInflight()

	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	chatHandler := handlers.NewChatHandler(
		cfg,
		client,
		settingsStore,
		conversations,
		rateLimiter,
		inflight,
		metrics,
		localizer,
		log,
	)

	commandHandler := handlers.NewCommandHandler(
		cfg,
		client,
		settingsStore,
		conversations,
		metrics,
		localizer,
		log,
	)

	session, err := discordgo.New("Bot " + cfg.Bot.Token)
	if err != nil {
		log.WithError(err).Fatal("Failed to create Discord session")
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(chatHandler.HandleMessageCreate)
	session.AddHandler(commandHandler.HandleInteractionCreate)

	if err := session.Open(); err != nil {
		log.WithError(err).Fatal("Failed to open Discord session")
	}
	defer session.Close()

	log.WithField("username", session.State.User.Username).Info("Bot connected")

	if err := commandHandler.Register(session); err != nil {
		log.WithError(err).Fatal("Failed to register slash commands")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutdown signal received")

	log.Info("Bot stopped")
}
