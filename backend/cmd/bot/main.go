package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"spoke-graph/backend/internal/adapter"
	"spoke-graph/backend/internal/chat"
	"spoke-graph/backend/internal/discord"
	"spoke-graph/backend/internal/graph"
	"spoke-graph/backend/pkg/config"
	"spoke-graph/backend/pkg/logger"
)

// Required intents:
//   - IntentsGuilds: Access to guild information
//   - IntentsGuildMessages: Read messages in guild channels
//   - IntentsDirectMessages: Read DM messages
const botIntents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting Discord bot...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	if cfg.DiscordBotToken == "" {
		log.Fatal("DISCORD_BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := graph.Connect(ctx, graph.ConnectOptions{
		URI:      cfg.Neo4jURI,
		User:     cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
		Timeout:  cfg.Neo4jTimeout,
	})
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	defer repo.Close()

	prompts, err := chat.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		log.Fatal("Failed to load prompts", zap.Error(err))
	}

	llm := adapter.NewLLMAdapter(cfg.LLMURL, cfg.LLMAPIKey, cfg.ModelID)
	llm.SetTemperature(cfg.Temperature)

	qa := chat.NewGraphQA(llm, repo, prompts, chat.QAOptions{
		MaxAttempts: cfg.QAMaxAttempts,
		MaxRows:     cfg.QAMaxRows,
		Schema:      repo.Describe,
		Cache:       answerCache(cfg, log),
		Logger:      logger.Named("graphqa"),
	})

	// Create Discord session
	dg, err := newSession(cfg.DiscordBotToken)
	if err != nil {
		log.Fatal("Failed to create Discord session", zap.Error(err))
	}

	messageHandler := discord.NewHandler(qa, logger.Named("discord"))
	dg.AddHandler(messageHandler.HandleMessage)

	log.Info("Discord bot intents configured",
		zap.Bool("guilds", (dg.Identify.Intents&discordgo.IntentsGuilds) != 0),
		zap.Bool("guild_messages", (dg.Identify.Intents&discordgo.IntentsGuildMessages) != 0),
		zap.Bool("direct_messages", (dg.Identify.Intents&discordgo.IntentsDirectMessages) != 0),
	)

	// Open connection
	if err := dg.Open(); err != nil {
		log.Fatal("Failed to open Discord connection", zap.Error(err))
	}
	defer dg.Close()

	log.Info("Discord bot is running. Press CTRL-C to exit.")
	<-ctx.Done()

	log.Info("Shutting down Discord bot...")
}

// newSession creates a bot session with the intents the question handler needs
func newSession(token string) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = botIntents
	return dg, nil
}

// answerCache returns a Redis cache when configured, otherwise no cache
func answerCache(cfg *config.Config, log *zap.Logger) chat.Cache {
	if cfg.RedisAddr == "" {
		return chat.NoopCache{}
	}
	cache, err := chat.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.CacheTTL)
	if err != nil {
		log.Warn("Redis unavailable, answers will not be cached", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		return chat.NoopCache{}
	}
	return cache
}
