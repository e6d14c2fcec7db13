package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "spoke-graph/backend/pkg/errors"
)

// Config holds all application configuration.
// It is built once at process start and handed to every entry point.
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string // empty selects the server default database
	Neo4jTimeout  time.Duration

	// AI
	LLMURL        string
	LLMAPIKey     string
	ModelID       string
	Temperature   float32
	QAMaxAttempts int
	QAMaxRows     int
	PromptsFile   string // optional YAML overrides for the chat prompts

	// Answer cache
	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	// Discord
	DiscordBotToken string

	// Loader
	LoadLimit     int // negative means unbounded
	ProgressEvery int
	BadgerDir     string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		Neo4jURI:        getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:       getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:   getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:   getEnv("NEO4J_DATABASE", ""),
		Neo4jTimeout:    getEnvDuration("NEO4J_TIMEOUT", 10*time.Second),
		LLMURL:          getEnv("LLM_URL", "https://api.openai.com"),
		LLMAPIKey:       getEnv("LLM_API_KEY", ""),
		ModelID:         getEnv("MODEL_ID", "gpt-4o"),
		Temperature:     float32(getEnvFloat("LLM_TEMPERATURE", 0)),
		QAMaxAttempts:   getEnvInt("QA_MAX_ATTEMPTS", 3),
		QAMaxRows:       getEnvInt("QA_MAX_ROWS", 200),
		PromptsFile:     getEnv("PROMPTS_FILE", ""),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		CacheTTL:        getEnvDuration("CACHE_TTL", time.Hour),
		DiscordBotToken: getEnv("DISCORD_BOT_TOKEN", ""),
		LoadLimit:       getEnvInt("LOAD_LIMIT", -1),
		ProgressEvery:   getEnvInt("PROGRESS_EVERY", 10000),
		BadgerDir:       getEnv("BADGER_DIR", "data/badger"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.Neo4jUser == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_USER")
	}
	if c.Neo4jPassword == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
	}
	if c.LLMURL == "" {
		return apperrors.NewConfigMissingRequired("LLM_URL")
	}
	if c.ModelID == "" {
		return apperrors.NewConfigMissingRequired("MODEL_ID")
	}
	if c.QAMaxAttempts < 1 {
		return apperrors.NewConfigValidationFailed("QA_MAX_ATTEMPTS", "must be at least 1")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return apperrors.NewConfigValidationFailed("LLM_TEMPERATURE", "must be between 0 and 2")
	}
	// LLM key and Discord token are optional for development
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
