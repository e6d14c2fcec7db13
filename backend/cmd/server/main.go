package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spoke-graph/backend/internal/adapter"
	"spoke-graph/backend/internal/chat"
	"spoke-graph/backend/internal/graph"
	"spoke-graph/backend/pkg/config"
	"spoke-graph/backend/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
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

	cache := answerCache(cfg, log)

	a := &api{
		asker: chat.NewAsker(llm, prompts, cache),
		qa: chat.NewGraphQA(llm, repo, prompts, chat.QAOptions{
			MaxAttempts: cfg.QAMaxAttempts,
			MaxRows:     cfg.QAMaxRows,
			Schema:      repo.Describe,
			Cache:       cache,
		}),
		stats: repo,
		log:   log,
	}

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: newRouter(a),
	}

	if err := run(ctx, srv, log); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
	log.Info("Server exited")
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
	log.Info("Answer cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.CacheTTL))
	return cache
}

// run serves until ctx is cancelled, then shuts the server down gracefully
func run(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
