package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"spoke-graph/backend/internal/chat"
	"spoke-graph/backend/internal/graph"
	apperrors "spoke-graph/backend/pkg/errors"
)

const requestIDHeader = "X-Request-ID"

type directAsker interface {
	Ask(ctx context.Context, question string) (string, error)
}

type graphAsker interface {
	Ask(ctx context.Context, question string) (*chat.Answer, error)
}

type statsSource interface {
	Stats(ctx context.Context) (*graph.Stats, error)
}

// api holds the handlers' dependencies
type api struct {
	asker directAsker
	qa    graphAsker
	stats statsSource
	log   *zap.Logger
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

func newRouter(a *api) *gin.Engine {
	router := gin.New()
	router.Use(requestID())
	router.Use(ginLogger(a.log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+requestIDHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/ask", a.handleAsk)
		apiGroup.POST("/graph/ask", a.handleGraphAsk)
		apiGroup.GET("/graph/stats", a.handleStats)
	}

	return router
}

func (a *api) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "request_id": c.GetString("request_id")})
		return
	}

	answer, err := a.asker.Ask(c.Request.Context(), req.Question)
	if err != nil {
		a.fail(c, "Failed to answer question", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answer":     answer,
		"request_id": c.GetString("request_id"),
	})
}

func (a *api) handleGraphAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "request_id": c.GetString("request_id")})
		return
	}

	answer, err := a.qa.Ask(c.Request.Context(), req.Question)
	if err != nil {
		a.fail(c, "Failed to answer graph question", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answer":     answer.Format(),
		"found":      answer.Found(),
		"result":     answer,
		"request_id": c.GetString("request_id"),
	})
}

func (a *api) handleStats(c *gin.Context) {
	stats, err := a.stats.Stats(c.Request.Context())
	if err != nil {
		a.fail(c, "Failed to fetch graph stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *api) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error(msg, zap.String("request_id", c.GetString("request_id")), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "request_id": c.GetString("request_id")})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	var unsafe *apperrors.ErrUnsafeQuery
	var unreachable *apperrors.ErrStoreUnreachable
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion), errors.As(err, &unsafe):
		return http.StatusBadRequest
	case apperrors.IsErrorType(err, apperrors.ErrorTypeContext):
		return http.StatusGatewayTimeout
	case errors.As(err, &unreachable):
		return http.StatusServiceUnavailable
	case apperrors.IsErrorType(err, apperrors.ErrorTypeAgent):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// requestID tags every request with an id, reusing the caller's when present
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		)
	}
}
