package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"spoke-graph/backend/internal/adapter"
	apperrors "spoke-graph/backend/pkg/errors"
	"spoke-graph/backend/pkg/logger"
)

// ErrEmptyQuestion is returned when the question is blank
var ErrEmptyQuestion = errors.New("question is empty")

// Generator is the LLM surface used by the chat front ends
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userMsg string) (*adapter.Response, error)
}

// Asker forwards questions straight to the LLM
type Asker struct {
	llm     Generator
	prompts Prompts
	cache   Cache
	logger  *zap.Logger
}

// NewAsker creates a direct question front end. cache may be nil.
func NewAsker(llm Generator, prompts Prompts, cache Cache) *Asker {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Asker{
		llm:     llm,
		prompts: prompts,
		cache:   cache,
		logger:  logger.Named("asker"),
	}
}

// Ask returns the model's reply to question
func (a *Asker) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	key := cacheKey("ask", question)
	if cached, ok, err := a.cache.Get(ctx, key); err != nil {
		a.logger.Warn("Cache lookup failed", zap.Error(err))
	} else if ok {
		a.logger.Debug("Answer served from cache", zap.String("key", key))
		return cached, nil
	}

	resp, err := a.llm.Generate(ctx, a.prompts.System, question)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", apperrors.ErrAgentNoResponse
	}

	if err := a.cache.Set(ctx, key, resp.Content); err != nil {
		a.logger.Warn("Cache store failed", zap.Error(err))
	}
	return resp.Content, nil
}
