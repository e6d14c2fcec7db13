package adapter

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "spoke-graph/backend/pkg/errors"
	"spoke-graph/backend/pkg/logger"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

// LLMAdapter handles communication with an OpenAI-compatible chat endpoint
// (OpenAI, LiteLLM, OpenRouter)
type LLMAdapter struct {
	client      *openai.Client
	model       string
	temperature float32
	mu          sync.RWMutex // Protects model and temperature
	maxRetries  int
	retryDelay  time.Duration
	logger      *zap.Logger
}

// Response represents the LLM's response
type Response struct {
	Content          string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// NewLLMAdapter creates a new LLM adapter. baseURL is the host without the /v1 suffix.
func NewLLMAdapter(baseURL, apiKey, modelID string) *LLMAdapter {
	// LiteLLM accepts any key when auth is disabled
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"

	return &LLMAdapter{
		client:     openai.NewClientWithConfig(config),
		model:      modelID,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		logger:     logger.Named("llm"),
	}
}

// SetModel updates the model used by this adapter
func (a *LLMAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("LLM adapter model updated", zap.String("model", model))
	}
}

// GetModel returns the current model
func (a *LLMAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// SetTemperature sets the sampling temperature for subsequent requests
func (a *LLMAdapter) SetTemperature(t float32) {
	a.mu.Lock()
	a.temperature = t
	a.mu.Unlock()
}

// Generate sends a system + user message pair and returns the first choice
func (a *LLMAdapter) Generate(ctx context.Context, systemPrompt, userMsg string) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMsg,
	})

	a.mu.RLock()
	currentModel := a.model
	temperature := a.temperature
	a.mu.RUnlock()

	// go-openai drops a zero temperature (omitempty)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	req := openai.ChatCompletionRequest{
		Model:       currentModel,
		Messages:    messages,
		Temperature: temperature,
	}

	// Retry logic with linear backoff
	var resp openai.ChatCompletionResponse
	var err error
	attempts := 0
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * a.retryDelay
			a.logger.Warn("Retrying LLM request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, apperrors.NewContextCancelled("llm generate", ctx.Err())
			case <-time.After(backoff):
			}
		}

		attempts++
		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", currentModel),
		)

		if ctx.Err() != nil {
			return nil, apperrors.NewContextCancelled("llm generate", ctx.Err())
		}
		if !isRetryable(err) {
			break
		}
	}

	if err != nil {
		return nil, apperrors.NewAgentLLMFailed(currentModel, attempts, isRetryable(err), err)
	}

	if len(resp.Choices) == 0 {
		return nil, apperrors.ErrAgentNoResponse
	}

	choice := resp.Choices[0]
	response := &Response{
		Content:          choice.Message.Content,
		Model:            resp.Model,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if response.Model == "" {
		response.Model = currentModel
	}

	a.logger.Debug("LLM response generated",
		zap.String("model", response.Model),
		zap.Int("attempts", attempts),
		zap.Int("prompt_tokens", response.PromptTokens),
		zap.Int("completion_tokens", response.CompletionTokens),
		zap.Bool("has_content", response.Content != ""),
	)

	return response, nil
}

// isRetryable treats throttling, server errors and transport failures as transient
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
