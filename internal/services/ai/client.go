package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ds-ai-discord-bot/internal/config"
	"github.com/ds-ai-discord-bot/internal/middleware"
	"github.com/ds-ai-discord-bot/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Error classes for completion requests. Callers dispatch on these with
// errors.Is; only ErrTransient is retried.
var (
	// ErrTransient covers network failures and upstream 5xx responses.
	ErrTransient = errors.New("transient upstream error")
	// ErrModelUnavailable means the upstream explicitly rejected the
	// requested model. Not retried.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrMalformedResponse means the response body matched no recognized
	// schema. Not retried.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

const modelCacheKey = "models"

// Client talks to an OpenAI-compatible chat completion API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	modelCache *cache.Cache

	maxRetries   int
	retryBackoff time.Duration

	metrics *middleware.Metrics
	logger  *logrus.Logger
}

// NewClient creates a completion client from config.
func NewClient(cfg *config.CompletionConfig, metrics *middleware.Metrics, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		modelCache:   cache.New(cfg.ModelCacheTTL, 2*cfg.ModelCacheTTL),
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		metrics:      metrics,
		logger:       logger,
	}
}

// ListModels returns the models offered by the endpoint. Results are cached
// for the configured TTL so command registration does not hit the API on
// every refresh cycle.
func (c *Client) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	if val, found := c.modelCache.Get(modelCacheKey); found {
		return val.([]models.ModelInfo), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
		}
		return nil, fmt.Errorf("model list failed with status %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Data []models.ModelInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.Data == nil {
		c.logger.WithField("body", string(body)).Error("Unrecognized model list response")
		return nil, fmt.Errorf("%w: model list", ErrMalformedResponse)
	}

	c.modelCache.SetDefault(modelCacheKey, result.Data)
	return result.Data, nil
}

// Complete sends the conversation to the completion API and returns the
// assistant reply. Transient failures are retried up to the configured
// maximum with exponential backoff; other failures surface immediately.
func (c *Client) Complete(ctx context.Context, messages []models.Message, params models.RequestParameters) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.RecordCompletionRetry()
			// Backoff doubles per retry: base, 2*base, ...
			wait := c.retryBackoff << uint(attempt-1)
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"wait":    wait,
				"model":   params.Model,
			}).Warn("Retrying completion request")

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		reply, err := c.complete(ctx, messages, params)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if !errors.Is(err, ErrTransient) {
			return "", err
		}
	}

	return "", fmt.Errorf("all retry attempts failed: %w", lastErr)
}

func (c *Client) complete(ctx context.Context, messages []models.Message, params models.RequestParameters) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	reqBody := map[string]interface{}{
		"model":             params.Model,
		"messages":          messages,
		"temperature":       params.Temperature,
		"max_tokens":        params.MaxTokens,
		"top_p":             1.0,
		"frequency_penalty": 0.0,
		"presence_penalty":  0.0,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.WithFields(logrus.Fields{
		"model":      params.Model,
		"messages":   len(messages),
		"max_tokens": params.MaxTokens,
	}).Debug("Sending completion request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.classifyFailure(resp.StatusCode, body, params.Model)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.WithField("body", string(body)).Error("Unrecognized completion response")
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if result.Error.Message != "" {
		return "", fmt.Errorf("upstream error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		c.logger.WithField("body", string(body)).Error("Completion response has no choices")
		return "", fmt.Errorf("%w: empty choices", ErrMalformedResponse)
	}

	return result.Choices[0].Message.Content, nil
}

func (c *Client) classifyFailure(status int, body []byte, model string) error {
	var errBody struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &errBody)

	if status == http.StatusNotFound || errBody.Error.Code == "model_not_found" {
		return fmt.Errorf("%w: %s", ErrModelUnavailable, model)
	}

	if status >= 500 {
		return fmt.Errorf("%w: status %d: %s", ErrTransient, status, body)
	}

	c.logger.WithFields(logrus.Fields{
		"status": status,
		"body":   string(body),
	}).Error("Completion request failed")

	return fmt.Errorf("completion failed with status %d: %s", status, errBody.Error.Message)
}
