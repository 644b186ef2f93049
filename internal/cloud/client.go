// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/jeranaias/chatdesk/internal/model"
)

// Fixed request parameters.
const (
	// DefaultBaseURL is the OpenAI-compatible Groq API root.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// Model is the backing model identifier.
	Model = "llama3-70b-8192"

	// Temperature is the sampling temperature.
	Temperature = 0.7

	// MaxTokens caps the reply length.
	MaxTokens = 2048

	// DefaultTimeout bounds one completion exchange.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum accepted response body.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024
)

// ChatMessage is one {role, content} entry of a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: string(model.RoleUser), Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: string(model.RoleAssistant), Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: string(model.RoleSystem), Content: content}
}

// =============================================================================
// CLIENT
// =============================================================================

// ClientConfig configures a Client. Zero values use the defaults.
type ClientConfig struct {
	// APIKey is the bearer credential (GROQ_API_KEY).
	APIKey string

	// BaseURL overrides DefaultBaseURL (tests, proxies).
	BaseURL string

	// Timeout overrides DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the underlying HTTP client. Its Timeout is left
	// untouched.
	HTTPClient *http.Client

	// Logger receives request logs. Keys are never logged.
	Logger *zap.Logger
}

// Client sends single-attempt chat completion requests to Groq.
// It is safe for concurrent use.
type Client struct {
	mu     sync.RWMutex
	apiKey string
	api    *openai.Client

	baseURL   string
	transport *capturingDoer
	logger    *zap.Logger
}

// NewClient creates a client from cfg.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		transport: &capturingDoer{client: cfg.HTTPClient, logger: cfg.Logger},
		logger:    cfg.Logger,
	}
	c.SetAPIKey(cfg.APIKey)
	return c
}

// SetAPIKey replaces the credential. An empty key unconfigures the client.
func (c *Client) SetAPIKey(apiKey string) {
	apiKey = strings.TrimSpace(apiKey)
	var api *openai.Client
	if apiKey != "" {
		oc := openai.DefaultConfig(apiKey)
		oc.BaseURL = c.baseURL
		oc.HTTPClient = c.transport
		api = openai.NewClientWithConfig(oc)
	}

	c.mu.Lock()
	c.apiKey = apiKey
	c.api = api
	c.mu.Unlock()
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

// BaseURL returns the API root in use.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// COMPLETION
// =============================================================================

// Complete validates messages, sends one completion request, and returns the
// assistant reply. Failures are *Error values; validation and configuration
// failures happen before any network activity. There are no retries.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	if err := ValidateMessages(messages); err != nil {
		return "", err
	}

	c.mu.RLock()
	api := c.api
	c.mu.RUnlock()
	if api == nil {
		return "", newError(KindConfig, http.StatusInternalServerError, msgNotConfigured, nil)
	}

	req := openai.ChatCompletionRequest{
		Model:       Model,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	ctx, ex := withExchange(ctx)
	start := time.Now()
	resp, err := api.CreateChatCompletion(ctx, req)
	if err != nil {
		gwErr := classify(err, ex)
		c.logger.Warn("completion failed",
			zap.String("kind", gwErr.Kind.String()),
			zap.Int("status", gwErr.Status),
			zap.Duration("duration", time.Since(start)),
			zap.Error(gwErr))
		return "", gwErr
	}

	if len(resp.Choices) == 0 {
		return "", newError(KindMalformed, http.StatusInternalServerError, msgMalformed, nil)
	}
	msg := resp.Choices[0].Message
	if msg.Content == "" {
		return "", newError(KindMalformed, http.StatusInternalServerError, msgMalformed, nil)
	}

	c.logger.Debug("completion succeeded",
		zap.Int("messages", len(messages)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)))
	return msg.Content, nil
}

// ValidateMessages checks the request shape: a non-empty list whose entries
// all carry a known role and non-empty content, including at least one user
// message.
func ValidateMessages(messages []ChatMessage) error {
	if len(messages) == 0 {
		return validationError(msgEmptyMessages)
	}
	hasUser := false
	for _, m := range messages {
		if m.Content == "" || !model.Role(m.Role).IsValid() {
			return validationError(msgInvalidMessage)
		}
		if m.Role == string(model.RoleUser) {
			hasUser = true
		}
	}
	if !hasUser {
		return validationError(msgNoUserMessage)
	}
	return nil
}

// classify maps a go-openai failure onto the gateway taxonomy. The captured
// exchange tells a response that arrived (upstream or malformed) apart from
// one that never did (transport).
func classify(err error, ex *exchange) *Error {
	status, body, responded := ex.result()

	if responded && (status < 200 || status > 299) {
		detail := strings.TrimSpace(body)
		if detail == "" {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) {
				detail = apiErr.Message
			} else {
				detail = http.StatusText(status)
			}
		}
		return newError(KindUpstream, status, msgUpstreamPrefix+detail, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return newError(KindUpstream, apiErr.HTTPStatusCode, msgUpstreamPrefix+apiErr.Message, err)
	}

	if responded && ex.readErr() == nil {
		return newError(KindMalformed, http.StatusInternalServerError, msgMalformed, err)
	}
	return newError(KindTransport, http.StatusInternalServerError, msgTransportPrefix, err)
}
