// Package llm talks to an OpenAI-compatible chat-completions endpoint
// (OpenRouter by default) and asks for schema-constrained JSON replies.
package llm

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

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/example/nutriscan/internal/logging"
	"github.com/example/nutriscan/internal/retry"
)

// ErrEmptyCompletion is returned when the model answers with no content.
var ErrEmptyCompletion = errors.New("llm: empty completion")

const maxResponseBytes = 1 << 20

// Completer is the single call the extraction and advice steps need.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Schema describes the JSON object the model must return.
type Schema struct {
	Name   string
	Schema map[string]interface{}
}

// Request is one chat turn. System and User are sent as separate messages;
// an empty User message is omitted.
type Request struct {
	System string
	User   string
	Schema *Schema
}

// Config holds endpoint settings.
type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	Timeout       time.Duration
	RetryAttempts int
}

// StatusError is a non-2xx answer from the endpoint.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("llm: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("llm: unexpected status %d: %s", e.StatusCode, e.Message)
}

// Temporary marks rate limiting and server errors as retryable.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
	policy     retry.Policy
	logger     *zap.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// NewClient builds a client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	policy := retry.DefaultPolicy()
	if cfg.RetryAttempts > 0 {
		policy.Attempts = cfg.RetryAttempts
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		policy:     policy,
		logger:     logger.Named("llm_client"),
	}
}

// Complete sends req and returns the assistant message content.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	requestID := logging.RequestID(ctx)

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return "", logging.NewOperationError("llm.encode_request", requestID, err)
	}

	var content string
	err = retry.Do(ctx, c.policy, c.logger, "llm.complete", requestID, func() error {
		var callErr error
		content, callErr = c.post(ctx, body)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) buildRequest(req Request) chatRequest {
	messages := []chatMessage{{Role: "system", Content: req.System}}
	if req.User != "" {
		messages = append(messages, chatMessage{Role: "user", Content: req.User})
	}
	out := chatRequest{Model: c.model, Messages: messages}
	if req.Schema != nil {
		out.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormat{
				Name:   req.Schema.Name,
				Strict: true,
				Schema: req.Schema.Schema,
			},
		}
	}
	return out
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(payload, "error.message").String(),
		}
	}

	if !gjson.ValidBytes(payload) {
		return "", fmt.Errorf("llm: response is not valid JSON")
	}
	if msg := gjson.GetBytes(payload, "error.message"); msg.Exists() {
		return "", fmt.Errorf("llm: %s", msg.String())
	}

	content := strings.TrimSpace(gjson.GetBytes(payload, "choices.0.message.content").String())
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
