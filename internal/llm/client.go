// Package llm is a minimal client for OpenAI-compatible chat completion
// endpoints. It makes exactly one request per call; callers own retries.
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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	appErr "github.com/workflow-builder/engine/pkg/errors"
	"github.com/workflow-builder/engine/pkg/logger"
	"github.com/workflow-builder/engine/pkg/telemetry"
)

// ResponseFormat selects how the model must shape its reply.
type ResponseFormat string

const (
	FormatText       ResponseFormat = "text"
	FormatJSONObject ResponseFormat = "json_object"
)

// Completer returns the model's reply to a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string, format ResponseFormat) (string, error)
}

// Config configures the HTTP client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ErrNotConfigured is returned when no API key was provided.
var ErrNotConfigured = errors.New("OPENAI_API_KEY is not configured")

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("completion http %d: %s", e.StatusCode, e.Body)
}

// Client calls POST {BaseURL}/v1/chat/completions.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ Completer = (*Client)(nil)

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return strings.TrimSpace(c.cfg.APIKey) != "" }

// Model returns the model name sent with each request.
func (c *Client) Model() string { return c.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends one chat completion request. Transport failures, non-2xx
// statuses and empty replies are CodeProvider errors carrying the detail.
func (c *Client) Complete(ctx context.Context, system, user string, format ResponseFormat) (string, error) {
	if !c.Configured() {
		return "", appErr.Wrap(ErrNotConfigured, appErr.CodeInvalid, ErrNotConfigured.Error())
	}

	ctx, span := telemetry.StartSpan(ctx, "llm.Complete", attribute.String(telemetry.LLMModelKey, c.cfg.Model))
	defer span.End()

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if format != "" && format != FormatText {
		reqBody.ResponseFormat = map[string]string{"type": string(format)}
	}

	start := time.Now()
	raw, status, err := c.doOnce(ctx, http.MethodPost, "/v1/chat/completions", reqBody)
	span.SetAttributes(attribute.Int(telemetry.LLMStatusCodeKey, status))
	if err != nil {
		telemetry.SetError(span, err)
		logger.Ctx(ctx).Warn("completion request failed",
			zap.String("model", c.cfg.Model),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return "", appErr.Wrap(err, appErr.CodeProvider, "completion request failed")
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		telemetry.SetError(span, err)
		return "", appErr.Wrap(err, appErr.CodeProvider, "decode completion response")
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		err := errors.New("completion response has no content")
		telemetry.SetError(span, err)
		return "", appErr.Wrap(err, appErr.CodeProvider, "empty completion")
	}

	logger.Ctx(ctx).Debug("completion received",
		zap.String("model", c.cfg.Model),
		zap.String("finish_reason", resp.Choices[0].FinishReason),
		zap.Duration("duration", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, resp.StatusCode, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, resp.StatusCode, nil
}
