// Package llm talks to the external completion service over its messages
// HTTP API. The gateway owns retry and repair policy; this layer only maps
// transport outcomes onto typed errors so callers can tell a timeout from
// a refusal.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aman-ankur/labextract/internal/config"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
)

const messagesPath = "/v1/messages"

// CompletionRequest is one prompt pair sent to the service.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// CompletionResponse carries the raw model text plus the billed token
// counts the tracker accumulates.
type CompletionResponse struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	StopReason   string `json:"stop_reason,omitempty"`
}

// Client is the completion transport. Implementations must honor ctx
// cancellation and never retry on their own.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Model() string
}

// Wire format of the messages endpoint.

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []message `json:"messages"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Model   string         `json:"model"`
	Usage   usage          `json:"usage"`
	// StopReason distinguishes a natural end from a max_tokens cut, which
	// the gateway treats as a likely-truncated JSON payload.
	StopReason string `json:"stop_reason"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type httpClient struct {
	apiKey     string
	apiVersion string
	model      string
	maxTokens  int
	endpoint   string
	client     *http.Client
	logger     logging.Logger
}

var _ Client = (*httpClient)(nil)

// NewClient builds the HTTP completion client. The API key is required
// here and nowhere else, so gateway-free runs never need one.
func NewClient(cfg *config.LLMConfig, logger logging.Logger) (Client, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrCodeConfig, "llm config is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New(errors.ErrCodeConfig, "llm api key is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeConfig, "llm base url is required")
	}

	return &httpClient{
		apiKey:     cfg.APIKey,
		apiVersion: cfg.APIVersion,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + messagesPath,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logging.OrNop(logger).Named("llm"),
	}, nil
}

func (c *httpClient) Model() string { return c.model }

func (c *httpClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	body, err := json.Marshal(messagesRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		System:      req.System,
		Temperature: req.Temperature,
	})
	if err != nil {
		return CompletionResponse{}, errors.Wrap(err, errors.ErrCodeInternal, "marshal completion request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, errors.Wrap(err, errors.ErrCodeInternal, "build completion request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", c.apiVersion)

	start := time.Now()
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, c.transportError(ctx, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return CompletionResponse{}, errors.Wrap(err, errors.ErrCodeGatewayUnavailable, "read completion response")
	}

	if httpResp.StatusCode != http.StatusOK {
		return CompletionResponse{}, c.statusError(httpResp.StatusCode, respBody)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return CompletionResponse{}, errors.Wrap(err, errors.ErrCodeGatewayResponse, "decode completion response")
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return CompletionResponse{}, errors.New(errors.ErrCodeGatewayResponse, "completion response has no text content")
	}

	resp := CompletionResponse{
		Text:         text.String(),
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		StopReason:   parsed.StopReason,
	}
	c.logger.Debug("completion finished",
		logging.String("model", c.model),
		logging.Int("input_tokens", resp.InputTokens),
		logging.Int("output_tokens", resp.OutputTokens),
		logging.Duration("duration", time.Since(start)))
	return resp, nil
}

// transportError classifies a failed round trip: deadline pressure maps to
// the timeout code the pipeline uses as a fallback trigger, caller
// cancellation stays cancellation, everything else is unavailable.
// http.Client.Do always returns *url.Error.
func (c *httpClient) transportError(ctx context.Context, err error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return errors.Wrap(err, errors.ErrCodeGatewayTimeout, "completion call timed out")
	case context.Canceled:
		return errors.Wrap(err, errors.ErrCodeCancelled, "completion call cancelled")
	}
	if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
		return errors.Wrap(err, errors.ErrCodeGatewayTimeout, "completion call timed out")
	}
	return errors.Wrap(err, errors.ErrCodeGatewayUnavailable, "completion call failed")
}

func (c *httpClient) statusError(status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	switch {
	case status == http.StatusTooManyRequests:
		return errors.Newf(errors.ErrCodeGatewayRateLimited, "completion rate limited: %s", snippet)
	case status >= 500:
		return errors.Newf(errors.ErrCodeGatewayUnavailable, "completion service error %d: %s", status, snippet)
	default:
		return errors.Newf(errors.ErrCodeGatewayResponse, "completion request rejected with %d: %s", status, snippet)
	}
}
