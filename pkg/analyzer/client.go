package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/daylogger/daylog/config"
	dlerrors "github.com/daylogger/daylog/pkg/errors"
)

// Client is the interface for the external text-completion service.
// The service is a black box: the pipeline sends a prompt and receives
// free text that is expected, but not guaranteed, to contain JSON.
type Client interface {
	// Complete sends a prompt to the inference service and returns the
	// response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest represents a request to the inference service.
type CompletionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// CompletionResponse represents a response from the inference service.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	LatencyMs    int    `json:"latency_ms"`
}

// HTTPClient implements Client against an OpenRouter-compatible
// chat-completions endpoint. All calls carry a bounded timeout and pass
// through a shared rate limiter.
type HTTPClient struct {
	cfg     config.InferenceConfig
	http    *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates an HTTP inference client from configuration.
func NewHTTPClient(cfg config.InferenceConfig) *HTTPClient {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &HTTPClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// chat-completions wire types.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete implements Client.
func (c *HTTPClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, dlerrors.Classify(err, "inference")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, dlerrors.Classify(err, "inference")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, dlerrors.NewPipelineError(dlerrors.CodeTransient, "inference", "failed to read response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, dlerrors.NewPipelineError(dlerrors.CodeRateLimit, "inference", "rate limited by inference service", nil)
	case resp.StatusCode >= 500:
		return nil, dlerrors.NewPipelineError(dlerrors.CodeTransient, "inference", fmt.Sprintf("inference service returned %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, dlerrors.NewPipelineError(dlerrors.CodeProcessing, "inference", fmt.Sprintf("inference service returned %d: %s", resp.StatusCode, truncateForError(raw)), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, dlerrors.NewPipelineError(dlerrors.CodeMalformedResponse, "inference", "response envelope is not valid JSON", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, dlerrors.NewPipelineError(dlerrors.CodeMalformedResponse, "inference", "response contains no choices", nil)
	}

	return &CompletionResponse{
		Content:      parsed.Choices[0].Message.Content,
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		LatencyMs:    int(time.Since(start).Milliseconds()),
	}, nil
}

func truncateForError(b []byte) string {
	const max = 200
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}

// Verify interface compliance
var _ Client = (*HTTPClient)(nil)
