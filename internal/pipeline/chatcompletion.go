package pipeline

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
)

// ChatConfig captures the settings for an OpenAI-compatible endpoint.
type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Title       string
	Temperature float64

	// TimeoutSeconds bounds each HTTP call. Zero leaves the call bounded only
	// by the caller's context.
	TimeoutSeconds int
}

// ChatCompletionExtractor is the Extractor for OpenAI-compatible
// chat-completions endpoints. It makes exactly one request per call.
type ChatCompletionExtractor struct {
	cfg        ChatConfig
	httpClient *http.Client
}

// ChatOption customizes the extractor.
type ChatOption func(*ChatCompletionExtractor)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) ChatOption {
	return func(c *ChatCompletionExtractor) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewChatCompletionExtractor constructs the extractor.
func NewChatCompletionExtractor(cfg ChatConfig, opts ...ChatOption) *ChatCompletionExtractor {
	c := &ChatCompletionExtractor{
		cfg: ChatConfig{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			Title:          strings.TrimSpace(cfg.Title),
			Temperature:    cfg.Temperature,
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{},
	}
	if cfg.TimeoutSeconds > 0 {
		c.httpClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = DefaultChatBaseURL
	}
	if c.cfg.Model == "" {
		c.cfg.Model = DefaultChatModel
	}
	return c
}

// Name returns the backend and model identifier.
func (c *ChatCompletionExtractor) Name() string {
	return "chat:" + c.cfg.Model
}

// HTTPStatusError is returned for non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("chat completion: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// EmptyContentError is returned when the response has no usable content.
type EmptyContentError struct {
	FinishReason string
	Refusal      string
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("chat completion: empty content (finish_reason=%q, refusal=%q)", e.FinishReason, e.Refusal)
}

func (e *EmptyContentError) Unwrap() error {
	return ErrEmptyCompletion
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatCompletionMessage `json:"message"`
		Text         string                `json:"text"`
		FinishReason string                `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatCompletionMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

// Complete sends one chat completion request and returns the content of the
// first non-empty choice. Failures are returned as-is; there is no retry.
func (c *ChatCompletionExtractor) Complete(ctx context.Context, systemInstruction, userMessage string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("chat completion: api key required")
	}

	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: userMessage},
		},
		Temperature: c.cfg.Temperature,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("chat completion: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("chat completion: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("chat completion: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("chat completion: decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("chat completion: api error: %s", strings.TrimSpace(completion.Error.Message))
	}

	var finishReason, refusal string
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = choice.FinishReason
		}
		if refusal == "" {
			refusal = choice.Message.Refusal
		}
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if text := strings.TrimSpace(choice.Text); text != "" {
			return text, nil
		}
	}
	return "", &EmptyContentError{FinishReason: finishReason, Refusal: refusal}
}
