package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	openaiAPIURL = "https://api.openai.com/v1"
)

// Options configures the client.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// client implements the client interface using OpenAI's API
type client struct {
	apiKey          string
	endpoint        string
	completionModel string
	temperature     float64
	maxTokens       int
	httpClient      *http.Client
	logger          *zap.Logger
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// request represents a request to the OpenAI API
type request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// response represents a response from the OpenAI API
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(opts Options, logger *zap.Logger) *client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = openaiAPIURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &client{
		apiKey:          opts.APIKey,
		endpoint:        base + "/chat/completions",
		completionModel: opts.Model,
		temperature:     opts.Temperature,
		maxTokens:       opts.MaxTokens,
		httpClient:      &http.Client{Timeout: timeout},
		logger:          logger.Named("openai"),
	}
}

func (c *client) Model() string { return c.completionModel }

// Complete sends a system + user prompt pair and returns the model's reply.
func (c *client) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	messages := make([]Message, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	messages = append(messages, Message{Role: "user", Content: user})
	return c.sendRequest(ctx, messages, jsonMode)
}

// sendRequest sends a request to the OpenAI API
func (c *client) sendRequest(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	requestBody := request{
		Model:       c.completionModel,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if jsonMode {
		requestBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	c.logger.Debug("sending completion request",
		zap.String("model", c.completionModel),
		zap.Float64("temperature", c.temperature),
		zap.Int("max_tokens", c.maxTokens),
		zap.Int("messages", len(messages)),
		zap.Bool("json", jsonMode))

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	c.logger.Debug("completion response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
		zap.Int("bytes", len(body)))

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(body), 512))
	}

	var openaiResp response
	if err := json.Unmarshal(body, &openaiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(openaiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return openaiResp.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
