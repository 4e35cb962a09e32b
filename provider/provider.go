package provider

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sourcer/config"
	openai_provider "github.com/mohammad-safakhou/sourcer/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
	Gemini    Client = "gemini"
)

// ErrMissingAPIKey is returned when the selected provider has no credentials.
var ErrMissingAPIKey = errors.New("llm api key not set")

// Provider is the interface that all LLM implementations must satisfy
type Provider interface {
	// Complete sends a system and user prompt and returns the first choice.
	// With jsonMode the model is asked for a single JSON object.
	Complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
	Model() string
}

// NewProvider creates a new LLM client based on the provided configuration
func NewProvider(cfg config.LLMConfig, logger *zap.Logger) (Provider, error) {
	switch Client(cfg.Provider) {
	case OpenAI:
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		return openai_provider.NewOpenAIClient(openai_provider.Options{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}, logger), nil
	case Anthropic:
		return nil, errors.New("anthropic client not implemented yet")
	case Gemini:
		return nil, errors.New("gemini client not implemented yet")
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
