package web_search

import (
	"context"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/sourcer/tools/web_search/brave"
	"github.com/mohammad-safakhou/sourcer/tools/web_search/models"
	"github.com/mohammad-safakhou/sourcer/tools/web_search/serper"
	"github.com/mohammad-safakhou/sourcer/tools/web_search/tavily"
)

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
	TavilyProvider Provider = "tavily"
)

type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }

var (
	ErrUnsupportedProvider = &Error{"unsupported provider"}
	ErrMissingAPIKey       = &Error{"missing search api key"}
)

func NewWebSearcher(provider Provider, apiKey string, timeout time.Duration) (WebSearcher, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: apiKey, Client: client}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey, Client: client}, nil
	case TavilyProvider:
		return tavily.Search{ApiKey: apiKey, Client: client}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
