package web_fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/sourcer/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/sourcer/tools/web_fetch/models"
	"github.com/mohammad-safakhou/sourcer/tools/web_fetch/tavily"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	ChromedpFetcherType FetcherType = "chromedp"
	TavilyFetcherType   FetcherType = "tavily"
)

type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }

var (
	ErrUnsupportedFetcher = &Error{"unsupported fetcher type"}
	ErrMissingAPIKey      = &Error{"missing extract api key"}
)

// NewWebFetcher builds a fetcher. apiKey is only used by API-backed fetchers.
func NewWebFetcher(fetcherType FetcherType, timeout time.Duration, maxChars int, apiKey string) (WebFetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch fetcherType {
	case ChromedpFetcherType:
		return &chromedp.Fetch{Timeout: timeout, MaxChars: maxChars}, nil
	case TavilyFetcherType:
		if apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		return &tavily.Extract{ApiKey: apiKey, MaxChars: maxChars, Client: &http.Client{Timeout: timeout}}, nil
	default:
		return nil, ErrUnsupportedFetcher
	}
}
