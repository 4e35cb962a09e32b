package chromedp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/sourcer/tools/web_fetch/models"
	"github.com/mohammad-safakhou/sourcer/utils"
)

type Fetch struct {
	Timeout  time.Duration
	MaxChars int // Maximum characters to return from the article text
}

// Exec renders the page headlessly and extracts the readable article.
// Render failures are reported through Status rather than an error.
func (f Fetch) Exec(ctx context.Context, rawURL string) (models.Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return models.Result{}, errors.New("invalid url")
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	t0 := time.Now()

	html, err := fetchHTML(ctx, rawURL)
	if err != nil {
		return models.Result{URL: rawURL, Status: 599, RenderMS: elapsedMS(t0)}, nil
	}
	return FromHTML(rawURL, html, f.MaxChars, t0), nil
}

// FromHTML runs readability over already fetched markup.
func FromHTML(rawURL, html string, maxChars int, started time.Time) models.Result {
	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(rawURL))
	if err != nil {
		return models.Result{URL: rawURL, Status: 200, RenderMS: elapsedMS(started)}
	}
	sum := sha1.Sum([]byte(html))

	return models.Result{
		URL:      rawURL,
		Title:    strings.TrimSpace(article.Title),
		Byline:   strings.TrimSpace(article.Byline),
		SiteName: article.SiteName,
		Text:     strings.TrimSpace(utils.Truncate(article.TextContent, maxChars)),
		HTMLHash: hex.EncodeToString(sum[:]),
		Status:   200,
		RenderMS: elapsedMS(started),
	}
}

func fetchHTML(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("SourcerBot/1.0 (+procurement research)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func elapsedMS(t0 time.Time) int { return int(time.Since(t0) / time.Millisecond) }

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
