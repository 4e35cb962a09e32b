package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/sourcer/tools/web_search/models"
	"github.com/mohammad-safakhou/sourcer/utils"
)

const endpoint = "https://api.search.brave.com/res/v1/web/search"

type Search struct {
	ApiKey  string
	BaseURL string
	Client  *http.Client
}

func (s Search) Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]models.Result, error) {
	// https://api.search.brave.com/app/documentation/web-search
	query := q
	for _, site := range sites {
		query += " site:" + site
	}
	base := endpoint
	if s.BaseURL != "" {
		base = s.BaseURL
	}
	url := fmt.Sprintf("%s?q=%s&count=%d", base, utils.UrlQuery(query), k)
	switch {
	case recency <= 0:
	case recency <= 1:
		url += "&freshness=pd"
	case recency <= 7:
		url += "&freshness=pw"
	case recency <= 31:
		url += "&freshness=pm"
	default:
		url += "&freshness=py"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.ApiKey)
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("brave status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var out []models.Result
	for i, r := range raw.Web.Results {
		if i >= k {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return out, nil
}
