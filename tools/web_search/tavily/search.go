package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mohammad-safakhou/sourcer/tools/web_search/models"
)

const endpoint = "https://api.tavily.com/search"

type Search struct {
	ApiKey  string
	BaseURL string
	Client  *http.Client
}

type searchRequest struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	SearchDepth    string   `json:"search_depth,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	Days           int      `json:"days,omitempty"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (s Search) Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]models.Result, error) {
	// https://docs.tavily.com/documentation/api-reference/endpoint/search
	payload := searchRequest{Query: q, MaxResults: k, SearchDepth: "advanced", IncludeDomains: sites}
	if recency > 0 {
		payload.Days = recency
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	url := endpoint
	if s.BaseURL != "" {
		url = s.BaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.ApiKey)
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
		return nil, fmt.Errorf("tavily status %d: %s", resp.StatusCode, string(b))
	}
	var raw searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]models.Result, 0, len(raw.Results))
	for _, r := range raw.Results {
		if len(out) >= k {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.URL, Snippet: r.Content, Score: r.Score})
	}
	return out, nil
}
