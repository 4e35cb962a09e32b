package serper

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

const endpoint = "https://google.serper.dev/search"

type Search struct {
	ApiKey  string
	BaseURL string
	Client  *http.Client
}

func (s Search) Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]models.Result, error) {
	// https://serper.dev/ docs
	query := q
	if len(sites) > 0 {
		parts := make([]string, len(sites))
		for i, site := range sites {
			parts[i] = "site:" + site
		}
		query += " (" + strings.Join(parts, " OR ") + ")"
	}
	payload := map[string]any{"q": query, "num": k}
	if recency > 0 {
		payload["tbs"] = fmt.Sprintf("qdr:d%d", recency)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	url := endpoint
	if s.BaseURL != "" {
		url = s.BaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.ApiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("serper status %d: %s", resp.StatusCode, string(b))
	}
	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []models.Result
	if items, ok := raw["organic"].([]any); ok {
		for _, it := range items {
			if len(out) >= k {
				break
			}
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, models.Result{
				Title: utils.Str(m["title"]), URL: utils.Str(m["link"]), Snippet: utils.Str(m["snippet"]),
			})
		}
	}
	return out, nil
}

func (s Search) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}
