package tavily

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

	"github.com/mohammad-safakhou/sourcer/tools/web_fetch/models"
	"github.com/mohammad-safakhou/sourcer/utils"
)

const endpoint = "https://api.tavily.com/extract"

// Extract pulls page content through the Tavily extract API.
type Extract struct {
	ApiKey   string
	BaseURL  string
	MaxChars int
	Client   *http.Client
}

type extractResponse struct {
	Results []struct {
		URL        string `json:"url"`
		RawContent string `json:"raw_content"`
	} `json:"results"`
	FailedResults []struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	} `json:"failed_results"`
}

func (e Extract) Exec(ctx context.Context, rawURL string) (models.Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return models.Result{}, errors.New("invalid url")
	}
	t0 := time.Now()
	body, err := json.Marshal(map[string]any{"urls": []string{rawURL}})
	if err != nil {
		return models.Result{}, err
	}
	url := endpoint
	if e.BaseURL != "" {
		url = e.BaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.ApiKey)
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Result{}, fmt.Errorf("tavily extract status %d: %s", resp.StatusCode, string(b))
	}
	var raw extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return models.Result{}, err
	}
	ms := int(time.Since(t0) / time.Millisecond)
	if len(raw.Results) == 0 {
		return models.Result{URL: rawURL, Status: 599, RenderMS: ms}, nil
	}
	text := strings.TrimSpace(raw.Results[0].RawContent)
	if e.MaxChars > 0 {
		text = utils.Truncate(text, e.MaxChars)
	}
	return models.Result{URL: rawURL, Text: text, Status: 200, RenderMS: ms}, nil
}
