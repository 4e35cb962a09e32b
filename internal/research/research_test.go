package research

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/sourcer/internal/research/cache/inmemory"
	fetch_models "github.com/mohammad-safakhou/sourcer/tools/web_fetch/models"
	search_models "github.com/mohammad-safakhou/sourcer/tools/web_search/models"
)

type fakeSearcher struct {
	mu      sync.Mutex
	calls   int
	results []search_models.Result
	err     error
	lastK   int
}

func (f *fakeSearcher) Discover(_ context.Context, q string, k int, sites []string, recency int) ([]search_models.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastK = k
	return f.results, f.err
}

type fakeFetcher struct {
	pages map[string]string
	fail  map[string]error
}

func (f *fakeFetcher) Exec(_ context.Context, url string) (fetch_models.Result, error) {
	if err, ok := f.fail[url]; ok {
		return fetch_models.Result{}, err
	}
	text, ok := f.pages[url]
	if !ok {
		return fetch_models.Result{URL: url, Status: 599}, nil
	}
	return fetch_models.Result{URL: url, Title: "page", Text: text, Status: 200}, nil
}

func TestSearchMapsResultsAndCaches(t *testing.T) {
	s := &fakeSearcher{results: []search_models.Result{
		{Title: " Lanka Zinc ", URL: "https://lz.example", Snippet: "ingots"},
		{},
	}}
	r := New(s, nil, inmemory.NewInMemoryStore(time.Minute), Options{MaxResults: 5}, nil)

	leads, err := r.Search(context.Background(), "zinc suppliers in sri lanka")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Lanka Zinc", leads[0].Title)
	assert.Equal(t, 5, s.lastK)

	again, err := r.Search(context.Background(), "Zinc Suppliers in Sri Lanka")
	require.NoError(t, err)
	assert.Equal(t, leads, again)
	assert.Equal(t, 1, s.calls, "second lookup served from cache")
}

func TestSearchWithoutCache(t *testing.T) {
	s := &fakeSearcher{err: errors.New("quota")}
	r := New(s, nil, nil, Options{}, nil)
	_, err := r.Search(context.Background(), "zinc")
	assert.Error(t, err)

	_, err = New(nil, nil, nil, Options{}, nil).Search(context.Background(), "zinc")
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestExtractKeepsOrderAndSkipsFailures(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]string{
			"https://a.example": "Contact sales@a.example. MOQ: 500 kg. Lead time 7-10 days.",
			"https://c.example": "ISO 9001 certified copper cathodes from $140-160 USD",
		},
		fail: map[string]error{"https://b.example": errors.New("timeout")},
	}
	r := New(nil, f, nil, Options{Concurrency: 2}, nil)

	frags, err := r.Extract(context.Background(), []string{"https://a.example", "https://b.example", "https://c.example", "https://d.example"})
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, "https://a.example", frags[0].URL)
	assert.Equal(t, "https://c.example", frags[1].URL)
	assert.Equal(t, "500 kg", frags[0].Fields["moq"])
	assert.Equal(t, "7-10 days", frags[0].Fields["lead_time"])
	assert.Equal(t, []string{"ISO 9001"}, frags[1].Fields["certifications"])
}

func TestExtractAllFailed(t *testing.T) {
	f := &fakeFetcher{fail: map[string]error{"https://b.example": errors.New("timeout")}}
	r := New(nil, f, nil, Options{}, nil)
	_, err := r.Extract(context.Background(), []string{"https://b.example"})
	assert.Error(t, err)
}

func TestSniffFields(t *testing.T) {
	fields := SniffFields("Zinc ingots from €2,300 to €2,500. Minimum order quantity 5 tons. We respond within 24 hours. Call +94 11 234 5678 or write to info@lz.example. ISO 14001 and RoHS compliant.")
	assert.Equal(t, "€2,300 to €2,500", fields["price_range"])
	assert.Equal(t, "5 tons", fields["moq"])
	assert.Equal(t, "24 hours", fields["response_time"])
	assert.Equal(t, map[string]any{"email": "info@lz.example", "phone": "+94 11 234 5678"}, fields["contact"])
	assert.Equal(t, []string{"ISO 14001", "RoHS"}, fields["certifications"])

	assert.Nil(t, SniffFields("nothing to see here"))
}

func TestSearchDropsDuplicateURLsAndMarkup(t *testing.T) {
	s := &fakeSearcher{results: []search_models.Result{
		{Title: "<b>Green Copper</b> Co", URL: "https://greencopper.example/?utm_source=x", Snippet: "Copper <em>cathodes</em>"},
		{Title: "Green Copper Co", URL: "https://www.greencopper.example"},
		{Title: "Asia Metals", URL: "https://asiametals.example"},
	}}
	r := New(s, nil, nil, Options{}, nil)

	leads, err := r.Search(context.Background(), "copper")
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "Green Copper Co", leads[0].Title)
	assert.Equal(t, "Copper cathodes", leads[0].Summary)
	assert.Equal(t, "Asia Metals", leads[1].Title)
}

func TestExtractFetchesEachPageOnce(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://a.example/zinc": "zinc"}}
	r := New(nil, f, nil, Options{}, nil)

	frags, err := r.Extract(context.Background(), []string{"https://a.example/zinc", "https://www.a.example/zinc/#top", ""})
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "https://a.example/zinc", frags[0].URL)
}
