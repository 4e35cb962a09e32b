package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
)

func appendReqs(t *testing.T, s *Store, session string, r discovery.Requirements, at time.Time) {
	t.Helper()
	content, err := discovery.EncodeRequirementsTurn(r)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), session, discovery.RoleUser, content, at))
}

func TestSearchRelevantRanksByRelevance(t *testing.T) {
	s, err := New("", nil)
	require.NoError(t, err)
	defer s.Close()

	now := time.Now()
	appendReqs(t, s, "a", discovery.Requirements{"material": discovery.Point("copper"), "region": discovery.Point("chile")}, now)
	appendReqs(t, s, "b", discovery.Requirements{"material": discovery.Point("zinc"), "region": discovery.Point("sri lanka")}, now.Add(-time.Hour))

	turns, err := s.SearchRelevant(context.Background(), "zinc sri lanka", discovery.RoleUser, 1)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "b", turns[0].SessionID)
	back, err := discovery.DecodeRequirementsTurn(turns[0].Content)
	require.NoError(t, err)
	assert.Equal(t, discovery.Point("zinc"), back["material"])
}

func TestSearchRelevantTiesBreakByRecency(t *testing.T) {
	s, err := New("", nil)
	require.NoError(t, err)
	defer s.Close()

	now := time.Now().Truncate(time.Second)
	require.NoError(t, s.Append(context.Background(), "old", discovery.RoleUser, "zinc ingots grade one", now.Add(-2*time.Hour)))
	require.NoError(t, s.Append(context.Background(), "new", discovery.RoleUser, "zinc ingots grade two", now.Add(-time.Hour)))

	turns, err := s.SearchRelevant(context.Background(), "zinc ingots", discovery.RoleUser, 5)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "new", turns[0].SessionID)
	assert.Equal(t, now.Add(-time.Hour).UTC(), turns[0].Timestamp.UTC())
}

func TestSearchRelevantFiltersRole(t *testing.T) {
	s, err := New("", nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "x", discovery.RoleAssistant, `{"kind":"report","report":{"summary":"zinc"}}`, time.Now()))
	require.NoError(t, s.Append(ctx, "x", discovery.RoleUser, "zinc please", time.Now()))

	turns, err := s.SearchRelevant(ctx, "zinc", discovery.RoleUser, 5)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, discovery.RoleUser, turns[0].Role)

	none, err := s.SearchRelevant(ctx, "zinc", discovery.RoleUser, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOnDiskIndexReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.bleve")
	s, err := New(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), "x", discovery.RoleUser, "copper cathodes", time.Now()))
	require.NoError(t, s.Close())

	s, err = New(path, nil)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

// The merger fills requirements from the bleve index the same way it does
// from any other history backend.
func TestMergerOverBleve(t *testing.T) {
	s, err := New("", nil)
	require.NoError(t, err)
	defer s.Close()
	appendReqs(t, s, "prev", discovery.Requirements{"material": discovery.Point("zinc"), "moq": discovery.AtMost(1000)}, time.Now().Add(-time.Hour))

	m := discovery.NewMerger(s, 5, time.Second, nil)
	out := m.Merge(context.Background(), "s1", discovery.Requirements{"material": discovery.Point("zinc")})
	assert.Equal(t, discovery.AtMost(1000), out["moq"])
}
