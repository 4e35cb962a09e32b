package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendReqs(t *testing.T, h *memHistory, session string, r Requirements, at time.Time) {
	t.Helper()
	content, err := EncodeRequirementsTurn(r)
	require.NoError(t, err)
	require.NoError(t, h.Append(context.Background(), session, RoleUser, content, at))
}

func TestMergeAppendsBeforeFilling(t *testing.T) {
	h := &memHistory{}
	m := NewMerger(h, 5, time.Second, nil)

	out := m.Merge(context.Background(), "s1", Requirements{"material": Point("zinc")})

	assert.Equal(t, Requirements{"material": Point("zinc")}, out)
	require.Len(t, h.turns, 1)
	assert.Equal(t, RoleUser, h.turns[0].Role)
	back, err := DecodeRequirementsTurn(h.turns[0].Content)
	require.NoError(t, err)
	assert.Equal(t, out, back)
}

func TestMergeNewInputTakesPrecedence(t *testing.T) {
	h := &memHistory{}
	now := time.Now()
	appendReqs(t, h, "old", Requirements{"material": Point("zinc"), "region": Point("india"), "moq": AtMost(1000)}, now.Add(-2*time.Hour))
	appendReqs(t, h, "old", Requirements{"material": Point("zinc"), "region": Point("vietnam")}, now.Add(-time.Hour))
	m := NewMerger(h, 5, time.Second, nil)

	out := m.Merge(context.Background(), "s1", Requirements{"material": Point("zinc"), "region": Point("sri lanka")})

	assert.Equal(t, Point("sri lanka"), out["region"])
	assert.Equal(t, AtMost(1000), out["moq"])
}

func TestMergeRelevanceThenRecency(t *testing.T) {
	h := &memHistory{}
	now := time.Now()
	appendReqs(t, h, "a", Requirements{"material": Point("zinc"), "grade": Point("older")}, now.Add(-3*time.Hour))
	appendReqs(t, h, "b", Requirements{"material": Point("zinc"), "grade": Point("newer")}, now.Add(-time.Hour))
	m := NewMerger(h, 5, time.Second, nil)

	out := m.Merge(context.Background(), "s1", Requirements{"material": Point("zinc")})

	assert.Equal(t, Point("newer"), out["grade"], "equal relevance falls back to the most recent turn")
}

func TestMergeSkipsUnparseableHistory(t *testing.T) {
	h := &memHistory{}
	ctx := context.Background()
	require.NoError(t, h.Append(ctx, "x", RoleUser, "zinc please, quickly", time.Now()))
	require.NoError(t, h.Append(ctx, "x", RoleUser, "{'material': 'zinc', 'region': 'china'}", time.Now()))
	appendReqs(t, h, "x", Requirements{"material": Point("zinc"), "stock": Point("in stock")}, time.Now().Add(-time.Minute))
	m := NewMerger(h, 5, time.Second, nil)

	out := m.Merge(ctx, "s1", Requirements{"material": Point("zinc")})

	assert.Equal(t, Point("in stock"), out["stock"])
	_, hasRegion := out["region"]
	assert.False(t, hasRegion)
}

func TestMergeLimitsHistory(t *testing.T) {
	h := &memHistory{}
	now := time.Now()
	for i, grade := range []string{"a", "b", "c"} {
		appendReqs(t, h, "x", Requirements{"material": Point("zinc"), "grade": Point(grade)}, now.Add(-time.Duration(i+1)*time.Minute))
	}
	appendReqs(t, h, "x", Requirements{"material": Point("zinc"), "extra": Point("deep")}, now.Add(-time.Hour))
	m := NewMerger(h, 2, time.Second, nil)

	out := m.Merge(context.Background(), "s1", Requirements{"material": Point("zinc")})

	_, ok := out["extra"]
	assert.False(t, ok, "only the most relevant turns are consulted")
}

func TestMergeSurvivesHistoryFailure(t *testing.T) {
	h := &memHistory{err: errors.New("history down")}
	m := NewMerger(h, 5, time.Second, nil)
	in := Requirements{"material": Point("zinc")}

	out := m.Merge(context.Background(), "s1", in)
	assert.Equal(t, in, out)
}

func TestRefillDoesNotAppend(t *testing.T) {
	h := &memHistory{}
	appendReqs(t, h, "x", Requirements{"material": Point("zinc"), "region": Point("asia")}, time.Now())
	m := NewMerger(h, 5, time.Second, nil)

	out := m.Refill(context.Background(), "s1", Requirements{"material": Point("zinc"), "delivery_time_days": AtMost(20)})

	assert.Len(t, h.turns, 1)
	assert.Equal(t, Point("asia"), out["region"])
	assert.Equal(t, 20.0, *out["delivery_time_days"].Max)
}
