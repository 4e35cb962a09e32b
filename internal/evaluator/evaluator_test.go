package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
)

type fakeProvider struct {
	reply     string
	err       error
	system    string
	user      string
	jsonMode  bool
	modelName string
}

func (f *fakeProvider) Complete(_ context.Context, system, user string, jsonMode bool) (string, error) {
	f.system, f.user, f.jsonMode = system, user, jsonMode
	return f.reply, f.err
}

func (f *fakeProvider) Model() string { return f.modelName }

func TestInvokeReturnsRawReply(t *testing.T) {
	p := &fakeProvider{reply: `{"evaluation_feedback":"reject","top_suppliers":[]}`, modelName: "gpt-4o"}
	e := New(p, 5, nil)

	reqs := discovery.Requirements{"material": discovery.Point("zinc"), "delivery_time_days": discovery.AtMost(15)}
	cands := []discovery.Candidate{{Name: "Lanka Zinc", Provenance: discovery.ProvenanceStore}}
	out, err := e.Invoke(context.Background(), reqs, cands)

	require.NoError(t, err)
	assert.Equal(t, p.reply, string(out))
	assert.True(t, p.jsonMode)
	assert.Contains(t, p.user, `"$lte": 15`)
	assert.Contains(t, p.user, "Lanka Zinc")
	assert.Contains(t, p.user, "at most 5 suppliers")
	assert.Equal(t, "gpt-4o", e.Model())
}

func TestInvokeWrapsProviderError(t *testing.T) {
	boom := errors.New("429")
	e := New(&fakeProvider{err: boom}, 0, nil)
	_, err := e.Invoke(context.Background(), discovery.Requirements{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

// The reply flows through the same gate as any other evaluator.
func TestReplyPassesGate(t *testing.T) {
	p := &fakeProvider{reply: `{"evaluation_feedback":"accept","top_suppliers":[{"name":"Lanka Zinc","score":88,"reasons":["price"],"warnings":[]}]}`}
	e := New(p, 10, nil)
	cands := []discovery.Candidate{{Name: "Lanka Zinc"}}
	out, err := e.Invoke(context.Background(), discovery.Requirements{}, cands)
	require.NoError(t, err)

	ev, err := discovery.ParseEvaluation(out, cands, 10)
	require.NoError(t, err)
	assert.Equal(t, discovery.FeedbackAccept, ev.Feedback)
}
