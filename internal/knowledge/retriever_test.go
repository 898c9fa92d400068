package knowledge

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrieveSleepQuestion(t *testing.T) {
	r := NewRetriever(nil, nil)

	citations := r.Retrieve(context.Background(), "How do I get my 3-year-old to sleep through the night?", 3)

	require.NotEmpty(t, citations)
	assert.Equal(t, "AAP — Healthy Sleep Habits", citations[0].SourceLabel)
	assert.NotEmpty(t, citations[0].Excerpt)
	assert.NotEmpty(t, citations[0].URL)
	assert.Greater(t, citations[0].Relevance, 0.0)
}

func TestRetrieveNoMatch(t *testing.T) {
	r := NewRetriever(nil, nil)

	assert.Empty(t, r.Retrieve(context.Background(), "what is the capital of France", 3))
	assert.Empty(t, r.Retrieve(context.Background(), "", 3))
	assert.Empty(t, r.Retrieve(context.Background(), "???", 3))
}

func TestRetrieveSortedByRelevanceDescending(t *testing.T) {
	r := NewRetriever(nil, nil)

	// Touches sleep (strongly) and screens (weakly).
	citations := r.Retrieve(context.Background(), "should I cut tv screen time so bedtime sleep at night improves", 5)
	require.GreaterOrEqual(t, len(citations), 2)

	sorted := sort.SliceIsSorted(citations, func(i, j int) bool {
		if citations[i].Relevance != citations[j].Relevance {
			return citations[i].Relevance > citations[j].Relevance
		}
		return citations[i].SourceLabel < citations[j].SourceLabel
	})
	assert.True(t, sorted, "citations must be ordered by relevance desc, label asc")
}

func TestRetrieveTieBreaksOnSourceLabel(t *testing.T) {
	topics := []Topic{
		{SourceLabel: "Zeta Source", URL: "https://z.example.com", Excerpt: "z", Keywords: []string{"naptime"}},
		{SourceLabel: "Alpha Source", URL: "https://a.example.com", Excerpt: "a", Keywords: []string{"naptime"}},
	}
	r := NewRetriever(topics, nil)

	citations := r.Retrieve(context.Background(), "trouble at naptime", 5)
	require.Len(t, citations, 2)
	assert.Equal(t, citations[0].Relevance, citations[1].Relevance)
	assert.Equal(t, "Alpha Source", citations[0].SourceLabel)
	assert.Equal(t, "Zeta Source", citations[1].SourceLabel)
}

func TestRetrieveHonorsMaxResults(t *testing.T) {
	r := NewRetriever(nil, nil)

	citations := r.Retrieve(context.Background(), "sleep bedtime tantrum picky potty screen sibling discipline", 2)
	assert.Len(t, citations, 2)
}

func TestRetrieveIsIdempotent(t *testing.T) {
	r := NewRetriever(nil, nil)

	first := r.Retrieve(context.Background(), "bedtime battles every night", 3)
	second := r.Retrieve(context.Background(), "bedtime battles every night", 3)
	assert.Equal(t, first, second)
}

func TestPhraseKeywordsMatch(t *testing.T) {
	topics := []Topic{
		{SourceLabel: "Phrase Source", URL: "https://p.example.com", Excerpt: "p", Keywords: []string{"screen time"}},
	}
	r := NewRetriever(topics, nil)

	require.Len(t, r.Retrieve(context.Background(), "how much screen time is okay", 3), 1)
	assert.Empty(t, r.Retrieve(context.Background(), "time for a new screen door", 3))
}

func TestDefaultTopicsParse(t *testing.T) {
	topics := DefaultTopics()
	require.NotEmpty(t, topics)
	for _, topic := range topics {
		assert.NotEmpty(t, topic.SourceLabel)
		assert.NotEmpty(t, topic.Keywords)
		assert.NotEmpty(t, topic.Excerpt)
	}
}
