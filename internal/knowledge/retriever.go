package knowledge

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okenna/parentcare/pkg/logging"
)

var retrieverTracer = otel.Tracer("parentcare/knowledge")

// Citation is a structured reference attached to a generated answer.
type Citation struct {
	SourceLabel string  `json:"source_label"`
	Excerpt     string  `json:"excerpt"`
	URL         string  `json:"url"`
	Relevance   float64 `json:"relevance_score"`
}

// Retriever matches query terms against the curated topic table. It is
// idempotent and side-effect-free; an empty result is not an error, the
// generation just proceeds ungrounded.
type Retriever struct {
	topics []Topic
	logger *logging.Logger
}

// NewRetriever creates a retriever over the given topic table.
func NewRetriever(topics []Topic, logger *logging.Logger) *Retriever {
	if logger == nil {
		logger = logging.Default()
	}
	if len(topics) == 0 {
		topics = DefaultTopics()
	}
	return &Retriever{topics: topics, logger: logger}
}

// Retrieve returns up to maxResults citations sorted by descending
// relevance; ties break on ascending source label so ordering is
// deterministic and testable.
func (r *Retriever) Retrieve(ctx context.Context, query string, maxResults int) []Citation {
	_, span := retrieverTracer.Start(ctx, "knowledge.retrieve")
	defer span.End()

	if maxResults <= 0 {
		maxResults = 3
	}

	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil
	}

	var citations []Citation
	for _, topic := range r.topics {
		score := relevance(terms, topic.Keywords)
		if score == 0 {
			continue
		}
		citations = append(citations, Citation{
			SourceLabel: topic.SourceLabel,
			Excerpt:     topic.Excerpt,
			URL:         topic.URL,
			Relevance:   score,
		})
	}

	sort.Slice(citations, func(i, j int) bool {
		if citations[i].Relevance != citations[j].Relevance {
			return citations[i].Relevance > citations[j].Relevance
		}
		return citations[i].SourceLabel < citations[j].SourceLabel
	})

	if len(citations) > maxResults {
		citations = citations[:maxResults]
	}

	span.SetAttributes(attribute.Int("knowledge.citations", len(citations)))
	return citations
}

// relevance is the fraction of topic keywords present in the query,
// weighted so multi-keyword hits rank above single grazing matches.
func relevance(terms map[string]bool, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	var hits int
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if strings.Contains(kw, " ") {
			// Phrase keywords match against the joined query.
			if terms[phraseKey(kw)] {
				hits++
			}
			continue
		}
		if terms[kw] {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return float64(hits) / float64(len(keywords))
}

// queryTerms lowercases and tokenizes the query. Phrase keys for every
// adjacent word pair are included so two-word keywords can match.
func queryTerms(query string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	terms := make(map[string]bool, len(fields)*2)
	for i, f := range fields {
		terms[f] = true
		if i > 0 {
			terms[phraseKey(fields[i-1]+" "+f)] = true
		}
	}
	return terms
}

func phraseKey(phrase string) string {
	return "\x00" + phrase
}
