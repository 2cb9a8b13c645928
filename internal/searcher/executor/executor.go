package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/searcher/ranker"
)

// SearchResult carries the analysed query tokens in query order, for
// highlighting by the caller, and the ranked hits.
type SearchResult struct {
	Query        string             `json:"query"`
	PartialMatch bool               `json:"partial_match"`
	Tokens       []string           `json:"tokens"`
	TotalHits    int                `json:"total_hits"`
	Results      []ranker.ScoredDoc `json:"results"`
	TookMs       float64            `json:"took_ms"`
}

type Executor struct {
	store     index.Store
	tokenizer tokenizer.Tokenizer
	keys      index.Keys
	ranker    *ranker.Ranker
	logger    *slog.Logger
}

func New(store index.Store, tok tokenizer.Tokenizer, keys index.Keys) *Executor {
	return &Executor{
		store:     store,
		tokenizer: tok,
		keys:      keys,
		ranker:    ranker.New(store, keys),
		logger:    slog.Default().With("component", "query-executor"),
	}
}

// Search resolves candidates from the posting sets of the query tokens, the
// union when partialMatch is set and the intersection otherwise, then ranks,
// sorts and truncates them to limit. A limit of zero or less keeps every hit.
func (e *Executor) Search(ctx context.Context, query string, partialMatch bool, limit int) (*SearchResult, error) {
	start := time.Now()
	tokens := e.tokenizer.Analyze(query)
	result := &SearchResult{
		Query:        query,
		PartialMatch: partialMatch,
		Tokens:       tokens,
		Results:      []ranker.ScoredDoc{},
	}
	if len(tokens) == 0 {
		return result, nil
	}

	postings, err := e.store.SetMembersMany(ctx, e.keys.TokenDocsMany(tokens)...)
	if err != nil {
		return nil, fmt.Errorf("loading posting sets: %w", err)
	}
	var candidates map[int64]struct{}
	if partialMatch {
		candidates = unionPostings(postings)
	} else {
		candidates = intersectPostings(postings)
	}
	if len(candidates) == 0 {
		result.TookMs = elapsedMs(start)
		return result, nil
	}

	ranked, err := e.ranker.Rank(ctx, tokens, candidates)
	if err != nil {
		return nil, fmt.Errorf("ranking %d candidates: %w", len(candidates), err)
	}
	ranker.Sort(ranked)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	result.TotalHits = len(candidates)
	result.Results = ranked
	result.TookMs = elapsedMs(start)
	e.logger.Info("query executed",
		"query", query,
		"tokens", tokens,
		"partial", partialMatch,
		"candidates", len(candidates),
		"results", len(ranked),
	)
	return result, nil
}

// intersectPostings starts from the smallest posting set and drops every id
// missing from another set.
func intersectPostings(postings [][]string) map[int64]struct{} {
	if len(postings) == 0 {
		return map[int64]struct{}{}
	}
	shortest := 0
	for i, members := range postings {
		if len(members) < len(postings[shortest]) {
			shortest = i
		}
	}
	candidates := index.ParseIDs(postings[shortest])
	for i, members := range postings {
		if i == shortest || len(candidates) == 0 {
			continue
		}
		docSet := index.ParseIDs(members)
		for id := range candidates {
			if _, ok := docSet[id]; !ok {
				delete(candidates, id)
			}
		}
	}
	return candidates
}

func unionPostings(postings [][]string) map[int64]struct{} {
	result := make(map[int64]struct{})
	for _, members := range postings {
		for id := range index.ParseIDs(members) {
			result[id] = struct{}{}
		}
	}
	return result
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
