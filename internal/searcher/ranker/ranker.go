package ranker

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/index"
)

const (
	// fullCoverage absorbs rounding in matched/total when every query term
	// matched.
	fullCoverage  = 0.999
	coverageBoost = 2.0
)

type ScoredDoc struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

type Ranker struct {
	store index.Store
	keys  index.Keys
}

func New(store index.Store, keys index.Keys) *Ranker {
	return &Ranker{store: store, keys: keys}
}

// Rank scores every candidate against the distinct query tokens. The result
// is unsorted; see Sort.
//
// Per token: (1 + log10 tf) * log10(max(N/df, 1)), summed and divided by the
// square root of the document's total term count. The sum is then doubled on
// full query coverage and scaled by the coverage ratio otherwise.
func (r *Ranker) Rank(ctx context.Context, queryTokens []string, candidates map[int64]struct{}) ([]ScoredDoc, error) {
	if len(candidates) == 0 {
		return []ScoredDoc{}, nil
	}
	terms := distinct(queryTokens)
	if len(terms) == 0 {
		return []ScoredDoc{}, nil
	}

	totalDocs, err := index.LoadDocCount(ctx, r.store, r.keys)
	if err != nil {
		return nil, fmt.Errorf("loading doc count: %w", err)
	}
	docFreqs, err := r.store.SetCardMany(ctx, r.keys.TokenDocsMany(terms)...)
	if err != nil {
		return nil, fmt.Errorf("loading document frequencies: %w", err)
	}
	freqs, err := r.loadFrequencies(ctx, candidates)
	if err != nil {
		return nil, err
	}

	idfs := make([]float64, len(terms))
	for i, df := range docFreqs {
		idfs[i] = computeIDF(float64(totalDocs), float64(df))
	}

	result := make([]ScoredDoc, 0, len(candidates))
	for id := range candidates {
		result = append(result, ScoredDoc{
			ID:    id,
			Score: score(terms, idfs, freqs[id]),
		})
	}
	return result, nil
}

// loadFrequencies fetches the records of all candidates in one round trip.
// A candidate whose record vanished since candidate resolution scores 0.
func (r *Ranker) loadFrequencies(ctx context.Context, candidates map[int64]struct{}) (map[int64]index.TokenFrequency, error) {
	ids := make([]int64, 0, len(candidates))
	keys := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
		keys = append(keys, r.keys.DocTokens(id))
	}
	raw, err := r.store.GetMany(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("loading token frequencies: %w", err)
	}
	freqs := make(map[int64]index.TokenFrequency, len(ids))
	for i, id := range ids {
		val, ok := raw[keys[i]]
		if !ok {
			continue
		}
		freq, err := index.DecodeFrequency(id, val)
		if err != nil {
			return nil, err
		}
		freqs[id] = freq
	}
	return freqs, nil
}

func score(terms []string, idfs []float64, freq index.TokenFrequency) float64 {
	var total float64
	matching := 0
	for i, term := range terms {
		tf := freq[term]
		if tf <= 0 {
			continue
		}
		matching++
		total += computeTFNorm(float64(tf)) * idfs[i]
	}
	if length := freq.Total(); length > 0 {
		total /= math.Sqrt(float64(length))
	}
	coverage := float64(matching) / float64(len(terms))
	if coverage > fullCoverage {
		return total * coverageBoost
	}
	return total * coverage
}

func computeIDF(totalDocs, docFreq float64) float64 {
	if docFreq <= 0 {
		return 0
	}
	return math.Log10(math.Max(totalDocs/docFreq, 1))
}

func computeTFNorm(termFreq float64) float64 {
	if termFreq <= 0 {
		return 0
	}
	return 1 + math.Log10(termFreq)
}

// Sort orders by descending score, breaking ties by ascending id.
func Sort(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].ID < docs[j].ID
	})
}

func distinct(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
