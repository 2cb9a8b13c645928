package index

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/errors"
)

// TokenFrequency maps a token to its number of occurrences in one document.
type TokenFrequency map[string]int

// CountFrequencies tallies tokens. The result is empty for an empty input.
func CountFrequencies(tokens []string) TokenFrequency {
	freq := make(TokenFrequency, len(tokens))
	for _, token := range tokens {
		freq[token]++
	}
	return freq
}

// Total is the number of token occurrences in the document.
func (f TokenFrequency) Total() int {
	total := 0
	for _, count := range f {
		total += count
	}
	return total
}

func (f TokenFrequency) Has(token string) bool {
	return f[token] > 0
}

func (f TokenFrequency) Encode() (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeFrequency parses a stored frequency record. Failures are reported as
// errors.ErrCorruptIndex.
func DecodeFrequency(id int64, raw string) (TokenFrequency, error) {
	var freq TokenFrequency
	if err := json.Unmarshal([]byte(raw), &freq); err != nil {
		return nil, apperrors.CorruptIndex(err, "token frequency of doc %d", id)
	}
	if freq == nil {
		freq = TokenFrequency{}
	}
	return freq, nil
}

// LoadDocCount reads the global document counter; a missing key counts as 0.
func LoadDocCount(ctx context.Context, store Store, keys Keys) (int64, error) {
	val, found, err := store.Get(ctx, keys.DocCount())
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	count, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	if err != nil {
		return 0, apperrors.CorruptIndex(err, "doc count %q", val)
	}
	return count, nil
}
