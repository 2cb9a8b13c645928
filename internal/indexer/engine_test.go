package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/redis/redistest"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrefix = "fts:"

func newTestEngine(t *testing.T) (*Engine, *miniredis.Miniredis) {
	t.Helper()
	client, mr := redistest.New(t)
	tok := tokenizer.NewSimpleTokenizer(tokenizer.DefaultConfig())
	return NewEngine(client, tok, index.NewKeys(testPrefix)), mr
}

func members(t *testing.T, mr *miniredis.Miniredis, key string) []string {
	t.Helper()
	if !mr.Exists(key) {
		return nil
	}
	m, err := mr.Members(key)
	require.NoError(t, err)
	sort.Strings(m)
	return m
}

func docCount(t *testing.T, e *Engine) int64 {
	t.Helper()
	n, err := e.DocCount(context.Background())
	require.NoError(t, err)
	return n
}

// assertConsistent checks that every posting set and frequency record agree
// and that the counter matches the number of records.
func assertConsistent(t *testing.T, e *Engine, mr *miniredis.Miniredis) {
	t.Helper()
	keys := e.keys
	records := map[int64]index.TokenFrequency{}
	postings := map[string][]string{}
	for _, key := range mr.Keys() {
		switch {
		case key == keys.DocCount():
		case strings.HasPrefix(key, keys.DocPrefix()):
			var id int64
			_, err := fmt.Sscanf(strings.TrimPrefix(key, keys.DocPrefix()), "%d:tokens", &id)
			require.NoError(t, err)
			raw, err := mr.Get(key)
			require.NoError(t, err)
			freq, err := index.DecodeFrequency(id, raw)
			require.NoError(t, err)
			records[id] = freq
		case strings.HasPrefix(key, keys.TokenPrefix()):
			token := strings.TrimSuffix(strings.TrimPrefix(key, keys.TokenPrefix()), ":docs")
			postings[token] = members(t, mr, key)
		}
	}

	assert.Equal(t, int64(len(records)), docCount(t, e), "doc count")
	for id, freq := range records {
		for token := range freq {
			assert.Contains(t, postings[token], index.FormatID(id), "posting set of %q", token)
		}
	}
	for token, ids := range postings {
		for id := range index.ParseIDs(ids) {
			assert.True(t, records[id].Has(token), "doc %d listed under %q", id, token)
		}
	}
}

func TestIndexWritesRecordCounterAndPostings(t *testing.T) {
	e, mr := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, 7, "<p>Rust rust programming</p>"))

	ok, err := e.Indexed(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), docCount(t, e))

	raw, err := mr.Get("fts:doc:7:tokens")
	require.NoError(t, err)
	freq, err := index.DecodeFrequency(7, raw)
	require.NoError(t, err)
	assert.Equal(t, index.TokenFrequency{"rust": 2, "programming": 1}, freq)

	assert.Equal(t, []string{"7"}, members(t, mr, "fts:token:rust:docs"))
	assert.Equal(t, []string{"7"}, members(t, mr, "fts:token:programming:docs"))
	assertConsistent(t, e, mr)
}

func TestIndexEmptyContentIsNoop(t *testing.T) {
	e, mr := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Index(ctx, 1, "go language"))

	for _, text := range []string{"", "   ", ".,!?", "the and or"} {
		t.Run(fmt.Sprintf("%q", text), func(t *testing.T) {
			require.NoError(t, e.Index(ctx, 2, text))
			ok, err := e.Indexed(ctx, 2)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, int64(1), docCount(t, e))
		})
	}
	assertConsistent(t, e, mr)
}

func TestIndexTwiceUpdates(t *testing.T) {
	e, mr := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, 1, "initial content"))
	before := docCount(t, e)
	require.NoError(t, e.Index(ctx, 1, "updated content"))

	assert.Equal(t, before, docCount(t, e))
	assert.False(t, mr.Exists("fts:token:initial:docs"))
	assert.Equal(t, []string{"1"}, members(t, mr, "fts:token:updated:docs"))
	assert.Equal(t, []string{"1"}, members(t, mr, "fts:token:content:docs"))
	assertConsistent(t, e, mr)
}

func TestReindexDiffsTokenSets(t *testing.T) {
	e, mr := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, 1, "alpha beta gamma"))
	require.NoError(t, e.Index(ctx, 2, "alpha delta"))
	require.NoError(t, e.Reindex(ctx, 1, "beta beta delta"))

	assert.Equal(t, []string{"2"}, members(t, mr, "fts:token:alpha:docs"))
	assert.Equal(t, []string{"1"}, members(t, mr, "fts:token:beta:docs"))
	assert.False(t, mr.Exists("fts:token:gamma:docs"))
	assert.Equal(t, []string{"1", "2"}, members(t, mr, "fts:token:delta:docs"))
	assert.Equal(t, int64(2), docCount(t, e))

	raw, err := mr.Get("fts:doc:1:tokens")
	require.NoError(t, err)
	freq, err := index.DecodeFrequency(1, raw)
	require.NoError(t, err)
	assert.Equal(t, index.TokenFrequency{"beta": 2, "delta": 1}, freq)
	assertConsistent(t, e, mr)
}

func TestReindexUnindexedInserts(t *testing.T) {
	e, mr := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Reindex(ctx, 3, "fresh words"))
	ok, err := e.Indexed(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), docCount(t, e))
	assertConsistent(t, e, mr)
}

func TestReindexToEmptyDeindexes(t *testing.T) {
	e, mr := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, 1, "some words"))
	require.NoError(t, e.Reindex(ctx, 1, "<br/> , the"))

	ok, err := e.Indexed(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), docCount(t, e))
	assert.False(t, mr.Exists("fts:token:words:docs"))
	assertConsistent(t, e, mr)
}

func TestDeindex(t *testing.T) {
	e, mr := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, 1, "shared one"))
	require.NoError(t, e.Index(ctx, 2, "shared two"))
	require.NoError(t, e.Deindex(ctx, 1))

	ok, err := e.Indexed(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), docCount(t, e))
	assert.Equal(t, []string{"2"}, members(t, mr, "fts:token:shared:docs"))
	assert.False(t, mr.Exists("fts:token:one:docs"))
	assertConsistent(t, e, mr)

	err = e.Deindex(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, int64(1), docCount(t, e))
}

func TestClearAll(t *testing.T) {
	e, mr := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Index(ctx, 1, "alpha beta"))
	require.NoError(t, e.Index(ctx, 2, "gamma"))
	require.NoError(t, mr.Set("other:doc:1:tokens", "{}"))
	require.NoError(t, mr.Set("search:cached", "x"))

	require.NoError(t, e.ClearAll(ctx))

	assert.Equal(t, int64(0), docCount(t, e))
	for _, key := range mr.Keys() {
		assert.False(t, strings.HasPrefix(key, testPrefix), "key %s survived", key)
	}
	assert.True(t, mr.Exists("other:doc:1:tokens"))
	assert.True(t, mr.Exists("search:cached"))

	require.NoError(t, e.ClearAll(ctx), "clearing an empty index")
}

func TestCorruptRecord(t *testing.T) {
	e, mr := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("fts:doc:9:tokens", "not json"))

	err := e.Deindex(ctx, 9)
	assert.True(t, errors.Is(err, apperrors.ErrCorruptIndex))

	err = e.Reindex(ctx, 9, "new text")
	assert.True(t, errors.Is(err, apperrors.ErrCorruptIndex))

	require.NoError(t, mr.Set("fts:doc:count", "many"))
	_, err = e.DocCount(ctx)
	assert.True(t, errors.Is(err, apperrors.ErrCorruptIndex))
}

func TestCorruptCounterWritesNothing(t *testing.T) {
	e, mr := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Index(ctx, 2, "kept document"))
	require.NoError(t, mr.Set("fts:doc:count", "abc"))

	err := e.Index(ctx, 1, "hello world")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCorruptIndex))
	assert.False(t, errors.Is(err, apperrors.ErrStoreUnavailable))
	assert.False(t, mr.Exists("fts:doc:1:tokens"))
	assert.False(t, mr.Exists("fts:token:hello:docs"))

	err = e.Deindex(ctx, 2)
	assert.True(t, errors.Is(err, apperrors.ErrCorruptIndex))
	indexed, err := e.Indexed(ctx, 2)
	require.NoError(t, err)
	assert.True(t, indexed)
	assert.Equal(t, []string{"2"}, members(t, mr, "fts:token:kept:docs"))
}

func TestWrongTypePostingIsCorrupt(t *testing.T) {
	e, mr := newTestEngine(t)
	require.NoError(t, mr.Set("fts:token:hello:docs", "not a set"))

	err := e.Index(context.Background(), 1, "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCorruptIndex))
}

func TestStoreUnavailable(t *testing.T) {
	e, mr := newTestEngine(t)
	mr.Close()
	ctx := context.Background()

	_, err := e.Indexed(ctx, 1)
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
	err = e.Index(ctx, 1, "text")
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
	err = e.ClearAll(ctx)
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
}

type fixedTokenizer map[string][]string

func (f fixedTokenizer) Analyze(text string) []string {
	return f[text]
}

func TestEngineUsesInjectedTokenizer(t *testing.T) {
	client, mr := redistest.New(t)
	tok := fixedTokenizer{"doc": {"x", "y", "x"}}
	e := NewEngine(client, tok, index.NewKeys(""))
	ctx := context.Background()

	require.NoError(t, e.Index(ctx, 4, "doc"))
	assert.Equal(t, []string{"4"}, members(t, mr, "token:x:docs"))
	assert.Equal(t, []string{"4"}, members(t, mr, "token:y:docs"))
	count, err := mr.Get("doc:count")
	require.NoError(t, err)
	assert.Equal(t, "1", count)
}

func TestConcurrentDistinctDocuments(t *testing.T) {
	e, mr := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, e.Index(ctx, id, fmt.Sprintf("common token%d", id)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(20), docCount(t, e))
	assert.Len(t, members(t, mr, "fts:token:common:docs"), 20)
	assertConsistent(t, e, mr)
}
