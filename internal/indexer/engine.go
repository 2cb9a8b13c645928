// Package indexer maintains the inverted index in the index store: one
// token-frequency record per document, one posting set per token and a
// global document counter.
//
// Mutations for different document ids may run concurrently. Callers must
// serialise Index, Reindex and Deindex for the same id: each call reads the
// previous frequency record and writes a diff against it, with no per-document
// lock or version check between the read and the write.
package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/errors"
)

type Engine struct {
	store     index.Store
	tokenizer tokenizer.Tokenizer
	keys      index.Keys
	logger    *slog.Logger
}

func NewEngine(store index.Store, tok tokenizer.Tokenizer, keys index.Keys) *Engine {
	return &Engine{
		store:     store,
		tokenizer: tok,
		keys:      keys,
		logger:    slog.Default().With("component", "indexer"),
	}
}

// Indexed reports whether id has a frequency record.
func (e *Engine) Indexed(ctx context.Context, id int64) (bool, error) {
	return e.store.Exists(ctx, e.keys.DocTokens(id))
}

// DocCount returns the number of indexed documents.
func (e *Engine) DocCount(ctx context.Context) (int64, error) {
	return index.LoadDocCount(ctx, e.store, e.keys)
}

// Index adds id to the index, or updates it when it is already indexed.
// Text without any surviving token leaves id unindexed.
func (e *Engine) Index(ctx context.Context, id int64, text string) error {
	return e.upsert(ctx, id, text)
}

// Reindex replaces the indexed content of id, adding it when it is not yet
// indexed. Text without any surviving token removes id from the index.
func (e *Engine) Reindex(ctx context.Context, id int64, text string) error {
	return e.upsert(ctx, id, text)
}

func (e *Engine) upsert(ctx context.Context, id int64, text string) error {
	indexed, err := e.Indexed(ctx, id)
	if err != nil {
		return err
	}
	tokens := e.tokenizer.Analyze(text)

	switch {
	case !indexed && len(tokens) == 0:
		e.logger.Debug("document has no indexable tokens, skipping", "doc_id", id)
		return nil
	case !indexed:
		return e.insert(ctx, id, index.CountFrequencies(tokens))
	case len(tokens) == 0:
		return e.Deindex(ctx, id)
	default:
		return e.update(ctx, id, index.CountFrequencies(tokens))
	}
}

func (e *Engine) insert(ctx context.Context, id int64, freq index.TokenFrequency) error {
	record, err := freq.Encode()
	if err != nil {
		return fmt.Errorf("encoding token frequency of doc %d: %w", id, err)
	}
	// A transaction is not rolled back when INCR fails, so the counter is
	// checked before anything is queued.
	if _, err := e.DocCount(ctx); err != nil {
		return fmt.Errorf("indexing doc %d: %w", id, err)
	}
	member := index.FormatID(id)
	err = e.store.Atomic(ctx, func(b index.Batch) {
		b.Set(e.keys.DocTokens(id), record)
		b.Incr(e.keys.DocCount())
		for token := range freq {
			b.SAdd(e.keys.TokenDocs(token), member)
		}
	})
	if err != nil {
		return fmt.Errorf("indexing doc %d: %w", id, err)
	}
	e.logger.Debug("document indexed", "doc_id", id, "token_count", len(freq))
	return nil
}

// update rewrites the frequency record and moves id between posting sets for
// tokens that appeared or disappeared. Tokens present before and after keep
// their posting set membership.
func (e *Engine) update(ctx context.Context, id int64, newFreq index.TokenFrequency) error {
	oldFreq, err := e.loadFrequency(ctx, id)
	if err != nil {
		return err
	}
	record, err := newFreq.Encode()
	if err != nil {
		return fmt.Errorf("encoding token frequency of doc %d: %w", id, err)
	}

	var removed, added []string
	for token := range oldFreq {
		if !newFreq.Has(token) {
			removed = append(removed, token)
		}
	}
	for token := range newFreq {
		if !oldFreq.Has(token) {
			added = append(added, token)
		}
	}

	member := index.FormatID(id)
	err = e.store.Atomic(ctx, func(b index.Batch) {
		b.Set(e.keys.DocTokens(id), record)
		for _, token := range removed {
			b.SRem(e.keys.TokenDocs(token), member)
		}
		for _, token := range added {
			b.SAdd(e.keys.TokenDocs(token), member)
		}
	})
	if err != nil {
		return fmt.Errorf("reindexing doc %d: %w", id, err)
	}
	e.logger.Debug("document reindexed",
		"doc_id", id,
		"token_count", len(newFreq),
		"tokens_added", len(added),
		"tokens_removed", len(removed),
	)
	return nil
}

// Deindex removes id from the index. It fails with errors.ErrNotFound when id
// has no frequency record.
func (e *Engine) Deindex(ctx context.Context, id int64) error {
	freq, err := e.loadFrequency(ctx, id)
	if err != nil {
		return err
	}
	if _, err := e.DocCount(ctx); err != nil {
		return fmt.Errorf("deindexing doc %d: %w", id, err)
	}
	member := index.FormatID(id)
	err = e.store.Atomic(ctx, func(b index.Batch) {
		b.Del(e.keys.DocTokens(id))
		b.Decr(e.keys.DocCount())
		for token := range freq {
			b.SRem(e.keys.TokenDocs(token), member)
		}
	})
	if err != nil {
		return fmt.Errorf("deindexing doc %d: %w", id, err)
	}
	e.logger.Debug("document deindexed", "doc_id", id, "token_count", len(freq))
	return nil
}

// ClearAll deletes every document and token key under the namespace. The two
// prefix sweeps are not atomic; concurrent readers may see a partially
// cleared index.
func (e *Engine) ClearAll(ctx context.Context) error {
	var total int
	for _, prefix := range []string{e.keys.DocPrefix(), e.keys.TokenPrefix()} {
		keys, err := e.store.ScanPrefix(ctx, prefix)
		if err != nil {
			return fmt.Errorf("listing keys under %s: %w", prefix, err)
		}
		if err := e.store.Del(ctx, keys...); err != nil {
			return fmt.Errorf("deleting keys under %s: %w", prefix, err)
		}
		total += len(keys)
	}
	e.logger.Info("index cleared", "keys_deleted", total, "prefix", e.keys.Prefix())
	return nil
}

func (e *Engine) loadFrequency(ctx context.Context, id int64) (index.TokenFrequency, error) {
	raw, found, err := e.store.Get(ctx, e.keys.DocTokens(id))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NotFound("token frequency of doc %d not found", id)
	}
	return index.DecodeFrequency(id, raw)
}
