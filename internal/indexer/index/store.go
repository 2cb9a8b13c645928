// Package index holds the persisted shape of the inverted index: the key
// scheme, the per-document token frequency record and the store contract the
// index is maintained on.
package index

import (
	"context"

	pkgredis "github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/redis"
)

// Store is the key-value/set contract of the index store, satisfied by
// *redis.Client. Implementations report transport failures as errors wrapping
// errors.ErrStoreUnavailable and error replies to a batch as
// errors.ErrCorruptIndex.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Get returns found=false for a missing key instead of an error.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// GetMany fetches keys in one round trip. Missing keys are absent from
	// the returned map.
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	// SetMembersMany returns the members of each set, aligned with keys.
	SetMembersMany(ctx context.Context, keys ...string) ([][]string, error)
	// SetCardMany returns the cardinality of each set, aligned with keys.
	SetCardMany(ctx context.Context, keys ...string) ([]int64, error)
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
	Del(ctx context.Context, keys ...string) error
	// Atomic queues the writes fn records on the Batch and applies them all
	// or none.
	Atomic(ctx context.Context, fn func(b Batch)) error
}

var _ Store = (*pkgredis.Client)(nil)

// Batch records writes for a single Atomic call.
type Batch = pkgredis.Batch
