// Package redistest starts an in-process Redis server for tests and returns
// a store client connected to it.
package redistest

import (
	"testing"

	pkgredis "github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// New returns a client backed by a fresh miniredis instance that is shut
// down when the test finishes.
func New(tb testing.TB) (*pkgredis.Client, *miniredis.Miniredis) {
	tb.Helper()
	mr := miniredis.RunT(tb)
	rdb := redis.NewClient(&redis.Options{
		Addr:            mr.Addr(),
		Protocol:        2,
		DisableIdentity: true,
	})
	tb.Cleanup(func() { rdb.Close() })
	return pkgredis.New(rdb), mr
}
