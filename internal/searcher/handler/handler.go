package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/metrics"
)

type SearchExecutor interface {
	Search(ctx context.Context, query string, partialMatch bool, limit int) (*executor.SearchResult, error)
}

// IndexReader is the read side of the indexer engine.
type IndexReader interface {
	Indexed(ctx context.Context, id int64) (bool, error)
	DocCount(ctx context.Context) (int64, error)
}

type Options struct {
	DefaultLimit int
	MaxResults   int
	PartialMatch bool
}

type Handler struct {
	executor SearchExecutor
	index    IndexReader
	cache    *cache.QueryCache
	metrics  *metrics.Metrics
	opts     Options
	logger   *slog.Logger
}

// New builds the HTTP surface of the search service. queryCache and m may be
// nil.
func New(exec SearchExecutor, idx IndexReader, queryCache *cache.QueryCache, m *metrics.Metrics, opts Options) *Handler {
	return &Handler{
		executor: exec,
		index:    idx,
		cache:    queryCache,
		metrics:  m,
		opts:     opts,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/documents/{id}/indexed", h.DocumentIndexed)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	params := r.URL.Query()

	query := params.Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.opts.DefaultLimit
	if limitStr := params.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if h.opts.MaxResults > 0 && (limit <= 0 || limit > h.opts.MaxResults) {
		limit = h.opts.MaxResults
	}

	partial := h.opts.PartialMatch
	if partialStr := params.Get("partial"); partialStr != "" {
		parsed, err := strconv.ParseBool(partialStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "partial must be a boolean")
			return
		}
		partial = parsed
	}

	var (
		result   *executor.SearchResult
		err      error
		cacheHit bool
	)
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, query, partial, limit, func() (*executor.SearchResult, error) {
			return h.executor.Search(ctx, query, partial, limit)
		})
	} else {
		result, err = h.executor.Search(ctx, query, partial, limit)
	}
	if err != nil {
		h.metrics.SearchFailed()
		log.Error("search execution failed", "query", query, "error", err)
		h.writeAppError(w, err, "search failed")
		return
	}

	elapsed := time.Since(start)
	h.metrics.ObserveSearch(cacheHit, len(result.Results), elapsed.Seconds())
	log.Info("search completed",
		"query", query,
		"partial", partial,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	count, err := h.index.DocCount(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("reading doc count failed", "error", err)
		h.writeAppError(w, err, "reading index stats failed")
		return
	}
	h.metrics.SetIndexedDocuments(count)
	h.writeJSON(w, http.StatusOK, map[string]int64{"doc_count": count})
}

func (h *Handler) DocumentIndexed(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "document id must be an integer")
		return
	}
	indexed, err := h.index.Indexed(r.Context(), id)
	if err != nil {
		logger.FromContext(r.Context()).Error("indexed check failed", "doc_id", id, "error", err)
		h.writeAppError(w, err, "indexed check failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "indexed": indexed})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeAppError(w, err, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error, message string) {
	h.writeError(w, apperrors.HTTPStatusCode(err), message)
}
