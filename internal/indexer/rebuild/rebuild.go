// Package rebuild reindexes every document from the content store onto an
// empty index.
package rebuild

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/metrics"
)

type Document struct {
	ID   int64
	Text string
}

// Source streams every document to fn. Returning an error from fn stops the
// stream.
type Source interface {
	Each(ctx context.Context, fn func(doc Document) error) error
}

type Indexer interface {
	ClearAll(ctx context.Context) error
	Index(ctx context.Context, id int64, text string) error
}

type Failure struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

type Report struct {
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Failures  []Failure     `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Run clears the index, then indexes every document of src. A failed clear
// aborts the run. A document that fails to index is recorded in the report
// and the sweep continues. Context cancellation stops the sweep with the
// partial report.
func Run(ctx context.Context, idx Indexer, src Source, m *metrics.Metrics) (*Report, error) {
	logger := slog.Default().With("component", "rebuild")
	start := time.Now()
	report := &Report{}

	if err := idx.ClearAll(ctx); err != nil {
		return nil, fmt.Errorf("clearing index before rebuild: %w", err)
	}
	logger.Info("index cleared, rebuilding")

	err := src.Each(ctx, func(doc Document) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Processed++
		if err := idx.Index(ctx, doc.ID, doc.Text); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, Failure{ID: doc.ID, Error: err.Error()})
			m.RebuildDocument("failed")
			logger.Error("indexing document failed", "doc_id", doc.ID, "error", err)
			return nil
		}
		m.RebuildDocument("indexed")
		return nil
	})
	report.Duration = time.Since(start)
	if err != nil {
		return report, fmt.Errorf("reading documents: %w", err)
	}

	logger.Info("rebuild complete",
		"processed", report.Processed,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, nil
}
