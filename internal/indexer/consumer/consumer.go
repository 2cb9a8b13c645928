// Package consumer applies document lifecycle events from Kafka to the index
// and announces every applied change on the index-complete topic.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/resilience"
)

const (
	OpIndex   = "index"
	OpReindex = "reindex"
	OpDeindex = "deindex"
	OpRebuild = "rebuild"
)

// DocumentEvent is published by the content store after it commits a create,
// update or delete. Text is ignored for deindex.
type DocumentEvent struct {
	Op         string `json:"op"`
	DocumentID int64  `json:"document_id"`
	Text       string `json:"text,omitempty"`
}

// IndexCompleteEvent announces that the index changed. Searchers drop their
// query cache when they see one.
type IndexCompleteEvent struct {
	Op         string    `json:"op"`
	DocumentID int64     `json:"document_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Key returns the message key for events about id, which pins them to one
// partition.
func Key(id int64) string {
	return strconv.FormatInt(id, 10)
}

type Mutator interface {
	Index(ctx context.Context, id int64, text string) error
	Reindex(ctx context.Context, id int64, text string) error
	Deindex(ctx context.Context, id int64) error
}

type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// HandleMessage returns a MessageHandler that applies each DocumentEvent to
// idx. Undecodable events and unknown ops are logged and skipped. Deindexing
// an id that is not indexed is a no-op. A store that is unavailable is retried
// per retry; any error left after that is returned, which stops the consumer
// before the message is committed. publisher may be nil.
func HandleMessage(idx Mutator, publisher Publisher, m *metrics.Metrics, retry resilience.RetryConfig) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	retry.Retryable = func(err error) bool {
		return errors.Is(err, apperrors.ErrStoreUnavailable)
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			logger.Error("failed to decode document event", "error", err, "key", string(key))
			return nil
		}
		switch event.Op {
		case OpIndex, OpReindex, OpDeindex:
		default:
			logger.Error("unknown document event op", "op", event.Op, "doc_id", event.DocumentID)
			return nil
		}

		name := fmt.Sprintf("%s doc %d", event.Op, event.DocumentID)
		err = resilience.Retry(ctx, name, retry, func() error {
			return apply(ctx, idx, event)
		})
		if event.Op == OpDeindex && errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("deindex of document that is not indexed", "doc_id", event.DocumentID)
			m.IndexOperation(event.Op, nil)
			return nil
		}
		m.IndexOperation(event.Op, err)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		logger.Info("document event applied", "op", event.Op, "doc_id", event.DocumentID)
		if publisher != nil {
			complete := IndexCompleteEvent{Op: event.Op, DocumentID: event.DocumentID, Timestamp: time.Now().UTC()}
			if err := publisher.Publish(ctx, kafka.Event{Key: Key(event.DocumentID), Value: complete}); err != nil {
				logger.Error("failed to publish index complete event", "doc_id", event.DocumentID, "error", err)
			}
		}
		return nil
	}
}

func apply(ctx context.Context, idx Mutator, event DocumentEvent) error {
	switch event.Op {
	case OpIndex:
		return idx.Index(ctx, event.DocumentID, event.Text)
	case OpReindex:
		return idx.Reindex(ctx, event.DocumentID, event.Text)
	default:
		return idx.Deindex(ctx, event.DocumentID)
	}
}
