package rebuild

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/postgres"
)

// PostgresSource reads (id, text) pairs with a query returning exactly those
// two columns. NULL text is read as empty.
type PostgresSource struct {
	client *postgres.Client
	query  string
}

func NewPostgresSource(client *postgres.Client, query string) *PostgresSource {
	return &PostgresSource{client: client, query: query}
}

func (s *PostgresSource) Each(ctx context.Context, fn func(doc Document) error) error {
	return s.client.Each(ctx, s.query, func(rows *sql.Rows) error {
		var (
			id   int64
			text sql.NullString
		)
		if err := rows.Scan(&id, &text); err != nil {
			return fmt.Errorf("scanning document row: %w", err)
		}
		return fn(Document{ID: id, Text: text.String})
	})
}
