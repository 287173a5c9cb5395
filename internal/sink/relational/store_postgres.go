// Package relational provides the relational sink adapter for Neon-hosted
// Postgres.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"doctrine/internal/doctrine/models"
	"doctrine/internal/doctrine/translate"
)

// PostgresSink writes relational shapes with parameterized inserts and
// upserts. It satisfies ports.SinkAdapter.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgres constructs a relational sink over an existing connection pool.
func NewPostgres(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Open dials a Postgres DSN and verifies connectivity before returning.
func Open(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// Send writes a single relational shape and returns the record ID as the
// sink's native identifier.
func (s *PostgresSink) Send(ctx context.Context, shape translate.SinkShape) (models.SinkResult, error) {
	rel, ok := shape.(translate.RelationalShape)
	if !ok {
		return models.SinkResult{}, fmt.Errorf("relational sink received %T, want RelationalShape", shape)
	}

	query, err := buildQuery(rel)
	if err != nil {
		return models.SinkResult{}, err
	}

	var id string
	if err := s.db.QueryRowContext(ctx, query, rel.Values...).Scan(&id); err != nil {
		return models.SinkResult{}, fmt.Errorf("insert into %s: %w", rel.Table, err)
	}

	return models.SinkResult{ID: id}, nil
}

// SendAll writes a batch of relational shapes inside one transaction: either
// every row commits or none do.
func (s *PostgresSink) SendAll(ctx context.Context, shapes []translate.RelationalShape) ([]models.SinkResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch transaction: %w", err)
	}
	defer tx.Rollback()

	results := make([]models.SinkResult, 0, len(shapes))
	for _, rel := range shapes {
		query, err := buildQuery(rel)
		if err != nil {
			return nil, err
		}
		var id string
		if err := tx.QueryRowContext(ctx, query, rel.Values...).Scan(&id); err != nil {
			return nil, fmt.Errorf("insert into %s: %w", rel.Table, err)
		}
		results = append(results, models.SinkResult{ID: id})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return results, nil
}

// buildQuery renders a parameterized insert, adding an ON CONFLICT clause
// when the shape carries upsert semantics. Identifiers come from the
// translator, never from caller input.
func buildQuery(rel translate.RelationalShape) (string, error) {
	if rel.Table == "" || len(rel.Columns) == 0 {
		return "", fmt.Errorf("relational shape is missing table or columns")
	}
	if len(rel.Columns) != len(rel.Values) {
		return "", fmt.Errorf("relational shape has %d columns but %d values", len(rel.Columns), len(rel.Values))
	}

	placeholders := make([]string, len(rel.Columns))
	for i := range rel.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		rel.Table,
		strings.Join(rel.Columns, ", "),
		strings.Join(placeholders, ", "),
	)

	if rel.Upsert() {
		conflictSet := make(map[string]struct{}, len(rel.ConflictKeys))
		for _, k := range rel.ConflictKeys {
			conflictSet[k] = struct{}{}
		}
		var updates []string
		for _, col := range rel.Columns {
			if _, isKey := conflictSet[col]; isKey {
				continue
			}
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s",
			strings.Join(rel.ConflictKeys, ", "),
			strings.Join(updates, ", "),
		)
	}

	fmt.Fprintf(&b, " RETURNING %s", translate.ColRecordID)
	return b.String(), nil
}
