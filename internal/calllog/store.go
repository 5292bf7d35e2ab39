package calllog

import (
	"context"
	"fmt"
	"time"

	"github.com/modelgate/tokenpool/internal/db"
	"github.com/modelgate/tokenpool/internal/metrics"
)

// Store persists call records. It shares the pool's database connection.
type Store struct {
	conn *db.Conn
}

// NewStore creates a call log store and initializes its schema.
func NewStore(ctx context.Context, conn *db.Conn) (*Store, error) {
	s := &Store{conn: conn}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize call log schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS call_logs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		source_addr TEXT NOT NULL,
		model TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		http_status INTEGER NOT NULL,
		token_suffix TEXT NOT NULL,
		total_tokens INTEGER NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		reasoning_tokens INTEGER NOT NULL,
		cached_tokens INTEGER NOT NULL
	)`

	if _, err := s.conn.DB.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create call_logs table: %w", err)
	}

	if _, err := s.conn.DB.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_call_logs_created_at ON call_logs(created_at)`); err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}

	return nil
}

// Append writes one call record.
func (s *Store) Append(ctx context.Context, rec Record) error {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	INSERT INTO call_logs (id, created_at, source_addr, model, duration_ms, http_status, token_suffix,
		total_tokens, input_tokens, output_tokens, reasoning_tokens, cached_tokens)
	VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
	`, s.conn.Placeholder(1), s.conn.Placeholder(2), s.conn.Placeholder(3), s.conn.Placeholder(4),
		s.conn.Placeholder(5), s.conn.Placeholder(6), s.conn.Placeholder(7), s.conn.Placeholder(8),
		s.conn.Placeholder(9), s.conn.Placeholder(10), s.conn.Placeholder(11), s.conn.Placeholder(12))

	_, err := s.conn.DB.ExecContext(ctx, query,
		rec.ID, rec.CreatedAt.UTC().Format(time.RFC3339), rec.SourceAddr, rec.Model,
		rec.Duration.Milliseconds(), rec.HTTPStatus, rec.TokenSuffix,
		rec.Usage.TotalTokens, rec.Usage.InputTokens, rec.Usage.OutputTokens,
		rec.Usage.ReasoningTokens, rec.Usage.CachedTokens)
	if err != nil {
		return fmt.Errorf("failed to insert call record: %w", err)
	}

	metrics.CallsLogged.Inc()
	return nil
}

// Recent returns the most recent call records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	SELECT id, created_at, source_addr, model, duration_ms, http_status, token_suffix,
		total_tokens, input_tokens, output_tokens, reasoning_tokens, cached_tokens
	FROM call_logs ORDER BY created_at DESC, id DESC LIMIT %s
	`, s.conn.Placeholder(1))

	rows, err := s.conn.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec        Record
			createdStr string
			durationMs int64
		)
		if errScan := rows.Scan(&rec.ID, &createdStr, &rec.SourceAddr, &rec.Model, &durationMs,
			&rec.HTTPStatus, &rec.TokenSuffix, &rec.Usage.TotalTokens, &rec.Usage.InputTokens,
			&rec.Usage.OutputTokens, &rec.Usage.ReasoningTokens, &rec.Usage.CachedTokens); errScan != nil {
			return nil, errScan
		}
		if createdAt, errParse := time.Parse(time.RFC3339, createdStr); errParse == nil {
			rec.CreatedAt = createdAt
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
