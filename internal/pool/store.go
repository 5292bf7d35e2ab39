package pool

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/modelgate/tokenpool/internal/db"
	"github.com/modelgate/tokenpool/internal/logger"
)

// ErrTokenNotFound is returned when a token is not found in the store.
var ErrTokenNotFound = errors.New("token not found")

// ErrEmptySecret is returned when an operation is given an empty token secret.
var ErrEmptySecret = errors.New("token secret is required and cannot be empty")

const (
	colQuota      = "remaining_quota"
	colHeavyQuota = "remaining_heavy_quota"

	tokenColumns = "secret, type, created_at, remaining_quota, remaining_heavy_quota, " +
		"status, cooldown_until, failure_count, last_failure_time, last_failure_reason, tags, note"
)

// Store handles the persistence of tokens. It is the single consistency
// boundary of the pool: all counter mutations are expressed as atomic
// in-place updates so concurrent writers cannot lose updates.
type Store struct {
	conn   *db.Conn
	logger *logger.Logger
}

// NewStore creates a token store on an open database connection and
// initializes the schema.
func NewStore(ctx context.Context, log *logger.Logger, conn *db.Conn) (*Store, error) {
	if log == nil {
		log = logger.Production()
	}

	s := &Store{conn: conn, logger: log}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Conn exposes the underlying connection for collaborators sharing the
// same database (e.g. the call log).
func (s *Store) Conn() *db.Conn {
	return s.conn
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	// Timestamps are stored as RFC3339 UTC text: portable across SQLite and
	// PostgreSQL, and lexicographic order matches chronological order.
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS tokens (
		secret TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		remaining_quota INTEGER NOT NULL DEFAULT -1,
		remaining_heavy_quota INTEGER NOT NULL DEFAULT -1,
		status TEXT NOT NULL DEFAULT 'active',
		cooldown_until TEXT,
		failure_count INTEGER NOT NULL DEFAULT 0,
		last_failure_time TEXT,
		last_failure_reason TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		note TEXT NOT NULL DEFAULT ''
	)`

	if _, err := s.conn.DB.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if _, err := s.conn.DB.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_tokens_type_status ON tokens(type, status)`); err != nil {
		return fmt.Errorf("failed to create type-status index: %w", err)
	}

	return nil
}

// quotaColumn returns the quota column consulted for a workload class.
func quotaColumn(class WorkloadClass) string {
	if class == WorkloadHeavy {
		return colHeavyQuota
	}
	return colQuota
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanToken(sc scanner) (*Token, error) {
	var (
		t              Token
		rawQuota       int
		rawHeavyQuota  int
		createdStr     string
		cooldownStr    sql.NullString
		lastFailureStr sql.NullString
		tagsStr        string
	)

	err := sc.Scan(&t.Secret, &t.Type, &createdStr, &rawQuota, &rawHeavyQuota,
		&t.Status, &cooldownStr, &t.FailureCount, &lastFailureStr, &t.LastFailureReason, &tagsStr, &t.Note)
	if err != nil {
		return nil, err
	}

	t.Quota = QuotaFromRaw(rawQuota)
	t.HeavyQuota = QuotaFromRaw(rawHeavyQuota)

	createdAt, errParse := time.Parse(time.RFC3339, createdStr)
	if errParse != nil {
		s.logger.Warn("Failed to parse creation date for token",
			"token", RedactSecret(t.Secret),
			"error", errParse,
		)
	}
	t.CreatedAt = createdAt

	if cooldownStr.Valid && cooldownStr.String != "" {
		if until, errCooldown := time.Parse(time.RFC3339, cooldownStr.String); errCooldown == nil {
			t.CooldownUntil = &until
		}
	}

	if lastFailureStr.Valid && lastFailureStr.String != "" {
		if at, errFailure := time.Parse(time.RFC3339, lastFailureStr.String); errFailure == nil {
			t.LastFailureTime = &at
		}
	}

	t.Tags = decodeTags(tagsStr)

	return &t, nil
}

// decodeTags decodes the stored tag set. Corrupt encodings degrade to an
// empty set rather than failing the whole read.
func decodeTags(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// RedactSecret returns the loggable suffix of a token secret.
func RedactSecret(secret string) string {
	const visible = 8
	if len(secret) <= visible {
		return secret
	}
	return "..." + secret[len(secret)-visible:]
}

// Get retrieves a single token by its secret.
func (s *Store) Get(ctx context.Context, secret string) (*Token, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`SELECT %s FROM tokens WHERE secret = %s`, tokenColumns, s.conn.Placeholder(1))

	tok, err := s.scanToken(s.conn.DB.QueryRowContext(ctx, query, secret))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// BulkAdd inserts the given secrets as fresh tokens of one type. Secrets
// already present are left untouched. Returns the number of tokens added.
func (s *Store) BulkAdd(ctx context.Context, typ TokenType, secrets []string) (int, error) {
	if !typ.Valid() {
		return 0, fmt.Errorf("unknown token type: %q", typ)
	}

	tx, errTx := s.conn.DB.BeginTx(ctx, nil)
	if errTx != nil {
		return 0, errTx
	}
	defer func() {
		if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			s.logger.Error("Failed to rollback transaction", "error", errRollback)
		}
	}()

	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	INSERT INTO tokens (secret, type, created_at)
	VALUES (%s, %s, %s)
	ON CONFLICT (secret) DO NOTHING
	`, s.conn.Placeholder(1), s.conn.Placeholder(2), s.conn.Placeholder(3))

	now := formatTime(time.Now())
	added := 0
	for _, secret := range secrets {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			continue
		}
		result, errExec := tx.ExecContext(ctx, query, secret, string(typ), now)
		if errExec != nil {
			return 0, fmt.Errorf("failed to insert token: %w", errExec)
		}
		rows, errRows := result.RowsAffected()
		if errRows != nil {
			return 0, errRows
		}
		added += int(rows)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// BulkDelete removes the given secrets of one type from the store.
// Returns the number of tokens removed.
func (s *Store) BulkDelete(ctx context.Context, typ TokenType, secrets []string) (int, error) {
	if !typ.Valid() {
		return 0, fmt.Errorf("unknown token type: %q", typ)
	}

	tx, errTx := s.conn.DB.BeginTx(ctx, nil)
	if errTx != nil {
		return 0, errTx
	}
	defer func() {
		if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			s.logger.Error("Failed to rollback transaction", "error", errRollback)
		}
	}()

	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`DELETE FROM tokens WHERE secret = %s AND type = %s`,
		s.conn.Placeholder(1), s.conn.Placeholder(2))

	deleted := 0
	for _, secret := range secrets {
		result, errExec := tx.ExecContext(ctx, query, secret, string(typ))
		if errExec != nil {
			return 0, fmt.Errorf("failed to delete token: %w", errExec)
		}
		rows, errRows := result.RowsAffected()
		if errRows != nil {
			return 0, errRows
		}
		deleted += int(rows)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

// SelectEligible returns the single best eligible token of the given type
// for a workload class, or ErrTokenNotFound when none qualifies.
//
// Ordering: unused-sentinel quota first, then higher remaining quota, then
// earliest creation date. Selection is a pure read.
func (s *Store) SelectEligible(ctx context.Context, typ TokenType, class WorkloadClass, now time.Time) (*Token, error) {
	quotaCol := quotaColumn(class)

	//nolint:gosec // G201: Safe - column name is a package constant, placeholders are indices
	query := fmt.Sprintf(`
	SELECT %s FROM tokens
	WHERE type = %s AND status = '%s' AND failure_count < %s
	  AND (cooldown_until IS NULL OR cooldown_until <= %s)
	  AND %s != 0
	ORDER BY CASE WHEN %s = -1 THEN 1 ELSE 0 END DESC, %s DESC, created_at ASC
	LIMIT 1
	`, tokenColumns, s.conn.Placeholder(1), TokenStatusActive, s.conn.Placeholder(2),
		s.conn.Placeholder(3), quotaCol, quotaCol, quotaCol)

	tok, err := s.scanToken(s.conn.DB.QueryRowContext(ctx, query, string(typ), FailureLimit, formatTime(now)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// IncrementFailure atomically bumps the failure counter and stamps the
// failure diagnostics.
func (s *Store) IncrementFailure(ctx context.Context, secret string, at time.Time, reason string) error {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	UPDATE tokens SET failure_count = failure_count + 1, last_failure_time = %s, last_failure_reason = %s
	WHERE secret = %s
	`, s.conn.Placeholder(1), s.conn.Placeholder(2), s.conn.Placeholder(3))

	result, err := s.conn.DB.ExecContext(ctx, query, formatTime(at), reason, secret)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// ExpireAtFailureLimit transitions a token to the terminal expired state if
// its failure counter has reached the limit. Returns whether the transition
// happened. The check runs in-store so concurrent failure recordings cannot
// race past the threshold.
func (s *Store) ExpireAtFailureLimit(ctx context.Context, secret string, limit int) (bool, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	UPDATE tokens SET status = '%s'
	WHERE secret = %s AND status != '%s' AND failure_count >= %s
	`, TokenStatusExpired, s.conn.Placeholder(1), TokenStatusExpired, s.conn.Placeholder(2))

	result, err := s.conn.DB.ExecContext(ctx, query, secret, limit)
	if err != nil {
		return false, fmt.Errorf("failed to expire token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SetCooldown writes a cooldown deadline. The write is forward-only: an
// existing later deadline is never shortened.
func (s *Store) SetCooldown(ctx context.Context, secret string, until time.Time) error {
	untilStr := formatTime(until)

	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	UPDATE tokens SET cooldown_until = %s
	WHERE secret = %s AND (cooldown_until IS NULL OR cooldown_until < %s)
	`, s.conn.Placeholder(1), s.conn.Placeholder(2), s.conn.Placeholder(3))

	if _, err := s.conn.DB.ExecContext(ctx, query, untilStr, secret, untilStr); err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}

// SetQuota overrides both quota counters of a token (administrative edit).
func (s *Store) SetQuota(ctx context.Context, secret string, quota, heavyQuota Quota) error {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`UPDATE tokens SET remaining_quota = %s, remaining_heavy_quota = %s WHERE secret = %s`,
		s.conn.Placeholder(1), s.conn.Placeholder(2), s.conn.Placeholder(3))

	result, err := s.conn.DB.ExecContext(ctx, query, quota.Raw(), heavyQuota.Raw(), secret)
	if err != nil {
		return fmt.Errorf("failed to update quota: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// DecrementQuota spends one call from the quota field matching the workload
// class. Only known positive counters are decremented; the unused sentinel
// stays untouched until real usage feedback arrives.
func (s *Store) DecrementQuota(ctx context.Context, secret string, class WorkloadClass) error {
	quotaCol := quotaColumn(class)

	//nolint:gosec // G201: Safe - column name is a package constant, placeholders are indices
	query := fmt.Sprintf(`UPDATE tokens SET %s = %s - 1 WHERE secret = %s AND %s > 0`,
		quotaCol, quotaCol, s.conn.Placeholder(1), quotaCol)

	if _, err := s.conn.DB.ExecContext(ctx, query, secret); err != nil {
		return fmt.Errorf("failed to decrement quota: %w", err)
	}
	return nil
}

// UpdateTags replaces the tag set of a token.
func (s *Store) UpdateTags(ctx context.Context, secret string, tags []string) error {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`UPDATE tokens SET tags = %s WHERE secret = %s`,
		s.conn.Placeholder(1), s.conn.Placeholder(2))

	result, err := s.conn.DB.ExecContext(ctx, query, encodeTags(tags), secret)
	if err != nil {
		return fmt.Errorf("failed to update tags: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// UpdateNote replaces the free-text note of a token.
func (s *Store) UpdateNote(ctx context.Context, secret, note string) error {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`UPDATE tokens SET note = %s WHERE secret = %s`,
		s.conn.Placeholder(1), s.conn.Placeholder(2))

	result, err := s.conn.DB.ExecContext(ctx, query, note, secret)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// DistinctTags returns the union of all tag sets in the pool, sorted.
func (s *Store) DistinctTags(ctx context.Context) ([]string, error) {
	rows, err := s.conn.DB.QueryContext(ctx, `SELECT tags FROM tokens`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var raw string
		if errScan := rows.Scan(&raw); errScan != nil {
			return nil, errScan
		}
		for _, tag := range decodeTags(raw) {
			seen[tag] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}
