package pool

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ListFilter describes the conjunctive admin filters over the pool.
// Zero values mean "no constraint".
type ListFilter struct {
	// Type restricts to one token type.
	Type TokenType
	// Search is a substring match over the token secret.
	Search string
	// Tag requires exact membership in the token's tag set.
	Tag string
	// NSFW filters on the content-classification marker in the note field.
	NSFW *bool
	// Status restricts to one derived status bucket.
	Status StatusBucket
}

// nsfwMarker is the note substring that flags a token as cleared for
// unrestricted content.
const nsfwMarker = "nsfw"

// buildWhere renders the filter into a WHERE clause with dialect-correct
// placeholders. Bucket predicates are evaluated in SQL against the same
// instant so the scan and its companion count stay consistent.
func (s *Store) buildWhere(f ListFilter, now time.Time) (string, []any) {
	var conds []string
	var args []any

	ph := func(v any) string {
		args = append(args, v)
		return s.conn.Placeholder(len(args))
	}

	if f.Type != "" {
		conds = append(conds, fmt.Sprintf("type = %s", ph(string(f.Type))))
	}
	if f.Search != "" {
		conds = append(conds, fmt.Sprintf("secret LIKE %s", ph("%"+f.Search+"%")))
	}
	if f.Tag != "" {
		// Tags are stored as a JSON array; an exact member always appears
		// quoted in the encoding.
		conds = append(conds, fmt.Sprintf("tags LIKE %s", ph(`%"`+f.Tag+`"%`)))
	}
	if f.NSFW != nil {
		if *f.NSFW {
			conds = append(conds, fmt.Sprintf("LOWER(note) LIKE %s", ph("%"+nsfwMarker+"%")))
		} else {
			conds = append(conds, fmt.Sprintf("LOWER(note) NOT LIKE %s", ph("%"+nsfwMarker+"%")))
		}
	}

	if f.Status != "" {
		nowStr := formatTime(now)
		notExpired := fmt.Sprintf("status != '%s'", TokenStatusExpired)
		// notCooling binds a placeholder, so it is rendered only in the
		// branches that include it.
		notCooling := func() string {
			return fmt.Sprintf("(cooldown_until IS NULL OR cooldown_until <= %s)", ph(nowStr))
		}
		allExhausted := "(remaining_quota = 0 AND (type != 'premium' OR remaining_heavy_quota = 0))"
		allUnused := "(remaining_quota = -1 AND (type != 'premium' OR remaining_heavy_quota = -1))"

		switch f.Status {
		case BucketInvalid:
			conds = append(conds, fmt.Sprintf("status = '%s'", TokenStatusExpired))
		case BucketCooling:
			conds = append(conds, notExpired,
				fmt.Sprintf("cooldown_until IS NOT NULL AND cooldown_until > %s", ph(nowStr)))
		case BucketExhausted:
			conds = append(conds, notExpired, notCooling(), allExhausted)
		case BucketUnused:
			conds = append(conds, notExpired, notCooling(), allUnused)
		case BucketActive:
			conds = append(conds, notExpired, notCooling(), "NOT "+allExhausted, "NOT "+allUnused)
		}
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Count returns the number of tokens matching the filter at the given instant.
func (s *Store) Count(ctx context.Context, f ListFilter, now time.Time) (int, error) {
	where, args := s.buildWhere(f, now)

	var total int
	//nolint:gosec // G201: Safe - clause is assembled from constants and placeholder indices
	query := "SELECT COUNT(*) FROM tokens" + where
	if err := s.conn.DB.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// List returns one page of tokens matching the filter at the given instant,
// ordered by creation date (oldest first). A non-positive limit returns all
// matching rows.
func (s *Store) List(ctx context.Context, f ListFilter, now time.Time, limit, offset int) ([]Token, error) {
	where, args := s.buildWhere(f, now)

	//nolint:gosec // G201: Safe - clause is assembled from constants and placeholder indices
	query := fmt.Sprintf("SELECT %s FROM tokens%s ORDER BY created_at ASC, secret ASC", tokenColumns, where)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %s", s.conn.Placeholder(len(args)+1))
		args = append(args, limit)
		query += fmt.Sprintf(" OFFSET %s", s.conn.Placeholder(len(args)+1))
		args = append(args, offset)
	}

	rows, err := s.conn.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := []Token{}
	for rows.Next() {
		tok, errScan := s.scanToken(rows)
		if errScan != nil {
			return nil, errScan
		}
		tokens = append(tokens, *tok)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tokens, nil
}
