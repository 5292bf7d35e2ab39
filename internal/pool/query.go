package pool

import (
	"context"
	"time"
)

const defaultPerPage = 30

// PageResult is the pagination envelope returned by the admin listing.
// PerPage is -1 when the whole result set was requested.
type PageResult struct {
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	PerPage int         `json:"perPage"`
	Pages   int         `json:"pages"`
	Items   []TokenView `json:"items"`
}

// QueryService is the administrative listing/filtering surface over the
// store. It is read-only and not concurrency-critical.
type QueryService struct {
	store *Store
}

// NewQueryService creates a query service over the given store.
func NewQueryService(store *Store) *QueryService {
	return &QueryService{store: store}
}

// ListTokens returns one page of token views matching the filter, with the
// total count of all matches. page starts at 1; perPage <= 0 returns the
// whole result set.
func (q *QueryService) ListTokens(ctx context.Context, f ListFilter, page, perPage int) (*PageResult, error) {
	if page < 1 {
		page = 1
	}

	// Both queries see the same instant so the derived buckets of the page
	// and the companion count agree.
	now := time.Now()

	total, err := q.store.Count(ctx, f, now)
	if err != nil {
		return nil, err
	}

	limit := perPage
	offset := 0
	if perPage > 0 {
		offset = (page - 1) * perPage
	}

	tokens, err := q.store.List(ctx, f, now, limit, offset)
	if err != nil {
		return nil, err
	}

	items := make([]TokenView, 0, len(tokens))
	for i := range tokens {
		items = append(items, tokens[i].View(now))
	}

	pages := 1
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
		if pages < 1 {
			pages = 1
		}
	}

	result := &PageResult{
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   pages,
		Items:   items,
	}
	if perPage <= 0 {
		result.PerPage = -1
	}
	return result, nil
}

// Tags returns all distinct tags across the pool.
func (q *QueryService) Tags(ctx context.Context) ([]string, error) {
	return q.store.DistinctTags(ctx)
}
