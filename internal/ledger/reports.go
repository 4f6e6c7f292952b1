package ledger

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

// ReportsPort abstracts the read-side queries.
type ReportsPort interface {
	Summary(ctx context.Context) (Summary, error)
	ProductMovement(ctx context.Context, productID int64, from, to time.Time) (MovementTotals, error)
	History(ctx context.Context, filter HistoryFilter) ([]Adjustment, error)
}

// Reports serves the read-only aggregations. It takes no locks; results may
// trail concurrent mutations slightly, which is acceptable for dashboards.
type Reports struct {
	repo  ReportsPort
	cache *Cache
	group singleflight.Group
}

// NewReports constructs Reports. cache may be nil.
func NewReports(repo ReportsPort, cache *Cache) *Reports {
	return &Reports{repo: repo, cache: cache}
}

// Summary returns dashboard totals, cached and collapsed under concurrency.
func (r *Reports) Summary(ctx context.Context) (Summary, error) {
	if r == nil || r.repo == nil {
		return Summary{}, errors.New("ledger reports not initialised")
	}
	key, err := r.cache.BuildKey(ctx, "inventory", "summary")
	if err != nil {
		return Summary{}, err
	}
	result := r.group.DoChan(key, func() (any, error) {
		var s Summary
		err := r.cache.FetchJSON(ctx, key, &s, func(ctx context.Context) (any, error) {
			return r.repo.Summary(ctx)
		})
		return s, err
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

// ProductMovement returns in/out totals for a product, zero when the log is
// empty.
func (r *Reports) ProductMovement(ctx context.Context, productID int64, from, to time.Time) (MovementTotals, error) {
	if productID == 0 {
		return MovementTotals{}, errors.New("ledger: product required")
	}
	return r.repo.ProductMovement(ctx, productID, from, to)
}

// History lists adjustment entries for audit views.
func (r *Reports) History(ctx context.Context, filter HistoryFilter) ([]Adjustment, error) {
	return r.repo.History(ctx, filter)
}
