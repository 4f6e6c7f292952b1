package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/artha-pos/artha-pos/internal/ledger"
)

// SummaryWarmer pre-computes the inventory summary so the first dashboard
// hit after an invalidation is served from cache.
type SummaryWarmer struct {
	reports *ledger.Reports
	logger  *slog.Logger
}

// NewSummaryWarmer constructs SummaryWarmer.
func NewSummaryWarmer(reports *ledger.Reports, logger *slog.Logger) *SummaryWarmer {
	return &SummaryWarmer{reports: reports, logger: logger}
}

// Handle processes TaskSummaryWarmup tasks.
func (s *SummaryWarmer) Handle(ctx context.Context, t *asynq.Task) error {
	summary, err := s.reports.Summary(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("summary cache warmed",
		slog.Int64("products", summary.TotalProducts),
		slog.Float64("total_stock", summary.TotalStock))
	return nil
}
