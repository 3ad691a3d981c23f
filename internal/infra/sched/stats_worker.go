package sched

import (
	"context"
	"time"

	"golden-ticket/internal/infra/metrics"
	"golden-ticket/internal/usecase"

	"github.com/rs/zerolog"
)

// StatsWorker periodically publishes the stored-redemption counts per
// campaign to the redemptions_stored gauge.
type StatsWorker struct {
	interval time.Duration
	redUC    usecase.RedemptionUseCase
	log      *zerolog.Logger
}

func NewStatsWorker(interval time.Duration, redUC usecase.RedemptionUseCase, logger *zerolog.Logger) *StatsWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "StatsWorker").Logger()
	return &StatsWorker{
		interval: interval,
		redUC:    redUC,
		log:      &l,
	}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting stats worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stats worker")
			return ctx.Err()
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *StatsWorker) refresh(ctx context.Context) {
	stats := w.redUC.Statistics(ctx, "")
	metrics.SetStoredByCampaign(stats.ByCampaign)
	w.log.Debug().Int("total", stats.TotalCodes).Int("unique_emails", stats.UniqueEmails).Msg("stats refreshed")
}
