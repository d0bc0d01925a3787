package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/usecase"
)

// RetentionWorker periodically sweeps resolved dead letters past their
// retention window.
type RetentionWorker struct {
	interval     time.Duration
	retentionDay int
	dlq          usecase.DeadLetterUseCase
	log          *zerolog.Logger
}

func NewRetentionWorker(interval time.Duration, retentionDays int, dlq usecase.DeadLetterUseCase, logger *zerolog.Logger) *RetentionWorker {
	l := logger.With().Str("component", "RetentionWorker").Logger()
	if interval <= 0 {
		interval = time.Hour
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &RetentionWorker{
		interval:     interval,
		retentionDay: retentionDays,
		dlq:          dlq,
		log:          &l,
	}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.dlq.CleanupResolved(ctx, w.retentionDay)
			if err != nil {
				w.log.Error().Err(err).Msg("retention sweep error")
			}
			if n > 0 {
				w.log.Info().Int64("count", n).Msg("resolved dead letters swept")
			}
		}
	}
}
