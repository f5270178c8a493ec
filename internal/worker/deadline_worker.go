package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/service"
)

const (
	// SweepInterval is how often overdue attempts are looked for. The duration
	// clock is also enforced on read paths, so a sweep lag of seconds is fine.
	SweepInterval = 15 * time.Second
	// SweepBatch caps how many attempts one sweep finalizes.
	SweepBatch = 100
)

// DeadlineWorker finalizes IN_PROGRESS attempts whose duration limit or
// assessment end instant has passed, marking them TIMED_OUT. This is the
// server-side backstop for clients that vanished without submitting.
type DeadlineWorker struct {
	attempts *service.AttemptService
	log      zerolog.Logger
}

// NewDeadlineWorker creates a new DeadlineWorker.
func NewDeadlineWorker(attempts *service.AttemptService, log zerolog.Logger) *DeadlineWorker {
	return &DeadlineWorker{
		attempts: attempts,
		log:      log.With().Str("component", "deadline_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *DeadlineWorker) Start(ctx context.Context) {
	w.log.Info().Msg("DeadlineWorker started")

	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("DeadlineWorker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *DeadlineWorker) sweep(ctx context.Context) {
	overdue, err := w.attempts.ListOverdue(ctx, SweepBatch)
	if err != nil {
		w.log.Error().Err(err).Msg("List overdue attempts failed")
		return
	}

	for i := range overdue {
		attempt := overdue[i]
		result, err := w.attempts.FinalizeTimedOut(ctx, &attempt)
		if err != nil {
			// A concurrent submit or forced trigger finishing first is expected.
			if errors.Is(err, service.ErrAlreadyCompleted) {
				continue
			}
			w.log.Error().Err(err).
				Str("attempt_id", attempt.ID.String()).
				Msg("Timeout finalize failed")
			continue
		}
		w.log.Info().
			Str("attempt_id", attempt.ID.String()).
			Float64("score", result.Score).
			Msg("Overdue attempt timed out")
	}
}
