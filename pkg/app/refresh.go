// Copyright 2024-2026 Aiku AI

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"

	"github.com/aiku/threadtag/pkg/conversation"
)

// retryDelay is how long the refresh loop waits after failing to compute the
// next tick.
const retryDelay = 30 * time.Second

// NextRefresh returns the first tick of the cron expression after now.
func NextRefresh(expr string, now time.Time) (time.Time, error) {
	if !gronx.IsValid(expr) {
		return time.Time{}, fmt.Errorf("invalid cron expression %q", expr)
	}
	return gronx.NextTickAfter(expr, now, false)
}

// WatchDirectory reloads the directory on every tick of the cron expression
// until ctx is cancelled. It returns ctx.Err() on cancellation and an error
// only for an invalid expression.
func WatchDirectory(ctx context.Context, expr string, reload func(context.Context) *conversation.Directory, log zerolog.Logger) error {
	if !gronx.IsValid(expr) {
		return fmt.Errorf("invalid directory refresh cron expression %q", expr)
	}
	log = log.With().Str("component", "directory_refresh").Logger()
	log.Info().Str("cron", expr).Msg("Starting directory refresh loop")

	for {
		wait := retryDelay
		next, err := NextRefresh(expr, time.Now())
		if err != nil {
			log.Err(err).Str("cron", expr).Msg("Failed to compute next directory refresh")
		} else {
			wait = time.Until(next)
			log.Debug().Time("next", next).Msg("Scheduled directory refresh")
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Directory refresh loop stopped")
			return ctx.Err()
		case <-timer.C:
		}
		if err != nil {
			continue
		}
		dir := reload(ctx)
		log.Info().Int("identities", dir.Len()).Msg("Refreshed directory")
	}
}
