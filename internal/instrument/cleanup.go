package instrument

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"roster-backend/internal/logger"
)

// CleanupOldEvents deletes events older than retentionDays from _roster_events.
func CleanupOldEvents(ctx context.Context, pool *pgxpool.Pool, retentionDays int) (int64, error) {
	tag, err := pool.Exec(ctx,
		"DELETE FROM _roster_events WHERE created_at < NOW() - make_interval(days => $1)", retentionDays)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RunCleanup runs CleanupOldEvents once at start and then every interval
// until ctx is cancelled.
func RunCleanup(ctx context.Context, pool *pgxpool.Pool, retentionDays int, interval time.Duration) {
	log := logger.With("events")
	if retentionDays <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		deleted, err := CleanupOldEvents(ctx, pool, retentionDays)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("event cleanup")
		} else if deleted > 0 {
			log.Info().Int64("deleted", deleted).Msg("event cleanup: deleted old events")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
