package instrument

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"roster-backend/internal/logger"
)

var eventColumns = []string{"request_id", "action", "domain", "namespace", "table_name", "record_id", "user_id", "status", "metadata"}

// EventBuffer collects events in memory and periodically flushes them
// to the _roster_events table in a batch insert.
type EventBuffer struct {
	mu      sync.Mutex
	events  []Event
	pool    *pgxpool.Pool
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	stop    sync.Once
	log     zerolog.Logger
}

// NewEventBuffer creates a buffer that flushes on a timer or when full.
func NewEventBuffer(pool *pgxpool.Pool, maxSize int, flushIntervalMs int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = 200
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 500
	}
	eb := &EventBuffer{
		pool:    pool,
		maxSize: maxSize,
		done:    make(chan struct{}),
		log:     logger.With("events"),
	}
	eb.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush()
		}
	}
}

// Record adds an event to the buffer. If the buffer is full, a flush
// is triggered asynchronously.
func (eb *EventBuffer) Record(ctx context.Context, e Event) {
	e = fillFromContext(ctx, e)
	eb.mu.Lock()
	eb.events = append(eb.events, e)
	shouldFlush := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if shouldFlush {
		go eb.Flush()
	}
}

// Len returns the number of buffered events.
func (eb *EventBuffer) Len() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.events)
}

func (eb *EventBuffer) drain() []Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	batch := eb.events
	eb.events = nil
	return batch
}

// Flush writes all buffered events to the database in a single batch insert.
// Failed batches are logged and dropped.
func (eb *EventBuffer) Flush() {
	batch := eb.drain()
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sql, args := buildEventInsert(batch)

	tx, err := eb.pool.Begin(ctx)
	if err != nil {
		eb.log.Error().Err(err).Int("events", len(batch)).Msg("event buffer begin tx")
		return
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SET LOCAL synchronous_commit = off"); err != nil {
		eb.log.Error().Err(err).Msg("event buffer set sync commit")
		return
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		eb.log.Error().Err(err).Int("events", len(batch)).Msg("event buffer insert")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		eb.log.Error().Err(err).Msg("event buffer commit")
	}
}

func buildEventInsert(batch []Event) (string, []any) {
	placeholders := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*len(eventColumns))
	for i, e := range batch {
		offset := i * len(eventColumns)
		ph := make([]string, len(eventColumns))
		for j := range eventColumns {
			ph[j] = fmt.Sprintf("$%d", offset+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")

		var metaJSON any
		if e.Metadata != nil {
			if b, err := json.Marshal(e.Metadata); err == nil {
				metaJSON = string(b)
			}
		}

		args = append(args, nullable(e.RequestID), e.Action, e.Domain, nullable(e.Namespace), nullable(e.Table),
			nullable(e.RecordID), nullable(e.UserID), e.Status, metaJSON)
	}

	sql := fmt.Sprintf("INSERT INTO _roster_events (%s) VALUES %s",
		strings.Join(eventColumns, ","), strings.Join(placeholders, ","))
	return sql, args
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Stop halts the background ticker and flushes remaining events.
func (eb *EventBuffer) Stop() {
	eb.stop.Do(func() {
		eb.ticker.Stop()
		close(eb.done)
		eb.Flush()
	})
}
