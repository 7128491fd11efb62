// Package audit persists a diagnostics trail of every inbound channel
// event. It hangs off the router's wildcard observer and batches rows into
// Postgres; it never affects dispatch.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures the archiver.
type Config struct {
	BatchSize     int           // rows per insert batch
	FlushInterval time.Duration // max time a row waits before flush
	QueueSize     int           // in-memory queue between observer and writer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     200,
		FlushInterval: 2 * time.Second,
		QueueSize:     2000,
	}
}

// Metrics contains runtime counters.
type Metrics struct {
	Inserts int64
	Drops   int64
	Flushes int64
	Errors  int64
}

// row is one archived event.
type row struct {
	ReceivedAt time.Time
	Event      string
	Payload    []byte
}

// Archiver consumes observed events and writes them in batches.
type Archiver struct {
	cfg    Config
	db     *pgxpool.Pool
	logger *slog.Logger

	input chan row

	batchMu     sync.Mutex
	batch       []row
	metrics     Metrics
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewArchiver creates an Archiver writing to the given pool.
func NewArchiver(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan row, cfg.QueueSize),
		batch:  make([]row, 0, cfg.BatchSize),
	}
}

// Connect creates the archive connection pool.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Observe is the router observer entry point. Non-blocking: when the queue
// is full the event is dropped and counted.
func (a *Archiver) Observe(event string, payload json.RawMessage) {
	r := row{
		ReceivedAt: time.Now(),
		Event:      event,
		Payload:    append([]byte(nil), payload...),
	}

	select {
	case a.input <- r:
	default:
		a.batchMu.Lock()
		a.metrics.Drops++
		a.batchMu.Unlock()
	}
}

// Start begins consuming and writing.
func (a *Archiver) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.flushTicker = time.NewTicker(a.cfg.FlushInterval)

	a.wg.Add(1)
	go a.consumeLoop()

	a.wg.Add(1)
	go a.flushLoop()

	a.logger.Info("audit archiver started",
		"batch_size", a.cfg.BatchSize,
		"flush_interval", a.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the archiver.
func (a *Archiver) Stop(ctx context.Context) error {
	a.logger.Info("stopping audit archiver")

	if a.cancel != nil {
		a.cancel()
	}
	if a.flushTicker != nil {
		a.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("audit archiver stopped")
	case <-ctx.Done():
		a.logger.Warn("audit archiver stop timed out")
	}

	// Final flush
	a.flush()

	return nil
}

// Stats returns current metrics.
func (a *Archiver) Stats() Metrics {
	a.batchMu.Lock()
	defer a.batchMu.Unlock()
	return a.metrics
}

// consumeLoop accumulates queued rows into batches.
func (a *Archiver) consumeLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case r := <-a.input:
			a.batchMu.Lock()
			a.batch = append(a.batch, r)
			shouldFlush := len(a.batch) >= a.cfg.BatchSize
			a.batchMu.Unlock()

			if shouldFlush {
				a.flush()
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (a *Archiver) flushLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.flushTicker.C:
			a.flush()
		}
	}
}

// flush writes the current batch to the database.
func (a *Archiver) flush() {
	a.batchMu.Lock()
	if len(a.batch) == 0 {
		a.batchMu.Unlock()
		return
	}
	batch := a.batch
	a.batch = make([]row, 0, a.cfg.BatchSize)
	a.batchMu.Unlock()

	start := time.Now()

	if err := a.batchInsert(batch); err != nil {
		a.logger.Error("batch insert failed", "error", err, "count", len(batch))
		a.batchMu.Lock()
		a.metrics.Errors++
		a.batchMu.Unlock()
		return
	}

	a.batchMu.Lock()
	a.metrics.Inserts += int64(len(batch))
	a.metrics.Flushes++
	a.batchMu.Unlock()

	a.logger.Debug("flushed events",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (a *Archiver) batchInsert(rows []row) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO channel_events (received_at, event, payload)
			VALUES ($1, $2, $3)
		`, r.ReceivedAt, r.Event, r.Payload)
	}

	results := a.db.SendBatch(a.ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
