package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

// PostgresConfig configures a Postgres-backed feed.
type PostgresConfig struct {
	DSN string
	// Table holds one row per notification: id bigserial, payload jsonb.
	Table string
	// Channel is notified by producers after inserting rows.
	Channel  string
	MaxBatch int
}

// PostgresFeed reads Atlas notifications queued in a Postgres table. A polled
// batch keeps its rows locked inside an open transaction; Ack deletes them
// and commits, a release rolls back so the rows become visible again.
// Rows are claimed with FOR UPDATE SKIP LOCKED.
type PostgresFeed struct {
	pool        *pgxpool.Pool
	listener    *pgxpool.Conn
	table       string
	channel     string
	channelName string
	maxBatch    int
	roles       models.Roles
	logger      *slog.Logger

	mu      sync.Mutex
	pending *pendingBatch
}

type pendingBatch struct {
	tx  pgx.Tx
	ids []int64
}

// NewPostgresFeed connects, creates the queue table if needed and starts
// listening on the notification channel.
func NewPostgresFeed(ctx context.Context, cfg PostgresConfig, roles models.Roles, logger *slog.Logger) (*PostgresFeed, error) {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing event feed DSN: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating event feed pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging event feed database: %w", err)
	}

	f := &PostgresFeed{
		pool:        pool,
		table:       pgx.Identifier{cfg.Table}.Sanitize(),
		channel:     pgx.Identifier{cfg.Channel}.Sanitize(),
		channelName: cfg.Channel,
		maxBatch:    cfg.MaxBatch,
		roles:       roles,
		logger:      logger,
	}
	if err := f.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := f.listen(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("event feed connected", "table", cfg.Table, "channel", cfg.Channel, "max_batch", cfg.MaxBatch)
	return f, nil
}

func (f *PostgresFeed) ensureTable(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + f.table + ` (
  id bigserial PRIMARY KEY,
  payload jsonb NOT NULL,
  received_at timestamptz NOT NULL DEFAULT now()
)`
	if _, err := f.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating event table: %w", err)
	}
	return nil
}

func (f *PostgresFeed) listen(ctx context.Context) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+f.channel); err != nil {
		conn.Release()
		return fmt.Errorf("listening on event channel: %w", err)
	}
	f.listener = conn
	return nil
}

// Publish enqueues a raw notification and wakes listeners.
func (f *PostgresFeed) Publish(ctx context.Context, payload []byte) error {
	_, err := f.pool.Exec(ctx,
		"WITH ins AS (INSERT INTO "+f.table+" (payload) VALUES ($1)) SELECT pg_notify($2, '')",
		payload, f.channelName)
	if err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

func (f *PostgresFeed) Poll(ctx context.Context, timeout time.Duration) ([]models.SyncEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pool == nil {
		return nil, ErrFeedClosed
	}
	f.release(ctx)

	events, err := f.claim(ctx)
	if err != nil || len(events) > 0 {
		return events, err
	}

	if err := f.wait(ctx, timeout); err != nil {
		return nil, err
	}
	return f.claim(ctx)
}

// claim locks the oldest unclaimed rows in a new transaction and decodes
// them. Undecodable rows are deleted with the batch.
func (f *PostgresFeed) claim(ctx context.Context) ([]models.SyncEvent, error) {
	tx, err := f.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning event transaction: %w", err)
	}

	rows, err := tx.Query(ctx,
		"SELECT id, payload::text FROM "+f.table+" ORDER BY id LIMIT $1 FOR UPDATE SKIP LOCKED",
		f.maxBatch)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("claiming events: %w", err)
	}

	var (
		ids    []int64
		events []models.SyncEvent
	)
	for rows.Next() {
		var (
			id      int64
			payload string
		)
		if err := rows.Scan(&id, &payload); err != nil {
			rows.Close()
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		ids = append(ids, id)

		ev, err := DecodeAtlasNotification([]byte(payload), f.roles)
		if err != nil {
			f.logger.Warn("dropping undecodable event", "id", id, "error", err)
			continue
		}
		ev.ID = strconv.FormatInt(id, 10)
		events = append(events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("reading event rows: %w", err)
	}

	if len(ids) == 0 {
		_ = tx.Rollback(ctx)
		return nil, nil
	}

	batch := &pendingBatch{tx: tx, ids: ids}
	if len(events) == 0 {
		// Nothing usable: consume the rows now so they are not redelivered.
		if err := f.commit(ctx, batch); err != nil {
			return nil, err
		}
		return nil, nil
	}
	f.pending = batch
	return events, nil
}

func (f *PostgresFeed) wait(ctx context.Context, timeout time.Duration) error {
	if f.listener == nil || f.listener.Conn().IsClosed() {
		if f.listener != nil {
			f.listener.Release()
			f.listener = nil
		}
		if err := f.listen(ctx); err != nil {
			return err
		}
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := f.listener.Conn().WaitForNotification(wctx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded) || wctx.Err() != nil:
		return nil
	default:
		return fmt.Errorf("waiting for events: %w", err)
	}
}

func (f *PostgresFeed) Ack(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending == nil {
		return ErrNoPending
	}
	batch := f.pending
	f.pending = nil
	return f.commit(ctx, batch)
}

func (f *PostgresFeed) commit(ctx context.Context, batch *pendingBatch) error {
	if _, err := batch.tx.Exec(ctx, "DELETE FROM "+f.table+" WHERE id = ANY($1)", batch.ids); err != nil {
		_ = batch.tx.Rollback(ctx)
		return fmt.Errorf("deleting %d consumed events: %w", len(batch.ids), err)
	}
	if err := batch.tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing consumed events: %w", err)
	}
	return nil
}

// release rolls back an unacknowledged batch so its rows are redelivered.
func (f *PostgresFeed) release(ctx context.Context) {
	if f.pending == nil {
		return
	}
	if err := f.pending.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		f.logger.Warn("releasing unacknowledged events", "count", len(f.pending.ids), "error", err)
	} else {
		f.logger.Info("released unacknowledged events for redelivery", "count", len(f.pending.ids))
	}
	f.pending = nil
}

func (f *PostgresFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pool == nil {
		return nil
	}
	f.release(context.Background())
	if f.listener != nil {
		f.listener.Release()
		f.listener = nil
	}
	f.pool.Close()
	f.pool = nil
	return nil
}

// Ping checks the feed database.
func (f *PostgresFeed) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pool == nil {
		return ErrFeedClosed
	}
	return f.pool.Ping(ctx)
}
