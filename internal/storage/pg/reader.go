package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Querier runs a query. *pgxpool.Pool, *pgx.Conn and pgx.Tx satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type ReadOptions struct {
	// ChunkSize is the number of rows handed to the callback at once. Zero
	// reads everything into one chunk.
	ChunkSize int
	// Timeout bounds the time spent in the database. Time spent in the
	// Read callback does not count.
	Timeout time.Duration
}

// RowReader streams query results as column-name keyed maps.
type RowReader struct {
	db Querier
}

func NewRowReader(db Querier) *RowReader {
	return &RowReader{db: db}
}

// ReadAll returns every row of the query.
func (r *RowReader) ReadAll(ctx context.Context, sql string, args pgx.NamedArgs, opts ReadOptions) ([]map[string]any, error) {
	queryCtx, cancel := newQueryCtx(ctx, opts)
	defer cancel()

	rows, err := r.db.Query(queryCtx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}

	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return out, nil
}

// Read calls fn with consecutive chunks of at most opts.ChunkSize rows. The
// next chunk is not fetched until fn returns. An error from fn stops the read
// and is returned as is.
func (r *RowReader) Read(ctx context.Context, sql string, args pgx.NamedArgs, opts ReadOptions, fn func(ctx context.Context, chunk []map[string]any) error) error {
	queryCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	b := startBudget(opts.Timeout, cancel)
	defer b.pause()

	rows, err := r.db.Query(queryCtx, sql, args)
	if err != nil {
		return readErr(queryCtx, opts, "failed to run query", err)
	}
	defer rows.Close()

	size := opts.ChunkSize
	var chunk []map[string]any
	for rows.Next() {
		row, err := pgx.RowToMap(rows)
		if err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		chunk = append(chunk, row)
		if size > 0 && len(chunk) == size {
			b.pause()
			if err := fn(ctx, chunk); err != nil {
				return err
			}
			b.resume()
			chunk = nil
		}
	}
	if err := rows.Err(); err != nil {
		return readErr(queryCtx, opts, "failed to read rows", err)
	}

	if len(chunk) > 0 {
		b.pause()
		return fn(ctx, chunk)
	}
	return nil
}

func readErr(queryCtx context.Context, opts ReadOptions, msg string, err error) error {
	if errors.Is(context.Cause(queryCtx), context.DeadlineExceeded) {
		return fmt.Errorf("%s: query timed out after %s: %w", msg, opts.Timeout, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// budget cancels a query once it has run for its timeout. The clock stops
// while paused.
type budget struct {
	left    time.Duration
	started time.Time
	timer   *time.Timer
	cancel  context.CancelCauseFunc
}

func startBudget(timeout time.Duration, cancel context.CancelCauseFunc) *budget {
	b := &budget{left: timeout, cancel: cancel}
	b.resume()
	return b
}

func (b *budget) resume() {
	if b.left <= 0 || b.timer != nil {
		return
	}
	b.started = time.Now()
	b.timer = time.AfterFunc(b.left, func() {
		b.cancel(context.DeadlineExceeded)
	})
}

func (b *budget) pause() {
	if b.timer == nil {
		return
	}
	if b.timer.Stop() {
		b.left -= time.Since(b.started)
	} else {
		b.left = 0
	}
	b.timer = nil
	if b.left <= 0 {
		b.cancel(context.DeadlineExceeded)
	}
}

func newQueryCtx(ctx context.Context, opts ReadOptions) (context.Context, context.CancelFunc) {
	if opts.Timeout > 0 {
		return context.WithTimeout(ctx, opts.Timeout)
	}
	return ctx, func() {
		// no-op
	}
}
