package extractor

import (
	"context"
	"time"

	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/DjordjeVuckovic/etl-runner/internal/queue"
	"github.com/DjordjeVuckovic/etl-runner/internal/storage/pg"
	"github.com/jackc/pgx/v5"
)

// RowSource is implemented by pg.RowReader.
type RowSource interface {
	ReadAll(ctx context.Context, sql string, args pgx.NamedArgs, opts pg.ReadOptions) ([]map[string]any, error)
	Read(ctx context.Context, sql string, args pgx.NamedArgs, opts pg.ReadOptions, fn func(ctx context.Context, chunk []map[string]any) error) error
}

// PgQueryExtractor runs a SELECT and yields each row as map[string]any.
//
// Options: query (required), params (map of @name bind values),
// chunk_size (default 500), timeout_seconds (time spent in the database,
// not counting the transform and load of streamed chunks).
type PgQueryExtractor struct {
	rows RowSource
}

func NewPgQueryExtractor(rows RowSource) *PgQueryExtractor {
	return &PgQueryExtractor{rows: rows}
}

func (e *PgQueryExtractor) Extract(ctx context.Context, sc etl.StageContext, chunk etl.ChunkFunc) (*queue.Queue[etl.Record], error) {
	sql, err := sc.Options.RequiredString("query")
	if err != nil {
		return nil, err
	}
	size, err := chunkSize(sc.Options)
	if err != nil {
		return nil, err
	}
	timeout, err := sc.Options.Int("timeout_seconds", 0)
	if err != nil {
		return nil, err
	}

	var args pgx.NamedArgs
	if p, ok := sc.Options.Get("params").(map[string]any); ok {
		args = p
	}
	opts := pg.ReadOptions{ChunkSize: size, Timeout: time.Duration(timeout) * time.Second}

	if chunk == nil {
		rows, err := e.rows.ReadAll(ctx, sql, args, opts)
		if err != nil {
			return nil, etl.ExtractorError("extract", err, "")
		}
		return queue.New(toRecords(rows)...), nil
	}

	var chunkErr error
	err = e.rows.Read(ctx, sql, args, opts, func(ctx context.Context, rows []map[string]any) error {
		chunkErr = chunk(ctx, queue.New(toRecords(rows)...))
		return chunkErr
	})
	if chunkErr != nil {
		// Downstream failures keep their own kind.
		return nil, chunkErr
	}
	if err != nil {
		return nil, etl.ExtractorError("extract", err, "")
	}
	return nil, nil
}

func toRecords(rows []map[string]any) []etl.Record {
	out := make([]etl.Record, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
