package pg

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowRows yields n single-column rows, waiting delay before each one.
type slowRows struct {
	ctx   context.Context
	n     int
	delay time.Duration
	next  int
	err   error
}

func (r *slowRows) Close()                                       {}
func (r *slowRows) Err() error                                   { return r.err }
func (r *slowRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *slowRows) Scan(...any) error                            { return nil }
func (r *slowRows) RawValues() [][]byte                          { return nil }
func (r *slowRows) Conn() *pgx.Conn                              { return nil }
func (r *slowRows) Values() ([]any, error)                       { return []any{int64(r.next)}, nil }
func (r *slowRows) FieldDescriptions() []pgconn.FieldDescription { return []pgconn.FieldDescription{{Name: "n"}} }

func (r *slowRows) Next() bool {
	if r.next == r.n {
		return false
	}
	select {
	case <-time.After(r.delay):
	case <-r.ctx.Done():
		r.err = r.ctx.Err()
		return false
	}
	r.next++
	return true
}

type slowQuerier struct {
	n     int
	delay time.Duration
}

func (q slowQuerier) Query(ctx context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return &slowRows{ctx: ctx, n: q.n, delay: q.delay}, nil
}

func TestRowReader_ReadTimeoutExcludesCallback(t *testing.T) {
	r := NewRowReader(slowQuerier{n: 3})

	var chunks int
	err := r.Read(t.Context(), "SELECT n", nil, ReadOptions{ChunkSize: 1, Timeout: 50 * time.Millisecond},
		func(ctx context.Context, chunk []map[string]any) error {
			chunks++
			time.Sleep(40 * time.Millisecond)
			return ctx.Err()
		})

	require.NoError(t, err)
	assert.Equal(t, 3, chunks)
}

func TestRowReader_ReadTimeout(t *testing.T) {
	r := NewRowReader(slowQuerier{n: 10, delay: 30 * time.Millisecond})

	err := r.Read(t.Context(), "SELECT n", nil, ReadOptions{ChunkSize: 100, Timeout: 50 * time.Millisecond},
		func(context.Context, []map[string]any) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "query timed out after 50ms")
	assert.ErrorIs(t, err, context.Canceled)
}
