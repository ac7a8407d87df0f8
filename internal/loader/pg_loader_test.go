package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/DjordjeVuckovic/etl-runner/internal/audit"
	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/DjordjeVuckovic/etl-runner/internal/output"
	"github.com/DjordjeVuckovic/etl-runner/internal/queue"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args pgx.NamedArgs
}

// fakeTx records statements and only publishes them on Commit.
type fakeTx struct {
	pgx.Tx
	db      *fakeDB
	pending []execCall
	failOn  int
}

func (tx *fakeTx) Exec(_ context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if tx.failOn > 0 && len(tx.pending)+1 == tx.failOn {
		return pgconn.CommandTag{}, errors.New("duplicate key value violates unique constraint")
	}
	var args pgx.NamedArgs
	if len(arguments) > 0 {
		args, _ = arguments[0].(pgx.NamedArgs)
	}
	tx.pending = append(tx.pending, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (tx *fakeTx) CopyFrom(_ context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	var n int64
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return n, err
		}
		args := pgx.NamedArgs{}
		for i, c := range cols {
			args[c] = values[i]
		}
		tx.pending = append(tx.pending, execCall{sql: "COPY " + table.Sanitize(), args: args})
		n++
	}
	return n, nil
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.db.committed = append(tx.db.committed, tx.pending...)
	tx.db.commits++
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	tx.pending = nil
	tx.db.rollbacks++
	return nil
}

type fakeDB struct {
	committed []execCall
	begins    int
	commits   int
	rollbacks int
	failOn    int
	beginErr  error
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	if db.beginErr != nil {
		return nil, db.beginErr
	}
	db.begins++
	return &fakeTx{db: db, failOn: db.failOn}, nil
}

func stageContext(out output.Writer, options map[string]any) etl.StageContext {
	return etl.StageContext{
		RunID:      "run-1",
		PipelineID: "customers",
		Output:     out,
		Options:    etl.NewOptions(options),
	}
}

func inserts(values ...string) *queue.Queue[etl.Command] {
	q := queue.New[etl.Command]()
	for _, v := range values {
		q.Push(etl.NewQuery(etl.Insert, "INSERT INTO t (v) VALUES (@v)", pgx.NamedArgs{"v": v}))
	}
	return q
}

func TestPgLoader_EmptyQueue(t *testing.T) {
	db := &fakeDB{}
	auditor := audit.NewMemory()
	out := output.NewBuffer()

	err := NewPgLoader(db, auditor).Load(t.Context(), stageContext(out, nil), queue.New[etl.Command]())

	require.NoError(t, err)
	assert.Equal(t, 0, db.begins)
	assert.Empty(t, auditor.Events())
	assert.True(t, out.Contains("No database queries to execute."))
}

func TestPgLoader_CommitsAndAuditsOnce(t *testing.T) {
	db := &fakeDB{}
	auditor := audit.NewMemory()
	out := output.NewBuffer()

	q := inserts("A", "B")
	q.Push(etl.NewQuery(etl.Update, "UPDATE t SET v = @v WHERE id = @id", pgx.NamedArgs{"v": "C", "id": 1}))
	q.Push(etl.NewQuery(etl.Delete, "DELETE FROM t WHERE id = @id", pgx.NamedArgs{"id": 2}))

	err := NewPgLoader(db, auditor).Load(t.Context(), stageContext(out, nil), q)

	require.NoError(t, err)
	assert.Equal(t, 1, db.begins)
	assert.Equal(t, 1, db.commits)
	assert.Equal(t, 0, db.rollbacks)
	require.Len(t, db.committed, 4)
	assert.Equal(t, "A", db.committed[0].args["v"])

	events := auditor.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryETL, events[0].Category)
	assert.Equal(t, "Loader query log with 2 INSERTs, 1 UPDATEs and 1 DELETEs", events[0].Message)
	queries, ok := events[0].Data["queries"].([]any)
	require.True(t, ok)
	require.Len(t, queries, 4)
	assert.Equal(t, map[string]any{"q": "Insert", "p": map[string]any{"v": "A"}}, queries[0])

	assert.True(t, out.Contains("Database queries finished with 2 INSERT, 1 UPDATE and 1 DELETE operations."))
	assert.True(t, out.Contains("]:100%"))
	assert.True(t, q.IsEmpty())
}

func TestPgLoader_SummaryAuditOmitsQueries(t *testing.T) {
	db := &fakeDB{}
	auditor := audit.NewMemory()

	err := NewPgLoader(db, auditor).Load(t.Context(), stageContext(output.NewBuffer(), map[string]any{"audit_log": "summary"}), inserts("A"))

	require.NoError(t, err)
	events := auditor.Events()
	require.Len(t, events, 1)
	assert.NotContains(t, events[0].Data, "queries")
	assert.Equal(t, 1, events[0].Data["insert"])
}

func TestPgLoader_UnknownAuditMode(t *testing.T) {
	db := &fakeDB{}

	err := NewPgLoader(db, nil).Load(t.Context(), stageContext(output.NewBuffer(), map[string]any{"audit_log": "verbose"}), inserts("A"))

	require.Error(t, err)
	assert.True(t, etl.IsKind(err, etl.KindConfiguration))
	assert.Equal(t, 0, db.begins)
}

func TestPgLoader_FailureRollsBackEverything(t *testing.T) {
	db := &fakeDB{failOn: 3}
	auditor := audit.NewMemory()

	err := NewPgLoader(db, auditor).Load(t.Context(), stageContext(output.NewBuffer(), nil), inserts("A", "B", "C", "D"))

	require.Error(t, err)
	assert.Equal(t, etl.KindLoader, etl.KindOf(err))
	assert.Contains(t, err.Error(), "duplicate key value")
	assert.Empty(t, db.committed)
	assert.Equal(t, 1, db.rollbacks)
	assert.Equal(t, 0, db.commits)
	assert.Empty(t, auditor.Events())
}

func TestPgLoader_CallbackQueryMergesStats(t *testing.T) {
	db := &fakeDB{}
	auditor := audit.NewMemory()

	q := inserts("A")
	q.Push(etl.NewCallbackQuery("order with lines", func(ctx context.Context, tx pgx.Tx) (etl.Stats, error) {
		if _, err := tx.Exec(ctx, "INSERT INTO orders (n) VALUES (@n)", pgx.NamedArgs{"n": 1}); err != nil {
			return etl.Stats{}, err
		}
		return etl.Stats{Insert: 3, Update: 1, Log: "order 1 with 2 lines"}, nil
	}))

	err := NewPgLoader(db, auditor).Load(t.Context(), stageContext(output.NewBuffer(), nil), q)

	require.NoError(t, err)
	assert.Len(t, db.committed, 2)
	events := auditor.Events()
	require.Len(t, events, 1)
	assert.Equal(t, 4, events[0].Data["insert"])
	assert.Equal(t, 1, events[0].Data["update"])
	assert.Contains(t, events[0].Data["queries"], "order 1 with 2 lines")
}

func TestPgLoader_CallbackErrorRollsBack(t *testing.T) {
	db := &fakeDB{}

	q := inserts("A")
	q.Push(etl.NewCallbackQuery("broken", func(context.Context, pgx.Tx) (etl.Stats, error) {
		return etl.Stats{}, errors.New("lines table missing")
	}))

	err := NewPgLoader(db, nil).Load(t.Context(), stageContext(output.NewBuffer(), nil), q)

	require.Error(t, err)
	assert.Equal(t, etl.KindLoader, etl.KindOf(err))
	assert.Contains(t, err.Error(), "callback query broken failed")
	assert.Empty(t, db.committed)
	assert.Equal(t, 1, db.rollbacks)
}

type rawCommand struct{}

func (rawCommand) Describe() string { return "raw" }

func TestPgLoader_UnknownCommandIsLoaderError(t *testing.T) {
	db := &fakeDB{}

	q := inserts("A")
	q.Push(rawCommand{})

	err := NewPgLoader(db, nil).Load(t.Context(), stageContext(output.NewBuffer(), nil), q)

	require.Error(t, err)
	assert.Equal(t, etl.KindLoader, etl.KindOf(err))
	assert.Contains(t, err.Error(), "loader.rawCommand")
	assert.Equal(t, 1, db.rollbacks)
}

func TestPgLoader_BeginError(t *testing.T) {
	db := &fakeDB{beginErr: errors.New("pool closed")}

	err := NewPgLoader(db, nil).Load(t.Context(), stageContext(output.NewBuffer(), nil), inserts("A"))

	require.Error(t, err)
	assert.Equal(t, etl.KindLoader, etl.KindOf(err))
}

func TestPgLoader_ChunksCommitIndependently(t *testing.T) {
	db := &fakeDB{}
	l := NewPgLoader(db, nil)
	sc := stageContext(output.NewBuffer(), nil)

	require.NoError(t, l.Load(t.Context(), sc, inserts("A", "B")))
	db.failOn = 2
	require.Error(t, l.Load(t.Context(), sc, inserts("C", "D", "E")))

	require.Len(t, db.committed, 2)
	assert.Equal(t, 1, db.commits)
	assert.Equal(t, 1, db.rollbacks)
}
