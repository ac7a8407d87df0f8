// Package loader writes transformed commands to Postgres or Elasticsearch.
package loader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DjordjeVuckovic/etl-runner/internal/audit"
	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/DjordjeVuckovic/etl-runner/internal/output"
	"github.com/DjordjeVuckovic/etl-runner/internal/queue"
	"github.com/jackc/pgx/v5"
)

// Audit log modes, selected with the audit_log option.
const (
	AuditFull    = "full"
	AuditSummary = "summary"
)

// TxBeginner starts a transaction. *pgxpool.Pool and *pgx.Conn satisfy it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgLoader drains a command queue inside a single transaction.
type PgLoader struct {
	db      TxBeginner
	auditor audit.Auditor
}

func NewPgLoader(db TxBeginner, auditor audit.Auditor) *PgLoader {
	if auditor == nil {
		auditor = audit.Void{}
	}
	return &PgLoader{db: db, auditor: auditor}
}

type tally struct {
	etl.Stats
	log []any
}

func (t *tally) counter(kind etl.QueryKind) *int {
	switch kind {
	case etl.Insert:
		return &t.Insert
	case etl.Update:
		return &t.Update
	case etl.Delete:
		return &t.Delete
	}
	return nil
}

func (l *PgLoader) Load(ctx context.Context, sc etl.StageContext, in *queue.Queue[etl.Command]) error {
	out := sc.Output
	if in.IsEmpty() {
		out.Tagged(output.TagInfo, "No database queries to execute.")
		return nil
	}

	mode := sc.Options.String("audit_log", AuditFull)
	if mode != AuditFull && mode != AuditSummary {
		return etl.ConfigurationError("load", "unknown audit_log mode %q, expected %q or %q", mode, AuditFull, AuditSummary)
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return etl.LoaderError("load", err, "failed to begin transaction")
	}

	t, err := l.drain(ctx, tx, in, out)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.Error("Failed to roll back load transaction", "pipeline", sc.PipelineID, "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return etl.LoaderError("load", err, "failed to commit transaction")
	}

	out.Writeln("")
	out.Writeln(fmt.Sprintf("Database queries finished with %d INSERT, %d UPDATE and %d DELETE operations.", t.Insert, t.Update, t.Delete))
	out.Writeln("")

	data := map[string]any{
		"run_id": sc.RunID,
		"insert": t.Insert,
		"update": t.Update,
		"delete": t.Delete,
	}
	if mode == AuditFull {
		data["queries"] = t.log
	}
	l.auditor.Audit(ctx, audit.CategoryETL,
		fmt.Sprintf("Loader query log with %d INSERTs, %d UPDATEs and %d DELETEs", t.Insert, t.Update, t.Delete),
		data,
	)

	return nil
}

func (l *PgLoader) drain(ctx context.Context, tx pgx.Tx, in *queue.Queue[etl.Command], out output.Writer) (tally, error) {
	var t tally

	bar := output.NewProgressBar(out, in.Len())
	out.Writeln("Executing database queries")
	bar.Start()

	for cmd := range in.Drain() {
		switch c := cmd.(type) {
		case *etl.Query:
			counter := t.counter(c.Kind)
			if counter == nil {
				return t, etl.LoaderError("load", nil, "unsupported query kind (%s) received", c.Kind)
			}
			if _, err := tx.Exec(ctx, c.SQL, c.Params); err != nil {
				return t, etl.LoaderError("load", err, "%s failed", c.Describe())
			}
			*counter++
			t.log = append(t.log, c.LogEntry())
		case *etl.CallbackQuery:
			stats, err := c.Execute(ctx, tx)
			if err != nil {
				return t, etl.LoaderError("load", err, "%s failed", c.Describe())
			}
			t.Insert += stats.Insert
			t.Update += stats.Update
			t.Delete += stats.Delete
			if stats.Log != nil {
				t.log = append(t.log, stats.Log)
			}
		default:
			return t, etl.LoaderError("load", nil, "unknown command type (%T) received in loader, expecting *etl.Query or *etl.CallbackQuery", cmd)
		}
		bar.Advance()
	}
	bar.Finish()

	return t, nil
}
