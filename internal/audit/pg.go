package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const DefaultTable = "etl_audit"

// Execer runs a statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Pg writes audit events to a table with columns
// (id, category, message, data, created_at).
type Pg struct {
	db  Execer
	sql string
}

func NewPg(db Execer, table string) *Pg {
	if table == "" {
		table = DefaultTable
	}
	return &Pg{
		db: db,
		sql: "INSERT INTO " + pgx.Identifier{table}.Sanitize() +
			" (id, category, message, data, created_at) VALUES (@id, @category, @message, @data, @created_at)",
	}
}

// Audit runs outside any load transaction.
func (a *Pg) Audit(ctx context.Context, category, message string, data map[string]any) {
	_, err := a.db.Exec(ctx, a.sql, pgx.NamedArgs{
		"id":         uuid.New(),
		"category":   category,
		"message":    message,
		"data":       data,
		"created_at": time.Now().UTC(),
	})
	if err != nil {
		slog.Error("Failed to write audit event", "category", category, "error", err)
	}
}
