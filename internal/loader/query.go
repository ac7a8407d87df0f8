package loader

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/jackc/pgx/v5"
)

const (
	CreatedAt = "created_at"
	UpdatedAt = "updated_at"
)

var now = func() time.Time { return time.Now().UTC() }

// ColumnName converts a property name such as "customerId" to "customer_id".
// Characters that cannot appear in a bind parameter name become underscores.
func ColumnName(property string) string {
	var sb strings.Builder
	runes := []rune(property)
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// TableName sanitizes a possibly schema-qualified table name.
func TableName(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func column(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// columns returns the snake_case columns of values in sorted order with
// their bind parameters.
func columns(values map[string]any) ([]string, pgx.NamedArgs) {
	args := make(pgx.NamedArgs, len(values))
	for k, v := range values {
		args[ColumnName(k)] = v
	}
	return slices.Sorted(maps.Keys(args)), args
}

type InsertOption func(*insertConfig)

type insertConfig struct {
	stamp    bool
	conflict []string
}

// WithoutCreatedAt skips stamping the created_at column.
func WithoutCreatedAt() InsertOption {
	return func(c *insertConfig) {
		c.stamp = false
	}
}

// OnConflictUpdate turns the insert into an upsert keyed on the given
// columns. Every non-key column is overwritten on conflict.
func OnConflictUpdate(key ...string) InsertOption {
	return func(c *insertConfig) {
		c.conflict = key
	}
}

// InsertQuery builds an INSERT of values into table. Nil values are left
// out so column defaults apply.
func InsertQuery(table string, values map[string]any, opts ...InsertOption) (*etl.Query, error) {
	cfg := insertConfig{stamp: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	present := make(map[string]any, len(values)+1)
	for k, v := range values {
		if v != nil {
			present[k] = v
		}
	}
	if cfg.stamp {
		if _, ok := present[CreatedAt]; !ok {
			present[CreatedAt] = now()
		}
	}
	if len(present) == 0 {
		return nil, etl.ConfigurationError("insert query", "no values given for insert into %s", table)
	}

	cols, args := columns(present)
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = column(c)
		params[i] = "@" + c
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s)", TableName(table), strings.Join(quoted, ", "), strings.Join(params, ", "))

	if len(cfg.conflict) > 0 {
		keys := make([]string, len(cfg.conflict))
		isKey := make(map[string]bool, len(cfg.conflict))
		for i, k := range cfg.conflict {
			name := ColumnName(k)
			keys[i] = column(name)
			isKey[name] = true
		}
		var sets []string
		for _, c := range cols {
			if isKey[c] || c == CreatedAt {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", column(c), column(c)))
		}
		if len(sets) == 0 {
			fmt.Fprintf(&sb, " ON CONFLICT (%s) DO NOTHING", strings.Join(keys, ", "))
		} else {
			fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keys, ", "), strings.Join(sets, ", "))
		}
	}

	return etl.NewQuery(etl.Insert, sb.String(), args), nil
}

// UpdateQuery builds an UPDATE of the row with the given id. It returns nil
// when there is nothing to update. updated_at is always set.
func UpdateQuery(table string, id any, values map[string]any) *etl.Query {
	if id == nil || len(values) == 0 {
		return nil
	}

	cols, args := columns(values)
	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		if c == "id" || c == UpdatedAt {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = @%s", column(c), c))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, fmt.Sprintf("%s = @%s", column(UpdatedAt), UpdatedAt))
	args[UpdatedAt] = now()
	args["id"] = id

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = @id", TableName(table), strings.Join(sets, ", "))
	return etl.NewQuery(etl.Update, sql, args)
}

// SetNullQuery explicitly sets the given columns to NULL. It returns nil when
// there is nothing to clear or no id.
func SetNullQuery(table string, id any, fields []string) *etl.Query {
	if id == nil || id == "" || len(fields) == 0 {
		return nil
	}

	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, ColumnName(f))
	}
	slices.Sort(cols)
	cols = slices.Compact(cols)

	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		sets = append(sets, column(c)+" = NULL")
	}
	sets = append(sets, fmt.Sprintf("%s = @%s", column(UpdatedAt), UpdatedAt))

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = @id", TableName(table), strings.Join(sets, ", "))
	return etl.NewQuery(etl.Update, sql, pgx.NamedArgs{"id": id, UpdatedAt: now()})
}

// DeleteQuery builds a DELETE constrained by every condition.
func DeleteQuery(table string, conditions map[string]any) (*etl.Query, error) {
	if len(conditions) == 0 {
		return nil, etl.ConfigurationError("delete query", "no conditions given for delete from %s", table)
	}

	cols, args := columns(conditions)
	where := make([]string, len(cols))
	for i, c := range cols {
		where[i] = fmt.Sprintf("t.%s = @%s", column(c), c)
	}

	sql := fmt.Sprintf("DELETE FROM %s AS t WHERE %s", TableName(table), strings.Join(where, " AND "))
	return etl.NewQuery(etl.Delete, sql, args), nil
}

// CopyQuery bulk inserts rows with COPY FROM inside the load transaction.
// Every row holds one value per column, nil for NULL. created_at is stamped
// unless it is one of the columns.
func CopyQuery(table string, cols []string, rows [][]any) *etl.CallbackQuery {
	ident := pgx.Identifier(strings.Split(table, "."))
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = ColumnName(c)
	}
	if !slices.Contains(names, CreatedAt) {
		names = append(names, CreatedAt)
		stamp := now()
		for i := range rows {
			rows[i] = append(rows[i], stamp)
		}
	}

	return etl.NewCallbackQuery(fmt.Sprintf("COPY %d rows into %s", len(rows), table),
		func(ctx context.Context, tx pgx.Tx) (etl.Stats, error) {
			n, err := tx.CopyFrom(ctx, ident, names, pgx.CopyFromRows(rows))
			if err != nil {
				return etl.Stats{}, fmt.Errorf("failed to copy into %s: %w", table, err)
			}
			return etl.Stats{
				Insert: int(n),
				Log:    map[string]any{"copy": table, "columns": names, "rows": n},
			}, nil
		})
}
