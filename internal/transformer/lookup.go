package transformer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DjordjeVuckovic/etl-runner/internal/loader"
	"github.com/DjordjeVuckovic/etl-runner/internal/storage/pg"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// lookupBatch caps the number of keys matched by one lookup query.
const lookupBatch = 500

// RowLookup reads rows already stored in the destination table.
// *pg.RowReader satisfies it.
type RowLookup interface {
	ReadAll(ctx context.Context, sql string, args pgx.NamedArgs, opts pg.ReadOptions) ([]map[string]any, error)
}

// stored returns the existing rows matching the keys of rows, indexed the
// same way as key.
func (t *MappingTransformer) stored(ctx context.Context, rows []mapped) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any)

	seen := make(map[string]bool, len(rows))
	var keys [][]any
	for _, r := range rows {
		k := t.key(r.values)
		if seen[k] {
			continue
		}
		seen[k] = true

		values := make([]any, len(t.mapping.Key))
		for i, c := range t.mapping.Key {
			values[i] = r.values[c]
		}
		keys = append(keys, values)
	}

	for start := 0; start < len(keys); start += lookupBatch {
		end := min(start+lookupBatch, len(keys))
		sql, args := existingQuery(t.mapping.Table, t.mapping.Key, keys[start:end])
		found, err := t.rows.ReadAll(ctx, sql, args, pg.ReadOptions{})
		if err != nil {
			return nil, err
		}
		for _, row := range found {
			out[t.key(row)] = row
		}
	}
	return out, nil
}

// existingQuery selects the rows of table whose key columns equal one of keys.
func existingQuery(table string, key []string, keys [][]any) (string, pgx.NamedArgs) {
	args := make(pgx.NamedArgs, len(keys)*len(key))
	ors := make([]string, len(keys))
	for i, values := range keys {
		ands := make([]string, len(key))
		for j, c := range key {
			name := fmt.Sprintf("k%d_%d", i, j)
			ands[j] = fmt.Sprintf("%s = @%s", pgx.Identifier{c}.Sanitize(), name)
			args[name] = values[j]
		}
		ors[i] = "(" + strings.Join(ands, " AND ") + ")"
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE %s", loader.TableName(table), strings.Join(ors, " OR ")), args
}

// changes returns the mapped values that differ from the stored row. Unless
// replace is set, only columns stored as NULL are taken.
func changes(stored, values map[string]any, replace bool) map[string]any {
	diff := make(map[string]any)
	for c, v := range values {
		if v == nil || c == "id" {
			continue
		}
		old := stored[c]
		if old == nil || (replace && !sameValue(old, v)) {
			diff[c] = v
		}
	}
	return diff
}

// sameValue compares a stored database value with a mapped one. Driver types
// differ from the converted ones, so values are compared by their text form.
func sameValue(stored, mapped any) bool {
	if a, ok := stored.(time.Time); ok {
		b, ok := mapped.(time.Time)
		return ok && a.Equal(b)
	}
	return fmt.Sprint(normalize(stored)) == fmt.Sprint(normalize(mapped))
}

func normalize(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String()
	case uuid.UUID:
		return x.String()
	}
	return v
}
