// Package transformer turns extracted records into load commands.
package transformer

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/DjordjeVuckovic/etl-runner/internal/loader"
	"github.com/DjordjeVuckovic/etl-runner/internal/output"
	"github.com/DjordjeVuckovic/etl-runner/internal/queue"
	"github.com/DjordjeVuckovic/etl-runner/pkg/apis/datamapping"
)

// MappingTransformer maps records onto table rows as described by a
// DataMapping file.
//
// Options:
//
//	mapping           path to the DataMapping YAML (required)
//	warn_policy       pass | drop, what happens to records failing warn checks
//	notify            record every changed row for the end-of-run digest
//	target            pg (default) emits inserts and updates, pg_copy one COPY
//	                  per transform, es emits index documents
//	index             Elasticsearch index for target es, defaults to the table
//	lookup            compare against the stored rows, default true (pg only)
//	replace_existing  overwrite stored values that differ, default true. When
//	                  false only NULL columns are filled
//	clear_missing     set columns to NULL when the source value is blank
//	delete_flag       source field that marks a record for deletion (pg only)
type MappingTransformer struct {
	*etl.Chain
	rows    RowLookup
	mapping *datamapping.DataMapping
	notify  bool
	target  string
	index   string

	lookup       bool
	replace      bool
	clearMissing bool
	deleteFlag   string
}

const (
	TargetPg     = "pg"
	TargetPgCopy = "pg_copy"
	TargetES     = "es"
)

// NewMappingTransformer returns a transformer that compares records with the
// rows read through rows. A nil rows upserts every record blindly.
func NewMappingTransformer(rows RowLookup) *MappingTransformer {
	return &MappingTransformer{rows: rows}
}

func (t *MappingTransformer) configure(opts etl.Options) error {
	if t.mapping != nil {
		return nil
	}

	path, err := opts.RequiredString("mapping")
	if err != nil {
		return err
	}
	m, err := LoadMappingFile(path)
	if err != nil {
		return etl.ConfigurationError("mapping", "%v", err)
	}
	policy, err := etl.ParseWarnPolicy(opts.String("warn_policy", ""))
	if err != nil {
		return err
	}

	target := opts.String("target", TargetPg)
	switch target {
	case TargetPg, TargetPgCopy, TargetES:
	default:
		return etl.ConfigurationError("target", "unknown target %q, expected %s, %s or %s", target, TargetPg, TargetPgCopy, TargetES)
	}

	deleteFlag := opts.String("delete_flag", "")
	if deleteFlag != "" && target != TargetPg {
		return etl.ConfigurationError("delete_flag", "delete_flag requires target %s", TargetPg)
	}

	t.bind(m, policy)
	t.notify = opts.Bool("notify", false)
	t.target = target
	t.index = opts.String("index", m.Table)
	t.lookup = opts.Bool("lookup", true) && t.rows != nil && len(m.Key) > 0
	t.replace = opts.Bool("replace_existing", true)
	t.clearMissing = opts.Bool("clear_missing", false)
	t.deleteFlag = deleteFlag
	return nil
}

func (t *MappingTransformer) bind(m *datamapping.DataMapping, policy etl.WarnPolicy) {
	t.mapping = m
	t.Chain = etl.NewChain(policy)
	for _, fm := range m.FieldMappings {
		if !fm.Required {
			continue
		}
		severity := etl.Warn
		if fm.OnMissing == string(etl.Fail) {
			severity = etl.Fail
		}
		source := fm.Source
		t.Chain.Add(etl.Rule{
			Severity:    severity,
			Description: fmt.Sprintf("required field %s is missing", source),
			Check: func(r etl.Record) bool {
				v, ok := field(r, source)
				return ok && !blank(v)
			},
		})
	}
}

// mapped is one admitted record converted to column values.
type mapped struct {
	values  map[string]any
	// blanks are the columns whose source value was missing or blank.
	blanks  []string
	deleted bool
}

func (t *MappingTransformer) Transform(ctx context.Context, sc etl.StageContext, in *queue.Queue[etl.Record]) (*queue.Queue[etl.Command], error) {
	if err := t.configure(sc.Options); err != nil {
		return nil, err
	}

	rows, err := t.collect(in)
	if err != nil {
		return nil, err
	}

	out := queue.New[etl.Command]()
	switch t.target {
	case TargetPgCopy:
		if len(rows) == 0 {
			break
		}
		copyRows := make([][]any, len(rows))
		for i, r := range rows {
			copyRows[i] = t.copyRow(r.values)
			t.record(sc, r.values, nil, r.values)
		}
		out.Push(loader.CopyQuery(t.mapping.Table, t.copyColumns(), copyRows))
	case TargetES:
		for _, r := range rows {
			out.Push(loader.NewIndexDocument(t.index, t.key(r.values), r.values))
			t.record(sc, r.values, nil, r.values)
		}
	default:
		if err := t.plan(ctx, sc, rows, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *MappingTransformer) collect(in *queue.Queue[etl.Record]) ([]mapped, error) {
	var rows []mapped
	position := 0
	for rec := range in.Drain() {
		position++
		keep, err := t.Admit(rec)
		if err != nil {
			return nil, err
		}
		if !keep {
			continue
		}

		values, blanks, err := t.row(rec)
		if err != nil {
			return nil, etl.TransformerError("transform", err, "record %d", position)
		}
		r := mapped{values: values, blanks: blanks}
		if t.deleteFlag != "" {
			v, _ := field(rec, t.deleteFlag)
			r.deleted = truthy(v)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// plan turns rows into Postgres commands. With a lookup, stored rows that
// already hold the mapped values produce no command.
func (t *MappingTransformer) plan(ctx context.Context, sc etl.StageContext, rows []mapped, out *queue.Queue[etl.Command]) error {
	var stored map[string]map[string]any
	if t.lookup {
		var err error
		if stored, err = t.stored(ctx, rows); err != nil {
			return etl.TransformerError("transform", err, "failed to look up existing %s rows", t.mapping.Table)
		}
	}

	table := t.mapping.Table
	for _, r := range rows {
		k := t.key(r.values)
		current, exists := stored[k]

		switch {
		case r.deleted:
			if t.lookup && !exists {
				continue
			}
			q, err := loader.DeleteQuery(table, t.keyValues(r.values))
			if err != nil {
				return err
			}
			out.Push(q)
			t.record(sc, r.values, current, map[string]any{"deleted": true})
			delete(stored, k)

		case !exists:
			cmd, err := t.upsert(r.values)
			if err != nil {
				return err
			}
			out.Push(cmd)
			t.record(sc, r.values, nil, r.values)
			if stored != nil {
				stored[k] = maps.Clone(r.values)
			}

		default:
			id := current["id"]
			if diff := changes(current, r.values, t.replace); len(diff) > 0 {
				var cmd etl.Command
				if id != nil {
					if q := loader.UpdateQuery(table, id, diff); q != nil {
						cmd = q
					}
				} else {
					// Inserted earlier in this chunk, no id yet.
					merged := t.keyValues(r.values)
					maps.Copy(merged, diff)
					q, err := t.upsert(merged)
					if err != nil {
						return err
					}
					cmd = q
				}
				if cmd != nil {
					out.Push(cmd)
					t.record(sc, r.values, current, diff)
					maps.Copy(current, diff)
				}
			}

			if !t.clearMissing || id == nil {
				continue
			}
			var nulls []string
			cleared := make(map[string]any)
			for _, c := range r.blanks {
				if current[c] != nil {
					nulls = append(nulls, c)
					cleared[c] = nil
				}
			}
			if q := loader.SetNullQuery(table, id, nulls); q != nil {
				out.Push(q)
				t.record(sc, r.values, current, cleared)
				maps.Copy(current, cleared)
			}
		}
	}
	return nil
}

func (t *MappingTransformer) upsert(values map[string]any) (etl.Command, error) {
	var opts []loader.InsertOption
	if len(t.mapping.Key) > 0 {
		opts = append(opts, loader.OnConflictUpdate(t.mapping.Key...))
	}
	return loader.InsertQuery(t.mapping.Table, values, opts...)
}

func (t *MappingTransformer) keyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(t.mapping.Key))
	for _, k := range t.mapping.Key {
		out[k] = values[k]
	}
	return out
}

func (t *MappingTransformer) copyColumns() []string {
	cols := make([]string, len(t.mapping.FieldMappings))
	for i, fm := range t.mapping.FieldMappings {
		cols[i] = fm.Column(loader.ColumnName)
	}
	return cols
}

func (t *MappingTransformer) copyRow(values map[string]any) []any {
	row := make([]any, len(t.mapping.FieldMappings))
	for i, fm := range t.mapping.FieldMappings {
		row[i] = values[fm.Column(loader.ColumnName)]
	}
	return row
}

func (t *MappingTransformer) key(values map[string]any) string {
	parts := make([]string, 0, len(t.mapping.Key))
	for _, k := range t.mapping.Key {
		parts = append(parts, fmt.Sprint(values[k]))
	}
	return strings.Join(parts, ",")
}

// ReportValidation is safe to call before the first Transform.
func (t *MappingTransformer) ReportValidation(out output.Writer) {
	if t.Chain == nil {
		out.Writeln("")
		return
	}
	t.Chain.ReportValidation(out)
}

func (t *MappingTransformer) row(rec etl.Record) (map[string]any, []string, error) {
	values := make(map[string]any, len(t.mapping.FieldMappings))
	var blanks []string
	for _, fm := range t.mapping.FieldMappings {
		column := fm.Column(loader.ColumnName)

		raw, ok := field(rec, fm.Source)
		if !ok || blank(raw) {
			if fm.Default == "" {
				blanks = append(blanks, column)
				continue
			}
			raw = fm.Default
		}

		s, isText := raw.(string)
		if !isText {
			// Already typed, for example by the database driver.
			values[column] = raw
			continue
		}
		v, err := Convert(s, fm.Type(), t.mapping.DateFormat)
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", fm.Source, err)
		}
		values[column] = v
	}
	return values, blanks, nil
}

func (t *MappingTransformer) record(sc etl.StageContext, values, before, after map[string]any) {
	if !t.notify || sc.Notifications == nil {
		return
	}
	keyName := strings.Join(t.mapping.Key, ",")
	if keyName == "" {
		keyName = t.mapping.Table
	}
	sc.Notifications.Add(keyName, t.key(values), before, after)
}

func field(rec etl.Record, name string) (any, bool) {
	switch r := rec.(type) {
	case map[string]string:
		v, ok := r[name]
		return v, ok
	case map[string]any:
		v, ok := r[name]
		return v, ok
	default:
		return nil, false
	}
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return err == nil && b
	}
	return false
}
