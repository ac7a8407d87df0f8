package transformer

import (
	"context"
	"errors"
	"maps"
	"testing"
	"time"

	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/DjordjeVuckovic/etl-runner/internal/queue"
	"github.com/DjordjeVuckovic/etl-runner/internal/storage/pg"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	rows    []map[string]any
	queries []string
	err     error
}

func (f *fakeLookup) ReadAll(_ context.Context, sql string, args pgx.NamedArgs, _ pg.ReadOptions) ([]map[string]any, error) {
	f.queries = append(f.queries, sql)
	if f.err != nil {
		return nil, f.err
	}
	var out []map[string]any
	for _, r := range f.rows {
		for _, v := range args {
			if v == r["code"] {
				out = append(out, maps.Clone(r))
				break
			}
		}
	}
	return out, nil
}

func storedAnn() map[string]any {
	return map[string]any{
		"id":         int64(1),
		"code":       "C1",
		"name":       "Ann",
		"city":       "Riga",
		"score":      int64(7),
		"created_at": time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func transformWith(t *testing.T, rows RowLookup, opts map[string]any, rec etl.Recorder, records ...etl.Record) (*queue.Queue[etl.Command], error) {
	t.Helper()
	all := map[string]any{"mapping": writeMapping(t, customerMapping), "notify": true}
	maps.Copy(all, opts)
	return NewMappingTransformer(rows).Transform(t.Context(), stageContext(all, rec), queue.New(records...))
}

func TestMappingTransformer_UnchangedRecordIsSkipped(t *testing.T) {
	lookup := &fakeLookup{rows: []map[string]any{storedAnn()}}
	rec := &memoryRecorder{}

	out, err := transformWith(t, lookup, nil, rec,
		map[string]string{"Code": "C1", "Name": "Ann", "City": "Riga", "Score": "7"})

	require.NoError(t, err)
	assert.True(t, out.IsEmpty())
	assert.Empty(t, rec.entries)
	require.Len(t, lookup.queries, 1)
	assert.Equal(t, `SELECT * FROM "customers" WHERE ("code" = @k0_0)`, lookup.queries[0])
}

func TestMappingTransformer_UpdatesOnlyChangedFields(t *testing.T) {
	lookup := &fakeLookup{rows: []map[string]any{storedAnn()}}
	rec := &memoryRecorder{}

	out, err := transformWith(t, lookup, nil, rec,
		map[string]string{"Code": "C1", "Name": "Anna", "City": "Riga", "Score": "7"},
		map[string]string{"Code": "C2", "Name": "Bo"},
	)

	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	first, _ := out.Pop()
	update := first.(*etl.Query)
	assert.Equal(t, etl.Update, update.Kind)
	assert.Equal(t, `UPDATE "customers" SET "name" = @name, "updated_at" = @updated_at WHERE id = @id`, update.SQL)
	assert.Equal(t, int64(1), update.Params["id"])
	assert.Equal(t, "Anna", update.Params["name"])

	second, _ := out.Pop()
	assert.Equal(t, etl.Insert, second.(*etl.Query).Kind)

	require.Len(t, rec.entries, 2)
	assert.Equal(t, "Ann", rec.entries[0].before["name"])
	assert.Equal(t, map[string]any{"name": "Anna"}, rec.entries[0].after)
	assert.Nil(t, rec.entries[1].before)
	assert.Equal(t, "C2", rec.entries[1].key)
}

func TestMappingTransformer_KeepsExistingValues(t *testing.T) {
	stored := storedAnn()
	stored["city"] = nil
	lookup := &fakeLookup{rows: []map[string]any{stored}}

	out, err := transformWith(t, lookup, map[string]any{"replace_existing": false}, nil,
		map[string]string{"Code": "C1", "Name": "Anna", "City": "Oslo", "Score": "9"})

	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	cmd, _ := out.Pop()
	q := cmd.(*etl.Query)
	assert.Equal(t, "Oslo", q.Params["city"])
	assert.NotContains(t, q.Params, "name")
	assert.NotContains(t, q.Params, "score")
}

func TestMappingTransformer_ClearMissing(t *testing.T) {
	lookup := &fakeLookup{rows: []map[string]any{storedAnn()}}
	rec := &memoryRecorder{}

	out, err := transformWith(t, lookup, map[string]any{"clear_missing": true}, rec,
		map[string]string{"Code": "C1", "Name": "Ann", "City": "Riga"})

	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	cmd, _ := out.Pop()
	q := cmd.(*etl.Query)
	assert.Equal(t, etl.Update, q.Kind)
	assert.Equal(t, `UPDATE "customers" SET "score" = NULL, "updated_at" = @updated_at WHERE id = @id`, q.SQL)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, int64(7), rec.entries[0].before["score"])
	assert.Equal(t, map[string]any{"score": nil}, rec.entries[0].after)
}

func TestMappingTransformer_DeleteFlag(t *testing.T) {
	lookup := &fakeLookup{rows: []map[string]any{storedAnn()}}

	out, err := transformWith(t, lookup, map[string]any{"delete_flag": "Deleted"}, nil,
		map[string]string{"Code": "C1", "Name": "Ann", "Deleted": "true"},
		map[string]string{"Code": "C9", "Name": "Gone", "Deleted": "true"},
	)

	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	cmd, _ := out.Pop()
	q := cmd.(*etl.Query)
	assert.Equal(t, etl.Delete, q.Kind)
	assert.Equal(t, `DELETE FROM "customers" AS t WHERE t."code" = @code`, q.SQL)
	assert.Equal(t, "C1", q.Params["code"])

	_, err = transformWith(t, nil, map[string]any{"delete_flag": "Deleted", "target": "es"}, nil)
	assert.True(t, etl.IsKind(err, etl.KindConfiguration))
}

func TestMappingTransformer_DuplicateKeyInOneChunk(t *testing.T) {
	lookup := &fakeLookup{}

	out, err := transformWith(t, lookup, nil, nil,
		map[string]string{"Code": "C2", "Name": "Bo"},
		map[string]string{"Code": "C2", "Name": "Bob"},
		map[string]string{"Code": "C2", "Name": "Bob"},
	)

	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	out.Pop()
	cmd, _ := out.Pop()
	q := cmd.(*etl.Query)
	assert.Contains(t, q.SQL, `ON CONFLICT ("code") DO UPDATE SET "name" = EXCLUDED."name"`)
	assert.Equal(t, "Bob", q.Params["name"])
	assert.Len(t, lookup.queries, 1)
}

func TestMappingTransformer_LookupError(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("connection refused")}

	_, err := transformWith(t, lookup, nil, nil, map[string]string{"Code": "C1", "Name": "Ann"})

	require.Error(t, err)
	assert.True(t, etl.IsKind(err, etl.KindTransformer))
	assert.Contains(t, err.Error(), "failed to look up existing customers rows")
}

func TestMappingTransformer_LookupDisabled(t *testing.T) {
	lookup := &fakeLookup{rows: []map[string]any{storedAnn()}}

	out, err := transformWith(t, lookup, map[string]any{"lookup": false}, nil,
		map[string]string{"Code": "C1", "Name": "Ann", "City": "Riga", "Score": "7"})

	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
	assert.Empty(t, lookup.queries)
}

func TestExistingQuery_CompositeKey(t *testing.T) {
	sql, args := existingQuery("crm.customers", []string{"code", "region"}, [][]any{{"C1", "EU"}, {"C2", "US"}})

	assert.Equal(t, `SELECT * FROM "crm"."customers" WHERE ("code" = @k0_0 AND "region" = @k0_1) OR ("code" = @k1_0 AND "region" = @k1_1)`, sql)
	assert.Equal(t, pgx.NamedArgs{"k0_0": "C1", "k0_1": "EU", "k1_0": "C2", "k1_1": "US"}, args)
}

func TestSameValue(t *testing.T) {
	id := uuid.New()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	assert.True(t, sameValue(int32(7), int64(7)))
	assert.True(t, sameValue([16]byte(id), id))
	assert.True(t, sameValue(at.In(time.FixedZone("CET", 3600)), at))
	assert.False(t, sameValue("Ann", "Anna"))
	assert.False(t, sameValue(at, "2024-05-01"))
}
