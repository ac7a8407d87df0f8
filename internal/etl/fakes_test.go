package etl_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/DjordjeVuckovic/etl-runner/internal/output"
	"github.com/DjordjeVuckovic/etl-runner/internal/queue"
)

// sliceExtractor serves records from memory, in chunks when asked.
type sliceExtractor struct {
	records   []etl.Record
	chunkSize int
	nilQueue  bool
	err       error
}

func (e *sliceExtractor) Extract(ctx context.Context, sc etl.StageContext, chunk etl.ChunkFunc) (*queue.Queue[etl.Record], error) {
	if e.err != nil {
		return nil, etl.ExtractorError("extract", e.err, "source unavailable")
	}
	if chunk == nil {
		if e.nilQueue {
			return nil, nil
		}
		return queue.New(e.records...), nil
	}
	for start := 0; start < len(e.records); start += e.chunkSize {
		end := min(start+e.chunkSize, len(e.records))
		if err := chunk(ctx, queue.New(e.records[start:end]...)); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// insertTransformer turns every string record into an insert.
type insertTransformer struct {
	*etl.Chain
	panicOn string
}

func newInsertTransformer(rules ...etl.Rule) *insertTransformer {
	return &insertTransformer{Chain: etl.NewChain(etl.WarnPass, rules...)}
}

func (t *insertTransformer) Transform(_ context.Context, _ etl.StageContext, in *queue.Queue[etl.Record]) (*queue.Queue[etl.Command], error) {
	out := queue.New[etl.Command]()
	for rec := range in.Drain() {
		if s, _ := rec.(string); s == t.panicOn && s != "" {
			panic("transformer exploded on " + s)
		}
		keep, err := t.Admit(rec)
		if err != nil {
			return nil, err
		}
		if !keep {
			continue
		}
		out.Push(etl.NewQuery(etl.Insert, "INSERT INTO t (v) VALUES (@v)", map[string]any{"v": rec}))
	}
	return out, nil
}

// memoryStore mimics a transactional table: rows become visible on commit.
type memoryStore struct {
	rows      []any
	commits   int
	rollbacks int
	begins    int
}

// memoryLoader is a transactional loader over memoryStore.
type memoryLoader struct {
	store  *memoryStore
	failOn func(chunkRows []any, v any) bool
	totals *[]int
}

func (l *memoryLoader) Load(_ context.Context, sc etl.StageContext, in *queue.Queue[etl.Command]) error {
	if in.IsEmpty() {
		sc.Output.Writeln("No database queries to execute.")
		return nil
	}
	l.store.begins++
	var pending []any
	for cmd := range in.Drain() {
		q, ok := cmd.(*etl.Query)
		if !ok {
			l.store.rollbacks++
			return etl.LoaderError("load", nil, "unknown command %T", cmd)
		}
		v := q.Params["v"]
		if l.failOn != nil && l.failOn(pending, v) {
			l.store.rollbacks++
			return etl.LoaderError("load", errors.New("duplicate key"), "insert failed for %v", v)
		}
		pending = append(pending, v)
	}
	l.store.rows = append(l.store.rows, pending...)
	l.store.commits++
	if l.totals != nil {
		*l.totals = append(*l.totals, len(pending))
	}
	return nil
}

// recordingNotifier counts dispatches and optionally fails them.
type recordingNotifier struct {
	context    string
	entries    int
	dispatched int
	sendErr    error
}

func (n *recordingNotifier) Add(string, string, map[string]any, map[string]any) { n.entries++ }
func (n *recordingNotifier) SetContext(text string)                             { n.context = text }
func (n *recordingNotifier) Dispatch(_ context.Context, out output.Writer) error {
	if n.entries == 0 {
		return nil
	}
	n.dispatched++
	if n.sendErr != nil {
		return fmt.Errorf("failed to send digest: %w", n.sendErr)
	}
	out.Writeln("digest sent")
	return nil
}
