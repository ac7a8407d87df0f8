package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/DjordjeVuckovic/etl-runner/internal/audit"
	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/DjordjeVuckovic/etl-runner/internal/output"
	"github.com/DjordjeVuckovic/etl-runner/internal/queue"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

const (
	defaultBulkWorkers = 2
	defaultFlushBytes  = 5e+6
)

// IndexDocument indexes Body into Index. An empty ID lets Elasticsearch
// assign one.
type IndexDocument struct {
	Index string
	ID    string
	Body  map[string]any
}

func NewIndexDocument(index, id string, body map[string]any) *IndexDocument {
	return &IndexDocument{Index: index, ID: id, Body: body}
}

func (d *IndexDocument) Describe() string {
	if d.ID == "" {
		return "Index into " + d.Index
	}
	return fmt.Sprintf("Index %s into %s", d.ID, d.Index)
}

// EsLoader bulk indexes IndexDocument commands. Elasticsearch has no
// transactions: documents flushed before a failure stay indexed.
//
// Options:
//
//	workers  bulk indexer workers (default 2)
//	refresh  wait for the indexed documents to become searchable
type EsLoader struct {
	client  *elasticsearch.TypedClient
	auditor audit.Auditor
}

func NewEsLoader(client *elasticsearch.TypedClient, auditor audit.Auditor) *EsLoader {
	if auditor == nil {
		auditor = audit.Void{}
	}
	return &EsLoader{client: client, auditor: auditor}
}

type bulkResult struct {
	mu      sync.Mutex
	indexed int
	failed  int
	errs    []string
	indices map[string]int
}

func (r *bulkResult) success(index string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed++
	r.indices[index]++
}

func (r *bulkResult) failure(id, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
	if len(r.errs) < 5 {
		r.errs = append(r.errs, fmt.Sprintf("%s: %s", id, reason))
	}
}

func (l *EsLoader) Load(ctx context.Context, sc etl.StageContext, in *queue.Queue[etl.Command]) error {
	out := sc.Output
	if in.IsEmpty() {
		out.Tagged(output.TagInfo, "No documents to index.")
		return nil
	}

	workers, err := sc.Options.Int("workers", defaultBulkWorkers)
	if err != nil {
		return err
	}
	if workers <= 0 {
		return etl.ConfigurationError("load", "workers must be positive, got %d", workers)
	}
	cfg := esutil.BulkIndexerConfig{
		Client:        l.client,
		NumWorkers:    workers,
		FlushBytes:    defaultFlushBytes,
		FlushInterval: 30 * time.Second,
	}
	if sc.Options.Bool("refresh", false) {
		cfg.Refresh = "wait_for"
	}

	bi, err := esutil.NewBulkIndexer(cfg)
	if err != nil {
		return etl.LoaderError("load", err, "failed to create bulk indexer")
	}

	res := &bulkResult{indices: make(map[string]int)}
	total := in.Len()

	bar := output.NewProgressBar(out, total)
	out.Writeln("Indexing documents")
	bar.Start()

	for cmd := range in.Drain() {
		doc, ok := cmd.(*IndexDocument)
		if !ok {
			l.close(ctx, bi, sc)
			return etl.LoaderError("load", nil, "unknown command type (%T) received in loader, expecting *loader.IndexDocument", cmd)
		}
		body, err := json.Marshal(doc.Body)
		if err != nil {
			l.close(ctx, bi, sc)
			return etl.LoaderError("load", err, "failed to encode %s", doc.Describe())
		}

		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Index:      doc.Index,
			Action:     "index",
			DocumentID: doc.ID,
			Body:       bytes.NewReader(body),
			OnSuccess: func(_ context.Context, item esutil.BulkIndexerItem, _ esutil.BulkIndexerResponseItem) {
				res.success(item.Index)
			},
			OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, r esutil.BulkIndexerResponseItem, err error) {
				reason := r.Error.Reason
				if err != nil {
					reason = err.Error()
				}
				res.failure(item.DocumentID, reason)
			},
		})
		if err != nil {
			l.close(ctx, bi, sc)
			return etl.LoaderError("load", err, "failed to queue %s", doc.Describe())
		}
		bar.Advance()
	}

	if err := bi.Close(ctx); err != nil {
		return etl.LoaderError("load", err, "bulk indexing failed")
	}
	bar.Finish()

	if res.failed > 0 {
		return etl.LoaderError("load", nil, "%d of %d documents failed to index: %v", res.failed, total, res.errs)
	}

	out.Writeln("")
	out.Writeln(fmt.Sprintf("Elasticsearch bulk finished with %d indexed documents.", res.indexed))
	out.Writeln("")

	l.auditor.Audit(ctx, audit.CategoryETL,
		fmt.Sprintf("Loader index log with %d documents", res.indexed),
		map[string]any{
			"run_id":  sc.RunID,
			"indexed": res.indexed,
			"indices": slices.Sorted(maps.Keys(res.indices)),
		},
	)
	return nil
}

func (l *EsLoader) close(ctx context.Context, bi esutil.BulkIndexer, sc etl.StageContext) {
	if err := bi.Close(ctx); err != nil {
		slog.Error("Failed to close bulk indexer", "pipeline", sc.PipelineID, "error", err)
	}
}
