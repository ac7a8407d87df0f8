package etl

import (
	"context"

	"github.com/DjordjeVuckovic/etl-runner/internal/output"
	"github.com/DjordjeVuckovic/etl-runner/internal/queue"
)

// Record is an opaque item produced by an extractor.
type Record = any

// StageContext is the immutable per-run configuration handed to every
// stage call.
type StageContext struct {
	RunID      string
	PipelineID string
	Output     output.Writer
	Options    Options
	// Notifications collects before/after diffs for the end-of-run digest.
	Notifications Recorder
}

// Recorder accepts per-record change notifications.
type Recorder interface {
	Add(keyName, key string, before, after map[string]any)
}

// ChunkFunc receives one streamed chunk and must carry it through
// transform and load before returning.
type ChunkFunc func(ctx context.Context, chunk *queue.Queue[Record]) error

// Extractor produces records from an external source.
//
// With a nil chunk func it returns the whole dataset in one queue. With a
// chunk func it delivers bounded chunks synchronously, returns a nil queue,
// and only returns once the source is exhausted or chunk fails.
type Extractor interface {
	Extract(ctx context.Context, sc StageContext, chunk ChunkFunc) (*queue.Queue[Record], error)
}

// Transformer maps each record to zero or one command.
type Transformer interface {
	Transform(ctx context.Context, sc StageContext, in *queue.Queue[Record]) (*queue.Queue[Command], error)
	// ReportValidation prints the warn tally of the last transform and clears it.
	ReportValidation(out output.Writer)
}

// Loader drains commands into the store inside one transaction per call.
type Loader interface {
	Load(ctx context.Context, sc StageContext, in *queue.Queue[Command]) error
}

// Notifier renders and sends the end-of-run digest.
type Notifier interface {
	Recorder
	SetContext(text string)
	Dispatch(ctx context.Context, out output.Writer) error
}

type nopNotifier struct{}

func (nopNotifier) Add(string, string, map[string]any, map[string]any) {}
func (nopNotifier) SetContext(string)                                  {}
func (nopNotifier) Dispatch(context.Context, output.Writer) error      { return nil }
