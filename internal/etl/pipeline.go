package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/DjordjeVuckovic/etl-runner/internal/audit"
	"github.com/DjordjeVuckovic/etl-runner/internal/output"
	"github.com/DjordjeVuckovic/etl-runner/internal/queue"
	"github.com/google/uuid"
)

// Mode selects how the extractor delivers data.
type Mode int

const (
	// ModeEager extracts the whole source into one queue.
	ModeEager Mode = iota
	// ModeBatch streams chunks, each carried through transform and load
	// before the next one is fetched.
	ModeBatch
)

func (m Mode) String() string {
	if m == ModeBatch {
		return "batch"
	}
	return "eager"
}

// Announce controls transformer and loader startup lines in batch mode.
type Announce int

const (
	AnnounceEveryChunk Announce = iota
	AnnounceFirstChunk
)

type bound[F any] struct {
	factory F
	info    StageInfo
	options Options
}

// Pipeline sequences one extractor, transformer and loader. It is not safe
// for concurrent Run calls.
type Pipeline struct {
	id       string
	out      output.Writer
	registry *Registry
	auditor  audit.Auditor
	notifier Notifier
	announce Announce

	extractor   *bound[ExtractorFactory]
	transformer *bound[TransformerFactory]
	loader      *bound[LoaderFactory]
}

type PipelineOption func(*Pipeline)

func WithChunkAnnouncements(a Announce) PipelineOption {
	return func(p *Pipeline) {
		p.announce = a
	}
}

func WithOutput(out output.Writer) PipelineOption {
	return func(p *Pipeline) {
		p.out = out
	}
}

// NewPipeline creates an unconfigured pipeline. A nil auditor or notifier
// is replaced by a no-op.
func NewPipeline(registry *Registry, auditor audit.Auditor, notifier Notifier, opts ...PipelineOption) *Pipeline {
	if auditor == nil {
		auditor = audit.Void{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	p := &Pipeline{
		registry: registry,
		auditor:  auditor,
		notifier: notifier,
		announce: AnnounceEveryChunk,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) SetID(id string) *Pipeline {
	p.id = id
	return p
}

func (p *Pipeline) ID() string {
	return p.id
}

func (p *Pipeline) SetOutput(out output.Writer) *Pipeline {
	p.out = out
	return p
}

func (p *Pipeline) SetNotificationContext(text string) *Pipeline {
	p.notifier.SetContext(text)
	return p
}

// AddExtractor binds the extractor registered under name, replacing any
// previous one.
func (p *Pipeline) AddExtractor(name string, options map[string]any) error {
	f, info, err := p.registry.Extractor(name)
	if err != nil {
		return err
	}
	p.extractor = &bound[ExtractorFactory]{factory: f, info: info, options: NewOptions(options)}
	return nil
}

func (p *Pipeline) AddTransformer(name string, options map[string]any) error {
	f, info, err := p.registry.Transformer(name)
	if err != nil {
		return err
	}
	p.transformer = &bound[TransformerFactory]{factory: f, info: info, options: NewOptions(options)}
	return nil
}

func (p *Pipeline) AddLoader(name string, options map[string]any) error {
	f, info, err := p.registry.Loader(name)
	if err != nil {
		return err
	}
	p.loader = &bound[LoaderFactory]{factory: f, info: info, options: NewOptions(options)}
	return nil
}

// Run executes Extract, Transform and Load once in eager mode or once per
// chunk in batch mode. Any stage failure is reported to the output and the
// auditor and yields false with a nil error. The only returned error is a
// missing output, since nothing else could be reported without one.
func (p *Pipeline) Run(ctx context.Context, mode Mode) (bool, error) {
	if p.out == nil {
		return false, ConfigurationError("run", "ETL output not set")
	}
	switch {
	case p.id == "":
		p.out.Writeln("Please set pipeline_id")
		return false, nil
	case p.extractor == nil:
		p.out.Writeln("Please set extractor")
		return false, nil
	case p.transformer == nil:
		p.out.Writeln("Please set transformer")
		return false, nil
	case p.loader == nil:
		p.out.Writeln("Please set loader")
		return false, nil
	}

	r := p.newRun(mode)
	start := time.Now()

	msg := fmt.Sprintf("ETL [%s] started", p.id)
	p.out.Writeln(msg)
	p.auditor.Audit(ctx, audit.CategoryPipeline, msg, map[string]any{"run_id": r.id, "mode": mode.String()})
	slog.Info("Starting pipeline run", "pipeline", p.id, "run_id", r.id, "mode", mode.String())

	if err := r.execute(ctx); err != nil {
		p.reportFailure(ctx, r, err)
		return false, nil
	}

	msg = fmt.Sprintf("ETL [%s] completed", p.id)
	p.out.Writeln(msg)
	p.auditor.Audit(ctx, audit.CategoryPipeline, msg, map[string]any{"run_id": r.id, "chunks": r.chunks})
	slog.Info("Pipeline run completed",
		"pipeline", p.id,
		"run_id", r.id,
		"chunks", r.chunks,
		"duration", time.Since(start),
	)

	return true, nil
}

func (p *Pipeline) reportFailure(ctx context.Context, r *pipelineRun, err error) {
	kind := KindOf(err)
	location, trace := origin(err)

	msg := fmt.Sprintf("ETL [%s] failed with error: %s: %s", p.id, kind, err.Error())
	p.out.Writeln("")
	p.out.Tagged(output.TagError, msg)
	p.out.Tagged(output.TagError, location)

	p.auditor.Audit(ctx, audit.CategoryPipeline, msg, map[string]any{
		"pipeline": p.id,
		"run_id":   r.id,
		"kind":     string(kind),
		"location": location,
		"trace":    trace,
	})
	slog.Error("Pipeline run failed", "pipeline", p.id, "run_id", r.id, "kind", kind, "error", err)
}

// pipelineRun is the state of one Run call. Stage instances are created
// fresh from their factories so nothing carries over between runs.
type pipelineRun struct {
	id       string
	p        *Pipeline
	mode     Mode
	chunks   int
	announce Announce

	extractor   Extractor
	transformer Transformer
	loader      Loader
}

func (p *Pipeline) newRun(mode Mode) *pipelineRun {
	return &pipelineRun{
		id:          uuid.NewString(),
		p:           p,
		mode:        mode,
		announce:    p.announce,
		extractor:   p.extractor.factory(),
		transformer: p.transformer.factory(),
		loader:      p.loader.factory(),
	}
}

func (r *pipelineRun) stageContext(opts Options) StageContext {
	return StageContext{
		RunID:         r.id,
		PipelineID:    r.p.id,
		Output:        r.p.out,
		Options:       opts,
		Notifications: r.p.notifier,
	}
}

func (r *pipelineRun) execute(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError(rec)
		}
	}()

	ex := r.p.extractor
	r.announceStage(ex.info)

	switch r.mode {
	case ModeBatch:
		_, err = r.extractor.Extract(ctx, r.stageContext(ex.options), func(ctx context.Context, chunk *queue.Queue[Record]) error {
			r.chunks++
			announce := r.chunks == 1 || r.announce == AnnounceEveryChunk
			slog.Debug("Processing chunk", "pipeline", r.p.id, "chunk", r.chunks, "size", chunk.Len())
			return r.transformAndLoad(ctx, chunk, announce)
		})
		if err != nil {
			return err
		}
	default:
		records, err := r.extractor.Extract(ctx, r.stageContext(ex.options), nil)
		if err != nil {
			return err
		}
		if records == nil {
			return ConfigurationError("extract", "extractor must return a queue in eager mode")
		}
		r.chunks = 1
		if err := r.transformAndLoad(ctx, records, true); err != nil {
			return err
		}
	}

	return r.p.notifier.Dispatch(ctx, r.p.out)
}

func (r *pipelineRun) transformAndLoad(ctx context.Context, records *queue.Queue[Record], announce bool) error {
	tr, ld := r.p.transformer, r.p.loader

	if announce {
		r.announceStage(tr.info)
	}
	commands, err := r.transformer.Transform(ctx, r.stageContext(tr.options), records)
	if err != nil {
		return err
	}
	if commands == nil {
		return ConfigurationError("transform", "transformer must return a queue")
	}
	r.transformer.ReportValidation(r.p.out)

	if announce {
		r.announceStage(ld.info)
	}
	return r.loader.Load(ctx, r.stageContext(ld.options), commands)
}

func (r *pipelineRun) announceStage(info StageInfo) {
	r.p.out.Writeln("")
	r.p.out.Tagged(output.TagInfo, info.Label()+" started")
	r.p.out.Writeln("")
}

// origin returns where err was raised and a trace for the audit entry.
func origin(err error) (location, trace string) {
	var e *Error
	if errors.As(err, &e) && e.Location != "" {
		return e.Location, e.Stack
	}
	return "unknown location", fmt.Sprintf("%+v", err)
}

func panicError(rec any) *Error {
	e := &Error{Kind: KindStage, Message: fmt.Sprintf("panic: %v", rec), Stack: string(debug.Stack())}
	if err, ok := rec.(error); ok {
		e.Message = "panic"
		e.Err = err
	}

	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	afterPanic := false
	for {
		f, more := frames.Next()
		if afterPanic && !strings.HasPrefix(f.Function, "runtime.") {
			e.Location = fmt.Sprintf("%s:%d", f.File, f.Line)
			break
		}
		if f.Function == "runtime.gopanic" {
			afterPanic = true
		}
		if !more {
			break
		}
	}
	return e
}
