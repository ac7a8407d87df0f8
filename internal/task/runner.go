package task

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/DjordjeVuckovic/etl-runner/internal/audit"
	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/DjordjeVuckovic/etl-runner/internal/output"
)

// NotifierFactory returns a fresh notifier for each run.
type NotifierFactory func() etl.Notifier

// Runner runs tasks by name. Each Run builds its own pipeline, so Run is
// safe to call concurrently.
type Runner struct {
	tasks     map[string]Definition
	registry  *etl.Registry
	auditor   audit.Auditor
	notifiers NotifierFactory
	announce  etl.Announce
}

type RunnerOption func(*Runner)

func WithNotifiers(f NotifierFactory) RunnerOption {
	return func(r *Runner) {
		r.notifiers = f
	}
}

func WithChunkAnnouncements(a etl.Announce) RunnerOption {
	return func(r *Runner) {
		r.announce = a
	}
}

func NewRunner(defs []Definition, registry *etl.Registry, auditor audit.Auditor, opts ...RunnerOption) *Runner {
	r := &Runner{
		tasks:    make(map[string]Definition, len(defs)),
		registry: registry,
		auditor:  auditor,
	}
	for _, d := range defs {
		r.tasks[d.Name] = d
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns the tasks sorted by name.
func (r *Runner) List() []Definition {
	out := make([]Definition, 0, len(r.tasks))
	for _, d := range r.tasks {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Definition) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func (r *Runner) Get(name string) (Definition, bool) {
	d, ok := r.tasks[name]
	return d, ok
}

// Validate reports an error when the named task is unknown or binds a stage
// that is not registered.
func (r *Runner) Validate(name string) error {
	d, ok := r.tasks[name]
	if !ok {
		return etl.NotFoundError("validate", "task %q is not defined", name)
	}
	if _, _, err := r.registry.Extractor(d.Extractor.Name); err != nil {
		return err
	}
	if _, _, err := r.registry.Transformer(d.Transformer.Name); err != nil {
		return err
	}
	_, _, err := r.registry.Loader(d.Loader.Name)
	return err
}

// Run executes the named task. An unknown name writes a message and returns
// false. Binding a stage name that is not registered is an error.
func (r *Runner) Run(ctx context.Context, out output.Writer, name string) (bool, error) {
	d, ok := r.tasks[name]
	if !ok {
		out.Writeln(fmt.Sprintf("Task {name: %s} not found.", name))
		return false, nil
	}

	var notifier etl.Notifier
	if r.notifiers != nil {
		notifier = r.notifiers()
	}

	p := etl.NewPipeline(r.registry, r.auditor, notifier, etl.WithChunkAnnouncements(r.announce))
	p.SetID(d.Name).SetOutput(out)
	if d.NotificationContext != "" {
		p.SetNotificationContext(d.NotificationContext)
	}

	if err := p.AddExtractor(d.Extractor.Name, d.Extractor.Options); err != nil {
		return false, err
	}
	if err := p.AddTransformer(d.Transformer.Name, d.Transformer.Options); err != nil {
		return false, err
	}
	if err := p.AddLoader(d.Loader.Name, d.Loader.Options); err != nil {
		return false, err
	}

	mode := etl.ModeEager
	if d.Batch {
		mode = etl.ModeBatch
	}
	slog.Info("Running task", "task", d.Name, "mode", mode.String())
	return p.Run(ctx, mode)
}
