package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DjordjeVuckovic/etl-runner/internal/audit"
	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/DjordjeVuckovic/etl-runner/internal/notification"
	"github.com/DjordjeVuckovic/etl-runner/internal/stages"
	"github.com/DjordjeVuckovic/etl-runner/internal/storage/factory"
	"github.com/DjordjeVuckovic/etl-runner/internal/storage/pg"
	"github.com/DjordjeVuckovic/etl-runner/internal/task"
)

// app wires backends, the stage registry and the task runner.
type app struct {
	backends *factory.Backends
	registry *etl.Registry
	runner   *task.Runner
}

func newApp(ctx context.Context, cfg *EtlConfig) (*app, error) {
	defs, err := task.LoadPath(cfg.TasksPath)
	if err != nil {
		return nil, err
	}

	backends, err := factory.Open(ctx, &cfg.StorageConfig)
	if err != nil {
		return nil, err
	}

	auditor, err := factory.NewAuditor(ctx, &cfg.StorageConfig, backends)
	if err != nil {
		backends.Close()
		return nil, fmt.Errorf("failed to create auditor: %w", err)
	}

	deps := stages.Deps{Auditor: auditor, ES: backends.ES}
	if backends.Pool != nil {
		deps.DB = backends.Pool
		deps.Rows = pg.NewRowReader(backends.Pool.GetConn())
	} else {
		slog.Warn("PG_CONNECTION_STRING is not set, pg stages are unavailable")
	}
	registry := stages.NewRegistry(deps)

	opts := []task.RunnerOption{task.WithChunkAnnouncements(cfg.Announce)}
	if cfg.NotifyRecipient != "" {
		opts = append(opts, task.WithNotifiers(notifiers(cfg, auditor)))
	}

	runner := task.NewRunner(defs, registry, auditor, opts...)
	for _, d := range defs {
		if err := runner.Validate(d.Name); err != nil {
			slog.Warn("Task binds an unavailable stage", "task", d.Name, "error", err)
		}
	}
	slog.Info("Tasks loaded", "path", cfg.TasksPath, "count", len(defs))

	return &app{backends: backends, registry: registry, runner: runner}, nil
}

func notifiers(cfg *EtlConfig, auditor audit.Auditor) task.NotifierFactory {
	var mailer notification.Mailer = notification.LogMailer{}
	if cfg.SMTP.Addr != "" {
		mailer = notification.NewSMTPMailer(cfg.SMTP)
	}

	var opts []notification.Option
	if cfg.NotifySubject != "" {
		opts = append(opts, notification.WithSubject(cfg.NotifySubject))
	}

	return func() etl.Notifier {
		return notification.NewAggregator(mailer, auditor, cfg.NotifyRecipient, opts...)
	}
}

func (a *app) Close() {
	a.backends.Close()
}
