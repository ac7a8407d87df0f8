package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/DjordjeVuckovic/etl-runner/internal/output"
	"github.com/DjordjeVuckovic/etl-runner/internal/router"
	"github.com/DjordjeVuckovic/etl-runner/internal/server"
	"github.com/DjordjeVuckovic/etl-runner/internal/task"
	"github.com/DjordjeVuckovic/etl-runner/pkg/apis/datamapping"
	"github.com/DjordjeVuckovic/etl-runner/pkg/schema"
	"github.com/labstack/echo/v4"
)

func console(fs *flag.FlagSet, args []string, w io.Writer) (*output.Console, error) {
	noColor := fs.Bool("no-color", false, "Disable ANSI colours")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	var opts []output.ConsoleOption
	if *noColor {
		opts = append(opts, output.WithoutColor())
	}
	return output.NewConsole(w, opts...), nil
}

func listCmd(a *app, args []string, w io.Writer) error {
	out, err := console(flag.NewFlagSet("list", flag.ContinueOnError), args, w)
	if err != nil {
		return err
	}

	out.Tagged(output.TagInfo, "List of available ETL Tasks")
	out.Writeln(table([]string{"#", "Name", "Mode", "Extractor", "Transformer", "Loader", "Description"}, func(add func(...string)) {
		for i, d := range a.runner.List() {
			mode := "eager"
			if d.Batch {
				mode = "batch"
			}
			add(fmt.Sprint(i+1), d.Name, mode, d.Extractor.Name, d.Transformer.Name, d.Loader.Name, d.Description)
		}
	}))
	return nil
}

func stagesCmd(a *app, args []string, w io.Writer) error {
	out, err := console(flag.NewFlagSet("stages", flag.ContinueOnError), args, w)
	if err != nil {
		return err
	}

	out.Tagged(output.TagInfo, "Registered stages")
	out.Writeln(table([]string{"Type", "Name", "Label", "Description"}, func(add func(...string)) {
		for _, s := range a.registry.Stages() {
			add(string(s.Type), s.Name, s.Label(), s.Description)
		}
	}))
	return nil
}

func runCmd(ctx context.Context, a *app, args []string, w io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	out, err := console(fs, args, w)
	if err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		out.Tagged(output.TagError, "Usage: etl run [-no-color] <task>")
		return 2
	}

	out.Tagged(output.TagInfo, "ETL task runner started. You can see available tasks by the list command.")

	ok, err := a.runner.Run(ctx, out, fs.Arg(0))
	if err != nil {
		out.Tagged(output.TagError, err.Error())
		return 1
	}
	if !ok {
		return 1
	}
	return 0
}

func serveCmd(cfg *EtlConfig) error {
	sCfg, err := server.LoadConfig()
	if err != nil {
		return err
	}

	s := server.New(sCfg)

	// A shutdown signal during startup aborts the connection attempts.
	a, err := newApp(s.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	s.SetupMiddlewares().
		SetupErrorHandler().
		SetupHealthChecks("/health", a.backends.HealthCheckers()...).
		SetupOpenApi("/swagger/*")

	s.Echo.GET("/", func(c echo.Context) error {
		return c.String(200, "ETL Runner API is running")
	})

	router.NewTaskRouter(s.Echo, a.runner).Bind()

	go func() {
		<-s.ShutdownSignal()
		slog.Info("Shutdown started, cleaning up resources...")
	}()

	return s.Start()
}

func schemaCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("schema", flag.ContinueOnError)
	outputDir := fs.String("output", "api", "Output directory for generated schemas")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	generator := schema.NewGenerator()
	targets := []struct {
		file string
		v    any
	}{
		{"datamapping-v1.json", datamapping.DataMapping{}},
		{"task-v1.json", task.Definition{}},
	}

	var errs []error
	for _, t := range targets {
		doc, err := generator.GenerateJSONSchema(t.v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.file, err))
			continue
		}
		path := filepath.Join(*outputDir, t.file)
		if err := os.WriteFile(path, []byte(doc+"\n"), 0o644); err != nil {
			errs = append(errs, fmt.Errorf("failed to write %s: %w", path, err))
			continue
		}
		fmt.Fprintf(w, "Generated JSON schema: %s\n", path)
	}
	return errors.Join(errs...)
}

func table(header []string, rows func(add func(...string))) string {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	rows(func(cells ...string) {
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	})
	_ = tw.Flush()
	return strings.TrimRight(sb.String(), "\n")
}
