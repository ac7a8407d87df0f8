// Package notification collects per-record change notes during a run and
// mails them as one digest when the run finishes.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/DjordjeVuckovic/etl-runner/internal/audit"
	"github.com/DjordjeVuckovic/etl-runner/internal/output"
)

const DefaultSubject = "ETL: data import notification"

// Digest is one merged row of the rendered notification.
type Digest struct {
	Key    string
	Before []Field
	After  []Field
}

type Field struct {
	Name  string
	Value any
}

type change struct {
	before []Field
	after  []Field
}

// Aggregator implements etl.Notifier. It is safe for concurrent Add calls.
type Aggregator struct {
	mu        sync.Mutex
	mailer    Mailer
	auditor   audit.Auditor
	recipient string
	subject   string
	context   string

	keys    []string
	entries map[string][]change
}

type Option func(*Aggregator)

func WithSubject(subject string) Option {
	return func(a *Aggregator) {
		a.subject = subject
	}
}

func NewAggregator(mailer Mailer, auditor audit.Auditor, recipient string, opts ...Option) *Aggregator {
	if auditor == nil {
		auditor = audit.Void{}
	}
	a := &Aggregator{
		mailer:    mailer,
		auditor:   auditor,
		recipient: recipient,
		subject:   DefaultSubject,
		entries:   make(map[string][]change),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) SetContext(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.context = text
}

// Add records that the row identified by keyName=key changed to after.
// Only the fields present in after are looked up in before.
func (a *Aggregator) Add(keyName, key string, before, after map[string]any) {
	if len(after) == 0 {
		return
	}

	names := make([]string, 0, len(after))
	for name := range after {
		names = append(names, name)
	}
	sort.Strings(names)

	c := change{}
	for _, name := range names {
		c.before = append(c.before, Field{Name: name, Value: before[name]})
		c.after = append(c.after, Field{Name: name, Value: after[name]})
	}

	id := fmt.Sprintf("%s: %s", keyName, key)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.entries[id]; !ok {
		a.keys = append(a.keys, id)
	}
	a.entries[id] = append(a.entries[id], c)
}

// Len returns the number of distinct keys recorded.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.keys)
}

// Dispatch mails the digest and clears the recorded state. It does nothing
// when no notes were recorded.
func (a *Aggregator) Dispatch(ctx context.Context, out output.Writer) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.keys) == 0 {
		return nil
	}

	out.Writeln(fmt.Sprintf("Preparing e-mail notification for %d records", len(a.keys)))
	digest := a.merge()

	body, err := render(a.context, digest)
	if err != nil {
		return fmt.Errorf("failed to render notification: %w", err)
	}

	msg := Message{
		To:      a.recipient,
		Subject: a.subject,
		HTML:    body,
	}
	if err := a.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send notification to %s: %w", a.recipient, err)
	}

	out.Writeln(fmt.Sprintf("E-mail notification sent to %s", a.recipient))
	a.auditor.Audit(ctx, audit.CategoryETL, fmt.Sprintf("Notifications sent to %s", a.recipient), map[string]any{
		"notification": digest,
	})
	slog.Info("Notification digest sent", "recipient", a.recipient, "records", len(digest))

	a.keys = a.keys[:0]
	clear(a.entries)
	return nil
}

func (a *Aggregator) merge() []Digest {
	out := make([]Digest, 0, len(a.keys))
	for _, key := range a.keys {
		d := Digest{Key: key}
		for _, c := range a.entries[key] {
			d.Before = append(d.Before, c.before...)
			d.After = append(d.After, c.after...)
		}
		out = append(out, d)
	}
	return out
}

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"fields": formatFields,
}).Parse(`<!DOCTYPE html>
<html>
<body>
{{- if .Context}}
<p>{{.Context}}</p>
{{- end}}
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Record</th><th>Before</th><th>After</th></tr>
{{- range .Rows}}
<tr><td>{{.Key}}</td><td>{{fields .Before}}</td><td>{{fields .After}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

func render(intro string, rows []Digest) (string, error) {
	var buf bytes.Buffer
	err := digestTemplate.Execute(&buf, struct {
		Context string
		Rows    []Digest
	}{Context: intro, Rows: rows})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatFields(fields []Field) template.HTML {
	var sb strings.Builder
	for _, f := range fields {
		value := ""
		if f.Value != nil {
			value = fmt.Sprint(f.Value)
		}
		fmt.Fprintf(&sb, "<u>%s</u>: %s; ", template.HTMLEscapeString(f.Name), template.HTMLEscapeString(value))
	}
	return template.HTML(sb.String())
}
