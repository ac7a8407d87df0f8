// Package output holds the line-oriented sinks a pipeline run reports to.
package output

import (
	"fmt"
	"io"
	"regexp"
	"sync"
)

// Tag is a semantic annotation a renderer may use for styling.
type Tag string

const (
	TagNone    Tag = ""
	TagInfo    Tag = "info"
	TagError   Tag = "error"
	TagComment Tag = "comment"
)

// Writer is the output sink of a pipeline run.
type Writer interface {
	// Write emits text without a trailing newline.
	Write(text string)
	// Writeln emits a whole line.
	Writeln(text string)
	// Tagged emits a whole line annotated with tag.
	Tagged(tag Tag, text string)
}

var markup = regexp.MustCompile(`</?(info|error|comment)>`)

// StripTags removes inline <info>, <error> and <comment> markup.
func StripTags(text string) string {
	return markup.ReplaceAllString(text, "")
}

var ansi = map[Tag]string{
	TagInfo:    "\x1b[32m",
	TagError:   "\x1b[37;41m",
	TagComment: "\x1b[33m",
}

const ansiReset = "\x1b[0m"

// Console writes to a terminal, colouring tagged lines.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	noColor bool
}

type ConsoleOption func(*Console)

func WithoutColor() ConsoleOption {
	return func(c *Console) {
		c.noColor = true
	}
}

func NewConsole(w io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{w: w}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Console) Write(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprint(c.w, c.render(text))
}

func (c *Console) Writeln(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, c.render(text))
}

func (c *Console) Tagged(tag Tag, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	code, ok := ansi[tag]
	if !ok || c.noColor {
		_, _ = fmt.Fprintln(c.w, StripTags(text))
		return
	}
	_, _ = fmt.Fprintln(c.w, code+StripTags(text)+ansiReset)
}

// render turns inline markup into ANSI sequences, or strips it.
func (c *Console) render(text string) string {
	if c.noColor {
		return StripTags(text)
	}
	return markup.ReplaceAllStringFunc(text, func(m string) string {
		if m[1] == '/' {
			return ansiReset
		}
		return ansi[Tag(m[1:len(m)-1])]
	})
}
