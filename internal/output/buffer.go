package output

import (
	"strings"
	"sync"
)

// Line is one line captured by a Buffer.
type Line struct {
	Tag  Tag
	Text string
}

// Buffer records everything written to it. Partial writes are joined
// into the line that the next Writeln completes.
type Buffer struct {
	mu      sync.Mutex
	lines   []Line
	pending strings.Builder
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Write(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending.WriteString(text)
}

func (b *Buffer) Writeln(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending.WriteString(text)
	b.lines = append(b.lines, Line{Text: b.pending.String()})
	b.pending.Reset()
}

func (b *Buffer) Tagged(tag Tag, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, Line{Tag: tag, Text: text})
}

func (b *Buffer) Lines() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Line, len(b.lines))
	copy(out, b.lines)
	return out
}

// Contains reports whether any captured line contains substr.
func (b *Buffer) Contains(substr string) bool {
	for _, l := range b.Lines() {
		if strings.Contains(l.Text, substr) {
			return true
		}
	}
	return false
}

func (b *Buffer) String() string {
	var sb strings.Builder
	for _, l := range b.Lines() {
		sb.WriteString(l.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}
