package output

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const EventConsole = "console"

// EventSource streams output as server-sent events so a browser can follow
// a run live. Markup is stripped and newlines become <br />.
type EventSource struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEventSource(w io.Writer) *EventSource {
	return &EventSource{w: w}
}

func (es *EventSource) Write(text string) {
	es.send(text, false)
}

func (es *EventSource) Writeln(text string) {
	es.send(text, true)
}

func (es *EventSource) Tagged(_ Tag, text string) {
	es.send(text, true)
}

func (es *EventSource) send(text string, newline bool) {
	es.mu.Lock()
	defer es.mu.Unlock()

	data := strings.ReplaceAll(StripTags(text), "\n", "<br />")
	if newline {
		data += "<br />"
	}

	frame := fmt.Sprintf("id: %s\nretry: 0\nevent: %s\ndata: %s\n\n",
		strings.ReplaceAll(uuid.NewString(), "-", ""), EventConsole, data)
	if _, err := io.WriteString(es.w, frame); err != nil {
		slog.Debug("event source write failed", "error", err)
		return
	}
	if f, ok := es.w.(http.Flusher); ok {
		f.Flush()
	}
}
