package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/DjordjeVuckovic/etl-runner/internal/storage/es"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/google/uuid"
)

const DefaultIndex = "etl-audit"

// ES indexes audit events into Elasticsearch.
type ES struct {
	client *elasticsearch.TypedClient
	index  string
}

// NewES creates the audit index when missing.
func NewES(ctx context.Context, client *elasticsearch.TypedClient, index string) (*ES, error) {
	if index == "" {
		index = DefaultIndex
	}
	if err := es.EnsureIndex(ctx, client, index, eventMapping()); err != nil {
		return nil, err
	}
	return &ES{client: client, index: index}, nil
}

func eventMapping() types.TypeMapping {
	disabled := false
	data := types.NewObjectProperty()
	data.Enabled = &disabled

	return types.TypeMapping{
		Properties: map[string]types.Property{
			"category":   types.NewKeywordProperty(),
			"message":    types.NewTextProperty(),
			"data":       data,
			"created_at": types.NewDateProperty(),
		},
	}
}

func (a *ES) Audit(ctx context.Context, category, message string, data map[string]any) {
	doc := Event{
		Category:  category,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}

	id := uuid.NewString()
	if _, err := a.client.Index(a.index).Id(id).Document(doc).Do(ctx); err != nil {
		slog.Error("Failed to index audit event", "index", a.index, "category", category, "error", err)
	}
}
