package es

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
)

type ClientConfig struct {
	Addresses []string
	Username  string
	Password  string
}

func NewClient(config ClientConfig) (*elasticsearch.TypedClient, error) {
	cfg := elasticsearch.Config{
		Addresses: config.Addresses,
	}

	if config.Username != "" && config.Password != "" {
		cfg.Username = config.Username
		cfg.Password = config.Password
	}

	client, err := elasticsearch.NewTypedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	return client, nil
}

// EnsureIndex creates index with the given mappings unless it exists.
func EnsureIndex(ctx context.Context, client *elasticsearch.TypedClient, index string, mappings types.TypeMapping) error {
	exists, err := client.Indices.Exists(index).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check if index exists: %w", err)
	}
	if exists {
		slog.Debug("Index already exists", "index", index)
		return nil
	}

	createRes, err := client.Indices.Create(index).
		Mappings(&mappings).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if !createRes.Acknowledged {
		return fmt.Errorf("index creation was not acknowledged")
	}

	slog.Info("Index created successfully", "index", index)
	return nil
}

// HealthChecker pings the cluster for the /health endpoint.
type HealthChecker struct {
	client *elasticsearch.TypedClient
}

func NewHealthChecker(client *elasticsearch.TypedClient) *HealthChecker {
	return &HealthChecker{client: client}
}

func (hc *HealthChecker) Name() string {
	return "elasticsearch"
}

func (hc *HealthChecker) Healthy(ctx context.Context) bool {
	if hc.client == nil {
		return false
	}
	ok, err := hc.client.Ping().Do(ctx)
	if err != nil {
		slog.Warn("Elasticsearch health check failed", "error", err)
		return false
	}
	return ok
}
