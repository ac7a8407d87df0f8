package factory

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/DjordjeVuckovic/etl-runner/internal/audit"
	"github.com/DjordjeVuckovic/etl-runner/internal/storage/es"
	"github.com/DjordjeVuckovic/etl-runner/internal/storage/pg"
	"github.com/DjordjeVuckovic/etl-runner/pkg/stringsutil"
)

// AuditBackend selects where audit events are written.
type AuditBackend string

const (
	AuditVoid AuditBackend = "void"
	AuditLog  AuditBackend = "log"
	AuditPG   AuditBackend = "pg"
	AuditES   AuditBackend = "es"
)

var auditBackends = []AuditBackend{AuditVoid, AuditLog, AuditPG, AuditES}

type StorageConfig struct {
	Audit      AuditBackend
	AuditIndex string
	AuditTable string
	// Pg is nil when PG_CONNECTION_STRING is unset.
	Pg *pg.PoolConfig
	// Es is nil when ES_ADDRESSES is unset.
	Es *es.ClientConfig
}

func LoadEnv() (*StorageConfig, error) {
	backend := AuditBackend(os.Getenv("AUDIT_BACKEND"))
	if backend == "" {
		backend = AuditLog
	}
	if !slices.Contains(auditBackends, backend) {
		slog.Error("Invalid AUDIT_BACKEND environment variable value", "value", backend)
		return nil, fmt.Errorf(
			"invalid AUDIT_BACKEND environment variable value: %s, expected one of %v",
			backend,
			auditBackends)
	}

	cfg := &StorageConfig{
		Audit:      backend,
		AuditIndex: envOr("ES_AUDIT_INDEX", audit.DefaultIndex),
		AuditTable: envOr("AUDIT_TABLE", audit.DefaultTable),
	}

	if connStr := os.Getenv("PG_CONNECTION_STRING"); connStr != "" {
		cfg.Pg = &pg.PoolConfig{ConnStr: connStr}
	}

	if addresses := stringsutil.SplitTrim(os.Getenv("ES_ADDRESSES"), ","); len(addresses) > 0 {
		cfg.Es = &es.ClientConfig{
			Addresses: addresses,
			Username:  os.Getenv("ES_USERNAME"),
			Password:  os.Getenv("ES_PASSWORD"),
		}
	}

	switch {
	case backend == AuditPG && cfg.Pg == nil:
		slog.Error("PostgreSQL connection string is not set")
		return nil, fmt.Errorf("AUDIT_BACKEND=pg requires PG_CONNECTION_STRING")
	case backend == AuditES && cfg.Es == nil:
		slog.Error("Elasticsearch configuration is incomplete", "addresses", os.Getenv("ES_ADDRESSES"))
		return nil, fmt.Errorf("AUDIT_BACKEND=es requires ES_ADDRESSES")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
