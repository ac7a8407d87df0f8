package factory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DjordjeVuckovic/etl-runner/internal/audit"
	"github.com/DjordjeVuckovic/etl-runner/internal/storage/es"
	"github.com/DjordjeVuckovic/etl-runner/internal/storage/pg"
	pkgserver "github.com/DjordjeVuckovic/etl-runner/pkg/server"
	"github.com/elastic/go-elasticsearch/v8"
)

// Backends holds the connections opened for a StorageConfig.
type Backends struct {
	Pool *pg.ConnectionPool
	ES   *elasticsearch.TypedClient
}

// Open connects to every configured backend.
func Open(ctx context.Context, cfg *StorageConfig) (*Backends, error) {
	b := &Backends{}

	if cfg.Pg != nil {
		pool, err := pg.NewConnectionPool(ctx, *cfg.Pg)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
		}
		b.Pool = pool
	}

	if cfg.Es != nil {
		client, err := es.NewClient(*cfg.Es)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.ES = client
	}

	return b, nil
}

func (b *Backends) Close() {
	if b.Pool != nil {
		b.Pool.Close()
	}
}

func (b *Backends) HealthCheckers() []pkgserver.HealthChecker {
	checkers := []pkgserver.HealthChecker{pkgserver.NewOkHealthChecker()}
	if b.Pool != nil {
		checkers = append(checkers, pg.NewHealthChecker(b.Pool))
	}
	if b.ES != nil {
		checkers = append(checkers, es.NewHealthChecker(b.ES))
	}
	return checkers
}

// NewAuditor creates the auditor selected by cfg.Audit.
func NewAuditor(ctx context.Context, cfg *StorageConfig, b *Backends) (audit.Auditor, error) {
	switch cfg.Audit {
	case AuditVoid:
		return audit.Void{}, nil
	case AuditLog, "":
		return audit.NewLog(slog.Default()), nil
	case AuditPG:
		if b.Pool == nil {
			return nil, fmt.Errorf("pg audit backend requires a database connection")
		}
		return audit.NewPg(b.Pool.GetConn(), cfg.AuditTable), nil
	case AuditES:
		if b.ES == nil {
			return nil, fmt.Errorf("es audit backend requires an Elasticsearch client")
		}
		return audit.NewES(ctx, b.ES, cfg.AuditIndex)
	default:
		return nil, fmt.Errorf("unsupported audit backend: %s", cfg.Audit)
	}
}
