// Package stages registers the built-in extractors, transformers and loaders.
package stages

import (
	"github.com/DjordjeVuckovic/etl-runner/internal/audit"
	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/DjordjeVuckovic/etl-runner/internal/extractor"
	"github.com/DjordjeVuckovic/etl-runner/internal/loader"
	"github.com/DjordjeVuckovic/etl-runner/internal/transformer"
	"github.com/elastic/go-elasticsearch/v8"
)

type Deps struct {
	// DB backs the pg loader. Without it the pg stages are not registered.
	DB loader.TxBeginner
	// Rows backs the pg_query extractor and the mapping transformer's
	// lookup of stored rows.
	Rows extractor.RowSource
	// ES backs the es loader.
	ES      *elasticsearch.TypedClient
	Auditor audit.Auditor
}

// NewRegistry returns a registry with every stage deps can support.
func NewRegistry(deps Deps) *etl.Registry {
	r := etl.NewRegistry()
	Register(r, deps)
	return r
}

func Register(r *etl.Registry, deps Deps) {
	r.RegisterExtractor(etl.StageInfo{
		Name:        "csv",
		DisplayName: "CSV extractor",
		Description: "Reads a CSV file with a header row",
	}, func() etl.Extractor { return extractor.NewCSVExtractor() })

	r.RegisterTransformer(etl.StageInfo{
		Name:        "mapping",
		DisplayName: "Mapping transformer",
		Description: "Maps records onto table rows using a DataMapping file",
	}, func() etl.Transformer { return transformer.NewMappingTransformer(deps.Rows) })

	if deps.Rows != nil {
		r.RegisterExtractor(etl.StageInfo{
			Name:        "pg_query",
			DisplayName: "Postgres query extractor",
			Description: "Streams the rows of a SELECT",
		}, func() etl.Extractor { return extractor.NewPgQueryExtractor(deps.Rows) })
	}

	if deps.DB != nil {
		r.RegisterLoader(etl.StageInfo{
			Name:        "pg",
			DisplayName: "Postgres loader",
			Description: "Executes queries in one transaction per chunk",
		}, func() etl.Loader { return loader.NewPgLoader(deps.DB, deps.Auditor) })
	}

	if deps.ES != nil {
		r.RegisterLoader(etl.StageInfo{
			Name:        "es",
			DisplayName: "Elasticsearch loader",
			Description: "Bulk indexes documents",
		}, func() etl.Loader { return loader.NewEsLoader(deps.ES, deps.Auditor) })
	}
}
