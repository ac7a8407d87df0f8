package etl

import (
	"fmt"
	"maps"
	"slices"
)

// StageType names the three stage kinds.
type StageType string

const (
	StageExtractor   StageType = "extractor"
	StageTransformer StageType = "transformer"
	StageLoader      StageType = "loader"
)

// StageInfo is static metadata registered with a stage factory.
type StageInfo struct {
	Name        string
	DisplayName string
	Description string
	Type        StageType
}

func (i StageInfo) Label() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Name
}

type (
	ExtractorFactory   func() Extractor
	TransformerFactory func() Transformer
	LoaderFactory      func() Loader
)

type entry[F any] struct {
	info    StageInfo
	factory F
}

// Registry is the closed table of stages a pipeline may bind by name. It
// is filled once at start-up and read afterwards.
type Registry struct {
	extractors   map[string]entry[ExtractorFactory]
	transformers map[string]entry[TransformerFactory]
	loaders      map[string]entry[LoaderFactory]
}

func NewRegistry() *Registry {
	return &Registry{
		extractors:   make(map[string]entry[ExtractorFactory]),
		transformers: make(map[string]entry[TransformerFactory]),
		loaders:      make(map[string]entry[LoaderFactory]),
	}
}

func (r *Registry) RegisterExtractor(info StageInfo, f ExtractorFactory) {
	info.Type = StageExtractor
	r.extractors[mustName(info)] = entry[ExtractorFactory]{info: info, factory: f}
}

func (r *Registry) RegisterTransformer(info StageInfo, f TransformerFactory) {
	info.Type = StageTransformer
	r.transformers[mustName(info)] = entry[TransformerFactory]{info: info, factory: f}
}

func (r *Registry) RegisterLoader(info StageInfo, f LoaderFactory) {
	info.Type = StageLoader
	r.loaders[mustName(info)] = entry[LoaderFactory]{info: info, factory: f}
}

// Extractor resolves name to its factory and metadata.
func (r *Registry) Extractor(name string) (ExtractorFactory, StageInfo, error) {
	e, ok := r.extractors[name]
	if !ok {
		return nil, StageInfo{}, notRegistered(StageExtractor, name, r.extractors)
	}
	return e.factory, e.info, nil
}

func (r *Registry) Transformer(name string) (TransformerFactory, StageInfo, error) {
	e, ok := r.transformers[name]
	if !ok {
		return nil, StageInfo{}, notRegistered(StageTransformer, name, r.transformers)
	}
	return e.factory, e.info, nil
}

func (r *Registry) Loader(name string) (LoaderFactory, StageInfo, error) {
	e, ok := r.loaders[name]
	if !ok {
		return nil, StageInfo{}, notRegistered(StageLoader, name, r.loaders)
	}
	return e.factory, e.info, nil
}

// Stages lists the registered metadata of every kind, sorted by name.
func (r *Registry) Stages() []StageInfo {
	var out []StageInfo
	out = append(out, infos(r.extractors)...)
	out = append(out, infos(r.transformers)...)
	out = append(out, infos(r.loaders)...)
	return out
}

func infos[F any](m map[string]entry[F]) []StageInfo {
	out := make([]StageInfo, 0, len(m))
	for _, name := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[name].info)
	}
	return out
}

func notRegistered[F any](t StageType, name string, m map[string]entry[F]) error {
	return NotFoundError("registry", "%s not found in available %ss: %v", name, t, slices.Sorted(maps.Keys(m)))
}

func mustName(info StageInfo) string {
	if info.Name == "" {
		panic(fmt.Sprintf("etl: %s registered without a name", info.Type))
	}
	return info.Name
}
