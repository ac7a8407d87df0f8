package transformer

import (
	"fmt"
	"io"
	"os"

	"github.com/DjordjeVuckovic/etl-runner/pkg/apis/datamapping"
	"gopkg.in/yaml.v3"
)

type MappingLoader struct {
	reader io.Reader
}

func NewMappingLoader(reader io.Reader) *MappingLoader {
	return &MappingLoader{reader: reader}
}

// Load decodes a DataMapping document, rejecting unknown keys.
func (ml *MappingLoader) Load(validate bool) (*datamapping.DataMapping, error) {
	decoder := yaml.NewDecoder(ml.reader)
	decoder.KnownFields(true)

	var mapping datamapping.DataMapping
	if err := decoder.Decode(&mapping); err != nil {
		return nil, err
	}
	if validate {
		if err := mapping.Validate(); err != nil {
			return nil, err
		}
	}
	return &mapping, nil
}

func LoadMappingFile(path string) (*datamapping.DataMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping %s: %w", path, err)
	}
	defer f.Close()

	m, err := NewMappingLoader(f).Load(true)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping %s: %w", path, err)
	}
	return m, nil
}
