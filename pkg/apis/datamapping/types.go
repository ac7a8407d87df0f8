package datamapping

import (
	"fmt"
	"slices"
)

const (
	KindDataMapping = "DataMapping"
	VersionV1       = "v1"
)

// Value types a field may be converted to.
var TargetTypes = []string{"string", "int", "float", "bool", "date", "datetime", "uuid", "url"}

// DataMapping maps source record fields onto the columns of one table
// +schema:root=true
// +schema:group=etl.io
// +schema:version=v1
type DataMapping struct {
	// Kind is the resource type identifier
	Kind string `json:"kind" yaml:"kind" schema:"required,enum=DataMapping" description:"Resource type identifier"`

	// Version is the API version
	Version string `json:"version" yaml:"version" schema:"required,enum=v1" description:"API version"`

	Metadata Metadata `json:"metadata" yaml:"metadata" schema:"required" description:"Mapping metadata"`

	// Table is the destination table, optionally schema qualified
	Table string `json:"table" yaml:"table" schema:"required,minLength=1" description:"Destination table"`

	// Key lists the target columns identifying a row. When set, rows are
	// upserted on these columns instead of inserted.
	Key []string `json:"key,omitempty" yaml:"key,omitempty" description:"Upsert key columns"`

	// DateFormat specifies the Go time format for parsing datetime fields
	DateFormat string `json:"dateFormat,omitempty" yaml:"dateFormat,omitempty" schema:"default=2006-01-02T15:04:05Z07:00" description:"Go time format for parsing datetime fields"`

	FieldMappings []FieldMapping `json:"fieldMappings" yaml:"fieldMappings" schema:"required,minItems=1" description:"Array of field mapping definitions"`
}

type Metadata struct {
	Name        string `json:"name" yaml:"name" schema:"required,minLength=1,maxLength=100" description:"Human-readable name for the mapping configuration"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" schema:"maxLength=500" description:"Description of the mapping configuration"`
}

type FieldMapping struct {
	// Source is the field name in the extracted record
	Source string `json:"source" yaml:"source" schema:"required,minLength=1,maxLength=100" description:"Source field name"`

	// Target is the destination column. Defaults to the snake_case source.
	Target string `json:"target,omitempty" yaml:"target,omitempty" description:"Destination column"`

	// TargetType is the type the source value is converted to
	TargetType string `json:"targetType,omitempty" yaml:"targetType,omitempty" schema:"enum=string|int|float|bool|date|datetime|uuid|url,default=string" description:"Target value type"`

	// Required rejects records where the source is missing or blank
	Required bool `json:"required,omitempty" yaml:"required,omitempty" schema:"default=false" description:"Whether the source field must be present"`

	// OnMissing is the severity of a failed required check: warn or fail
	OnMissing string `json:"onMissing,omitempty" yaml:"onMissing,omitempty" schema:"enum=warn|fail,default=warn" description:"Severity of a missing required field"`

	// Default replaces a missing or blank source value
	Default string `json:"default,omitempty" yaml:"default,omitempty" description:"Value used when the source is missing"`
}

// Column returns the destination column name.
func (fm FieldMapping) Column(toColumn func(string) string) string {
	if fm.Target != "" {
		return fm.Target
	}
	return toColumn(fm.Source)
}

func (fm FieldMapping) Type() string {
	if fm.TargetType == "" {
		return "string"
	}
	return fm.TargetType
}

func (dm *DataMapping) Validate() error {
	if dm.Kind != KindDataMapping {
		return &MappingError{Message: fmt.Sprintf("kind must be %s, got %q", KindDataMapping, dm.Kind)}
	}
	if dm.Version != VersionV1 {
		return &MappingError{Message: fmt.Sprintf("unsupported version %q", dm.Version)}
	}
	if dm.Metadata.Name == "" {
		return &MappingError{Message: "metadata.name is required"}
	}
	if dm.Table == "" {
		return &MappingError{Message: "table is required"}
	}
	if len(dm.FieldMappings) == 0 {
		return &MappingError{Message: "at least one field mapping is required"}
	}
	for i, fm := range dm.FieldMappings {
		if fm.Source == "" {
			return &MappingError{Message: fmt.Sprintf("fieldMappings[%d] must have source defined", i)}
		}
		if !slices.Contains(TargetTypes, fm.Type()) {
			return &MappingError{Message: fmt.Sprintf("fieldMappings[%d] has unsupported targetType %q", i, fm.TargetType)}
		}
		switch fm.OnMissing {
		case "", "warn", "fail":
		default:
			return &MappingError{Message: fmt.Sprintf("fieldMappings[%d] has unknown onMissing %q", i, fm.OnMissing)}
		}
	}
	return nil
}

type MappingError struct {
	Message string `json:"message" example:"table is required"`
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("datamapping error: %s", e.Message)
}
