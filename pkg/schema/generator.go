package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// JSONSchema represents a JSON Schema document
type JSONSchema struct {
	Schema               string                 `json:"$schema,omitempty"`
	ID                   string                 `json:"$id,omitempty"`
	Title                string                 `json:"title,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Type                 string                 `json:"type,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	AdditionalProperties *JSONSchema            `json:"additionalProperties,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	Enum                 []any                  `json:"enum,omitempty"`
	Default              any                    `json:"default,omitempty"`
	Pattern              string                 `json:"pattern,omitempty"`
	MinLength            *int                   `json:"minLength,omitempty"`
	MaxLength            *int                   `json:"maxLength,omitempty"`
	MinItems             *int                   `json:"minItems,omitempty"`
	MaxItems             *int                   `json:"maxItems,omitempty"`
}

const schemaRef = "https://json-schema.org/draft/2020-12/schema"

// DefaultGroup is the $id host used for generated root schemas.
const DefaultGroup = "etl.io"

// Generator generates JSON schemas from Go structs
type Generator struct {
	group string
}

func NewGenerator() *Generator {
	return &Generator{group: DefaultGroup}
}

// GenerateSchema generates a JSON schema from a Go type
func (g *Generator) GenerateSchema(t reflect.Type) (*JSONSchema, error) {
	return g.generateSchemaForType(t, true)
}

func (g *Generator) generateSchemaForType(t reflect.Type, isRoot bool) (*JSONSchema, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	schema := &JSONSchema{}

	switch t.Kind() {
	case reflect.Struct:
		return g.generateStructSchema(t, isRoot)
	case reflect.Slice:
		return g.generateSliceSchema(t)
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type: %s", t.Key().Kind())
		}
		values, err := g.generateSchemaForType(t.Elem(), false)
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema for map values: %w", err)
		}
		schema.Type = "object"
		schema.AdditionalProperties = values
	case reflect.Interface:
		// any value
	case reflect.String:
		schema.Type = "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		schema.Type = "integer"
	case reflect.Float32, reflect.Float64:
		schema.Type = "number"
	case reflect.Bool:
		schema.Type = "boolean"
	default:
		return nil, fmt.Errorf("unsupported type: %s", t.Kind())
	}

	return schema, nil
}

func (g *Generator) generateStructSchema(t reflect.Type, isRoot bool) (*JSONSchema, error) {
	schema := &JSONSchema{
		Type:       "object",
		Properties: make(map[string]*JSONSchema),
	}

	if isRoot {
		schema.Schema = schemaRef
		schema.Title = t.Name()
		schema.ID = fmt.Sprintf("https://schemas.%s/%s", g.group, strings.ToLower(t.Name()))
	}

	var required []string

	for i := range t.NumField() {
		field := t.Field(i)

		if !field.IsExported() {
			continue
		}

		fieldName := g.getFieldName(field)
		if fieldName == "" {
			continue
		}

		fieldSchema, err := g.generateFieldSchema(field)
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema for field %s: %w", field.Name, err)
		}

		schema.Properties[fieldName] = fieldSchema

		if g.isFieldRequired(field) {
			required = append(required, fieldName)
		}
	}

	if len(required) > 0 {
		schema.Required = required
	}

	return schema, nil
}

func (g *Generator) generateSliceSchema(t reflect.Type) (*JSONSchema, error) {
	itemSchema, err := g.generateSchemaForType(t.Elem(), false)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for array items: %w", err)
	}

	return &JSONSchema{Type: "array", Items: itemSchema}, nil
}

func (g *Generator) generateFieldSchema(field reflect.StructField) (*JSONSchema, error) {
	fieldSchema, err := g.generateSchemaForType(field.Type, false)
	if err != nil {
		return nil, err
	}

	if desc := field.Tag.Get("description"); desc != "" {
		fieldSchema.Description = desc
	}

	if schemaTag := field.Tag.Get("schema"); schemaTag != "" {
		g.parseSchemaTag(schemaTag, fieldSchema)
	}

	return fieldSchema, nil
}

func (g *Generator) parseSchemaTag(tag string, schema *JSONSchema) {
	for _, part := range strings.Split(tag, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(part), "=")

		switch key {
		case "enum":
			for _, e := range strings.Split(value, "|") {
				schema.Enum = append(schema.Enum, e)
			}
		case "default":
			schema.Default = typedDefault(schema.Type, value)
		case "pattern":
			schema.Pattern = value
		case "minLength":
			schema.MinLength = atoi(value)
		case "maxLength":
			schema.MaxLength = atoi(value)
		case "minItems":
			schema.MinItems = atoi(value)
		case "maxItems":
			schema.MaxItems = atoi(value)
		}
	}
}

func typedDefault(typ, value string) any {
	switch typ {
	case "boolean":
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	case "integer":
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return value
}

func atoi(s string) *int {
	if val, err := strconv.Atoi(s); err == nil {
		return &val
	}
	return nil
}

func (g *Generator) getFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return strings.ToLower(field.Name[:1]) + field.Name[1:]
	}
	return name
}

func (g *Generator) isFieldRequired(field reflect.StructField) bool {
	for _, part := range strings.Split(field.Tag.Get("schema"), ",") {
		if strings.TrimSpace(part) == "required" {
			return true
		}
	}
	return false
}

// GenerateJSONSchema generates a JSON schema as a JSON string
func (g *Generator) GenerateJSONSchema(v any) (string, error) {
	schema, err := g.GenerateSchema(reflect.TypeOf(v))
	if err != nil {
		return "", err
	}

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema to JSON: %w", err)
	}

	return string(jsonBytes), nil
}
