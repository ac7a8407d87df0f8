package transformer

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultDateFormat = time.RFC3339

// Convert parses a raw text value into the Go value stored for fieldType.
func Convert(value, fieldType, dateFormat string) (any, error) {
	value = strings.TrimSpace(value)

	switch fieldType {
	case "", "string":
		return value, nil
	case "int":
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse int value '%s': %w", value, err)
		}
		return intVal, nil
	case "float":
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse float value '%s': %w", value, err)
		}
		return floatVal, nil
	case "bool":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse bool value '%s': %w", value, err)
		}
		return boolVal, nil
	case "date":
		t, err := time.Parse(time.DateOnly, value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date value '%s': %w", value, err)
		}
		return t, nil
	case "datetime":
		if dateFormat == "" {
			dateFormat = defaultDateFormat
		}
		t, err := time.Parse(dateFormat, value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse datetime value '%s': %w", value, err)
		}
		return t, nil
	case "uuid":
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse uuid value '%s': %w", value, err)
		}
		return id, nil
	case "url":
		u, err := url.ParseRequestURI(value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse url value '%s': %w", value, err)
		}
		return u.String(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", fieldType)
	}
}
