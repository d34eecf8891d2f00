package task

import (
	"fmt"

	"go.yaml.in/yaml/v3"

	"github.com/weft-dsl/weft/pkg/models"
)

// schemaFields is a parsed schema hint: field name -> expected type, where
// type is one of string, number, bool, list, object, any.
type schemaFields map[string]string

// parseSchema parses a YAML schema hint.
func parseSchema(schema string) (schemaFields, error) {
	fields := schemaFields{}
	if err := yaml.Unmarshal([]byte(schema), &fields); err != nil {
		return nil, models.NewValidationError("bad output schema: %v", err)
	}
	for name, typ := range fields {
		switch typ {
		case "string", "number", "bool", "list", "object", "any":
		default:
			return nil, models.NewValidationError("output schema field %q has unknown type %q", name, typ)
		}
	}
	return fields, nil
}

// checkSchema validates parsed JSON output against a schema hint. The parsed
// value must be an object carrying every declared field with a roughly
// matching type.
func checkSchema(parsed any, fields schemaFields) error {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return fmt.Errorf("output is %T, want an object", parsed)
	}
	for name, typ := range fields {
		value, present := obj[name]
		if !present {
			return fmt.Errorf("output missing field %q", name)
		}
		if !typeMatches(value, typ) {
			return fmt.Errorf("output field %q is %T, want %s", name, value, typ)
		}
	}
	return nil
}

func typeMatches(value any, typ string) bool {
	switch typ {
	case "any":
		return true
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, int64, int:
			return true
		}
		return false
	case "bool":
		_, ok := value.(bool)
		return ok
	case "list":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return false
	}
}
