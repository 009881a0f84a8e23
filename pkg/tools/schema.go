package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives a JSON schema from a Go argument struct using tags.
//
// Supported tags:
//   - json:"name" - argument name
//   - json:",omitempty" - optional argument
//   - jsonschema:"required" - explicitly mark as required
//   - jsonschema:"description=..." - argument description
//   - jsonschema:"enum=a|b" - allowed values
//
// Example:
//
//	type lookupArgs struct {
//	    CustomerID string `json:"customer_id" jsonschema:"required,description=Customer record id"`
//	}
func SchemaFor[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	schemaMap, err := schemaToMap(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}

	// Models expect a bare object schema: type/properties/required only.
	if schemaMap["type"] == "object" {
		result := map[string]any{
			"type": "object",
		}
		if props, ok := schemaMap["properties"]; ok {
			result["properties"] = props
		}
		if required, ok := schemaMap["required"]; ok {
			result["required"] = required
		}
		if addProps, ok := schemaMap["additionalProperties"]; ok {
			result["additionalProperties"] = addProps
		}
		return result, nil
	}

	return schemaMap, nil
}

// MustSchemaFor is SchemaFor for statically known types, panicking on
// reflection failure. Used at registration time where a bad schema is a
// programming error.
func MustSchemaFor[T any]() map[string]any {
	schema, err := SchemaFor[T]()
	if err != nil {
		panic(fmt.Sprintf("tools: schema derivation failed: %v", err))
	}
	return schema
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	delete(result, "$schema")
	delete(result, "$id")

	return result, nil
}
