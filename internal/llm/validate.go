package llm

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateJSONAgainstSchema checks a model reply against the expected shape,
// given as a decoded JSON Schema document. Replies arrive as raw bytes, so a
// malformed document fails here instead of surfacing as a half-decoded
// struct downstream.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	encoded, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("encode reply schema: %w", err)
	}
	schema, err := jsonschema.CompileString("reply.schema.json", string(encoded))
	if err != nil {
		return fmt.Errorf("compile reply schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("reply is not valid json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("reply does not satisfy schema: %w", err)
	}
	return nil
}
