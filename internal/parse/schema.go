package parse

// BuildContactJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It is sent to the model as a structured-output constraint and
// used locally to validate the reply.
func BuildContactJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":       map[string]any{"type": "string", "minLength": 1},
			"company":    map[string]any{"type": "string"},
			"role":       map[string]any{"type": "string"},
			"email":      map[string]any{"type": "string"},
			"phone":      map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"name", "confidence"},
	}
}
