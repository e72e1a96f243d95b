package parse

import (
	"encoding/json"
	"fmt"
	"strings"
)

var allowedContactKeys = map[string]struct{}{
	"name": {}, "company": {}, "role": {}, "email": {}, "phone": {},
	"confidence": {},
}

// SanitizeContactJSON normalizes a model reply before schema validation:
// trims strings, drops null/empty optionals and unknown keys, clamps
// confidence into [0,1]. Returns the cleaned document and the keys touched.
func SanitizeContactJSON(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var touched []string
	for k, v := range m {
		if _, ok := allowedContactKeys[k]; !ok {
			delete(m, k)
			touched = append(touched, k+"(unknown)")
			continue
		}
		switch t := v.(type) {
		case nil:
			delete(m, k)
			touched = append(touched, k+"(null)")
		case string:
			s := strings.TrimSpace(t)
			if s == "" && k != "name" {
				delete(m, k)
				touched = append(touched, k+"(empty)")
			} else {
				m[k] = s
			}
		}
	}

	switch t := m["confidence"].(type) {
	case float64:
		if t < 0 {
			m["confidence"] = 0.0
			touched = append(touched, "confidence(clamped)")
		} else if t > 1 {
			m["confidence"] = 1.0
			touched = append(touched, "confidence(clamped)")
		}
	case string:
		// Some models quote numbers; reparse or drop.
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(t), "%g", &f); err == nil {
			if f < 0 {
				f = 0
			}
			if f > 1 {
				f = 1
			}
			m["confidence"] = f
			touched = append(touched, "confidence(coerced)")
		} else {
			delete(m, "confidence")
			touched = append(touched, "confidence(dropped)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, touched, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, touched, nil
}
