package v1

import (
	"encoding/json"
	"strings"
)

// taskFailureMessage is the body of a task whose answer could not be used.
const taskFailureMessage = "Failed to generate recommendations. Please try again."

// parseStructured extracts the JSON payload of a task answer. Code fences and a
// leading "json" tag are tolerated. It returns false for empty or invalid payloads.
func parseStructured(answer string) (any, bool) {
	cleaned := strings.TrimSpace(answer)
	cleaned = strings.Trim(cleaned, "`")
	cleaned = strings.TrimPrefix(cleaned, "json")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil, false
	}

	var data any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, false
	}
	switch v := data.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return v, len(v) > 0
	case []any:
		return v, len(v) > 0
	case string:
		return v, v != ""
	}
	return data, true
}
