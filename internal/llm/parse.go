package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject pulls the embedded JSON object out of a free-text model
// response by slicing from the first '{' to the last '}'. Generation output
// often wraps the payload in prose or markdown fences; callers must fall back
// to the raw text when ok is false.
func ExtractJSONObject(content string) (json.RawMessage, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end < start {
		return nil, false
	}

	candidate := []byte(content[start : end+1])
	if !json.Valid(candidate) {
		return nil, false
	}

	return json.RawMessage(candidate), true
}

// DecodeJSONObject extracts and unmarshals in one step. A false return means
// the caller should use the raw content instead; it is never an error the
// user sees.
func DecodeJSONObject(content string, v interface{}) bool {
	raw, ok := ExtractJSONObject(content)
	if !ok {
		return false
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return false
	}

	return true
}
