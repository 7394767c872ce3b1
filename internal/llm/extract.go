package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ExtractJSONObject returns the first complete {...} value in a model reply.
// Models often wrap JSON in prose, markdown fences or trailing citations.
func ExtractJSONObject(s string) (string, bool) {
	return extractFirst(s, '{')
}

// ExtractJSONArray returns the first complete [...] value in a model reply.
func ExtractJSONArray(s string) (string, bool) {
	return extractFirst(s, '[')
}

// extractFirst decodes one JSON value from each opener in turn and returns
// the first that parses. Text after the value is ignored.
func extractFirst(s string, open byte) (string, bool) {
	for start := strings.IndexByte(s, open); start != -1; {
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(s[start:])).Decode(&raw); err == nil && len(raw) > 0 && raw[0] == open {
			return string(bytes.TrimSpace(raw)), true
		}
		next := strings.IndexByte(s[start+1:], open)
		if next == -1 {
			break
		}
		start += next + 1
	}
	return "", false
}
