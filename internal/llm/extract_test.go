package llm

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		array  bool
		want   string
		wantOK bool
	}{
		{"object in prose", "Here you go: {\"calories\": 95} enjoy", false, `{"calories": 95}`, true},
		{"fenced object", "```json\n{\"a\": {\"b\": 1}}\n```", false, `{"a": {"b": 1}}`, true},
		{"no object", "I could not find that food.", false, "", false},
		{"array in prose", "Items: [{\"name\": \"egg\"}] done", true, `[{"name": "egg"}]`, true},
		{"reversed brackets", "] nothing [", true, "", false},
		{"trailing braces", "{\"calories\": 590} per {serving} [1]", false, `{"calories": 590}`, true},
		{"prose braces first", "Use {serving} size: {\"calories\": 95}", false, `{"calories": 95}`, true},
		{"array with citation", "[{\"name\": \"egg\"}] source [1]", true, `[{"name": "egg"}]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			var ok bool
			if tt.array {
				got, ok = ExtractJSONArray(tt.input)
			} else {
				got, ok = ExtractJSONObject(tt.input)
			}
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Expected (%q, %v), got (%q, %v)", tt.want, tt.wantOK, got, ok)
			}
		})
	}
}
