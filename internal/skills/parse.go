package skills

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// stripCodeFences removes markdown code-fence wrappers the model tends to put
// around JSON output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// braceSlice trims s to the substring from the first '{' to the last '}',
// discarding prose the model wrapped around the JSON object.
func braceSlice(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

// unmarshalModelJSON decodes model output into v, repairing near-JSON (single
// quotes, trailing commas, unquoted keys) before giving up.
func unmarshalModelJSON(raw string, v any) error {
	cleaned := stripCodeFences(raw)

	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(repaired), v)
}
