package llm

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Model responses are untrusted: content may be wrapped in fenced code
// blocks, preceded by prose, or carry missing or wrongly typed fields.
// The helpers here never fail the pipeline: malformed input coerces to
// caller-supplied defaults.

// Unfence strips a single outer triple-backtick fence (optionally labeled,
// e.g. ```json) from the response text. Text without a fence is returned
// trimmed.
func Unfence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	// Drop the opening fence line including any language label.
	rest := trimmed[3:]
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		rest = rest[idx+1:]
	} else {
		// Opening fence with no newline: nothing inside.
		rest = strings.TrimPrefix(rest, "json")
	}

	if idx := strings.LastIndex(rest, "```"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.TrimSpace(rest)
}

// ExtractObject unfences the text and isolates the outermost JSON object
// or array, tolerating prose before and after the JSON.
func ExtractObject(text string) string {
	unfenced := Unfence(text)

	start := strings.IndexAny(unfenced, "{[")
	if start < 0 {
		return unfenced
	}

	var end int
	if unfenced[start] == '{' {
		end = strings.LastIndexByte(unfenced, '}')
	} else {
		end = strings.LastIndexByte(unfenced, ']')
	}
	if end <= start {
		return unfenced[start:]
	}
	return unfenced[start : end+1]
}

// DecodeObject parses the response text into a generic map, applying
// unfencing and object extraction. Returns false when no JSON object can
// be recovered; callers fall back to defaults.
func DecodeObject(text string) (map[string]any, bool) {
	raw := ExtractObject(text)
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, false
	}
	return m, true
}

// String coerces a field value to a trimmed string, returning def for
// missing or non-string values.
func String(v any, def string) string {
	s, ok := v.(string)
	if !ok {
		return def
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return def
	}
	return trimmed
}

// Score coerces a field value to a float64 clamped to [0,1], accepting
// numbers and numeric strings. Missing or malformed values return def.
func Score(v any, def float64) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return def
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return def
		}
		f = parsed
	default:
		return def
	}

	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// StringSlice coerces a field value to a slice of non-empty trimmed
// strings. Non-array and non-string elements are dropped.
func StringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// ObjectSlice coerces a field value to a slice of generic maps, dropping
// elements of any other type.
func ObjectSlice(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
