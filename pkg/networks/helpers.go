package networks

import (
	"encoding/json"
	"strconv"
	"strings"
)

// decodeRecords tolerates the two body shapes the affiliate APIs are known to
// return: a bare JSON array, or an object wrapping the array under listKey.
func decodeRecords(body []byte, listKey string) ([]map[string]any, bool) {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, false
	}

	switch v := parsed.(type) {
	case []any:
		return toRecordMaps(v), true
	case map[string]any:
		if raw, ok := v[listKey]; ok {
			if list, ok := raw.([]any); ok {
				return toRecordMaps(list), true
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

// decodeSingle decodes a body that holds one JSON object.
func decodeSingle(body []byte) (map[string]any, bool) {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}

func toRecordMaps(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// stringField returns the first non-empty string value among the given keys.
// Numeric ids are rendered without a decimal point.
func stringField(record map[string]any, keys ...string) string {
	for _, key := range keys {
		raw, ok := record[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case float64:
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10)
			}
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
