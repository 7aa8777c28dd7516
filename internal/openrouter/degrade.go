package openrouter

import "strings"

// ApplyDegradeFields checks whether an upstream rejection names one of the
// configured optional fields that is present in the payload. On the first
// match it returns a copy of the payload without that field and the field
// name; otherwise it returns nil. Callers retry the call once with the
// reduced payload.
func ApplyDegradeFields(payload map[string]any, errorText string, fields []string) (map[string]any, string) {
	for _, field := range fields {
		if _, present := payload[field]; !present {
			continue
		}
		if !strings.Contains(errorText, field) {
			continue
		}
		reduced := make(map[string]any, len(payload)-1)
		for key, value := range payload {
			if key != field {
				reduced[key] = value
			}
		}
		return reduced, field
	}
	return nil, ""
}
