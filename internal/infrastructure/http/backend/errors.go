package backend

import (
	"encoding/json"
	"strings"

	"github.com/prontuario/proamp/internal/core/domain"
)

// Keys the backend uses for messages that belong to no single field.
var generalKeys = map[string]bool{
	"error":            true,
	"detail":           true,
	"message":          true,
	"non_field_errors": true,
}

// parseValidation reads a 400 body. Field errors arrive as {"field": ["msg"]}
// or {"field": "msg"}; general ones under "error", "detail" or
// "non_field_errors".
func parseValidation(payload []byte) *domain.ValidationError {
	ve := &domain.ValidationError{}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		ve.Message = strings.TrimSpace(string(payload))
		return ve
	}

	var general []string
	for key, raw := range body {
		msgs := messages(raw)
		if len(msgs) == 0 {
			continue
		}
		if generalKeys[key] {
			general = append(general, msgs...)
			continue
		}
		if ve.Fields == nil {
			ve.Fields = make(map[string][]string)
		}
		ve.Fields[key] = msgs
	}
	ve.Message = strings.Join(general, " ")
	return ve
}

// errorMessage extracts a human message from an error body, if any.
func errorMessage(payload []byte) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	for _, key := range []string{"error", "detail", "message"} {
		if msgs := messages(body[key]); len(msgs) > 0 {
			return strings.Join(msgs, " ")
		}
	}
	return ""
}

func messages(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}
