package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Origin marks who authored an entry. It only affects styling.
type Origin string

const (
	OriginUser   Origin = "user"
	OriginSystem Origin = "system"
)

// Kind is how an entry is displayed.
type Kind string

const (
	KindText   Kind = "text"
	KindCode   Kind = "code"
	KindObject Kind = "object"
)

// Entry is one immutable line of the conversation.
//
// Text is always the displayed text: the raw string for text and code
// entries, indented JSON for object entries. Object holds the compact JSON
// for object entries.
type Entry struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Seq         uint64          `json:"seq"`
	Origin      Origin          `json:"origin"`
	Kind        Kind            `json:"kind"`
	Text        string          `json:"text"`
	Object      json.RawMessage `json:"object,omitempty"`
	CreatedAtMs int64           `json:"created_at_ms"`
}

const codePrefix = "SELECT"

// classify turns arbitrary content into the kind, display text and raw
// object of an entry. It never fails.
func classify(content any) (Kind, string, json.RawMessage) {
	switch v := content.(type) {
	case string:
		return classifyString(v), v, nil
	case fmt.Stringer:
		s := v.String()
		return classifyString(s), s, nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		s := fmt.Sprint(v)
		return classifyString(s), s, nil
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			s := string(v)
			return classifyString(s), s, nil
		}
		return classifyObject(decoded)
	default:
		return classifyObject(v)
	}
}

func classifyString(s string) Kind {
	if strings.HasPrefix(strings.TrimSpace(s), codePrefix) {
		return KindCode
	}
	return KindText
}

func classifyObject(v any) (Kind, string, json.RawMessage) {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		s := fmt.Sprintf("%v", v)
		return classifyString(s), s, nil
	}
	compact, err := json.Marshal(v)
	if err != nil {
		return KindObject, string(pretty), nil
	}
	return KindObject, string(pretty), compact
}
