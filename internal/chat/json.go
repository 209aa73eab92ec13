package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON decodes s on a best-effort basis. It returns nil when s is empty or invalid.
func ParseJSON(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

// Stringify renders v as message content. Strings pass through unchanged,
// everything else is JSON-encoded.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
