package automation

import (
	"strconv"
	"strings"
	"time"
)

// Entity is the schema-agnostic record the engine evaluates against. Producers
// publish the full current state of a transaction, account, payee, etc. as a
// plain key/value map; the engine never assumes a concrete shape.
type Entity map[string]interface{}

// GetField resolves a dot-separated path against the entity. A missing segment,
// a nil intermediate value, or a non-map intermediate value reports not found
// rather than panicking.
func (e Entity) GetField(path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	var current interface{} = map[string]interface{}(e)
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		value, exists := node[segment]
		if !exists {
			return nil, false
		}
		current = value
	}
	return current, true
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64:
		return true
	default:
		return false
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// toTime parses a field or condition value as a timestamp. Date-only strings
// are interpreted at midnight UTC so that calendar operators do not drift with
// the host timezone.
func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func toList(v interface{}) ([]interface{}, bool) {
	switch l := v.(type) {
	case []interface{}:
		return l, true
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
