package maxbot

import (
	"encoding/json"
	"strconv"
)

// idStrategy pulls a message id out of one known response shape.
type idStrategy func(obj map[string]any) (string, bool)

// The platform and its proxies answer with several layouts; they are tried
// in this order and the first hit wins. Filled in init because the nested
// strategies call back into MessageID.
var idStrategies []idStrategy

func init() {
	idStrategies = []idStrategy{
		fromMessageBody,
		fromKey("message_id"),
		fromKey("mid"),
		fromNested("message"),
		fromNested("data"),
		fromNested("result"),
		fromKey("id"),
	}
}

// MessageID extracts a message id from a decoded response or webhook update.
// It returns "" when no strategy matches.
func MessageID(obj map[string]any) string {
	for _, strategy := range idStrategies {
		if id, ok := strategy(obj); ok {
			return id
		}
	}
	return ""
}

// {"message": {"body": {"mid": "..."}}}
func fromMessageBody(obj map[string]any) (string, bool) {
	msg, ok := obj["message"].(map[string]any)
	if !ok {
		return "", false
	}
	body, ok := msg["body"].(map[string]any)
	if !ok {
		return "", false
	}
	for _, key := range []string{"mid", "message_id", "id"} {
		if id, ok := scalarString(body[key]); ok {
			return id, true
		}
	}
	return "", false
}

func fromKey(key string) idStrategy {
	return func(obj map[string]any) (string, bool) {
		return scalarString(obj[key])
	}
}

func fromNested(key string) idStrategy {
	return func(obj map[string]any) (string, bool) {
		inner, ok := obj[key].(map[string]any)
		if !ok {
			return "", false
		}
		id := MessageID(inner)
		return id, id != ""
	}
}

// ScalarID renders a decoded JSON scalar id as a string. Numbers keep their
// decimal form; empty strings, objects and booleans are rejected.
func ScalarID(v any) (string, bool) {
	return scalarString(v)
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int:
		return strconv.Itoa(t), true
	default:
		return "", false
	}
}

// ExtractMessageID decodes a raw JSON object and extracts its message id.
func ExtractMessageID(data []byte) string {
	obj, err := decodeObject(data)
	if err != nil {
		return ""
	}
	return MessageID(obj)
}
