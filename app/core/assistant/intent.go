package assistant

import (
	"github.com/tidwall/gjson"
)

const (
	IntentConversation = "CONVERSATION_INTENT"

	ActionUnknown     = "UNKNOWN"
	ActionGeneralChat = "GENERAL_CHAT"
)

const fallbackMessage = "I'm not sure I understood that. Could you rephrase?"

// Intent is the structured decision extracted from one model response. Data
// holds the raw JSON object so the executor can coerce fields lazily.
type Intent struct {
	Intent  string
	Action  string
	Message string
	Data    string
}

func fallbackIntent() Intent {
	return Intent{
		Intent:  IntentConversation,
		Action:  ActionUnknown,
		Message: fallbackMessage,
		Data:    "{}",
	}
}

// ParseIntent extracts the intent object from raw model output. The model
// may wrap the JSON in conversational filler; the first balanced brace span
// is taken. Anything malformed degrades to the fixed fallback, never an
// error.
func ParseIntent(raw string) Intent {
	span, ok := firstJSONObject(raw)
	if !ok || !gjson.Valid(span) {
		return fallbackIntent()
	}

	parsed := gjson.Parse(span)
	if !parsed.IsObject() {
		return fallbackIntent()
	}
	intent := parsed.Get("intent")
	action := parsed.Get("action")
	message := parsed.Get("message")
	if intent.Type != gjson.String || action.Type != gjson.String || message.Type != gjson.String {
		return fallbackIntent()
	}

	data := "{}"
	if d := parsed.Get("data"); d.IsObject() {
		data = d.Raw
	}
	return Intent{
		Intent:  intent.String(),
		Action:  action.String(),
		Message: message.String(),
		Data:    data,
	}
}

// ConversationalOnly reports whether the intent carries no action to
// execute.
func (it Intent) ConversationalOnly() bool {
	return it.Intent == IntentConversation || it.Action == ActionUnknown || it.Action == ActionGeneralChat
}

// firstJSONObject returns the first balanced {...} span in s, skipping
// braces inside JSON string literals.
func firstJSONObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if start < 0 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}
