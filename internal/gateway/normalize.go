package gateway

import (
	"encoding/json"
	"regexp"
	"strings"
)

// trailingOperations finds the first "[{" through the last "}]" of a reply
var trailingOperations = regexp.MustCompile(`(?s)\[\{.*\}\]`)

// textFields are probed in order on object responses; the first non-empty
// string wins
var textFields = []string{"cleanedText", "output", "message", "text", "content", "response"}

// extractor turns one decoded response shape into a reply. ok reports
// whether the shape was recognised.
type extractor func(v any) (reply Result, ok bool)

var extractors = []extractor{
	fromString,
	fromObject,
}

// Normalize turns a raw webhook body into a Result. The remote contract is
// loose: the body may be empty, plain text, a JSON string, an object with one
// of several text fields, or an array wrapping any of those.
func Normalize(body []byte) Result {
	if len(body) == 0 {
		return Result{Success: true}
	}

	var candidate any
	if err := json.Unmarshal(body, &candidate); err != nil {
		candidate = string(body)
	} else if arr, ok := candidate.([]any); ok && len(arr) > 0 {
		candidate = arr[0]
	}

	for _, extract := range extractors {
		reply, ok := extract(candidate)
		if !ok {
			continue
		}
		reply.AIResponse = strings.TrimSpace(reply.AIResponse)
		if reply.AIResponse == "" {
			return Result{Success: true}
		}
		reply.Success = true
		return reply
	}
	return Result{Success: true}
}

func fromString(v any) (Result, bool) {
	s, ok := v.(string)
	if !ok {
		return Result{}, false
	}
	reply := Result{MessageType: defaultMessageType, Operations: []any{}}

	loc := trailingOperations.FindStringIndex(s)
	if loc == nil {
		reply.AIResponse = s
		return reply, true
	}
	reply.AIResponse = strings.TrimSpace(s[:loc[0]])
	var ops []any
	if err := json.Unmarshal([]byte(s[loc[0]:loc[1]]), &ops); err == nil {
		reply.Operations = ops
	}
	return reply, true
}

func fromObject(v any) (Result, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Result{}, false
	}
	for _, field := range textFields {
		text, ok := obj[field].(string)
		if !ok || text == "" {
			continue
		}
		reply := Result{
			AIResponse:  text,
			MessageType: defaultMessageType,
			Operations:  []any{},
		}
		if t, ok := obj["type"].(string); ok && t != "" {
			reply.MessageType = t
		}
		if ops, ok := obj["operations"].([]any); ok {
			reply.Operations = ops
		}
		return reply, true
	}
	return Result{}, false
}
