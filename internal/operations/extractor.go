// Package operations finds executable ad-platform instructions embedded in
// assistant replies.
//
// Replies are prose that may carry one or more JSON fragments. Discovery is
// regex based and only yields candidates; validity is decided by decoding
// each candidate with encoding/json and checking its shape.
package operations

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// Operation is a single instruction for the execution service
type Operation struct {
	Method   string         `json:"method"`
	Endpoint string         `json:"endpoint"`
	Params   map[string]any `json:"params,omitempty"`
}

// Key identifies an operation for de-duplication
func (o Operation) Key() string {
	return o.Method + " " + o.Endpoint
}

var validMethods = map[string]struct{}{
	"GET":    {},
	"POST":   {},
	"PUT":    {},
	"PATCH":  {},
	"DELETE": {},
}

var (
	endpointPattern   = regexp.MustCompile(`^/\d+`)
	arrayCandidates   = regexp.MustCompile(`\[\s*\{[\s\S]*?\}\s*\]`)
	objectCandidates  = regexp.MustCompile(`\{[\s\S]*?"method"[\s\S]*?"endpoint"[\s\S]*?\}`)
	whitespaceRun     = regexp.MustCompile(`\s+`)
	escapedLineBreaks = strings.NewReplacer(`\n`, " ", "\n", " ", "\r", " ", "\t", " ")
)

// Extract returns every valid operation in text in first-seen order with no
// two operations sharing a method and endpoint. Array-shaped fragments are
// preferred; standalone objects are consulted only when no array produced
// an operation. Malformed fragments are skipped.
func Extract(text string) []Operation {
	if text == "" {
		return nil
	}

	var ops []Operation
	seen := make(map[string]struct{})
	add := func(op Operation) {
		if _, dup := seen[op.Key()]; dup {
			return
		}
		seen[op.Key()] = struct{}{}
		ops = append(ops, op)
	}

	for _, candidate := range arrayCandidates.FindAllString(text, -1) {
		items, ok := decodeArray(candidate)
		if !ok {
			continue
		}
		for _, item := range items {
			if op, ok := parse(item); ok {
				add(op)
			}
		}
	}

	if len(ops) > 0 {
		return ops
	}

	for _, candidate := range objectCandidates.FindAllString(text, -1) {
		if op, ok := parse(json.RawMessage(clean(candidate))); ok {
			add(op)
		}
	}

	return ops
}

// HasExecutable reports whether text contains at least one valid operation.
// It stops at the first hit.
func HasExecutable(text string) bool {
	if text == "" {
		return false
	}

	for _, candidate := range arrayCandidates.FindAllString(text, -1) {
		items, ok := decodeArray(candidate)
		if !ok {
			continue
		}
		for _, item := range items {
			if _, ok := parse(item); ok {
				return true
			}
		}
	}

	for _, candidate := range objectCandidates.FindAllString(text, -1) {
		if _, ok := parse(json.RawMessage(clean(candidate))); ok {
			return true
		}
	}

	return false
}

func decodeArray(candidate string) ([]json.RawMessage, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(clean(candidate)), &items); err != nil {
		return nil, false
	}
	return items, true
}

// clean flattens line breaks, tabs and whitespace runs into single spaces.
// Literal backslash-n sequences are flattened too since replies often carry
// double-escaped JSON.
func clean(s string) string {
	s = escapedLineBreaks.Replace(s)
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func parse(raw json.RawMessage) (Operation, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Operation{}, false
	}

	var method, endpoint string
	if err := json.Unmarshal(fields["method"], &method); err != nil {
		return Operation{}, false
	}
	method = strings.ToUpper(method)
	if _, ok := validMethods[method]; !ok {
		return Operation{}, false
	}

	if err := json.Unmarshal(fields["endpoint"], &endpoint); err != nil || !endpointPattern.MatchString(endpoint) {
		return Operation{}, false
	}

	op := Operation{Method: method, Endpoint: endpoint}

	if rawParams, present := fields["params"]; present {
		trimmed := bytes.TrimSpace(rawParams)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return Operation{}, false
		}
		if err := json.Unmarshal(trimmed, &op.Params); err != nil {
			return Operation{}, false
		}
	}

	return op, true
}
