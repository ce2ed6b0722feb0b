// Package repair recovers JSON from chat-completion text.
//
// Models wrap JSON in Markdown fences or surround it with prose despite
// being told not to. Repair handles exactly those two cases: fences are
// stripped, the text is parsed as is, and failing that the span from the
// first '{' to the last '}' is parsed. It is not a recovering parser and
// never balances brackets.
package repair

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?i)```(?:json)?")

// StripFences removes every ``` and ```json marker and trims the result.
func StripFences(raw string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(raw, ""))
}

// candidates returns the texts worth parsing, in order.
func candidates(raw string) []string {
	cleaned := StripFences(raw)
	out := []string{cleaned}
	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start != -1 && end != -1 && start < end {
		if span := cleaned[start : end+1]; span != cleaned {
			out = append(out, span)
		}
	}
	return out
}

// Parse returns the decoded JSON value found in raw, or nil.
func Parse(raw string) any {
	for _, c := range candidates(raw) {
		var v any
		if err := json.Unmarshal([]byte(c), &v); err == nil {
			return v
		}
	}
	return nil
}

// Object is Parse restricted to JSON objects.
func Object(raw string) map[string]any {
	m, _ := Parse(raw).(map[string]any)
	return m
}

// Decode unmarshals the repaired text into T. ok is false when no candidate
// decodes.
func Decode[T any](raw string) (v T, ok bool) {
	for _, c := range candidates(raw) {
		var out T
		if err := json.Unmarshal([]byte(c), &out); err == nil {
			return out, true
		}
	}
	return v, false
}
