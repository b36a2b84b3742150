// Package decode turns free-form backend text into structured values.
//
// Backends wrap JSON in code fences, prefix it with prose or return
// something else entirely. Nothing in this package returns an error or
// panics; callers branch on Result.OK instead.
package decode

import (
	"encoding/json"
	"strings"
)

// maxCandidates bounds how many embedded JSON starts are tried in prose.
const maxCandidates = 16

// Result is the outcome of decoding. When OK is false, Raw holds the input
// and Reason says what went wrong.
type Result[T any] struct {
	Value  T
	OK     bool
	Raw    string
	Reason string
}

// Malformed reports whether decoding failed.
func (r Result[T]) Malformed() bool {
	return !r.OK
}

type validator interface {
	Validate() error
}

// StripFences removes a surrounding markdown code fence (with or without a
// language tag) and trims whitespace.
func StripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimLeft(trimmed, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		trimmed = strings.TrimSpace(trimmed)
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}

// Into decodes raw into T. If the stripped text is not valid JSON, the
// first balanced object or array embedded in it that decodes is used. If T
// implements Validate() error, a failing validation yields a malformed
// result.
func Into[T any](raw string) Result[T] {
	text := StripFences(raw)
	if text == "" {
		return Result[T]{Raw: raw, Reason: "empty response"}
	}

	var val T
	err := json.Unmarshal([]byte(text), &val)
	if err != nil {
		found := false
		for _, candidate := range embedded(text) {
			var v T
			if json.Unmarshal([]byte(candidate), &v) == nil {
				val, found = v, true
				break
			}
		}
		if !found {
			return Result[T]{Raw: raw, Reason: "invalid JSON: " + err.Error()}
		}
	}

	return validated(val, raw)
}

// Strict decodes raw into T like Into, but only the whole text after fence
// stripping is considered. JSON embedded in prose, or wrapped in another
// value, is malformed.
func Strict[T any](raw string) Result[T] {
	text := StripFences(raw)
	if text == "" {
		return Result[T]{Raw: raw, Reason: "empty response"}
	}
	var val T
	if err := json.Unmarshal([]byte(text), &val); err != nil {
		return Result[T]{Raw: raw, Reason: "invalid JSON: " + err.Error()}
	}
	return validated(val, raw)
}

func validated[T any](val T, raw string) Result[T] {
	if v, ok := any(&val).(validator); ok {
		if verr := v.Validate(); verr != nil {
			return Result[T]{Raw: raw, Reason: "validation failed: " + verr.Error()}
		}
	}
	return Result[T]{Value: val, OK: true, Raw: raw}
}

// Value decodes raw into a generic JSON value. Anything that does not decode
// yields an empty object.
func Value(raw string) any {
	res := Into[any](raw)
	if !res.OK || res.Value == nil {
		return map[string]any{}
	}
	return res.Value
}

// embedded returns balanced JSON objects and arrays found in text, in order
// of their starting position.
func embedded(text string) []string {
	var out []string
	for i := 0; i < len(text) && len(out) < maxCandidates; i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		if s, ok := balanced(text[i:]); ok {
			out = append(out, s)
		}
	}
	return out
}

// balanced returns the prefix of text that closes the bracket at text[0],
// skipping brackets inside strings.
func balanced(text string) (string, bool) {
	var stack []byte
	inString := false
	escape := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return text[:i+1], true
			}
		}
	}
	return "", false
}
