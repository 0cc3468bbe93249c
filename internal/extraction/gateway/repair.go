package gateway

import (
	"encoding/json"
	"strings"

	"github.com/aman-ankur/labextract/pkg/errors"
)

// recoverJSON unmarshals raw into dest, repairing the payload in stages when
// a direct parse fails. Completion services wrap their JSON in prose and
// markdown fences, drop trailing commas, and truncate mid-object when the
// token budget runs out; each stage targets one of those failure shapes and
// runs only if the previous stages still do not parse.
//
// The repaired flag reports whether any stage was needed. The returned error
// carries ErrCodeJSONRecovery and means every stage was exhausted; dest is
// untouched in that case.
func recoverJSON(raw string, dest any) (repaired bool, err error) {
	if json.Unmarshal([]byte(raw), dest) == nil {
		return false, nil
	}

	// Stage 1: cut the outermost object out of surrounding prose or fences.
	candidate, ok := extractObject(raw)
	if !ok {
		return false, errors.New(errors.ErrCodeJSONRecovery, "response contains no JSON object")
	}
	if json.Unmarshal([]byte(candidate), dest) == nil {
		return true, nil
	}

	// Stage 2: trailing commas before a closing delimiter.
	candidate = stripTrailingCommas(candidate)
	if json.Unmarshal([]byte(candidate), dest) == nil {
		return true, nil
	}

	// Stage 3: close whatever a truncated response left open.
	candidate = closeDelimiters(candidate)
	if json.Unmarshal([]byte(candidate), dest) == nil {
		return true, nil
	}

	// Stage 4: closing delimiters can expose a trailing comma that was at
	// the very end of the truncated text, so strip and close once more.
	candidate = closeDelimiters(stripTrailingCommas(candidate))
	if json.Unmarshal([]byte(candidate), dest) == nil {
		return true, nil
	}

	return false, errors.New(errors.ErrCodeJSONRecovery, "response not recoverable after all repair stages")
}

// extractObject returns the substring starting at the first '{' and ending
// at its balanced closing '}'. The scan tracks string and escape state so
// braces inside values do not miscount. When the input ends before the
// object balances, the unbalanced tail is returned with ok still true; the
// later stages exist to close exactly that.
func extractObject(s string) (out string, ok bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return s[start:], true
}

// stripTrailingCommas removes commas that directly precede a closing '}' or
// ']', ignoring whitespace between them. Commas inside strings are kept.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case ',':
			j := i + 1
			for j < len(s) && isJSONSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// closeDelimiters appends the closers a truncated payload is missing: first
// the quote of an unterminated string, then ']' and '}' in the reverse order
// the delimiters were opened. A trailing backslash from a half-written
// escape is dropped so the appended quote is not swallowed.
func closeDelimiters(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		if escaped {
			s = s[:len(s)-1]
		}
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			s += "}"
		} else {
			s += "]"
		}
	}
	return s
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
