package schema

import (
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// extractJSON strips code fences and surrounding prose, keeping the region
// between the first '{' and the last '}'. Returns "" when no object is
// present at all.
func extractJSON(raw string) string {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 {
		return ""
	}
	if end <= start {
		// Truncated output: keep the tail and let the repair stage close it.
		return cleaned[start:]
	}
	return cleaned[start : end+1]
}

// repairJSON applies the jsonrepair library first and the local bounded
// transformations second. It returns candidate strings in preference order;
// the caller tries to decode each in turn.
func repairJSON(fragment string) []string {
	var candidates []string
	if fixed, err := jsonrepair.JSONRepair(fragment); err == nil && fixed != fragment {
		candidates = append(candidates, fixed)
	}
	if fallback := applyNamedRepairs(fragment); fallback != fragment {
		candidates = append(candidates, fallback)
	}
	return candidates
}

// applyNamedRepairs runs the fixed set of conservative transformations used
// when the repair library fails. Each one is independently unit-tested.
func applyNamedRepairs(fragment string) string {
	out := stripTrailingCommas(fragment)
	out = quoteBareKeys(out)
	out = closeUnbalancedBraces(out)
	return out
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// stripTrailingCommas removes commas directly before a closing brace or
// bracket, a malformation small local models produce constantly.
func stripTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

var bareKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)

// quoteBareKeys wraps unquoted object keys in double quotes.
func quoteBareKeys(s string) string {
	return bareKeyRe.ReplaceAllString(s, `$1"$2"$3`)
}

// closeUnbalancedBraces appends missing closing braces/brackets for output
// truncated mid-object. Strings and escapes are tracked so braces inside
// string values do not count.
func closeUnbalancedBraces(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
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
				stack = append(stack, '}')
			}
		case '[':
			if !inString {
				stack = append(stack, ']')
			}
		case '}', ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
