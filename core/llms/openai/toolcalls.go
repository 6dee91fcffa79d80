package openai

import "strings"

// toolCallAccumulator assembles one tool invocation from the fragments an
// LLM stream spreads across chunks. Name fragments are deduplicated (some
// backends resend the full name with each chunk), argument fragments are
// concatenated verbatim.
type toolCallAccumulator struct {
	id        string
	name      string
	arguments strings.Builder
}

func (a *toolCallAccumulator) add(delta toolCallDelta) {
	if a.id == "" {
		a.id = delta.ID
	}
	if name := delta.Function.Name; name != "" && !strings.Contains(a.name, name) {
		a.name += name
	}
	a.arguments.WriteString(delta.Function.Arguments)
}

func (a *toolCallAccumulator) active() bool {
	return a.name != ""
}

func (a *toolCallAccumulator) argumentsJSON() string {
	return extractFirstJSONObject(strings.TrimSpace(a.arguments.String()))
}

// extractFirstJSONObject returns the first balanced-brace object in s,
// ignoring anything after it. Streams occasionally concatenate several
// argument objects; only the first is meaningful.
func extractFirstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
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
				return s[start : i+1]
			}
		}
	}

	return s
}
