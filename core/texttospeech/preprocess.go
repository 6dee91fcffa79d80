package texttospeech

import (
	"regexp"
	"strings"
)

var stageDirectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`（[^）]*）`),
	regexp.MustCompile(`\([^)]*\)`),
	regexp.MustCompile(`\*[^*]*\*`),
}

// StripStageDirections removes parenthesised and asterisk-wrapped asides
// from a segment before synthesis, so stage directions like "(laughs)"
// are shown but never spoken. The result may be empty.
func StripStageDirections(text string) string {
	for _, pattern := range stageDirectionPatterns {
		text = pattern.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}
