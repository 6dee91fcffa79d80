package texttospeech

import "strings"

// sentenceDelimiters are the punctuation characters (ASCII and fullwidth)
// that may end a speakable segment.
var sentenceDelimiters = map[rune]struct{}{
	'.': {}, '。': {},
	'!': {}, '！': {},
	'?': {}, '？': {},
	',': {}, '，': {},
	';': {}, '；': {},
	':': {}, '：': {},
	'~': {},
}

func isDelimiter(r rune) bool {
	_, ok := sentenceDelimiters[r]
	return ok
}

// Segmenter splits a token stream into speakable segments on punctuation
// boundaries. A cut happens after a delimiter only once at least one more
// character has arrived, so a delimiter that is currently the last
// character seen never splits a sentence prematurely mid-stream.
//
// Joining every returned segment plus the final Flush reproduces the
// input stream exactly.
type Segmenter struct {
	pending []rune
}

func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Push appends streamed text and returns any segments completed by it.
func (s *Segmenter) Push(text string) []string {
	s.pending = append(s.pending, []rune(text)...)

	var segments []string
	start := 0
	for i := 1; i < len(s.pending); i++ {
		if !isDelimiter(s.pending[i-1]) || isDelimiter(s.pending[i]) {
			continue
		}
		if candidate := string(s.pending[start:i]); strings.TrimSpace(candidate) != "" {
			segments = append(segments, candidate)
			start = i
		}
	}

	if start > 0 {
		s.pending = append([]rune(nil), s.pending[start:]...)
	}
	return segments
}

// Flush returns whatever remains buffered, regardless of punctuation, and
// resets the segmenter. The remainder may be empty.
func (s *Segmenter) Flush() string {
	remainder := string(s.pending)
	s.pending = nil
	return remainder
}

// Pending reports whether undelivered text is buffered.
func (s *Segmenter) Pending() bool {
	return len(s.pending) > 0
}
