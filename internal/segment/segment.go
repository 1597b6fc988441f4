// Package segment splits long text into provider-sized pieces.
//
// Splitting prefers sentence boundaries, falls back to word boundaries for
// sentences that are too long on their own, and only cuts inside a word when
// a single word exceeds the limit. Lengths are counted in Unicode code points.
// All functions are pure and deterministic.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChars is the per-request character ceiling of the supported
// speech providers.
const DefaultMaxChars = 5000

// Split returns the ordered segments of text, none longer than limit code
// points. Text that already fits is returned as a single, untouched segment.
// Blank text yields no segments. A non-positive limit means [DefaultMaxChars].
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxChars
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	a := accumulator{limit: limit}
	for _, sentence := range Sentences(text) {
		n := utf8.RuneCountInString(sentence)
		if n <= limit {
			a.add(sentence, n)
			continue
		}
		for _, word := range strings.Fields(sentence) {
			a.addWord(word)
		}
	}
	a.flush()
	return a.out
}

// accumulator greedily packs pieces, joined by single spaces, into segments.
type accumulator struct {
	limit  int
	out    []string
	cur    strings.Builder
	curLen int
}

func (a *accumulator) fits(n int) bool {
	if a.curLen == 0 {
		return n <= a.limit
	}
	return a.curLen+1+n <= a.limit
}

func (a *accumulator) add(piece string, n int) {
	if !a.fits(n) {
		a.flush()
	}
	if a.curLen > 0 {
		a.cur.WriteByte(' ')
		a.curLen++
	}
	a.cur.WriteString(piece)
	a.curLen += n
}

// addWord adds a single word, cutting it into limit-sized pieces when it cannot
// fit any segment. The last piece stays open for following words.
func (a *accumulator) addWord(word string) {
	n := utf8.RuneCountInString(word)
	if n <= a.limit {
		a.add(word, n)
		return
	}
	a.flush()
	for n > a.limit {
		head, rest := cutRunes(word, a.limit)
		a.out = append(a.out, head)
		word, n = rest, n-a.limit
	}
	a.add(word, n)
}

func (a *accumulator) flush() {
	if s := strings.TrimSpace(a.cur.String()); s != "" {
		a.out = append(a.out, s)
	}
	a.cur.Reset()
	a.curLen = 0
}

// cutRunes splits s after the first n code points.
func cutRunes(s string, n int) (string, string) {
	i := 0
	for n > 0 && i < len(s) {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n--
	}
	return s[:i], s[i:]
}

// Sentences splits text into trimmed, non-empty sentences. A sentence ends
// after a run of '.', '!' or '?' followed by whitespace or the end of the
// text, or after an ideographic terminator ('。', '！', '？'). The terminator
// run stays with its sentence. Trailing text without a terminator forms the
// last sentence.
func Sentences(text string) []string {
	var out []string
	emit := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case isFullWidthTerminator(r):
			j := skipTerminators(text, i+size)
			emit(text[start:j])
			start, i = j, j
		case isTerminator(r):
			j := skipTerminators(text, i+size)
			if j == len(text) {
				emit(text[start:j])
				start = j
			} else if next, _ := utf8.DecodeRuneInString(text[j:]); unicode.IsSpace(next) {
				emit(text[start:j])
				start = j
			}
			i = j
		default:
			i += size
		}
	}
	emit(text[start:])
	return out
}

func skipTerminators(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isTerminator(r) && !isFullWidthTerminator(r) {
			break
		}
		i += size
	}
	return i
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isFullWidthTerminator(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}
