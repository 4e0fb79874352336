// ABOUTME: Match span computation and context windows for result display
// ABOUTME: Invalid regex degrades to no highlighting instead of failing render

package match

import (
	"unicode"
	"unicode/utf8"
)

// Span is one highlighted region of a display string, as byte offsets
// [Start, End) into the string it was computed for.
type Span struct {
	Start int
	End   int
}

// Spans returns the disjoint match regions of text in order. Overlapping
// candidates are resolved by taking the leftmost match and continuing
// after it, which is how regexp's FindAll family behaves. In whole-word
// mode each occurrence is kept only when its own boundaries check out, so
// adjacent occurrences like "foo foo" all highlight.
func (m *Matcher) Spans(text string) []Span {
	var spans []Span
	for _, idx := range m.re.FindAllStringIndex(text, -1) {
		if idx[1] <= idx[0] { // skip empty matches from patterns like a*
			continue
		}
		if m.wholeWord && !isWordBounded(text, idx[0], idx[1]) {
			continue
		}
		spans = append(spans, Span{Start: idx[0], End: idx[1]})
	}
	return spans
}

// isWordBounded reports whether text[start:end) is delimited by
// non-alphanumeric runes or the text edges on both sides.
func isWordBounded(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Highlight computes spans for text under query and mode. It never fails:
// an invalid pattern yields no spans, so a bad user regex degrades to an
// unhighlighted result rather than an error in the result list.
func Highlight(text, query string, mode Mode) []Span {
	m, err := New(query, mode)
	if err != nil {
		return nil
	}
	return m.Spans(text)
}

// Window is a clipped view of a long display string centered on its first
// match, with spans re-based onto the clipped text.
type Window struct {
	Text      string
	Spans     []Span
	Truncated bool // true when Text is a clipped view of the original
}

// ContextWindow clips text to roughly radius bytes either side of the
// first span, snapping to rune boundaries and prefixing/suffixing an
// ellipsis for the hidden parts. With no spans or a short text the
// original is returned untouched.
func ContextWindow(text string, spans []Span, radius int) Window {
	if len(spans) == 0 || len(text) <= 2*radius {
		return Window{Text: text, Spans: spans}
	}

	start := spans[0].Start - radius
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end := spans[0].End + radius
	if end > len(text) {
		end = len(text)
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	clipped := text[start:end]
	prefix := ""
	if start > 0 {
		prefix = "…"
	}
	suffix := ""
	if end < len(text) {
		suffix = "…"
	}

	shift := len(prefix) - start
	var kept []Span
	for _, s := range spans {
		if s.Start >= start && s.End <= end {
			kept = append(kept, Span{Start: s.Start + shift, End: s.End + shift})
		}
	}

	return Window{
		Text:      prefix + clipped + suffix,
		Spans:     kept,
		Truncated: start > 0 || end < len(text),
	}
}
