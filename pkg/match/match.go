// ABOUTME: Text matching shared by search execution and result highlighting
// ABOUTME: Compiles one pattern per matching mode (plain, case, word, regex)

package match

import (
	"fmt"
	"regexp"
)

// Matcher evaluates the active matching mode against candidate text. The
// same matcher semantics drive both engine-side searching and client-side
// highlighting, so a result is always highlighted the way it was found.
type Matcher struct {
	re        *regexp.Regexp
	wholeWord bool // occurrences must sit on non-alphanumeric boundaries
}

// Mode mirrors the mutually exclusive matching flags of a search.
type Mode struct {
	CaseSensitive bool
	WholeWord     bool
	Regex         bool
}

// New compiles a matcher for query under mode. An invalid user regex is
// returned as an error; callers decide whether that blocks the search or
// degrades highlighting.
func New(query string, mode Mode) (*Matcher, error) {
	switch {
	case mode.Regex:
		re, err := regexp.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %w", err)
		}
		return &Matcher{re: re}, nil
	case mode.WholeWord:
		// The pattern finds candidate occurrences; boundaries are checked
		// per occurrence in Spans. Encoding both boundaries into the
		// pattern would consume the separator between adjacent words and
		// skip the next occurrence.
		pat := regexp.QuoteMeta(query)
		if !mode.CaseSensitive {
			pat = `(?i)` + pat
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, err
		}
		return &Matcher{re: re, wholeWord: true}, nil
	default:
		pat := regexp.QuoteMeta(query)
		if !mode.CaseSensitive {
			pat = `(?i)` + pat
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, err
		}
		return &Matcher{re: re}, nil
	}
}

// Matches reports whether text matches.
func (m *Matcher) Matches(text string) bool {
	if m.wholeWord {
		return len(m.Spans(text)) > 0
	}
	return m.re.MatchString(text)
}
