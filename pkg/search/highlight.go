// ABOUTME: Result highlighting under the session's matching semantics
// ABOUTME: Long scalar previews are clipped to a window around the match

package search

import (
	"github.com/MartinPtrl/snappy-jason/pkg/engine"
	"github.com/MartinPtrl/snappy-jason/pkg/match"
)

// previewRadius bounds how much context is shown either side of the first
// match in a long scalar preview.
const previewRadius = 40

// Highlight computes the match spans of text under the search options the
// results were produced with. An invalid regex yields no spans instead of
// failing the render.
func Highlight(text, query string, opts engine.SearchOptions) []match.Span {
	return match.Highlight(text, query, matchMode(opts))
}

// PreviewWindow returns the clipped, highlighted view of a result's match
// text: long values show a context window around the first match, with
// Truncated signalling that a reveal-full control applies. RevealFull
// gives the unclipped text with the same spans.
func PreviewWindow(r engine.SearchResult, query string, opts engine.SearchOptions) match.Window {
	spans := Highlight(r.MatchText, query, opts)
	return match.ContextWindow(r.MatchText, spans, previewRadius)
}

// RevealFull returns the full match text with highlight spans, for the
// explicit expand control on a clipped preview.
func RevealFull(r engine.SearchResult, query string, opts engine.SearchOptions) match.Window {
	return match.Window{
		Text:  r.MatchText,
		Spans: Highlight(r.MatchText, query, opts),
	}
}
