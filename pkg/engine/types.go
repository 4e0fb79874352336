// ABOUTME: View-level data model shared between the engine and the client core
// ABOUTME: Defines Node, search options/results and result pages

package engine

// ValueType classifies the JSON value a Node describes.
type ValueType string

const (
	ValueObject  ValueType = "object"
	ValueArray   ValueType = "array"
	ValueString  ValueType = "string"
	ValueNumber  ValueType = "number"
	ValueBoolean ValueType = "boolean"
	ValueNull    ValueType = "null"
)

// Node is a view-level descriptor of one value in the document.
type Node struct {
	Pointer     string // JSON Pointer to this value, unique within a document
	Key         string // property name or array index label, empty at the root
	ValueType   ValueType
	HasChildren bool
	ChildCount  int
	Preview     string // short human-readable rendering
}

// MatchType says which part of a node a search hit matched.
type MatchType string

const (
	MatchKey   MatchType = "key"
	MatchValue MatchType = "value"
	MatchPath  MatchType = "path"
)

// SearchOptions selects what is searched and how text is matched.
// The three target flags are independent; the matching mode flags are
// mutually exclusive when set through the Use* helpers (all false means
// plain case-insensitive substring matching).
type SearchOptions struct {
	SearchKeys   bool
	SearchValues bool
	SearchPaths  bool

	CaseSensitive bool
	WholeWord     bool
	Regex         bool
}

// HasTarget reports whether at least one search target is selected.
func (o SearchOptions) HasTarget() bool {
	return o.SearchKeys || o.SearchValues || o.SearchPaths
}

// UseCaseSensitive enables case-sensitive substring matching.
func (o *SearchOptions) UseCaseSensitive() {
	o.CaseSensitive = true
	o.WholeWord = false
	o.Regex = false
}

// UseWholeWord enables whole-word matching.
func (o *SearchOptions) UseWholeWord() {
	o.WholeWord = true
	o.CaseSensitive = false
	o.Regex = false
}

// UseRegex enables regular-expression matching.
func (o *SearchOptions) UseRegex() {
	o.Regex = true
	o.CaseSensitive = false
	o.WholeWord = false
}

// UsePlain resets to plain substring matching.
func (o *SearchOptions) UsePlain() {
	o.CaseSensitive = false
	o.WholeWord = false
	o.Regex = false
}

// SearchResult is one search hit.
type SearchResult struct {
	Node      Node
	MatchType MatchType
	MatchText string // the text that matched
	Context   string // optional, e.g. "in key: name"
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Results    []SearchResult
	TotalCount int
	HasMore    bool
}
