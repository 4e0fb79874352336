// ABOUTME: Engine boundary consumed by the client core
// ABOUTME: Request/response calls plus tagged progress and search-stream events

package engine

import "context"

// ProgressEvent reports open-document progress. Events are tagged with the
// file id of the open they belong to; consumers must drop events whose id
// no longer matches the active session.
type ProgressEvent struct {
	FileID     string
	ReadBytes  int64
	TotalBytes int64
	Percent    float64
	Done       bool
	Canceled   bool
}

// StreamEventKind discriminates search-stream events.
type StreamEventKind string

const (
	StreamBatch StreamEventKind = "batch"
	StreamDone  StreamEventKind = "done"
	StreamError StreamEventKind = "error"
)

// StreamEvent is one event of a streaming search, keyed by the engine-side
// search id. Batch events carry an increment of results; the done event
// carries the final total.
type StreamEvent struct {
	Kind       StreamEventKind
	ID         uint64
	Batch      []SearchResult // StreamBatch only
	TotalSoFar int            // StreamBatch only
	Total      int            // StreamDone only
	ElapsedMS  int64
	Err        string // StreamError only
}

// Engine is the external parser/indexer boundary. All calls are safe for
// concurrent use; blocking calls honor ctx cancellation on the client side
// while the engine itself may only support best-effort aborts.
type Engine interface {
	// OpenDocument parses the document at path and returns the first page
	// of root nodes. Progress events are delivered to onProgress (may be
	// nil) while parsing.
	OpenDocument(ctx context.Context, path string, onProgress func(ProgressEvent)) ([]Node, error)

	// CancelOpen requests a best-effort abort of an in-flight open.
	CancelOpen()

	// FetchChildren returns one page of children of the container at
	// pointer ("" for the document root), in document order. A page
	// shorter than limit means no more children exist.
	FetchChildren(ctx context.Context, pointer string, offset, limit int) ([]Node, error)

	// RunSearch runs a search and returns one page of results.
	RunSearch(ctx context.Context, query string, opts SearchOptions, offset, limit int) (*SearchResponse, error)

	// RunSearchStream runs a search delivering results incrementally to
	// emit, terminated by a done (or error) event. It returns the search
	// id the events are tagged with.
	RunSearchStream(ctx context.Context, query string, opts SearchOptions, emit func(StreamEvent)) (uint64, error)

	// GetNodeValue returns the raw JSON serialization of the value at
	// pointer.
	GetNodeValue(ctx context.Context, pointer string) (string, error)

	// SetNodeValue replaces a scalar value. The value type is preserved:
	// numbers must parse as numbers, booleans as true/false; null and
	// container values are rejected. Returns the rebuilt node.
	SetNodeValue(ctx context.Context, pointer, newValue string) (*Node, error)

	// SetSubtree replaces a container value with parsed JSON. The
	// container kind must be preserved (object stays object, array stays
	// array). Returns the rebuilt node.
	SetSubtree(ctx context.Context, pointer, newJSON string) (*Node, error)

	// ParseStringified replaces a string value holding embedded JSON with
	// the parsed object or array. Returns the rebuilt node.
	ParseStringified(ctx context.Context, pointer string) (*Node, error)
}
