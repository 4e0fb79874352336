// ABOUTME: Node cache and expansion tracker for lazy tree navigation
// ABOUTME: Per-pointer child pages with single-flight fetch and pagination

package tree

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/MartinPtrl/snappy-jason/internal/metrics"
	"github.com/MartinPtrl/snappy-jason/pkg/engine"
)

// PageSize is the fixed child page size.
const PageSize = 100

// ChildPage is the cached, incrementally loaded child list of one pointer.
type ChildPage struct {
	Children    []engine.Node
	LoadedCount int
	HasMore     bool
	Loading     bool
}

// Cache answers what children are currently visible for a pointer and
// drives their lazy, paginated retrieval. All methods are safe for
// concurrent use; the per-pointer Loading flag makes overlapping fetches
// for the same pointer no-ops.
type Cache struct {
	mu       sync.Mutex
	eng      engine.Engine
	pages    map[string]*ChildPage
	expanded map[string]struct{}
	gen      uint64 // bumped on Reset; in-flight fetches from older gens are dropped
	pageSize int

	log zerolog.Logger
	met *metrics.Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// WithMetrics attaches metrics collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.met = m }
}

// WithPageSize overrides the default page size.
func WithPageSize(n int) Option {
	return func(c *Cache) { c.pageSize = n }
}

// New creates an empty cache backed by eng.
func New(eng engine.Engine, opts ...Option) *Cache {
	c := &Cache{
		eng:      eng,
		pages:    make(map[string]*ChildPage),
		expanded: make(map[string]struct{}),
		pageSize: PageSize,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SeedRoots installs the root page returned by a document open. The root
// pointer "" is always expanded.
func (c *Cache) SeedRoots(nodes []engine.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expanded[""] = struct{}{}
	c.pages[""] = &ChildPage{
		Children:    append([]engine.Node(nil), nodes...),
		LoadedCount: len(nodes),
		HasMore:     len(nodes) == c.pageSize,
	}
}

// IsExpanded reports whether pointer is in the expansion set.
func (c *Cache) IsExpanded(pointer string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.expanded[pointer]
	return ok
}

// Page returns a snapshot of the cached page for pointer.
func (c *Cache) Page(pointer string) (ChildPage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pages[pointer]
	if !ok {
		return ChildPage{}, false
	}
	return ChildPage{
		Children:    append([]engine.Node(nil), p.Children...),
		LoadedCount: p.LoadedCount,
		HasMore:     p.HasMore,
		Loading:     p.Loading,
	}, true
}

// Children returns a snapshot of the loaded children of pointer.
func (c *Cache) Children(pointer string) []engine.Node {
	page, ok := c.Page(pointer)
	if !ok {
		return nil
	}
	return page.Children
}

// Toggle flips the expansion state of pointer. Collapsing discards no
// data; expanding a pointer with no cached page triggers the first fetch.
func (c *Cache) Toggle(ctx context.Context, pointer string) error {
	c.mu.Lock()
	if _, ok := c.expanded[pointer]; ok {
		delete(c.expanded, pointer)
		c.mu.Unlock()
		return nil
	}
	c.expanded[pointer] = struct{}{}
	_, havePage := c.pages[pointer]
	c.mu.Unlock()
	if havePage {
		return nil
	}
	return c.FetchPage(ctx, pointer, 0)
}

// FetchPage loads one page of children for pointer. It is a no-op while a
// fetch for the same pointer is in flight. Offset 0 replaces the cached
// children (full refresh); a positive offset appends. HasMore is derived
// from whether the returned page was full-sized. A failed fetch leaves the
// prior cache intact.
func (c *Cache) FetchPage(ctx context.Context, pointer string, offset int) error {
	c.mu.Lock()
	p := c.pages[pointer]
	if p == nil {
		p = &ChildPage{}
		c.pages[pointer] = p
	}
	if p.Loading {
		if c.met != nil {
			c.met.FetchGuardHitsTotal.Inc()
		}
		c.mu.Unlock()
		return nil
	}
	p.Loading = true
	gen := c.gen
	limit := c.pageSize
	c.mu.Unlock()

	if c.met != nil {
		c.met.PageFetchesTotal.Inc()
	}
	nodes, err := c.eng.FetchChildren(ctx, pointer, offset, limit)

	c.mu.Lock()
	defer c.mu.Unlock()
	p.Loading = false
	if gen != c.gen || c.pages[pointer] != p {
		// The session moved on while the fetch was in flight.
		if c.met != nil {
			c.met.StaleDropsTotal.Inc()
		}
		return nil
	}
	if err != nil {
		if c.met != nil {
			c.met.FetchFailuresTotal.Inc()
		}
		c.log.Warn().Str("pointer", pointer).Int("offset", offset).Err(err).Msg("child page fetch failed")
		return fmt.Errorf("fetch children of %q: %w", pointer, err)
	}
	if offset == 0 {
		p.Children = append([]engine.Node(nil), nodes...)
	} else {
		p.Children = append(p.Children, nodes...)
	}
	p.LoadedCount = len(p.Children)
	p.HasMore = len(nodes) == limit
	c.log.Debug().
		Str("pointer", pointer).
		Int("offset", offset).
		Int("loaded", p.LoadedCount).
		Bool("has_more", p.HasMore).
		Msg("child page loaded")
	return nil
}

// OnScrollNearEnd is called when the pagination sentinel for a pointer's
// children becomes visible. It fetches the next page iff more data may
// exist and no fetch is in flight.
func (c *Cache) OnScrollNearEnd(ctx context.Context, pointer string) error {
	c.mu.Lock()
	p := c.pages[pointer]
	if p == nil || !p.HasMore || p.Loading {
		c.mu.Unlock()
		return nil
	}
	offset := p.LoadedCount
	c.mu.Unlock()
	return c.FetchPage(ctx, pointer, offset)
}

// ApplyEdit patches the display fields of an edited node in its parent's
// cached page and, when the edited pointer is itself expanded, refetches
// its first page since a subtree replacement invalidates cached children.
func (c *Cache) ApplyEdit(ctx context.Context, node engine.Node) error {
	c.mu.Lock()
	if node.Pointer != "" {
		if p := c.pages[parentPointer(node.Pointer)]; p != nil {
			for i := range p.Children {
				if p.Children[i].Pointer == node.Pointer {
					p.Children[i].ValueType = node.ValueType
					p.Children[i].HasChildren = node.HasChildren
					p.Children[i].ChildCount = node.ChildCount
					p.Children[i].Preview = node.Preview
					break
				}
			}
		}
	}
	_, isExpanded := c.expanded[node.Pointer]
	c.mu.Unlock()
	if isExpanded {
		return c.FetchPage(ctx, node.Pointer, 0)
	}
	return nil
}

// Reset discards all cached pages and the expansion set. In-flight fetches
// from before the reset are dropped when they resolve.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.pages = make(map[string]*ChildPage)
	c.expanded = make(map[string]struct{})
}

func parentPointer(pointer string) string {
	idx := strings.LastIndex(pointer, "/")
	if idx < 0 {
		return ""
	}
	return pointer[:idx]
}
