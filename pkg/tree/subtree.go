// ABOUTME: Recursive expand/collapse convenience operations
// ABOUTME: Breadth-first, loop-safe, tolerant of per-branch fetch failures

package tree

import (
	"context"
	"strings"
)

// subtreeFetchLimit is sized to enumerate one level in a single call.
const subtreeFetchLimit = 1000

// ExpandSubtree expands pointer and all of its container descendants,
// breadth-first. One failed branch does not abort its siblings; visited
// tracking guards against pointer cycles.
func (c *Cache) ExpandSubtree(ctx context.Context, pointer string) {
	if c.met != nil {
		c.met.SubtreeExpandsTotal.Inc()
	}
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	visited := make(map[string]struct{})
	queue := []string{pointer}
	for len(queue) > 0 {
		ptr := queue[0]
		queue = queue[1:]
		if _, seen := visited[ptr]; seen {
			continue
		}
		visited[ptr] = struct{}{}

		nodes, err := c.eng.FetchChildren(ctx, ptr, 0, subtreeFetchLimit)
		if err != nil {
			c.log.Warn().Str("pointer", ptr).Err(err).Msg("subtree branch fetch failed")
			continue
		}

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.expanded[ptr] = struct{}{}
		c.pages[ptr] = &ChildPage{
			Children:    nodes,
			LoadedCount: len(nodes),
			HasMore:     len(nodes) == subtreeFetchLimit,
		}
		c.mu.Unlock()

		for _, n := range nodes {
			if n.HasChildren {
				queue = append(queue, n.Pointer)
			}
		}
	}
}

// CollapseSubtree removes pointer and every expanded descendant from the
// expansion set. Cached pages are retained.
func (c *Cache) CollapseSubtree(pointer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := pointer + "/"
	for p := range c.expanded {
		if p == pointer || strings.HasPrefix(p, prefix) {
			delete(c.expanded, p)
		}
	}
}
