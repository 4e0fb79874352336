// ABOUTME: Document session controller: open/replace/unload/cancel
// ABOUTME: Each open builds a fresh session owning tree cache and search

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MartinPtrl/snappy-jason/internal/logger"
	"github.com/MartinPtrl/snappy-jason/internal/metrics"
	"github.com/MartinPtrl/snappy-jason/pkg/config"
	"github.com/MartinPtrl/snappy-jason/pkg/engine"
	"github.com/MartinPtrl/snappy-jason/pkg/search"
	"github.com/MartinPtrl/snappy-jason/pkg/tree"
)

// ErrSuperseded indicates an open that finished after a newer open,
// unload or cancel replaced it. Not user-visible.
var ErrSuperseded = errors.New("session: open superseded")

// ErrNoStore indicates a last-opened operation without a config store.
var ErrNoStore = errors.New("session: no config store")

// State is the controller's document lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateOpening State = "opening"
	StateReady   State = "ready"
)

// Session bundles the per-document state: the expansion/page cache and the
// search session. It is constructed on open and discarded whole on
// unload or replace, so no state leaks across documents.
type Session struct {
	Path   string
	Tree   *tree.Cache
	Search *search.Orchestrator

	eng engine.Engine
}

// EditValue replaces the scalar at pointer with the parsed JSON value and
// patches the tree cache with the node the engine returns, so the visible
// tree reflects the edit without a reopen.
func (s *Session) EditValue(ctx context.Context, pointer, newValue string) (*engine.Node, error) {
	node, err := s.eng.SetNodeValue(ctx, pointer, newValue)
	if err != nil {
		return nil, err
	}
	if err := s.Tree.ApplyEdit(ctx, *node); err != nil {
		return nil, err
	}
	return node, nil
}

// EditSubtree replaces the container at pointer wholesale and patches the
// tree cache with the returned node.
func (s *Session) EditSubtree(ctx context.Context, pointer, newJSON string) (*engine.Node, error) {
	node, err := s.eng.SetSubtree(ctx, pointer, newJSON)
	if err != nil {
		return nil, err
	}
	if err := s.Tree.ApplyEdit(ctx, *node); err != nil {
		return nil, err
	}
	return node, nil
}

// ParseStringified re-parses a stringified JSON leaf into a real subtree
// and patches the tree cache with the result.
func (s *Session) ParseStringified(ctx context.Context, pointer string) (*engine.Node, error) {
	node, err := s.eng.ParseStringified(ctx, pointer)
	if err != nil {
		return nil, err
	}
	if err := s.Tree.ApplyEdit(ctx, *node); err != nil {
		return nil, err
	}
	return node, nil
}

// Controller owns which document is open and mediates transitions. Each
// transition bumps a generation token; async work from an older
// generation is ignored when it resolves.
type Controller struct {
	mu sync.Mutex

	eng engine.Engine
	cfg config.Store

	gen      uint64
	state    State
	current  *Session
	progress engine.ProgressEvent

	onProgress func(engine.ProgressEvent)
	treeOpts   []tree.Option
	searchOpts []search.Option

	log *logger.Logger
	met *metrics.Metrics
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics attaches metrics collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.met = m }
}

// WithConfigStore enables last-opened persistence.
func WithConfigStore(cfg config.Store) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// WithOnProgress registers a hook for progress events of the active open.
func WithOnProgress(fn func(engine.ProgressEvent)) Option {
	return func(c *Controller) { c.onProgress = fn }
}

// WithTreeOptions passes options to each session's tree cache.
func WithTreeOptions(opts ...tree.Option) Option {
	return func(c *Controller) { c.treeOpts = opts }
}

// WithSearchOptions passes options to each session's search orchestrator.
func WithSearchOptions(opts ...search.Option) Option {
	return func(c *Controller) { c.searchOpts = opts }
}

// New creates an idle controller backed by eng.
func New(eng engine.Engine, opts ...Option) *Controller {
	c := &Controller{
		eng:   eng,
		state: StateIdle,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the active session, or nil when no document is open.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Progress returns the latest progress event of the active open.
func (c *Controller) Progress() engine.ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Open opens (or replaces with) the document at path. The previous
// session is discarded before the engine call so no consumer can observe
// mixed state; if a newer transition happens while the open is in flight
// the result is dropped and ErrSuperseded returned.
func (c *Controller) Open(ctx context.Context, path string) (*Session, error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state = StateOpening
	c.current = nil
	c.progress = engine.ProgressEvent{FileID: path}
	c.mu.Unlock()

	start := time.Now()
	roots, err := c.eng.OpenDocument(ctx, path, func(ev engine.ProgressEvent) {
		c.handleProgress(gen, ev)
	})

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if c.met != nil {
			c.met.StaleDropsTotal.Inc()
		}
		return nil, ErrSuperseded
	}
	if err != nil {
		c.state = StateIdle
		c.mu.Unlock()
		if c.met != nil {
			c.met.DocumentOpensTotal.WithLabelValues("error").Inc()
		}
		c.log.LogDocumentOpen(path, time.Since(start), 0, err)
		return nil, fmt.Errorf("open document %s: %w", path, err)
	}

	sess := &Session{
		Path:   path,
		Tree:   tree.New(c.eng, c.treeOpts...),
		Search: search.New(c.eng, c.searchOpts...),
		eng:    c.eng,
	}
	sess.Tree.SeedRoots(roots)
	c.current = sess
	c.state = StateReady
	c.mu.Unlock()

	if c.met != nil {
		c.met.DocumentOpensTotal.WithLabelValues("success").Inc()
	}
	c.log.LogDocumentOpen(path, time.Since(start), len(roots), nil)

	if c.cfg != nil {
		if err := c.cfg.SaveLastOpened(path); err != nil {
			c.log.Warn("saving last-opened path failed").Err(err).Send()
		}
	}
	return sess, nil
}

// ReopenLast opens the document recorded by the config store.
func (c *Controller) ReopenLast(ctx context.Context) (*Session, error) {
	if c.cfg == nil {
		return nil, ErrNoStore
	}
	path, err := c.cfg.LoadLastOpened()
	if err != nil {
		return nil, err
	}
	return c.Open(ctx, path)
}

// Cancel aborts an in-flight open. The engine abort is best-effort; local
// state is reset immediately so the user sees an idle surface without
// waiting for engine acknowledgment.
func (c *Controller) Cancel() {
	c.eng.CancelOpen()
	c.reset("open canceled")
}

// Unload tears down the current session.
func (c *Controller) Unload() {
	c.reset("document unloaded")
}

func (c *Controller) reset(msg string) {
	c.mu.Lock()
	c.gen++
	c.state = StateIdle
	var path string
	if c.current != nil {
		path = c.current.Path
		c.current.Tree.Reset()
		c.current.Search.Clear()
	}
	c.current = nil
	c.progress = engine.ProgressEvent{}
	c.mu.Unlock()

	if c.cfg != nil {
		if err := c.cfg.ClearLastOpened(); err != nil {
			c.log.Warn("clearing last-opened path failed").Err(err).Send()
		}
	}
	if path != "" {
		c.log.LogDocumentUnload(path)
		return
	}
	c.log.Info(msg).Send()
}

// handleProgress records a progress event, dropping events tagged for a
// superseded open.
func (c *Controller) handleProgress(gen uint64, ev engine.ProgressEvent) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if c.met != nil {
			c.met.StaleDropsTotal.Inc()
		}
		return
	}
	c.progress = ev
	c.mu.Unlock()
	if c.onProgress != nil {
		c.onProgress(ev)
	}
}
