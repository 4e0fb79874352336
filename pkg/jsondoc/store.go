// ABOUTME: In-process engine implementation over fully parsed JSON documents
// ABOUTME: Owns the open-document registry, progress reporting and edits

package jsondoc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/MartinPtrl/snappy-jason/internal/logger"
	"github.com/MartinPtrl/snappy-jason/internal/metrics"
	"github.com/MartinPtrl/snappy-jason/pkg/engine"
)

const (
	// RootPageSize is the page size used for the first root page of an open.
	RootPageSize = 100

	// Parsed documents stay in the registry this long after last use.
	docRetention     = time.Hour
	docSweepInterval = 10 * time.Minute
	progressInterval = 50 * time.Millisecond
	streamBatchSize  = 10
)

// Store implements engine.Engine over parsed JSON documents. One document
// is current at a time; recently opened documents stay in a registry so
// switching back does not reparse.
type Store struct {
	mu     sync.RWMutex
	root   any
	fileID string

	docs       *cache.Cache
	cancelOpen atomic.Bool
	searchID   atomic.Uint64

	log *logger.Logger
	met *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithMetrics attaches metrics collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.met = m }
}

var _ engine.Engine = (*Store)(nil)

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		docs: cache.New(docRetention, docSweepInterval),
		log:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// observe records one engine call in the metrics and the engine call log.
// Deferred at the top of each engine method with start captured at entry.
func (s *Store) observe(call string, start time.Time, errp *error) {
	err := *errp
	if s.met != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.met.RecordEngineCall(call, status, time.Since(start))
	}
	s.log.LogEngineCall(call, time.Since(start), err)
}

// progressReader counts bytes as the decoder pulls them, emitting throttled
// progress events and honoring the cooperative cancel flag.
type progressReader struct {
	r      io.Reader
	ctx    context.Context
	fileID string
	read   int64
	total  int64
	emit   func(engine.ProgressEvent)
	cancel *atomic.Bool
	lim    *rate.Limiter
	met    *metrics.Metrics
}

func (p *progressReader) Read(buf []byte) (int, error) {
	if p.cancel.Load() || p.ctx.Err() != nil {
		return 0, ErrCanceled
	}
	n, err := p.r.Read(buf)
	p.read += int64(n)
	if p.emit != nil && p.lim.Allow() {
		percent := 0.0
		if p.total > 0 {
			percent = float64(p.read) / float64(p.total) * 100
		}
		p.emit(engine.ProgressEvent{
			FileID:     p.fileID,
			ReadBytes:  p.read,
			TotalBytes: p.total,
			Percent:    percent,
		})
		if p.met != nil {
			p.met.ProgressEventsTotal.Inc()
		}
	}
	return n, err
}

// OpenDocument parses the file at path and makes it the current document.
func (s *Store) OpenDocument(ctx context.Context, path string, onProgress func(engine.ProgressEvent)) (_ []engine.Node, err error) {
	start := time.Now()
	defer s.observe("open_document", start, &err)
	s.cancelOpen.Store(false)
	if s.met != nil {
		s.met.OpensInFlight.Inc()
		defer s.met.OpensInFlight.Dec()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var total int64
	if fi, err := f.Stat(); err == nil {
		total = fi.Size()
	}

	pr := &progressReader{
		r:      f,
		ctx:    ctx,
		fileID: path,
		total:  total,
		emit:   onProgress,
		cancel: &s.cancelOpen,
		lim:    rate.NewLimiter(rate.Every(progressInterval), 1),
		met:    s.met,
	}
	dec := json.NewDecoder(bufio.NewReaderSize(pr, 1<<20))
	dec.UseNumber()

	root, err := decodeValue(dec)
	if err != nil {
		if s.cancelOpen.Load() || errors.Is(err, ErrCanceled) {
			if onProgress != nil {
				onProgress(engine.ProgressEvent{FileID: path, ReadBytes: pr.read, TotalBytes: total, Canceled: true})
			}
			s.log.Debug("open canceled").Str("path", path).Send()
			return nil, ErrCanceled
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	s.mu.Lock()
	s.root = root
	s.fileID = path
	s.mu.Unlock()
	s.docs.Set(path, root, cache.DefaultExpiration)

	if onProgress != nil {
		onProgress(engine.ProgressEvent{
			FileID:     path,
			ReadBytes:  pr.read,
			TotalBytes: total,
			Percent:    100,
			Done:       true,
		})
	}

	s.log.Info("document opened").
		Str("path", path).
		Int64("bytes", pr.read).
		Dur("duration", time.Since(start)).
		Send()
	return listChildren(root, "", 0, RootPageSize), nil
}

// OpenBytes decodes raw bytes (e.g. pasted text) as the current document,
// registered under fileID.
func (s *Store) OpenBytes(fileID string, data []byte) ([]engine.Node, error) {
	root, err := parseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fileID, err)
	}
	s.mu.Lock()
	s.root = root
	s.fileID = fileID
	s.mu.Unlock()
	s.docs.Set(fileID, root, cache.DefaultExpiration)
	return listChildren(root, "", 0, RootPageSize), nil
}

// SwitchTo makes a previously opened document current again without
// reparsing. Returns false when the registry no longer holds it.
func (s *Store) SwitchTo(fileID string) ([]engine.Node, bool) {
	v, found := s.docs.Get(fileID)
	if !found {
		return nil, false
	}
	s.mu.Lock()
	s.root = v
	s.fileID = fileID
	s.mu.Unlock()
	s.docs.Set(fileID, v, cache.DefaultExpiration) // refresh retention
	return listChildren(v, "", 0, RootPageSize), true
}

// CancelOpen requests a best-effort abort of an in-flight open.
func (s *Store) CancelOpen() {
	s.cancelOpen.Store(true)
}

// Unload drops the current document. Registry entries are kept until they
// age out.
func (s *Store) Unload() {
	s.mu.Lock()
	s.root = nil
	s.fileID = ""
	s.mu.Unlock()
}

// FetchChildren returns one page of children of the container at pointer.
func (s *Store) FetchChildren(ctx context.Context, pointer string, offset, limit int) (_ []engine.Node, err error) {
	defer s.observe("fetch_children", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.root == nil {
		return nil, ErrNoDocument
	}
	if _, ok := valueAt(s.root, pointer); !ok {
		return nil, ErrInvalidPointer
	}
	return listChildren(s.root, pointer, offset, limit), nil
}

// GetNodeValue returns the raw JSON serialization of the value at pointer.
func (s *Store) GetNodeValue(ctx context.Context, pointer string) (_ string, err error) {
	defer s.observe("get_node_value", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.root == nil {
		return "", ErrNoDocument
	}
	v, ok := valueAt(s.root, pointer)
	if !ok {
		return "", ErrInvalidPointer
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SetNodeValue replaces a scalar value, preserving its type.
func (s *Store) SetNodeValue(ctx context.Context, pointer, newValue string) (_ *engine.Node, err error) {
	defer s.observe("set_node_value", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.root == nil {
		return nil, ErrNoDocument
	}
	cur, ok := valueAt(s.root, pointer)
	if !ok {
		return nil, ErrInvalidPointer
	}

	var replacement any
	switch cur.(type) {
	case string:
		replacement = newValue
	case json.Number:
		trimmed := strings.TrimSpace(newValue)
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			replacement = json.Number(strconv.FormatInt(i, 10))
		} else if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			replacement = json.Number(strconv.FormatFloat(f, 'g', -1, 64))
		} else {
			return nil, fmt.Errorf("jsondoc: invalid number literal %q", newValue)
		}
	case bool:
		switch strings.ToLower(newValue) {
		case "true":
			replacement = true
		case "false":
			replacement = false
		default:
			return nil, fmt.Errorf("jsondoc: invalid boolean %q (expected true/false)", newValue)
		}
	case nil:
		return nil, fmt.Errorf("%w: editing null not supported", ErrNotScalar)
	default:
		return nil, fmt.Errorf("%w: editing non-scalar value not supported", ErrNotScalar)
	}

	root, err := setAt(s.root, pointer, replacement)
	if err != nil {
		return nil, err
	}
	s.root = root
	s.refreshRegistry()
	node := nodeAt(replacement, pointer)
	return &node, nil
}

// SetSubtree replaces a container value with parsed JSON of the same kind.
func (s *Store) SetSubtree(ctx context.Context, pointer, newJSON string) (_ *engine.Node, err error) {
	defer s.observe("set_subtree", time.Now(), &err)
	parsed, err := parseDocument([]byte(newJSON))
	if err != nil {
		return nil, fmt.Errorf("jsondoc: parse error: %w", err)
	}
	if !isContainer(parsed) {
		return nil, fmt.Errorf("%w: edited subtree must be an object or array", ErrNotContainer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.root == nil {
		return nil, ErrNoDocument
	}
	cur, ok := valueAt(s.root, pointer)
	if !ok {
		return nil, ErrInvalidPointer
	}
	if !isContainer(cur) {
		return nil, fmt.Errorf("%w: current value is not an object or array", ErrNotContainer)
	}
	if containerKind(cur) != containerKind(parsed) {
		return nil, ErrTypeChange
	}

	root, err := setAt(s.root, pointer, parsed)
	if err != nil {
		return nil, err
	}
	s.root = root
	s.refreshRegistry()
	node := nodeAt(parsed, pointer)
	return &node, nil
}

// ParseStringified replaces a string node whose content is itself JSON with
// the parsed object/array. Primitive-looking strings are left alone so a
// literal "42" is not silently coerced.
func (s *Store) ParseStringified(ctx context.Context, pointer string) (_ *engine.Node, err error) {
	defer s.observe("parse_stringified", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.root == nil {
		return nil, ErrNoDocument
	}
	cur, ok := valueAt(s.root, pointer)
	if !ok {
		return nil, ErrInvalidPointer
	}
	text, ok := cur.(string)
	if !ok {
		return nil, fmt.Errorf("%w: target node is not a string", ErrNotStringified)
	}
	trimmed := strings.TrimSpace(text)
	looksJSON := (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"))
	if !looksJSON {
		return nil, ErrNotStringified
	}
	parsed, err := parseDocument([]byte(trimmed))
	if err != nil {
		return nil, fmt.Errorf("jsondoc: parse error: %w", err)
	}
	if !isContainer(parsed) {
		return nil, ErrNotStringified
	}

	root, err := setAt(s.root, pointer, parsed)
	if err != nil {
		return nil, err
	}
	s.root = root
	s.refreshRegistry()
	node := nodeAt(parsed, pointer)
	return &node, nil
}

// refreshRegistry keeps the registry entry in step with an edited root.
// Callers hold s.mu.
func (s *Store) refreshRegistry() {
	if s.fileID != "" {
		s.docs.Set(s.fileID, s.root, cache.DefaultExpiration)
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case *object, []any:
		return true
	}
	return false
}

func containerKind(v any) engine.ValueType {
	if _, ok := v.(*object); ok {
		return engine.ValueObject
	}
	return engine.ValueArray
}
