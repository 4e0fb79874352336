// ABOUTME: Tests for document session transitions
// ABOUTME: Covers open, supersede, cancel, unload and progress routing

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MartinPtrl/snappy-jason/internal/logger"
	"github.com/MartinPtrl/snappy-jason/pkg/config"
	"github.com/MartinPtrl/snappy-jason/pkg/engine"
)

// fakeEngine returns canned roots per path and can hold an open in flight.
type fakeEngine struct {
	mu       sync.Mutex
	roots    map[string][]engine.Node
	errs     map[string]error
	canceled bool

	gate    chan struct{} // opens for the gated path block until it closes
	gated   string
	entered chan string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		roots: make(map[string][]engine.Node),
		errs:  make(map[string]error),
	}
}

func (f *fakeEngine) OpenDocument(ctx context.Context, path string, onProgress func(engine.ProgressEvent)) ([]engine.Node, error) {
	f.mu.Lock()
	entered, gate, gated := f.entered, f.gate, f.gated
	err := f.errs[path]
	roots := f.roots[path]
	f.mu.Unlock()

	if entered != nil {
		entered <- path
	}
	if onProgress != nil {
		onProgress(engine.ProgressEvent{FileID: path, Percent: 50})
	}
	if gate != nil && path == gated {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(engine.ProgressEvent{FileID: path, Percent: 100, Done: true})
	}
	return append([]engine.Node(nil), roots...), nil
}

func (f *fakeEngine) CancelOpen() {
	f.mu.Lock()
	f.canceled = true
	f.mu.Unlock()
}

func (f *fakeEngine) wasCanceled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled
}

func (f *fakeEngine) FetchChildren(ctx context.Context, pointer string, offset, limit int) ([]engine.Node, error) {
	return nil, nil
}
func (f *fakeEngine) RunSearch(ctx context.Context, query string, opts engine.SearchOptions, offset, limit int) (*engine.SearchResponse, error) {
	return &engine.SearchResponse{}, nil
}
func (f *fakeEngine) RunSearchStream(ctx context.Context, query string, opts engine.SearchOptions, emit func(engine.StreamEvent)) (uint64, error) {
	return 0, nil
}
func (f *fakeEngine) GetNodeValue(ctx context.Context, pointer string) (string, error) {
	return "", nil
}
func (f *fakeEngine) SetNodeValue(ctx context.Context, pointer, newValue string) (*engine.Node, error) {
	return &engine.Node{Pointer: pointer, ValueType: engine.ValueString, Preview: newValue}, nil
}
func (f *fakeEngine) SetSubtree(ctx context.Context, pointer, newJSON string) (*engine.Node, error) {
	return &engine.Node{Pointer: pointer, ValueType: engine.ValueObject, HasChildren: true, ChildCount: 1, Preview: newJSON}, nil
}
func (f *fakeEngine) ParseStringified(ctx context.Context, pointer string) (*engine.Node, error) {
	return &engine.Node{Pointer: pointer, ValueType: engine.ValueArray, HasChildren: true, ChildCount: 2}, nil
}

// memStore is an in-memory config.Store.
type memStore struct {
	mu   sync.Mutex
	path string
}

func (m *memStore) SaveLastOpened(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.path = path
	return nil
}

func (m *memStore) LoadLastOpened() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path == "" {
		return "", config.ErrNoLastOpened
	}
	return m.path, nil
}

func (m *memStore) ClearLastOpened() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.path = ""
	return nil
}

func (m *memStore) saved() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

func someRoots(n int) []engine.Node {
	nodes := make([]engine.Node, n)
	for i := range nodes {
		nodes[i] = engine.Node{Pointer: fmt.Sprintf("/%d", i), Key: fmt.Sprintf("%d", i)}
	}
	return nodes
}

func TestOpenSuccess(t *testing.T) {
	eng := newFakeEngine()
	eng.roots["a.json"] = someRoots(3)
	store := &memStore{}
	c := New(eng, WithConfigStore(store))

	sess, err := c.Open(context.Background(), "a.json")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if c.State() != StateReady || c.Current() != sess {
		t.Errorf("state %q, current %p", c.State(), c.Current())
	}
	if sess.Path != "a.json" {
		t.Errorf("path = %q", sess.Path)
	}
	if got := len(sess.Tree.Children("")); got != 3 {
		t.Errorf("seeded %d roots, want 3", got)
	}
	if store.saved() != "a.json" {
		t.Errorf("last-opened = %q", store.saved())
	}
}

func TestOpenFailure(t *testing.T) {
	eng := newFakeEngine()
	eng.errs["bad.json"] = errors.New("parse error")
	c := New(eng)

	if _, err := c.Open(context.Background(), "bad.json"); err == nil {
		t.Fatal("expected open error")
	}
	if c.State() != StateIdle || c.Current() != nil {
		t.Errorf("state %q after failed open", c.State())
	}
}

func TestOpenReplacesPreviousSession(t *testing.T) {
	eng := newFakeEngine()
	eng.roots["a.json"] = someRoots(2)
	eng.roots["b.json"] = someRoots(5)
	c := New(eng)
	ctx := context.Background()

	first, err := c.Open(ctx, "a.json")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Open(ctx, "b.json")
	if err != nil {
		t.Fatal(err)
	}
	if c.Current() != second || c.Current() == first {
		t.Error("current session not replaced")
	}
	if got := len(second.Tree.Children("")); got != 5 {
		t.Errorf("new session has %d roots, want 5", got)
	}
}

func TestOpenSuperseded(t *testing.T) {
	eng := newFakeEngine()
	eng.roots["slow.json"] = someRoots(1)
	eng.roots["fast.json"] = someRoots(2)
	eng.gate = make(chan struct{})
	eng.gated = "slow.json"
	eng.entered = make(chan string, 2)
	c := New(eng)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.Open(ctx, "slow.json")
		done <- err
	}()
	select {
	case <-eng.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("slow open never reached the engine")
	}

	sess, err := c.Open(ctx, "fast.json")
	if err != nil {
		t.Fatalf("fast open failed: %v", err)
	}

	close(eng.gate)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("slow open returned %v, want ErrSuperseded", err)
	}
	if c.Current() != sess || c.Current().Path != "fast.json" {
		t.Error("superseded open disturbed the active session")
	}
}

func TestCancelResetsImmediately(t *testing.T) {
	eng := newFakeEngine()
	eng.roots["slow.json"] = someRoots(1)
	eng.gate = make(chan struct{})
	eng.gated = "slow.json"
	eng.entered = make(chan string, 1)
	store := &memStore{}
	c := New(eng, WithConfigStore(store))

	done := make(chan error, 1)
	go func() {
		_, err := c.Open(context.Background(), "slow.json")
		done <- err
	}()
	select {
	case <-eng.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("open never reached the engine")
	}

	c.Cancel()
	if !eng.wasCanceled() {
		t.Error("engine abort not requested")
	}
	if c.State() != StateIdle || c.Current() != nil {
		t.Errorf("state %q after cancel, want idle", c.State())
	}

	close(eng.gate)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("canceled open returned %v, want ErrSuperseded", err)
	}
}

func TestUnloadClearsEverything(t *testing.T) {
	eng := newFakeEngine()
	eng.roots["a.json"] = someRoots(2)
	store := &memStore{}
	c := New(eng, WithConfigStore(store))

	sess, err := c.Open(context.Background(), "a.json")
	if err != nil {
		t.Fatal(err)
	}
	c.Unload()
	if c.State() != StateIdle || c.Current() != nil {
		t.Errorf("state %q after unload", c.State())
	}
	if store.saved() != "" {
		t.Errorf("last-opened not cleared: %q", store.saved())
	}
	if got := len(sess.Tree.Children("")); got != 0 {
		t.Errorf("old session tree still has %d roots", got)
	}
}

func TestReopenLast(t *testing.T) {
	eng := newFakeEngine()
	eng.roots["a.json"] = someRoots(1)
	store := &memStore{path: "a.json"}
	c := New(eng, WithConfigStore(store))

	sess, err := c.ReopenLast(context.Background())
	if err != nil {
		t.Fatalf("ReopenLast failed: %v", err)
	}
	if sess.Path != "a.json" {
		t.Errorf("path = %q", sess.Path)
	}
}

func TestReopenLastWithoutRecord(t *testing.T) {
	c := New(newFakeEngine(), WithConfigStore(&memStore{}))
	if _, err := c.ReopenLast(context.Background()); !errors.Is(err, config.ErrNoLastOpened) {
		t.Errorf("got %v, want ErrNoLastOpened", err)
	}
	if _, err := New(newFakeEngine()).ReopenLast(context.Background()); !errors.Is(err, ErrNoStore) {
		t.Errorf("got %v, want ErrNoStore", err)
	}
}

func TestProgressRouting(t *testing.T) {
	eng := newFakeEngine()
	eng.roots["a.json"] = someRoots(1)
	var mu sync.Mutex
	var events []engine.ProgressEvent
	c := New(eng, WithOnProgress(func(ev engine.ProgressEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))

	if _, err := c.Open(context.Background(), "a.json"); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("got %d progress events, want 2", len(events))
	}
	if events[0].Percent != 50 || !events[1].Done {
		t.Errorf("events: %+v", events)
	}
	if p := c.Progress(); !p.Done {
		t.Errorf("stored progress: %+v", p)
	}
}

func TestStaleProgressDropped(t *testing.T) {
	eng := newFakeEngine()
	eng.roots["slow.json"] = someRoots(1)
	eng.roots["fast.json"] = someRoots(1)
	eng.gate = make(chan struct{})
	eng.gated = "slow.json"
	eng.entered = make(chan string, 2)

	var mu sync.Mutex
	var files []string
	c := New(eng, WithOnProgress(func(ev engine.ProgressEvent) {
		mu.Lock()
		files = append(files, ev.FileID)
		mu.Unlock()
	}))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := c.Open(ctx, "slow.json")
		done <- err
	}()
	select {
	case <-eng.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("slow open never reached the engine")
	}
	if _, err := c.Open(ctx, "fast.json"); err != nil {
		t.Fatal(err)
	}
	close(eng.gate)
	<-done

	if p := c.Progress(); p.FileID != "fast.json" {
		t.Errorf("stored progress belongs to %q", p.FileID)
	}
}

func TestEditValueUpdatesTree(t *testing.T) {
	eng := newFakeEngine()
	eng.roots["a.json"] = someRoots(3)
	c := New(eng)

	sess, err := c.Open(context.Background(), "a.json")
	if err != nil {
		t.Fatal(err)
	}
	node, err := sess.EditValue(context.Background(), "/1", `"edited"`)
	if err != nil {
		t.Fatalf("EditValue failed: %v", err)
	}
	if node.Pointer != "/1" {
		t.Errorf("edited node pointer = %q", node.Pointer)
	}
	children := sess.Tree.Children("")
	if len(children) != 3 {
		t.Fatalf("got %d roots, want 3", len(children))
	}
	if children[1].Preview != `"edited"` || children[1].ValueType != engine.ValueString {
		t.Errorf("tree not patched: %+v", children[1])
	}
}

func TestEditSubtreeUpdatesTree(t *testing.T) {
	eng := newFakeEngine()
	eng.roots["a.json"] = someRoots(2)
	c := New(eng)

	sess, err := c.Open(context.Background(), "a.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sess.EditSubtree(context.Background(), "/0", `{"x":1}`); err != nil {
		t.Fatalf("EditSubtree failed: %v", err)
	}
	children := sess.Tree.Children("")
	if children[0].ValueType != engine.ValueObject || !children[0].HasChildren {
		t.Errorf("tree not patched: %+v", children[0])
	}
}

func TestParseStringifiedUpdatesTree(t *testing.T) {
	eng := newFakeEngine()
	eng.roots["a.json"] = someRoots(1)
	c := New(eng)

	sess, err := c.Open(context.Background(), "a.json")
	if err != nil {
		t.Fatal(err)
	}
	node, err := sess.ParseStringified(context.Background(), "/0")
	if err != nil {
		t.Fatalf("ParseStringified failed: %v", err)
	}
	if node.ValueType != engine.ValueArray {
		t.Errorf("parsed node: %+v", node)
	}
	if got := sess.Tree.Children("")[0]; got.ChildCount != 2 {
		t.Errorf("tree not patched: %+v", got)
	}
}

func TestOpenAndUnloadLogged(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(logger.Config{Level: "debug", Output: &buf})

	eng := newFakeEngine()
	eng.roots["a.json"] = someRoots(2)
	c := New(eng, WithLogger(log))

	if _, err := c.Open(context.Background(), "a.json"); err != nil {
		t.Fatal(err)
	}
	c.Unload()

	out := buf.String()
	for _, want := range []string{`"event":"document_open"`, `"root_nodes":2`, `"event":"document_unload"`, `"path":"a.json"`} {
		if !strings.Contains(out, want) {
			t.Errorf("session log missing %s: %s", want, out)
		}
	}
}
