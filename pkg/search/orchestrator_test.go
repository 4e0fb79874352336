// ABOUTME: Tests for the search orchestrator lifecycle
// ABOUTME: Covers debouncing, stale discard, paging, guards and streaming

package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MartinPtrl/snappy-jason/pkg/engine"
)

// fakeEngine serves canned result sets per query, with optional gating so a
// test can hold a request in flight.
type fakeEngine struct {
	mu      sync.Mutex
	results map[string][]engine.SearchResult
	errs    map[string]error
	calls   []string

	gate    chan struct{} // when set, RunSearch blocks until it closes
	entered chan string   // signaled with the query when RunSearch begins
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		results: make(map[string][]engine.SearchResult),
		errs:    make(map[string]error),
	}
}

func (f *fakeEngine) setResults(query string, count int) {
	rs := make([]engine.SearchResult, count)
	for i := range rs {
		rs[i] = engine.SearchResult{
			Node:      engine.Node{Pointer: fmt.Sprintf("/%s/%d", query, i)},
			MatchType: engine.MatchValue,
			MatchText: fmt.Sprintf("%s %d", query, i),
		}
	}
	f.mu.Lock()
	f.results[query] = rs
	f.mu.Unlock()
}

func (f *fakeEngine) RunSearch(ctx context.Context, query string, opts engine.SearchOptions, offset, limit int) (*engine.SearchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	entered, gate := f.entered, f.gate
	err := f.errs[query]
	all := f.results[query]
	f.mu.Unlock()

	if entered != nil {
		entered <- query
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return &engine.SearchResponse{
		Results:    append([]engine.SearchResult(nil), all[offset:end]...),
		TotalCount: len(all),
		HasMore:    offset+limit < len(all),
	}, nil
}

func (f *fakeEngine) callQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) OpenDocument(ctx context.Context, path string, onProgress func(engine.ProgressEvent)) ([]engine.Node, error) {
	return nil, nil
}
func (f *fakeEngine) CancelOpen() {}
func (f *fakeEngine) FetchChildren(ctx context.Context, pointer string, offset, limit int) ([]engine.Node, error) {
	return nil, nil
}
func (f *fakeEngine) RunSearchStream(ctx context.Context, query string, opts engine.SearchOptions, emit func(engine.StreamEvent)) (uint64, error) {
	return 1, nil
}
func (f *fakeEngine) GetNodeValue(ctx context.Context, pointer string) (string, error) {
	return "", nil
}
func (f *fakeEngine) SetNodeValue(ctx context.Context, pointer, newValue string) (*engine.Node, error) {
	return nil, nil
}
func (f *fakeEngine) SetSubtree(ctx context.Context, pointer, newJSON string) (*engine.Node, error) {
	return nil, nil
}
func (f *fakeEngine) ParseStringified(ctx context.Context, pointer string) (*engine.Node, error) {
	return nil, nil
}

func valueOpts() engine.SearchOptions {
	return engine.SearchOptions{SearchValues: true}
}

func waitPhase(t *testing.T, o *Orchestrator, want Phase) Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s := o.Snapshot()
		if s.Phase == want {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for phase %q (at %q)", want, o.Snapshot().Phase)
	return Session{}
}

func TestSearchNowBypassesDebounce(t *testing.T) {
	eng := newFakeEngine()
	eng.setResults("alice", 3)
	o := New(eng, WithDebounce(time.Hour)) // would never fire on its own

	o.SetQuery("alice")
	o.SetOptions(valueOpts())
	o.SearchNow()

	s := waitPhase(t, o, PhaseDone)
	if len(s.Results) != 3 || s.TotalCount != 3 || s.HasMore {
		t.Errorf("session: %d results, total %d, hasMore %v", len(s.Results), s.TotalCount, s.HasMore)
	}
}

func TestDebounceCoalescesKeystrokes(t *testing.T) {
	eng := newFakeEngine()
	eng.setResults("alice", 1)
	o := New(eng, WithDebounce(30*time.Millisecond))
	o.SetOptions(valueOpts())

	for _, q := range []string{"a", "al", "ali", "alic", "alice"} {
		o.SetQuery(q)
		time.Sleep(2 * time.Millisecond)
	}
	waitPhase(t, o, PhaseDone)

	calls := eng.callQueries()
	if len(calls) != 1 || calls[0] != "alice" {
		t.Errorf("engine calls = %v, want just the final query", calls)
	}
}

func TestEmptyQueryClearsResults(t *testing.T) {
	eng := newFakeEngine()
	eng.setResults("alice", 2)
	o := New(eng, WithDebounce(time.Millisecond))
	o.SetOptions(valueOpts())

	o.SetQuery("alice")
	o.SearchNow()
	waitPhase(t, o, PhaseDone)

	o.SetQuery("   ")
	o.SearchNow()
	s := waitPhase(t, o, PhaseIdle)
	if len(s.Results) != 0 || s.TotalCount != 0 {
		t.Errorf("cleared session still has %d results", len(s.Results))
	}
}

func TestNoTargetShowsNoticeAndKeepsResults(t *testing.T) {
	eng := newFakeEngine()
	eng.setResults("alice", 2)
	o := New(eng)
	o.SetQuery("alice")
	o.SetOptions(valueOpts())
	o.SearchNow()
	before := waitPhase(t, o, PhaseDone)

	o.SetOptions(engine.SearchOptions{}) // no targets selected
	o.SearchNow()

	msg, ok := o.Notice()
	if !ok || !strings.Contains(msg, "at least one") {
		t.Errorf("notice = %q, %v", msg, ok)
	}
	after := o.Snapshot()
	if len(after.Results) != len(before.Results) {
		t.Error("guard must not disturb prior results")
	}
	if calls := eng.callQueries(); len(calls) != 1 {
		t.Errorf("engine calls = %v, want 1", calls)
	}
}

func TestInvalidRegexBlocksSearch(t *testing.T) {
	eng := newFakeEngine()
	o := New(eng)
	opts := valueOpts()
	opts.UseRegex()
	o.SetQuery("[unclosed")
	o.SetOptions(opts)
	o.SearchNow()

	msg, ok := o.Notice()
	if !ok || !strings.Contains(msg, "Invalid regular expression") {
		t.Errorf("notice = %q, %v", msg, ok)
	}
	if calls := eng.callQueries(); len(calls) != 0 {
		t.Errorf("engine must not be called, got %v", calls)
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	eng := newFakeEngine()
	eng.setResults("old", 5)
	eng.setResults("new", 2)
	eng.gate = make(chan struct{})
	eng.entered = make(chan string, 2)
	o := New(eng)
	o.SetOptions(valueOpts())

	o.SetQuery("old")
	o.SearchNow()
	select {
	case <-eng.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first search never reached the engine")
	}

	// A newer search supersedes the in-flight one before it resolves.
	gate := eng.gate
	eng.mu.Lock()
	eng.gate = nil
	eng.mu.Unlock()
	o.SetQuery("new")
	o.SearchNow()
	s := waitPhase(t, o, PhaseDone)
	if s.Query != "new" || len(s.Results) != 2 {
		t.Fatalf("session: query %q, %d results", s.Query, len(s.Results))
	}

	// Now let the stale response land; it must change nothing.
	close(gate)
	time.Sleep(50 * time.Millisecond)
	after := o.Snapshot()
	if after.Query != "new" || len(after.Results) != 2 {
		t.Errorf("stale response leaked into the session: %+v", after)
	}
}

func TestNextPageAppends(t *testing.T) {
	eng := newFakeEngine()
	eng.setResults("alice", 25)
	o := New(eng, WithPageSize(10))
	o.SetQuery("alice")
	o.SetOptions(valueOpts())
	o.SearchNow()

	s := waitPhase(t, o, PhaseDone)
	if len(s.Results) != 10 || !s.HasMore {
		t.Fatalf("page 1: %d results, hasMore %v", len(s.Results), s.HasMore)
	}

	o.NextPage()
	waitPhase(t, o, PhaseDone)
	o.NextPage()
	s = waitPhase(t, o, PhaseDone)
	if len(s.Results) != 25 || s.HasMore {
		t.Fatalf("after paging: %d results, hasMore %v", len(s.Results), s.HasMore)
	}

	// Results stay in order and duplicate-free.
	seen := make(map[string]bool)
	for _, r := range s.Results {
		if seen[r.Node.Pointer] {
			t.Fatalf("duplicate result %s", r.Node.Pointer)
		}
		seen[r.Node.Pointer] = true
	}

	// No page left means NextPage is a no-op.
	calls := len(eng.callQueries())
	o.NextPage()
	time.Sleep(20 * time.Millisecond)
	if len(eng.callQueries()) != calls {
		t.Error("NextPage with no more data hit the engine")
	}
}

func TestSearchErrorFreshQuery(t *testing.T) {
	eng := newFakeEngine()
	eng.errs["bad"] = errors.New("engine exploded")
	o := New(eng)
	o.SetQuery("bad")
	o.SetOptions(valueOpts())
	o.SearchNow()

	s := waitPhase(t, o, PhaseError)
	if s.Err == "" || len(s.Results) != 0 {
		t.Errorf("error session: %+v", s)
	}
}

func TestClear(t *testing.T) {
	eng := newFakeEngine()
	eng.setResults("alice", 2)
	o := New(eng)
	o.SetQuery("alice")
	o.SetOptions(valueOpts())
	o.SearchNow()
	waitPhase(t, o, PhaseDone)

	o.Clear()
	s := o.Snapshot()
	if s.Phase != PhaseIdle || len(s.Results) != 0 {
		t.Errorf("after clear: %+v", s)
	}
}

func TestOnChangeFires(t *testing.T) {
	eng := newFakeEngine()
	eng.setResults("alice", 1)
	changed := make(chan struct{}, 16)
	o := New(eng, WithOnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}))
	o.SetQuery("alice")
	o.SetOptions(valueOpts())
	o.SearchNow()
	waitPhase(t, o, PhaseDone)
	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("onChange never fired")
	}
}

func TestHandleStreamEvents(t *testing.T) {
	eng := newFakeEngine()
	o := New(eng)
	o.mu.Lock()
	o.requestID = 7
	o.sess = Session{RequestID: 7, Query: "alice", Phase: PhaseLoading}
	o.mu.Unlock()

	batch := []engine.SearchResult{
		{Node: engine.Node{Pointer: "/a"}, MatchType: engine.MatchValue, MatchText: "alice"},
		{Node: engine.Node{Pointer: "/b"}, MatchType: engine.MatchValue, MatchText: "alice b"},
	}
	o.HandleStreamEvent(7, engine.StreamEvent{Kind: engine.StreamBatch, ID: 1, Batch: batch, TotalSoFar: 2})
	s := o.Snapshot()
	if len(s.Results) != 2 || s.TotalCount != 2 || s.Phase != PhaseLoading {
		t.Fatalf("after batch: %+v", s)
	}

	// An event for a superseded request id changes nothing.
	o.HandleStreamEvent(6, engine.StreamEvent{Kind: engine.StreamBatch, Batch: batch, TotalSoFar: 99})
	if s := o.Snapshot(); s.TotalCount != 2 {
		t.Errorf("stale stream event applied: %+v", s)
	}

	o.HandleStreamEvent(7, engine.StreamEvent{Kind: engine.StreamDone, Total: 2})
	s = o.Snapshot()
	if s.Phase != PhaseDone || s.TotalCount != 2 || s.HasMore {
		t.Errorf("after done: %+v", s)
	}
}

func TestHandleStreamError(t *testing.T) {
	eng := newFakeEngine()
	o := New(eng)
	o.mu.Lock()
	o.requestID = 3
	o.sess = Session{RequestID: 3, Query: "alice", Phase: PhaseLoading}
	o.mu.Unlock()

	o.HandleStreamEvent(3, engine.StreamEvent{Kind: engine.StreamError, Err: "search canceled"})
	s := o.Snapshot()
	if s.Phase != PhaseError || s.Err != "search canceled" {
		t.Errorf("after stream error: %+v", s)
	}
}

func TestPreviewWindowClipsLongMatchText(t *testing.T) {
	long := strings.Repeat("x", 200) + "needle" + strings.Repeat("y", 200)
	r := engine.SearchResult{MatchText: long}
	w := PreviewWindow(r, "needle", valueOpts())
	if !w.Truncated {
		t.Fatal("expected clipped preview")
	}
	if len(w.Spans) == 0 {
		t.Fatal("expected highlight spans")
	}
	if got := w.Text[w.Spans[0].Start:w.Spans[0].End]; got != "needle" {
		t.Errorf("span covers %q", got)
	}
	full := RevealFull(r, "needle", valueOpts())
	if full.Text != long || full.Truncated {
		t.Errorf("reveal full: truncated %v, len %d", full.Truncated, len(full.Text))
	}
}
