// ABOUTME: Search orchestration: debounce, request ids, paging, streaming
// ABOUTME: Stale responses are discarded by comparing against the live id

package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MartinPtrl/snappy-jason/internal/metrics"
	"github.com/MartinPtrl/snappy-jason/pkg/engine"
	"github.com/MartinPtrl/snappy-jason/pkg/match"
)

// Phase is the lifecycle state of the current search session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseAppending Phase = "appending"
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
)

const (
	// DefaultDebounce is the quiet window applied to keystroke- and
	// option-driven searches. Page advances are never debounced.
	DefaultDebounce = 300 * time.Millisecond

	// DefaultPageSize is the result page size for scroll-driven paging.
	DefaultPageSize = 100

	noticeTTL = 4 * time.Second
)

// Session is the state of one search: identity, inputs and accumulated
// results. Results are append-only within a session.
type Session struct {
	RequestID  uint64
	Query      string
	Options    engine.SearchOptions
	Results    []engine.SearchResult
	TotalCount int
	HasMore    bool
	Phase      Phase
	Err        string
}

// Orchestrator turns queries and option changes into cancel-safe engine
// searches. Every issued request gets a fresh id; a response or stream
// event whose id no longer matches the live one is dropped silently.
type Orchestrator struct {
	mu  sync.Mutex
	eng engine.Engine
	ctx context.Context

	debounce time.Duration
	pageSize int
	timer    *time.Timer

	pendingQuery string
	pendingOpts  engine.SearchOptions

	requestID uint64
	sess      Session
	seen      map[string]struct{}

	noticeMsg string
	noticeExp time.Time

	onChange func()

	log zerolog.Logger
	met *metrics.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithMetrics attaches metrics collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.met = m }
}

// WithDebounce overrides the debounce window (tests use a short one).
func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) { o.debounce = d }
}

// WithPageSize overrides the result page size.
func WithPageSize(n int) Option {
	return func(o *Orchestrator) { o.pageSize = n }
}

// WithOnChange registers a hook invoked after every state change, for the
// render layer to schedule a redraw.
func WithOnChange(fn func()) Option {
	return func(o *Orchestrator) { o.onChange = fn }
}

// WithContext sets the context engine calls are issued under.
func WithContext(ctx context.Context) Option {
	return func(o *Orchestrator) { o.ctx = ctx }
}

// New creates an idle orchestrator backed by eng.
func New(eng engine.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		eng:      eng,
		ctx:      context.Background(),
		debounce: DefaultDebounce,
		pageSize: DefaultPageSize,
		sess:     Session{Phase: PhaseIdle},
		seen:     make(map[string]struct{}),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns a copy of the current session state.
func (o *Orchestrator) Snapshot() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.sess
	s.Results = append([]engine.SearchResult(nil), o.sess.Results...)
	return s
}

// Notice returns the active transient notice, if any. Notices expire on
// their own after a few seconds.
func (o *Orchestrator) Notice() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.noticeMsg == "" || time.Now().After(o.noticeExp) {
		o.noticeMsg = ""
		return "", false
	}
	return o.noticeMsg, true
}

// SetQuery records keystroke input and schedules a debounced search.
func (o *Orchestrator) SetQuery(query string) {
	o.mu.Lock()
	o.pendingQuery = query
	o.scheduleLocked()
	o.mu.Unlock()
}

// SetOptions records an option change and schedules a debounced search.
func (o *Orchestrator) SetOptions(opts engine.SearchOptions) {
	o.mu.Lock()
	o.pendingOpts = opts
	o.scheduleLocked()
	o.mu.Unlock()
}

// PendingOptions returns the options the next debounced search will use.
func (o *Orchestrator) PendingOptions() engine.SearchOptions {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pendingOpts
}

// SearchNow flushes any pending debounce and issues the search
// immediately, e.g. on an explicit submit.
func (o *Orchestrator) SearchNow() {
	o.mu.Lock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	q, opts := o.pendingQuery, o.pendingOpts
	o.mu.Unlock()
	o.issue(q, opts)
}

// scheduleLocked (re)arms the debounce timer. Callers hold o.mu.
func (o *Orchestrator) scheduleLocked() {
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(o.debounce, func() {
		o.mu.Lock()
		o.timer = nil
		q, opts := o.pendingQuery, o.pendingOpts
		o.mu.Unlock()
		o.issue(q, opts)
	})
}

// issue runs the input guards and, when they pass, starts a fresh search
// session for q.
func (o *Orchestrator) issue(query string, opts engine.SearchOptions) {
	q := strings.TrimSpace(query)

	o.mu.Lock()
	if q == "" {
		// Clearing the query clears results and invalidates in-flight work.
		o.requestID++
		o.sess = Session{RequestID: o.requestID, Options: opts, Phase: PhaseIdle}
		o.seen = make(map[string]struct{})
		o.mu.Unlock()
		o.changed()
		return
	}
	if !opts.HasTarget() {
		o.setNoticeLocked("Select at least one of keys, values or paths to search")
		o.mu.Unlock()
		o.changed()
		return
	}
	if opts.Regex {
		if _, err := match.New(q, matchMode(opts)); err != nil {
			o.setNoticeLocked("Invalid regular expression: " + q)
			o.mu.Unlock()
			o.changed()
			return
		}
	}

	o.requestID++
	id := o.requestID
	o.sess = Session{RequestID: id, Query: q, Options: opts, Phase: PhaseLoading}
	o.seen = make(map[string]struct{})
	limit := o.pageSize
	o.mu.Unlock()
	o.changed()

	if o.met != nil {
		o.met.SearchQueriesTotal.Inc()
	}
	o.log.Debug().Uint64("request_id", id).Str("query", q).Msg("search issued")

	go func() {
		resp, err := o.eng.RunSearch(o.ctx, q, opts, 0, limit)
		o.apply(id, resp, err, false)
	}()
}

// NextPage fetches the next result page and appends it. Scroll-driven, so
// never debounced.
func (o *Orchestrator) NextPage() {
	o.mu.Lock()
	if o.sess.Phase != PhaseDone || !o.sess.HasMore {
		o.mu.Unlock()
		return
	}
	o.requestID++
	id := o.requestID
	o.sess.RequestID = id
	o.sess.Phase = PhaseAppending
	q, opts := o.sess.Query, o.sess.Options
	offset := len(o.sess.Results)
	limit := o.pageSize
	o.mu.Unlock()
	o.changed()

	go func() {
		resp, err := o.eng.RunSearch(o.ctx, q, opts, offset, limit)
		o.apply(id, resp, err, true)
	}()
}

// apply validates a response against the live request id and folds it into
// the session. Stale responses are dropped without touching visible state.
func (o *Orchestrator) apply(id uint64, resp *engine.SearchResponse, err error, appendPage bool) {
	o.mu.Lock()
	if id != o.requestID {
		if o.met != nil {
			o.met.StaleDropsTotal.Inc()
		}
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.sess.Phase = PhaseError
		o.sess.Err = err.Error()
		if !appendPage {
			// A fresh query that failed has nothing valid to show.
			o.sess.Results = nil
			o.sess.TotalCount = 0
			o.sess.HasMore = false
			o.seen = make(map[string]struct{})
		}
		o.log.Warn().Uint64("request_id", id).Err(err).Msg("search failed")
		o.mu.Unlock()
		o.changed()
		return
	}

	if appendPage {
		o.appendResultsLocked(resp.Results)
	} else {
		o.sess.Results = nil
		o.seen = make(map[string]struct{})
		o.appendResultsLocked(resp.Results)
	}
	o.sess.TotalCount = resp.TotalCount
	o.sess.HasMore = resp.HasMore
	o.sess.Phase = PhaseDone
	o.sess.Err = ""
	if o.met != nil {
		o.met.SearchResultsTotal.Add(float64(len(resp.Results)))
	}
	o.mu.Unlock()
	o.changed()
}

// appendResultsLocked extends the result list, skipping entries already
// present in this session. Callers hold o.mu.
func (o *Orchestrator) appendResultsLocked(results []engine.SearchResult) {
	for _, r := range results {
		key := r.Node.Pointer + "\x00" + string(r.MatchType) + "\x00" + r.MatchText
		if _, dup := o.seen[key]; dup {
			continue
		}
		o.seen[key] = struct{}{}
		o.sess.Results = append(o.sess.Results, r)
	}
}

// Clear cancels pending work and returns the orchestrator to idle.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.requestID++
	o.pendingQuery = ""
	o.sess = Session{RequestID: o.requestID, Phase: PhaseIdle}
	o.seen = make(map[string]struct{})
	o.noticeMsg = ""
	o.mu.Unlock()
	o.changed()
}

func (o *Orchestrator) setNoticeLocked(msg string) {
	o.noticeMsg = msg
	o.noticeExp = time.Now().Add(noticeTTL)
}

func (o *Orchestrator) changed() {
	if o.onChange != nil {
		o.onChange()
	}
}

func matchMode(opts engine.SearchOptions) match.Mode {
	return match.Mode{
		CaseSensitive: opts.CaseSensitive,
		WholeWord:     opts.WholeWord,
		Regex:         opts.Regex,
	}
}
