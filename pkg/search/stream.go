// ABOUTME: Streaming search consumption for the orchestrator
// ABOUTME: Batch/done/error events fold into the session under the live id

package search

import (
	"strings"

	"github.com/MartinPtrl/snappy-jason/pkg/engine"
	"github.com/MartinPtrl/snappy-jason/pkg/match"
)

// StartStream issues the pending query as a streaming search. Batches
// arrive through HandleStreamEvent under the request id created here; the
// same input guards apply as for paged searches.
func (o *Orchestrator) StartStream() {
	o.mu.Lock()
	q := strings.TrimSpace(o.pendingQuery)
	opts := o.pendingOpts
	if q == "" {
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
	o.mu.Unlock()
	o.changed()

	if o.met != nil {
		o.met.SearchQueriesTotal.Inc()
	}

	_, err := o.eng.RunSearchStream(o.ctx, q, opts, func(ev engine.StreamEvent) {
		o.HandleStreamEvent(id, ev)
	})
	if err != nil {
		o.apply(id, nil, err, false)
	}
}

// HandleStreamEvent folds one streaming event into the session. Events for
// superseded request ids are dropped silently.
func (o *Orchestrator) HandleStreamEvent(id uint64, ev engine.StreamEvent) {
	o.mu.Lock()
	if id != o.requestID {
		if o.met != nil {
			o.met.StaleDropsTotal.Inc()
		}
		o.mu.Unlock()
		return
	}
	switch ev.Kind {
	case engine.StreamBatch:
		o.appendResultsLocked(ev.Batch)
		o.sess.TotalCount = ev.TotalSoFar
		if o.met != nil {
			o.met.StreamBatchesTotal.Inc()
			o.met.SearchResultsTotal.Add(float64(len(ev.Batch)))
		}
	case engine.StreamDone:
		o.sess.TotalCount = ev.Total
		o.sess.HasMore = false
		o.sess.Phase = PhaseDone
		o.sess.Err = ""
	case engine.StreamError:
		o.sess.Phase = PhaseError
		o.sess.Err = ev.Err
	}
	o.mu.Unlock()
	o.changed()
}
