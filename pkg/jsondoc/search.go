// ABOUTME: Document traversal for paged and streaming search
// ABOUTME: Matches keys, scalar values and pointer paths under one matcher

package jsondoc

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/MartinPtrl/snappy-jason/pkg/engine"
	"github.com/MartinPtrl/snappy-jason/pkg/match"
)

// RunSearch traverses the whole document and returns one offset/limit page
// of the results with the total count.
func (s *Store) RunSearch(ctx context.Context, query string, opts engine.SearchOptions, offset, limit int) (_ *engine.SearchResponse, err error) {
	defer s.observe("run_search", time.Now(), &err)
	root, err := s.snapshotRoot()
	if err != nil {
		return nil, err
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return &engine.SearchResponse{}, nil
	}
	m, err := match.New(q, matchMode(opts))
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = RootPageSize
	}

	var all []engine.SearchResult
	searchTree(ctx, root, "", m, opts, func(r engine.SearchResult) bool {
		all = append(all, r)
		return true
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := len(all)
	if s.met != nil {
		s.met.SearchQueriesTotal.Inc()
		s.met.SearchResultsTotal.Add(float64(total))
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return &engine.SearchResponse{
		Results:    all[offset:end],
		TotalCount: total,
		HasMore:    offset+limit < total,
	}, nil
}

// RunSearchStream traverses the document in the background, emitting
// batches of results and a final done event, all tagged with the returned
// search id.
func (s *Store) RunSearchStream(ctx context.Context, query string, opts engine.SearchOptions, emit func(engine.StreamEvent)) (_ uint64, err error) {
	defer s.observe("run_search_stream", time.Now(), &err)
	root, err := s.snapshotRoot()
	if err != nil {
		return 0, err
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return 0, ErrEmptyQuery
	}
	m, err := match.New(q, matchMode(opts))
	if err != nil {
		return 0, err
	}

	id := s.searchID.Add(1)
	if s.met != nil {
		s.met.SearchQueriesTotal.Inc()
	}

	go func() {
		start := time.Now()
		total := 0
		batch := make([]engine.SearchResult, 0, streamBatchSize)
		flush := func() {
			if len(batch) == 0 {
				return
			}
			total += len(batch)
			emit(engine.StreamEvent{
				Kind:       engine.StreamBatch,
				ID:         id,
				Batch:      batch,
				TotalSoFar: total,
				ElapsedMS:  time.Since(start).Milliseconds(),
			})
			batch = make([]engine.SearchResult, 0, streamBatchSize)
		}

		completed := searchTree(ctx, root, "", m, opts, func(r engine.SearchResult) bool {
			batch = append(batch, r)
			if len(batch) >= streamBatchSize {
				flush()
			}
			return true
		})
		if !completed {
			emit(engine.StreamEvent{
				Kind:      engine.StreamError,
				ID:        id,
				Err:       "search canceled",
				ElapsedMS: time.Since(start).Milliseconds(),
			})
			return
		}
		flush()
		if s.met != nil {
			s.met.SearchResultsTotal.Add(float64(total))
		}
		emit(engine.StreamEvent{
			Kind:      engine.StreamDone,
			ID:        id,
			Total:     total,
			ElapsedMS: time.Since(start).Milliseconds(),
		})
	}()

	return id, nil
}

func (s *Store) snapshotRoot() (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.root == nil {
		return nil, ErrNoDocument
	}
	return s.root, nil
}

func matchMode(opts engine.SearchOptions) match.Mode {
	return match.Mode{
		CaseSensitive: opts.CaseSensitive,
		WholeWord:     opts.WholeWord,
		Regex:         opts.Regex,
	}
}

// searchTree walks v depth-first, calling visit for every hit. It returns
// false when the walk stopped early (visit refused or ctx canceled).
// Paths are checked for containers, keys for object members, values for
// string/number/boolean scalars.
func searchTree(ctx context.Context, v any, pointer string, m *match.Matcher, opts engine.SearchOptions, visit func(engine.SearchResult) bool) bool {
	if ctx.Err() != nil {
		return false
	}
	if opts.SearchPaths && m.Matches(pointer) {
		if !visit(engine.SearchResult{
			Node:      nodeAt(v, pointer),
			MatchType: engine.MatchPath,
			MatchText: pointer,
		}) {
			return false
		}
	}

	switch val := v.(type) {
	case *object:
		for i := range val.members {
			mem := val.members[i]
			if opts.SearchKeys && m.Matches(mem.Key) {
				if !visit(engine.SearchResult{
					Node:      childNode(pointer, mem.Key, mem.Value),
					MatchType: engine.MatchKey,
					MatchText: mem.Key,
				}) {
					return false
				}
			}
			if text, ok := scalarText(mem.Value); ok {
				if opts.SearchValues && m.Matches(text) {
					if !visit(engine.SearchResult{
						Node:      childNode(pointer, mem.Key, mem.Value),
						MatchType: engine.MatchValue,
						MatchText: text,
						Context:   "in key: " + mem.Key,
					}) {
						return false
					}
				}
			} else if isContainer(mem.Value) {
				if !searchTree(ctx, mem.Value, pointer+"/"+escapeToken(mem.Key), m, opts, visit) {
					return false
				}
			}
		}
	case []any:
		for i, item := range val {
			idx := strconv.Itoa(i)
			if text, ok := scalarText(item); ok {
				if opts.SearchValues && m.Matches(text) {
					if !visit(engine.SearchResult{
						Node:      childNode(pointer, idx, item),
						MatchType: engine.MatchValue,
						MatchText: text,
						Context:   "in index: " + idx,
					}) {
						return false
					}
				}
			} else if isContainer(item) {
				if !searchTree(ctx, item, pointer+"/"+idx, m, opts, visit) {
					return false
				}
			}
		}
	}
	return true
}
