package search

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"sheettracker/api/internal/sheet"
)

// Index is the external question index used by Service. *Meili satisfies it.
type Index interface {
	Healthy() bool
	Search(q Query) ([]string, error)
	ReplaceQuestions(records []QuestionRecord, stale []string) error
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Sheet   sheet.Sheet `json:"sheet"`
	Matches int         `json:"matches"`
	Source  string      `json:"source"`
}

// Service tries the index first and falls back to filtering the tree in
// memory. index may be nil.
type Service struct {
	index Index
	log   zerolog.Logger

	version atomic.Uint64
	mu      sync.Mutex
	indexed uint64
	known   map[string]struct{}
	wg      sync.WaitGroup
}

func NewService(index Index, log zerolog.Logger) *Service {
	return &Service{index: index, log: log, known: map[string]struct{}{}}
}

// Search filters sh by q. Hits from the index are intersected with sh so a
// lagging index never returns deleted questions.
func (s *Service) Search(sh sheet.Sheet, q Query) Response {
	if q.IsZero() && q.Limit <= 0 {
		return Response{Sheet: sh, Matches: sh.QuestionCount(), Source: "memory"}
	}
	if s.index != nil && s.index.Healthy() {
		ids, err := s.index.Search(q)
		if err == nil {
			set := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				set[id] = struct{}{}
			}
			filtered := keepIDs(sh, set)
			return Response{Sheet: filtered, Matches: filtered.QuestionCount(), Source: "meilisearch"}
		}
		s.log.Warn().Err(err).Msg("search: index error, falling back to memory filter")
	}
	filtered := Filter(sh, q)
	return Response{Sheet: filtered, Matches: filtered.QuestionCount(), Source: "memory"}
}

// Observe is a sheet.CommitHook. It reindexes the committed tree in the
// background; an older snapshot never overwrites a newer one.
func (s *Service) Observe(_ sheet.Mutation, sh sheet.Sheet) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	version := s.version.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reindex(version, sh)
	}()
}

// Reindex pushes sh synchronously, e.g. at startup.
func (s *Service) Reindex(sh sheet.Sheet) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	s.reindex(s.version.Add(1), sh)
}

// Wait blocks until background indexing has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) reindex(version uint64, sh sheet.Sheet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version < s.indexed {
		return
	}

	records := Records(sh)
	current := make(map[string]struct{}, len(records))
	for _, record := range records {
		current[record.ID] = struct{}{}
	}
	var stale []string
	for id := range s.known {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}

	if err := s.index.ReplaceQuestions(records, stale); err != nil {
		s.log.Warn().Err(err).Int("questions", len(records)).Msg("search: reindex failed")
		return
	}
	s.indexed = version
	s.known = current
}
