package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"sheettracker/api/internal/export"
	"sheettracker/api/internal/search"
	"sheettracker/api/internal/sheet"
)

// Pinger is a dependency checked by /api/ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Exporter interface {
	Export(ctx context.Context, sh sheet.Sheet, format export.Format) (*export.Result, error)
}

// HistoryEntry is one saved version as reported by a versioning backend.
type HistoryEntry struct {
	Revision string    `json:"revision"`
	Message  string    `json:"message,omitempty"`
	Author   string    `json:"author,omitempty"`
	SavedAt  time.Time `json:"savedAt"`
}

type HistorySource interface {
	History(ctx context.Context, limit int) ([]HistoryEntry, error)
}

type HistoryFunc func(ctx context.Context, limit int) ([]HistoryEntry, error)

func (f HistoryFunc) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	return f(ctx, limit)
}

type Options struct {
	Search  *search.Service
	Export  Exporter
	History HistorySource
	Checks  map[string]Pinger
	Metrics *Metrics
	Logger  zerolog.Logger
}

// Service sits between the HTTP layer and the sheet store: it records
// metrics and logs for every mutation and owns the read-side projections.
type Service struct {
	store   *sheet.Store
	search  *search.Service
	export  Exporter
	history HistorySource
	checks  map[string]Pinger
	metrics *Metrics
	log     zerolog.Logger
}

func NewService(store *sheet.Store, opts Options) *Service {
	s := &Service{
		store:   store,
		search:  opts.Search,
		export:  opts.Export,
		history: opts.History,
		checks:  opts.Checks,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
	if s.search == nil {
		s.search = search.NewService(nil, s.log)
	}
	if s.export == nil {
		s.export = export.NewService()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	s.metrics.Observe(sheet.Mutation{}, store.Sheet())
	return s
}

func (s *Service) Metrics() *Metrics { return s.metrics }

// Ping runs every readiness check and returns the failures by name.
func (s *Service) Ping(ctx context.Context) map[string]error {
	failures := map[string]error{}
	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			failures[name] = err
		}
	}
	return failures
}

func (s *Service) record(ctx context.Context, op sheet.Op, err error) {
	s.metrics.observeMutation(op, err)
	if err == nil {
		s.metrics.Observe(sheet.Mutation{Op: op}, s.store.Sheet())
		return
	}
	if errors.Is(err, sheet.ErrValidation) || errors.Is(err, sheet.ErrNotFound) {
		return
	}
	s.log.Error().Err(err).
		Str("request_id", requestIDFrom(ctx)).
		Str("op", string(op)).
		Msg("sheet mutation failed")
}

func (s *Service) Sheet() sheet.Sheet { return s.store.Sheet() }

func (s *Service) UpdateMeta(ctx context.Context, patch sheet.MetaPatch) (sheet.Meta, error) {
	meta, err := s.store.UpdateMeta(ctx, patch)
	s.record(ctx, sheet.OpUpdateMeta, err)
	return meta, err
}

func (s *Service) CreateTopic(ctx context.Context, in sheet.TopicInput) (sheet.Topic, error) {
	topic, err := s.store.CreateTopic(ctx, in)
	s.record(ctx, sheet.OpCreateTopic, err)
	return topic, err
}

func (s *Service) RenameTopic(ctx context.Context, id, name string) (sheet.Topic, error) {
	topic, err := s.store.RenameTopic(ctx, id, name)
	s.record(ctx, sheet.OpRenameTopic, err)
	return topic, err
}

func (s *Service) DeleteTopic(ctx context.Context, id string) error {
	err := s.store.DeleteTopic(ctx, id)
	s.record(ctx, sheet.OpDeleteTopic, err)
	return err
}

func (s *Service) CreateSubTopic(ctx context.Context, topicID string, in sheet.SubTopicInput) (sheet.SubTopic, error) {
	sub, err := s.store.CreateSubTopic(ctx, topicID, in)
	s.record(ctx, sheet.OpCreateSubTopic, err)
	return sub, err
}

func (s *Service) RenameSubTopic(ctx context.Context, topicID, id, name string) (sheet.SubTopic, error) {
	sub, err := s.store.RenameSubTopic(ctx, topicID, id, name)
	s.record(ctx, sheet.OpRenameSubTopic, err)
	return sub, err
}

func (s *Service) DeleteSubTopic(ctx context.Context, topicID, id string) error {
	err := s.store.DeleteSubTopic(ctx, topicID, id)
	s.record(ctx, sheet.OpDeleteSubTopic, err)
	return err
}

func (s *Service) CreateQuestion(ctx context.Context, topicID, subID string, in sheet.QuestionInput) (sheet.Question, error) {
	q, err := s.store.CreateQuestion(ctx, topicID, subID, in)
	s.record(ctx, sheet.OpCreateQuestion, err)
	return q, err
}

func (s *Service) UpdateQuestion(ctx context.Context, topicID, subID, id string, patch sheet.QuestionPatch) (sheet.Question, error) {
	q, err := s.store.UpdateQuestion(ctx, topicID, subID, id, patch)
	s.record(ctx, sheet.OpUpdateQuestion, err)
	return q, err
}

func (s *Service) DeleteQuestion(ctx context.Context, topicID, subID, id string) error {
	err := s.store.DeleteQuestion(ctx, topicID, subID, id)
	s.record(ctx, sheet.OpDeleteQuestion, err)
	return err
}

func (s *Service) ToggleSolved(ctx context.Context, topicID, subID, id string) (sheet.Question, error) {
	q, err := s.store.ToggleSolved(ctx, topicID, subID, id)
	s.record(ctx, sheet.OpToggleSolved, err)
	return q, err
}

func (s *Service) ReorderTopics(ctx context.Context, activeID, overID string) ([]sheet.Topic, error) {
	topics, err := s.store.ReorderTopics(ctx, activeID, overID)
	s.record(ctx, sheet.OpReorderTopics, err)
	return topics, err
}

func (s *Service) ReorderSubTopics(ctx context.Context, topicID, activeID, overID string) ([]sheet.SubTopic, error) {
	subs, err := s.store.ReorderSubTopics(ctx, topicID, activeID, overID)
	s.record(ctx, sheet.OpReorderSubTopics, err)
	return subs, err
}

func (s *Service) ReorderQuestions(ctx context.Context, topicID, subID, activeID, overID string) ([]sheet.Question, error) {
	questions, err := s.store.ReorderQuestions(ctx, topicID, subID, activeID, overID)
	s.record(ctx, sheet.OpReorderQuestions, err)
	return questions, err
}

func (s *Service) Reset(ctx context.Context, raw []byte) (sheet.Sheet, error) {
	sh, err := s.store.Reset(ctx, raw)
	s.record(ctx, sheet.OpReset, err)
	if err == nil {
		s.log.Info().
			Str("request_id", requestIDFrom(ctx)).
			Int("topics", len(sh.Topics)).
			Int("questions", sh.QuestionCount()).
			Msg("sheet reset from import payload")
	}
	return sh, err
}

func (s *Service) Stats() sheet.Stats {
	return sheet.ComputeStats(s.store.Sheet())
}

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(s.store.Sheet(), q)
}

func (s *Service) Export(ctx context.Context, format export.Format) (*export.Result, error) {
	return s.export.Export(ctx, s.store.Sheet(), format)
}

func (s *Service) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if s.history == nil {
		return nil, domainError(http.StatusNotFound, "HISTORY_UNAVAILABLE", "The configured backend keeps no history", nil)
	}
	return s.history.History(ctx, limit)
}
