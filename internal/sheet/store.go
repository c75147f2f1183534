package sheet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sheettracker/api/internal/util"
)

// Persister is where a Store writes the whole document after every mutation.
// Load returns ErrNoState when nothing has been written yet.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Mirror forwards a validated mutation to another authoritative copy before it
// is committed locally. A Mirror error discards the local mutation.
type Mirror interface {
	Apply(ctx context.Context, m Mutation) error
}

// CommitHook observes every committed mutation. It receives a private copy.
type CommitHook func(m Mutation, s Sheet)

// TimeLayout is the format used to stamp Meta.UpdatedAt.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

type Store struct {
	mu        sync.Mutex
	sheet     Sheet
	persister Persister
	mirror    Mirror
	hooks     []CommitHook
	seed      []byte
	newID     func() string
	now       func() time.Time
	log       zerolog.Logger
}

type Option func(*Store)

func WithMirror(m Mirror) Option { return func(s *Store) { s.mirror = m } }

func WithCommitHook(h CommitHook) Option {
	return func(s *Store) { s.hooks = append(s.hooks, h) }
}

// WithSeed sets the document used when the persister holds nothing yet. It may
// be a raw import payload or an already canonical sheet.
func WithSeed(data []byte) Option { return func(s *Store) { s.seed = data } }

func WithIDFunc(fn func() string) Option { return func(s *Store) { s.newID = fn } }

func WithClock(fn func() time.Time) Option { return func(s *Store) { s.now = fn } }

func WithLogger(log zerolog.Logger) Option { return func(s *Store) { s.log = log } }

// Open loads the persisted sheet, building it from the seed (or an empty tree)
// when nothing is stored and normalizing it when the stored shape is raw. The
// canonical form is written back before Open returns.
func Open(ctx context.Context, persister Persister, opts ...Option) (*Store, error) {
	s := &Store{
		persister: persister,
		newID:     util.NewID,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := persister.Load(ctx)
	fromSeed := errors.Is(err, ErrNoState)
	switch {
	case fromSeed:
		data = s.seed
	case err != nil:
		return nil, &PersistenceError{Op: "load", Err: err}
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		s.sheet = Sheet{Meta: Meta{Name: DefaultSheetName}, Topics: []Topic{}}
		s.log.Info().Msg("sheet: starting from an empty tree")
		return s.written(ctx)
	}

	if IsCanonical(data) {
		loaded, err := Decode(data)
		if err != nil {
			return nil, err
		}
		s.sheet = loaded
		if fromSeed {
			return s.written(ctx)
		}
		return s, nil
	}

	payload, err := ParsePayload(data)
	if err != nil {
		return nil, &CorruptStateError{Err: err}
	}
	s.sheet = Normalize(payload, s.newID)
	s.log.Info().
		Int("topics", len(s.sheet.Topics)).
		Int("questions", s.sheet.QuestionCount()).
		Msg("sheet: normalized raw import")
	return s.written(ctx)
}

// written persists the freshly built tree and hands back the Store only when
// that first save succeeds.
func (s *Store) written(ctx context.Context) (*Store, error) {
	if err := s.save(ctx, s.sheet); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) save(ctx context.Context, next Sheet) error {
	data, err := Encode(next)
	if err != nil {
		return &PersistenceError{Op: "encode", Err: err}
	}
	if err := s.persister.Save(ctx, data); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

// mutate runs apply against a private copy and commits it only after the
// mirror and the persister both succeed. finalize fills in parts of m that are
// only known once apply has run, such as an assigned id.
func (s *Store) mutate(ctx context.Context, m Mutation, apply func(*Sheet) error, finalize ...func(*Mutation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.sheet.Clone()
	if err := apply(&next); err != nil {
		return err
	}
	for _, fn := range finalize {
		fn(&m)
	}
	next.Meta.UpdatedAt = s.now().UTC().Format(TimeLayout)

	if s.mirror != nil {
		if err := s.mirror.Apply(ctx, m); err != nil {
			s.log.Warn().Err(err).Str("op", string(m.Op)).Msg("sheet: mirror rejected mutation")
			return &PersistenceError{Op: "mirror", Err: err}
		}
	}
	if err := s.save(ContextWithMutation(ctx, m), next); err != nil {
		s.log.Error().Err(err).Str("op", string(m.Op)).Msg("sheet: mutation rolled back")
		return err
	}
	s.sheet = next

	for _, hook := range s.hooks {
		hook(m, next.Clone())
	}
	return nil
}

// Sheet returns a copy of the whole tree.
func (s *Store) Sheet() Sheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheet.Clone()
}

func (s *Store) UpdateMeta(ctx context.Context, patch MetaPatch) (Meta, error) {
	err := s.mutate(ctx, Mutation{Op: OpUpdateMeta, Meta: &patch}, func(sh *Sheet) error {
		if patch.Name != nil {
			if name := strings.TrimSpace(*patch.Name); name != "" {
				sh.Meta.Name = name
			}
		}
		if patch.Description != nil {
			sh.Meta.Description = *patch.Description
		}
		return nil
	})
	if err != nil {
		return Meta{}, err
	}
	return s.Sheet().Meta, nil
}

// Reset replaces the whole tree with a fresh normalization of a raw payload.
// It is never mirrored: the remote copy would assign different ids.
func (s *Store) Reset(ctx context.Context, raw []byte) (Sheet, error) {
	payload, err := ParsePayload(raw)
	if err != nil {
		return Sheet{}, err
	}
	built := Normalize(payload, s.newID)

	s.mu.Lock()
	defer s.mu.Unlock()
	built.Meta.UpdatedAt = s.now().UTC().Format(TimeLayout)
	if err := s.save(ContextWithMutation(ctx, Mutation{Op: OpReset}), built); err != nil {
		return Sheet{}, err
	}
	s.sheet = built
	for _, hook := range s.hooks {
		hook(Mutation{Op: OpReset}, built.Clone())
	}
	return built.Clone(), nil
}

func findTopic(sh *Sheet, id string) (*Topic, error) {
	for i := range sh.Topics {
		if sh.Topics[i].ID == id {
			return &sh.Topics[i], nil
		}
	}
	return nil, &NotFoundError{Level: LevelTopic, ID: id}
}

func findSubTopic(sh *Sheet, topicID, id string) (*SubTopic, error) {
	topic, err := findTopic(sh, topicID)
	if err != nil {
		return nil, err
	}
	for i := range topic.SubTopics {
		if topic.SubTopics[i].ID == id {
			return &topic.SubTopics[i], nil
		}
	}
	return nil, &NotFoundError{Level: LevelSubTopic, ID: id}
}

func findQuestion(sh *Sheet, topicID, subID, id string) (*Question, error) {
	sub, err := findSubTopic(sh, topicID, subID)
	if err != nil {
		return nil, err
	}
	for i := range sub.Questions {
		if sub.Questions[i].ID == id {
			return &sub.Questions[i], nil
		}
	}
	return nil, &NotFoundError{Level: LevelQuestion, ID: id}
}

// assignID returns requested when it is free, or a fresh id when requested is
// empty. Client-chosen ids let a mirrored copy keep the same identities.
func (s *Store) assignID(sh *Sheet, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return s.newID(), nil
	}
	if !addressableID(requested) {
		return "", invalid("id", "may only contain letters, digits, '-', '_', '.' and '~'")
	}
	if sh.hasID(requested) {
		return "", invalid("id", "already in use")
	}
	return requested, nil
}

// addressableID reports whether id can be used as a single URL path segment
// without escaping.
func addressableID(id string) bool {
	if id == "." || id == ".." || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
		default:
			return false
		}
	}
	return true
}

func (sh *Sheet) hasID(id string) bool {
	for _, topic := range sh.Topics {
		if topic.ID == id {
			return true
		}
		for _, sub := range topic.SubTopics {
			if sub.ID == id {
				return true
			}
			for _, q := range sub.Questions {
				if q.ID == id {
					return true
				}
			}
		}
	}
	return false
}
