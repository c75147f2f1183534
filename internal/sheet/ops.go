package sheet

import (
	"context"
	"strings"
)

type Op string

const (
	OpCreateTopic      Op = "createTopic"
	OpRenameTopic      Op = "renameTopic"
	OpDeleteTopic      Op = "deleteTopic"
	OpCreateSubTopic   Op = "createSubTopic"
	OpRenameSubTopic   Op = "renameSubTopic"
	OpDeleteSubTopic   Op = "deleteSubTopic"
	OpCreateQuestion   Op = "createQuestion"
	OpUpdateQuestion   Op = "updateQuestion"
	OpDeleteQuestion   Op = "deleteQuestion"
	OpToggleSolved     Op = "toggleSolved"
	OpReorderTopics    Op = "reorderTopics"
	OpReorderSubTopics Op = "reorderSubTopics"
	OpReorderQuestions Op = "reorderQuestions"
	OpUpdateMeta       Op = "updateMeta"
	OpReset            Op = "reset"
)

// Mutation describes one validated change. ID carries the id assigned by a
// create so mirrors can reuse it.
type Mutation struct {
	Op         Op
	TopicID    string
	SubTopicID string
	ID         string
	Name       string
	Question   *QuestionInput
	Patch      *QuestionPatch
	Meta       *MetaPatch
	ActiveID   string
	OverID     string
}

type TopicInput struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type SubTopicInput struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type QuestionInput struct {
	ID         string `json:"id,omitempty"`
	Title      string `json:"title"`
	Difficulty string `json:"difficulty,omitempty"`
	Resource   string `json:"resource,omitempty"`
	ProblemURL string `json:"problemUrl,omitempty"`
}

// QuestionPatch overwrites only the fields that are set.
type QuestionPatch struct {
	Title      *string    `json:"title,omitempty"`
	Difficulty *string    `json:"difficulty,omitempty"`
	Resource   *string    `json:"resource,omitempty"`
	ProblemURL *string    `json:"problemUrl,omitempty"`
	IsSolved   *LooseBool `json:"isSolved,omitempty"`
}

type MetaPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (s *Store) CreateTopic(ctx context.Context, in TopicInput) (Topic, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Topic{}, invalid("name", "topic name is required")
	}
	var created Topic
	m := Mutation{Op: OpCreateTopic, Name: name}
	err := s.mutate(ctx, m, func(sh *Sheet) error {
		id, err := s.assignID(sh, in.ID)
		if err != nil {
			return err
		}
		created = Topic{ID: id, Name: name, SubTopics: []SubTopic{}}
		sh.Topics = append(sh.Topics, created)
		return nil
	}, func(m *Mutation) { m.ID = created.ID })
	if err != nil {
		return Topic{}, err
	}
	return created, nil
}

// RenameTopic keeps the old name when name is blank.
func (s *Store) RenameTopic(ctx context.Context, id, name string) (Topic, error) {
	name = strings.TrimSpace(name)
	var out Topic
	err := s.mutate(ctx, Mutation{Op: OpRenameTopic, ID: id, Name: name}, func(sh *Sheet) error {
		topic, err := findTopic(sh, id)
		if err != nil {
			return err
		}
		if name != "" {
			topic.Name = name
		}
		out = topic.Clone()
		return nil
	})
	if err != nil {
		return Topic{}, err
	}
	return out, nil
}

func (s *Store) DeleteTopic(ctx context.Context, id string) error {
	return s.mutate(ctx, Mutation{Op: OpDeleteTopic, ID: id}, func(sh *Sheet) error {
		for i := range sh.Topics {
			if sh.Topics[i].ID == id {
				sh.Topics = append(sh.Topics[:i], sh.Topics[i+1:]...)
				return nil
			}
		}
		return &NotFoundError{Level: LevelTopic, ID: id}
	})
}

func (s *Store) CreateSubTopic(ctx context.Context, topicID string, in SubTopicInput) (SubTopic, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return SubTopic{}, invalid("name", "sub-topic name is required")
	}
	var created SubTopic
	m := Mutation{Op: OpCreateSubTopic, TopicID: topicID, Name: name}
	err := s.mutate(ctx, m, func(sh *Sheet) error {
		topic, err := findTopic(sh, topicID)
		if err != nil {
			return err
		}
		id, err := s.assignID(sh, in.ID)
		if err != nil {
			return err
		}
		created = SubTopic{ID: id, Name: name, Questions: []Question{}}
		topic.SubTopics = append(topic.SubTopics, created)
		return nil
	}, func(m *Mutation) { m.ID = created.ID })
	if err != nil {
		return SubTopic{}, err
	}
	return created, nil
}

// RenameSubTopic keeps the old name when name is blank.
func (s *Store) RenameSubTopic(ctx context.Context, topicID, id, name string) (SubTopic, error) {
	name = strings.TrimSpace(name)
	var out SubTopic
	m := Mutation{Op: OpRenameSubTopic, TopicID: topicID, ID: id, Name: name}
	err := s.mutate(ctx, m, func(sh *Sheet) error {
		sub, err := findSubTopic(sh, topicID, id)
		if err != nil {
			return err
		}
		if name != "" {
			sub.Name = name
		}
		out = sub.Clone()
		return nil
	})
	if err != nil {
		return SubTopic{}, err
	}
	return out, nil
}

func (s *Store) DeleteSubTopic(ctx context.Context, topicID, id string) error {
	return s.mutate(ctx, Mutation{Op: OpDeleteSubTopic, TopicID: topicID, ID: id}, func(sh *Sheet) error {
		topic, err := findTopic(sh, topicID)
		if err != nil {
			return err
		}
		for i := range topic.SubTopics {
			if topic.SubTopics[i].ID == id {
				topic.SubTopics = append(topic.SubTopics[:i], topic.SubTopics[i+1:]...)
				return nil
			}
		}
		return &NotFoundError{Level: LevelSubTopic, ID: id}
	})
}

func (s *Store) CreateQuestion(ctx context.Context, topicID, subID string, in QuestionInput) (Question, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Question{}, invalid("title", "question title is required")
	}
	var created Question
	m := Mutation{Op: OpCreateQuestion, TopicID: topicID, SubTopicID: subID, Question: &in}
	err := s.mutate(ctx, m, func(sh *Sheet) error {
		sub, err := findSubTopic(sh, topicID, subID)
		if err != nil {
			return err
		}
		id, err := s.assignID(sh, in.ID)
		if err != nil {
			return err
		}
		created = Question{
			ID:         id,
			Title:      title,
			Difficulty: NormalizeDifficulty(in.Difficulty),
			Resource:   strings.TrimSpace(in.Resource),
			ProblemURL: strings.TrimSpace(in.ProblemURL),
		}
		sub.Questions = append(sub.Questions, created)
		return nil
	}, func(m *Mutation) {
		m.ID = created.ID
		mirrored := *m.Question
		mirrored.ID = created.ID
		m.Question = &mirrored
	})
	if err != nil {
		return Question{}, err
	}
	return created, nil
}

// UpdateQuestion applies patch field by field. A blank title keeps the old one.
func (s *Store) UpdateQuestion(ctx context.Context, topicID, subID, id string, patch QuestionPatch) (Question, error) {
	var out Question
	m := Mutation{Op: OpUpdateQuestion, TopicID: topicID, SubTopicID: subID, ID: id, Patch: &patch}
	err := s.mutate(ctx, m, func(sh *Sheet) error {
		q, err := findQuestion(sh, topicID, subID, id)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			if title := strings.TrimSpace(*patch.Title); title != "" {
				q.Title = title
			}
		}
		if patch.Difficulty != nil {
			q.Difficulty = NormalizeDifficulty(*patch.Difficulty)
		}
		if patch.Resource != nil {
			q.Resource = strings.TrimSpace(*patch.Resource)
		}
		if patch.ProblemURL != nil {
			q.ProblemURL = strings.TrimSpace(*patch.ProblemURL)
		}
		if patch.IsSolved != nil {
			q.IsSolved = bool(*patch.IsSolved)
		}
		out = *q
		return nil
	})
	if err != nil {
		return Question{}, err
	}
	return out, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, topicID, subID, id string) error {
	m := Mutation{Op: OpDeleteQuestion, TopicID: topicID, SubTopicID: subID, ID: id}
	return s.mutate(ctx, m, func(sh *Sheet) error {
		sub, err := findSubTopic(sh, topicID, subID)
		if err != nil {
			return err
		}
		for i := range sub.Questions {
			if sub.Questions[i].ID == id {
				sub.Questions = append(sub.Questions[:i], sub.Questions[i+1:]...)
				return nil
			}
		}
		return &NotFoundError{Level: LevelQuestion, ID: id}
	})
}

// ToggleSolved flips isSolved and returns the updated question.
func (s *Store) ToggleSolved(ctx context.Context, topicID, subID, id string) (Question, error) {
	var out Question
	m := Mutation{Op: OpToggleSolved, TopicID: topicID, SubTopicID: subID, ID: id}
	err := s.mutate(ctx, m, func(sh *Sheet) error {
		q, err := findQuestion(sh, topicID, subID, id)
		if err != nil {
			return err
		}
		q.IsSolved = !q.IsSolved
		out = *q
		return nil
	})
	if err != nil {
		return Question{}, err
	}
	return out, nil
}

func (s *Store) ReorderTopics(ctx context.Context, activeID, overID string) ([]Topic, error) {
	if activeID == overID {
		return s.Sheet().Topics, nil
	}
	var out []Topic
	m := Mutation{Op: OpReorderTopics, ActiveID: activeID, OverID: overID}
	err := s.mutate(ctx, m, func(sh *Sheet) error {
		moved, err := Move(sh.Topics, topicID, activeID, overID)
		if err != nil {
			return err
		}
		sh.Topics = moved
		out = Sheet{Topics: moved}.Clone().Topics
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ReorderSubTopics(ctx context.Context, topicID, activeID, overID string) ([]SubTopic, error) {
	var out []SubTopic
	m := Mutation{Op: OpReorderSubTopics, TopicID: topicID, ActiveID: activeID, OverID: overID}
	if activeID == overID {
		sh := s.Sheet()
		topic, err := findTopic(&sh, topicID)
		if err != nil {
			return nil, err
		}
		return topic.SubTopics, nil
	}
	err := s.mutate(ctx, m, func(sh *Sheet) error {
		topic, err := findTopic(sh, topicID)
		if err != nil {
			return err
		}
		moved, err := Move(topic.SubTopics, subTopicID, activeID, overID)
		if err != nil {
			return err
		}
		topic.SubTopics = moved
		out = topic.Clone().SubTopics
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ReorderQuestions(ctx context.Context, topicID, subID, activeID, overID string) ([]Question, error) {
	var out []Question
	m := Mutation{Op: OpReorderQuestions, TopicID: topicID, SubTopicID: subID, ActiveID: activeID, OverID: overID}
	if activeID == overID {
		sh := s.Sheet()
		sub, err := findSubTopic(&sh, topicID, subID)
		if err != nil {
			return nil, err
		}
		return sub.Questions, nil
	}
	err := s.mutate(ctx, m, func(sh *Sheet) error {
		sub, err := findSubTopic(sh, topicID, subID)
		if err != nil {
			return err
		}
		moved, err := Move(sub.Questions, questionID, activeID, overID)
		if err != nil {
			return err
		}
		sub.Questions = moved
		out = sub.Clone().Questions
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type mutationKey struct{}

// ContextWithMutation attaches m to ctx. The Store does this before every
// save so persisters can describe what changed.
func ContextWithMutation(ctx context.Context, m Mutation) context.Context {
	return context.WithValue(ctx, mutationKey{}, m)
}

// MutationFromContext returns the mutation being saved, if any. Saves issued
// by Open carry none.
func MutationFromContext(ctx context.Context) (Mutation, bool) {
	m, ok := ctx.Value(mutationKey{}).(Mutation)
	return m, ok
}

// Summary is a one-line description such as "toggleSolved q-1".
func (m Mutation) Summary() string {
	target := m.ID
	if target == "" && m.ActiveID != "" {
		target = m.ActiveID + " over " + m.OverID
	}
	if target == "" {
		return string(m.Op)
	}
	return string(m.Op) + " " + target
}
