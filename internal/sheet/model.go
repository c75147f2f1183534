// Package sheet holds the canonical question sheet tree and the store that
// guards its invariants.
package sheet

type Meta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UpdatedAt   string `json:"updatedAt"`
	Slug        string `json:"slug"`
}

type Question struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Difficulty Difficulty `json:"difficulty"`
	Resource   string     `json:"resource"`
	ProblemURL string     `json:"problemUrl"`
	IsSolved   bool       `json:"isSolved"`
}

type SubTopic struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

type Topic struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	SubTopics []SubTopic `json:"subTopics"`
}

// Sheet is the aggregate root and the whole persisted document.
type Sheet struct {
	Meta   Meta    `json:"meta"`
	Topics []Topic `json:"topics"`
}

const (
	DefaultSheetName    = "Question Sheet"
	DefaultTopicName    = "Untitled Topic"
	DefaultSubTopicName = "General"
	DefaultQuestionName = "Untitled Question"
)

func (s Sheet) Clone() Sheet {
	out := Sheet{Meta: s.Meta, Topics: make([]Topic, len(s.Topics))}
	for i, topic := range s.Topics {
		out.Topics[i] = topic.Clone()
	}
	return out
}

func (t Topic) Clone() Topic {
	out := Topic{ID: t.ID, Name: t.Name, SubTopics: make([]SubTopic, len(t.SubTopics))}
	for i, sub := range t.SubTopics {
		out.SubTopics[i] = sub.Clone()
	}
	return out
}

func (s SubTopic) Clone() SubTopic {
	out := SubTopic{ID: s.ID, Name: s.Name, Questions: make([]Question, len(s.Questions))}
	copy(out.Questions, s.Questions)
	return out
}

func topicID(t Topic) string       { return t.ID }
func subTopicID(s SubTopic) string { return s.ID }
func questionID(q Question) string { return q.ID }

// QuestionCount returns the number of questions in the whole tree.
func (s Sheet) QuestionCount() int {
	total := 0
	for _, topic := range s.Topics {
		for _, sub := range topic.SubTopics {
			total += len(sub.Questions)
		}
	}
	return total
}
