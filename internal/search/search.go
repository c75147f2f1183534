// Package search filters the sheet by free text and difficulty, optionally
// backed by a Meilisearch index of questions.
package search

import (
	"strings"

	"sheettracker/api/internal/sheet"
)

// AllDifficulties disables the difficulty filter.
const AllDifficulties = "all"

// Query describes a search request. Text matches a question title, its
// sub-topic name or its topic name, case-insensitively. Difficulty is "all",
// empty, or one difficulty label.
type Query struct {
	Text       string
	Difficulty string
	Limit      int
}

func (q Query) text() string { return strings.ToLower(strings.TrimSpace(q.Text)) }

func (q Query) difficulty() (sheet.Difficulty, bool) {
	raw := strings.TrimSpace(q.Difficulty)
	if raw == "" || strings.EqualFold(raw, AllDifficulties) {
		return "", false
	}
	return sheet.NormalizeDifficulty(raw), true
}

// IsZero reports whether q matches every question.
func (q Query) IsZero() bool {
	_, filtered := q.difficulty()
	return q.text() == "" && !filtered
}

// Filter returns a copy of sh keeping every topic and sub-topic but only the
// questions that match q. A positive Limit keeps the first Limit matches in
// tree order.
func Filter(sh sheet.Sheet, q Query) sheet.Sheet {
	text := q.text()
	diff, byDifficulty := q.difficulty()
	matched := 0
	return prune(sh, func(topic sheet.Topic, sub sheet.SubTopic, question sheet.Question) bool {
		if q.Limit > 0 && matched >= q.Limit {
			return false
		}
		if byDifficulty && !strings.EqualFold(string(question.Difficulty), string(diff)) {
			return false
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(question.Title), text) &&
			!strings.Contains(strings.ToLower(sub.Name), text) &&
			!strings.Contains(strings.ToLower(topic.Name), text) {
			return false
		}
		matched++
		return true
	})
}

// keepIDs returns a copy of sh holding only the questions whose id is in ids.
func keepIDs(sh sheet.Sheet, ids map[string]struct{}) sheet.Sheet {
	return prune(sh, func(_ sheet.Topic, _ sheet.SubTopic, question sheet.Question) bool {
		_, ok := ids[question.ID]
		return ok
	})
}

func prune(sh sheet.Sheet, keep func(sheet.Topic, sheet.SubTopic, sheet.Question) bool) sheet.Sheet {
	out := sh.Clone()
	for ti := range out.Topics {
		topic := &out.Topics[ti]
		for si := range topic.SubTopics {
			sub := &topic.SubTopics[si]
			kept := make([]sheet.Question, 0, len(sub.Questions))
			for _, question := range sub.Questions {
				if keep(*topic, *sub, question) {
					kept = append(kept, question)
				}
			}
			sub.Questions = kept
		}
	}
	return out
}

// QuestionRecord is the data indexed for one question.
type QuestionRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Difficulty   string `json:"difficulty"`
	IsSolved     bool   `json:"isSolved"`
	TopicID      string `json:"topicId"`
	TopicName    string `json:"topicName"`
	SubTopicID   string `json:"subTopicId"`
	SubTopicName string `json:"subTopicName"`
}

// Records flattens sh into index records in tree order.
func Records(sh sheet.Sheet) []QuestionRecord {
	records := make([]QuestionRecord, 0, sh.QuestionCount())
	for _, topic := range sh.Topics {
		for _, sub := range topic.SubTopics {
			for _, q := range sub.Questions {
				records = append(records, QuestionRecord{
					ID:           q.ID,
					Title:        q.Title,
					Difficulty:   string(q.Difficulty),
					IsSolved:     q.IsSolved,
					TopicID:      topic.ID,
					TopicName:    topic.Name,
					SubTopicID:   sub.ID,
					SubTopicName: sub.Name,
				})
			}
		}
	}
	return records
}
