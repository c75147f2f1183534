package sheet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Payload is the raw sheet import format: a flat list of question records
// carrying free-text topic and sub-topic names.
type Payload struct {
	Sheet     RawSheet
	Questions []RawQuestion
}

type RawSheet struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	UpdatedAt   *string `json:"updatedAt"`
	CreatedAt   *string `json:"createdAt"`
	Slug        *string `json:"slug"`
}

// RawQuestion is one imported record. Its external "_id" is deliberately not
// decoded: ids are always generated so they cannot collide with local ones.
type RawQuestion struct {
	Topic       looseString    `json:"topic"`
	SubTopic    looseString    `json:"subTopic"`
	Title       looseString    `json:"title"`
	Difficulty  looseString    `json:"difficulty"`
	Resource    looseString    `json:"resource"`
	ProblemURL  looseString    `json:"problemUrl"`
	IsSolved    LooseBool      `json:"isSolved"`
	QuestionRef RawQuestionRef `json:"questionId"`
}

// RawQuestionRef is the nested question record. Some exports carry a bare id
// string here instead of an object; that form is accepted and ignored.
type RawQuestionRef struct {
	Name       looseString `json:"name"`
	Difficulty looseString `json:"difficulty"`
	ProblemURL looseString `json:"problemUrl"`
}

func (r *RawQuestionRef) UnmarshalJSON(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 || bytes.TrimSpace(data)[0] != '{' {
		return nil
	}
	type plain RawQuestionRef
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = RawQuestionRef(decoded)
	return nil
}

type rawSection struct {
	Sheet     *RawSheet     `json:"sheet"`
	Questions []RawQuestion `json:"questions"`
}

type rawEnvelope struct {
	rawSection
	Data *rawSection `json:"data"`
}

// ParsePayload decodes a raw import document. The sheet and question list may
// sit at the top level or one level down under "data"; top-level keys win.
func ParsePayload(data []byte) (Payload, error) {
	var envelope rawEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Payload{}, invalid("payload", fmt.Sprintf("malformed import payload: %v", err))
	}
	// A key that is present but null still marks an import document; its
	// value falls back to the default like a missing one.
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return Payload{}, invalid("payload", fmt.Sprintf("malformed import payload: %v", err))
	}
	_, hasSheet := keys["sheet"]
	_, hasQuestions := keys["questions"]
	_, hasData := keys["data"]
	if !hasSheet && !hasQuestions && !hasData {
		return Payload{}, invalid("payload", "neither sheet nor questions present")
	}

	var payload Payload
	switch {
	case envelope.Sheet != nil:
		payload.Sheet = *envelope.Sheet
	case envelope.Data != nil && envelope.Data.Sheet != nil:
		payload.Sheet = *envelope.Data.Sheet
	}
	switch {
	case envelope.Questions != nil:
		payload.Questions = envelope.Questions
	case envelope.Data != nil:
		payload.Questions = envelope.Data.Questions
	}
	return payload, nil
}

// Normalize builds the canonical tree. Topics and sub-topics are deduplicated by
// exact name in first-seen order; every entity gets a fresh id from newID.
func Normalize(p Payload, newID func() string) Sheet {
	out := Sheet{
		Meta: Meta{
			Name:        stringOr(p.Sheet.Name, DefaultSheetName),
			Description: stringOr(p.Sheet.Description, ""),
			UpdatedAt:   stringOr(p.Sheet.UpdatedAt, stringOr(p.Sheet.CreatedAt, "")),
			Slug:        stringOr(p.Sheet.Slug, ""),
		},
		Topics: []Topic{},
	}

	topicIndex := make(map[string]int)
	for _, item := range p.Questions {
		topicName := firstNonBlank(strings.TrimSpace(string(item.Topic)), DefaultTopicName)
		subName := firstNonBlank(strings.TrimSpace(string(item.SubTopic)), DefaultSubTopicName)

		ti, ok := topicIndex[topicName]
		if !ok {
			out.Topics = append(out.Topics, Topic{ID: newID(), Name: topicName, SubTopics: []SubTopic{}})
			ti = len(out.Topics) - 1
			topicIndex[topicName] = ti
		}
		topic := &out.Topics[ti]

		si := -1
		for i := range topic.SubTopics {
			if topic.SubTopics[i].Name == subName {
				si = i
				break
			}
		}
		if si < 0 {
			topic.SubTopics = append(topic.SubTopics, SubTopic{ID: newID(), Name: subName, Questions: []Question{}})
			si = len(topic.SubTopics) - 1
		}

		problemURL := firstNonBlank(string(item.QuestionRef.ProblemURL), string(item.ProblemURL))
		sub := &topic.SubTopics[si]
		sub.Questions = append(sub.Questions, Question{
			ID:         newID(),
			Title:      firstNonBlank(strings.TrimSpace(string(item.Title)), strings.TrimSpace(string(item.QuestionRef.Name)), DefaultQuestionName),
			Difficulty: NormalizeDifficulty(firstNonBlank(string(item.QuestionRef.Difficulty), string(item.Difficulty))),
			Resource:   firstNonBlank(string(item.Resource), problemURL),
			ProblemURL: problemURL,
			IsSolved:   bool(item.IsSolved),
		})
	}
	return out
}

func stringOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// looseString accepts strings, numbers and booleans; anything else decodes as "".
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	switch v := value.(type) {
	case string:
		*s = looseString(v)
	case float64:
		*s = looseString(strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		*s = looseString(strconv.FormatBool(v))
	default:
		*s = ""
	}
	return nil
}

// LooseBool coerces JSON booleans, numbers and the strings true/false, 1/0,
// yes/no into a bool. Unknown values are false.
type LooseBool bool

func (b *LooseBool) UnmarshalJSON(data []byte) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	switch v := value.(type) {
	case bool:
		*b = LooseBool(v)
	case float64:
		*b = v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y", "on":
			*b = true
		default:
			*b = false
		}
	default:
		*b = false
	}
	return nil
}
