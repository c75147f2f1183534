package sheet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Encode serializes the canonical document.
func Encode(s Sheet) ([]byte, error) {
	payload, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode sheet: %w", err)
	}
	return append(payload, '\n'), nil
}

// IsCanonical reports whether data already has the {meta, topics} shape.
func IsCanonical(data []byte) bool {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return false
	}
	return present(keys["meta"]) && present(keys["topics"])
}

// Decode reads a canonical document and checks its invariants. Any failure is
// reported as a CorruptStateError.
func Decode(data []byte) (Sheet, error) {
	var s Sheet
	if err := json.Unmarshal(data, &s); err != nil {
		return Sheet{}, &CorruptStateError{Err: err}
	}
	if err := s.check(); err != nil {
		return Sheet{}, &CorruptStateError{Err: err}
	}
	return s, nil
}

// check validates a decoded tree in place: names are trimmed, nil sequences
// become empty, and ids must be present and unique.
func (s *Sheet) check() error {
	seen := make(map[string]struct{})
	claim := func(level Level, id string) error {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%s with empty id", level)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
		return nil
	}

	if s.Topics == nil {
		s.Topics = []Topic{}
	}
	for ti := range s.Topics {
		topic := &s.Topics[ti]
		if err := claim(LevelTopic, topic.ID); err != nil {
			return err
		}
		topic.Name = strings.TrimSpace(topic.Name)
		if topic.Name == "" {
			return fmt.Errorf("topic %q has empty name", topic.ID)
		}
		if topic.SubTopics == nil {
			topic.SubTopics = []SubTopic{}
		}
		for si := range topic.SubTopics {
			sub := &topic.SubTopics[si]
			if err := claim(LevelSubTopic, sub.ID); err != nil {
				return err
			}
			sub.Name = strings.TrimSpace(sub.Name)
			if sub.Name == "" {
				return fmt.Errorf("sub-topic %q has empty name", sub.ID)
			}
			if sub.Questions == nil {
				sub.Questions = []Question{}
			}
			for qi := range sub.Questions {
				q := &sub.Questions[qi]
				if err := claim(LevelQuestion, q.ID); err != nil {
					return err
				}
				q.Title = strings.TrimSpace(q.Title)
				if q.Title == "" {
					return fmt.Errorf("question %q has empty title", q.ID)
				}
				q.Difficulty = NormalizeDifficulty(string(q.Difficulty))
			}
		}
	}
	return nil
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
