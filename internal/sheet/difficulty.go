package sheet

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Difficulty is one of Easy, Medium or Hard. Unrecognized labels pass through
// with their first letter capitalized.
type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

// Canonical reports whether d is one of the three known levels.
func (d Difficulty) Canonical() bool {
	switch d {
	case Easy, Medium, Hard:
		return true
	}
	return false
}

// NormalizeDifficulty maps free-form input onto a Difficulty. It is idempotent.
func NormalizeDifficulty(raw string) Difficulty {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Medium
	}
	switch strings.ToLower(value) {
	case "basic", "easy":
		return Easy
	case "medium":
		return Medium
	case "hard":
		return Hard
	}
	first, size := utf8.DecodeRuneInString(value)
	return Difficulty(string(unicode.ToUpper(first)) + value[size:])
}

// UnmarshalJSON normalizes whatever label was stored.
func (d *Difficulty) UnmarshalJSON(data []byte) error {
	var raw looseString
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}
	*d = NormalizeDifficulty(string(raw))
	return nil
}
