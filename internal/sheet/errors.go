package sheet

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrPersistence  = errors.New("persistence failed")
	ErrCorruptState = errors.New("corrupt state")

	// ErrNoState is returned by a Persister when nothing has been stored yet.
	ErrNoState = errors.New("no persisted state")
)

type Level string

const (
	LevelTopic    Level = "topic"
	LevelSubTopic Level = "subTopic"
	LevelQuestion Level = "question"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type NotFoundError struct {
	Level Level
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Level, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// PersistenceError means the durable write (or the mirror call) failed and the
// mutation was discarded. Retrying the same call is safe.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error        { return e.Err }
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

type CorruptStateError struct {
	Err error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt sheet state: %v", e.Err)
}

func (e *CorruptStateError) Unwrap() error        { return e.Err }
func (e *CorruptStateError) Is(target error) bool { return target == ErrCorruptState }
