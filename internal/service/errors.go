package service

import (
	"errors"
	"fmt"
)

var (
	ErrStudentNotFound            = errors.New("student not found")
	ErrProfileIncomplete          = errors.New("student profile is missing grade or curriculum")
	ErrNoSubjects                 = errors.New("curriculum has no active subjects")
	ErrSessionNotFound            = errors.New("diagnostic session not found")
	ErrSessionTerminal            = errors.New("diagnostic session is already completed or abandoned")
	ErrQuestionMismatch           = errors.New("question is not the session's current question")
	ErrAlreadyAnswered            = errors.New("question has already been answered")
	ErrAssessmentQuestionNotFound = errors.New("assessment question not found")
	ErrQuestionNotFound           = errors.New("catalog question not found")
	ErrInvalidDifficulty          = errors.New("difficulty must be between 1 and 5")
	ErrInvalidRequest             = errors.New("invalid request")
)

// Kind groups errors by how callers should react to them
type Kind int

const (
	KindInternal Kind = iota
	KindConfiguration
	KindValidation
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrProfileIncomplete, KindConfiguration},
	{ErrNoSubjects, KindConfiguration},
	{ErrInvalidDifficulty, KindValidation},
	{ErrInvalidRequest, KindValidation},
	{ErrStudentNotFound, KindNotFound},
	{ErrSessionNotFound, KindNotFound},
	{ErrAssessmentQuestionNotFound, KindNotFound},
	{ErrQuestionNotFound, KindNotFound},
	{ErrQuestionMismatch, KindConflict},
	{ErrAlreadyAnswered, KindConflict},
	{ErrSessionTerminal, KindConflict},
}

// KindOf classifies err. Unknown errors, including store and cache failures, are internal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Code is a stable machine readable identifier for a domain error
func Code(err error) string {
	switch {
	case errors.Is(err, ErrQuestionMismatch):
		return "question_mismatch"
	case errors.Is(err, ErrAlreadyAnswered):
		return "already_answered"
	case errors.Is(err, ErrSessionTerminal):
		return "session_terminal"
	case errors.Is(err, ErrProfileIncomplete):
		return "profile_incomplete"
	case errors.Is(err, ErrNoSubjects):
		return "no_subjects"
	}
	return KindOf(err).String()
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
