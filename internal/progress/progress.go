// Package progress holds the pure state transitions of a diagnostic session.
// Live answer processing and replay-based reconstruction share these rules so
// a state rebuilt from the question log matches the one maintained live.
package progress

import (
	"errors"
	"time"

	"diagnostics/internal/config"
	"diagnostics/internal/model"
)

var (
	ErrQuestionMismatch = errors.New("question is not the session's current question")
	ErrNoActiveSubtopic = errors.New("session has no active subtopic")
	ErrSubtopicClosed   = errors.New("subtopic quota already met")
)

// ClampDifficulty forces d into the supported difficulty range
func ClampDifficulty(d int) int {
	if d < config.MinDifficulty {
		return config.MinDifficulty
	}
	if d > config.MaxDifficulty {
		return config.MaxDifficulty
	}
	return d
}

// StepDifficulty moves one level up on a correct answer and one down otherwise
func StepDifficulty(current int, correct bool) int {
	if correct {
		return ClampDifficulty(current + 1)
	}
	return ClampDifficulty(current - 1)
}

// NewSessionState builds the initial projection for a freshly created session
func NewSessionState(session *model.DiagnosticSession, subtopics []model.Subtopic, quota, startDifficulty int, now time.Time) *model.SessionState {
	subs := make([]model.SubtopicProgress, len(subtopics))
	for i, st := range subtopics {
		subs[i] = model.SubtopicProgress{
			SubtopicID:        st.ID,
			SubtopicName:      st.Name,
			QuestionsTotal:    quota,
			QuestionsAnswered: 0,
			CurrentDifficulty: ClampDifficulty(startDifficulty),
			UsedQuestionIDs:   []string{},
		}
	}
	return &model.SessionState{
		SessionID:            session.ID,
		RunID:                session.RunID,
		StudentID:            session.StudentID,
		SubjectID:            session.SubjectID,
		GradeID:              session.GradeID,
		CurriculumID:         session.CurriculumID,
		Subtopics:            subs,
		CurrentSubtopicIndex: 0,
		CurrentQuestionID:    nil,
		AnsweredCount:        0,
		TotalQuestions:       quota * len(subtopics),
		Status:               session.Status,
		StartedAt:            session.CreatedAt,
		LastActivity:         now,
	}
}

// AdvanceSubtopic moves to the next subtopic and reports whether the list is exhausted
func AdvanceSubtopic(state *model.SessionState) bool {
	if state.CurrentSubtopicIndex < len(state.Subtopics) {
		state.CurrentSubtopicIndex++
	}
	return state.CurrentSubtopicIndex >= len(state.Subtopics)
}

// Effect describes what a single answer did to the state
type Effect struct {
	SubtopicIndex      int
	Subtopic           model.SubtopicProgress
	PreviousDifficulty int
	NewDifficulty      int
	SubtopicComplete   bool
	SessionCompleted   bool
	FirstAnswer        bool
}

// ApplyAnswer records an answer to the pending question and advances the state.
// The state is left untouched when an error is returned.
func ApplyAnswer(state *model.SessionState, questionID string, correct bool, now time.Time) (Effect, error) {
	if !state.HasPendingQuestion() || *state.CurrentQuestionID != questionID {
		return Effect{}, ErrQuestionMismatch
	}
	sub := state.CurrentSubtopic()
	if sub == nil {
		return Effect{}, ErrNoActiveSubtopic
	}
	if sub.IsComplete() {
		return Effect{}, ErrSubtopicClosed
	}

	eff := Effect{
		SubtopicIndex:      state.CurrentSubtopicIndex,
		PreviousDifficulty: sub.CurrentDifficulty,
	}

	sub.UsedQuestionIDs = append(sub.UsedQuestionIDs, questionID)
	sub.QuestionsAnswered++
	sub.CurrentDifficulty = StepDifficulty(sub.CurrentDifficulty, correct)
	eff.NewDifficulty = sub.CurrentDifficulty

	state.AnsweredCount++
	state.CurrentQuestionID = nil
	state.LastActivity = now
	if state.Status == model.SessionStarted {
		state.Status = model.SessionInProgress
		eff.FirstAnswer = true
	}

	eff.Subtopic = *sub
	eff.Subtopic.UsedQuestionIDs = append([]string(nil), sub.UsedQuestionIDs...)

	if sub.IsComplete() {
		eff.SubtopicComplete = true
		if AdvanceSubtopic(state) {
			state.Status = model.SessionCompleted
			eff.SessionCompleted = true
		}
	}
	return eff, nil
}
