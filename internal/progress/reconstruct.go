package progress

import (
	"sort"

	"diagnostics/internal/model"
)

// ReplayInput is everything reconstruction needs. Questions may be in any order.
type ReplayInput struct {
	Session         *model.DiagnosticSession
	Subtopics       []model.Subtopic
	Questions       []model.AssessmentQuestion
	Quota           int
	StartDifficulty int
}

// Reconstruct rebuilds a session state from its assessment question log.
//
// Answered rows are replayed in question_number order with the live difficulty
// rule. The current subtopic is the first one with remaining quota at or after
// the subtopic of the most recently issued question, which is where live
// processing leaves the index even when exhausted subtopics were skipped.
// A trailing unanswered row on a non-terminal session becomes the pending question.
func Reconstruct(in ReplayInput) *model.SessionState {
	state := NewSessionState(in.Session, in.Subtopics, in.Quota, in.StartDifficulty, in.Session.CreatedAt)

	position := make(map[string]int, len(state.Subtopics))
	for i, sub := range state.Subtopics {
		position[sub.SubtopicID] = i
	}

	rows := make([]model.AssessmentQuestion, len(in.Questions))
	copy(rows, in.Questions)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].QuestionNumber < rows[j].QuestionNumber
	})

	anchor := 0
	var pending *model.AssessmentQuestion
	for i := range rows {
		row := &rows[i]
		idx, ok := position[row.SubtopicID]
		if !ok {
			continue
		}
		anchor = idx
		pending = nil
		if !row.IsAnswered() {
			pending = row
			continue
		}
		sub := &state.Subtopics[idx]
		if sub.IsComplete() {
			continue
		}
		sub.UsedQuestionIDs = append(sub.UsedQuestionIDs, row.QuestionID)
		sub.QuestionsAnswered++
		sub.CurrentDifficulty = StepDifficulty(sub.CurrentDifficulty, *row.IsCorrect)
		state.AnsweredCount++
		if row.AnsweredAt != nil && row.AnsweredAt.After(state.LastActivity) {
			state.LastActivity = *row.AnsweredAt
		}
	}

	state.Status = in.Session.Status
	if state.Status == model.SessionCompleted {
		state.CurrentSubtopicIndex = len(state.Subtopics)
		return state
	}

	idx := anchor
	for idx < len(state.Subtopics) && state.Subtopics[idx].IsComplete() {
		idx++
	}
	state.CurrentSubtopicIndex = idx

	if pending != nil && !state.Status.IsTerminal() {
		qid := pending.QuestionID
		state.CurrentQuestionID = &qid
	}
	return state
}
