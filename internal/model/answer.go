package model

import "time"

// AssessmentQuestion is one row per question ever issued in a session.
// IsCorrect stays nil until the question is answered.
type AssessmentQuestion struct {
	ID             string     `json:"id" bson:"_id"`
	SessionID      string     `json:"sessionId" bson:"sessionId"`
	QuestionID     string     `json:"questionId" bson:"questionId"`
	SubtopicID     string     `json:"subtopicId" bson:"subtopicId"`
	Difficulty     int        `json:"difficulty" bson:"difficulty"`
	QuestionNumber int        `json:"questionNumber" bson:"questionNumber"`
	StudentAnswer  *string    `json:"studentAnswer,omitempty" bson:"studentAnswer"`
	IsCorrect      *bool      `json:"isCorrect,omitempty" bson:"isCorrect"`
	Score          float64    `json:"score" bson:"score"`
	TimeTaken      int        `json:"timeTaken" bson:"timeTaken"`
	CreatedAt      time.Time  `json:"createdAt" bson:"createdAt"`
	AnsweredAt     *time.Time `json:"answeredAt,omitempty" bson:"answeredAt,omitempty"`
}

func (a *AssessmentQuestion) IsAnswered() bool {
	return a.IsCorrect != nil
}

// AnswerOutcome is what the response handler hands to the engine after scoring
type AnswerOutcome struct {
	QuestionID string
	IsCorrect  bool
	AnswerText string
	TimeTaken  int
	Score      float64
}

// SubmitAnswerRequest is the request body for answer submission
type SubmitAnswerRequest struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	TimeTaken  int    `json:"timeTaken"`
}

// SubmitAnswerResult is returned after scoring. It never carries the correct answer.
type SubmitAnswerResult struct {
	IsCorrect                 bool          `json:"isCorrect"`
	Score                     float64       `json:"score"`
	CurrentDifficulty         int           `json:"currentDifficulty"`
	NextDifficulty            int           `json:"nextDifficulty"`
	SubtopicComplete          bool          `json:"subtopicComplete"`
	SubtopicQuestionsAnswered int           `json:"subtopicQuestionsAnswered"`
	SubtopicQuestionsTotal    int           `json:"subtopicQuestionsTotal"`
	QuestionsAnswered         int           `json:"questionsAnswered"`
	TotalQuestions            int           `json:"totalQuestions"`
	SessionStatus             SessionStatus `json:"sessionStatus"`
	SessionComplete           bool          `json:"sessionComplete"`
	AllSubjectsComplete       bool          `json:"allSubjectsComplete"`
}

// Progress is attached to every current-question response
type Progress struct {
	SessionID            string        `json:"sessionId"`
	Status               SessionStatus `json:"status"`
	AnsweredCount        int           `json:"answeredCount"`
	TotalQuestions       int           `json:"totalQuestions"`
	CurrentSubtopicIndex int           `json:"currentSubtopicIndex"`
	SubtopicCount        int           `json:"subtopicCount"`
	CurrentSubtopicName  string        `json:"currentSubtopicName,omitempty"`
	CurrentDifficulty    int           `json:"currentDifficulty,omitempty"`
}

// CurrentQuestionResult is the question-or-none answer to "what now?"
type CurrentQuestionResult struct {
	Done     bool             `json:"done"`
	Question *QuestionPayload `json:"question"`
	Progress Progress         `json:"progress"`
}

// NewProgress summarises a session state
func NewProgress(state *SessionState) Progress {
	p := Progress{
		SessionID:            state.SessionID,
		Status:               state.Status,
		AnsweredCount:        state.AnsweredCount,
		TotalQuestions:       state.TotalQuestions,
		CurrentSubtopicIndex: state.CurrentSubtopicIndex,
		SubtopicCount:        len(state.Subtopics),
	}
	if sub := state.CurrentSubtopic(); sub != nil {
		p.CurrentSubtopicName = sub.SubtopicName
		p.CurrentDifficulty = sub.CurrentDifficulty
	}
	return p
}
