package model

import "time"

type SessionStatus string

const (
	SessionStarted    SessionStatus = "STARTED"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionAbandoned  SessionStatus = "ABANDONED"
)

// IsTerminal reports whether no further questions may be issued
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// DiagnosticSession is the persistent record of one student x subject run
type DiagnosticSession struct {
	ID                string        `json:"id" bson:"_id"`
	RunID             string        `json:"runId" bson:"runId"`
	StudentID         string        `json:"studentId" bson:"studentId"`
	SubjectID         string        `json:"subjectId" bson:"subjectId"`
	SubjectName       string        `json:"subjectName" bson:"subjectName"`
	GradeID           string        `json:"gradeId" bson:"gradeId"`
	CurriculumID      string        `json:"curriculumId" bson:"curriculumId"`
	Status            SessionStatus `json:"status" bson:"status"`
	DifficultyLevel   int           `json:"difficultyLevel" bson:"difficultyLevel"`
	QuestionsAnswered int           `json:"questionsAnswered" bson:"questionsAnswered"`
	TotalQuestions    int           `json:"totalQuestions" bson:"totalQuestions"`
	CreatedAt         time.Time     `json:"createdAt" bson:"createdAt"`
	CompletedAt       *time.Time    `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}

// SubtopicProgress tracks one subtopic inside a cached session state
type SubtopicProgress struct {
	SubtopicID        string   `json:"subtopicId"`
	SubtopicName      string   `json:"subtopicName"`
	QuestionsTotal    int      `json:"questionsTotal"`
	QuestionsAnswered int      `json:"questionsAnswered"`
	CurrentDifficulty int      `json:"currentDifficulty"`
	UsedQuestionIDs   []string `json:"usedQuestionIds"`
}

// IsComplete reports whether the subtopic quota is met
func (p *SubtopicProgress) IsComplete() bool {
	return p.QuestionsAnswered >= p.QuestionsTotal
}

// SessionState is the cached projection of a DiagnosticSession.
// It can be rebuilt at any time from the assessment question log.
type SessionState struct {
	SessionID            string             `json:"sessionId"`
	RunID                string             `json:"runId"`
	StudentID            string             `json:"studentId"`
	SubjectID            string             `json:"subjectId"`
	GradeID              string             `json:"gradeId"`
	CurriculumID         string             `json:"curriculumId"`
	Subtopics            []SubtopicProgress `json:"subtopics"`
	CurrentSubtopicIndex int                `json:"currentSubtopicIndex"`
	CurrentQuestionID    *string            `json:"currentQuestionId"`
	AnsweredCount        int                `json:"answeredCount"`
	TotalQuestions       int                `json:"totalQuestions"`
	Status               SessionStatus      `json:"status"`
	Version              int64              `json:"version"`
	StartedAt            time.Time          `json:"startedAt"`
	LastActivity         time.Time          `json:"lastActivity"`
}

// CurrentSubtopic returns the subtopic being worked on, or nil past the end
func (s *SessionState) CurrentSubtopic() *SubtopicProgress {
	if s.CurrentSubtopicIndex < 0 || s.CurrentSubtopicIndex >= len(s.Subtopics) {
		return nil
	}
	return &s.Subtopics[s.CurrentSubtopicIndex]
}

// HasPendingQuestion reports whether a question was issued and not yet answered
func (s *SessionState) HasPendingQuestion() bool {
	return s.CurrentQuestionID != nil && *s.CurrentQuestionID != ""
}

// SessionSummary is returned by initialization
type SessionSummary struct {
	SessionID      string        `json:"sessionId"`
	RunID          string        `json:"runId"`
	SubjectID      string        `json:"subjectId"`
	SubjectName    string        `json:"subjectName"`
	Status         SessionStatus `json:"status"`
	SubtopicCount  int           `json:"subtopicCount"`
	TotalQuestions int           `json:"totalQuestions"`
	AnsweredCount  int           `json:"answeredCount"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Summary builds the outward summary of a persisted session
func (s *DiagnosticSession) Summary(subtopicCount int) SessionSummary {
	return SessionSummary{
		SessionID:      s.ID,
		RunID:          s.RunID,
		SubjectID:      s.SubjectID,
		SubjectName:    s.SubjectName,
		Status:         s.Status,
		SubtopicCount:  subtopicCount,
		TotalQuestions: s.TotalQuestions,
		AnsweredCount:  s.QuestionsAnswered,
		CreatedAt:      s.CreatedAt,
	}
}
