package model

// SubjectStatus is one subject's row in a student's diagnostic status
type SubjectStatus struct {
	SessionID           string        `json:"sessionId"`
	SubjectID           string        `json:"subjectId"`
	SubjectName         string        `json:"subjectName"`
	Status              SessionStatus `json:"status"`
	QuestionsAnswered   int           `json:"questionsAnswered"`
	TotalQuestions      int           `json:"totalQuestions"`
	PercentComplete     float64       `json:"percentComplete"`
	CurrentSubtopicName string        `json:"currentSubtopicName,omitempty"`
	CurrentDifficulty   int           `json:"currentDifficulty,omitempty"`
	AverageScore        float64       `json:"averageScore"`
	AverageDifficulty   float64       `json:"averageDifficulty"`
}

// DiagnosticStatus aggregates all subjects of the latest run
type DiagnosticStatus struct {
	StudentID           string          `json:"studentId"`
	RunID               string          `json:"runId,omitempty"`
	Subjects            []SubjectStatus `json:"subjects"`
	QuestionsAnswered   int             `json:"questionsAnswered"`
	TotalQuestions      int             `json:"totalQuestions"`
	PercentComplete     float64         `json:"percentComplete"`
	AllSubjectsComplete bool            `json:"allSubjectsComplete"`
}
