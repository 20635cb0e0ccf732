package model

// CatalogQuestion is a curated question from the catalog. Read-only here.
type CatalogQuestion struct {
	ID              string   `json:"id" bson:"_id"`
	SubtopicID      string   `json:"subtopicId" bson:"subtopicId"`
	GradeID         string   `json:"gradeId" bson:"gradeId"`
	SubjectID       string   `json:"subjectId" bson:"subjectId"`
	DifficultyLevel int      `json:"difficultyLevel" bson:"difficultyLevel"`
	Text            string   `json:"text" bson:"text"`
	Options         []string `json:"options" bson:"options"`
	CorrectAnswer   string   `json:"-" bson:"correctAnswer"`
	Explanation     string   `json:"-" bson:"explanation,omitempty"`
	IsActive        bool     `json:"isActive" bson:"isActive"`
}

// CatalogFilter narrows catalog lookups. A nil Difficulty matches any level.
type CatalogFilter struct {
	SubtopicID string
	GradeID    string
	SubjectID  string
	Difficulty *int
	ExcludeIDs []string
}

// QuestionPayload is the only question shape that leaves the engine.
// It never carries the correct answer or the explanation.
type QuestionPayload struct {
	QuestionID     string   `json:"questionId"`
	QuestionNumber int      `json:"questionNumber"`
	Text           string   `json:"text"`
	Options        []string `json:"options"`
	Difficulty     int      `json:"difficulty"`
	SubtopicID     string   `json:"subtopicId"`
	SubtopicName   string   `json:"subtopicName"`
}

// NewQuestionPayload strips a catalog question down to its public fields
func NewQuestionPayload(q *CatalogQuestion, number int, subtopicName string) *QuestionPayload {
	opts := make([]string, len(q.Options))
	copy(opts, q.Options)
	return &QuestionPayload{
		QuestionID:     q.ID,
		QuestionNumber: number,
		Text:           q.Text,
		Options:        opts,
		Difficulty:     q.DifficultyLevel,
		SubtopicID:     q.SubtopicID,
		SubtopicName:   subtopicName,
	}
}
