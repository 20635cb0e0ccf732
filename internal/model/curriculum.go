package model

// Student is the slice of the student profile the engine needs
type Student struct {
	ID           string `json:"id" bson:"_id"`
	Name         string `json:"name" bson:"name"`
	GradeID      string `json:"gradeId" bson:"gradeId"`
	CurriculumID string `json:"curriculumId" bson:"curriculumId"`
}

// Subject belongs to a curriculum
type Subject struct {
	ID           string `json:"id" bson:"_id"`
	CurriculumID string `json:"curriculumId" bson:"curriculumId"`
	Name         string `json:"name" bson:"name"`
	Sequence     int    `json:"sequence" bson:"sequence"`
	IsActive     bool   `json:"isActive" bson:"isActive"`
}

// Topic maps a curriculum x grade x subject triple onto ordered subtopics
type Topic struct {
	ID           string `json:"id" bson:"_id"`
	CurriculumID string `json:"curriculumId" bson:"curriculumId"`
	GradeID      string `json:"gradeId" bson:"gradeId"`
	SubjectID    string `json:"subjectId" bson:"subjectId"`
	Name         string `json:"name" bson:"name"`
	Sequence     int    `json:"sequence" bson:"sequence"`
	IsActive     bool   `json:"isActive" bson:"isActive"`
}

type Subtopic struct {
	ID       string `json:"id" bson:"_id"`
	TopicID  string `json:"topicId" bson:"topicId"`
	Name     string `json:"name" bson:"name"`
	Sequence int    `json:"sequence" bson:"sequence"`
	IsActive bool   `json:"isActive" bson:"isActive"`
}
