package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"diagnostics/internal/app"
	"diagnostics/internal/config"
	"diagnostics/internal/model"
	"diagnostics/internal/service"
)

// seedNamespace keeps seeded ids stable so reseeding upserts instead of duplicating
var seedNamespace = uuid.MustParse("6f1c5a3e-8e0b-4d55-9b8a-2f7d1f0c9a41")

const questionsPerDifficulty = 3

type demoTopic struct {
	name      string
	subtopics []string
}

type demoSubject struct {
	name   string
	topics []demoTopic
}

var demoCurriculum = []demoSubject{
	{name: "Mathematics", topics: []demoTopic{
		{name: "Number Sense", subtopics: []string{"Place Value", "Rounding"}},
		{name: "Operations", subtopics: []string{"Addition", "Multiplication"}},
	}},
	{name: "Science", topics: []demoTopic{
		{name: "Life Science", subtopics: []string{"Plants", "Animals"}},
		{name: "Physical Science", subtopics: []string{"Forces", "Matter"}},
	}},
}

type seedData struct {
	Student   model.Student
	Subjects  []model.Subject
	Topics    []model.Topic
	Subtopics []model.Subtopic
	Questions []model.CatalogQuestion
}

func seedID(parts ...string) string {
	return uuid.NewSHA1(seedNamespace, []byte(strings.Join(parts, "/"))).String()
}

// buildSeedData lays out the demo curriculum: every subtopic gets
// questionsPerDifficulty questions at each difficulty level.
func buildSeedData(curriculumID, gradeID, studentName string) seedData {
	data := seedData{
		Student: model.Student{
			ID:           seedID("student", studentName),
			Name:         studentName,
			GradeID:      gradeID,
			CurriculumID: curriculumID,
		},
	}

	for si, subj := range demoCurriculum {
		subjectID := seedID("subject", curriculumID, subj.name)
		data.Subjects = append(data.Subjects, model.Subject{
			ID:           subjectID,
			CurriculumID: curriculumID,
			Name:         subj.name,
			Sequence:     si + 1,
			IsActive:     true,
		})

		for ti, topic := range subj.topics {
			topicID := seedID("topic", curriculumID, gradeID, subj.name, topic.name)
			data.Topics = append(data.Topics, model.Topic{
				ID:           topicID,
				CurriculumID: curriculumID,
				GradeID:      gradeID,
				SubjectID:    subjectID,
				Name:         topic.name,
				Sequence:     ti + 1,
				IsActive:     true,
			})

			for sti, subtopicName := range topic.subtopics {
				subtopicID := seedID("subtopic", topicID, subtopicName)
				data.Subtopics = append(data.Subtopics, model.Subtopic{
					ID:       subtopicID,
					TopicID:  topicID,
					Name:     subtopicName,
					Sequence: sti + 1,
					IsActive: true,
				})
				data.Questions = append(data.Questions, demoQuestions(subjectID, gradeID, subtopicID, subtopicName)...)
			}
		}
	}
	return data
}

func demoQuestions(subjectID, gradeID, subtopicID, subtopicName string) []model.CatalogQuestion {
	var out []model.CatalogQuestion
	for d := config.MinDifficulty; d <= config.MaxDifficulty; d++ {
		for i := 0; i < questionsPerDifficulty; i++ {
			a, b := d*7+i, d*3+i+1
			answer := fmt.Sprint(a + b)
			out = append(out, model.CatalogQuestion{
				ID:              seedID("question", subtopicID, fmt.Sprint(d), fmt.Sprint(i)),
				SubtopicID:      subtopicID,
				GradeID:         gradeID,
				SubjectID:       subjectID,
				DifficultyLevel: d,
				Text:            fmt.Sprintf("[%s, level %d] What is %d + %d?", subtopicName, d, a, b),
				Options:         []string{answer, fmt.Sprint(a + b + 1), fmt.Sprint(a + b - 1), fmt.Sprint(a * b)},
				CorrectAnswer:   answer,
				Explanation:     fmt.Sprintf("%d + %d = %s", a, b, answer),
				IsActive:        true,
			})
		}
	}
	return out
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write a demo curriculum, question catalog and student",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		curriculumID, _ := cmd.Flags().GetString("curriculum")
		gradeID, _ := cmd.Flags().GetString("grade")
		studentName, _ := cmd.Flags().GetString("student")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		stores, err := app.OpenStores(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer stores.Close(context.Background())

		data := buildSeedData(curriculumID, gradeID, studentName)
		for i := range data.Subjects {
			if err := stores.Curriculum.UpsertSubject(ctx, &data.Subjects[i]); err != nil {
				return fmt.Errorf("upsert subject: %w", err)
			}
		}
		for i := range data.Topics {
			if err := stores.Curriculum.UpsertTopic(ctx, &data.Topics[i]); err != nil {
				return fmt.Errorf("upsert topic: %w", err)
			}
		}
		for i := range data.Subtopics {
			if err := stores.Curriculum.UpsertSubtopic(ctx, &data.Subtopics[i]); err != nil {
				return fmt.Errorf("upsert subtopic: %w", err)
			}
		}
		for i := range data.Questions {
			if err := stores.Catalog.Upsert(ctx, &data.Questions[i]); err != nil {
				return fmt.Errorf("upsert question: %w", err)
			}
		}
		if err := stores.Students.Upsert(ctx, &data.Student); err != nil {
			return fmt.Errorf("upsert student: %w", err)
		}

		token, err := service.NewAuthService(cfg.JWTSecret).IssueStudentToken(data.Student.ID)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}

		log.Info("seed complete",
			"subjects", len(data.Subjects),
			"topics", len(data.Topics),
			"subtopics", len(data.Subtopics),
			"questions", len(data.Questions),
		)
		fmt.Printf("Student: %s (%s)\n", data.Student.Name, data.Student.ID)
		fmt.Printf("Token:   %s\n", token)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("curriculum", "demo-curriculum", "Curriculum id to seed")
	seedCmd.Flags().String("grade", "grade-4", "Grade id to seed")
	seedCmd.Flags().String("student", "Demo Student", "Name of the seeded student")
}
