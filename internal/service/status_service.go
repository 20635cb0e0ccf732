package service

import (
	"context"
	"fmt"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"diagnostics/internal/logger"
	"diagnostics/internal/model"
	"diagnostics/internal/repository"
)

// StatusService aggregates per-subject progress of a student's latest run
type StatusService struct {
	engine    *DiagnosticService
	questions repository.AssessmentQuestionRepo
	log       *logger.Logger
}

func NewStatusService(engine *DiagnosticService, questions repository.AssessmentQuestionRepo, log *logger.Logger) *StatusService {
	return &StatusService{
		engine:    engine,
		questions: questions,
		log:       log.With("service", "StatusService"),
	}
}

func (s *StatusService) GetStatus(ctx context.Context, studentID string) (*model.DiagnosticStatus, error) {
	run, err := s.engine.LatestRun(ctx, studentID)
	if err != nil {
		return nil, err
	}

	status := &model.DiagnosticStatus{
		StudentID: studentID,
		Subjects:  make([]model.SubjectStatus, len(run)),
	}
	if len(run) == 0 {
		return status, nil
	}
	status.RunID = run[0].RunID

	g, gctx := errgroup.WithContext(ctx)
	for i, session := range run {
		g.Go(func() error {
			sub, err := s.subjectStatus(gctx, session)
			if err != nil {
				return err
			}
			status.Subjects[i] = *sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	status.AllSubjectsComplete = true
	for _, sub := range status.Subjects {
		status.QuestionsAnswered += sub.QuestionsAnswered
		status.TotalQuestions += sub.TotalQuestions
		if sub.Status != model.SessionCompleted {
			status.AllSubjectsComplete = false
		}
	}
	status.PercentComplete = percent(status.QuestionsAnswered, status.TotalQuestions, status.AllSubjectsComplete)
	return status, nil
}

func (s *StatusService) subjectStatus(ctx context.Context, session *model.DiagnosticSession) (*model.SubjectStatus, error) {
	state, err := s.engine.stateFor(ctx, session)
	if err != nil {
		return nil, err
	}
	rows, err := s.questions.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load question log: %w", err)
	}

	var scores, difficulties stats.Float64Data
	for _, row := range rows {
		if !row.IsAnswered() {
			continue
		}
		scores = append(scores, row.Score)
		difficulties = append(difficulties, float64(row.Difficulty))
	}

	out := &model.SubjectStatus{
		SessionID:         session.ID,
		SubjectID:         session.SubjectID,
		SubjectName:       session.SubjectName,
		Status:            state.Status,
		QuestionsAnswered: state.AnsweredCount,
		TotalQuestions:    state.TotalQuestions,
		PercentComplete:   percent(state.AnsweredCount, state.TotalQuestions, state.Status == model.SessionCompleted),
		AverageScore:      mean(scores),
		AverageDifficulty: mean(difficulties),
	}
	if !state.Status.IsTerminal() {
		if sub := state.CurrentSubtopic(); sub != nil {
			out.CurrentSubtopicName = sub.SubtopicName
			out.CurrentDifficulty = sub.CurrentDifficulty
		}
	}
	return out, nil
}

func mean(data stats.Float64Data) float64 {
	if len(data) == 0 {
		return 0
	}
	m, err := stats.Mean(data)
	if err != nil {
		return 0
	}
	r, err := stats.Round(m, 3)
	if err != nil {
		return m
	}
	return r
}

// percent treats a completed run as 100 even when exhaustion left quota unmet
func percent(answered, total int, completed bool) float64 {
	if completed {
		return 100
	}
	if total == 0 {
		return 0
	}
	p, err := stats.Round(float64(answered)/float64(total)*100, 1)
	if err != nil {
		return 0
	}
	return p
}
