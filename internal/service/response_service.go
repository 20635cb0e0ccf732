package service

import (
	"context"
	"fmt"
	"strings"

	"diagnostics/internal/config"
	"diagnostics/internal/logger"
	"diagnostics/internal/model"
	"diagnostics/internal/progress"
	"diagnostics/internal/repository"
)

// ResponseService validates and scores answers, then hands state advancement
// to the session engine.
type ResponseService struct {
	engine      *DiagnosticService
	questions   repository.AssessmentQuestionRepo
	catalog     repository.QuestionRepo
	completion  *CompletionService
	broadcaster Broadcaster
	log         *logger.Logger
}

// NewResponseService creates a new response service
func NewResponseService(
	engine *DiagnosticService,
	questions repository.AssessmentQuestionRepo,
	catalog repository.QuestionRepo,
	completion *CompletionService,
	log *logger.Logger,
) *ResponseService {
	return &ResponseService{
		engine:      engine,
		questions:   questions,
		catalog:     catalog,
		completion:  completion,
		broadcaster: nopBroadcaster{},
		log:         log.With("service", "ResponseService"),
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *ResponseService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// EvaluateAnswer is a trimmed, case-insensitive exact match. No partial credit.
func EvaluateAnswer(question *model.CatalogQuestion, answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(question.CorrectAnswer))
}

// CalculateScore weights a correct answer by its difficulty
func CalculateScore(correct bool, difficulty int) float64 {
	if !correct {
		return 0.0
	}
	return float64(progress.ClampDifficulty(difficulty)) / float64(config.MaxDifficulty)
}

// SubmitAnswer scores an answer to the session's pending question and advances the session
func (s *ResponseService) SubmitAnswer(ctx context.Context, sessionID string, req model.SubmitAnswerRequest) (*model.SubmitAnswerResult, error) {
	if strings.TrimSpace(req.QuestionID) == "" {
		return nil, invalidf("questionId is required")
	}
	if req.TimeTaken < 0 {
		return nil, invalidf("timeTaken must not be negative")
	}

	state, err := s.engine.GetSessionState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Status.IsTerminal() {
		return nil, ErrSessionTerminal
	}
	if !state.HasPendingQuestion() || *state.CurrentQuestionID != req.QuestionID {
		return nil, ErrQuestionMismatch
	}

	row, err := s.questions.GetLatest(ctx, sessionID, req.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load issued question: %w", err)
	}
	if row == nil {
		return nil, ErrAssessmentQuestionNotFound
	}
	if row.IsAnswered() {
		return nil, ErrAlreadyAnswered
	}

	question, err := s.catalog.GetByID(ctx, req.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog question: %w", err)
	}
	if question == nil {
		return nil, ErrQuestionNotFound
	}

	correct := EvaluateAnswer(question, req.Answer)
	score := CalculateScore(correct, question.DifficultyLevel)

	currentDifficulty := config.MinDifficulty
	if sub := state.CurrentSubtopic(); sub != nil {
		currentDifficulty = sub.CurrentDifficulty
	}

	updated, effect, err := s.engine.RecordAnswerAndAdvance(ctx, sessionID, model.AnswerOutcome{
		QuestionID: req.QuestionID,
		IsCorrect:  correct,
		AnswerText: req.Answer,
		TimeTaken:  req.TimeTaken,
		Score:      score,
	})
	if err != nil {
		return nil, err
	}

	result := &model.SubmitAnswerResult{
		IsCorrect:                 correct,
		Score:                     score,
		CurrentDifficulty:         currentDifficulty,
		NextDifficulty:            progress.StepDifficulty(currentDifficulty, correct),
		SubtopicComplete:          effect.Subtopic.QuestionsAnswered >= effect.Subtopic.QuestionsTotal,
		SubtopicQuestionsAnswered: effect.Subtopic.QuestionsAnswered,
		SubtopicQuestionsTotal:    effect.Subtopic.QuestionsTotal,
		QuestionsAnswered:         updated.AnsweredCount,
		TotalQuestions:            updated.TotalQuestions,
		SessionStatus:             updated.Status,
		SessionComplete:           updated.Status == model.SessionCompleted,
	}

	if result.SessionComplete {
		all, err := s.CheckAllSubjectsComplete(ctx, updated.StudentID)
		if err != nil {
			// The answer is already durable; generation can be retried by a later check
			s.log.Error("completion check failed", "student_id", updated.StudentID, "session_id", sessionID, "error", err)
		}
		result.AllSubjectsComplete = all
	}

	s.broadcaster.BroadcastToStudent(updated.StudentID, MsgAnswerResult, result)
	return result, nil
}

// CheckAllSubjectsComplete reports whether every session of the latest run is
// complete, firing the generation signal at most once per run.
func (s *ResponseService) CheckAllSubjectsComplete(ctx context.Context, studentID string) (bool, error) {
	return s.completion.CheckAllSubjectsComplete(ctx, studentID)
}
