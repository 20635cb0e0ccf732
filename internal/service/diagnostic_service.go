package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"diagnostics/internal/cache"
	"diagnostics/internal/config"
	"diagnostics/internal/logger"
	"diagnostics/internal/model"
	"diagnostics/internal/progress"
	"diagnostics/internal/repository"
)

// Stores groups the persistent collaborators of the diagnostic services
type Stores struct {
	Students   repository.StudentRepo
	Curriculum repository.CurriculumRepo
	Catalog    repository.QuestionRepo
	Sessions   repository.SessionRepo
	Questions  repository.AssessmentQuestionRepo
	Tx         repository.TxRunner
}

// CompletionHook runs after a session reaches COMPLETED outside of answer submission
type CompletionHook func(ctx context.Context, studentID string)

// DiagnosticService owns the lifecycle of diagnostic sessions: initialization,
// question issuance, answer advancement, reconstruction and abandonment.
// Calls for one session are assumed to be serialized by the caller.
type DiagnosticService struct {
	stores      Stores
	stateCache  cache.SessionStateCache
	flags       cache.GenerationFlagCache
	selector    *QuestionSelector
	cfg         config.EngineConfig
	log         *logger.Logger
	broadcaster Broadcaster
	onComplete  CompletionHook

	now   func() time.Time
	newID func() string
}

// NewDiagnosticService creates the session engine
func NewDiagnosticService(
	stores Stores,
	stateCache cache.SessionStateCache,
	flags cache.GenerationFlagCache,
	selector *QuestionSelector,
	cfg config.EngineConfig,
	log *logger.Logger,
) *DiagnosticService {
	return &DiagnosticService{
		stores:      stores,
		stateCache:  stateCache,
		flags:       flags,
		selector:    selector,
		cfg:         cfg,
		log:         log.With("service", "DiagnosticService"),
		broadcaster: nopBroadcaster{},
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *DiagnosticService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetCompletionHook sets the callback fired when question issuance completes a session
func (s *DiagnosticService) SetCompletionHook(hook CompletionHook) {
	s.onComplete = hook
}

// Initialize creates one session per curriculum subject for the student.
// If the latest run still has a non-terminal session, that run is returned unchanged.
func (s *DiagnosticService) Initialize(ctx context.Context, studentID string) ([]model.SessionSummary, error) {
	if studentID == "" {
		return nil, invalidf("student id is required")
	}

	existing, err := s.stores.Sessions.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	previous := latestRun(existing)
	if hasActiveSession(previous) {
		return s.summaries(ctx, previous)
	}

	student, err := s.stores.Students.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load student: %w", err)
	}
	if student == nil {
		return nil, ErrStudentNotFound
	}
	if student.GradeID == "" || student.CurriculumID == "" {
		return nil, ErrProfileIncomplete
	}

	subjects, err := s.stores.Curriculum.GetSubjects(ctx, student.CurriculumID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subjects: %w", err)
	}
	if len(subjects) == 0 {
		return nil, ErrNoSubjects
	}

	runID := s.newID()
	now := s.now()
	sessions := make([]*model.DiagnosticSession, 0, len(subjects))
	states := make([]*model.SessionState, 0, len(subjects))

	for _, subject := range subjects {
		subtopics, err := s.selector.GetSubtopicsForSession(ctx, student.CurriculumID, student.GradeID, subject.ID)
		if err != nil {
			return nil, err
		}

		session := &model.DiagnosticSession{
			ID:              s.newID(),
			RunID:           runID,
			StudentID:       student.ID,
			SubjectID:       subject.ID,
			SubjectName:     subject.Name,
			GradeID:         student.GradeID,
			CurriculumID:    student.CurriculumID,
			Status:          model.SessionStarted,
			DifficultyLevel: s.cfg.StartingDifficulty,
			TotalQuestions:  s.cfg.SubtopicQuota * len(subtopics),
			CreatedAt:       now,
		}
		state := progress.NewSessionState(session, subtopics, s.cfg.SubtopicQuota, s.cfg.StartingDifficulty, now)
		state.Version = 1

		sessions = append(sessions, session)
		states = append(states, state)
	}

	err = s.stores.Tx.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, session := range sessions {
			if err := s.stores.Sessions.Create(txCtx, session); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions: %w", err)
	}

	for _, state := range states {
		if err := s.stateCache.Set(ctx, state); err != nil {
			return nil, fmt.Errorf("failed to cache session state: %w", err)
		}
	}

	// A new run must be able to trigger generation again
	if len(previous) > 0 {
		if err := s.flags.Release(ctx, studentID); err != nil {
			return nil, fmt.Errorf("failed to reset generation flag: %w", err)
		}
	}

	s.log.Info("diagnostics initialized", "student_id", studentID, "run_id", runID, "sessions", len(sessions))

	summaries := make([]model.SessionSummary, len(sessions))
	for i, session := range sessions {
		summaries[i] = session.Summary(len(states[i].Subtopics))
	}
	return summaries, nil
}

func (s *DiagnosticService) summaries(ctx context.Context, sessions []*model.DiagnosticSession) ([]model.SessionSummary, error) {
	out := make([]model.SessionSummary, len(sessions))
	for i, session := range sessions {
		state, err := s.stateFor(ctx, session)
		if err != nil {
			return nil, err
		}
		out[i] = session.Summary(len(state.Subtopics))
	}
	return out, nil
}

// GetCurrentQuestion returns the pending question, or selects and issues a new one.
// Exhausted subtopics are skipped; running past the last subtopic completes the session.
func (s *DiagnosticService) GetCurrentQuestion(ctx context.Context, sessionID string) (*model.CurrentQuestionResult, error) {
	state, err := s.GetSessionState(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if state.Status.IsTerminal() {
		return &model.CurrentQuestionResult{Done: true, Progress: model.NewProgress(state)}, nil
	}

	if state.HasPendingQuestion() {
		payload, err := s.pendingPayload(ctx, state)
		if err != nil {
			return nil, err
		}
		return &model.CurrentQuestionResult{Question: payload, Progress: model.NewProgress(state)}, nil
	}

	for {
		sub := state.CurrentSubtopic()
		if sub == nil {
			if err := s.completeSession(ctx, state); err != nil {
				return nil, err
			}
			return &model.CurrentQuestionResult{Done: true, Progress: model.NewProgress(state)}, nil
		}

		question, err := s.selector.GetNextQuestion(ctx, SelectionRequest{
			SubtopicID:       sub.SubtopicID,
			GradeID:          state.GradeID,
			SubjectID:        state.SubjectID,
			TargetDifficulty: sub.CurrentDifficulty,
			UsedIDs:          sub.UsedQuestionIDs,
		})
		if err != nil {
			return nil, err
		}
		if question == nil {
			s.log.Warn("subtopic catalog exhausted, skipping",
				"session_id", sessionID,
				"subtopic_id", sub.SubtopicID,
				"answered", sub.QuestionsAnswered,
				"quota", sub.QuestionsTotal,
			)
			progress.AdvanceSubtopic(state)
			continue
		}

		payload, err := s.issue(ctx, state, sub, question)
		if err != nil {
			return nil, err
		}
		return &model.CurrentQuestionResult{Question: payload, Progress: model.NewProgress(state)}, nil
	}
}

// issue persists the unanswered row before the caller ever sees the question
func (s *DiagnosticService) issue(ctx context.Context, state *model.SessionState, sub *model.SubtopicProgress, question *model.CatalogQuestion) (*model.QuestionPayload, error) {
	count, err := s.stores.Questions.CountBySession(ctx, state.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count session questions: %w", err)
	}

	now := s.now()
	row := &model.AssessmentQuestion{
		ID:             s.newID(),
		SessionID:      state.SessionID,
		QuestionID:     question.ID,
		SubtopicID:     sub.SubtopicID,
		Difficulty:     question.DifficultyLevel,
		QuestionNumber: count + 1,
		CreatedAt:      now,
	}
	if err := s.stores.Questions.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to record issued question: %w", err)
	}

	qid := question.ID
	state.CurrentQuestionID = &qid
	state.LastActivity = now
	state.Version++
	if err := s.stateCache.Set(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to cache session state: %w", err)
	}

	s.log.Debug("question issued",
		"session_id", state.SessionID,
		"question_id", question.ID,
		"question_number", row.QuestionNumber,
		"difficulty", question.DifficultyLevel,
	)
	return model.NewQuestionPayload(question, row.QuestionNumber, sub.SubtopicName), nil
}

func (s *DiagnosticService) pendingPayload(ctx context.Context, state *model.SessionState) (*model.QuestionPayload, error) {
	qid := *state.CurrentQuestionID
	row, err := s.stores.Questions.GetLatest(ctx, state.SessionID, qid)
	if err != nil {
		return nil, fmt.Errorf("failed to load issued question: %w", err)
	}
	if row == nil {
		return nil, ErrAssessmentQuestionNotFound
	}
	question, err := s.stores.Catalog.GetByID(ctx, qid)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog question: %w", err)
	}
	if question == nil {
		return nil, ErrQuestionNotFound
	}

	name := ""
	if sub := state.CurrentSubtopic(); sub != nil {
		name = sub.SubtopicName
	}
	return model.NewQuestionPayload(question, row.QuestionNumber, name), nil
}

func (s *DiagnosticService) completeSession(ctx context.Context, state *model.SessionState) error {
	session, err := s.loadSession(ctx, state.SessionID)
	if err != nil {
		return err
	}

	now := s.now()
	session.Status = model.SessionCompleted
	session.QuestionsAnswered = state.AnsweredCount
	session.CompletedAt = &now
	if err := s.stores.Sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}

	state.Status = model.SessionCompleted
	state.CurrentQuestionID = nil
	state.LastActivity = now
	state.Version++
	if err := s.stateCache.Set(ctx, state); err != nil {
		return fmt.Errorf("failed to cache session state: %w", err)
	}

	s.log.Info("session completed", "session_id", session.ID, "student_id", session.StudentID, "answered", session.QuestionsAnswered)
	s.broadcaster.BroadcastToStudent(session.StudentID, MsgSessionCompleted, model.NewProgress(state))
	if s.onComplete != nil {
		s.onComplete(ctx, session.StudentID)
	}
	return nil
}

// RecordAnswerAndAdvance applies a scored answer to the pending question. The
// assessment row, the session counters and the cached state are written in that order.
func (s *DiagnosticService) RecordAnswerAndAdvance(ctx context.Context, sessionID string, outcome model.AnswerOutcome) (*model.SessionState, progress.Effect, error) {
	state, err := s.GetSessionState(ctx, sessionID)
	if err != nil {
		return nil, progress.Effect{}, err
	}
	if state.Status.IsTerminal() {
		return nil, progress.Effect{}, ErrSessionTerminal
	}
	if !state.HasPendingQuestion() || *state.CurrentQuestionID != outcome.QuestionID {
		return nil, progress.Effect{}, ErrQuestionMismatch
	}

	row, err := s.stores.Questions.GetLatest(ctx, sessionID, outcome.QuestionID)
	if err != nil {
		return nil, progress.Effect{}, fmt.Errorf("failed to load issued question: %w", err)
	}
	if row == nil {
		return nil, progress.Effect{}, ErrAssessmentQuestionNotFound
	}
	if row.IsAnswered() {
		return nil, progress.Effect{}, ErrAlreadyAnswered
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, progress.Effect{}, err
	}

	now := s.now()
	effect, err := progress.ApplyAnswer(state, outcome.QuestionID, outcome.IsCorrect, now)
	if err != nil {
		return nil, progress.Effect{}, fmt.Errorf("%w: %v", ErrQuestionMismatch, err)
	}

	answer := outcome.AnswerText
	correct := outcome.IsCorrect
	row.StudentAnswer = &answer
	row.IsCorrect = &correct
	row.Score = outcome.Score
	row.TimeTaken = outcome.TimeTaken
	row.AnsweredAt = &now

	session.Status = state.Status
	session.QuestionsAnswered = state.AnsweredCount
	session.DifficultyLevel = effect.NewDifficulty
	if effect.SessionCompleted {
		session.CompletedAt = &now
	}

	err = s.stores.Tx.WithTransaction(ctx, func(txCtx context.Context) error {
		updated, err := s.stores.Questions.MarkAnswered(txCtx, row)
		if err != nil {
			return err
		}
		if !updated {
			return ErrAlreadyAnswered
		}
		return s.stores.Sessions.Update(txCtx, session)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyAnswered) {
			return nil, progress.Effect{}, err
		}
		return nil, progress.Effect{}, fmt.Errorf("failed to persist answer: %w", err)
	}

	state.Version++
	if err := s.stateCache.Set(ctx, state); err != nil {
		// The log is durable; dropping the entry forces a rebuild on next read
		if delErr := s.stateCache.Delete(ctx, sessionID); delErr != nil {
			s.log.Error("failed to evict stale session state", "session_id", sessionID, "error", delErr)
		}
		return nil, progress.Effect{}, fmt.Errorf("failed to cache session state: %w", err)
	}

	s.log.Debug("answer recorded",
		"session_id", sessionID,
		"question_id", outcome.QuestionID,
		"correct", outcome.IsCorrect,
		"difficulty", effect.NewDifficulty,
		"answered", state.AnsweredCount,
	)
	if effect.SessionCompleted {
		s.log.Info("session completed", "session_id", sessionID, "student_id", session.StudentID, "answered", state.AnsweredCount)
		s.broadcaster.BroadcastToStudent(session.StudentID, MsgSessionCompleted, model.NewProgress(state))
	}
	return state, effect, nil
}

// GetSessionState prefers the cache and falls back to replaying the question log
func (s *DiagnosticService) GetSessionState(ctx context.Context, sessionID string) (*model.SessionState, error) {
	state, err := s.stateCache.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}
	if state != nil {
		return state, nil
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.rebuildState(ctx, session)
}

// stateFor is GetSessionState for callers that already hold the session row
func (s *DiagnosticService) stateFor(ctx context.Context, session *model.DiagnosticSession) (*model.SessionState, error) {
	state, err := s.stateCache.Get(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}
	if state != nil {
		return state, nil
	}
	return s.rebuildState(ctx, session)
}

func (s *DiagnosticService) rebuildState(ctx context.Context, session *model.DiagnosticSession) (*model.SessionState, error) {
	subtopics, err := s.selector.GetSubtopicsForSession(ctx, session.CurriculumID, session.GradeID, session.SubjectID)
	if err != nil {
		return nil, err
	}
	rows, err := s.stores.Questions.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load question log: %w", err)
	}

	log := make([]model.AssessmentQuestion, len(rows))
	for i, row := range rows {
		log[i] = *row
	}

	state := progress.Reconstruct(progress.ReplayInput{
		Session:         session,
		Subtopics:       subtopics,
		Questions:       log,
		Quota:           s.cfg.SubtopicQuota,
		StartDifficulty: s.cfg.StartingDifficulty,
	})
	if err := s.stateCache.Set(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to cache session state: %w", err)
	}

	s.log.Info("session state rebuilt from question log", "session_id", session.ID, "rows", len(rows), "answered", state.AnsweredCount)
	return state, nil
}

// AbandonSession moves a non-terminal session to ABANDONED
func (s *DiagnosticService) AbandonSession(ctx context.Context, sessionID string) (*model.SessionSummary, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, ErrSessionTerminal
	}
	state, err := s.stateFor(ctx, session)
	if err != nil {
		return nil, err
	}

	session.Status = model.SessionAbandoned
	if err := s.stores.Sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to abandon session: %w", err)
	}

	state.Status = model.SessionAbandoned
	state.CurrentQuestionID = nil
	state.LastActivity = s.now()
	state.Version++
	if err := s.stateCache.Set(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to cache session state: %w", err)
	}

	s.log.Info("session abandoned", "session_id", sessionID, "student_id", session.StudentID)
	s.broadcaster.BroadcastToStudent(session.StudentID, MsgSessionAbandoned, model.NewProgress(state))

	summary := session.Summary(len(state.Subtopics))
	return &summary, nil
}

// SessionForStudent loads a session and hides sessions owned by other students
func (s *DiagnosticService) SessionForStudent(ctx context.Context, sessionID, studentID string) (*model.DiagnosticSession, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.StudentID != studentID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// LatestRun returns the sessions of the student's most recent diagnostic run
func (s *DiagnosticService) LatestRun(ctx context.Context, studentID string) ([]*model.DiagnosticSession, error) {
	sessions, err := s.stores.Sessions.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return latestRun(sessions), nil
}

func (s *DiagnosticService) loadSession(ctx context.Context, sessionID string) (*model.DiagnosticSession, error) {
	session, err := s.stores.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// latestRun expects sessions ordered oldest first
func latestRun(sessions []*model.DiagnosticSession) []*model.DiagnosticSession {
	if len(sessions) == 0 {
		return nil
	}
	runID := sessions[len(sessions)-1].RunID
	var run []*model.DiagnosticSession
	for _, session := range sessions {
		if session.RunID == runID {
			run = append(run, session)
		}
	}
	return run
}

func hasActiveSession(sessions []*model.DiagnosticSession) bool {
	for _, session := range sessions {
		if !session.Status.IsTerminal() {
			return true
		}
	}
	return false
}
