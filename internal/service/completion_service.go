package service

import (
	"context"
	"fmt"
	"time"

	"diagnostics/internal/cache"
	"diagnostics/internal/event"
	"diagnostics/internal/logger"
	"diagnostics/internal/model"
)

// CompletionService owns the one-time "all subjects complete" trigger
type CompletionService struct {
	engine      *DiagnosticService
	flags       cache.GenerationFlagCache
	publisher   event.Publisher
	broadcaster Broadcaster
	log         *logger.Logger
	now         func() time.Time
}

// NewCompletionService creates a new completion service
func NewCompletionService(engine *DiagnosticService, flags cache.GenerationFlagCache, publisher event.Publisher, log *logger.Logger) *CompletionService {
	return &CompletionService{
		engine:      engine,
		flags:       flags,
		publisher:   publisher,
		broadcaster: nopBroadcaster{},
		log:         log.With("service", "CompletionService"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *CompletionService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// CheckAllSubjectsComplete returns true when every session of the student's
// latest run is COMPLETED. The first caller to claim the student's generation
// flag publishes the downstream event; later callers only observe the flag.
func (s *CompletionService) CheckAllSubjectsComplete(ctx context.Context, studentID string) (bool, error) {
	run, err := s.engine.LatestRun(ctx, studentID)
	if err != nil {
		return false, err
	}
	if len(run) == 0 {
		return false, nil
	}
	sessionIDs := make([]string, len(run))
	for i, session := range run {
		if session.Status != model.SessionCompleted {
			return false, nil
		}
		sessionIDs[i] = session.ID
	}

	now := s.now()
	runID := run[0].RunID
	claimed, err := s.flags.Claim(ctx, studentID, &model.GenerationClaim{
		State:     model.GenerationStateGenerating,
		RunID:     runID,
		ClaimedAt: now,
	})
	if err != nil {
		return true, fmt.Errorf("failed to claim generation flag: %w", err)
	}
	if !claimed {
		s.log.Debug("generation already claimed", "student_id", studentID, "run_id", runID)
		return true, nil
	}

	evt := &model.DiagnosticsCompletedEvent{
		EventType:   model.EventDiagnosticsCompleted,
		StudentID:   studentID,
		RunID:       runID,
		SessionIDs:  sessionIDs,
		CompletedAt: now,
	}
	if err := s.publisher.PublishDiagnosticsCompleted(ctx, evt); err != nil {
		if relErr := s.flags.Release(ctx, studentID); relErr != nil {
			s.log.Error("failed to release generation flag", "student_id", studentID, "error", relErr)
		}
		return true, fmt.Errorf("failed to publish completion event: %w", err)
	}

	s.log.Info("all subjects complete, generation triggered", "student_id", studentID, "run_id", runID, "sessions", len(run))
	s.broadcaster.BroadcastToStudent(studentID, MsgDiagnosticsCompleted, evt)
	return true, nil
}

// Hook adapts the check for the engine's completion callback
func (s *CompletionService) Hook() CompletionHook {
	return func(ctx context.Context, studentID string) {
		if _, err := s.CheckAllSubjectsComplete(ctx, studentID); err != nil {
			s.log.Error("completion check failed", "student_id", studentID, "error", err)
		}
	}
}
