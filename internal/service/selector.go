package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"diagnostics/internal/config"
	"diagnostics/internal/logger"
	"diagnostics/internal/model"
	"diagnostics/internal/repository"
)

// SelectionRequest describes the slot a question is needed for
type SelectionRequest struct {
	SubtopicID       string
	GradeID          string
	SubjectID        string
	TargetDifficulty int
	UsedIDs          []string
}

// QuestionSelector picks the next unused catalog question for a subtopic,
// relaxing the difficulty constraint step by step.
type QuestionSelector struct {
	catalog    repository.QuestionRepo
	curriculum repository.CurriculumRepo
	log        *logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewQuestionSelector creates a selector with a time-seeded random source
func NewQuestionSelector(catalog repository.QuestionRepo, curriculum repository.CurriculumRepo, log *logger.Logger) *QuestionSelector {
	return &QuestionSelector{
		catalog:    catalog,
		curriculum: curriculum,
		log:        log.With("service", "QuestionSelector"),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// difficultySteps is the fallback chain: exact, one harder, one easier, any.
// A nil entry means any difficulty.
func difficultySteps(target int) []*int {
	steps := []*int{intPtr(target)}
	if target+1 <= config.MaxDifficulty {
		steps = append(steps, intPtr(target+1))
	}
	if target-1 >= config.MinDifficulty {
		steps = append(steps, intPtr(target-1))
	}
	return append(steps, nil)
}

// GetNextQuestion returns nil, nil when every step of the chain comes up empty,
// which means the subtopic's catalog is exhausted for this session.
func (s *QuestionSelector) GetNextQuestion(ctx context.Context, req SelectionRequest) (*model.CatalogQuestion, error) {
	if req.TargetDifficulty < config.MinDifficulty || req.TargetDifficulty > config.MaxDifficulty {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDifficulty, req.TargetDifficulty)
	}

	used := make(map[string]struct{}, len(req.UsedIDs))
	for _, id := range req.UsedIDs {
		used[id] = struct{}{}
	}

	for _, difficulty := range difficultySteps(req.TargetDifficulty) {
		candidates, err := s.catalog.FindCandidates(ctx, model.CatalogFilter{
			SubtopicID: req.SubtopicID,
			GradeID:    req.GradeID,
			SubjectID:  req.SubjectID,
			Difficulty: difficulty,
			ExcludeIDs: req.UsedIDs,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog candidates: %w", err)
		}

		eligible := make([]*model.CatalogQuestion, 0, len(candidates))
		for _, q := range candidates {
			if _, seen := used[q.ID]; seen || !q.IsActive {
				continue
			}
			if difficulty != nil && q.DifficultyLevel != *difficulty {
				continue
			}
			eligible = append(eligible, q)
		}
		if len(eligible) == 0 {
			continue
		}

		picked := eligible[s.intn(len(eligible))]
		if difficulty == nil || *difficulty != req.TargetDifficulty {
			s.log.Debug("selector fell back",
				"subtopic_id", req.SubtopicID,
				"target_difficulty", req.TargetDifficulty,
				"served_difficulty", picked.DifficultyLevel,
			)
		}
		return picked, nil
	}

	return nil, nil
}

// GetSubtopicsForSession returns the stable, ordered subtopic backbone of a session
func (s *QuestionSelector) GetSubtopicsForSession(ctx context.Context, curriculumID, gradeID, subjectID string) ([]model.Subtopic, error) {
	subtopics, err := s.curriculum.GetSubtopicsForSession(ctx, curriculumID, gradeID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subtopics: %w", err)
	}
	return subtopics, nil
}

func (s *QuestionSelector) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func intPtr(v int) *int {
	return &v
}
