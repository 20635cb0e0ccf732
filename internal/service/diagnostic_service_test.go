package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagnostics/internal/config"
	"diagnostics/internal/model"
)

func TestInitializeCreatesOneSessionPerSubject(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1", "m2")
	h.addSubject("science", 2, "s1")

	summaries, err := h.engine.Initialize(context.Background(), testStudent)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "math", summaries[0].SubjectID)
	assert.Equal(t, 2, summaries[0].SubtopicCount)
	assert.Equal(t, 10, summaries[0].TotalQuestions)
	assert.Equal(t, "science", summaries[1].SubjectID)
	assert.Equal(t, 5, summaries[1].TotalQuestions)
	assert.Equal(t, summaries[0].RunID, summaries[1].RunID)

	for _, summary := range summaries {
		session := h.sessions.get(summary.SessionID)
		assert.Equal(t, model.SessionStarted, session.Status)
		assert.Equal(t, 3, session.DifficultyLevel)
		assert.Equal(t, testGrade, session.GradeID)

		state := h.cached(t, summary.SessionID)
		assert.Equal(t, 0, state.CurrentSubtopicIndex)
		assert.Nil(t, state.CurrentQuestionID)
		assert.Equal(t, 0, state.AnsweredCount)
		for _, sub := range state.Subtopics {
			assert.Equal(t, 0, sub.QuestionsAnswered)
			assert.Equal(t, 5, sub.QuestionsTotal)
			assert.Equal(t, 3, sub.CurrentDifficulty)
			assert.Empty(t, sub.UsedQuestionIDs)
		}
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1")
	h.addSubject("science", 2, "s1")
	ctx := context.Background()

	first, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	creates := h.sessions.creates

	second, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)

	assert.Equal(t, creates, h.sessions.creates)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].SessionID, second[i].SessionID)
	}
}

func TestInitializeReturnsExistingRunAfterCacheLoss(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1", "m2")
	ctx := context.Background()

	first, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	h.states.flush()

	second, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	assert.Equal(t, first[0].SessionID, second[0].SessionID)
	assert.Equal(t, 2, second[0].SubtopicCount)
}

func TestInitializeValidatesProfile(t *testing.T) {
	tests := []struct {
		name    string
		student *model.Student
		wantErr error
		kind    Kind
	}{
		{name: "unknown student", student: nil, wantErr: ErrStudentNotFound, kind: KindNotFound},
		{name: "missing grade", student: &model.Student{ID: "stu-2", CurriculumID: testCurriculum}, wantErr: ErrProfileIncomplete, kind: KindConfiguration},
		{name: "missing curriculum", student: &model.Student{ID: "stu-2", GradeID: testGrade}, wantErr: ErrProfileIncomplete, kind: KindConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, config.DefaultEngineConfig())
			h.addSubject("math", 1, "m1")
			if tt.student != nil {
				h.students.students[tt.student.ID] = *tt.student
			}

			_, err := h.engine.Initialize(context.Background(), "stu-2")
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Zero(t, h.sessions.creates)
		})
	}
}

func TestInitializeWithoutSubjects(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	_, err := h.engine.Initialize(context.Background(), testStudent)
	assert.ErrorIs(t, err, ErrNoSubjects)
}

func TestInitializeStartsNewRunOnceAllSessionsAreTerminal(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1")
	ctx := context.Background()

	first, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	_, err = h.engine.AbandonSession(ctx, first[0].SessionID)
	require.NoError(t, err)
	h.flags.claims[testStudent] = model.GenerationClaim{State: model.GenerationStateGenerating, RunID: first[0].RunID}

	second, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].SessionID, second[0].SessionID)
	assert.NotEqual(t, first[0].RunID, second[0].RunID)
	assert.Empty(t, h.flags.claims, "a new run clears the previous generation flag")
}

func TestGetCurrentQuestionRoundTrip(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1")
	h.addQuestions("math", "m1", 3, allDifficulties()...)
	ctx := context.Background()

	summaries, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	sessionID := summaries[0].SessionID

	first, err := h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, first.Question)
	assert.False(t, first.Done)
	assert.Equal(t, 3, first.Question.Difficulty)
	assert.Equal(t, 1, first.Question.QuestionNumber)
	assert.Equal(t, 1, h.questions.count())

	again, err := h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, first.Question, again.Question)
	assert.Equal(t, 1, h.questions.count(), "re-fetch must not issue a second row")

	row, err := h.questions.GetLatest(ctx, sessionID, first.Question.QuestionID)
	require.NoError(t, err)
	assert.False(t, row.IsAnswered())
}

func TestGetCurrentQuestionRoundTripSurvivesCacheLoss(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1")
	h.addQuestions("math", "m1", 3, allDifficulties()...)
	ctx := context.Background()

	summaries, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	sessionID := summaries[0].SessionID

	first, err := h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)
	h.states.flush()

	again, err := h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, first.Question.QuestionID, again.Question.QuestionID)
	assert.Equal(t, 1, h.questions.count())
}

func TestQuestionPayloadNeverCarriesAnswer(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1")
	h.addQuestions("math", "m1", 1, 3)
	ctx := context.Background()

	summaries, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	cur, err := h.engine.GetCurrentQuestion(ctx, summaries[0].SessionID)
	require.NoError(t, err)

	data, err := jsonString(cur)
	require.NoError(t, err)
	assert.NotContains(t, data, "correctAnswer")
	assert.NotContains(t, data, "because")
}

func TestGetCurrentQuestionSkipsExhaustedSubtopic(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1", "m2", "m3")
	h.addQuestions("math", "m3", 2, 3)
	ctx := context.Background()

	summaries, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)

	cur, err := h.engine.GetCurrentQuestion(ctx, summaries[0].SessionID)
	require.NoError(t, err)
	require.NotNil(t, cur.Question)
	assert.Equal(t, "m3", cur.Question.SubtopicID)
	assert.Equal(t, 2, cur.Progress.CurrentSubtopicIndex)
	assert.Equal(t, 2, h.cached(t, summaries[0].SessionID).CurrentSubtopicIndex)
}

func TestGetCurrentQuestionCompletesWhenCatalogExhausted(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1", "m2")
	h.addQuestions("math", "m1", 1, 3)
	ctx := context.Background()

	summaries, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	sessionID := summaries[0].SessionID

	h.answerCurrent(t, sessionID, true)

	cur, err := h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, cur.Done)
	assert.Nil(t, cur.Question)
	assert.Equal(t, model.SessionCompleted, cur.Progress.Status)

	session := h.sessions.get(sessionID)
	assert.Equal(t, model.SessionCompleted, session.Status)
	assert.NotNil(t, session.CompletedAt)
	assert.Equal(t, 1, session.QuestionsAnswered)

	// the only subject finished, so the completion hook fired the generation signal
	require.Len(t, h.publisher.published(), 1)
	assert.Contains(t, h.broadcaster.types(), MsgSessionCompleted)

	done, err := h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, done.Done)
	assert.Len(t, h.publisher.published(), 1)
}

func TestDifficultyPathScenario(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1", "m2")
	h.addQuestions("math", "m1", 5, allDifficulties()...)
	h.addQuestions("math", "m2", 5, allDifficulties()...)
	ctx := context.Background()

	summaries, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	sessionID := summaries[0].SessionID

	answers := []bool{true, true, false, true, false}
	wantPath := []int{3, 4, 5, 4, 5, 4}

	path := []int{h.cached(t, sessionID).Subtopics[0].CurrentDifficulty}
	for i, correct := range answers {
		cur, err := h.engine.GetCurrentQuestion(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, wantPath[i], cur.Question.Difficulty, "question %d served at current difficulty", i+1)

		h.answerCurrent(t, sessionID, correct)
		path = append(path, h.cached(t, sessionID).Subtopics[0].CurrentDifficulty)
	}
	assert.Equal(t, wantPath, path)

	state := h.cached(t, sessionID)
	assert.Equal(t, 5, state.Subtopics[0].QuestionsAnswered)
	assert.Len(t, state.Subtopics[0].UsedQuestionIDs, 5)
	assert.Equal(t, 1, state.CurrentSubtopicIndex)
	assert.Equal(t, model.SessionInProgress, state.Status)

	next, err := h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "m2", next.Question.SubtopicID, "closed subtopic is never served again")
}

func TestFirstAnswerFlipsStatusToInProgress(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1")
	h.addQuestions("math", "m1", 5, allDifficulties()...)
	ctx := context.Background()

	summaries, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	sessionID := summaries[0].SessionID

	_, err = h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStarted, h.sessions.get(sessionID).Status)

	h.answerCurrent(t, sessionID, false)
	session := h.sessions.get(sessionID)
	assert.Equal(t, model.SessionInProgress, session.Status)
	assert.Equal(t, 1, session.QuestionsAnswered)
	assert.Equal(t, 2, session.DifficultyLevel)
}

func TestRecordAnswerRejectsMismatchWithoutMutation(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1")
	h.addQuestions("math", "m1", 5, allDifficulties()...)
	ctx := context.Background()

	summaries, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	sessionID := summaries[0].SessionID

	_, err = h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)
	before := h.cached(t, sessionID)
	updatesBefore := h.sessions.updates

	_, _, err = h.engine.RecordAnswerAndAdvance(ctx, sessionID, model.AnswerOutcome{QuestionID: "not-current", IsCorrect: true})
	require.ErrorIs(t, err, ErrQuestionMismatch)
	assert.Equal(t, KindConflict, KindOf(err))

	assert.Equal(t, before, h.cached(t, sessionID))
	assert.Equal(t, updatesBefore, h.sessions.updates)
	rows, err := h.questions.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].IsAnswered())
}

func TestRecordAnswerRejectsDoubleScoring(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1")
	h.addQuestions("math", "m1", 5, allDifficulties()...)
	ctx := context.Background()

	summaries, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	sessionID := summaries[0].SessionID

	cur, err := h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)
	stale := h.cached(t, sessionID)

	_, _, err = h.engine.RecordAnswerAndAdvance(ctx, sessionID, model.AnswerOutcome{QuestionID: cur.Question.QuestionID, IsCorrect: true})
	require.NoError(t, err)

	// a last-writer-wins race put the pre-answer state back into the cache
	require.NoError(t, h.states.Set(ctx, stale))

	_, _, err = h.engine.RecordAnswerAndAdvance(ctx, sessionID, model.AnswerOutcome{QuestionID: cur.Question.QuestionID, IsCorrect: true})
	require.ErrorIs(t, err, ErrAlreadyAnswered)
	assert.Equal(t, 1, h.sessions.get(sessionID).QuestionsAnswered)
}

func TestRecordAnswerCompletesOnLastSubtopic(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.SubtopicQuota = 2
	h := newHarness(t, cfg)
	h.addSubject("math", 1, "m1", "m2")
	h.addQuestions("math", "m1", 3, allDifficulties()...)
	h.addQuestions("math", "m2", 3, allDifficulties()...)

	summaries, err := h.engine.Initialize(context.Background(), testStudent)
	require.NoError(t, err)
	sessionID := summaries[0].SessionID

	for i := 0; i < 3; i++ {
		h.answerCurrent(t, sessionID, true)
	}
	res := h.answerCurrent(t, sessionID, true)

	assert.True(t, res.SessionComplete)
	assert.Equal(t, model.SessionCompleted, res.SessionStatus)
	state := h.cached(t, sessionID)
	assert.Equal(t, 2, state.CurrentSubtopicIndex)
	assert.Nil(t, state.CurrentQuestionID)

	session := h.sessions.get(sessionID)
	assert.Equal(t, model.SessionCompleted, session.Status)
	require.NotNil(t, session.CompletedAt)
	assert.Equal(t, 4, session.QuestionsAnswered)
}

func TestGetSessionStateRebuildsFromLog(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.SubtopicQuota = 3
	h := newHarness(t, cfg)
	h.addSubject("math", 1, "m1", "m2")
	h.addQuestions("math", "m1", 4, allDifficulties()...)
	h.addQuestions("math", "m2", 4, allDifficulties()...)
	ctx := context.Background()

	summaries, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	sessionID := summaries[0].SessionID

	for _, correct := range []bool{true, false, true, true} {
		h.answerCurrent(t, sessionID, correct)
	}
	_, err = h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)

	live := h.cached(t, sessionID)
	h.states.flush()

	rebuilt, err := h.engine.GetSessionState(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, withoutClock(live), withoutClock(rebuilt))
	assert.NotNil(t, h.cached(t, sessionID), "rebuild repopulates the cache")
}

func TestGetSessionStateUnknownSession(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	_, err := h.engine.GetSessionState(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

// Randomized sessions: invariants hold after every step and a replay of the
// persisted log always equals the live state.
func TestLiveAndReplayAgreeOnRandomSessions(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	for iter := 0; iter < 60; iter++ {
		cfg := config.DefaultEngineConfig()
		cfg.SubtopicQuota = 1 + rng.Intn(4)
		cfg.StartingDifficulty = 1 + rng.Intn(5)
		h := newHarness(t, cfg)

		subtopicIDs := []string{"a", "b", "c", "d"}[:1+rng.Intn(4)]
		h.addSubject("math", 1, subtopicIDs...)
		for _, st := range subtopicIDs {
			for d := 1; d <= 5; d++ {
				h.addQuestions("math", st, rng.Intn(3), d)
			}
		}

		summaries, err := h.engine.Initialize(ctx, testStudent)
		require.NoError(t, err)
		sessionID := summaries[0].SessionID

		steps := rng.Intn(cfg.SubtopicQuota*len(subtopicIDs) + 3)
		for step := 0; step < steps; step++ {
			cur, err := h.engine.GetCurrentQuestion(ctx, sessionID)
			require.NoError(t, err)
			assertStateInvariants(t, h.cached(t, sessionID))
			if cur.Done {
				break
			}
			if rng.Intn(6) == 0 {
				// leave the question pending
				break
			}
			h.answerCurrent(t, sessionID, rng.Intn(2) == 0)
			assertStateInvariants(t, h.cached(t, sessionID))
		}

		live := h.cached(t, sessionID)
		h.states.flush()
		rebuilt, err := h.engine.GetSessionState(ctx, sessionID)
		require.NoError(t, err)
		require.Equal(t, withoutClock(live), withoutClock(rebuilt), "iteration %d", iter)
	}
}

func TestAbandonSession(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1")
	h.addQuestions("math", "m1", 5, allDifficulties()...)
	ctx := context.Background()

	summaries, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)
	sessionID := summaries[0].SessionID

	cur, err := h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)

	summary, err := h.engine.AbandonSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionAbandoned, summary.Status)
	assert.Equal(t, model.SessionAbandoned, h.sessions.get(sessionID).Status)
	assert.Nil(t, h.cached(t, sessionID).CurrentQuestionID)

	after, err := h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, after.Done)
	assert.Nil(t, after.Question)

	_, err = h.response.SubmitAnswer(ctx, sessionID, model.SubmitAnswerRequest{QuestionID: cur.Question.QuestionID, Answer: "A"})
	assert.ErrorIs(t, err, ErrSessionTerminal)

	_, err = h.engine.AbandonSession(ctx, sessionID)
	assert.ErrorIs(t, err, ErrSessionTerminal)
	assert.Empty(t, h.publisher.published())
}

func TestSessionForStudentHidesForeignSessions(t *testing.T) {
	h := newHarness(t, config.DefaultEngineConfig())
	h.addSubject("math", 1, "m1")
	ctx := context.Background()

	summaries, err := h.engine.Initialize(ctx, testStudent)
	require.NoError(t, err)

	session, err := h.engine.SessionForStudent(ctx, summaries[0].SessionID, testStudent)
	require.NoError(t, err)
	assert.Equal(t, summaries[0].SessionID, session.ID)

	_, err = h.engine.SessionForStudent(ctx, summaries[0].SessionID, "someone-else")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func assertStateInvariants(t *testing.T, state *model.SessionState) {
	t.Helper()
	answered := 0
	for _, sub := range state.Subtopics {
		assert.GreaterOrEqual(t, sub.CurrentDifficulty, config.MinDifficulty)
		assert.LessOrEqual(t, sub.CurrentDifficulty, config.MaxDifficulty)
		assert.LessOrEqual(t, sub.QuestionsAnswered, sub.QuestionsTotal)
		assert.Len(t, sub.UsedQuestionIDs, sub.QuestionsAnswered)
		answered += sub.QuestionsAnswered
	}
	assert.Equal(t, answered, state.AnsweredCount)
	if sub := state.CurrentSubtopic(); sub != nil && state.HasPendingQuestion() {
		assert.False(t, sub.IsComplete(), "no question is pending on a closed subtopic")
	}
}

func withoutClock(s *model.SessionState) model.SessionState {
	out := *s
	out.StartedAt = time.Time{}
	out.LastActivity = time.Time{}
	out.Version = 0
	return out
}
