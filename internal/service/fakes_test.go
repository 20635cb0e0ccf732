package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"diagnostics/internal/config"
	"diagnostics/internal/logger"
	"diagnostics/internal/model"
	"diagnostics/internal/repository"
)

// In-memory stand-ins for the Mongo repositories, Redis caches and RabbitMQ publisher.

type fakeStudents struct {
	mu       sync.Mutex
	students map[string]model.Student
}

func (f *fakeStudents) GetByID(_ context.Context, id string) (*model.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeStudents) Upsert(_ context.Context, student *model.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.students[student.ID] = *student
	return nil
}

type fakeCurriculum struct {
	mu        sync.Mutex
	subjects  []model.Subject
	topics    []model.Topic
	subtopics []model.Subtopic
}

func (f *fakeCurriculum) GetSubjects(_ context.Context, curriculumID string) ([]*model.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Subject
	for _, s := range f.subjects {
		if s.CurriculumID == curriculumID && s.IsActive {
			s := s
			out = append(out, &s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (f *fakeCurriculum) GetSubtopicsForSession(_ context.Context, curriculumID, gradeID, subjectID string) ([]model.Subtopic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var topics []model.Topic
	for _, t := range f.topics {
		if t.CurriculumID == curriculumID && t.GradeID == gradeID && t.SubjectID == subjectID && t.IsActive {
			topics = append(topics, t)
		}
	}
	var subtopics []model.Subtopic
	for _, st := range f.subtopics {
		if st.IsActive {
			subtopics = append(subtopics, st)
		}
	}
	return repository.OrderSubtopics(topics, subtopics), nil
}

func (f *fakeCurriculum) UpsertSubject(_ context.Context, s *model.Subject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, *s)
	return nil
}

func (f *fakeCurriculum) UpsertTopic(_ context.Context, t *model.Topic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, *t)
	return nil
}

func (f *fakeCurriculum) UpsertSubtopic(_ context.Context, st *model.Subtopic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subtopics = append(f.subtopics, *st)
	return nil
}

type fakeCatalog struct {
	mu        sync.Mutex
	questions map[string]model.CatalogQuestion
	lookups   int
}

func (f *fakeCatalog) GetByID(_ context.Context, id string) (*model.CatalogQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (f *fakeCatalog) FindCandidates(_ context.Context, filter model.CatalogFilter) ([]*model.CatalogQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	excluded := make(map[string]bool, len(filter.ExcludeIDs))
	for _, id := range filter.ExcludeIDs {
		excluded[id] = true
	}
	var out []*model.CatalogQuestion
	for _, q := range f.questions {
		if q.SubtopicID != filter.SubtopicID || q.GradeID != filter.GradeID || q.SubjectID != filter.SubjectID {
			continue
		}
		if !q.IsActive || excluded[q.ID] {
			continue
		}
		if filter.Difficulty != nil && q.DifficultyLevel != *filter.Difficulty {
			continue
		}
		q := q
		out = append(out, &q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCatalog) Upsert(_ context.Context, q *model.CatalogQuestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions[q.ID] = *q
	return nil
}

type fakeSessions struct {
	mu      sync.Mutex
	order   []string
	rows    map[string]model.DiagnosticSession
	creates int
	updates int
}

func (f *fakeSessions) Create(_ context.Context, s *model.DiagnosticSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[s.ID]; ok {
		return fmt.Errorf("duplicate session %s", s.ID)
	}
	f.rows[s.ID] = *s
	f.order = append(f.order, s.ID)
	f.creates++
	return nil
}

func (f *fakeSessions) GetByID(_ context.Context, id string) (*model.DiagnosticSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeSessions) Update(_ context.Context, s *model.DiagnosticSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[s.ID]; !ok {
		return errors.New("no documents")
	}
	f.rows[s.ID] = *s
	f.updates++
	return nil
}

func (f *fakeSessions) ListByStudent(_ context.Context, studentID string) ([]*model.DiagnosticSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.DiagnosticSession
	for _, id := range f.order {
		s := f.rows[id]
		if s.StudentID == studentID {
			out = append(out, &s)
		}
	}
	return out, nil
}

func (f *fakeSessions) get(id string) model.DiagnosticSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id]
}

// setStatus edits a persisted row directly, bypassing the engine
func (f *fakeSessions) setStatus(id string, status model.SessionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.rows[id]
	s.Status = status
	f.rows[id] = s
}

type fakeQuestions struct {
	mu   sync.Mutex
	rows []model.AssessmentQuestion
}

func (f *fakeQuestions) Create(_ context.Context, q *model.AssessmentQuestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.SessionID == q.SessionID && row.QuestionNumber == q.QuestionNumber {
			return fmt.Errorf("duplicate question number %d", q.QuestionNumber)
		}
	}
	f.rows = append(f.rows, *q)
	return nil
}

func (f *fakeQuestions) GetLatest(_ context.Context, sessionID, questionID string) (*model.AssessmentQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.AssessmentQuestion
	for i := range f.rows {
		row := f.rows[i]
		if row.SessionID == sessionID && row.QuestionID == questionID {
			if latest == nil || row.QuestionNumber > latest.QuestionNumber {
				latest = &row
			}
		}
	}
	return latest, nil
}

func (f *fakeQuestions) ListBySession(_ context.Context, sessionID string) ([]*model.AssessmentQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.AssessmentQuestion
	for _, row := range f.rows {
		if row.SessionID == sessionID {
			row := row
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionNumber < out[j].QuestionNumber })
	return out, nil
}

func (f *fakeQuestions) CountBySession(_ context.Context, sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, row := range f.rows {
		if row.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (f *fakeQuestions) MarkAnswered(_ context.Context, q *model.AssessmentQuestion) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == q.ID {
			if f.rows[i].IsAnswered() {
				return false, nil
			}
			f.rows[i].StudentAnswer = q.StudentAnswer
			f.rows[i].IsCorrect = q.IsCorrect
			f.rows[i].Score = q.Score
			f.rows[i].TimeTaken = q.TimeTaken
			f.rows[i].AnsweredAt = q.AnsweredAt
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeQuestions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeTx struct{}

func (fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeStateCache stores JSON like Redis does so callers never share pointers
type fakeStateCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (f *fakeStateCache) Set(_ context.Context, state *model.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[state.SessionID] = data
	return nil
}

func (f *fakeStateCache) Get(_ context.Context, sessionID string) (*model.SessionState, error) {
	f.mu.Lock()
	data, ok := f.entries[sessionID]
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var state model.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (f *fakeStateCache) Delete(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, sessionID)
	return nil
}

func (f *fakeStateCache) flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string][]byte)
}

// fakeFlags behaves like SET NX: the check and the set happen under one lock
type fakeFlags struct {
	mu     sync.Mutex
	claims map[string]model.GenerationClaim
}

func (f *fakeFlags) Claim(_ context.Context, studentID string, claim *model.GenerationClaim) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.claims[studentID]; ok {
		return false, nil
	}
	f.claims[studentID] = *claim
	return true, nil
}

func (f *fakeFlags) Get(_ context.Context, studentID string) (*model.GenerationClaim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.claims[studentID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeFlags) Release(_ context.Context, studentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claims, studentID)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.DiagnosticsCompletedEvent
	fail   error
}

func (f *fakePublisher) PublishDiagnosticsCompleted(_ context.Context, evt *model.DiagnosticsCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.events = append(f.events, *evt)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) published() []model.DiagnosticsCompletedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.DiagnosticsCompletedEvent(nil), f.events...)
}

type sentMessage struct {
	StudentID string
	Type      string
	Payload   interface{}
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeBroadcaster) BroadcastToStudent(studentID, msgType string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{StudentID: studentID, Type: msgType, Payload: payload})
}

func (f *fakeBroadcaster) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Type
	}
	return out
}

const (
	testStudent    = "stu-1"
	testGrade      = "grade-5"
	testCurriculum = "cur-1"
	correctAnswer  = "A"
)

type harness struct {
	students    *fakeStudents
	curriculum  *fakeCurriculum
	catalog     *fakeCatalog
	sessions    *fakeSessions
	questions   *fakeQuestions
	states      *fakeStateCache
	flags       *fakeFlags
	publisher   *fakePublisher
	broadcaster *fakeBroadcaster

	selector   *QuestionSelector
	engine     *DiagnosticService
	completion *CompletionService
	response   *ResponseService
	status     *StatusService

	mu    sync.Mutex
	clock time.Time
	ids   int
}

func newHarness(t *testing.T, cfg config.EngineConfig) *harness {
	t.Helper()
	require.NoError(t, cfg.Validate())

	h := &harness{
		students:    &fakeStudents{students: map[string]model.Student{}},
		curriculum:  &fakeCurriculum{},
		catalog:     &fakeCatalog{questions: map[string]model.CatalogQuestion{}},
		sessions:    &fakeSessions{rows: map[string]model.DiagnosticSession{}},
		questions:   &fakeQuestions{},
		states:      &fakeStateCache{entries: map[string][]byte{}},
		flags:       &fakeFlags{claims: map[string]model.GenerationClaim{}},
		publisher:   &fakePublisher{},
		broadcaster: &fakeBroadcaster{},
		clock:       time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	log := logger.Nop()
	stores := Stores{
		Students:   h.students,
		Curriculum: h.curriculum,
		Catalog:    h.catalog,
		Sessions:   h.sessions,
		Questions:  h.questions,
		Tx:         fakeTx{},
	}
	h.selector = NewQuestionSelector(h.catalog, h.curriculum, log)
	h.engine = NewDiagnosticService(stores, h.states, h.flags, h.selector, cfg, log)
	h.engine.now = h.now
	h.engine.newID = h.newID
	h.completion = NewCompletionService(h.engine, h.flags, h.publisher, log)
	h.completion.now = h.now
	h.response = NewResponseService(h.engine, h.questions, h.catalog, h.completion, log)
	h.status = NewStatusService(h.engine, h.questions, log)

	h.engine.SetBroadcaster(h.broadcaster)
	h.engine.SetCompletionHook(h.completion.Hook())
	h.completion.SetBroadcaster(h.broadcaster)
	h.response.SetBroadcaster(h.broadcaster)

	h.students.students[testStudent] = model.Student{
		ID:           testStudent,
		Name:         "Ada",
		GradeID:      testGrade,
		CurriculumID: testCurriculum,
	}
	return h
}

func (h *harness) now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clock = h.clock.Add(time.Second)
	return h.clock
}

func (h *harness) newID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids++
	return fmt.Sprintf("id-%03d", h.ids)
}

// addSubject registers a subject with one topic holding the given subtopics, in order
func (h *harness) addSubject(subjectID string, sequence int, subtopicIDs ...string) {
	h.curriculum.subjects = append(h.curriculum.subjects, model.Subject{
		ID: subjectID, CurriculumID: testCurriculum, Name: subjectID, Sequence: sequence, IsActive: true,
	})
	topicID := subjectID + "-topic"
	h.curriculum.topics = append(h.curriculum.topics, model.Topic{
		ID: topicID, CurriculumID: testCurriculum, GradeID: testGrade, SubjectID: subjectID, Name: topicID, Sequence: 1, IsActive: true,
	})
	for i, id := range subtopicIDs {
		h.curriculum.subtopics = append(h.curriculum.subtopics, model.Subtopic{
			ID: id, TopicID: topicID, Name: "Subtopic " + id, Sequence: i + 1, IsActive: true,
		})
	}
}

// addQuestions adds count active questions per difficulty level for a subtopic
func (h *harness) addQuestions(subjectID, subtopicID string, count int, difficulties ...int) {
	for _, d := range difficulties {
		for i := 0; i < count; i++ {
			id := fmt.Sprintf("%s-d%d-%02d", subtopicID, d, i)
			h.catalog.questions[id] = model.CatalogQuestion{
				ID:              id,
				SubtopicID:      subtopicID,
				GradeID:         testGrade,
				SubjectID:       subjectID,
				DifficultyLevel: d,
				Text:            "Question " + id,
				Options:         []string{"A", "B", "C", "D"},
				CorrectAnswer:   correctAnswer,
				Explanation:     "because " + id,
				IsActive:        true,
			}
		}
	}
}

func (h *harness) cached(t *testing.T, sessionID string) *model.SessionState {
	t.Helper()
	state, err := h.states.Get(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, state)
	return state
}

// answerCurrent fetches the current question and answers it correctly or not
func (h *harness) answerCurrent(t *testing.T, sessionID string, correct bool) *model.SubmitAnswerResult {
	t.Helper()
	ctx := context.Background()
	cur, err := h.engine.GetCurrentQuestion(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, cur.Question, "expected a question to answer")

	answer := "B"
	if correct {
		answer = " a "
	}
	res, err := h.response.SubmitAnswer(ctx, sessionID, model.SubmitAnswerRequest{
		QuestionID: cur.Question.QuestionID,
		Answer:     answer,
		TimeTaken:  12,
	})
	require.NoError(t, err)
	require.Equal(t, correct, res.IsCorrect)
	return res
}

func allDifficulties() []int {
	return []int{1, 2, 3, 4, 5}
}
