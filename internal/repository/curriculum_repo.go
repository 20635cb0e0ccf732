package repository

import (
	"context"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"diagnostics/internal/logger"
	"diagnostics/internal/model"
)

// CurriculumRepo resolves the curriculum slice a diagnostic walks through
type CurriculumRepo interface {
	GetSubjects(ctx context.Context, curriculumID string) ([]*model.Subject, error)
	GetSubtopicsForSession(ctx context.Context, curriculumID, gradeID, subjectID string) ([]model.Subtopic, error)

	// Seeding
	UpsertSubject(ctx context.Context, subject *model.Subject) error
	UpsertTopic(ctx context.Context, topic *model.Topic) error
	UpsertSubtopic(ctx context.Context, subtopic *model.Subtopic) error
}

type curriculumRepo struct {
	subjects  *mongo.Collection
	topics    *mongo.Collection
	subtopics *mongo.Collection
}

// NewCurriculumRepo creates the curriculum repository and ensures its indexes
func NewCurriculumRepo(db *mongo.Database, log *logger.Logger) CurriculumRepo {
	repo := &curriculumRepo{
		subjects:  db.Collection("subjects"),
		topics:    db.Collection("topics"),
		subtopics: db.Collection("subtopics"),
	}

	ctx := context.Background()
	createIndex(ctx, log, repo.subjects, bson.D{{Key: "curriculumId", Value: 1}, {Key: "sequence", Value: 1}}, false)
	createIndex(ctx, log, repo.topics, bson.D{
		{Key: "curriculumId", Value: 1},
		{Key: "gradeId", Value: 1},
		{Key: "subjectId", Value: 1},
		{Key: "sequence", Value: 1},
	}, false)
	createIndex(ctx, log, repo.subtopics, bson.D{{Key: "topicId", Value: 1}, {Key: "sequence", Value: 1}}, false)

	return repo
}

func (r *curriculumRepo) GetSubjects(ctx context.Context, curriculumID string) ([]*model.Subject, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.subjects.Find(ctx, bson.M{"curriculumId": curriculumID, "isActive": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var subjects []*model.Subject
	if err := cursor.All(ctx, &subjects); err != nil {
		return nil, err
	}
	return subjects, nil
}

// GetSubtopicsForSession returns active subtopics ordered by topic sequence, then
// subtopic sequence. Ids break ties so the order never changes between calls.
func (r *curriculumRepo) GetSubtopicsForSession(ctx context.Context, curriculumID, gradeID, subjectID string) ([]model.Subtopic, error) {
	cursor, err := r.topics.Find(ctx, bson.M{
		"curriculumId": curriculumID,
		"gradeId":      gradeID,
		"subjectId":    subjectID,
		"isActive":     true,
	})
	if err != nil {
		return nil, err
	}
	var topics []model.Topic
	if err := cursor.All(ctx, &topics); err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return []model.Subtopic{}, nil
	}

	topicIDs := make([]string, len(topics))
	for i, t := range topics {
		topicIDs[i] = t.ID
	}

	cursor, err = r.subtopics.Find(ctx, bson.M{
		"topicId":  bson.M{"$in": topicIDs},
		"isActive": true,
	})
	if err != nil {
		return nil, err
	}
	var subtopics []model.Subtopic
	if err := cursor.All(ctx, &subtopics); err != nil {
		return nil, err
	}

	return OrderSubtopics(topics, subtopics), nil
}

// OrderSubtopics sorts subtopics by (topic sequence, subtopic sequence, ids) and
// drops subtopics whose topic is not in the list.
func OrderSubtopics(topics []model.Topic, subtopics []model.Subtopic) []model.Subtopic {
	topicByID := make(map[string]model.Topic, len(topics))
	for _, t := range topics {
		topicByID[t.ID] = t
	}

	out := make([]model.Subtopic, 0, len(subtopics))
	for _, st := range subtopics {
		if _, ok := topicByID[st.TopicID]; ok {
			out = append(out, st)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := topicByID[out[i].TopicID], topicByID[out[j].TopicID]
		if ti.Sequence != tj.Sequence {
			return ti.Sequence < tj.Sequence
		}
		if ti.ID != tj.ID {
			return ti.ID < tj.ID
		}
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *curriculumRepo) UpsertSubject(ctx context.Context, subject *model.Subject) error {
	_, err := r.subjects.ReplaceOne(ctx, bson.M{"_id": subject.ID}, subject, options.Replace().SetUpsert(true))
	return err
}

func (r *curriculumRepo) UpsertTopic(ctx context.Context, topic *model.Topic) error {
	_, err := r.topics.ReplaceOne(ctx, bson.M{"_id": topic.ID}, topic, options.Replace().SetUpsert(true))
	return err
}

func (r *curriculumRepo) UpsertSubtopic(ctx context.Context, subtopic *model.Subtopic) error {
	_, err := r.subtopics.ReplaceOne(ctx, bson.M{"_id": subtopic.ID}, subtopic, options.Replace().SetUpsert(true))
	return err
}
