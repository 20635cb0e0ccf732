package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"diagnostics/internal/logger"
	"diagnostics/internal/model"
)

// AssessmentQuestionRepo is the durable per-session question log
type AssessmentQuestionRepo interface {
	Create(ctx context.Context, question *model.AssessmentQuestion) error

	// GetLatest returns the most recently issued row for a catalog question in a session
	GetLatest(ctx context.Context, sessionID, questionID string) (*model.AssessmentQuestion, error)

	// ListBySession returns all rows ordered by question number
	ListBySession(ctx context.Context, sessionID string) ([]*model.AssessmentQuestion, error)

	CountBySession(ctx context.Context, sessionID string) (int, error)

	// MarkAnswered writes the answer fields only if the row is still unanswered.
	// It reports false when the row was already answered or does not exist.
	MarkAnswered(ctx context.Context, question *model.AssessmentQuestion) (bool, error)
}

type assessmentQuestionRepo struct {
	collection *mongo.Collection
}

func NewAssessmentQuestionRepo(db *mongo.Database, log *logger.Logger) AssessmentQuestionRepo {
	repo := &assessmentQuestionRepo{
		collection: db.Collection("assessment_questions"),
	}
	createIndex(context.Background(), log, repo.collection, bson.D{
		{Key: "sessionId", Value: 1},
		{Key: "questionNumber", Value: 1},
	}, true)
	createIndex(context.Background(), log, repo.collection, bson.D{
		{Key: "sessionId", Value: 1},
		{Key: "questionId", Value: 1},
	}, false)
	return repo
}

func (r *assessmentQuestionRepo) Create(ctx context.Context, question *model.AssessmentQuestion) error {
	_, err := r.collection.InsertOne(ctx, question)
	return err
}

func (r *assessmentQuestionRepo) GetLatest(ctx context.Context, sessionID, questionID string) (*model.AssessmentQuestion, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "questionNumber", Value: -1}})

	var question model.AssessmentQuestion
	err := r.collection.FindOne(ctx, bson.M{"sessionId": sessionID, "questionId": questionID}, opts).Decode(&question)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *assessmentQuestionRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.AssessmentQuestion, error) {
	opts := options.Find().SetSort(bson.D{{Key: "questionNumber", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var questions []*model.AssessmentQuestion
	if err = cursor.All(ctx, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *assessmentQuestionRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"sessionId": sessionID})
	return int(n), err
}

func (r *assessmentQuestionRepo) MarkAnswered(ctx context.Context, question *model.AssessmentQuestion) (bool, error) {
	update := bson.M{"$set": bson.M{
		"studentAnswer": question.StudentAnswer,
		"isCorrect":     question.IsCorrect,
		"score":         question.Score,
		"timeTaken":     question.TimeTaken,
		"answeredAt":    question.AnsweredAt,
	}}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": question.ID, "isCorrect": nil}, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}
