package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"diagnostics/internal/logger"
	"diagnostics/internal/model"
)

// QuestionRepo is read-only access to the curated question catalog
type QuestionRepo interface {
	GetByID(ctx context.Context, id string) (*model.CatalogQuestion, error)

	// FindCandidates returns every active question matching the filter
	FindCandidates(ctx context.Context, filter model.CatalogFilter) ([]*model.CatalogQuestion, error)

	// Seeding
	Upsert(ctx context.Context, question *model.CatalogQuestion) error
}

type questionRepo struct {
	collection *mongo.Collection
}

func NewQuestionRepo(db *mongo.Database, log *logger.Logger) QuestionRepo {
	repo := &questionRepo{
		collection: db.Collection("questions"),
	}
	createIndex(context.Background(), log, repo.collection, bson.D{
		{Key: "subtopicId", Value: 1},
		{Key: "gradeId", Value: 1},
		{Key: "subjectId", Value: 1},
		{Key: "difficultyLevel", Value: 1},
		{Key: "isActive", Value: 1},
	}, false)
	return repo
}

func (r *questionRepo) GetByID(ctx context.Context, id string) (*model.CatalogQuestion, error) {
	var question model.CatalogQuestion
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&question)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &question, nil
}

func (r *questionRepo) FindCandidates(ctx context.Context, filter model.CatalogFilter) ([]*model.CatalogQuestion, error) {
	cursor, err := r.collection.Find(ctx, catalogQuery(filter), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var questions []*model.CatalogQuestion
	if err = cursor.All(ctx, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func catalogQuery(filter model.CatalogFilter) bson.M {
	query := bson.M{
		"subtopicId": filter.SubtopicID,
		"gradeId":    filter.GradeID,
		"subjectId":  filter.SubjectID,
		"isActive":   true,
	}
	if filter.Difficulty != nil {
		query["difficultyLevel"] = *filter.Difficulty
	}
	if len(filter.ExcludeIDs) > 0 {
		query["_id"] = bson.M{"$nin": filter.ExcludeIDs}
	}
	return query
}

func (r *questionRepo) Upsert(ctx context.Context, question *model.CatalogQuestion) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": question.ID}, question, options.Replace().SetUpsert(true))
	return err
}
