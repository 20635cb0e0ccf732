package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"diagnostics/internal/model"
)

// StudentRepo reads student profiles owned by the administration service
type StudentRepo interface {
	GetByID(ctx context.Context, id string) (*model.Student, error)
	Upsert(ctx context.Context, student *model.Student) error
}

type studentRepo struct {
	collection *mongo.Collection
}

func NewStudentRepo(db *mongo.Database) StudentRepo {
	return &studentRepo{
		collection: db.Collection("students"),
	}
}

func (r *studentRepo) GetByID(ctx context.Context, id string) (*model.Student, error) {
	var student model.Student
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&student)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepo) Upsert(ctx context.Context, student *model.Student) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": student.ID}, student, opts)
	return err
}
