package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"diagnostics/internal/logger"
	"diagnostics/internal/model"
)

// SessionRepo persists diagnostic sessions. Sessions are never deleted.
type SessionRepo interface {
	Create(ctx context.Context, session *model.DiagnosticSession) error
	GetByID(ctx context.Context, id string) (*model.DiagnosticSession, error)
	Update(ctx context.Context, session *model.DiagnosticSession) error

	// ListByStudent returns every session of the student, oldest first
	ListByStudent(ctx context.Context, studentID string) ([]*model.DiagnosticSession, error)
}

type sessionRepo struct {
	collection *mongo.Collection
}

func NewSessionRepo(db *mongo.Database, log *logger.Logger) SessionRepo {
	repo := &sessionRepo{
		collection: db.Collection("diagnostic_sessions"),
	}
	createIndex(context.Background(), log, repo.collection, bson.D{
		{Key: "studentId", Value: 1},
		{Key: "runId", Value: 1},
		{Key: "createdAt", Value: 1},
	}, false)
	return repo
}

func (r *sessionRepo) Create(ctx context.Context, session *model.DiagnosticSession) error {
	_, err := r.collection.InsertOne(ctx, session)
	return err
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.DiagnosticSession, error) {
	var session model.DiagnosticSession
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Update(ctx context.Context, session *model.DiagnosticSession) error {
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": session.ID}, session)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *sessionRepo) ListByStudent(ctx context.Context, studentID string) ([]*model.DiagnosticSession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"studentId": studentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []*model.DiagnosticSession
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
