package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// TxRunner runs fn inside a single MongoDB transaction. Repository calls made
// with the context passed to fn join the transaction.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type mongoTxRunner struct {
	client *mongo.Client
}

// NewTxRunner creates a transaction runner. Transactions need a replica set or sharded cluster.
func NewTxRunner(client *mongo.Client) TxRunner {
	return &mongoTxRunner{client: client}
}

func (t *mongoTxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.client.UseSession(ctx, func(sc mongo.SessionContext) error {
		_, err := sc.WithTransaction(sc, func(txCtx mongo.SessionContext) (interface{}, error) {
			return nil, fn(txCtx)
		})
		return err
	})
}
