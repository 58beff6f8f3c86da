// Package mongodb stores accounts in MongoDB, one document per account with the OTP challenge embedded.
package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/madrasa-app/madrasa/core"
)

// collection names
const (
	collectionAccounts = "accounts"
)

type DB struct {
	client  *mongo.Client
	name    string
	timeout time.Duration
}

// Open connects to MongoDB and pings it.
func Open(ctx context.Context, conf *core.Config) (*DB, error) {
	cctx, cancel := context.WithTimeout(ctx, conf.Mongo.Timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(conf.Mongo.URI))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}

	pctx, pcancel := context.WithTimeout(ctx, conf.Mongo.Timeout)
	defer pcancel()
	if err = client.Ping(pctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongo")
	}
	return &DB{client: client, name: conf.Mongo.Database, timeout: conf.Mongo.Timeout}, nil
}

func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), db.timeout)
	defer cancel()
	return db.client.Disconnect(ctx)
}

// Drop deletes the whole database.
func (db *DB) Drop(ctx context.Context) error {
	ctx, cancel := db.getContext(ctx)
	defer cancel()
	return db.client.Database(db.name).Drop(ctx)
}

// getContext bounds a single database call.
func (db *DB) getContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.timeout)
}

func (db *DB) collectionAccounts() *mongo.Collection {
	return db.client.Database(db.name).Collection(collectionAccounts)
}

// CreateIndexes creates the unique username and email indexes, plus the index the expired-OTP sweep uses.
func (db *DB) CreateIndexes(ctx context.Context) error {
	ctx, cancel := db.getContext(ctx)
	defer cancel()

	_, err := db.collectionAccounts().Indexes().CreateMany(
		ctx, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("email_unique"),
			},
			{
				Keys:    bson.D{{Key: "usernameLower", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("username_unique"),
			},
			{
				Keys:    bson.D{{Key: "otp.expiresAt", Value: 1}},
				Options: options.Index().SetSparse(true).SetName("otp_expires_at"),
			},
			{
				Keys: bson.D{{Key: "createdAt", Value: -1}},
			},
		},
	)
	return errors.Wrap(err, "creating account indexes")
}
