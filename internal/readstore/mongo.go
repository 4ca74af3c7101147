package readstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/jnst/chat-backend/internal/projection"
)

// MongoStore implements projection.SyncPort on MongoDB. Documents are keyed by _id.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore wraps an existing database handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// ConnectMongo dials MongoDB and retries the first ping until maxWait elapses.
func ConnectMongo(ctx context.Context, uri string, maxWait time.Duration) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	ping := func() (struct{}, error) {
		return struct{}{}, client.Ping(ctx, readpref.Primary())
	}
	notify := func(err error, next time.Duration) {
		slog.Warn("mongo not ready", slog.String("error", err.Error()), slog.Duration("retry_in", next))
	}

	if _, err := backoff.Retry(ctx, ping,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxWait),
		backoff.WithNotify(notify),
	); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	return client, nil
}

// Upsert applies mut to the document selected by m.
//
// A guarded upsert whose guard rejects an existing document makes MongoDB try to
// insert a second document with the same _id. The resulting duplicate key error
// means the guard did its job and is reported as success.
func (s *MongoStore) Upsert(ctx context.Context, collection string, m projection.Match, mut projection.Mutation) error {
	update := updateDoc(mut)
	if len(update) == 0 {
		return nil
	}

	opts := options.Update().SetUpsert(mut.Upsert)

	_, err := s.db.Collection(collection).UpdateOne(ctx, filterDoc(m), update, opts)
	if err != nil {
		if mut.Upsert && len(m.Guards) > 0 && mongo.IsDuplicateKeyError(err) {
			return nil
		}

		return fmt.Errorf("failed to upsert %s/%s: %w", collection, m.ID, err)
	}

	return nil
}

// Delete removes the selected document when its guards match.
func (s *MongoStore) Delete(ctx context.Context, collection string, m projection.Match) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, filterDoc(m)); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, m.ID, err)
	}

	return nil
}

// Find decodes the document with the given id into out.
func (s *MongoStore) Find(ctx context.Context, collection, id string, out any) (bool, error) {
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to find %s/%s: %w", collection, id, err)
	}

	return true, nil
}

func filterDoc(m projection.Match) bson.D {
	filter := bson.D{{Key: "_id", Value: m.ID}}
	if len(m.Guards) == 0 {
		return filter
	}

	guards := make(bson.A, 0, len(m.Guards))
	for _, g := range m.Guards {
		guards = append(guards, guardDoc(g))
	}

	return append(filter, bson.E{Key: "$and", Value: guards})
}

func guardDoc(g projection.Cond) bson.D {
	switch g.Op {
	case projection.OpEq:
		return bson.D{{Key: g.Field, Value: g.Value}}
	case projection.OpNotIn:
		return bson.D{{Key: g.Field, Value: bson.D{{Key: "$nin", Value: bson.A(g.Values)}}}}
	case projection.OpAbsentOrAtMost:
		return bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: g.Field, Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: g.Field, Value: nil}},
			bson.D{{Key: g.Field, Value: bson.D{{Key: "$lte", Value: g.Value}}}},
		}}}
	default:
		// Unknown operators must never match.
		return bson.D{{Key: "_id", Value: bson.D{{Key: "$exists", Value: false}}}}
	}
}

func updateDoc(mut projection.Mutation) bson.D {
	update := bson.D{}

	if len(mut.Set) > 0 {
		update = append(update, bson.E{Key: "$set", Value: bson.M(mut.Set)})
	}

	if len(mut.SetOnInsert) > 0 {
		update = append(update, bson.E{Key: "$setOnInsert", Value: bson.M(mut.SetOnInsert)})
	}

	if len(mut.Max) > 0 {
		update = append(update, bson.E{Key: "$max", Value: bson.M(mut.Max)})
	}

	if len(mut.AddToSet) > 0 {
		add := bson.M{}
		for field, vals := range mut.AddToSet {
			add[field] = bson.M{"$each": bson.A(vals)}
		}
		update = append(update, bson.E{Key: "$addToSet", Value: add})
	}

	if len(mut.Pull) > 0 {
		pull := bson.M{}
		for field, vals := range mut.Pull {
			pull[field] = bson.M{"$in": bson.A(vals)}
		}
		update = append(update, bson.E{Key: "$pull", Value: pull})
	}

	return update
}
