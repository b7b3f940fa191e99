package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBStore implements Store using MongoDB.
type MongoDBStore struct {
	client *mongo.Client
	stakes *mongo.Collection
}

// mongoStake is the BSON document shape for a processed stake.
type mongoStake struct {
	Signature     string            `bson:"signature"`
	Wallet        string            `bson:"wallet"`
	Lamports      int64             `bson:"lamports"`
	MintSignature string            `bson:"mint_signature"`
	CreatedAt     time.Time         `bson:"created_at"`
	Metadata      map[string]string `bson:"metadata,omitempty"`
}

// NewMongoDBStore creates a MongoDB-backed store and ensures indexes exist.
func NewMongoDBStore(connectionString, database, collection string) (*MongoDBStore, error) {
	if collection == "" {
		collection = "processed_stakes"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		// The Disconnect error during failed initialization is not actionable.
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	store := &MongoDBStore{
		client: client,
		stakes: client.Database(database).Collection(collection),
	}

	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return store, nil
}

// createIndexes creates the unique signature index and lookup indexes.
func (s *MongoDBStore) createIndexes(ctx context.Context) error {
	_, err := s.stakes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "signature", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "wallet", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create stake indexes: %w", err)
	}
	return nil
}

// RecordStake saves a processed stake.
// The unique signature index makes concurrent replays lose the insert race.
func (s *MongoDBStore) RecordStake(ctx context.Context, stake ProcessedStake) error {
	if err := validateStake(&stake); err != nil {
		return err
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	doc := mongoStake{
		Signature:     stake.Signature,
		Wallet:        stake.Wallet,
		Lamports:      int64(stake.Lamports),
		MintSignature: stake.MintSignature,
		CreatedAt:     stake.CreatedAt.UTC(),
		Metadata:      stake.Metadata,
	}

	_, err := s.stakes.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateSignature
		}
		return fmt.Errorf("insert stake: %w", err)
	}
	return nil
}

// HasStakeBeenProcessed checks if a deposit signature has ever been handled.
func (s *MongoDBStore) HasStakeBeenProcessed(ctx context.Context, signature string) (bool, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	count, err := s.stakes.CountDocuments(ctx, bson.M{"signature": signature})
	if err != nil {
		return false, fmt.Errorf("count stakes: %w", err)
	}
	return count > 0, nil
}

// GetStake retrieves a processed stake by deposit signature.
func (s *MongoDBStore) GetStake(ctx context.Context, signature string) (ProcessedStake, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var doc mongoStake
	err := s.stakes.FindOne(ctx, bson.M{"signature": signature}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return ProcessedStake{}, ErrNotFound
	}
	if err != nil {
		return ProcessedStake{}, fmt.Errorf("find stake: %w", err)
	}

	return ProcessedStake{
		Signature:     doc.Signature,
		Wallet:        doc.Wallet,
		Lamports:      uint64(doc.Lamports),
		MintSignature: doc.MintSignature,
		CreatedAt:     doc.CreatedAt,
		Metadata:      doc.Metadata,
	}, nil
}

// PruneOldStakes deletes records older than the specified time.
func (s *MongoDBStore) PruneOldStakes(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	result, err := s.stakes.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": olderThan.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("prune stakes: %w", err)
	}
	return result.DeletedCount, nil
}

// Close disconnects from MongoDB.
func (s *MongoDBStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
