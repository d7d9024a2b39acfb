package db

import (
	"context"
	"errors"
	"fmt"

	"market-sentiment/pkg/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Collection names used by MongoStore.
const (
	VerdictsCollection  = "verdicts"
	DocumentsCollection = "documents"
)

// MongoStore keeps verdicts and extracted documents in MongoDB.
type MongoStore struct {
	mongoClient *mongo.Client
	verdicts    *mongo.Collection
	documents   *mongo.Collection
}

// NewMongoStore creates a store. The connection is verified by Connect.
func NewMongoStore(connectionString, databaseName string) *MongoStore {
	clientOptions := options.Client().ApplyURI(connectionString)
	mongoClient, err := mongo.Connect(context.Background(), clientOptions)
	if err != nil {
		// Connect reports the missing client.
		return &MongoStore{}
	}

	database := mongoClient.Database(databaseName)
	return &MongoStore{
		mongoClient: mongoClient,
		verdicts:    database.Collection(VerdictsCollection),
		documents:   database.Collection(DocumentsCollection),
	}
}

// Connect verifies the connection to MongoDB.
func (s *MongoStore) Connect(ctx context.Context) error {
	if s.mongoClient == nil {
		return fmt.Errorf("mongo client not initialized")
	}
	return s.mongoClient.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.mongoClient == nil {
		return nil
	}
	return s.mongoClient.Disconnect(ctx)
}

// SaveVerdict upserts a verdict by run id.
func (s *MongoStore) SaveVerdict(ctx context.Context, verdict *domain.SentimentVerdict) error {
	if s.verdicts == nil {
		return fmt.Errorf("collection not initialized")
	}

	filter := bson.M{"run_id": verdict.RunID}
	update := bson.M{"$set": verdict}
	opts := options.Update().SetUpsert(true)

	if _, err := s.verdicts.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("save verdict: %w", err)
	}
	return nil
}

// SaveDocument upserts an extracted document by URL, so re-runs refresh the text.
func (s *MongoStore) SaveDocument(ctx context.Context, doc *domain.ExtractedDocument) error {
	if s.documents == nil {
		return fmt.Errorf("collection not initialized")
	}

	filter := bson.M{"url": doc.URL}
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)

	if _, err := s.documents.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// LatestVerdict returns the most recent verdict stored for product.
func (s *MongoStore) LatestVerdict(ctx context.Context, product string) (*domain.SentimentVerdict, error) {
	if s.verdicts == nil {
		return nil, fmt.Errorf("collection not initialized")
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "generated_at", Value: -1}})
	var verdict domain.SentimentVerdict
	err := s.verdicts.FindOne(ctx, bson.M{"product": product}, opts).Decode(&verdict)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find verdict: %w", err)
	}
	return &verdict, nil
}

// AllVerdicts returns every stored verdict.
func (s *MongoStore) AllVerdicts(ctx context.Context) ([]domain.SentimentVerdict, error) {
	if s.verdicts == nil {
		return nil, fmt.Errorf("collection not initialized")
	}

	cursor, err := s.verdicts.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find verdicts: %w", err)
	}
	defer cursor.Close(ctx)

	var verdicts []domain.SentimentVerdict
	if err := cursor.All(ctx, &verdicts); err != nil {
		return nil, fmt.Errorf("decode verdicts: %w", err)
	}
	return verdicts, nil
}
