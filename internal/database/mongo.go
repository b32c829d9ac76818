package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"heatmap/internal/events"
)

// MongoConfig holds what DialMongo needs.
type MongoConfig struct {
	URI              string
	Database         string
	ConnectTimeout   time.Duration
	SelectionTimeout time.Duration
	// MaxPoolSize of zero keeps the driver default.
	MaxPoolSize uint64
}

// MongoStore stores interaction events as documents in one collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *slog.Logger
}

var _ events.Store = (*MongoStore)(nil)

// DialMongo connects with bounded timeouts and verifies the primary is
// reachable, so a bad URI fails fast instead of on the first insert.
func DialMongo(ctx context.Context, cfg MongoConfig, logger *slog.Logger) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.SelectionTimeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout+cfg.SelectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		if dErr := client.Disconnect(context.Background()); dErr != nil {
			logger.Warn("Failed to disconnect after ping failure", slog.Any("error", dErr))
		}
		return nil, fmt.Errorf("failed to reach mongodb: %w", err)
	}

	logger.Info("Connected to MongoDB", slog.String("database", cfg.Database))
	return NewMongoStore(client.Database(cfg.Database).Collection(events.CollectionName), logger), nil
}

// NewMongoStore wraps an existing collection.
func NewMongoStore(coll *mongo.Collection, logger *slog.Logger) *MongoStore {
	return &MongoStore{
		client: coll.Database().Client(),
		coll:   coll,
		logger: logger,
	}
}

// InsertEvents writes the batch with a single InsertMany.
func (s *MongoStore) InsertEvents(ctx context.Context, records []events.InteractionEvent) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]interface{}, len(records))
	for i := range records {
		docs[i] = records[i]
	}

	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert events: %w", err)
	}
	return nil
}

// TopPaths groups matching events by path and returns the most frequent ones.
func (s *MongoStore) TopPaths(ctx context.Context, siteID, eventType string, limit int) ([]events.PathCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "siteId", Value: siteID},
			{Key: "type", Value: eventType},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$path"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	defer cursor.Close(ctx)

	rows := []events.PathCount{}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation: %w", err)
	}
	return rows, nil
}

// Ping checks the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Migrate creates the index backing the top-paths aggregation.
func (s *MongoStore) Migrate(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "siteId", Value: 1},
			{Key: "type", Value: 1},
			{Key: "path", Value: 1},
		},
		Options: options.Index().SetName("site_type_path"),
	})
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
