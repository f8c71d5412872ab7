package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// mongoReport is the document layout; _id is the run id so a second insert
// under the same key fails with a duplicate key error.
type mongoReport struct {
	ID        string    `bson:"_id"`
	CrewID    string    `bson:"crew_id"`
	Total     int       `bson:"total"`
	Failed    int       `bson:"failed"`
	Partial   bool      `bson:"partial"`
	Payload   string    `bson:"payload"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoSink stores one document per report.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
	logger     *zap.Logger
}

// NewMongoSink connects and pings the server.
func NewMongoSink(ctx context.Context, cfg MongoSinkConfig, logger *zap.Logger) (*MongoSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URI == "" || cfg.Database == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("mongo sink needs uri, database and collection: %w", ErrInvalidInput)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	s := &MongoSink{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		timeout:    timeout,
		logger:     logger.With(zap.String("component", "mongo_sink")),
	}
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return s, nil
}

// Open implements Sink.
func (s *MongoSink) Open(ctx context.Context, key string) (ReportWriter, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	n, err := s.collection.CountDocuments(ctx, bson.D{{Key: "_id", Value: key}})
	if err != nil {
		return nil, fmt.Errorf("mongo count: %w", err)
	}
	if n > 0 {
		return nil, ErrAlreadyExists
	}
	return &mongoWriter{sink: s, key: key}, nil
}

// Ping implements Sink.
func (s *MongoSink) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Load implements ReportReader.
func (s *MongoSink) Load(ctx context.Context, key string) ([]byte, error) {
	var doc mongoReport
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	return []byte(doc.Payload), nil
}

// List implements ReportReader.
func (s *MongoSink) List(ctx context.Context, limit int) ([]Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetProjection(bson.D{{Key: "crew_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "payload", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	defer cur.Close(ctx)

	var entries []Entry
	for cur.Next(ctx) {
		var doc mongoReport
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo decode: %w", err)
		}
		entries = append(entries, Entry{Key: doc.ID, CrewID: doc.CrewID, CreatedAt: doc.CreatedAt.UTC(), Size: len(doc.Payload)})
	}
	return entries, cur.Err()
}

type mongoWriter struct {
	sink *MongoSink
	key  string
	done bool
}

func (w *mongoWriter) Write(ctx context.Context, data []byte) error {
	if w.done {
		return ErrAlreadyExists
	}
	h, err := parseHeader(data)
	if err != nil {
		return err
	}
	_, err = w.sink.collection.InsertOne(ctx, mongoReport{
		ID:        w.key,
		CrewID:    h.CrewID,
		Total:     h.Counts.Total,
		Failed:    h.Counts.Fail,
		Partial:   h.Partial,
		Payload:   string(data),
		CreatedAt: h.CreatedAt.UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("mongo insert: %w", err)
	}
	w.done = true
	return nil
}

func (w *mongoWriter) Close() error { return nil }
