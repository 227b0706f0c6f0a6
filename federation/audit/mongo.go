package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// inserter 是 *mongo.Collection 的最小子集
type inserter interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
}

// MongoSink 写入 MongoDB 集合
type MongoSink struct {
	coll   inserter
	client *mongo.Client
	logger *zap.Logger
}

// NewMongoSink 连接 MongoDB 并校验可用。
func NewMongoSink(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*MongoSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("mongo audit sink connected",
		zap.String("database", database),
		zap.String("collection", collection),
	)
	return &MongoSink{
		coll:   client.Database(database).Collection(collection),
		client: client,
		logger: logger.With(zap.String("component", "audit_mongo")),
	}, nil
}

// Record 实现 Sink。
func (s *MongoSink) Record(ctx context.Context, e Entry) error {
	rec, err := NewRecord(e)
	if err != nil {
		return err
	}
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Close 断开连接。
func (s *MongoSink) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
