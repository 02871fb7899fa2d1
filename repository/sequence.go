package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MemorySequence 进程内计数器
type MemorySequence struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemorySequence() *MemorySequence {
	return &MemorySequence{counters: make(map[string]int64)}
}

func (s *MemorySequence) Next(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[key]++
	return s.counters[key], nil
}

// MongoSequence 基于 counters 集合的原子计数器
type MongoSequence struct {
	store *MongoStore
}

func NewMongoSequence(store *MongoStore) *MongoSequence {
	return &MongoSequence{store: store}
}

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

func (s *MongoSequence) Next(ctx context.Context, key string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	var doc counterDoc
	err := s.store.db.Collection(CountersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", key, err)
	}
	return doc.Value, nil
}

// RedisSequence 基于 INCR 的计数器，key 按天划分，过期后自动清理
type RedisSequence struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSequence(client *redis.Client, ttl time.Duration) *RedisSequence {
	return &RedisSequence{client: client, prefix: "crm:seq:", ttl: ttl}
}

// NewRedisClient 解析 URL 并检查连接
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (s *RedisSequence) Next(ctx context.Context, key string) (int64, error) {
	k := s.prefix + key
	n, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", k, err)
	}
	if n == 1 && s.ttl > 0 {
		if err := s.client.Expire(ctx, k, s.ttl).Err(); err != nil {
			return 0, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	return n, nil
}
