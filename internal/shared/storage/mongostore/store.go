// Package mongostore 实现基于 MongoDB 的 PersistentStore
//
// 使用 mongo-go-driver v2，通过 bson tag 实现 model 结构体的序列化/反序列化。
// 生成记录的血缘边内嵌在文档的 input_artifacts 数组中，单文档写入天然满足
// "记录与血缘边原子落库" 的要求；正向血缘查询走 multikey 索引。
package mongostore

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// 集合名
const (
	ColGenerations = "generations"
	ColUsers       = "users"
)

// 建连与断连的时间上限，connectTimeout 同时覆盖首次索引创建
const (
	connectTimeout    = 10 * time.Second
	disconnectTimeout = 5 * time.Second
)

// Store MongoDB 持久层，满足 storage.PersistentStore
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewStore 连接 MongoDB 并准备好索引
//
// uri 形如 "mongodb://localhost:27017"，dbName 形如 "genstudio"。
// 索引创建失败只告警不中断，集合仍可读写。
func NewStore(uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	s := &Store{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(ctx); err != nil {
		log.Printf("WARNING: mongostore: ensure indexes failed: %v", err)
	}
	return s, nil
}

// Close 断开连接，给挂起的操作留出收尾时间
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// col 按名称取集合句柄
func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// ensureIndexes 创建两个集合的全部索引
//
// input_artifacts.source_generation_id 是 multikey 索引：
// FindByLineageContains 的反向查询靠它命中，避免全集合扫描。
// users.email 唯一索引承担邮箱排他，CreateUser 不做先查后插。
func (s *Store) ensureIndexes(ctx context.Context) error {
	asc := func(field string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}}
	}

	genIndexes := []mongo.IndexModel{
		asc("owner_id"),
		asc("status"),
		asc("generator_name"),
		asc("parent_generation_id"),
		asc("input_artifacts.source_generation_id"),
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}
	if _, err := s.col(ColGenerations).Indexes().CreateMany(ctx, genIndexes); err != nil {
		return fmt.Errorf("create index on %s: %w", ColGenerations, err)
	}

	emailUnique := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.col(ColUsers).Indexes().CreateMany(ctx, []mongo.IndexModel{emailUnique}); err != nil {
		return fmt.Errorf("create index on %s: %w", ColUsers, err)
	}
	return nil
}
