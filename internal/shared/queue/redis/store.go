// Package redis 用 Redis Streams 承载任务队列
package redis

import (
	"github.com/redis/go-redis/v9"
)

// Store 队列各操作共享的客户端包装
type Store struct {
	client *redis.Client
}

// NewStoreFromClient 接管 infra 层建好的连接，连通性由调用方保证
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close 关闭客户端连接
func (s *Store) Close() error {
	return s.client.Close()
}
