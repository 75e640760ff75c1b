// Package redis 事件总线的 Redis Streams 后端
package redis

import (
	"github.com/redis/go-redis/v9"
)

// Store 包装发布与订阅共用的 Redis 客户端
type Store struct {
	client *redis.Client
}

// NewStoreFromClient 挂接共享客户端，infra 层负责 Ping 与鉴权
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close 断开 Redis 连接
func (s *Store) Close() error {
	return s.client.Close()
}
