// Package redis 基于 Redis 的进度缓存实现
package redis

import (
	"github.com/redis/go-redis/v9"
)

// Store 持有缓存操作共用的 Redis 客户端
type Store struct {
	client *redis.Client
}

// NewStoreFromClient 复用 infra 层已经连通的客户端，不再 Ping
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close 释放底层连接
func (s *Store) Close() error {
	return s.client.Close()
}
