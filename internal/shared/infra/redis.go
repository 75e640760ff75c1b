// Package infra 把队列、事件总线、进度缓存装配到同一个 Redis 连接上。
//
// 三个组件都跑在 Redis Streams / 普通键值上，分开建连没有意义，
// 聚合结构只负责建连、分发组件视图和统一关闭。
package infra

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"genstudio/internal/shared/cache"
	cacheredis "genstudio/internal/shared/cache/redis"
	"genstudio/internal/shared/eventbus"
	eventbusredis "genstudio/internal/shared/eventbus/redis"
	"genstudio/internal/shared/queue"
	queueredis "genstudio/internal/shared/queue/redis"
)

// RedisInfra 共享一条 Redis 连接的组件集合
type RedisInfra struct {
	client   *redis.Client
	progress *cacheredis.Store
	bus      *eventbusredis.Store
	jobs     *queueredis.Store
}

// NewRedisInfra 解析 URL 建连，Ping 通过后装配组件视图
func NewRedisInfra(redisURL string) (*RedisInfra, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Printf("[Redis/Infra] Connected to %s", opts.Addr)

	return &RedisInfra{
		client:   client,
		progress: cacheredis.NewStoreFromClient(client),
		bus:      eventbusredis.NewStoreFromClient(client),
		jobs:     queueredis.NewStoreFromClient(client),
	}, nil
}

// Cache 进度缓存视图
func (r *RedisInfra) Cache() cache.Cache {
	return r.progress
}

// EventBus 事件总线视图
func (r *RedisInfra) EventBus() eventbus.EventBus {
	return r.bus
}

// Queue 任务队列视图
func (r *RedisInfra) Queue() queue.Queue {
	return r.jobs
}

// Close 关闭共享连接，各组件视图随之失效
func (r *RedisInfra) Close() error {
	return r.client.Close()
}
