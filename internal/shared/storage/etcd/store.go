// Package etcd worker 在线状态的 etcd 视图。
//
// 心跳 key 绑定 30 秒 lease：worker 按周期重写续命，进程一停，
// key 到期自动消失，管理端不需要显式的下线登记。
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"genstudio/internal/shared/storagetypes"
)

// heartbeatTTL 心跳 lease 时长，超过两个上报周期没续上就算离线
const heartbeatTTL = 30

// Store 实现 storage.WorkerHeartbeatStore
type Store struct {
	client *clientv3.Client
	prefix string
}

// Config etcd 连接配置
type Config struct {
	Endpoints   []string
	Prefix      string // key 空间前缀，默认 /genstudio
	DialTimeout time.Duration
}

// NewStore 建连并做一次 Status 探活，失败立即报错而不是悬挂
func NewStore(cfg Config) (*Store, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "/genstudio"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client, err := clientv3.New(clientv3.Config{
		DialTimeout: cfg.DialTimeout,
		Endpoints:   cfg.Endpoints,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	if err := probeStatus(client, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	log.Printf("[etcd] Connected to %v", cfg.Endpoints)
	return &Store{client: client, prefix: cfg.Prefix}, nil
}

// probeStatus 限时确认 endpoint 可达，比等 DialTimeout 自然超时快得多
func probeStatus(client *clientv3.Client, endpoint string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := client.Status(ctx, endpoint)
	return err
}

// Close 释放 etcd 客户端
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) heartbeatKey(workerID string) string {
	return fmt.Sprintf("%s/workers/%s/heartbeat", s.prefix, workerID)
}

// UpdateWorkerHeartbeat 写入心跳并挂上新 lease
func (s *Store) UpdateWorkerHeartbeat(ctx context.Context, hb *storagetypes.WorkerHeartbeat) error {
	hb.LastHeartbeat = time.Now()
	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	lease, err := s.client.Grant(ctx, heartbeatTTL)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	if _, err := s.client.Put(ctx, s.heartbeatKey(hb.WorkerID), string(data), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to put heartbeat: %w", err)
	}

	log.Printf("[etcd] Updated heartbeat: %s, status=%s, active=%d/%d", hb.WorkerID, hb.Status, hb.Active, hb.MaxConcurrent)
	return nil
}

// GetWorkerHeartbeat 读取单个 worker 的心跳，key 不存在返回 (nil, nil)
func (s *Store) GetWorkerHeartbeat(ctx context.Context, workerID string) (*storagetypes.WorkerHeartbeat, error) {
	resp, err := s.client.Get(ctx, s.heartbeatKey(workerID))
	if err != nil {
		return nil, fmt.Errorf("failed to get heartbeat: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	hb := new(storagetypes.WorkerHeartbeat)
	if err := json.Unmarshal(resp.Kvs[0].Value, hb); err != nil {
		return nil, fmt.Errorf("failed to unmarshal heartbeat: %w", err)
	}
	return hb, nil
}

// ListWorkerHeartbeats 扫描全部在线 worker。
// 个别 key 解析失败只记日志跳过，不让整个列表失败。
func (s *Store) ListWorkerHeartbeats(ctx context.Context) ([]*storagetypes.WorkerHeartbeat, error) {
	resp, err := s.client.Get(ctx, s.prefix+"/workers/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list heartbeats: %w", err)
	}

	var out []*storagetypes.WorkerHeartbeat
	for _, kv := range resp.Kvs {
		hb := new(storagetypes.WorkerHeartbeat)
		if err := json.Unmarshal(kv.Value, hb); err != nil {
			log.Printf("[etcd] Failed to unmarshal heartbeat at %s: %v", string(kv.Key), err)
			continue
		}
		out = append(out, hb)
	}
	return out, nil
}

// IsWorkerOnline lease 未过期即在线
func (s *Store) IsWorkerOnline(ctx context.Context, workerID string) bool {
	hb, err := s.GetWorkerHeartbeat(ctx, workerID)
	if err != nil {
		log.Printf("[etcd] Error checking worker %s online status: %v", workerID, err)
		return false
	}
	return hb != nil
}
