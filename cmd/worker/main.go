// Package main Worker 入口
// 从调度队列领取生成任务，调用生成器，产物写入 MinIO
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"genstudio/internal/config"
	"genstudio/internal/shared/infra"
	"genstudio/internal/shared/objstore"
	"genstudio/internal/shared/storage"
	"genstudio/internal/shared/storage/dbutil"
	"genstudio/internal/shared/storage/etcd"
	"genstudio/internal/shared/storage/mongostore"
	"genstudio/internal/worker"
	"genstudio/pkg/generator"

	// 内置生成器包：init() 向加载器登记 source/type/plugin 机制入口
	_ "genstudio/pkg/generator/flux"
	_ "genstudio/pkg/generator/mockgen"
	_ "genstudio/pkg/generator/openai"
	_ "genstudio/pkg/generator/veo"
)

func main() {
	configDirFlag := flag.String("config", "", "配置文件目录（或 YAML 文件路径）")
	flag.Parse()

	// systemd 单元通过 --config 传入配置目录
	if *configDirFlag != "" {
		dir := *configDirFlag
		if strings.HasSuffix(dir, ".yaml") || strings.HasSuffix(dir, ".yml") {
			dir = filepath.Dir(dir)
		}
		config.SetConfigDir(dir)
	}

	cfg := config.Load()

	log.Printf("Starting Worker... [env=%s id=%s]", cfg.Env, cfg.Worker.ID)
	log.Printf("Config: %s", cfg.String())

	startupCtx := context.Background()

	// 生成器注册表：worker 与 api-server 共用同一份声明文件，
	// 保证两边对生成器目录的视图一致
	decls, opts, err := config.LoadGenerators(cfg.GeneratorsFile)
	if err != nil {
		log.Fatalf("Failed to read generators file: %v", err)
	}
	registry, summary, err := generator.Load(decls, opts)
	if err != nil {
		log.Fatalf("Failed to load generators: %v", err)
	}
	log.Printf("Loaded %d generator(s) [requested=%d skipped=%d unlisted=%d errors=%d]",
		summary.Registered, summary.Requested, summary.Skipped, summary.Unlisted, len(summary.Errors))

	// 持久化存储（状态机流转、产物元数据落库）
	store, err := newPersistentStore(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	log.Printf("Connected to database [driver=%s]", cfg.DatabaseDriver)

	// Redis（队列领取、事件发布、进度上报）
	redisInfra, err := infra.NewRedisInfra(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisInfra.Close()
	log.Println("Connected to Redis")

	// MinIO：产物没有别的去处，worker 离开对象存储无法工作
	objClient, err := objstore.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("Failed to create MinIO client: %v", err)
	}
	if err := objClient.EnsureBucket(startupCtx); err != nil {
		log.Fatalf("Failed to ensure MinIO bucket: %v", err)
	}
	log.Println("Connected to MinIO")

	w := worker.New(worker.Config{
		WorkerID:          cfg.Worker.ID,
		MaxConcurrent:     cfg.Worker.MaxConcurrent,
		ClaimBlock:        cfg.Worker.ClaimBlock,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	}, registry, store, redisInfra.Queue(), redisInfra.EventBus(), redisInfra.Cache(), objClient)
	w.SetMetrics(worker.NewMetrics("genstudio"))

	// etcd 心跳（可选：连不上时 worker 照常干活，只是管理端看不到在线状态）
	if len(cfg.EtcdEndpoints) > 0 {
		if etcdStore, err := etcd.NewStore(etcd.Config{Endpoints: cfg.EtcdEndpoints, Prefix: cfg.EtcdPrefix}); err != nil {
			log.Printf("WARNING: etcd not available, heartbeat disabled: %v", err)
		} else {
			defer etcdStore.Close()
			w.SetHeartbeatStore(etcdStore)
		}
	}

	// Prometheus 指标端口（WORKER_METRICS_PORT 非空时暴露）
	if port := os.Getenv("WORKER_METRICS_PORT"); port != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("[metrics] listening on :%s", port)
			if err := http.ListenAndServe(":"+port, mux); err != nil {
				log.Printf("[metrics] server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down Worker...")
		cancel()
	}()

	if err := w.Start(ctx); err != nil {
		log.Fatalf("Worker error: %v", err)
	}
	log.Println("Worker stopped")
}

// newPersistentStore 按配置的驱动类型创建持久化存储
func newPersistentStore(cfg *config.Config) (storage.PersistentStore, error) {
	if cfg.DatabaseDriver == string(dbutil.DriverMongoDB) {
		return mongostore.NewStore(cfg.DatabaseURL, cfg.DatabaseDBName)
	}
	return storage.NewPersistentStoreFromDSN(dbutil.DriverType(cfg.DatabaseDriver), cfg.DatabaseURL)
}
