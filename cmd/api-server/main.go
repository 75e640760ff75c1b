// Package main API Server 入口
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"genstudio/internal/apiserver/auth"
	"genstudio/internal/apiserver/server"
	"genstudio/internal/apiserver/setup"
	"genstudio/internal/config"
	"genstudio/internal/shared/infra"
	"genstudio/internal/shared/objstore"
	"genstudio/internal/shared/storage"
	"genstudio/internal/shared/storage/dbutil"
	"genstudio/internal/shared/storage/etcd"
	"genstudio/internal/shared/storage/mongostore"
	"genstudio/internal/tlsutil"
	"genstudio/pkg/generator"

	// 内置生成器包：init() 向加载器登记 source/type/plugin 机制入口
	_ "genstudio/pkg/generator/flux"
	_ "genstudio/pkg/generator/mockgen"
	_ "genstudio/pkg/generator/openai"
	_ "genstudio/pkg/generator/veo"
)

const (
	// requeueInterval 兜底重派扫描周期
	requeueInterval = 30 * time.Second
	// requeueThreshold 入队多久未被领取视为滞留
	requeueThreshold = 2 * time.Minute
)

func main() {
	configDirFlag := flag.String("config", "", "配置目录，也接受 YAML 文件路径")
	reconfigure := flag.Bool("reconfigure", false, "忽略现有配置，重新进入配置向导")
	setupPort := flag.Int("setup-port", 15800, "配置向导监听端口")
	setupListen := flag.String("setup-listen", "0.0.0.0", "配置向导监听地址")
	flag.Parse()

	// 环境变量覆盖命令行参数
	if p := os.Getenv("SETUP_PORT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			*setupPort = n
		}
	}
	if l := os.Getenv("SETUP_LISTEN"); l != "" {
		*setupListen = l
	}
	resolveConfigDir(*configDirFlag)

	// --reconfigure 强制进入配置向导，{env}.yaml 不存在时视为首次安装
	if *reconfigure || !config.ConfigExists() {
		if *reconfigure {
			log.Println("Reconfigure mode: ignoring existing config file")
		}
		setup.NewServer(config.GetConfigDir(), *setupListen, *setupPort).Run()
		return
	}

	runServer()
}

// resolveConfigDir 把 --config 的值写进 config 包的路径策略
// 传 YAML 文件路径时取其所在目录
func resolveConfigDir(dir string) {
	if dir == "" {
		return
	}
	if strings.HasSuffix(dir, ".yaml") || strings.HasSuffix(dir, ".yml") {
		dir = filepath.Dir(dir)
	}
	config.SetConfigDir(dir)
}

// runServer 正常服务模式
func runServer() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换数据库和 Redis）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	startupCtx := context.Background()

	// 校验内嵌 OpenAPI 契约：启动即失败优于运行时暴露坏的文档
	if _, err := server.LoadSpec(startupCtx); err != nil {
		log.Fatalf("Invalid embedded OpenAPI spec: %v", err)
	}

	// 初始化持久化存储（驱动由配置决定：mongodb / postgres / sqlite）
	store, err := newPersistentStore(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	log.Printf("Connected to database [driver=%s]", cfg.DatabaseDriver)

	// 初始化 Redis（队列、事件总线、进度缓存共用连接）
	redisInfra, err := infra.NewRedisInfra(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisInfra.Close()
	log.Println("Connected to Redis")

	// 加载生成器声明 → 构建只读注册表
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

	// 旧版血缘数据迁移（幂等，已迁移的记录跳过）
	if migrated, err := store.BackfillLegacyLineage(startupCtx); err != nil {
		log.Fatalf("Failed to backfill legacy lineage: %v", err)
	} else if migrated > 0 {
		log.Printf("Backfilled lineage edges for %d generation(s)", migrated)
	}

	// 认证配置与管理员账户
	authCfg := buildAuthConfig(cfg.Auth)
	if authCfg.Enabled() {
		if err := auth.EnsureAdminUser(store, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			log.Fatalf("Failed to ensure admin user: %v", err)
		}
	} else {
		log.Println("WARNING: auth disabled (JWT_SECRET not set), all requests treated as admin")
	}

	h := server.NewHandler(store, registry, redisInfra.Queue(), redisInfra.EventBus())
	h.SetProgressCache(redisInfra.Cache())
	h.SetAuthConfig(authCfg)

	// MinIO：产物下载走限时预签名 URL；未配置时退回存储路径
	if objClient, err := objstore.NewClient(cfg.MinIO); err != nil {
		log.Printf("[minio] object store disabled: %v", err)
	} else {
		if err := objClient.EnsureBucket(startupCtx); err != nil {
			log.Fatalf("Failed to ensure MinIO bucket: %v", err)
		}
		h.SetObjectStore(objClient)
		log.Println("Connected to MinIO")
	}

	// etcd：worker 在线视图；连不上则 workers 接口退化为空列表
	if len(cfg.EtcdEndpoints) > 0 {
		if etcdStore, err := etcd.NewStore(etcd.Config{Endpoints: cfg.EtcdEndpoints, Prefix: cfg.EtcdPrefix}); err != nil {
			log.Printf("[etcd] worker heartbeat view disabled: %v", err)
		} else {
			defer etcdStore.Close()
			h.SetHeartbeats(etcdStore)
		}
	}

	// 启动兜底重派循环
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.StartRequeueLoop(ctx, requeueInterval, requeueThreshold)

	srv := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: h.Router(),

		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go shutdownOnSignal(srv)

	// TLS：配置启用时走 HTTPS；auto_generate 模式自动签发自签名证书
	if cfg.TLS.Enabled {
		certFile, keyFile, err := resolveTLSCerts(cfg.TLS)
		if err != nil {
			log.Fatalf("Failed to prepare TLS certificates: %v", err)
		}
		log.Printf("API Server listening on :%s (HTTPS)", cfg.APIPort)
		if err := srv.ListenAndServeTLS(certFile, keyFile); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	} else {
		log.Printf("API Server listening on :%s", cfg.APIPort)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}

	fmt.Println("Server stopped")
}

// shutdownOnSignal 收到退出信号后优雅关闭 HTTP 服务
func shutdownOnSignal(srv *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// resolveTLSCerts 解析 TLS 证书路径
// 手动模式直接使用配置的文件，auto_generate 模式按需生成自签名证书
func resolveTLSCerts(tc config.TLSConfig) (string, string, error) {
	if !tc.AutoGenerate && tc.CertFile != "" && tc.KeyFile != "" {
		return tc.CertFile, tc.KeyFile, nil
	}

	opts := tlsutil.DefaultGenerateOptions()
	opts.CertDir = tc.CertDir
	if tc.Hosts != "" {
		opts.Hosts = opts.Hosts + "," + tc.Hosts
	}
	files, err := tlsutil.EnsureCerts(opts)
	if err != nil {
		return "", "", err
	}
	return files.CertFile, files.KeyFile, nil
}

// newPersistentStore 按配置的驱动类型创建持久化存储
//
// MongoDB 不走 SQL 工厂：mongostore 需要独立的 URI + 数据库名参数。
func newPersistentStore(cfg *config.Config) (storage.PersistentStore, error) {
	if cfg.DatabaseDriver == string(dbutil.DriverMongoDB) {
		return mongostore.NewStore(cfg.DatabaseURL, cfg.DatabaseDBName)
	}
	return storage.NewPersistentStoreFromDSN(dbutil.DriverType(cfg.DatabaseDriver), cfg.DatabaseURL)
}

// buildAuthConfig 把配置文件里的字符串 TTL 换算成认证层配置
// 解析失败或非正值时保留默认 TTL
func buildAuthConfig(ac config.AuthConfig) auth.Config {
	out := auth.DefaultConfig()
	out.JWTSecret = ac.JWTSecret
	if d, err := time.ParseDuration(ac.AccessTokenTTL); err == nil && d > 0 {
		out.AccessTokenTTL = d
	}
	if d, err := time.ParseDuration(ac.RefreshTokenTTL); err == nil && d > 0 {
		out.RefreshTokenTTL = d
	}
	return out
}
