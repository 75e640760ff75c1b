// Package config 配置加载入口
//
// 配置加载策略：
//  1. 从 .env.{env} 加载敏感信息（密码、密钥）
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load 加载配置
// 1. 加载 .env.{env}（敏感信息）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 环境变量覆盖 → 构建最终配置
func Load() *Config {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	loadEnvFiles(env)

	yamlCfg := loadYAMLConfig(env)

	// 从环境变量获取敏感信息
	yamlCfg.Database.Password = firstEnv("DB_PASSWORD", "MONGO_ROOT_PASSWORD")
	yamlCfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	yamlCfg.MinIO.AccessKey = firstEnv("MINIO_ROOT_USER", "MINIO_ACCESS_KEY")
	yamlCfg.MinIO.SecretKey = firstEnv("MINIO_ROOT_PASSWORD", "MINIO_SECRET_KEY")
	yamlCfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	yamlCfg.Auth.AdminEmail = os.Getenv("ADMIN_EMAIL")
	yamlCfg.Auth.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	// DATABASE_URL / REDIS_URL 整体覆盖（Docker Compose 注入用）
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL(yamlCfg.Database, yamlCfg.Database.Password)
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = buildRedisURL(yamlCfg.Redis)
	}

	cfg := &Config{
		Env:            env,
		DatabaseDriver: detectDatabaseDriver(yamlCfg.Database.Driver, databaseURL),
		DatabaseURL:    databaseURL,
		DatabaseDBName: databaseName(yamlCfg.Database),
		RedisURL:       redisURL,
		EtcdEndpoints:  yamlCfg.Etcd.Endpoints,
		EtcdPrefix:     yamlCfg.Etcd.Prefix,
		APIPort:        getEnv("API_PORT", yamlCfg.APIServer.Port),
		APIServer:      yamlCfg.APIServer,
		MinIO:          yamlCfg.MinIO,
		TLS:            yamlCfg.TLS,
		Auth:           yamlCfg.Auth,
		Worker:         yamlCfg.Worker,
		GeneratorsFile: resolveGeneratorsFile(yamlCfg),
		ConfigFilePath: yamlCfg.loadedFrom,
	}

	cfg.Worker.validate()

	return cfg
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *yamlConfigInternal {
	cfg := &yamlConfigInternal{YAMLConfig: defaultYAMLConfig()}

	paths := effectiveConfigPaths()

	// 1. common.yaml（公共配置）
	for _, base := range paths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, &cfg.YAMLConfig)
			if cfg.loadedFrom == "" {
				cfg.loadedFrom = path
			}
			break
		}
	}

	// 2. {env}.yaml（环境特定配置，覆盖公共配置）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range paths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, &cfg.YAMLConfig)
			cfg.loadedFrom = path
			break
		}
	}

	return cfg
}

// defaultYAMLConfig 代码硬编码默认值
func defaultYAMLConfig() YAMLConfig {
	return YAMLConfig{
		APIServer: APIServerConfig{Port: "8080"},
		Database:  DatabaseConfig{Driver: "mongodb", Host: "localhost", Port: 27017, Name: "genstudio"},
		Redis:     RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		Etcd:      EtcdConfig{Endpoints: []string{"localhost:2379"}, Prefix: "/genstudio"},
		MinIO:     MinIOConfig{Endpoint: "localhost:9000", Bucket: "genstudio"},
		Worker: WorkerConfig{
			MaxConcurrent:     2,
			ClaimBlock:        5 * time.Second,
			HeartbeatInterval: 10 * time.Second,
		},
		Auth: AuthConfig{
			AccessTokenTTL:  "15m",
			RefreshTokenTTL: "168h",
		},
		GeneratorsFile: "generators.yaml",
	}
}

// databaseName 数据库名（MongoDB 用）
func databaseName(db DatabaseConfig) string {
	if db.Name != "" {
		return db.Name
	}
	return "genstudio"
}

// resolveGeneratorsFile 解析生成器声明文件路径
//
// 相对路径基于配置文件所在目录解析，保证 systemd/WorkingDirectory
// 差异下行为一致；GENERATORS_FILE 环境变量整体覆盖。
func resolveGeneratorsFile(yamlCfg *yamlConfigInternal) string {
	if p := os.Getenv("GENERATORS_FILE"); p != "" {
		return p
	}
	p := yamlCfg.GeneratorsFile
	if p == "" {
		p = "generators.yaml"
	}
	if filepath.IsAbs(p) || yamlCfg.loadedFrom == "" {
		return p
	}
	return filepath.Join(filepath.Dir(yamlCfg.loadedFrom), p)
}

// validate 验证并填充 worker 默认值
func (w *WorkerConfig) validate() {
	if w.ID == "" {
		if id := os.Getenv("WORKER_ID"); id != "" {
			w.ID = id
		} else {
			hostname, err := os.Hostname()
			if err != nil || hostname == "" {
				hostname = strconv.Itoa(os.Getpid())
			}
			w.ID = "worker-" + hostname
		}
	}
	if w.MaxConcurrent <= 0 {
		w.MaxConcurrent = 2
	}
	if w.ClaimBlock <= 0 {
		w.ClaimBlock = 5 * time.Second
	}
	if w.HeartbeatInterval <= 0 {
		w.HeartbeatInterval = 10 * time.Second
	}
}
