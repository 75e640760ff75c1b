// Package config 统一配置管理
//
// API Server 与 Worker 共用同一份 YAML schema，各组件读自己的章节。
// 取值优先级从高到低：环境变量（.env 或 systemd 注入）、{env}.yaml、
// 代码内默认值。
//
// 凭据只存在 .env 文件：YAML 里不出现任何密码，对应字段的 yaml tag
// 一律是 "-"。同一份 .env 被 Docker Compose（--env-file）、Go 应用
// （godotenv）、systemd（EnvironmentFile=）共用。
//
// 配置目录的确定顺序：--config 参数、CONFIG_DIR 环境变量，
// 再按 APP_ENV 落到默认位置（prod → /etc/genstudio/，其余 → ./configs/）。
// 环境与文件的对应关系：
//   - dev  → configs/dev.yaml + .env.dev
//   - test → configs/test.yaml + .env.test
//   - prod → /etc/genstudio/prod.yaml + prod.env
package config

import "time"

// Environment 运行环境
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvTest        Environment = "test" // 集成测试与 E2E 共用
	EnvProduction  Environment = "prod"
)

// YAMLConfig 统一 YAML 配置文件结构
// API Server 和 Worker 共用此格式，通过章节区分
type YAMLConfig struct {
	APIServer      APIServerConfig `yaml:"api_server"`      // API Server（端口 + URL）
	Database       DatabaseConfig  `yaml:"database"`        // 数据库（API Server）
	Redis          RedisConfig     `yaml:"redis"`           // Redis（队列/事件/缓存共享）
	Etcd           EtcdConfig      `yaml:"etcd"`            // etcd（worker 心跳）
	MinIO          MinIOConfig     `yaml:"minio"`           // MinIO 对象存储（产物）
	TLS            TLSConfig       `yaml:"tls"`             // TLS/HTTPS（API Server）
	Worker         WorkerConfig    `yaml:"worker"`          // Worker（生成执行器）
	Auth           AuthConfig      `yaml:"auth"`            // 认证（API Server）
	GeneratorsFile string          `yaml:"generators_file"` // 生成器声明文件路径
}

// APIServerConfig API Server 配置
type APIServerConfig struct {
	Port string `yaml:"port"` // 监听端口
	URL  string `yaml:"url"`  // API Server 完整 URL（外部访问用）
}

// AuthConfig 认证配置
// 三个凭据字段只认环境变量，yaml tag 为 "-"
type AuthConfig struct {
	JWTSecret       string `yaml:"-"`                 // JWT_SECRET
	AccessTokenTTL  string `yaml:"access_token_ttl"`  // 如 "15m"
	RefreshTokenTTL string `yaml:"refresh_token_ttl"` // 如 "168h"
	AdminEmail      string `yaml:"-"`                 // ADMIN_EMAIL
	AdminPassword   string `yaml:"-"`                 // ADMIN_PASSWORD
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // mongodb（默认）/ postgres / sqlite
	URI    string `yaml:"uri"`    // MongoDB 连接串，优先于 host/port
	Path   string `yaml:"path"`   // SQLite 文件路径

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // DB_PASSWORD / MONGO_ROOT_PASSWORD
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	URL      string `yaml:"url"` // 直接指定连接串时优先
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"` // REDIS_PASSWORD
}

type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Prefix    string   `yaml:"prefix"`
}

// TLSConfig TLS/HTTPS 配置
type TLSConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CertFile     string `yaml:"cert_file"`     // 服务端证书
	KeyFile      string `yaml:"key_file"`      // 服务端私钥
	CertDir      string `yaml:"cert_dir"`      // 证书目录（auto_generate 时使用，默认 /etc/genstudio/certs）
	AutoGenerate bool   `yaml:"auto_generate"` // 启用时若证书不存在则自动生成自签名证书
	Hosts        string `yaml:"hosts"`         // 证书 SANs（逗号分隔的 IP/域名，自动包含 localhost）
}

// MinIOConfig MinIO 对象存储配置
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"` // host:port，不带协议
	AccessKey string `yaml:"-"`        // MINIO_ROOT_USER
	SecretKey string `yaml:"-"`        // MINIO_ROOT_PASSWORD
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"` // 缺省时用内置 bucket 名
}

// WorkerConfig Worker 配置
type WorkerConfig struct {
	ID                string        `yaml:"id"`                 // worker 标识（默认 worker-{hostname}）
	MaxConcurrent     int           `yaml:"max_concurrent"`     // 并发执行上限
	ClaimBlock        time.Duration `yaml:"claim_block"`        // 队列领取阻塞时间
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // 心跳间隔
}

// Config 解析完成后交给应用使用的最终配置
type Config struct {
	Env            Environment
	DatabaseDriver string // mongodb / postgres / sqlite
	DatabaseURL    string
	DatabaseDBName string // MongoDB 库名
	RedisURL       string
	EtcdEndpoints  []string
	EtcdPrefix     string
	APIPort        string
	APIServer      APIServerConfig
	MinIO          MinIOConfig
	TLS            TLSConfig
	Auth           AuthConfig
	Worker         WorkerConfig
	GeneratorsFile string // 生成器声明文件路径（相对路径基于配置文件所在目录）
	ConfigFilePath string // 实际加载的配置文件路径（用于配置管理 API）
}

// yamlConfigInternal 解析时的内部包装，额外记下文件来源
type yamlConfigInternal struct {
	YAMLConfig `yaml:",inline"`
	loadedFrom string
}
