package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"genstudio/internal/config"

	"gopkg.in/yaml.v3"
)

// ========== Config File Writers ==========

// writeYAMLConfig 写入 {env}.yaml 配置文件
//
// 只覆盖向导管理的章节（api_server/database/redis/minio/tls），
// 已有文件中的其他章节（worker/etcd/generators_file 等）原样保留。
// 密码一律不写入 YAML（凭据单一数据源在 env 文件）。
func writeYAMLConfig(dir string, req ValidateRequest) error {
	path := filepath.Join(dir, config.ConfigFileName())

	// 合并已有配置
	doc := make(map[string]interface{})
	if data, err := os.ReadFile(path); err == nil {
		yaml.Unmarshal(data, &doc)
	}

	doc["api_server"] = map[string]interface{}{
		"port": req.Server.Port,
	}

	db := map[string]interface{}{
		"driver": req.Database.Type,
	}
	switch req.Database.Type {
	case "sqlite":
		db["path"] = req.Database.Path
	case "postgres":
		db["host"] = req.Database.Host
		db["port"] = req.Database.Port
		db["user"] = req.Database.User
		db["name"] = req.Database.DBName
		db["sslmode"] = req.Database.SSLMode
	default: // mongodb
		db["host"] = req.Database.Host
		db["port"] = req.Database.Port
		db["user"] = req.Database.User
		db["name"] = req.Database.DBName
	}
	doc["database"] = db

	doc["redis"] = map[string]interface{}{
		"host": req.Redis.Host,
		"port": req.Redis.Port,
	}

	if req.MinIO.Endpoint != "" {
		minio := map[string]interface{}{
			"endpoint": req.MinIO.Endpoint,
		}
		if req.MinIO.Bucket != "" {
			minio["bucket"] = req.MinIO.Bucket
		}
		doc["minio"] = minio
	}

	if req.TLS.Enabled {
		tls := map[string]interface{}{
			"enabled": true,
		}
		switch req.TLS.Mode {
		case "manual":
			tls["cert_file"] = req.TLS.CertFile
			tls["key_file"] = req.TLS.KeyFile
		default: // auto_generate
			tls["auto_generate"] = true
			if req.TLS.Hosts != "" {
				tls["hosts"] = req.TLS.Hosts
			}
		}
		doc["tls"] = tls
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// writeEnvConfig 写入凭据 env 文件（仅敏感信息，权限 0600）
//
// 文件同时被 Go 应用（godotenv）和 systemd（EnvironmentFile=）读取，
// 不写 DATABASE_URL/REDIS_URL 之类的派生值。
func writeEnvConfig(dir string, req ValidateRequest, jwtSecret string) error {
	var b strings.Builder
	b.WriteString("# GenStudio credentials (generated by setup wizard)\n")
	b.WriteString("# 凭据单一数据源：密码只存在此文件，YAML 中不存储\n\n")

	switch req.Database.Type {
	case "postgres":
		fmt.Fprintf(&b, "DB_PASSWORD=%s\n", req.Database.Password)
	case "mongodb":
		fmt.Fprintf(&b, "MONGO_ROOT_USERNAME=%s\n", req.Database.User)
		fmt.Fprintf(&b, "MONGO_ROOT_PASSWORD=%s\n", req.Database.Password)
	}

	if req.Redis.Password != "" {
		fmt.Fprintf(&b, "REDIS_PASSWORD=%s\n", req.Redis.Password)
	}

	if req.MinIO.AccessKey != "" {
		fmt.Fprintf(&b, "MINIO_ROOT_USER=%s\n", req.MinIO.AccessKey)
		fmt.Fprintf(&b, "MINIO_ROOT_PASSWORD=%s\n", req.MinIO.SecretKey)
	}

	fmt.Fprintf(&b, "JWT_SECRET=%s\n", jwtSecret)
	fmt.Fprintf(&b, "ADMIN_EMAIL=%s\n", req.Auth.AdminEmail)
	fmt.Fprintf(&b, "ADMIN_PASSWORD=%s\n", req.Auth.AdminPassword)

	path := filepath.Join(dir, config.EnvFileName())
	return os.WriteFile(path, []byte(b.String()), 0600)
}
