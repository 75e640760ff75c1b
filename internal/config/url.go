package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// defaultSQLitePath 不配 database.path 时的 SQLite 落盘位置，
// 与 sysinstall.DataDir 保持一致。
const defaultSQLitePath = "/var/lib/genstudio/genstudio.db"

// ========== 连接串构建 ==========

// buildDatabaseURL 按驱动拼连接串，密码单独传入避免写进 YAML
func buildDatabaseURL(db DatabaseConfig, password string) string {
	switch strings.ToLower(db.Driver) {
	case "sqlite":
		path := db.Path
		if path == "" {
			path = defaultSQLitePath
		}
		return "file:" + path + "?cache=shared&mode=rwc"
	case "mongodb":
		switch {
		case db.URI != "":
			return db.URI
		case db.User != "" && password != "":
			return fmt.Sprintf("mongodb://%s:%s@%s:%d", db.User, password, db.Host, db.Port)
		default:
			return fmt.Sprintf("mongodb://%s:%d", db.Host, db.Port)
		}
	}
	// 老配置不写 driver 字段，按 postgres 处理
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.User, password, db.Host, db.Port, db.Name, db.SSLMode)
}

// buildRedisURL 完整 URL 优先，否则由分字段拼装
func buildRedisURL(rc RedisConfig) string {
	if rc.URL != "" {
		return rc.URL
	}
	auth := ""
	if rc.Password != "" {
		auth = ":" + rc.Password + "@"
	}
	return fmt.Sprintf("redis://%s%s:%d/%d", auth, rc.Host, rc.Port, rc.DB)
}

// detectDatabaseDriver 决定存储驱动
//
// YAML 里写明的 driver 最优先；没写就看连接串前缀；
// 都认不出来时落到 mongodb（历史部署的默认存储）。
func detectDatabaseDriver(yamlDriver, databaseURL string) string {
	switch d := strings.ToLower(yamlDriver); d {
	case "sqlite", "postgres", "mongodb":
		return d
	}

	for _, p := range []struct {
		driver string
		heads  []string
	}{
		{"sqlite", []string{"file:", "sqlite:"}},
		{"postgres", []string{"postgres://", "postgresql://"}},
		{"mongodb", []string{"mongodb://", "mongodb+srv://"}},
	} {
		for _, h := range p.heads {
			if strings.HasPrefix(databaseURL, h) {
				return p.driver
			}
		}
	}
	return "mongodb"
}

// ========== 日志脱敏 ==========

// credRe 匹配 scheme://user:password@ 中的密码段
var credRe = regexp.MustCompile(`(://[^:]+:)([^@]+)(@)`)

// maskPassword 把连接串里的密码换成 ***，供日志输出
func maskPassword(url string) string {
	return credRe.ReplaceAllString(url, "${1}***${3}")
}

// String 配置摘要，连接串已脱敏，可直接进日志
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Driver: %s, DB: %s, Redis: %s}",
		c.Env, c.DatabaseDriver, maskPassword(c.DatabaseURL), c.RedisURL)
}

// ========== 环境变量辅助 ==========

// parseEnv 解析 APP_ENV 取值，认不出的一律当开发环境
func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	}
	return EnvDevelopment
}

// getEnv 读环境变量，空值回退 defaultValue
func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// firstEnv 按顺序返回第一个非空的环境变量值
//
// Docker Compose 与裸机部署用的变量名不一致
// （MONGO_ROOT_PASSWORD vs DB_PASSWORD），这里统一兼容。
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
