package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// configDir 是 --config 命令行参数写入的目录覆盖，优先级最高。
// 传空串可以清除覆盖（测试里用 defer SetConfigDir("") 还原）。
var configDir string

// SetConfigDir 指定配置目录，Load 及各路径函数随后都从这里找文件
func SetConfigDir(dir string) {
	configDir = dir
}

// effectiveConfigPaths 返回按优先级排好的配置搜索目录：
// --config 参数、CONFIG_DIR 环境变量、最后按 APP_ENV 给默认值。
// 生产环境只认 /etc/genstudio，dev/test 在项目根和上一级找 configs/。
func effectiveConfigPaths() []string {
	if configDir != "" {
		return []string{configDir}
	}
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return []string{dir}
	}
	if parseEnv(getEnv("APP_ENV", "dev")) == EnvProduction {
		return []string{"/etc/genstudio"}
	}
	return []string{"configs", "../configs"}
}

// findConfigFile 在搜索目录里找第一个存在的 {APP_ENV}.yaml
func findConfigFile() string {
	name := ConfigFileName()
	for _, base := range effectiveConfigPaths() {
		p := filepath.Join(base, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ConfigExists 判断是否已经完成过配置（首次启动据此进入安装向导）。
// API Server 和 Worker 共用一份 yaml，各自只读自己关心的章节，
// 所以只要找到当前环境的配置文件就算已配置。
func ConfigExists() bool {
	return findConfigFile() != ""
}

// GetConfigDir 返回写配置时使用的目录。
//
// 顺序：--config 覆盖、root 进程固定 /etc/genstudio（与 deb 包一致）、
// 普通用户若对 /etc/genstudio 有写权限也用它，否则落回开发目录 configs/。
func GetConfigDir() string {
	if configDir != "" {
		return configDir
	}
	if os.Getuid() == 0 {
		return "/etc/genstudio"
	}
	if dirWritable("/etc/genstudio") {
		return "/etc/genstudio"
	}
	return "configs"
}

// dirWritable 实际写一个探针文件确认权限，Stat 的 mode 位在 ACL 下不可信
func dirWritable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("test"), 0644); err != nil {
		return false
	}
	os.Remove(probe)
	return true
}

// ConfigFileName 当前环境的配置文件名，如 "dev.yaml"、"prod.yaml"
func ConfigFileName() string {
	return fmt.Sprintf("%s.yaml", parseEnv(getEnv("APP_ENV", "dev")))
}

// EnvFileName 当前环境的凭据文件名。
// 生产环境叫 "prod.env"，由 systemd 的 EnvironmentFile= 引用；
// dev/test 用 ".env.{env}"，和 Docker Compose 的 --env-file 共用一份。
func EnvFileName() string {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	if env == EnvProduction {
		return "prod.env"
	}
	return fmt.Sprintf(".env.%s", string(env))
}

// activeConfigPath 返回 Load 实际会读到的配置文件路径，找不到返回空串
func activeConfigPath() string {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	return loadYAMLConfig(env).loadedFrom
}

// ReadConfigFile 读出当前配置文件的原始 YAML，配置管理 API 用
func ReadConfigFile() ([]byte, string, error) {
	path := activeConfigPath()
	if path == "" {
		return nil, "", fmt.Errorf("no config file found")
	}
	data, err := os.ReadFile(path)
	return data, path, err
}

// WriteConfigFile 覆盖当前配置文件，没有现成文件时写到默认位置
func WriteConfigFile(content []byte) (string, error) {
	path := activeConfigPath()
	if path == "" {
		path = filepath.Join(GetConfigDir(), ConfigFileName())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return path, err
	}
	return path, os.WriteFile(path, content, 0640)
}

// loadEnvFiles 在 dev/test 下加载 .env.{env}，先当前目录再上一级。
// godotenv.Load 不覆盖已有变量，shell 里显式 export 的值总是赢。
// 生产环境完全不碰 .env 文件，密码走 systemd 注入。
func loadEnvFiles(env Environment) {
	if env == EnvProduction {
		return
	}
	name := fmt.Sprintf(".env.%s", string(env))
	for _, dir := range []string{".", ".."} {
		if err := godotenv.Load(filepath.Join(dir, name)); err == nil {
			return
		}
	}
}
