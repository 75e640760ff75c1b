package setup

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"genstudio/deployments"
	"genstudio/internal/config"
	"genstudio/internal/shared/sysinstall"
)

// ========== 环境探测 ==========

// handleInfo GET /setup/api/info
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	hostname, _ := os.Hostname()
	jsonResp(w, http.StatusOK, InfoResponse{
		Hostname: hostname,
		IPs:      getLocalIPs(),
		IsRoot:   sysinstall.IsRoot(),
	})
}

// ========== 连通性校验 ==========

// checkDatabase 按类型分发到对应的探测器，认不出的类型当 mongodb
func (s *Server) checkDatabase(cfg DatabaseConfig) CheckResult {
	switch cfg.Type {
	case "sqlite":
		return testSQLite(cfg, s.configDir)
	case "postgres":
		return testPostgreSQL(cfg)
	}
	return testMongoDB(cfg)
}

// handleValidate POST /setup/api/validate
//
// 每个依赖各给一条 CheckResult，全部通过才置 valid。
// MinIO 是可选组件，endpoint 留空就不检查。
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req ValidateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	checks := map[string]CheckResult{}
	valid := true
	record := func(name string, res CheckResult) {
		checks[name] = res
		if !res.OK {
			valid = false
		}
	}

	record("database", s.checkDatabase(req.Database))
	record("redis", testRedis(req.Redis))
	if req.MinIO.Endpoint != "" {
		record("minio", testMinIO(req.MinIO))
	}
	record("auth", validateAuth(req.Auth))

	jsonResp(w, http.StatusOK, ValidateResponse{Valid: valid, Checks: checks})
}

// ========== 最终应用 ==========

// fillDefaults 补齐向导表单里留空的字段
func fillDefaults(req *ValidateRequest) {
	if req.Database.Type == "" {
		req.Database.Type = "mongodb"
	}
	switch req.Database.Type {
	case "mongodb":
		if req.Database.Port == 0 {
			req.Database.Port = 27017
		}
		if req.Database.DBName == "" {
			req.Database.DBName = "genstudio"
		}
	case "postgres":
		if req.Database.Port == 0 {
			req.Database.Port = 5432
		}
		if req.Database.SSLMode == "" {
			req.Database.SSLMode = "disable"
		}
	case "sqlite":
		if req.Database.Path == "" {
			req.Database.Path = filepath.Join(sysinstall.DataDir, "genstudio.db")
		}
	}
	if req.Redis.Port == 0 {
		req.Redis.Port = 6379
	}
	if req.Server.Port == "" {
		req.Server.Port = "8080"
	}
}

// serviceDependencies 按数据库类型返回 systemd After 依赖
func serviceDependencies(dbType string) string {
	switch dbType {
	case "postgres":
		return "postgresql.service redis.service"
	case "sqlite":
		return "redis.service"
	default: // mongodb
		return "mongod.service redis.service"
	}
}

// installService root 下安装 systemd unit，返回是否装成
func (s *Server) installService(dbType string) bool {
	if !sysinstall.HasSystemd() || sysinstall.IsUnderSystemd() {
		return false
	}
	unit := sysinstall.GenerateServiceFile(
		sysinstall.GetExecutablePath(),
		"genstudio-api-server",
		"GenStudio API Server",
		filepath.Join(s.configDir, config.EnvFileName()),
		serviceDependencies(dbType),
	)
	if err := sysinstall.InstallSystemdService("genstudio-api-server", unit); err != nil {
		log.Printf("WARNING: failed to install systemd service: %v", err)
		return false
	}
	return true
}

// handleApply POST /setup/api/apply
//
// 落盘配置与凭据，root 下顺带建用户、建目录、装 systemd unit。
// 成功响应发出后进程主动退出，交给 systemd 或运维拉起正式服务。
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req ValidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	fillDefaults(&req)

	if sysinstall.IsRoot() {
		if err := sysinstall.EnsureSystemUser(); err != nil {
			log.Printf("WARNING: failed to create system user: %v", err)
		}
		if err := sysinstall.EnsureDirectories(); err != nil {
			log.Printf("WARNING: failed to create directories: %v", err)
		}
	}

	if err := os.MkdirAll(s.configDir, 0755); err != nil {
		jsonResp(w, http.StatusInternalServerError, map[string]string{"error": "Cannot create config dir: " + err.Error()})
		return
	}
	if err := writeYAMLConfig(s.configDir, req); err != nil {
		jsonResp(w, http.StatusInternalServerError, map[string]string{"error": "Failed to write yaml: " + err.Error()})
		return
	}
	// 凭据只进 env 文件，JWT 密钥在这里一次性生成
	if err := writeEnvConfig(s.configDir, req, generateRandomString(32)); err != nil {
		jsonResp(w, http.StatusInternalServerError, map[string]string{"error": "Failed to write env: " + err.Error()})
		return
	}

	systemdInstalled := false
	if sysinstall.IsRoot() {
		sysinstall.SetFileOwnership(s.configDir)
		sysinstall.SetSecureFilePermissions(filepath.Join(s.configDir, config.EnvFileName()))
		systemdInstalled = s.installService(req.Database.Type)
	}

	message := "Configuration saved to " + s.configDir + "/."
	switch {
	case systemdInstalled:
		message += " Systemd service installed. Use 'sudo systemctl start genstudio-api-server' to start."
	case sysinstall.IsUnderSystemd():
		message += " The service will restart automatically."
	default:
		message += " Please restart the program manually."
	}

	jsonResp(w, http.StatusOK, ApplyResponse{
		Success:        true,
		Message:        message,
		ConfigDir:      s.configDir,
		SystemdInstall: systemdInstalled,
	})
	log.Printf("Configuration saved to %s/", s.configDir)

	// 留出响应写回的时间再退出
	time.AfterFunc(500*time.Millisecond, func() { os.Exit(0) })
}

// ========== 数据库初始化 ==========

// handleInitDB POST /setup/api/init-db
//
// 只有 PostgreSQL 需要显式跑建表脚本；SQLite 和 MongoDB
// 都在正式服务首次启动时自动初始化。
func (s *Server) handleInitDB(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req InitDBRequest
	switch err := json.NewDecoder(r.Body).Decode(&req); {
	case err != nil:
		jsonResp(w, http.StatusBadRequest, InitDBResponse{Message: "Invalid JSON: " + err.Error()})
		return
	case !req.ConfirmDestroy:
		jsonResp(w, http.StatusBadRequest, InitDBResponse{
			Message: "Database initialization requires confirmation. This will DELETE ALL existing data.",
		})
		return
	}

	switch req.Database.Type {
	case "sqlite":
		jsonResp(w, http.StatusOK, InitDBResponse{
			Success: true,
			Message: "SQLite database will be auto-initialized on first start.",
		})
	case "mongodb":
		jsonResp(w, http.StatusOK, InitDBResponse{
			Success: true,
			Message: "MongoDB collections and indexes are created automatically on first start.",
		})
	default:
		jsonResp(w, http.StatusOK, s.initPostgres(req.Database))
	}
}

// initPostgres 连库并执行嵌入的 init-db.sql
func (s *Server) initPostgres(cfg DatabaseConfig) InitDBResponse {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=10",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return InitDBResponse{Message: fmt.Sprintf("Connection failed: %v", err)}
	}
	defer db.Close()

	if _, err := db.Exec(deployments.InitDBSQL); err != nil {
		return InitDBResponse{Message: fmt.Sprintf("Database initialization failed: %v", err)}
	}

	log.Println("Database initialized successfully with init-db.sql")
	return InitDBResponse{
		Success: true,
		Message: "Database initialized successfully (3 tables created).",
	}
}
