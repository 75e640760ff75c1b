package setup

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"genstudio/internal/apiserver/auth"
	"genstudio/internal/shared/storage"
	"genstudio/internal/shared/storage/dbutil"
	"genstudio/internal/shared/storage/mongostore"
)

// CreateAdminRequest 向导"创建管理员"一步的请求体
type CreateAdminRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Database DatabaseConfig `json:"database"`
}

// validate 返回第一条校验错误，合法时为空串
func (req CreateAdminRequest) validate() string {
	switch {
	case req.Email == "" || req.Password == "":
		return "email and password are required"
	case len(req.Password) < 8:
		return "password must be at least 8 characters"
	}
	return ""
}

// CreateAdminResponse 前端只显示 message，success 决定按钮状态
type CreateAdminResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// openStoreFor 按向导填写的数据库配置开一条临时连接。
// 向导阶段主服务还没起，不能复用它的连接池。
func openStoreFor(cfg DatabaseConfig) (storage.PersistentStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		return storage.NewPersistentStoreFromDSN(dbutil.DriverSQLite, cfg.Path)

	case "postgres":
		port := cfg.Port
		if port == 0 {
			port = 5432
		}
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=10",
			cfg.User, cfg.Password, cfg.Host, port, cfg.DBName, sslmode)
		return storage.NewPersistentStoreFromDSN(dbutil.DriverPostgres, dsn)

	default: // mongodb
		port := cfg.Port
		if port == 0 {
			port = 27017
		}
		creds := ""
		if cfg.User != "" && cfg.Password != "" {
			creds = cfg.User + ":" + cfg.Password + "@"
		}
		uri := fmt.Sprintf("mongodb://%s%s:%d", creds, cfg.Host, port)
		dbName := cfg.DBName
		if dbName == "" {
			dbName = "genstudio"
		}
		return mongostore.NewStore(uri, dbName)
	}
}

// handleCreateAdmin POST /setup/api/create-admin
//
// 前提是 init-db 已经跑过。连接失败不算协议错误，
// 返回 200 + success=false，让前端把原因显示出来。
func (s *Server) handleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req CreateAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonResp(w, http.StatusBadRequest,
			CreateAdminResponse{Message: "Invalid JSON: " + err.Error()})
		return
	}
	if msg := req.validate(); msg != "" {
		jsonResp(w, http.StatusBadRequest, CreateAdminResponse{Message: msg})
		return
	}

	store, err := openStoreFor(req.Database)
	if err != nil {
		jsonResp(w, http.StatusOK,
			CreateAdminResponse{Message: "Database connection failed: " + err.Error()})
		return
	}
	defer store.Close()

	if err := auth.EnsureAdminUser(store, req.Email, req.Password); err != nil {
		jsonResp(w, http.StatusOK,
			CreateAdminResponse{Message: "Failed to create admin user: " + err.Error()})
		return
	}

	log.Printf("Admin account ready: %s", req.Email)
	jsonResp(w, http.StatusOK, CreateAdminResponse{
		Success: true,
		Message: "Admin user created: " + req.Email,
	})
}
