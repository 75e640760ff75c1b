package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"time"

	"genstudio/internal/shared/model"
)

// UserStore 用户存取接口，repository 与 mongostore 均实现
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	ListUsers(ctx context.Context) ([]*model.User, error)
}

// Handler 账号 API
type Handler struct {
	store UserStore
	cfg   Config
}

// NewHandler 创建账号 API 处理器
func NewHandler(store UserStore, cfg Config) *Handler {
	return &Handler{store: store, cfg: cfg}
}

// RegisterRoutes 注册账号相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// 会话
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	// 账号
	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)
	mux.HandleFunc("PUT /api/v1/auth/password", h.ChangePassword)
	// 管理端
	mux.HandleFunc("GET /api/v1/users", AdminOnly(h.Users))
}

// sessionResponse 注册/登录响应。User 的 json 标签保证哈希不外泄。
type sessionResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	User         *model.User `json:"user"`
}

var emailRx = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// registerRequest 注册请求体，三个字段都必填
type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// validate 返回第一条校验错误信息，通过时返回空串
func (req registerRequest) validate() string {
	switch {
	case req.Email == "" || req.Username == "" || req.Password == "":
		return "email, username, password are required"
	case !emailRx.MatchString(req.Email):
		return "invalid email format"
	case len(req.Password) < 8:
		return "password must be at least 8 characters"
	}
	return ""
}

// Register POST /api/v1/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !readJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	existing, err := h.store.GetUserByEmail(r.Context(), req.Email)
	switch {
	case err != nil:
		log.Printf("[auth] register: lookup %s: %v", req.Email, err)
		serverError(w)
		return
	case existing != nil:
		writeError(w, http.StatusConflict, "email already registered")
		return
	}

	user, err := newUser(req.Email, req.Username, req.Password, model.UserRoleUser)
	if err != nil {
		log.Printf("[auth] register: hash password: %v", err)
		serverError(w)
		return
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		log.Printf("[auth] register: create %s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	pair, err := h.issueTokens(user)
	if err != nil {
		log.Printf("[auth] register: issue tokens: %v", err)
		serverError(w)
		return
	}

	log.Printf("[auth] registered %s (%s)", user.Email, user.ID)
	writeJSON(w, http.StatusCreated, sessionResponse{
		AccessToken:  pair.access,
		RefreshToken: pair.refresh,
		User:         user,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req loginRequest) validate() string {
	if req.Email == "" || req.Password == "" {
		return "email and password are required"
	}
	return ""
}

// Login POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !readJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("[auth] login: lookup %s: %v", req.Email, err)
		serverError(w)
		return
	}
	// 未注册与口令错误返回同一响应，不泄露邮箱是否存在
	if user == nil || !CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if !user.CanLogin() {
		writeError(w, http.StatusForbidden, "account is disabled")
		return
	}

	pair, err := h.issueTokens(user)
	if err != nil {
		log.Printf("[auth] login: issue tokens: %v", err)
		serverError(w)
		return
	}

	log.Printf("[auth] login %s", user.Email)
	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:  pair.access,
		RefreshToken: pair.refresh,
		User:         user,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (req refreshRequest) validate() string {
	if req.RefreshToken == "" {
		return "refresh_token is required"
	}
	return ""
}

// Refresh 用 refresh 令牌换发新 access 令牌
// POST /api/v1/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !readJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	claims, err := ParseToken(h.cfg, req.RefreshToken)
	switch {
	case err != nil:
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	case claims.Type != TokenTypeRefresh:
		writeError(w, http.StatusUnauthorized, "invalid token type")
		return
	}

	// 换发前回查用户：已删除或被禁用的账号不再续期
	user, err := h.store.GetUserByID(r.Context(), claims.Subject)
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}
	if !user.CanLogin() {
		writeError(w, http.StatusForbidden, "account is disabled")
		return
	}

	access, err := GenerateAccessToken(h.cfg, user.ID, user.Email, string(user.Role))
	if err != nil {
		serverError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": access})
}

// Me GET /api/v1/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if user := h.currentUser(w, r); user != nil {
		writeJSON(w, http.StatusOK, user)
	}
}

// changePasswordRequest 改密请求体
type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (req changePasswordRequest) validate() string {
	switch {
	case req.OldPassword == "" || req.NewPassword == "":
		return "old_password and new_password are required"
	case len(req.NewPassword) < 8:
		return "new password must be at least 8 characters"
	}
	return ""
}

// ChangePassword PUT /api/v1/auth/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req changePasswordRequest
	if !readJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if !CheckPassword(req.OldPassword, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "incorrect old password")
		return
	}
	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		serverError(w)
		return
	}
	if err := h.store.UpdateUserPassword(r.Context(), user.ID, hash); err != nil {
		log.Printf("[auth] change password %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// Users 全部用户，仅管理员
// GET /api/v1/users
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		log.Printf("[auth] list users: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// EnsureAdminUser 启动时保证管理员账号存在
//
// 邮箱已被占用时不动已有记录：把普通账号悄悄升为 admin
// 属于越权，只打日志提示。
func EnsureAdminUser(store UserStore, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	ctx := context.Background()
	switch existing, err := store.GetUserByEmail(ctx, email); {
	case err != nil:
		return fmt.Errorf("check admin user: %w", err)
	case existing != nil:
		if existing.Role != model.UserRoleAdmin {
			log.Printf("[auth] %s exists with role %s, not upgrading", email, existing.Role)
		}
		return nil
	}

	user, err := newUser(email, "Admin", password, model.UserRoleAdmin)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("[auth] bootstrap admin created: %s (%s)", email, user.ID)
	return nil
}

type tokenPair struct {
	access  string
	refresh string
}

// issueTokens 为用户签发 access + refresh 令牌对
func (h *Handler) issueTokens(u *model.User) (tokenPair, error) {
	access, err := GenerateAccessToken(h.cfg, u.ID, u.Email, string(u.Role))
	if err != nil {
		return tokenPair{}, err
	}
	refresh, err := GenerateRefreshToken(h.cfg, u.ID)
	if err != nil {
		return tokenPair{}, err
	}
	return tokenPair{access: access, refresh: refresh}, nil
}

// currentUser 从上下文取认证身份并回查数据库，失败时已写好错误响应
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) *model.User {
	au := GetAuthUser(r.Context())
	if au == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil
	}
	user, err := h.store.GetUserByID(r.Context(), au.ID)
	if err != nil || user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return nil
	}
	return user
}

// newUser 构造用户记录，口令即时哈希
func newUser(email, username, password string, role model.UserRole) (*model.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &model.User{
		ID:           newUserID(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// newUserID 生成 "user-" 前缀加 12 位十六进制的用户 ID
func newUserID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return "user-" + hex.EncodeToString(b)
}

// readJSON 解码请求体，失败时写 400 并返回 false
func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[auth] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// serverError 内部错误统一响应，细节只进日志
func serverError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "internal error")
}
