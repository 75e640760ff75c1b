package auth

import (
	"log"
	"net/http"
	"strings"
)

// 免认证路由白名单（前缀匹配）
//
// WebSocket 路由不携带 Authorization 头（浏览器限制），整体放行；
// 可见性控制在各处理器内完成。
var publicPrefixes = []string{
	"/api/v1/auth/register",
	"/api/v1/auth/login",
	"/api/v1/auth/refresh",
	"/api/v1/openapi",
	"/api/v1/docs",
	"/health",
	"/metrics",
	"/ws/",
}

func isPublicRoute(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// authenticate 校验请求携带的访问令牌
// 失败时返回要写给客户端的错误消息
func authenticate(cfg Config, r *http.Request) (*AuthUser, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, "missing authorization header"
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return nil, "invalid authorization header"
	}

	claims, err := ParseToken(cfg, token)
	if err != nil {
		log.Printf("[auth] token parse error: %v", err)
		return nil, "invalid or expired token"
	}
	if claims.Type != TokenTypeAccess {
		return nil, "invalid token type"
	}

	return &AuthUser{ID: claims.Subject, Email: claims.Email, Role: claims.Role}, ""
}

// Middleware 创建 JWT 认证中间件
// 如果 cfg.Enabled() == false，直接放行所有请求（无认证模式）
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled() || isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			user, denied := authenticate(cfg, r)
			if denied != "" {
				http.Error(w, `{"error":"`+denied+`"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), user)))
		})
	}
}

// AdminOnly 管理员专属路由中间件
//
// 认证未启用时中间件不注入用户，此时按匿名管理员放行，
// 与各处理器的可见性约定一致。
func AdminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := GetAuthUser(r.Context())
		if user != nil && user.Role != string(UserRoleAdmin) {
			http.Error(w, `{"error":"admin access required"}`, http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// UserRoleAdmin 管理员角色常量（避免 model 包循环引用）
const UserRoleAdmin = "admin"
