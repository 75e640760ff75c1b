package auth

import "context"

// AuthUser 中间件解析 JWT 后注入请求上下文的身份
type AuthUser struct {
	ID    string
	Email string
	Role  string // "admin" | "user"
}

type ctxKey int

const userCtxKey ctxKey = 0

// WithAuthUser 将认证身份注入 context
func WithAuthUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// GetAuthUser 取出认证身份，未认证请求返回 nil
func GetAuthUser(ctx context.Context) *AuthUser {
	user, _ := ctx.Value(userCtxKey).(*AuthUser)
	return user
}
