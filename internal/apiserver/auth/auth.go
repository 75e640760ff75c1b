// Package auth 账号体系：bcrypt 口令哈希、HS256 JWT 的签发与校验、
// 请求认证中间件与账号 API。
//
// JWTSecret 为空表示认证未启用，此时中间件放行一切请求，
// 各处理器按匿名管理员（model.AnonymousAdmin）处理。
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Config 认证配置
type Config struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// DefaultConfig 短效 access + 一周 refresh
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}
}

// Enabled 未配置签名密钥时整个认证层关闭
func (c Config) Enabled() bool {
	return c.JWTSecret != ""
}

// bcryptCost 口令哈希成本因子。登录延迟与爆破成本的平衡点。
const bcryptCost = 12

// HashPassword 生成 bcrypt 口令哈希
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(b), err
}

// CheckPassword 比对明文口令与哈希
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// 令牌类型。refresh 令牌只能换发 access，不能直接访问 API。
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims JWT 声明。Subject 存用户 ID。
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Type  string `json:"type,omitempty"`
}

// sign 用 HS256 签名声明
func sign(cfg Config, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

// GenerateAccessToken 签发携带身份信息的访问令牌
func GenerateAccessToken(cfg Config, userID, email, role string) (string, error) {
	now := time.Now()
	return sign(cfg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.AccessTokenTTL)),
		},
		Email: email,
		Role:  role,
		Type:  TokenTypeAccess,
	})
}

// GenerateRefreshToken 签发刷新令牌，只带用户 ID
func GenerateRefreshToken(cfg Config, userID string) (string, error) {
	now := time.Now()
	return sign(cfg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.RefreshTokenTTL)),
		},
		Type: TokenTypeRefresh,
	})
}

// ParseToken 校验签名、算法与有效期，返回声明
//
// 认证未启用时一律拒绝：空密钥签出的令牌不可信。
func ParseToken(cfg Config, raw string) (*Claims, error) {
	if !cfg.Enabled() {
		return nil, errors.New("authentication is not enabled")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
