package model

import "time"

// UserRole 用户角色
type UserRole string

const (
	// UserRoleAdmin 管理员，可见并管理全部生成记录
	UserRoleAdmin UserRole = "admin"
	// UserRoleUser 普通用户，只可见自己提交的记录
	UserRoleUser UserRole = "user"
)

// UserStatus 账号状态，disabled 的账号拒绝登录与令牌续期
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User 用户
//
// ID 格式如 "user-abc123def456"。OwnerID 字段（Generation）即此 ID。
type User struct {
	ID           string     `json:"id" bson:"_id" db:"id"`
	Email        string     `json:"email" bson:"email" db:"email"`
	Username     string     `json:"username" bson:"username" db:"username"`
	PasswordHash string     `json:"-" bson:"password_hash" db:"password_hash"` // never expose in JSON
	Role         UserRole   `json:"role" bson:"role" db:"role"`
	Status       UserStatus `json:"status" bson:"status" db:"status"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// IsAdmin 是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// CanLogin 是否允许登录
func (u *User) CanLogin() bool {
	return u.Status == UserStatusActive
}

// ============================================================================
// Caller - 调用方身份
// ============================================================================

// Caller 发起操作的调用方身份，可见性判定的输入
//
// UserID 为空串表示匿名管理通道（认证未启用），按 admin 处理。
type Caller struct {
	UserID string
	Admin  bool
}

// AnonymousAdmin 认证未启用时的匿名管理员身份
func AnonymousAdmin() Caller {
	return Caller{Admin: true}
}

// CanSee 调用方是否可见给定生成记录
func (c Caller) CanSee(g *Generation) bool {
	return g.VisibleTo(c.UserID, c.Admin)
}
