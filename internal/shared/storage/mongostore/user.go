package mongostore

import (
	"context"
	"time"

	"genstudio/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// UserStore
// ============================================================================

// CreateUser 创建用户（email 唯一索引冲突映射为 ErrDuplicate）
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return insertOne(ctx, s.col(ColUsers), user)
}

// GetUserByEmail 通过邮箱查找用户，不存在返回 (nil, nil)
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), bson.D{{Key: "email", Value: email}})
}

// GetUserByID 通过 ID 查找用户，不存在返回 (nil, nil)
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), bson.D{{Key: "_id", Value: id}})
}

// UpdateUserPassword 更新用户密码哈希
func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	return updateFields(ctx, s.col(ColUsers), id, bson.D{
		{Key: "password_hash", Value: passwordHash},
		{Key: "updated_at", Value: time.Now()},
	})
}

// ListUsers 列出全部用户，新注册的在前（与 SQL 实现排序一致）
func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findMany[model.User](ctx, s.col(ColUsers), bson.D{}, opts)
}
