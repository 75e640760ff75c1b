package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"genstudio/internal/shared/model"
)

const userColumns = `id, email, username, password_hash, role, status, created_at, updated_at`

// scanUser 扫描一行 users 记录，单行查询无命中返回 (nil, nil)
func scanUser(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.User, error) {
	u := &model.User{}
	err := scanner.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash,
		&u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser 创建用户
func (r *Store) CreateUser(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		r.rebind(`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`),
		user.ID, user.Email, user.Username, user.PasswordHash,
		user.Role, user.Status, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// GetUserByEmail 按邮箱查找，登录与注册查重共用
func (r *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT `+userColumns+` FROM users WHERE email = $1`), email)
	return scanUser(row)
}

// GetUserByID 按 ID 查找
func (r *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT `+userColumns+` FROM users WHERE id = $1`), id)
	return scanUser(row)
}

// UpdateUserPassword 更新口令哈希
func (r *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		r.rebind(`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`),
		passwordHash, time.Now(), id,
	)
	return err
}

// ListUsers 全部用户，新注册的在前
func (r *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
