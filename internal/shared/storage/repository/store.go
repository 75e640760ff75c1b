// Package repository 生成记录与用户的关系库存储
//
// SQL 一律按 PostgreSQL 风格书写，占位符与时间戳等差异
// 在执行前经 dbutil.Dialect 转换，PostgreSQL 与 SQLite 共用同一份实现。
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"genstudio/internal/shared/storage/dbutil"
)

// Store 基于 database/sql 的 PersistentStore 实现
type Store struct {
	db      *sql.DB
	dialect dbutil.Dialect
}

// NewStore 包装已打开的连接池与对应方言
func NewStore(db *sql.DB, dialect dbutil.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close 释放连接池
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind 把 PG 风格占位符转换为当前方言
func (s *Store) rebind(query string) string {
	return s.dialect.Rebind(query)
}

// withTx 在单个事务中执行 fn，fn 出错回滚，否则提交
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// nullableJSON 承接可能为 NULL 的 JSON 列
//
// database/sql 不会把 NULL 转成 json.RawMessage。
// []byte 缓冲区归驱动所有，Scan 时必须拷贝。
type nullableJSON []byte

func (n *nullableJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*n = nil
	case []byte:
		*n = append((*n)[:0], v...)
	case string:
		*n = nullableJSON(v)
	default:
		return fmt.Errorf("scan json column: unsupported type %T", src)
	}
	return nil
}
