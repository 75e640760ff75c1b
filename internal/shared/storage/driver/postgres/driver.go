// Package postgres PostgreSQL 连接与方言
//
// repository 层的查询本来就按 PostgreSQL 语法书写，
// 这里的方言翻译基本是恒等映射。
package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"genstudio/internal/shared/storage/dbutil"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// 连接池参数，生产与测试部署共用
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
)

// Open 建立 PostgreSQL 连接池并做一次连通性探测
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

// Dialect PostgreSQL 方言
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

// NewDialect 创建 PostgreSQL 方言
func NewDialect() *Dialect {
	return &Dialect{}
}

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverPostgres
}

func (d *Dialect) CurrentTimestamp() string {
	return "NOW()"
}

// 原生 TRUE/FALSE 字面量
func (d *Dialect) BooleanLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// Rebind 原生占位符就是 $N，原样返回
func (d *Dialect) Rebind(query string) string {
	return dbutil.RebindToPositional(query)
}

func (d *Dialect) UpsertConflict(conflictColumn string, updateExprs []string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s",
		conflictColumn, strings.Join(updateExprs, ", "))
}

// 排序查询可以直接使用原生 NULLS LAST 子句
func (d *Dialect) SupportsNullsLast() bool {
	return true
}

// 祖先链与后代树查询依赖 WITH RECURSIVE
func (d *Dialect) SupportsRecursiveCTE() bool {
	return true
}

func (d *Dialect) NullsLastClause() string {
	return "NULLS LAST"
}

// AutoMigrate PostgreSQL 表结构由 deployments/init-db.sql 管理
func (d *Dialect) AutoMigrate(db *sql.DB) error {
	return nil
}
