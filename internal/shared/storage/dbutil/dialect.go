// Package dbutil SQL 方言抽象
//
// repository 层用 PostgreSQL 风格写查询（$N 占位符、NOW()、::cast），
// Dialect 负责翻译成目标数据库的等价形式。MongoDB 不经过这里，
// DriverMongoDB 只参与存储工厂的类型分派。
package dbutil

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// DriverType 受支持的数据库驱动标识
type DriverType string

const (
	DriverPostgres DriverType = "postgres"
	DriverSQLite   DriverType = "sqlite" // modernc 纯 Go 驱动，无 CGO
	DriverMySQL    DriverType = "mysql"
	DriverMongoDB  DriverType = "mongodb" // 不经 SQL 方言，仅参与工厂分派
)

// Dialect 屏蔽各 SQL 数据库间的语法差异
type Dialect interface {
	DriverType() DriverType

	// Rebind 把 $1, $2, ... 占位符改写为目标数据库的格式
	Rebind(query string) string

	// CurrentTimestamp 当前时间的 SQL 表达式
	CurrentTimestamp() string

	// BooleanLiteral 布尔字面量（SQLite 用 0/1）
	BooleanLiteral(b bool) string

	// UpsertConflict 生成 UPSERT 冲突子句
	// updateExprs 形如 "status = EXCLUDED.status"
	UpsertConflict(conflictColumn string, updateExprs []string) string

	// NULLS LAST 排序支持。不支持时 NullsLastClause 返回空串，
	// 查询方须用 CASE WHEN 兜底。
	SupportsNullsLast() bool
	NullsLastClause() string

	// SupportsRecursiveCTE 是否支持 WITH RECURSIVE
	SupportsRecursiveCTE() bool

	// AutoMigrate 建表与迁移
	AutoMigrate(db *sql.DB) error
}

var (
	pgPlaceholderRe = regexp.MustCompile(`\$(\d+)`)
	pgCastRe        = regexp.MustCompile(`::(\w+)`)
	nowRe           = regexp.MustCompile(`(?i)\bNOW\(\)`)
)

// RebindToPositional PostgreSQL 原样保留 $N
func RebindToPositional(query string) string {
	return query
}

// RebindToQuestion $N 改写为 ?（SQLite/MySQL）
func RebindToQuestion(query string) string {
	return pgPlaceholderRe.ReplaceAllString(query, "?")
}

// StripPgCasts 去掉 ::varchar 一类的 PostgreSQL 类型转换
func StripPgCasts(query string) string {
	return pgCastRe.ReplaceAllString(query, "")
}

// ReplaceNow 把 NOW() 换成目标数据库的时间函数
func ReplaceNow(query string, replacement string) string {
	return nowRe.ReplaceAllString(query, replacement)
}

// PlaceholderList 生成 "$start, $start+1, ..." 形式的占位符串并按方言改写
func PlaceholderList(d Dialect, start, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return d.Rebind(strings.Join(parts, ", "))
}
