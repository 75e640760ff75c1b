// Package mysql MySQL 数据库方言（预留）
//
// 提供 MySQL 方言实现，供 repository 层在 MySQL 上复用同一套 SQL。
// 连接管理（Open + 驱动依赖）尚未接入，接入前仅方言可用。
package mysql

import (
	"database/sql"
	"fmt"
	"strings"

	"genstudio/internal/shared/storage/dbutil"
)

// Dialect MySQL 方言实现
type Dialect struct{}

// NewDialect 创建 MySQL 方言
func NewDialect() *Dialect {
	return &Dialect{}
}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType { return dbutil.DriverMySQL }

// Rebind MySQL 与 SQLite 一样用 ? 占位符，PG 的 ::type 转换一并剥掉
func (d *Dialect) Rebind(query string) string {
	return dbutil.StripPgCasts(dbutil.RebindToQuestion(query))
}

func (d *Dialect) CurrentTimestamp() string { return "NOW()" }

func (d *Dialect) BooleanLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// UpsertConflict MySQL 用 ON DUPLICATE KEY UPDATE，冲突列由唯一索引隐含
// 更新表达式里的 EXCLUDED.col 改写为 VALUES(col)
func (d *Dialect) UpsertConflict(conflictColumn string, updateExprs []string) string {
	rewritten := make([]string, len(updateExprs))
	for i, expr := range updateExprs {
		rewritten[i] = rewriteExcluded(expr)
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(rewritten, ", ")
}

// rewriteExcluded 将 "col = EXCLUDED.col" 替换为 "col = VALUES(col)"
func rewriteExcluded(expr string) string {
	for {
		idx := strings.Index(expr, "EXCLUDED.")
		if idx < 0 {
			return expr
		}
		rest := expr[idx+len("EXCLUDED."):]
		end := 0
		for end < len(rest) && isIdentChar(rest[end]) {
			end++
		}
		expr = expr[:idx] + "VALUES(" + rest[:end] + ")" + rest[end:]
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// MySQL 的 ORDER BY 不支持 NULLS LAST
func (d *Dialect) SupportsNullsLast() bool { return false }

func (d *Dialect) NullsLastClause() string { return "" }

// MySQL 8.0+ 支持 WITH RECURSIVE
func (d *Dialect) SupportsRecursiveCTE() bool { return true }

func (d *Dialect) AutoMigrate(db *sql.DB) error {
	return fmt.Errorf("mysql auto-migrate not implemented yet")
}
