// Package sqlite SQLite 连接与方言
//
// 单机部署和测试的默认存储：零依赖、单文件落盘，
// 建表由 AutoMigrate 在启动时完成。
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"genstudio/internal/shared/storage/dbutil"

	_ "modernc.org/sqlite"
)

// startupPragmas 每个连接打开后立即执行
// WAL 允许读写并发；busy_timeout 缓解多进程抢锁直接报错
var startupPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// Open 打开 SQLite 数据库
// dsn 示例: "file:genstudio.db?cache=shared&mode=rwc" 或 ":memory:"
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	for _, p := range startupPragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	return db, nil
}

// Dialect SQLite 方言
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

// NewDialect 创建 SQLite 方言
func NewDialect() *Dialect {
	return &Dialect{}
}

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverSQLite
}

// WITH RECURSIVE 自 SQLite 3.8.3 起可用，modernc 内嵌的版本远高于此，
// 血缘祖先链查询可以直接走 CTE
func (d *Dialect) SupportsRecursiveCTE() bool {
	return true
}

// Rebind $N 改写为 ?，顺带去掉 ::cast
func (d *Dialect) Rebind(query string) string {
	return dbutil.StripPgCasts(dbutil.RebindToQuestion(query))
}

func (d *Dialect) CurrentTimestamp() string {
	return "datetime('now')"
}

// 布尔列按 0/1 整数存储
func (d *Dialect) BooleanLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (d *Dialect) UpsertConflict(conflictColumn string, updateExprs []string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s",
		conflictColumn, strings.Join(updateExprs, ", "))
}

// SQLite 不支持 NULLS LAST 子句
func (d *Dialect) SupportsNullsLast() bool {
	return false
}

// NullsLastClause 恒为空串，SupportsNullsLast 为 false 时上层不应取用
func (d *Dialect) NullsLastClause() string {
	return ""
}

// AutoMigrate 启动时执行建表，语句全部幂等
func (d *Dialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// schema SQLite 完整建表语句（等价于 PostgreSQL 迁移文件）
//
// generation_inputs 是血缘边表：
//   - position 保持字段声明顺序与列表内顺序
//   - source_generation_id 上的索引支撑正向血缘查询（FindByLineageContains）
//   - 不建外键到上游记录：上游删除后血缘边保留（悬空引用由查询侧容忍）
const schema = `
-- generations
CREATE TABLE IF NOT EXISTS generations (
    id VARCHAR(64) PRIMARY KEY,
    owner_id VARCHAR(64) NOT NULL DEFAULT '',
    generator_name VARCHAR(200) NOT NULL,
    artifact_type VARCHAR(32) NOT NULL,
    status VARCHAR(32) DEFAULT 'queued',
    params TEXT,
    resolved_params TEXT,
    parent_generation_id VARCHAR(64),
    legacy_input_ids TEXT,
    artifact_path TEXT,
    artifact_size INTEGER,
    content_type VARCHAR(100),
    worker_id VARCHAR(64),
    error TEXT,
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now')),
    started_at DATETIME,
    finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_generations_owner ON generations(owner_id);
CREATE INDEX IF NOT EXISTS idx_generations_status ON generations(status);
CREATE INDEX IF NOT EXISTS idx_generations_parent ON generations(parent_generation_id);
CREATE INDEX IF NOT EXISTS idx_generations_created ON generations(created_at);

-- generation_inputs（血缘边，append-only）
CREATE TABLE IF NOT EXISTS generation_inputs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    generation_id VARCHAR(64) NOT NULL REFERENCES generations(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    source_generation_id VARCHAR(64) NOT NULL,
    role VARCHAR(200) NOT NULL,
    artifact_type VARCHAR(32) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_generation_inputs_source ON generation_inputs(source_generation_id);
CREATE INDEX IF NOT EXISTS idx_generation_inputs_generation ON generation_inputs(generation_id, position);

-- users
CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(64) PRIMARY KEY,
    email VARCHAR(255) NOT NULL UNIQUE,
    username VARCHAR(200),
    password_hash VARCHAR(255) NOT NULL,
    role VARCHAR(32) DEFAULT 'user',
    status VARCHAR(32) DEFAULT 'active',
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now'))
);
`
