// Package deployments 嵌入部署相关文件到二进制
//
// 包含：
//   - init-db.sql: PostgreSQL 全量建表脚本
//
// 测试基建（tests/testutil）用它在干净的测试库上建表，
// 保证测试 schema 与交付的初始化脚本不会漂移。
package deployments

import (
	_ "embed"
)

// InitDBSQL PostgreSQL 全量初始化脚本（全新安装使用）
//
//go:embed init-db.sql
var InitDBSQL string
