// Package storage 汇聚各持久化驱动之上的公共契约
//
// 领域错误把业务层和具体引擎解耦：SQL 与 Mongo 驱动各自把
// 底层错误翻译成这里的哨兵值，调用方只认 errors.Is。
package storage

import "errors"

var (
	// ErrNotFound 记录不存在
	// 对应 mongo.ErrNoDocuments；SQL 查询路径按约定返回 (nil, nil)
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate 唯一键冲突（重复 ID 或重复 email）
	ErrDuplicate = errors.New("duplicate: entity already exists")
)
