// Package storage 存储工厂
//
// 按驱动类型装配具体实现：
//   - SQL 引擎走 NewPersistentStoreFromDSN(driverType, dsn)
//   - MongoDB 在装配层直接调用 mongostore.NewStore(uri, dbName)
//     （mongostore 依赖本包的领域错误，不能反向依赖）
package storage

import (
	"fmt"

	"genstudio/internal/shared/storage/dbutil"
	pgdriver "genstudio/internal/shared/storage/driver/postgres"
	sqlitedriver "genstudio/internal/shared/storage/driver/sqlite"
	"genstudio/internal/shared/storage/repository"
)

// NewPostgresStore 创建 PostgreSQL 存储，建表由部署侧的 init-db.sql 负责
func NewPostgresStore(dsn string) (*repository.Store, error) {
	db, err := pgdriver.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return repository.NewStore(db, pgdriver.NewDialect()), nil
}

// NewSQLiteStore 创建 SQLite 存储，首次打开时自动建表
func NewSQLiteStore(dsn string) (*repository.Store, error) {
	dialect := sqlitedriver.NewDialect()
	db, err := sqlitedriver.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := dialect.AutoMigrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite auto-migrate failed: %w", err)
	}
	return repository.NewStore(db, dialect), nil
}

// NewPersistentStoreFromDSN 按驱动类型创建 SQL 持久化存储
func NewPersistentStoreFromDSN(driver dbutil.DriverType, dsn string) (PersistentStore, error) {
	switch driver {
	case dbutil.DriverSQLite:
		return NewSQLiteStore(dsn)
	case dbutil.DriverPostgres:
		return NewPostgresStore(dsn)
	case dbutil.DriverMongoDB:
		return nil, fmt.Errorf("mongodb driver requires mongostore.NewStore(uri, dbName); wire it in the setup layer")
	}
	return nil, fmt.Errorf("unsupported database driver: %s", driver)
}
