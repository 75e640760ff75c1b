// Package repository Generation（生成记录 + 血缘边）相关的存储操作
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"genstudio/internal/shared/model"
	"genstudio/internal/shared/storagetypes"
)

// CreateGeneration 创建生成记录
//
// 记录本体和全部血缘边在同一事务中写入：要么全部可见，要么全部不可见。
// 血缘边的 position 保持 InputArtifacts 的切片顺序，读取时按此排序还原。
func (s *Store) CreateGeneration(ctx context.Context, gen *model.Generation) error {
	var legacyJSON []byte
	if len(gen.LegacyInputIDs) > 0 {
		legacyJSON, _ = json.Marshal(gen.LegacyInputIDs)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := s.rebind(`
			INSERT INTO generations (id, owner_id, generator_name, artifact_type, status, params, resolved_params, parent_generation_id, legacy_input_ids, artifact_path, artifact_size, content_type, worker_id, error, created_at, updated_at, started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		`)
		_, err := tx.ExecContext(ctx, query,
			gen.ID, gen.OwnerID, gen.GeneratorName, gen.ArtifactType, gen.Status,
			[]byte(gen.Params), []byte(gen.ResolvedParams), gen.ParentGenerationID, legacyJSON,
			gen.ArtifactPath, gen.ArtifactSize, gen.ContentType, gen.WorkerID, gen.Error,
			gen.CreatedAt, gen.UpdatedAt, gen.StartedAt, gen.FinishedAt)
		if err != nil {
			return err
		}

		edgeQuery := s.rebind(`
			INSERT INTO generation_inputs (generation_id, position, source_generation_id, role, artifact_type)
			VALUES ($1, $2, $3, $4, $5)
		`)
		for i, in := range gen.InputArtifacts {
			if _, err := tx.ExecContext(ctx, edgeQuery,
				gen.ID, i, in.SourceGenerationID, in.Role, in.ArtifactType); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetGeneration 获取生成记录（含有序血缘边）
func (s *Store) GetGeneration(ctx context.Context, id string) (*model.Generation, error) {
	query := s.rebind(`SELECT id, owner_id, generator_name, artifact_type, status, params, resolved_params, parent_generation_id, legacy_input_ids, artifact_path, artifact_size, content_type, worker_id, error, created_at, updated_at, started_at, finished_at
			  FROM generations WHERE id = $1`)
	row := s.db.QueryRowContext(ctx, query, id)
	gen, err := scanGeneration(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadInputArtifacts(ctx, gen); err != nil {
		return nil, err
	}
	return gen, nil
}

// scanGeneration 辅助函数：从数据库行扫描 Generation
func scanGeneration(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.Generation, error) {
	gen := &model.Generation{}
	var params, resolved nullableJSON
	var legacy *[]byte
	err := scanner.Scan(
		&gen.ID, &gen.OwnerID, &gen.GeneratorName, &gen.ArtifactType, &gen.Status,
		&params, &resolved, &gen.ParentGenerationID, &legacy,
		&gen.ArtifactPath, &gen.ArtifactSize, &gen.ContentType, &gen.WorkerID, &gen.Error,
		&gen.CreatedAt, &gen.UpdatedAt, &gen.StartedAt, &gen.FinishedAt)
	if err != nil {
		return nil, err
	}
	gen.Params = json.RawMessage(params)
	gen.ResolvedParams = json.RawMessage(resolved)
	if legacy != nil && len(*legacy) > 0 && string(*legacy) != "null" {
		json.Unmarshal(*legacy, &gen.LegacyInputIDs)
	}
	return gen, nil
}

// scanGenerations 批量扫描
func scanGenerations(rows *sql.Rows) ([]*model.Generation, error) {
	var gens []*model.Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		gens = append(gens, gen)
	}
	return gens, rows.Err()
}

// loadInputArtifacts 装载血缘边，按写入时的 position 排序
func (s *Store) loadInputArtifacts(ctx context.Context, gen *model.Generation) error {
	query := s.rebind(`SELECT source_generation_id, role, artifact_type
			  FROM generation_inputs WHERE generation_id = $1 ORDER BY position ASC`)
	rows, err := s.db.QueryContext(ctx, query, gen.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var in model.InputArtifact
		if err := rows.Scan(&in.SourceGenerationID, &in.Role, &in.ArtifactType); err != nil {
			return err
		}
		gen.InputArtifacts = append(gen.InputArtifacts, in)
	}
	return rows.Err()
}

// queryGenerations 执行查询并为每条结果装载血缘边
func (s *Store) queryGenerations(ctx context.Context, query string, args ...interface{}) ([]*model.Generation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	gens, err := scanGenerations(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	for _, gen := range gens {
		if err := s.loadInputArtifacts(ctx, gen); err != nil {
			return nil, err
		}
	}
	return gens, nil
}

// ListGenerations 列出生成记录（支持过滤和分页），返回当前页和总数
func (s *Store) ListGenerations(ctx context.Context, filter storagetypes.GenerationFilter) ([]*model.Generation, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.OwnerID != "" {
		where += ` AND owner_id = $` + strconv.Itoa(argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}
	if filter.GeneratorName != "" {
		where += ` AND generator_name = $` + strconv.Itoa(argIdx)
		args = append(args, filter.GeneratorName)
		argIdx++
	}
	if filter.Status != "" {
		where += ` AND status = $` + strconv.Itoa(argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.ArtifactType != "" {
		where += ` AND artifact_type = $` + strconv.Itoa(argIdx)
		args = append(args, filter.ArtifactType)
		argIdx++
	}
	if filter.CreatedAfter != nil {
		where += ` AND created_at >= $` + strconv.Itoa(argIdx)
		args = append(args, *filter.CreatedAfter)
		argIdx++
	}
	if filter.CreatedBefore != nil {
		where += ` AND created_at < $` + strconv.Itoa(argIdx)
		args = append(args, *filter.CreatedBefore)
		argIdx++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM generations` + where
	if err := s.db.QueryRowContext(ctx, s.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, owner_id, generator_name, artifact_type, status, params, resolved_params, parent_generation_id, legacy_input_ids, artifact_path, artifact_size, content_type, worker_id, error, created_at, updated_at, started_at, finished_at
			  FROM generations` + where + ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(argIdx)
	args = append(args, limit)
	argIdx++
	if filter.Offset > 0 {
		query += ` OFFSET $` + strconv.Itoa(argIdx)
		args = append(args, filter.Offset)
	}

	gens, err := s.queryGenerations(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, 0, err
	}
	return gens, total, nil
}

// FindByLineageContains 查询血缘中引用了 sourceGenerationID 的全部记录
//
// 通过 generation_inputs.source_generation_id 上的索引反查，不做全表扫描。
// 同一记录在多个字段引用同一来源时只返回一次。
func (s *Store) FindByLineageContains(ctx context.Context, sourceGenerationID string) ([]*model.Generation, error) {
	query := s.rebind(`SELECT id, owner_id, generator_name, artifact_type, status, params, resolved_params, parent_generation_id, legacy_input_ids, artifact_path, artifact_size, content_type, worker_id, error, created_at, updated_at, started_at, finished_at
			  FROM generations
			  WHERE id IN (SELECT DISTINCT generation_id FROM generation_inputs WHERE source_generation_id = $1)
			  ORDER BY created_at ASC, id ASC`)
	return s.queryGenerations(ctx, query, sourceGenerationID)
}

// ListGenerationsByParent 旧版单亲指针的正向查询（children 列表）
func (s *Store) ListGenerationsByParent(ctx context.Context, parentID string) ([]*model.Generation, error) {
	query := s.rebind(`SELECT id, owner_id, generator_name, artifact_type, status, params, resolved_params, parent_generation_id, legacy_input_ids, artifact_path, artifact_size, content_type, worker_id, error, created_at, updated_at, started_at, finished_at
			  FROM generations WHERE parent_generation_id = $1 ORDER BY created_at ASC, id ASC`)
	return s.queryGenerations(ctx, query, parentID)
}

// UpdateGenerationStatus 更新生成状态
//
// running 时写入 started_at，终态时写入 finished_at。
// workerID / errMsg 为 nil 时保留原值。
func (s *Store) UpdateGenerationStatus(ctx context.Context, id string, status model.GenerationStatus, workerID *string, errMsg *string) error {
	now := time.Now()
	var query string
	var args []interface{}
	switch status {
	case model.GenerationStatusRunning:
		query = s.rebind(`UPDATE generations SET status = $1, worker_id = COALESCE($2, worker_id), started_at = $3, updated_at = $4 WHERE id = $5`)
		args = []interface{}{status, workerID, now, now, id}
	case model.GenerationStatusCompleted, model.GenerationStatusFailed, model.GenerationStatusCancelled:
		query = s.rebind(`UPDATE generations SET status = $1, worker_id = COALESCE($2, worker_id), error = COALESCE($3, error), finished_at = $4, updated_at = $5 WHERE id = $6`)
		args = []interface{}{status, workerID, errMsg, now, now, id}
	default:
		query = s.rebind(`UPDATE generations SET status = $1, updated_at = $2 WHERE id = $3`)
		args = []interface{}{status, now, id}
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateGenerationArtifact 写入产物位置信息
func (s *Store) UpdateGenerationArtifact(ctx context.Context, id string, artifactPath string, artifactSize int64, contentType string) error {
	query := s.rebind(`UPDATE generations SET artifact_path = $1, artifact_size = $2, content_type = $3, updated_at = $4 WHERE id = $5`)
	_, err := s.db.ExecContext(ctx, query, artifactPath, artifactSize, contentType, time.Now(), id)
	return err
}

// UpdateGenerationResolvedParams 写入解析后的参数
func (s *Store) UpdateGenerationResolvedParams(ctx context.Context, id string, resolved json.RawMessage) error {
	query := s.rebind(`UPDATE generations SET resolved_params = $1, updated_at = $2 WHERE id = $3`)
	_, err := s.db.ExecContext(ctx, query, []byte(resolved), time.Now(), id)
	return err
}

// DeleteGeneration 删除生成记录
//
// 只删除记录本体和它自己的出边；其他记录指向它的入边保留，
// 由查询侧把悬空引用当作图边界处理。
func (s *Store) DeleteGeneration(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM generation_inputs WHERE generation_id = $1`), id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM generations WHERE id = $1`), id)
		return err
	})
}

// ListStaleQueuedGenerations 列出"过期"的 queued 状态记录
//
// 入队超过 threshold 仍未被 worker 领取，调度器据此做兜底重派。
func (s *Store) ListStaleQueuedGenerations(ctx context.Context, threshold time.Duration) ([]*model.Generation, error) {
	cutoff := time.Now().Add(-threshold)
	query := s.rebind(`SELECT id, owner_id, generator_name, artifact_type, status, params, resolved_params, parent_generation_id, legacy_input_ids, artifact_path, artifact_size, content_type, worker_id, error, created_at, updated_at, started_at, finished_at
			  FROM generations
			  WHERE status = 'queued' AND created_at < $1
			  ORDER BY created_at ASC
			  LIMIT 100`)
	return s.queryGenerations(ctx, query, cutoff)
}

// BackfillLegacyLineage 把旧版扁平引用列表迁移为带 role 的血缘边
//
// 幂等：已有血缘边的记录整条跳过，重复执行不会产生重复边。
// 指向已不存在记录的旧引用跳过并告警（旧列表保留，不改写）。
// 返回本次写入了血缘边的记录数。
func (s *Store) BackfillLegacyLineage(ctx context.Context) (int, error) {
	query := s.rebind(`SELECT id, legacy_input_ids FROM generations
			  WHERE legacy_input_ids IS NOT NULL AND legacy_input_ids != '' AND legacy_input_ids != 'null' AND legacy_input_ids != '[]'
			  ORDER BY created_at ASC`)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}

	type pending struct {
		id     string
		inputs []string
	}
	var candidates []pending
	for rows.Next() {
		var id string
		var legacyJSON []byte
		if err := rows.Scan(&id, &legacyJSON); err != nil {
			rows.Close()
			return 0, err
		}
		var ids []string
		if err := json.Unmarshal(legacyJSON, &ids); err != nil {
			log.Printf("[storage] backfill: generation %s has malformed legacy_input_ids, skipped: %v", id, err)
			continue
		}
		if len(ids) > 0 {
			candidates = append(candidates, pending{id: id, inputs: ids})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	migrated := 0
	for _, c := range candidates {
		written, err := s.backfillOne(ctx, c.id, c.inputs)
		if err != nil {
			return migrated, err
		}
		if written > 0 {
			migrated++
		}
	}
	return migrated, nil
}

// backfillOne 迁移单条记录；记录已有血缘边时不做任何写入
func (s *Store) backfillOne(ctx context.Context, id string, legacyIDs []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM generation_inputs WHERE generation_id = $1`), id).Scan(&existing); err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	edgeQuery := s.rebind(`INSERT INTO generation_inputs (generation_id, position, source_generation_id, role, artifact_type) VALUES ($1, $2, $3, $4, $5)`)
	written := 0
	for _, sourceID := range legacyIDs {
		var artifactType string
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT artifact_type FROM generations WHERE id = $1`), sourceID).Scan(&artifactType)
		if err == sql.ErrNoRows {
			log.Printf("[storage] backfill: generation %s references missing source %s, edge skipped", id, sourceID)
			continue
		}
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, edgeQuery, id, written, sourceID, model.LegacyInputRole, artifactType); err != nil {
			return 0, err
		}
		written++
	}
	if written == 0 {
		return 0, nil
	}
	return written, tx.Commit()
}
