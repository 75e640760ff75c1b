package mongostore

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"genstudio/internal/shared/model"
	"genstudio/internal/shared/storagetypes"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// GenerationStore
// ============================================================================

// CreateGeneration 创建生成记录
// 血缘边内嵌在文档中，单文档插入即满足原子性
func (s *Store) CreateGeneration(ctx context.Context, gen *model.Generation) error {
	return insertOne(ctx, s.col(ColGenerations), gen)
}

func (s *Store) GetGeneration(ctx context.Context, id string) (*model.Generation, error) {
	return findOne[model.Generation](ctx, s.col(ColGenerations), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) ListGenerations(ctx context.Context, gf storagetypes.GenerationFilter) ([]*model.Generation, int, error) {
	filter := bson.D{}
	if gf.OwnerID != "" {
		filter = append(filter, bson.E{Key: "owner_id", Value: gf.OwnerID})
	}
	if gf.GeneratorName != "" {
		filter = append(filter, bson.E{Key: "generator_name", Value: gf.GeneratorName})
	}
	if gf.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: gf.Status})
	}
	if gf.ArtifactType != "" {
		filter = append(filter, bson.E{Key: "artifact_type", Value: gf.ArtifactType})
	}
	if gf.CreatedAfter != nil {
		filter = append(filter, bson.E{Key: "created_at", Value: bson.D{{Key: "$gte", Value: *gf.CreatedAfter}}})
	}
	if gf.CreatedBefore != nil {
		filter = append(filter, bson.E{Key: "created_at", Value: bson.D{{Key: "$lt", Value: *gf.CreatedBefore}}})
	}

	total, err := count(ctx, s.col(ColGenerations), filter)
	if err != nil {
		return nil, 0, err
	}

	limit := gf.Limit
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	if gf.Offset > 0 {
		opts.SetSkip(int64(gf.Offset))
	}

	gens, err := findMany[model.Generation](ctx, s.col(ColGenerations), filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return gens, int(total), nil
}

// FindByLineageContains 查询血缘中引用了 sourceGenerationID 的全部记录
// 命中 input_artifacts.source_generation_id 的 multikey 索引；
// 同一记录多个字段引用同一来源时文档只匹配一次，天然去重
func (s *Store) FindByLineageContains(ctx context.Context, sourceGenerationID string) ([]*model.Generation, error) {
	filter := bson.D{{Key: "input_artifacts.source_generation_id", Value: sourceGenerationID}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return findMany[model.Generation](ctx, s.col(ColGenerations), filter, opts)
}

func (s *Store) ListGenerationsByParent(ctx context.Context, parentID string) ([]*model.Generation, error) {
	filter := bson.D{{Key: "parent_generation_id", Value: parentID}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return findMany[model.Generation](ctx, s.col(ColGenerations), filter, opts)
}

// UpdateGenerationStatus 更新生成状态
// running 时写入 started_at，终态时写入 finished_at；
// 只 $set 状态相关字段，input_artifacts 永不触碰（append-only）
func (s *Store) UpdateGenerationStatus(ctx context.Context, id string, status model.GenerationStatus, workerID *string, errMsg *string) error {
	now := time.Now()
	update := bson.D{
		{Key: "status", Value: status},
		{Key: "updated_at", Value: now},
	}
	switch status {
	case model.GenerationStatusRunning:
		update = append(update, bson.E{Key: "started_at", Value: now})
	case model.GenerationStatusCompleted, model.GenerationStatusFailed, model.GenerationStatusCancelled:
		update = append(update, bson.E{Key: "finished_at", Value: now})
	}
	if workerID != nil {
		update = append(update, bson.E{Key: "worker_id", Value: *workerID})
	}
	if errMsg != nil {
		update = append(update, bson.E{Key: "error", Value: *errMsg})
	}
	return updateFields(ctx, s.col(ColGenerations), id, update)
}

func (s *Store) UpdateGenerationArtifact(ctx context.Context, id string, artifactPath string, artifactSize int64, contentType string) error {
	return updateFields(ctx, s.col(ColGenerations), id, bson.D{
		{Key: "artifact_path", Value: artifactPath},
		{Key: "artifact_size", Value: artifactSize},
		{Key: "content_type", Value: contentType},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) UpdateGenerationResolvedParams(ctx context.Context, id string, resolved json.RawMessage) error {
	return updateFields(ctx, s.col(ColGenerations), id, bson.D{
		{Key: "resolved_params", Value: resolved},
		{Key: "updated_at", Value: time.Now()},
	})
}

// DeleteGeneration 删除生成记录
// 其他文档指向本记录的血缘边不受影响（悬空引用由查询侧容忍）
func (s *Store) DeleteGeneration(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColGenerations), id)
}

func (s *Store) ListStaleQueuedGenerations(ctx context.Context, threshold time.Duration) ([]*model.Generation, error) {
	cutoff := time.Now().Add(-threshold)
	filter := bson.D{
		{Key: "status", Value: model.GenerationStatusQueued},
		{Key: "created_at", Value: bson.D{{Key: "$lt", Value: cutoff}}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(100)
	return findMany[model.Generation](ctx, s.col(ColGenerations), filter, opts)
}

// BackfillLegacyLineage 把旧版扁平引用列表迁移为带 role 的血缘边
//
// 筛选条件：legacy_input_ids 非空且 input_artifacts 为空（幂等跳过）。
// 指向已不存在记录的旧引用跳过并告警。返回写入了血缘边的记录数。
func (s *Store) BackfillLegacyLineage(ctx context.Context) (int, error) {
	filter := bson.D{
		{Key: "legacy_input_ids.0", Value: bson.D{{Key: "$exists", Value: true}}},
		{Key: "input_artifacts.0", Value: bson.D{{Key: "$exists", Value: false}}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	candidates, err := findMany[model.Generation](ctx, s.col(ColGenerations), filter, opts)
	if err != nil {
		return 0, err
	}

	migrated := 0
	for _, gen := range candidates {
		var edges []model.InputArtifact
		for _, sourceID := range gen.LegacyInputIDs {
			source, err := s.GetGeneration(ctx, sourceID)
			if err != nil {
				return migrated, err
			}
			if source == nil {
				log.Printf("[storage] backfill: generation %s references missing source %s, edge skipped", gen.ID, sourceID)
				continue
			}
			edges = append(edges, model.InputArtifact{
				SourceGenerationID: sourceID,
				Role:               model.LegacyInputRole,
				ArtifactType:       source.ArtifactType,
			})
		}
		if len(edges) == 0 {
			continue
		}
		if err := updateFields(ctx, s.col(ColGenerations), gen.ID, bson.D{
			{Key: "input_artifacts", Value: edges},
		}); err != nil {
			return migrated, err
		}
		migrated++
	}
	return migrated, nil
}
