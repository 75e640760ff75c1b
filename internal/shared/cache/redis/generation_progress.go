// Package redis GenerationProgress 缓存操作
package redis

import (
	"context"
	"strconv"
	"time"

	"genstudio/internal/shared/cache"
)

// SetGenerationProgress 写入生成进度
func (s *Store) SetGenerationProgress(ctx context.Context, generationID string, progress *cache.GenerationProgress) error {
	key := cache.KeyGenerationProgress + generationID

	updatedAt := progress.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	data := map[string]interface{}{
		"stage":      progress.Stage,
		"percent":    progress.Percent,
		"message":    progress.Message,
		"updated_at": updatedAt.Format(time.RFC3339Nano),
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, data)
	pipe.Expire(ctx, key, cache.TTLGenerationProgress)
	_, err := pipe.Exec(ctx)

	return err
}

// GetGenerationProgress 读取生成进度
func (s *Store) GetGenerationProgress(ctx context.Context, generationID string) (*cache.GenerationProgress, error) {
	key := cache.KeyGenerationProgress + generationID

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	// key 不存在时 HGetAll 给空 map，按未命中处理
	if len(fields) == 0 {
		return nil, nil
	}

	progress := &cache.GenerationProgress{
		Stage:   fields["stage"],
		Message: fields["message"],
	}

	if percent, err := strconv.Atoi(fields["percent"]); err == nil {
		progress.Percent = percent
	}

	if t, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		progress.UpdatedAt = t
	}

	return progress, nil
}

// DeleteGenerationProgress 删除生成进度
func (s *Store) DeleteGenerationProgress(ctx context.Context, generationID string) error {
	key := cache.KeyGenerationProgress + generationID
	return s.client.Del(ctx, key).Err()
}
