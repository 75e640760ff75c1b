package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"genstudio/internal/shared/storage"
)

// NewTestID 生成带前缀的随机 ID（与服务端 ID 同构）
func NewTestID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}

// CleanupGenerations 删除指定的生成记录
// 删除失败只记日志，不影响测试结果
func CleanupGenerations(t *testing.T, store storage.GenerationStore, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		if err := store.DeleteGeneration(ctx, id); err != nil {
			t.Logf("警告: 清理生成记录 %s 失败: %v", id, err)
		}
	}
}
