// Package server 滞留任务补偿循环
package server

import (
	"context"
	"log"
	"time"
)

// StartRequeueLoop 启动滞留任务补偿循环
//
// worker 从 Redis Streams 领取任务是主路径；队列写入失败或消息
// 丢失时，queued 记录会一直无人领取。补偿循环定期扫描入队超过
// threshold 仍是 queued 的记录并重新入队，顺带刷新队列深度指标。
// worker 领取后会校验记录状态，重复入队不会导致重复执行。
//
// 阻塞直到 ctx 取消，应在独立 goroutine 中运行。
func (h *Handler) StartRequeueLoop(ctx context.Context, interval, threshold time.Duration) {
	if h.queue == nil {
		log.Printf("[requeue.disabled] reason=no_queue")
		return
	}

	log.Printf("[requeue.start] interval=%s threshold=%s", interval, threshold)

	// 启动时立即执行一次
	h.requeueStale(ctx, threshold)
	h.refreshQueueStats(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[requeue.stop] reason=context_cancelled")
			return
		case <-ticker.C:
			h.requeueStale(ctx, threshold)
			h.refreshQueueStats(ctx)
		}
	}
}

// requeueStale 扫描并重新入队滞留的 queued 记录
func (h *Handler) requeueStale(ctx context.Context, threshold time.Duration) {
	stale, err := h.store.ListStaleQueuedGenerations(ctx, threshold)
	if err != nil {
		log.Printf("[requeue.query.failed] error=%v", err)
		return
	}
	if len(stale) == 0 {
		h.metrics.RecordRequeueCycle(0)
		return
	}

	log.Printf("[requeue.found] count=%d threshold=%s", len(stale), threshold)

	requeued := 0
	for _, gen := range stale {
		if _, err := h.queue.EnqueueGeneration(ctx, gen.ID, gen.GeneratorName); err != nil {
			log.Printf("[requeue.failed] generation_id=%s error=%v", gen.ID, err)
			continue
		}
		requeued++
		log.Printf("[requeue.success] generation_id=%s queued_at=%s",
			gen.ID, gen.CreatedAt.Format(time.RFC3339))
	}
	h.metrics.RecordRequeueCycle(requeued)
}

// refreshQueueStats 刷新队列深度指标
func (h *Handler) refreshQueueStats(ctx context.Context) {
	depth, err := h.queue.GetQueueLength(ctx)
	if err != nil {
		return
	}
	pending, err := h.queue.GetPendingCount(ctx)
	if err != nil {
		return
	}
	h.metrics.SetQueueStats(depth, pending)
}
