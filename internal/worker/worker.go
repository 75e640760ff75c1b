// Package worker 生成任务执行器
// 负责从队列领取生成记录、调用生成器、写产物、上报事件与心跳
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"genstudio/internal/shared/cache"
	"genstudio/internal/shared/eventbus"
	"genstudio/internal/shared/model"
	"genstudio/internal/shared/queue"
	"genstudio/internal/shared/storage"
	"genstudio/pkg/generator"
)

// Config worker 配置
// 包含 worker 标识、并发上限、队列领取参数等
type Config struct {
	WorkerID          string        // worker 唯一标识
	MaxConcurrent     int           // 并发执行上限
	ClaimBlock        time.Duration // 队列领取的阻塞等待时间
	HeartbeatInterval time.Duration // 心跳上报间隔
}

// Uploader 产物写入接口，由 objstore.Client 实现
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// Store worker 用到的存储能力子集，由 storage.GenerationStore 实现
type Store interface {
	GetGeneration(ctx context.Context, id string) (*model.Generation, error)
	UpdateGenerationStatus(ctx context.Context, id string, status model.GenerationStatus, workerID *string, errMsg *string) error
	UpdateGenerationArtifact(ctx context.Context, id string, artifactPath string, artifactSize int64, contentType string) error
}

// Worker 生成任务执行器核心结构
//
// 生命周期职责：
//  1. 通过消费者组从调度队列领取消息（空闲槽位数决定单次领取量）
//  2. 驱动状态机 queued → running → completed/failed
//  3. 产物写入对象存储，路径 generations/{id}/artifact.{ext}
//  4. 过程事件写入事件总线，进度写入缓存
//  5. 周期性向 etcd 上报心跳（含已加载的生成器列表）
type Worker struct {
	config    Config
	registry  *generator.Registry           // 已加载的生成器
	store     Store                         // 生成记录存储
	queue     queue.GenerationQueue         // 调度队列
	events    eventbus.GenerationEventBus   // 生命周期事件
	progress  cache.GenerationProgressCache // 进度缓存
	heartbeat storage.WorkerHeartbeatStore  // 心跳存储（可选）
	uploader  Uploader                      // 产物写入
	metrics   *Metrics                      // Prometheus 指标（可选）
	mu        sync.Mutex                    // 保护 active map
	active    map[string]context.CancelFunc // 执行中的生成
}

// New 创建 worker 实例
func New(cfg Config, registry *generator.Registry, store Store,
	q queue.GenerationQueue, events eventbus.GenerationEventBus,
	progress cache.GenerationProgressCache, uploader Uploader) *Worker {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.ClaimBlock <= 0 {
		cfg.ClaimBlock = 5 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}

	return &Worker{
		config:   cfg,
		registry: registry,
		store:    store,
		queue:    q,
		events:   events,
		progress: progress,
		uploader: uploader,
		active:   make(map[string]context.CancelFunc),
	}
}

// SetHeartbeatStore 设置心跳存储（未设置时不上报心跳）
func (w *Worker) SetHeartbeatStore(hb storage.WorkerHeartbeatStore) {
	w.heartbeat = hb
}

// SetMetrics 设置指标实例（未设置时不记录指标）
func (w *Worker) SetMetrics(m *Metrics) {
	w.metrics = m
}

// Start 启动 worker，阻塞直到 ctx 取消且所有循环退出
func (w *Worker) Start(ctx context.Context) error {
	if err := w.queue.CreateConsumerGroup(ctx); err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}

	log.Printf("[Worker] Started: %s (max_concurrent=%d, generators=%v)",
		w.config.WorkerID, w.config.MaxConcurrent, w.registry.Names())

	var wg sync.WaitGroup

	if w.heartbeat != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.heartbeatLoop(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.consumeLoop(ctx)
	}()

	wg.Wait()
	log.Printf("[Worker] Stopped: %s", w.config.WorkerID)
	return nil
}

// ============================================================================
// 心跳
// ============================================================================

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	w.sendHeartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sendHeartbeat(ctx)
		}
	}
}

func (w *Worker) sendHeartbeat(ctx context.Context) {
	active := w.activeCount()
	status := "idle"
	if active > 0 {
		status = "busy"
	}

	hb := &storage.WorkerHeartbeat{
		WorkerID:      w.config.WorkerID,
		Status:        status,
		MaxConcurrent: w.config.MaxConcurrent,
		Active:        active,
		Generators:    w.registry.Names(),
		LastHeartbeat: time.Now(),
	}
	if err := w.heartbeat.UpdateWorkerHeartbeat(ctx, hb); err != nil {
		log.Printf("[Worker] Heartbeat failed: %v", err)
	}
}

// ============================================================================
// 队列消费
// ============================================================================

func (w *Worker) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		free := w.config.MaxConcurrent - w.activeCount()
		if free <= 0 {
			// 并发已满，等一个槽位周期
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		msgs, err := w.queue.ConsumeGenerations(ctx, w.config.WorkerID, int64(free), w.config.ClaimBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker] Consume failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			w.dispatch(ctx, msg)
		}
	}
}

// dispatch 为一条消息启动执行 goroutine
func (w *Worker) dispatch(ctx context.Context, msg *queue.GenerationMessage) {
	genCtx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	if _, exists := w.active[msg.GenerationID]; exists {
		// 重复投递（如 pending 重派），直接确认丢弃
		w.mu.Unlock()
		cancel()
		w.ack(ctx, msg.ID)
		w.metrics.RecordClaim("duplicate")
		return
	}
	w.active[msg.GenerationID] = cancel
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			delete(w.active, msg.GenerationID)
			w.mu.Unlock()
			cancel()
		}()
		w.process(genCtx, msg)
	}()
}

func (w *Worker) activeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active)
}

// CancelGeneration 取消执行中的生成（由队列外的控制面调用）
// 返回该生成是否正在本 worker 上执行
func (w *Worker) CancelGeneration(generationID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	cancel, ok := w.active[generationID]
	if ok {
		cancel()
	}
	return ok
}

// ============================================================================
// 单次生成执行
// ============================================================================

// process 执行一条生成消息，结束时确认消息
//
// 领取后先回查记录状态：记录不存在、已取消、或不在 queued 状态
// 的消息直接确认丢弃，保证取消和重派场景不会重复执行。
func (w *Worker) process(ctx context.Context, msg *queue.GenerationMessage) {
	gen, err := w.store.GetGeneration(ctx, msg.GenerationID)
	if err != nil {
		log.Printf("[Worker] Failed to load generation %s: %v", msg.GenerationID, err)
		// 不确认，留在 pending 等待重派
		w.metrics.RecordClaim("load_error")
		return
	}
	if gen == nil {
		log.Printf("[Worker] Generation %s not found, dropping message", msg.GenerationID)
		w.ack(ctx, msg.ID)
		w.metrics.RecordClaim("missing")
		return
	}
	if gen.Status == model.GenerationStatusCancelled {
		log.Printf("[Worker] Generation %s cancelled before pickup, dropping", gen.ID)
		w.ack(ctx, msg.ID)
		w.metrics.RecordClaim("cancelled")
		return
	}
	if gen.Status != model.GenerationStatusQueued {
		log.Printf("[Worker] Generation %s in status %s, expected queued, dropping", gen.ID, gen.Status)
		w.ack(ctx, msg.ID)
		w.metrics.RecordClaim("stale_status")
		return
	}

	w.metrics.RecordClaim("accepted")
	w.metrics.TrackActive(1)
	start := time.Now()

	status := model.GenerationStatusCompleted
	if runErr := w.execute(ctx, gen); runErr != nil {
		status = w.reportFailure(ctx, gen, runErr)
	}
	w.metrics.TrackActive(-1)
	w.metrics.RecordGeneration(gen.GeneratorName, string(status), time.Since(start))

	w.ack(ctx, msg.ID)
}

// execute 驱动一次生成：running 状态 → 调用生成器 → 产物上传 → completed
func (w *Worker) execute(ctx context.Context, gen *model.Generation) error {
	entry, ok := w.registry.Get(gen.GeneratorName)
	if !ok {
		return fmt.Errorf("generator %q not loaded on this worker", gen.GeneratorName)
	}

	if err := w.store.UpdateGenerationStatus(ctx, gen.ID, model.GenerationStatusRunning, &w.config.WorkerID, nil); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	w.publishEvent(ctx, gen.ID, model.EventGenerationStarted, map[string]interface{}{
		"worker_id": w.config.WorkerID,
	})
	log.Printf("[Worker] Executing generation %s (generator=%s)", gen.ID, gen.GeneratorName)

	params, err := w.executionParams(gen)
	if err != nil {
		return err
	}

	req := &generator.Request{
		GenerationID: gen.ID,
		Params:       params,
		Report:       w.progressReporter(ctx, gen.ID),
	}

	result, err := entry.Generator.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if result == nil || len(result.Data) == 0 {
		return fmt.Errorf("generator %q returned empty result", gen.GeneratorName)
	}

	key := artifactKey(gen.ID, result.FileExt)
	if err := w.uploader.Upload(ctx, key, bytes.NewReader(result.Data), int64(len(result.Data)), result.ContentType); err != nil {
		w.metrics.RecordUpload("failed")
		return fmt.Errorf("upload artifact: %w", err)
	}
	w.metrics.RecordUpload("ok")

	if err := w.store.UpdateGenerationArtifact(ctx, gen.ID, key, int64(len(result.Data)), result.ContentType); err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	if err := w.store.UpdateGenerationStatus(ctx, gen.ID, model.GenerationStatusCompleted, &w.config.WorkerID, nil); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	w.publishEvent(ctx, gen.ID, model.EventGenerationCompleted, map[string]interface{}{
		"artifact_path": key,
		"artifact_size": len(result.Data),
		"content_type":  result.ContentType,
	})

	// 进度缓存只服务执行过程，结束后清掉
	if err := w.progress.DeleteGenerationProgress(ctx, gen.ID); err != nil {
		log.Printf("[Worker] Failed to clear progress for %s: %v", gen.ID, err)
	}

	log.Printf("[Worker] Completed generation %s (artifact=%s, size=%d)", gen.ID, key, len(result.Data))
	return nil
}

// executionParams 取执行参数：优先解析后参数，缺失时回退原始参数
func (w *Worker) executionParams(gen *model.Generation) (map[string]interface{}, error) {
	raw := gen.ResolvedParams
	if len(raw) == 0 {
		raw = gen.Params
	}
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("decode params for %s: %w", gen.ID, err)
	}
	return params, nil
}

// progressReporter 返回生成器的进度回调：写缓存 + 发事件
func (w *Worker) progressReporter(ctx context.Context, generationID string) generator.ProgressFunc {
	return func(stage string, percent int) {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		p := &cache.GenerationProgress{
			Stage:     stage,
			Percent:   percent,
			UpdatedAt: time.Now(),
		}
		if err := w.progress.SetGenerationProgress(ctx, generationID, p); err != nil {
			log.Printf("[Worker] Failed to store progress for %s: %v", generationID, err)
		}
		w.publishEvent(ctx, generationID, model.EventGenerationProgress, map[string]interface{}{
			"stage":   stage,
			"percent": percent,
		})
	}
}

// reportFailure 统一失败出口：failed 状态 + 失败事件 + 清进度
// 返回写入的终态；执行因取消而中断时记 cancelled 而不是 failed。
func (w *Worker) reportFailure(ctx context.Context, gen *model.Generation, runErr error) model.GenerationStatus {
	log.Printf("[Worker] Generation %s failed: %v", gen.ID, runErr)

	status := model.GenerationStatusFailed
	eventType := model.EventGenerationFailed
	if ctx.Err() == context.Canceled {
		status = model.GenerationStatusCancelled
		eventType = model.EventGenerationCancelled
	}

	// 状态落库用独立 ctx：执行 ctx 可能已取消
	updateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errMsg := runErr.Error()
	if err := w.store.UpdateGenerationStatus(updateCtx, gen.ID, status, &w.config.WorkerID, &errMsg); err != nil {
		log.Printf("[Worker] Failed to mark generation %s %s: %v", gen.ID, status, err)
	}
	w.publishEvent(updateCtx, gen.ID, eventType, map[string]interface{}{
		"error": errMsg,
	})
	if err := w.progress.DeleteGenerationProgress(updateCtx, gen.ID); err != nil {
		log.Printf("[Worker] Failed to clear progress for %s: %v", gen.ID, err)
	}
	return status
}

func (w *Worker) publishEvent(ctx context.Context, generationID string, eventType model.GenerationEventType, payload map[string]interface{}) {
	event := &model.GenerationEvent{
		GenerationID: generationID,
		Type:         eventType,
		Timestamp:    time.Now(),
		Payload:      payload,
	}
	if err := w.events.PublishGenerationEvent(ctx, generationID, event); err != nil {
		log.Printf("[Worker] Failed to publish %s event for %s: %v", eventType, generationID, err)
	}
}

func (w *Worker) ack(ctx context.Context, messageID string) {
	// 执行 ctx 可能已取消，确认动作自带兜底超时
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := w.queue.AckGeneration(ctx, messageID); err != nil {
		log.Printf("[Worker] Failed to ack message %s: %v", messageID, err)
	}
}

// artifactKey 产物在对象存储中的 key
func artifactKey(generationID, fileExt string) string {
	if fileExt == "" {
		fileExt = "bin"
	}
	return fmt.Sprintf("generations/%s/artifact.%s", generationID, fileExt)
}
