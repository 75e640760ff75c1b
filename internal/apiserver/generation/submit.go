package generation

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"genstudio/internal/resolve"
	"genstudio/internal/shared/model"
)

// SubmitRequest 提交生成的请求体
type SubmitRequest struct {
	Generator string                 `json:"generator"`
	Params    map[string]interface{} `json:"params"`
}

// Submit 提交生成请求
// POST /api/v1/generations
//
// 流程：引用解析 → 持久化（记录 + 血缘边一次事务写入）→ 入队。
// 任一引用解析失败整次提交失败（4xx），不产生任何写入；
// 入库成功后入队失败只记日志，由兜底重派循环补投。
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Generator == "" {
		writeError(w, http.StatusBadRequest, "generator is required")
		return
	}

	entry, ok := h.registry.Get(req.Generator)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown generator: "+req.Generator)
		return
	}

	caller := callerFrom(r)
	if req.Params == nil {
		req.Params = map[string]interface{}{}
	}

	resolved, edges, err := h.engine.Resolve(r.Context(), req.Generator, req.Params, caller)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	gen, err := h.newGeneration(req.Generator, entry.Generator.ArtifactType(), caller, req.Params, resolved, edges)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode params")
		return
	}

	if err := h.store.CreateGeneration(r.Context(), gen); err != nil {
		log.Printf("[Generation] Create error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create generation")
		return
	}

	h.enqueue(r, gen)
	writeJSON(w, http.StatusCreated, gen)
}

// Regenerate 以已有记录的原始参数重新生成
// POST /api/v1/generations/{id}/regenerate
//
// 新记录重新走一遍完整解析：引用的上游此刻必须仍然存在、可见且
// 处于成功终态。旧版单亲指针指向被重新生成的记录。
func (h *Handler) Regenerate(w http.ResponseWriter, r *http.Request) {
	src, ok := h.visibleGeneration(w, r)
	if !ok {
		return
	}

	entry, ok := h.registry.Get(src.GeneratorName)
	if !ok {
		writeError(w, http.StatusConflict, "generator no longer loaded: "+src.GeneratorName)
		return
	}

	params := map[string]interface{}{}
	if len(src.Params) > 0 {
		if err := json.Unmarshal(src.Params, &params); err != nil {
			log.Printf("[Generation] Regenerate %s: corrupt params: %v", src.ID, err)
			writeError(w, http.StatusInternalServerError, "stored params are not decodable")
			return
		}
	}

	caller := callerFrom(r)
	resolved, edges, err := h.engine.Resolve(r.Context(), src.GeneratorName, params, caller)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	gen, err := h.newGeneration(src.GeneratorName, entry.Generator.ArtifactType(), caller, params, resolved, edges)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode params")
		return
	}
	gen.ParentGenerationID = &src.ID

	if err := h.store.CreateGeneration(r.Context(), gen); err != nil {
		log.Printf("[Generation] Regenerate create error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create generation")
		return
	}

	h.enqueue(r, gen)
	writeJSON(w, http.StatusCreated, gen)
}

// Cancel 取消排队中的生成
// POST /api/v1/generations/{id}/cancel
//
// 只有 queued 状态可以取消；worker 领取时会重查状态并丢弃已取消
// 的消息。running 状态由执行 worker 掌握，这里不强行中断。
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	gen, ok := h.visibleGeneration(w, r)
	if !ok {
		return
	}

	if gen.Status != model.GenerationStatusQueued {
		writeError(w, http.StatusConflict, "only queued generations can be cancelled")
		return
	}

	if err := h.store.UpdateGenerationStatus(r.Context(), gen.ID, model.GenerationStatusCancelled, nil, nil); err != nil {
		log.Printf("[Generation] Cancel error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel generation")
		return
	}

	h.publishEvent(r, gen.ID, model.EventGenerationCancelled, nil)
	log.Printf("[Generation] Cancelled: %s", gen.ID)
	writeJSON(w, http.StatusOK, map[string]string{"id": gen.ID, "status": string(model.GenerationStatusCancelled)})
}

// Delete 删除生成记录
// DELETE /api/v1/generations/{id}
//
// 删除记录与其出边，并尽力清理对象存储产物、事件流和进度缓存。
// 指向该记录的入边保留，下游查询把悬空引用当作图边界。
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	gen, ok := h.visibleGeneration(w, r)
	if !ok {
		return
	}

	if gen.Status == model.GenerationStatusRunning {
		writeError(w, http.StatusConflict, "cannot delete a running generation")
		return
	}

	if err := h.store.DeleteGeneration(r.Context(), gen.ID); err != nil {
		log.Printf("[Generation] Delete error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete generation")
		return
	}

	// 产物与易失数据清理尽力而为，失败不影响删除结果
	if h.objects != nil && gen.ArtifactPath != nil && *gen.ArtifactPath != "" {
		if err := h.objects.Delete(r.Context(), *gen.ArtifactPath); err != nil {
			log.Printf("[Generation] Delete artifact %s error: %v", *gen.ArtifactPath, err)
		}
	}
	if h.events != nil {
		if err := h.events.DeleteGenerationEvents(r.Context(), gen.ID); err != nil {
			log.Printf("[Generation] Delete events error: %v", err)
		}
	}
	if h.progress != nil {
		if err := h.progress.DeleteGenerationProgress(r.Context(), gen.ID); err != nil {
			log.Printf("[Generation] Delete progress error: %v", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// 写路径辅助
// ============================================================================

// newGeneration 构造一条 queued 状态的新记录
func (h *Handler) newGeneration(generatorName string, artifactType model.ArtifactType, caller model.Caller, params, resolved map[string]interface{}, edges []model.InputArtifact) (*model.Generation, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	rawResolved, err := json.Marshal(resolved)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &model.Generation{
		ID:             generateID("gen"),
		OwnerID:        caller.UserID,
		GeneratorName:  generatorName,
		ArtifactType:   artifactType,
		Status:         model.GenerationStatusQueued,
		Params:         rawParams,
		ResolvedParams: rawResolved,
		InputArtifacts: edges,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// enqueue 入队并发布 queued 事件，两者失败都只记日志
//
// 记录已经落库；queued 记录即使从未入队成功也会被兜底重派循环
// 捞起重投，所以这里不回滚、不向客户端报错。
func (h *Handler) enqueue(r *http.Request, gen *model.Generation) {
	msgID, err := h.queue.EnqueueGeneration(r.Context(), gen.ID, gen.GeneratorName)
	if err != nil {
		log.Printf("[Generation] Enqueue %s error: %v", gen.ID, err)
	} else {
		log.Printf("[Generation] Submitted: %s (generator=%s, msg=%s)", gen.ID, gen.GeneratorName, msgID)
	}

	h.publishEvent(r, gen.ID, model.EventGenerationQueued, map[string]interface{}{
		"generator": gen.GeneratorName,
	})
}

// publishEvent 发布生命周期事件，失败只记日志
func (h *Handler) publishEvent(r *http.Request, generationID string, typ model.GenerationEventType, payload map[string]interface{}) {
	if h.events == nil {
		return
	}
	event := &model.GenerationEvent{
		GenerationID: generationID,
		Type:         typ,
		Timestamp:    time.Now(),
		Payload:      payload,
	}
	if err := h.events.PublishGenerationEvent(r.Context(), generationID, event); err != nil {
		log.Printf("[Generation] Publish %s event error: %v", typ, err)
	}
}

// writeResolveError 把解析错误映射为 HTTP 状态码
//
// 映射规则：
//   - 未注册生成器 / 引用不存在（含不可见）→ 404
//   - 必填引用缺失 / 引用值非法 → 400
//   - 产物类型不匹配 / 上游未完成 → 409
//   - 其余（存储读取失败等）→ 500
func writeResolveError(w http.ResponseWriter, err error) {
	var (
		notFound *resolve.ReferenceNotFoundError
		mismatch *resolve.ArtifactTypeMismatchError
		notReady *resolve.ArtifactNotReadyError
		required *resolve.ReferenceRequiredError
		badValue *resolve.ReferenceValueError
	)
	switch {
	case errors.Is(err, resolve.ErrUnknownGenerator), errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &required), errors.As(err, &badValue):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &mismatch), errors.As(err, &notReady):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[Generation] Resolve error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve artifact references")
	}
}
