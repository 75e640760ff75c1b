package generation

import (
	"log"
	"net/http"
	"strconv"
	"time"
)

// presignExpiry 产物下载 URL 的有效期
const presignExpiry = 15 * time.Minute

// Artifact 下载生成产物
// GET /api/v1/generations/{id}/artifact
//
// 接入对象存储时 302 跳转到限时下载 URL；未接入时返回存储路径。
// 产物未就绪（非 completed 或无路径）返回 409。
func (h *Handler) Artifact(w http.ResponseWriter, r *http.Request) {
	gen, ok := h.visibleGeneration(w, r)
	if !ok {
		return
	}

	if !gen.ArtifactReady() || gen.ArtifactPath == nil || *gen.ArtifactPath == "" {
		writeError(w, http.StatusConflict, "artifact not ready")
		return
	}

	if h.objects == nil {
		writeJSON(w, http.StatusOK, map[string]string{"artifact_path": *gen.ArtifactPath})
		return
	}

	url, err := h.objects.PresignedGetURL(r.Context(), *gen.ArtifactPath, presignExpiry)
	if err != nil {
		log.Printf("[Generation] Presign %s error: %v", *gen.ArtifactPath, err)
		writeError(w, http.StatusInternalServerError, "failed to presign artifact url")
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// Events 轮询生命周期事件
// GET /api/v1/generations/{id}/events
//
// 查询参数：
//   - from_id: 起始事件 ID（不包含），断线重连恢复用
//   - limit:   返回数量限制，默认 100，最大 1000
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	gen, ok := h.visibleGeneration(w, r)
	if !ok {
		return
	}

	fromID := r.URL.Query().Get("from_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	events, err := h.events.GetGenerationEvents(r.Context(), gen.ID, fromID, int64(limit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events, "count": len(events)})
}

// Progress 查询当前执行进度
// GET /api/v1/generations/{id}/progress
//
// 进度是易失数据：worker 生成期间写入缓存，结束后删除。
// 没有进度时返回记录当前状态，客户端据此决定是否继续轮询。
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	gen, ok := h.visibleGeneration(w, r)
	if !ok {
		return
	}

	if h.progress != nil {
		p, err := h.progress.GetGenerationProgress(r.Context(), gen.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to get progress")
			return
		}
		if p != nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"id":       gen.ID,
				"status":   gen.Status,
				"progress": p,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     gen.ID,
		"status": gen.Status,
	})
}
