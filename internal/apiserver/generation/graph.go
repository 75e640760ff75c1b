package generation

import (
	"net/http"
	"strconv"

	"genstudio/internal/lineage"
	"genstudio/internal/shared/model"
)

// Ancestry 查询祖先树（这个产物由什么生成）
// GET /api/v1/generations/{id}/ancestry?max_depth=N
//
// max_depth 缺省为 25，取值收敛到 [1, 25]。深度截断与请求取消
// 都以 partial: true 报告，不是错误。
func (h *Handler) Ancestry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	depth, ok := parseMaxDepth(w, r)
	if !ok {
		return
	}

	node, partial, err := h.graph.Ancestry(r.Context(), id, depth, callerFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve ancestry")
		return
	}
	if node == nil {
		writeError(w, http.StatusNotFound, "generation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ancestry": node,
		"partial":  partial,
	})
}

// Descendants 查询后代列表（这个产物被用来生成了什么）
// GET /api/v1/generations/{id}/descendants?max_depth=N
//
// 返回扁平去重列表，depth=1 为直接后代。
func (h *Handler) Descendants(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	depth, ok := parseMaxDepth(w, r)
	if !ok {
		return
	}

	nodes, partial, err := h.graph.Descendants(r.Context(), id, depth, callerFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve descendants")
		return
	}
	if nodes == nil {
		writeError(w, http.StatusNotFound, "generation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"descendants": nodes,
		"count":       len(nodes),
		"partial":     partial,
	})
}

// Children 旧版单亲指针的正向查询
// GET /api/v1/generations/{id}/children
//
// 只看 parent_generation_id（regenerate 写入），不走血缘边。
func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	gen, ok := h.visibleGeneration(w, r)
	if !ok {
		return
	}

	children, err := h.store.ListGenerationsByParent(r.Context(), gen.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list children")
		return
	}

	caller := callerFrom(r)
	visible := make([]*model.Generation, 0, len(children))
	for _, c := range children {
		if caller.CanSee(c) {
			visible = append(visible, c)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"children": visible,
		"count":    len(visible),
	})
}

// parseMaxDepth 解析 max_depth 查询参数
//
// 缺省取默认深度；非数字返回 400。越界值不在这里处理，
// 遍历器会把取值收敛到合法区间。
func parseMaxDepth(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("max_depth")
	if raw == "" {
		return lineage.MaxDepth, true
	}
	depth, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "max_depth must be an integer")
		return 0, false
	}
	return depth, true
}
