package generation

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"genstudio/internal/apiserver/auth"
	"genstudio/internal/shared/model"
)

// writeJSON 按给定状态码输出 JSON 响应体
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 输出 {"error": message} 形式的错误响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// generateID 生成 prefix-xxxxxxxxxxxx 形式的随机 ID（12 位 hex 尾部）
func generateID(prefix string) string {
	buf := make([]byte, 6)
	rand.Read(buf)
	return prefix + "-" + hex.EncodeToString(buf)
}

// callerFrom 从请求提取调用方身份
//
// 认证中间件未注入用户（无认证模式）时按匿名管理员处理。
func callerFrom(r *http.Request) model.Caller {
	if u := auth.GetAuthUser(r.Context()); u != nil {
		return model.Caller{UserID: u.ID, Admin: u.Role == auth.UserRoleAdmin}
	}
	return model.AnonymousAdmin()
}
