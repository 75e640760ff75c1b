package setup

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
)

// ========== 随机量与响应辅助 ==========

// randomHex 返回 n 字节熵的十六进制串（长度 2n）
func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// generateToken 访问令牌：64 个十六进制字符
func generateToken() string {
	return randomHex(32)
}

// generateRandomString 生成指定长度的随机串（十六进制字符集）
func generateRandomString(length int) string {
	return randomHex((length + 1) / 2)[:length]
}

// jsonResp 按给定状态码输出 JSON 响应
func jsonResp(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("encode setup response: %v", err)
	}
}

// requireMethod 方法不符时写 405 并返回 false
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// decodeBody 解析 JSON 请求体，失败时写 400 并返回 false
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonResp(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON: " + err.Error()})
		return false
	}
	return true
}
