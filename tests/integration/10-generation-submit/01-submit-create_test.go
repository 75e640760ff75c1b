// Package generationsubmit 生成提交集成测试
//
// 覆盖契约：api/openapi/openapi.yaml 的 generations 写路径
// （提交 / 取消 / 删除 / 重新生成）。
//
// 测试架构：
//
//	测试代码 ──HTTP请求──→ httptest.Server ──→ Handler.Submit() ──→ SQLite
//	                           ↑
//	                      真实的HTTP服务器（监听端口）
package generationsubmit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"genstudio/internal/shared/model"
	"genstudio/tests/testutil"
)

var env *testutil.InProcEnv
var testServer *httptest.Server // 真正的 HTTP 服务器

func TestMain(m *testing.M) {
	var err error
	env, err = testutil.SetupInProcEnv()
	if err != nil {
		// 存储不可用时跳过集成测试
		os.Exit(0)
	}

	// 启动真正的 HTTP 服务器（使用随机端口）
	// 与生产环境中 http.ListenAndServe 的行为一致
	testServer = httptest.NewServer(env.Router)

	code := m.Run()

	testServer.Close()
	env.Close()

	os.Exit(code)
}

// postJSON 向测试服务器发送 POST 请求
func postJSON(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(testServer.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("HTTP 请求失败: %v", err)
	}
	return resp
}

// decodeJSON 解析响应体
func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	return result
}

// ============================================================================
// TC-GEN-SUBMIT-001: 基本提交
// ============================================================================

func TestGenerationSubmit_Basic(t *testing.T) {
	env.SkipIfNoDatabase(t)
	ctx := context.Background()

	t1 := time.Now().Add(-time.Second)

	// 步骤：发送 POST /api/v1/generations
	resp := postJSON(t, "/api/v1/generations", `{"generator": "mock", "params": {"prompt": "hello"}}`)
	defer resp.Body.Close()

	// 验证 HTTP 状态码 = 201
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("TC-GEN-SUBMIT-001: HTTP 状态码 = %d, 期望 201, 响应: %s", resp.StatusCode, string(body))
	}

	result := decodeJSON(t, resp)

	// 验证响应 id 非空，格式 gen-xxx
	genID, ok := result["id"].(string)
	if !ok || genID == "" {
		t.Fatalf("TC-GEN-SUBMIT-001: 响应 id 为空")
	}
	if !strings.HasPrefix(genID, "gen-") {
		t.Errorf("TC-GEN-SUBMIT-001: 响应 id 格式错误: %s, 期望 gen-xxx", genID)
	}

	// 验证响应 status = queued
	if result["status"] != "queued" {
		t.Errorf("TC-GEN-SUBMIT-001: 响应 status = %v, 期望 queued", result["status"])
	}

	// 验证响应 generator_name / artifact_type（mock 产出 text）
	if result["generator_name"] != "mock" {
		t.Errorf("TC-GEN-SUBMIT-001: 响应 generator_name = %v, 期望 mock", result["generator_name"])
	}
	if result["artifact_type"] != "text" {
		t.Errorf("TC-GEN-SUBMIT-001: 响应 artifact_type = %v, 期望 text", result["artifact_type"])
	}

	// 验证 DB: 记录存在且状态一致
	gen, err := env.Store.GetGeneration(ctx, genID)
	if err != nil {
		t.Fatalf("TC-GEN-SUBMIT-001: 查询数据库失败: %v", err)
	}
	if gen == nil {
		t.Fatalf("TC-GEN-SUBMIT-001: DB 中不存在 id=%s 的记录", genID)
	}
	if gen.Status != model.GenerationStatusQueued {
		t.Errorf("TC-GEN-SUBMIT-001: DB status = %s, 期望 queued", gen.Status)
	}
	// 无引用参数：不产生血缘边
	if len(gen.InputArtifacts) != 0 {
		t.Errorf("TC-GEN-SUBMIT-001: DB input_artifacts 有 %d 条边, 期望 0", len(gen.InputArtifacts))
	}
	// 创建时间在请求区间内
	t2 := time.Now().Add(time.Second)
	if gen.CreatedAt.Before(t1) || gen.CreatedAt.After(t2) {
		t.Errorf("TC-GEN-SUBMIT-001: DB created_at = %v, 期望在 [%v, %v] 之间", gen.CreatedAt, t1, t2)
	}

	t.Logf("TC-GEN-SUBMIT-001: 测试通过, Generation ID: %s", genID)

	testutil.CleanupGenerations(t, env.Store, genID)
}

// ============================================================================
// TC-GEN-SUBMIT-002: 未注册生成器
// ============================================================================

func TestGenerationSubmit_UnknownGenerator(t *testing.T) {
	env.SkipIfNoDatabase(t)

	resp := postJSON(t, "/api/v1/generations", `{"generator": "no-such-generator", "params": {}}`)
	defer resp.Body.Close()

	// 验证 HTTP 状态码 = 404
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("TC-GEN-SUBMIT-002: HTTP 状态码 = %d, 期望 404", resp.StatusCode)
	}

	result := decodeJSON(t, resp)
	errMsg, _ := result["error"].(string)
	if !strings.Contains(errMsg, "unknown generator") {
		t.Errorf("TC-GEN-SUBMIT-002: 错误信息 = %s, 期望包含 'unknown generator'", errMsg)
	}
}

// ============================================================================
// TC-GEN-SUBMIT-003: 缺少 generator 字段
// ============================================================================

func TestGenerationSubmit_MissingGenerator(t *testing.T) {
	env.SkipIfNoDatabase(t)

	resp := postJSON(t, "/api/v1/generations", `{"params": {"prompt": "x"}}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("TC-GEN-SUBMIT-003: HTTP 状态码 = %d, 期望 400", resp.StatusCode)
	}

	result := decodeJSON(t, resp)
	errMsg, _ := result["error"].(string)
	if !strings.Contains(errMsg, "generator") {
		t.Errorf("TC-GEN-SUBMIT-003: 错误信息 = %s, 期望包含 'generator'", errMsg)
	}
}

// ============================================================================
// TC-GEN-SUBMIT-004: 非法请求体
// ============================================================================

func TestGenerationSubmit_BadJSON(t *testing.T) {
	env.SkipIfNoDatabase(t)

	resp := postJSON(t, "/api/v1/generations", `{not valid json`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("TC-GEN-SUBMIT-004: HTTP 状态码 = %d, 期望 400", resp.StatusCode)
	}
}

// ============================================================================
// TC-GEN-CANCEL-001: 取消排队中的生成
// ============================================================================

func TestGenerationCancel_Queued(t *testing.T) {
	env.SkipIfNoDatabase(t)
	ctx := context.Background()

	// 创建一条 queued 记录
	resp := postJSON(t, "/api/v1/generations", `{"generator": "mock", "params": {"prompt": "to cancel"}}`)
	result := decodeJSON(t, resp)
	resp.Body.Close()
	genID := result["id"].(string)
	defer testutil.CleanupGenerations(t, env.Store, genID)

	// 取消
	resp = postJSON(t, "/api/v1/generations/"+genID+"/cancel", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("TC-GEN-CANCEL-001: HTTP 状态码 = %d, 期望 200", resp.StatusCode)
	}
	cancelResult := decodeJSON(t, resp)
	if cancelResult["status"] != "cancelled" {
		t.Errorf("TC-GEN-CANCEL-001: 响应 status = %v, 期望 cancelled", cancelResult["status"])
	}

	// 验证 DB 状态
	gen, _ := env.Store.GetGeneration(ctx, genID)
	if gen == nil || gen.Status != model.GenerationStatusCancelled {
		t.Errorf("TC-GEN-CANCEL-001: DB status 未变为 cancelled")
	}
}

// ============================================================================
// TC-GEN-CANCEL-002: 非 queued 状态不可取消
// ============================================================================

func TestGenerationCancel_NotQueued(t *testing.T) {
	env.SkipIfNoDatabase(t)
	ctx := context.Background()

	resp := postJSON(t, "/api/v1/generations", `{"generator": "mock", "params": {"prompt": "done"}}`)
	result := decodeJSON(t, resp)
	resp.Body.Close()
	genID := result["id"].(string)
	defer testutil.CleanupGenerations(t, env.Store, genID)

	// 推进到 completed（模拟 worker 执行完成）
	if err := env.CompleteGeneration(ctx, genID); err != nil {
		t.Fatalf("TC-GEN-CANCEL-002: 推进状态失败: %v", err)
	}

	resp = postJSON(t, "/api/v1/generations/"+genID+"/cancel", "")
	defer resp.Body.Close()

	// completed 记录取消返回 409
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("TC-GEN-CANCEL-002: HTTP 状态码 = %d, 期望 409", resp.StatusCode)
	}
}

// ============================================================================
// TC-GEN-DELETE-001: 删除与删除保护
// ============================================================================

func TestGenerationDelete(t *testing.T) {
	env.SkipIfNoDatabase(t)
	ctx := context.Background()

	resp := postJSON(t, "/api/v1/generations", `{"generator": "mock", "params": {"prompt": "to delete"}}`)
	result := decodeJSON(t, resp)
	resp.Body.Close()
	genID := result["id"].(string)

	// 删除
	req, _ := http.NewRequest("DELETE", testServer.URL+"/api/v1/generations/"+genID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("TC-GEN-DELETE-001: HTTP 请求失败: %v", err)
	}
	delResp.Body.Close()

	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("TC-GEN-DELETE-001: HTTP 状态码 = %d, 期望 204", delResp.StatusCode)
	}

	// 验证 DB 记录已删除
	gen, _ := env.Store.GetGeneration(ctx, genID)
	if gen != nil {
		t.Errorf("TC-GEN-DELETE-001: DB 记录仍存在")
	}

	// 再次 GET 返回 404
	getResp, _ := http.Get(testServer.URL + "/api/v1/generations/" + genID)
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("TC-GEN-DELETE-001: 删除后 GET 状态码 = %d, 期望 404", getResp.StatusCode)
	}
}

func TestGenerationDelete_RunningProtected(t *testing.T) {
	env.SkipIfNoDatabase(t)
	ctx := context.Background()

	resp := postJSON(t, "/api/v1/generations", `{"generator": "mock", "params": {"prompt": "running"}}`)
	result := decodeJSON(t, resp)
	resp.Body.Close()
	genID := result["id"].(string)
	defer testutil.CleanupGenerations(t, env.Store, genID)

	// 推进到 running
	worker := "worker-test"
	if err := env.Store.UpdateGenerationStatus(ctx, genID, model.GenerationStatusRunning, &worker, nil); err != nil {
		t.Fatalf("TC-GEN-DELETE-002: 推进状态失败: %v", err)
	}

	req, _ := http.NewRequest("DELETE", testServer.URL+"/api/v1/generations/"+genID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("TC-GEN-DELETE-002: HTTP 请求失败: %v", err)
	}
	delResp.Body.Close()

	// running 记录不可删除
	if delResp.StatusCode != http.StatusConflict {
		t.Errorf("TC-GEN-DELETE-002: HTTP 状态码 = %d, 期望 409", delResp.StatusCode)
	}

	gen, _ := env.Store.GetGeneration(ctx, genID)
	if gen == nil {
		t.Errorf("TC-GEN-DELETE-002: running 记录被删除了")
	}
}

// ============================================================================
// TC-GEN-REGEN-001: 重新生成
// ============================================================================

func TestGenerationRegenerate(t *testing.T) {
	env.SkipIfNoDatabase(t)
	ctx := context.Background()

	resp := postJSON(t, "/api/v1/generations", `{"generator": "mock", "params": {"prompt": "original"}}`)
	result := decodeJSON(t, resp)
	resp.Body.Close()
	srcID := result["id"].(string)
	defer testutil.CleanupGenerations(t, env.Store, srcID)

	// 重新生成
	resp = postJSON(t, "/api/v1/generations/"+srcID+"/regenerate", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("TC-GEN-REGEN-001: HTTP 状态码 = %d, 期望 201, 响应: %s", resp.StatusCode, string(body))
	}

	regen := decodeJSON(t, resp)
	newID := regen["id"].(string)
	defer testutil.CleanupGenerations(t, env.Store, newID)

	if newID == srcID {
		t.Errorf("TC-GEN-REGEN-001: 新记录 ID 与原记录相同")
	}
	// 单亲指针指向被重新生成的记录
	if regen["parent_generation_id"] != srcID {
		t.Errorf("TC-GEN-REGEN-001: parent_generation_id = %v, 期望 %s", regen["parent_generation_id"], srcID)
	}
	// 原始参数被复制
	gen, _ := env.Store.GetGeneration(ctx, newID)
	if gen == nil {
		t.Fatalf("TC-GEN-REGEN-001: DB 中不存在新记录")
	}
	var params map[string]interface{}
	json.Unmarshal(gen.Params, &params)
	if params["prompt"] != "original" {
		t.Errorf("TC-GEN-REGEN-001: 新记录 params.prompt = %v, 期望 original", params["prompt"])
	}

	// children 接口能看到新记录
	childResp, _ := http.Get(testServer.URL + "/api/v1/generations/" + srcID + "/children")
	children := decodeJSON(t, childResp)
	childResp.Body.Close()
	if int(children["count"].(float64)) != 1 {
		t.Errorf("TC-GEN-REGEN-001: children count = %v, 期望 1", children["count"])
	}
}

// ============================================================================
// TC-GEN-LIST-001: 列表与分页
// ============================================================================

func TestGenerationList(t *testing.T) {
	env.SkipIfNoDatabase(t)

	// 创建 3 条记录
	var ids []string
	for i := 0; i < 3; i++ {
		resp := postJSON(t, "/api/v1/generations", `{"generator": "mock", "params": {"prompt": "list"}}`)
		result := decodeJSON(t, resp)
		resp.Body.Close()
		ids = append(ids, result["id"].(string))
	}
	defer testutil.CleanupGenerations(t, env.Store, ids...)

	resp, err := http.Get(testServer.URL + "/api/v1/generations?limit=2")
	if err != nil {
		t.Fatalf("TC-GEN-LIST-001: HTTP 请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("TC-GEN-LIST-001: HTTP 状态码 = %d, 期望 200", resp.StatusCode)
	}

	result := decodeJSON(t, resp)
	count := int(result["count"].(float64))
	total := int(result["total"].(float64))
	if count > 2 {
		t.Errorf("TC-GEN-LIST-001: limit=2 返回了 %d 条", count)
	}
	if total < 3 {
		t.Errorf("TC-GEN-LIST-001: total = %d, 期望 >= 3", total)
	}
	if result["has_more"] != true {
		t.Errorf("TC-GEN-LIST-001: has_more = %v, 期望 true", result["has_more"])
	}

	// 按生成器筛选
	resp2, _ := http.Get(testServer.URL + "/api/v1/generations?generator=no-such")
	filtered := decodeJSON(t, resp2)
	resp2.Body.Close()
	if int(filtered["count"].(float64)) != 0 {
		t.Errorf("TC-GEN-LIST-001: generator 筛选未生效, count = %v", filtered["count"])
	}
}
