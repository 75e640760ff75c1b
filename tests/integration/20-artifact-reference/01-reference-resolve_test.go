// Package artifactreference 产物引用解析集成测试
//
// 覆盖契约：api/openapi/openapi.yaml 的 generations 提交路径中
// params 引用字段的解析、校验与血缘边落库。
//
// 测试架构：
//
//	测试代码 ──HTTP请求──→ httptest.Server ──→ Handler.Submit()
//	                                              │
//	                                              ▼
//	                                       resolve.Engine ──→ SQLite
package artifactreference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"genstudio/internal/shared/model"
	"genstudio/internal/shared/storage"
	"genstudio/tests/testutil"
)

var env *testutil.InProcEnv
var testServer *httptest.Server

func TestMain(m *testing.M) {
	var err error
	env, err = testutil.SetupInProcEnv()
	if err != nil {
		os.Exit(0)
	}

	testServer = httptest.NewServer(env.Router)

	code := m.Run()

	testServer.Close()
	env.Close()

	os.Exit(code)
}

// submitMock 提交一条带 source 引用的 mock 生成
func submitMock(t *testing.T, sourceValue interface{}) *http.Response {
	t.Helper()
	body := map[string]interface{}{
		"generator": "mock",
		"params": map[string]interface{}{
			"prompt": "ref test",
			"source": sourceValue,
		},
	}
	data, _ := json.Marshal(body)
	resp, err := http.Post(testServer.URL+"/api/v1/generations", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HTTP 请求失败: %v", err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	return result
}

// ============================================================================
// TC-REF-RESOLVE-001: 引用成功解析（血缘边 + 句柄替换）
// ============================================================================

func TestReferenceResolve_Success(t *testing.T) {
	env.SkipIfNoDatabase(t)
	ctx := context.Background()

	// 准备一条 completed 的 text 上游
	upstream, err := env.SeedCompleted(ctx, "mock", model.ArtifactTypeText, "")
	if err != nil {
		t.Fatalf("TC-REF-RESOLVE-001: 准备上游记录失败: %v", err)
	}
	defer testutil.CleanupGenerations(t, env.Store, upstream.ID)

	resp := submitMock(t, upstream.ID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("TC-REF-RESOLVE-001: HTTP 状态码 = %d, 期望 201, 响应: %s", resp.StatusCode, string(body))
	}

	result := decodeJSON(t, resp)
	genID := result["id"].(string)
	defer testutil.CleanupGenerations(t, env.Store, genID)

	// 验证响应血缘边：{source_generation_id, role, artifact_type}
	edges, ok := result["input_artifacts"].([]interface{})
	if !ok || len(edges) != 1 {
		t.Fatalf("TC-REF-RESOLVE-001: input_artifacts = %v, 期望恰好 1 条边", result["input_artifacts"])
	}
	edge := edges[0].(map[string]interface{})
	if edge["source_generation_id"] != upstream.ID {
		t.Errorf("TC-REF-RESOLVE-001: 边 source_generation_id = %v, 期望 %s", edge["source_generation_id"], upstream.ID)
	}
	if edge["role"] != "source" {
		t.Errorf("TC-REF-RESOLVE-001: 边 role = %v, 期望 source", edge["role"])
	}
	if edge["artifact_type"] != "text" {
		t.Errorf("TC-REF-RESOLVE-001: 边 artifact_type = %v, 期望 text", edge["artifact_type"])
	}

	// 验证句柄替换：resolved_params.source 是产物路径而不是 ID
	resolvedParams, _ := result["resolved_params"].(map[string]interface{})
	if resolvedParams["source"] != *upstream.ArtifactPath {
		t.Errorf("TC-REF-RESOLVE-001: resolved_params.source = %v, 期望产物路径 %s", resolvedParams["source"], *upstream.ArtifactPath)
	}

	// 原始参数保持引用 ID 不变（重新生成要用）
	params, _ := result["params"].(map[string]interface{})
	if params["source"] != upstream.ID {
		t.Errorf("TC-REF-RESOLVE-001: params.source = %v, 期望原始 ID %s", params["source"], upstream.ID)
	}

	// 验证 DB：边随记录一并落库
	gen, err := env.Store.GetGeneration(ctx, genID)
	if err != nil || gen == nil {
		t.Fatalf("TC-REF-RESOLVE-001: 查询 DB 失败: %v", err)
	}
	if len(gen.InputArtifacts) != 1 || gen.InputArtifacts[0].SourceGenerationID != upstream.ID {
		t.Errorf("TC-REF-RESOLVE-001: DB 血缘边 = %+v, 期望指向 %s", gen.InputArtifacts, upstream.ID)
	}

	t.Logf("TC-REF-RESOLVE-001: 测试通过, %s ──source──→ %s", genID, upstream.ID)
}

// ============================================================================
// TC-REF-RESOLVE-002: 引用不存在
// ============================================================================

func TestReferenceResolve_NotFound(t *testing.T) {
	env.SkipIfNoDatabase(t)

	resp := submitMock(t, "gen-does-not-exist")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("TC-REF-RESOLVE-002: HTTP 状态码 = %d, 期望 404", resp.StatusCode)
	}

	result := decodeJSON(t, resp)
	errMsg, _ := result["error"].(string)
	if !strings.Contains(errMsg, "gen-does-not-exist") {
		t.Errorf("TC-REF-RESOLVE-002: 错误信息 = %s, 期望包含被引用的 ID", errMsg)
	}
}

// ============================================================================
// TC-REF-RESOLVE-003: 上游未完成
// ============================================================================

func TestReferenceResolve_NotReady(t *testing.T) {
	env.SkipIfNoDatabase(t)

	// 上游停留在 queued
	body := `{"generator": "mock", "params": {"prompt": "upstream"}}`
	resp, err := http.Post(testServer.URL+"/api/v1/generations", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("TC-REF-RESOLVE-003: 创建上游失败: %v", err)
	}
	upstream := decodeJSON(t, resp)
	resp.Body.Close()
	upstreamID := upstream["id"].(string)
	defer testutil.CleanupGenerations(t, env.Store, upstreamID)

	refResp := submitMock(t, upstreamID)
	defer refResp.Body.Close()

	// 非成功终态的引用是状态冲突
	if refResp.StatusCode != http.StatusConflict {
		t.Fatalf("TC-REF-RESOLVE-003: HTTP 状态码 = %d, 期望 409", refResp.StatusCode)
	}

	result := decodeJSON(t, refResp)
	errMsg, _ := result["error"].(string)
	if !strings.Contains(errMsg, "queued") {
		t.Errorf("TC-REF-RESOLVE-003: 错误信息 = %s, 期望包含上游状态 queued", errMsg)
	}
}

// ============================================================================
// TC-REF-RESOLVE-004: 产物类型不匹配
// ============================================================================

func TestReferenceResolve_TypeMismatch(t *testing.T) {
	env.SkipIfNoDatabase(t)
	ctx := context.Background()

	// mock 的 source 字段要求 text，这里准备一条 image 上游
	upstream, err := env.SeedCompleted(ctx, "dalle-3", model.ArtifactTypeImage, "")
	if err != nil {
		t.Fatalf("TC-REF-RESOLVE-004: 准备上游记录失败: %v", err)
	}
	defer testutil.CleanupGenerations(t, env.Store, upstream.ID)

	resp := submitMock(t, upstream.ID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("TC-REF-RESOLVE-004: HTTP 状态码 = %d, 期望 409", resp.StatusCode)
	}

	result := decodeJSON(t, resp)
	errMsg, _ := result["error"].(string)
	if !strings.Contains(errMsg, "text") || !strings.Contains(errMsg, "image") {
		t.Errorf("TC-REF-RESOLVE-004: 错误信息 = %s, 期望同时包含期望类型与实际类型", errMsg)
	}
}

// ============================================================================
// TC-REF-RESOLVE-005: 引用值非法
// ============================================================================

func TestReferenceResolve_BadValue(t *testing.T) {
	env.SkipIfNoDatabase(t)

	cases := []struct {
		name  string
		value interface{}
	}{
		{"数字", 12345},
		{"空字符串", ""},
		{"对象", map[string]interface{}{"id": "gen-x"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := submitMock(t, tc.value)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("TC-REF-RESOLVE-005(%s): HTTP 状态码 = %d, 期望 400", tc.name, resp.StatusCode)
			}
		})
	}
}

// ============================================================================
// TC-REF-RESOLVE-006: 解析失败不产生写入
// ============================================================================

func TestReferenceResolve_FailureWritesNothing(t *testing.T) {
	env.SkipIfNoDatabase(t)
	ctx := context.Background()

	_, before, err := env.Store.ListGenerations(ctx, storage.GenerationFilter{})
	if err != nil {
		t.Fatalf("TC-REF-RESOLVE-006: 统计失败: %v", err)
	}

	resp := submitMock(t, "gen-missing-upstream")
	resp.Body.Close()

	_, after, err := env.Store.ListGenerations(ctx, storage.GenerationFilter{})
	if err != nil {
		t.Fatalf("TC-REF-RESOLVE-006: 统计失败: %v", err)
	}
	if after != before {
		t.Errorf("TC-REF-RESOLVE-006: 解析失败仍产生了写入, before=%d after=%d", before, after)
	}
}

// ============================================================================
// TC-REF-RESOLVE-007: 可选引用缺省不产生边
// ============================================================================

func TestReferenceResolve_OptionalAbsent(t *testing.T) {
	env.SkipIfNoDatabase(t)

	body := `{"generator": "mock", "params": {"prompt": "no refs"}}`
	resp, err := http.Post(testServer.URL+"/api/v1/generations", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("TC-REF-RESOLVE-007: HTTP 请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("TC-REF-RESOLVE-007: HTTP 状态码 = %d, 期望 201", resp.StatusCode)
	}

	result := decodeJSON(t, resp)
	genID := result["id"].(string)
	defer testutil.CleanupGenerations(t, env.Store, genID)

	if edges, ok := result["input_artifacts"].([]interface{}); ok && len(edges) > 0 {
		t.Errorf("TC-REF-RESOLVE-007: 无引用提交产生了 %d 条边", len(edges))
	}
}

// ============================================================================
// TC-REF-RESOLVE-008: 同一上游被多次引用各记一条边
// ============================================================================

func TestReferenceResolve_ChainDepth(t *testing.T) {
	env.SkipIfNoDatabase(t)
	ctx := context.Background()

	// A(seed) ← B ← C 三级链：每级提交后推进到 completed 再被下一级引用
	seed, err := env.SeedCompleted(ctx, "mock", model.ArtifactTypeText, "")
	if err != nil {
		t.Fatalf("TC-REF-RESOLVE-008: 准备种子失败: %v", err)
	}
	ids := []string{seed.ID}
	defer func() { testutil.CleanupGenerations(t, env.Store, ids...) }()

	prev := seed.ID
	for i := 0; i < 2; i++ {
		resp := submitMock(t, prev)
		if resp.StatusCode != http.StatusCreated {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			t.Fatalf("TC-REF-RESOLVE-008: 第 %d 级提交失败: %s", i+1, string(body))
		}
		result := decodeJSON(t, resp)
		resp.Body.Close()
		id := result["id"].(string)
		ids = append(ids, id)

		// 推进到 completed，让下一级引用能通过终态校验
		if err := env.CompleteGeneration(ctx, id); err != nil {
			t.Fatalf("TC-REF-RESOLVE-008: 推进 %s 失败: %v", id, err)
		}
		prev = id
	}

	// 链尾记录恰好一条边，指向链中上一级
	tail, err := env.Store.GetGeneration(ctx, ids[2])
	if err != nil || tail == nil {
		t.Fatalf("TC-REF-RESOLVE-008: 查询链尾失败: %v", err)
	}
	if len(tail.InputArtifacts) != 1 {
		t.Fatalf("TC-REF-RESOLVE-008: 链尾边数 = %d, 期望 1", len(tail.InputArtifacts))
	}
	if tail.InputArtifacts[0].SourceGenerationID != ids[1] {
		t.Errorf("TC-REF-RESOLVE-008: 链尾边指向 %s, 期望 %s", tail.InputArtifacts[0].SourceGenerationID, ids[1])
	}

	t.Logf("TC-REF-RESOLVE-008: 测试通过, 链 %s", fmt.Sprintf("%s → %s → %s", ids[0], ids[1], ids[2]))
}
