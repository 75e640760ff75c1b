// Package lineagequery 血缘图查询集成测试
//
// 覆盖契约：api/openapi/openapi.yaml 的 ancestry / descendants /
// children 读路径。溯源图由提交时落库的血缘边构成，这里验证
// 两个方向的遍历、深度截断的 partial 报告与悬空引用的边界语义。
//
// 测试架构：
//
//	测试代码 ──HTTP请求──→ httptest.Server ──→ Handler.Ancestry()
//	                                              │
//	                                              ▼
//	                                      lineage.Resolver ──→ SQLite
package lineagequery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"genstudio/internal/shared/model"
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

// buildChain 构造三级血缘链 a ← b ← c（source 引用，全部 completed）
//
// 每个测试用例构造独立的链并自行清理，用例之间不共享图。
func buildChain(t *testing.T) (a, b, c string) {
	t.Helper()
	ctx := context.Background()

	seed, err := env.SeedCompleted(ctx, "mock", model.ArtifactTypeText, "")
	if err != nil {
		t.Fatalf("构造链失败（种子）: %v", err)
	}
	a = seed.ID

	b = submitWithSource(t, a)
	if err := env.CompleteGeneration(ctx, b); err != nil {
		t.Fatalf("构造链失败（推进 b）: %v", err)
	}

	c = submitWithSource(t, b)
	if err := env.CompleteGeneration(ctx, c); err != nil {
		t.Fatalf("构造链失败（推进 c）: %v", err)
	}
	return a, b, c
}

// submitWithSource 提交一条引用 sourceID 的 mock 生成并返回新 ID
func submitWithSource(t *testing.T, sourceID string) string {
	t.Helper()
	body := fmt.Sprintf(`{"generator": "mock", "params": {"prompt": "chain", "source": %q}}`, sourceID)
	resp, err := http.Post(testServer.URL+"/api/v1/generations", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("提交失败: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("提交失败: HTTP %d, 响应: %s", resp.StatusCode, string(raw))
	}
	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return result["id"].(string)
}

func getJSON(t *testing.T, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(testServer.URL + path)
	if err != nil {
		t.Fatalf("HTTP 请求失败: %v", err)
	}
	defer resp.Body.Close()
	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return resp.StatusCode, result
}

// nodeID 从 ancestry/descendant 节点中取 generation.id
func nodeID(node map[string]interface{}) string {
	gen, _ := node["generation"].(map[string]interface{})
	id, _ := gen["id"].(string)
	return id
}

// ============================================================================
// TC-LIN-ANC-001: 完整祖先树
// ============================================================================

func TestAncestry_FullChain(t *testing.T) {
	env.SkipIfNoDatabase(t)
	a, b, c := buildChain(t)
	defer testutil.CleanupGenerations(t, env.Store, a, b, c)

	status, result := getJSON(t, "/api/v1/generations/"+c+"/ancestry")
	if status != http.StatusOK {
		t.Fatalf("TC-LIN-ANC-001: HTTP 状态码 = %d, 期望 200", status)
	}

	if result["partial"] != false {
		t.Errorf("TC-LIN-ANC-001: partial = %v, 期望 false", result["partial"])
	}

	// 根节点：查询起点本身，depth=0，无 role
	root, ok := result["ancestry"].(map[string]interface{})
	if !ok {
		t.Fatalf("TC-LIN-ANC-001: ancestry 字段缺失")
	}
	if nodeID(root) != c {
		t.Errorf("TC-LIN-ANC-001: 根节点 = %s, 期望 %s", nodeID(root), c)
	}
	if root["depth"].(float64) != 0 {
		t.Errorf("TC-LIN-ANC-001: 根节点 depth = %v, 期望 0", root["depth"])
	}
	if _, hasRole := root["role"]; hasRole {
		t.Errorf("TC-LIN-ANC-001: 根节点不应有 role 字段")
	}

	// 第一层父级：b，depth=1，role=source
	parents, _ := root["parents"].([]interface{})
	if len(parents) != 1 {
		t.Fatalf("TC-LIN-ANC-001: 根节点父级数 = %d, 期望 1", len(parents))
	}
	p1 := parents[0].(map[string]interface{})
	if nodeID(p1) != b || p1["depth"].(float64) != 1 || p1["role"] != "source" {
		t.Errorf("TC-LIN-ANC-001: 一层父级 = (%s, depth %v, role %v), 期望 (%s, 1, source)",
			nodeID(p1), p1["depth"], p1["role"], b)
	}

	// 第二层父级：a，depth=2，没有更上游
	grand, _ := p1["parents"].([]interface{})
	if len(grand) != 1 {
		t.Fatalf("TC-LIN-ANC-001: 二层父级数 = %d, 期望 1", len(grand))
	}
	p2 := grand[0].(map[string]interface{})
	if nodeID(p2) != a || p2["depth"].(float64) != 2 {
		t.Errorf("TC-LIN-ANC-001: 二层父级 = (%s, depth %v), 期望 (%s, 2)", nodeID(p2), p2["depth"], a)
	}
	if _, hasParents := p2["parents"]; hasParents {
		t.Errorf("TC-LIN-ANC-001: 链头不应再有父级")
	}

	t.Logf("TC-LIN-ANC-001: 测试通过, %s ← %s ← %s", a, b, c)
}

// ============================================================================
// TC-LIN-ANC-002: 深度截断置 partial
// ============================================================================

func TestAncestry_DepthTruncation(t *testing.T) {
	env.SkipIfNoDatabase(t)
	a, b, c := buildChain(t)
	defer testutil.CleanupGenerations(t, env.Store, a, b, c)

	status, result := getJSON(t, "/api/v1/generations/"+c+"/ancestry?max_depth=1")
	if status != http.StatusOK {
		t.Fatalf("TC-LIN-ANC-002: HTTP 状态码 = %d, 期望 200", status)
	}

	// b 是边界节点且还有指向 a 的边未遍历
	if result["partial"] != true {
		t.Errorf("TC-LIN-ANC-002: partial = %v, 期望 true", result["partial"])
	}

	root := result["ancestry"].(map[string]interface{})
	parents, _ := root["parents"].([]interface{})
	if len(parents) != 1 {
		t.Fatalf("TC-LIN-ANC-002: 父级数 = %d, 期望 1", len(parents))
	}
	p1 := parents[0].(map[string]interface{})
	if _, hasParents := p1["parents"]; hasParents {
		t.Errorf("TC-LIN-ANC-002: 边界节点不应继续展开")
	}
}

// ============================================================================
// TC-LIN-ANC-003: 起点不存在返回 404
// ============================================================================

func TestAncestry_NotFound(t *testing.T) {
	env.SkipIfNoDatabase(t)

	status, _ := getJSON(t, "/api/v1/generations/gen-ghost/ancestry")
	if status != http.StatusNotFound {
		t.Errorf("TC-LIN-ANC-003: HTTP 状态码 = %d, 期望 404", status)
	}
}

// ============================================================================
// TC-LIN-ANC-004: max_depth 非法值
// ============================================================================

func TestAncestry_BadDepth(t *testing.T) {
	env.SkipIfNoDatabase(t)
	a, b, c := buildChain(t)
	defer testutil.CleanupGenerations(t, env.Store, a, b, c)

	status, result := getJSON(t, "/api/v1/generations/"+c+"/ancestry?max_depth=abc")
	if status != http.StatusBadRequest {
		t.Errorf("TC-LIN-ANC-004: HTTP 状态码 = %d, 期望 400", status)
	}
	if errMsg, _ := result["error"].(string); errMsg != "max_depth must be an integer" {
		t.Errorf("TC-LIN-ANC-004: 错误信息 = %q", errMsg)
	}

	// 越界数字不报错：收敛到合法区间
	status, _ = getJSON(t, "/api/v1/generations/"+c+"/ancestry?max_depth=9999")
	if status != http.StatusOK {
		t.Errorf("TC-LIN-ANC-004: 越界 max_depth 状态码 = %d, 期望 200", status)
	}
}

// ============================================================================
// TC-LIN-DESC-001: 后代扁平列表
// ============================================================================

func TestDescendants_FullChain(t *testing.T) {
	env.SkipIfNoDatabase(t)
	a, b, c := buildChain(t)
	defer testutil.CleanupGenerations(t, env.Store, a, b, c)

	status, result := getJSON(t, "/api/v1/generations/"+a+"/descendants")
	if status != http.StatusOK {
		t.Fatalf("TC-LIN-DESC-001: HTTP 状态码 = %d, 期望 200", status)
	}

	if result["partial"] != false {
		t.Errorf("TC-LIN-DESC-001: partial = %v, 期望 false", result["partial"])
	}
	if int(result["count"].(float64)) != 2 {
		t.Fatalf("TC-LIN-DESC-001: count = %v, 期望 2", result["count"])
	}

	nodes := result["descendants"].([]interface{})
	byID := map[string]map[string]interface{}{}
	for _, n := range nodes {
		node := n.(map[string]interface{})
		byID[nodeID(node)] = node
	}

	if node, ok := byID[b]; !ok || node["depth"].(float64) != 1 || node["role"] != "source" {
		t.Errorf("TC-LIN-DESC-001: b 节点 = %v, 期望 depth 1 role source", byID[b])
	}
	if node, ok := byID[c]; !ok || node["depth"].(float64) != 2 {
		t.Errorf("TC-LIN-DESC-001: c 节点 = %v, 期望 depth 2", byID[c])
	}
}

// ============================================================================
// TC-LIN-DESC-002: 深度截断边界探测
// ============================================================================

func TestDescendants_DepthTruncation(t *testing.T) {
	env.SkipIfNoDatabase(t)
	a, b, c := buildChain(t)
	defer testutil.CleanupGenerations(t, env.Store, a, b, c)

	status, result := getJSON(t, "/api/v1/generations/"+a+"/descendants?max_depth=1")
	if status != http.StatusOK {
		t.Fatalf("TC-LIN-DESC-002: HTTP 状态码 = %d, 期望 200", status)
	}

	if int(result["count"].(float64)) != 1 {
		t.Errorf("TC-LIN-DESC-002: count = %v, 期望 1（只有直接后代）", result["count"])
	}
	// 边界层之下还有 c：结果不完整
	if result["partial"] != true {
		t.Errorf("TC-LIN-DESC-002: partial = %v, 期望 true", result["partial"])
	}
}

// ============================================================================
// TC-LIN-DESC-003: 悬空引用按图边界处理
// ============================================================================

func TestLineage_DanglingReference(t *testing.T) {
	env.SkipIfNoDatabase(t)
	a, b, c := buildChain(t)
	defer testutil.CleanupGenerations(t, env.Store, b, c)

	// 删除链头 a：b 指向 a 的入边保留在 b 的记录上
	req, _ := http.NewRequest("DELETE", testServer.URL+"/api/v1/generations/"+a, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("TC-LIN-DESC-003: 删除失败: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("TC-LIN-DESC-003: 删除状态码 = %d, 期望 204", resp.StatusCode)
	}

	// b 的祖先树：悬空引用不报错，b 没有父级，partial 不置位
	status, result := getJSON(t, "/api/v1/generations/"+b+"/ancestry")
	if status != http.StatusOK {
		t.Fatalf("TC-LIN-DESC-003: ancestry 状态码 = %d, 期望 200", status)
	}
	root := result["ancestry"].(map[string]interface{})
	if _, hasParents := root["parents"]; hasParents {
		t.Errorf("TC-LIN-DESC-003: 悬空引用不应出现在祖先树中")
	}
	if result["partial"] != false {
		t.Errorf("TC-LIN-DESC-003: partial = %v, 期望 false（边界不是截断）", result["partial"])
	}

	// 被删记录的后代查询照常 404
	status, _ = getJSON(t, "/api/v1/generations/"+a+"/descendants")
	if status != http.StatusNotFound {
		t.Errorf("TC-LIN-DESC-003: 已删记录 descendants 状态码 = %d, 期望 404", status)
	}

	// c 的祖先树仍然完整到 b
	status, result = getJSON(t, "/api/v1/generations/"+c+"/ancestry")
	if status != http.StatusOK {
		t.Fatalf("TC-LIN-DESC-003: c ancestry 状态码 = %d", status)
	}
	root = result["ancestry"].(map[string]interface{})
	parents, _ := root["parents"].([]interface{})
	if len(parents) != 1 || nodeID(parents[0].(map[string]interface{})) != b {
		t.Errorf("TC-LIN-DESC-003: c 的祖先树未保留 b")
	}
}

// ============================================================================
// TC-LIN-CHILD-001: children 只看单亲指针，不走血缘边
// ============================================================================

func TestChildren_ParentPointerOnly(t *testing.T) {
	env.SkipIfNoDatabase(t)
	a, b, c := buildChain(t)
	defer testutil.CleanupGenerations(t, env.Store, a, b, c)

	// b 通过血缘边引用 a，但没有 parent_generation_id：children 为空
	status, result := getJSON(t, "/api/v1/generations/"+a+"/children")
	if status != http.StatusOK {
		t.Fatalf("TC-LIN-CHILD-001: HTTP 状态码 = %d, 期望 200", status)
	}
	if int(result["count"].(float64)) != 0 {
		t.Errorf("TC-LIN-CHILD-001: 血缘边不应计入 children, count = %v", result["count"])
	}

	// regenerate 写入单亲指针后 children 出现
	resp, err := http.Post(testServer.URL+"/api/v1/generations/"+a+"/regenerate", "application/json", nil)
	if err != nil {
		t.Fatalf("TC-LIN-CHILD-001: regenerate 失败: %v", err)
	}
	var regen map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&regen)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("TC-LIN-CHILD-001: regenerate 状态码 = %d, 期望 201", resp.StatusCode)
	}
	regenID := regen["id"].(string)
	defer testutil.CleanupGenerations(t, env.Store, regenID)

	status, result = getJSON(t, "/api/v1/generations/"+a+"/children")
	if status != http.StatusOK {
		t.Fatalf("TC-LIN-CHILD-001: HTTP 状态码 = %d, 期望 200", status)
	}
	if int(result["count"].(float64)) != 1 {
		t.Errorf("TC-LIN-CHILD-001: regenerate 后 count = %v, 期望 1", result["count"])
	}
	children := result["children"].([]interface{})
	child := children[0].(map[string]interface{})
	if child["id"] != regenID {
		t.Errorf("TC-LIN-CHILD-001: children[0].id = %v, 期望 %s", child["id"], regenID)
	}
}
