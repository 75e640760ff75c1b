// Package authaccess 认证与可见性集成测试
//
// 覆盖契约：api/openapi/openapi.yaml 的 auth 路径，以及启用认证后
// generations 读写的归属可见性规则（普通用户只见本人记录）。
//
// 认证在 TestMain 中启用。指标注册在默认 Prometheus registry 上，
// 每个测试二进制只能构建一个 Handler，因此这里复用共享环境并
// 重建路由，而不是新建第二个 Handler。
package authaccess

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"genstudio/internal/apiserver/auth"
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

	env.EnableAuth("integration-test-secret")
	testServer = httptest.NewServer(env.Router)

	code := m.Run()

	testServer.Close()
	env.Close()

	os.Exit(code)
}

// postJSON 发送 POST 请求，token 非空时附加 Bearer 头
func postJSON(t *testing.T, path, token, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest("POST", testServer.URL+path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("HTTP 请求失败: %v", err)
	}
	return resp
}

func getWithToken(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest("GET", testServer.URL+path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
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

// registerUser 注册一个新用户并返回 (userID, accessToken, refreshToken)
func registerUser(t *testing.T, email string) (string, string, string) {
	t.Helper()
	body := fmt.Sprintf(`{"email": %q, "username": "tester", "password": "password123"}`, email)
	resp := postJSON(t, "/api/v1/auth/register", "", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("注册失败: HTTP %d, 响应: %s", resp.StatusCode, string(raw))
	}
	result := decodeJSON(t, resp)
	user := result["user"].(map[string]interface{})
	return user["id"].(string), result["access_token"].(string), result["refresh_token"].(string)
}

// ============================================================================
// TC-AUTH-REG-001: 注册
// ============================================================================

func TestAuthRegister(t *testing.T) {
	env.SkipIfNoDatabase(t)

	resp := postJSON(t, "/api/v1/auth/register", "",
		`{"email": "reg-001@test.local", "username": "reg001", "password": "password123"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("TC-AUTH-REG-001: HTTP 状态码 = %d, 期望 201, 响应: %s", resp.StatusCode, string(raw))
	}

	result := decodeJSON(t, resp)
	user, ok := result["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("TC-AUTH-REG-001: 响应缺少 user")
	}
	if !strings.HasPrefix(user["id"].(string), "user-") {
		t.Errorf("TC-AUTH-REG-001: user.id 格式错误: %v", user["id"])
	}
	if user["role"] != "user" {
		t.Errorf("TC-AUTH-REG-001: user.role = %v, 期望 user", user["role"])
	}
	// 密码哈希绝不出现在响应中
	if _, leaked := user["password_hash"]; leaked {
		t.Errorf("TC-AUTH-REG-001: 响应泄露了 password_hash")
	}
	if result["access_token"] == "" || result["refresh_token"] == "" {
		t.Errorf("TC-AUTH-REG-001: 令牌缺失")
	}
}

// ============================================================================
// TC-AUTH-REG-002: 重复邮箱
// ============================================================================

func TestAuthRegister_DuplicateEmail(t *testing.T) {
	env.SkipIfNoDatabase(t)
	registerUser(t, "dup@test.local")

	resp := postJSON(t, "/api/v1/auth/register", "",
		`{"email": "dup@test.local", "username": "dup2", "password": "password123"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("TC-AUTH-REG-002: HTTP 状态码 = %d, 期望 409", resp.StatusCode)
	}
	result := decodeJSON(t, resp)
	if result["error"] != "email already registered" {
		t.Errorf("TC-AUTH-REG-002: 错误信息 = %v", result["error"])
	}
}

// ============================================================================
// TC-AUTH-REG-003: 参数校验
// ============================================================================

func TestAuthRegister_Validation(t *testing.T) {
	env.SkipIfNoDatabase(t)

	cases := []struct {
		name string
		body string
		want string
	}{
		{"缺少字段", `{"email": "x@test.local"}`, "email, username, password are required"},
		{"邮箱格式", `{"email": "not-an-email", "username": "u", "password": "password123"}`, "invalid email format"},
		{"密码过短", `{"email": "short@test.local", "username": "u", "password": "short"}`, "password must be at least 8 characters"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, "/api/v1/auth/register", "", tc.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("TC-AUTH-REG-003(%s): HTTP 状态码 = %d, 期望 400", tc.name, resp.StatusCode)
			}
			result := decodeJSON(t, resp)
			if result["error"] != tc.want {
				t.Errorf("TC-AUTH-REG-003(%s): 错误信息 = %v, 期望 %q", tc.name, result["error"], tc.want)
			}
		})
	}
}

// ============================================================================
// TC-AUTH-LOGIN-001: 登录
// ============================================================================

func TestAuthLogin(t *testing.T) {
	env.SkipIfNoDatabase(t)
	registerUser(t, "login@test.local")

	resp := postJSON(t, "/api/v1/auth/login", "",
		`{"email": "login@test.local", "password": "password123"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("TC-AUTH-LOGIN-001: HTTP 状态码 = %d, 期望 200", resp.StatusCode)
	}
	result := decodeJSON(t, resp)
	if result["access_token"] == "" {
		t.Errorf("TC-AUTH-LOGIN-001: access_token 缺失")
	}

	// 错误密码与不存在的邮箱返回同一错误
	resp2 := postJSON(t, "/api/v1/auth/login", "",
		`{"email": "login@test.local", "password": "wrong-password"}`)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("TC-AUTH-LOGIN-001: 错误密码状态码 = %d, 期望 401", resp2.StatusCode)
	}
	bad := decodeJSON(t, resp2)
	if bad["error"] != "invalid email or password" {
		t.Errorf("TC-AUTH-LOGIN-001: 错误信息 = %v", bad["error"])
	}
}

// ============================================================================
// TC-AUTH-REFRESH-001: 令牌刷新
// ============================================================================

func TestAuthRefresh(t *testing.T) {
	env.SkipIfNoDatabase(t)
	_, accessToken, refreshToken := registerUser(t, "refresh@test.local")

	resp := postJSON(t, "/api/v1/auth/refresh", "",
		fmt.Sprintf(`{"refresh_token": %q}`, refreshToken))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("TC-AUTH-REFRESH-001: HTTP 状态码 = %d, 期望 200", resp.StatusCode)
	}
	result := decodeJSON(t, resp)
	if result["access_token"] == "" {
		t.Errorf("TC-AUTH-REFRESH-001: access_token 缺失")
	}

	// access token 不能当 refresh token 用
	resp2 := postJSON(t, "/api/v1/auth/refresh", "",
		fmt.Sprintf(`{"refresh_token": %q}`, accessToken))
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("TC-AUTH-REFRESH-001: access 令牌刷新状态码 = %d, 期望 401", resp2.StatusCode)
	}
	bad := decodeJSON(t, resp2)
	if bad["error"] != "invalid token type" {
		t.Errorf("TC-AUTH-REFRESH-001: 错误信息 = %v", bad["error"])
	}
}

// ============================================================================
// TC-AUTH-ME-001: 当前用户信息
// ============================================================================

func TestAuthMe(t *testing.T) {
	env.SkipIfNoDatabase(t)
	userID, accessToken, _ := registerUser(t, "me@test.local")

	resp := getWithToken(t, "/api/v1/auth/me", accessToken)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("TC-AUTH-ME-001: HTTP 状态码 = %d, 期望 200", resp.StatusCode)
	}
	user := decodeJSON(t, resp)
	if user["id"] != userID {
		t.Errorf("TC-AUTH-ME-001: id = %v, 期望 %s", user["id"], userID)
	}
	if user["email"] != "me@test.local" {
		t.Errorf("TC-AUTH-ME-001: email = %v", user["email"])
	}
}

// ============================================================================
// TC-AUTH-MW-001: 中间件拦截
// ============================================================================

func TestAuthMiddleware(t *testing.T) {
	env.SkipIfNoDatabase(t)

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"无令牌", "", "missing authorization header"},
		{"错误格式", "Token abc", "invalid authorization header"},
		{"伪造令牌", "Bearer not.a.jwt", "invalid or expired token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", testServer.URL+"/api/v1/generations", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("HTTP 请求失败: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("TC-AUTH-MW-001(%s): HTTP 状态码 = %d, 期望 401", tc.name, resp.StatusCode)
			}
			raw, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(raw), tc.want) {
				t.Errorf("TC-AUTH-MW-001(%s): 响应 = %s, 期望包含 %q", tc.name, string(raw), tc.want)
			}
		})
	}

	// 公开路由不受拦截
	resp, err := http.Get(testServer.URL + "/health")
	if err != nil {
		t.Fatalf("HTTP 请求失败: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("TC-AUTH-MW-001: /health 状态码 = %d, 期望 200", resp.StatusCode)
	}
}

// ============================================================================
// TC-AUTH-VIS-001: 归属可见性
// ============================================================================

func TestAuthVisibility(t *testing.T) {
	env.SkipIfNoDatabase(t)
	_, aliceToken, _ := registerUser(t, "alice@test.local")
	_, bobToken, _ := registerUser(t, "bob@test.local")

	// alice 提交一条生成
	resp := postJSON(t, "/api/v1/generations", aliceToken,
		`{"generator": "mock", "params": {"prompt": "alice only"}}`)
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("TC-AUTH-VIS-001: 提交失败: %s", string(raw))
	}
	result := decodeJSON(t, resp)
	resp.Body.Close()
	genID := result["id"].(string)
	defer testutil.CleanupGenerations(t, env.Store, genID)

	// 本人可见
	ownResp := getWithToken(t, "/api/v1/generations/"+genID, aliceToken)
	ownResp.Body.Close()
	if ownResp.StatusCode != http.StatusOK {
		t.Errorf("TC-AUTH-VIS-001: 本人 GET 状态码 = %d, 期望 200", ownResp.StatusCode)
	}

	// 他人不可见：与不存在同样返回 404，不泄露记录是否存在
	otherResp := getWithToken(t, "/api/v1/generations/"+genID, bobToken)
	otherResp.Body.Close()
	if otherResp.StatusCode != http.StatusNotFound {
		t.Errorf("TC-AUTH-VIS-001: 他人 GET 状态码 = %d, 期望 404", otherResp.StatusCode)
	}

	// 他人引用同样失败（解析引擎的可见性判定）
	refResp := postJSON(t, "/api/v1/generations", bobToken,
		fmt.Sprintf(`{"generator": "mock", "params": {"prompt": "steal", "source": %q}}`, genID))
	refResp.Body.Close()
	if refResp.StatusCode != http.StatusNotFound {
		t.Errorf("TC-AUTH-VIS-001: 他人引用状态码 = %d, 期望 404", refResp.StatusCode)
	}

	// 列表只含本人记录
	listResp := getWithToken(t, "/api/v1/generations", bobToken)
	list := decodeJSON(t, listResp)
	listResp.Body.Close()
	if gens, ok := list["generations"].([]interface{}); ok {
		for _, g := range gens {
			if g.(map[string]interface{})["id"] == genID {
				t.Errorf("TC-AUTH-VIS-001: 他人列表中出现了 alice 的记录")
			}
		}
	}
}

// ============================================================================
// TC-AUTH-USERS-001: 用户列表仅管理员可见
// ============================================================================

func TestUsersListAdminOnly(t *testing.T) {
	env.SkipIfNoDatabase(t)
	_, userToken, _ := registerUser(t, "listing-user@test.local")

	// 普通用户 → 403
	resp := getWithToken(t, "/api/v1/users", userToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("TC-AUTH-USERS-001: 普通用户状态码 = %d, 期望 403", resp.StatusCode)
	}

	// 管理员登录后可见全部用户
	if err := auth.EnsureAdminUser(env.Store, "listing-admin@test.local", "admin-password-1"); err != nil {
		t.Fatalf("TC-AUTH-USERS-001: 创建管理员失败: %v", err)
	}
	loginResp := postJSON(t, "/api/v1/auth/login", "",
		`{"email": "listing-admin@test.local", "password": "admin-password-1"}`)
	defer loginResp.Body.Close()
	if loginResp.StatusCode != http.StatusOK {
		t.Fatalf("TC-AUTH-USERS-001: 管理员登录失败: HTTP %d", loginResp.StatusCode)
	}
	adminToken := decodeJSON(t, loginResp)["access_token"].(string)

	adminResp := getWithToken(t, "/api/v1/users", adminToken)
	defer adminResp.Body.Close()
	if adminResp.StatusCode != http.StatusOK {
		t.Fatalf("TC-AUTH-USERS-001: 管理员状态码 = %d, 期望 200", adminResp.StatusCode)
	}
	result := decodeJSON(t, adminResp)
	users, ok := result["users"].([]interface{})
	if !ok || len(users) < 2 {
		t.Errorf("TC-AUTH-USERS-001: users = %v, 期望至少 2 个用户", result["users"])
	}
	for _, u := range users {
		if _, leaked := u.(map[string]interface{})["password_hash"]; leaked {
			t.Errorf("TC-AUTH-USERS-001: 用户列表泄露了 password_hash")
		}
	}
}

// ============================================================================
// TC-AUTH-PWD-001: 修改密码
// ============================================================================

func TestAuthChangePassword(t *testing.T) {
	env.SkipIfNoDatabase(t)
	_, accessToken, _ := registerUser(t, "pwd@test.local")

	req, _ := http.NewRequest("PUT", testServer.URL+"/api/v1/auth/password",
		bytes.NewBufferString(`{"old_password": "password123", "new_password": "newpassword456"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("TC-AUTH-PWD-001: HTTP 请求失败: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("TC-AUTH-PWD-001: HTTP 状态码 = %d, 期望 200", resp.StatusCode)
	}

	// 旧密码失效，新密码可登录
	oldResp := postJSON(t, "/api/v1/auth/login", "",
		`{"email": "pwd@test.local", "password": "password123"}`)
	oldResp.Body.Close()
	if oldResp.StatusCode != http.StatusUnauthorized {
		t.Errorf("TC-AUTH-PWD-001: 旧密码登录状态码 = %d, 期望 401", oldResp.StatusCode)
	}

	newResp := postJSON(t, "/api/v1/auth/login", "",
		`{"email": "pwd@test.local", "password": "newpassword456"}`)
	newResp.Body.Close()
	if newResp.StatusCode != http.StatusOK {
		t.Errorf("TC-AUTH-PWD-001: 新密码登录状态码 = %d, 期望 200", newResp.StatusCode)
	}
}
