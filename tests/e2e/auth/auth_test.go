package auth

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"genstudio/tests/testutil"
)

// 账号接口在启用与未启用认证的部署上行为不同：注册 / 登录 /
// 刷新永远可用，/auth/me 只在中间件注入身份时返回 200。用例
// 两种部署都要能跑。

// TestAuth_RegisterAndLogin 验证注册登录闭环
func TestAuth_RegisterAndLogin(t *testing.T) {
	email := fmt.Sprintf("e2e-%d@example.com", time.Now().UnixNano())
	password := "e2e-password-123"

	resp, err := c.Post("/api/v1/auth/register", map[string]string{
		"email":    email,
		"username": "E2E User",
		"password": password,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	result := testutil.ReadJSON(resp)

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Register returned %d: %v", resp.StatusCode, result["error"])
	}
	if result["access_token"] == nil || result["refresh_token"] == nil {
		t.Error("register response missing tokens")
	}
	user, _ := result["user"].(map[string]interface{})
	if user["email"] != email {
		t.Errorf("registered email = %v, want %v", user["email"], email)
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Error("password_hash leaked in register response")
	}

	// 登录拿新令牌
	resp, err = c.Post("/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	login := testutil.ReadJSON(resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Login returned %d", resp.StatusCode)
	}

	// 刷新令牌换新 access token
	resp, err = c.Post("/api/v1/auth/refresh", map[string]string{
		"refresh_token": login["refresh_token"].(string),
	})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	refreshed := testutil.ReadJSON(resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Refresh returned %d", resp.StatusCode)
	}
	if refreshed["access_token"] == nil {
		t.Error("refresh response missing access_token")
	}
}

// TestAuth_WrongPassword 验证错误密码被拒绝
func TestAuth_WrongPassword(t *testing.T) {
	email := fmt.Sprintf("e2e-wrong-%d@example.com", time.Now().UnixNano())

	resp, err := c.Post("/api/v1/auth/register", map[string]string{
		"email":    email,
		"username": "E2E User",
		"password": "correct-password-1",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	resp.Body.Close()

	resp, err = c.Post("/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": "wrong-password-00",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Login with wrong password returned %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

// TestAuth_Me 验证身份端点与部署模式一致
func TestAuth_Me(t *testing.T) {
	resp, err := c.Get("/api/v1/auth/me")
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	result := testutil.ReadJSON(resp)

	if c.LoggedIn {
		// 认证已启用且持有管理员令牌
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Me returned %d with valid token", resp.StatusCode)
		}
		if result["email"] == nil {
			t.Error("Me response missing email")
		}
	} else {
		// 未启用认证的部署没有身份注入，固定 401
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Me returned %d without auth, want %d", resp.StatusCode, http.StatusUnauthorized)
		}
	}
}
