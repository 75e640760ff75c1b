package setup

import (
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"genstudio/internal/shared/sysinstall"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// 连通性探测统一 5 秒超时
const probeTimeout = 5 * time.Second

func ok(format string, args ...interface{}) CheckResult {
	return CheckResult{OK: true, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...interface{}) CheckResult {
	return CheckResult{OK: false, Message: fmt.Sprintf(format, args...)}
}

// tcpProbe 仅验证端口可达，不做协议握手
func tcpProbe(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, probeTimeout)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

// testSQLite 验证 SQLite 落盘目录可写
func testSQLite(cfg DatabaseConfig, configDir string) CheckResult {
	dbPath := cfg.Path
	if dbPath == "" {
		dbPath = filepath.Join(sysinstall.DataDir, "genstudio.db")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail("Cannot create directory %s: %v", dir, err)
	}

	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("test"), 0644); err != nil {
		return fail("Directory not writable: %v", err)
	}
	os.Remove(probe)

	return ok("SQLite path: %s (writable)", dbPath)
}

// testPostgreSQL 真连一次并 Ping
func testPostgreSQL(cfg DatabaseConfig) CheckResult {
	switch {
	case cfg.Host == "":
		return fail("Host is required")
	case cfg.User == "":
		return fail("User is required")
	case cfg.DBName == "":
		return fail("Database name is required")
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=5",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fail("Connection failed: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fail("Ping failed: %v", err)
	}
	return ok("Connected successfully")
}

// testRedis 裸 RESP 协议探测，不引入客户端依赖
//
// 配了密码先发 AUTH，然后 PING，看回包是不是 +OK / PONG。
func testRedis(cfg RedisConfig) CheckResult {
	if cfg.Host == "" {
		return fail("Host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 6379
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)), probeTimeout)
	if err != nil {
		return fail("Connection failed: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(probeTimeout))

	if cfg.Password != "" {
		reply, err := respExchange(conn, "AUTH", cfg.Password)
		if err != nil {
			return fail("AUTH failed: %v", err)
		}
		if !strings.HasPrefix(reply, "+OK") {
			return fail("AUTH failed: %s", strings.TrimSpace(reply))
		}
	}

	reply, err := respExchange(conn, "PING")
	if err != nil {
		return fail("PING failed: %v", err)
	}
	if strings.Contains(reply, "PONG") {
		return ok("Connected (PONG)")
	}
	return fail("Unexpected: %s", strings.TrimSpace(reply))
}

// respExchange 发送一条 RESP 数组命令并读回原始回复
func respExchange(conn net.Conn, parts ...string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "*%d\r\n", len(parts))
	for _, p := range parts {
		fmt.Fprintf(&b, "$%d\r\n%s\r\n", len(p), p)
	}
	if _, err := conn.Write([]byte(b.String())); err != nil {
		return "", err
	}

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// testMongoDB 只做 TCP 可达性检测
//
// 带认证的完整握手交给 init-db 阶段，校验环节不要求
// 驱动级配置完全正确。
func testMongoDB(cfg DatabaseConfig) CheckResult {
	if cfg.Host == "" {
		return fail("Host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 27017
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	if err := tcpProbe(addr); err != nil {
		return fail("Connection failed: %v", err)
	}
	return ok("Connected to %s", addr)
}

// testMinIO TCP 探测，endpoint 形如 host:port，容忍 scheme 前缀
func testMinIO(cfg SetupMinIOConfig) CheckResult {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
	if endpoint == "" {
		return fail("Endpoint is required")
	}
	if !strings.Contains(endpoint, ":") {
		endpoint += ":9000"
	}

	if err := tcpProbe(endpoint); err != nil {
		return fail("Connection failed: %v", err)
	}
	return ok("Connected to %s", endpoint)
}

// validateAuth 管理员账号的本地规则校验
func validateAuth(cfg AuthConfig) CheckResult {
	switch {
	case cfg.AdminEmail == "":
		return fail("Admin email is required")
	case !strings.Contains(cfg.AdminEmail, "@"):
		return fail("Invalid email format")
	case len(cfg.AdminPassword) < 8:
		return fail("Password must be at least 8 characters")
	}
	return ok("Valid")
}
