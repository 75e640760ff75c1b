// Package setup API Server 首次运行配置向导
//
// 检测不到配置文件时启动一个带随机访问令牌的轻量 HTTP 服务，
// 引导用户完成数据库、Redis、MinIO、TLS、管理员配置，
// 生成 {env}.yaml 与凭据 env 文件后退出，由 systemd 以正式配置重启。
package setup

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// wizardTimeout 无人完成配置时自动退出，避免带令牌的端口长期敞开
const wizardTimeout = 30 * time.Minute

//go:embed static
var wizardAssets embed.FS

// Server 配置向导服务
type Server struct {
	configDir  string // 配置输出目录（如 /etc/genstudio）
	listenAddr string
	port       int
	token      string
	infra      infraState // 一键基础设施的部署状态
}

// NewServer 创建配置向导，访问令牌随机生成
func NewServer(configDir, listenAddr string, port int) *Server {
	s := &Server{configDir: configDir, listenAddr: listenAddr, port: port}
	s.token = generateToken()
	return s
}

// Run 启动向导并阻塞，配置完成、超时或收到信号后返回
func (s *Server) Run() {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.listenAddr, s.port),
		Handler:      s.tokenAuthMiddleware(s.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.printBanner()

	stop := make(chan struct{})
	defer close(stop)
	go watchdog(srv, stop)

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Setup server error: %v", err)
	}
}

// watchdog 信号或超时后关闭向导，stop 关闭时直接退出
func watchdog(srv *http.Server, stop <-chan struct{}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		log.Println("Setup wizard interrupted")
	case <-time.After(wizardTimeout):
		log.Printf("Setup wizard timed out (%s), exiting...", wizardTimeout)
	case <-stop:
		return
	}
	srv.Shutdown(context.Background())
}

// routes 装配向导路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	api := map[string]http.HandlerFunc{
		"/setup/api/info":           s.handleInfo,
		"/setup/api/validate":       s.handleValidate,
		"/setup/api/apply":          s.handleApply,
		"/setup/api/init-db":        s.handleInitDB,
		"/setup/api/create-admin":   s.handleCreateAdmin,
		"/setup/api/generate-infra": s.handleGenerateInfra,
		"/setup/api/deploy-infra":   s.handleDeployInfra,
		"/setup/api/infra-status":   s.handleInfraStatus,
	}
	for path, h := range api {
		mux.HandleFunc(path, h)
	}

	mux.HandleFunc("/setup", s.handleIndex)
	mux.HandleFunc("/setup/", s.handleStatic)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/setup?token="+s.token, http.StatusFound)
	})
	return mux
}

func (s *Server) printBanner() {
	log.Println("====================================================")
	log.Println("  GenStudio API Server Setup Wizard")
	log.Println("====================================================")
	log.Printf("  Config will be saved to: %s/", s.configDir)
	log.Println()
	log.Println("  Access URLs:")
	for _, ip := range getLocalIPs() {
		log.Printf("    http://%s:%d/setup?token=%s", ip, s.port, s.token)
	}
	log.Printf("    http://localhost:%d/setup?token=%s", s.port, s.token)
	log.Println()
	log.Printf("  Token: %s", s.token)
	log.Printf("  Timeout: %s", wizardTimeout)
	log.Println("====================================================")
}

// handleIndex 返回向导页面
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := wizardAssets.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// handleStatic 静态资源
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/setup/")
	if path == "" || path == "/" {
		s.handleIndex(w, r)
		return
	}
	sub, _ := fs.Sub(wizardAssets, "static")
	http.StripPrefix("/setup/", http.FileServer(http.FS(sub))).ServeHTTP(w, r)
}

// requestToken 按 query、cookie、Authorization 头的顺序提取令牌
func requestToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if c, err := r.Cookie("setup_token"); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "token ") {
		return strings.TrimPrefix(h, "token ")
	}
	return ""
}

// tokenAuthMiddleware 校验访问令牌
//
// 静态资源放行（页面本身经带令牌的 URL 进入），API 必须带令牌。
// 校验通过后写入 cookie，页面里的后续请求免拼 query。
func (s *Server) tokenAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/setup/") && !strings.HasPrefix(r.URL.Path, "/setup/api/") {
			next.ServeHTTP(w, r)
			return
		}

		if requestToken(r) != s.token {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}

		cookie := http.Cookie{Name: "setup_token", Value: s.token, Path: "/", HttpOnly: true, MaxAge: 3600}
		http.SetCookie(w, &cookie)
		next.ServeHTTP(w, r)
	})
}

// getLocalIPs 本机非回环 IPv4 地址
func getLocalIPs() []string {
	addrs, _ := net.InterfaceAddrs()
	ips := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			ips = append(ips, ip4.String())
		}
	}
	return ips
}
