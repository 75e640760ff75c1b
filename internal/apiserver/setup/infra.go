package setup

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ========== Infrastructure Deployment ==========
//
// 为没有现成 MongoDB/Redis/MinIO 的机器提供一键部署：
// 生成 <configDir>/infra/docker-compose.yml + .env（随机凭据），
// 然后通过 docker compose 启动。重复生成时复用已有凭据，
// 避免数据卷里的旧密码与新生成的凭据脱节。

// infraComposeTemplate 基础设施编排模板
// 凭据全部经 .env 注入，container_name 固定以便状态探测
const infraComposeTemplate = `# GenStudio infrastructure (generated by setup wizard)
services:
  mongo:
    image: mongo:7
    container_name: genstudio-mongo
    restart: unless-stopped
    environment:
      MONGO_INITDB_ROOT_USERNAME: ${MONGO_ROOT_USERNAME}
      MONGO_INITDB_ROOT_PASSWORD: ${MONGO_ROOT_PASSWORD}
    volumes:
      - genstudio-mongo-data:/data/db
    ports:
      - "${MONGO_PORT}:27017"
    healthcheck:
      test: ["CMD", "mongosh", "--quiet", "--eval", "db.runCommand('ping').ok"]
      interval: 10s
      timeout: 5s
      retries: 5

  redis:
    image: redis:7-alpine
    container_name: genstudio-redis
    restart: unless-stopped
    command: ["redis-server", "--appendonly", "yes", "--requirepass", "${REDIS_PASSWORD}"]
    volumes:
      - genstudio-redis-data:/data
    ports:
      - "${REDIS_PORT}:6379"
    healthcheck:
      test: ["CMD", "redis-cli", "-a", "${REDIS_PASSWORD}", "ping"]
      interval: 10s
      timeout: 5s
      retries: 5

  minio:
    image: minio/minio:RELEASE.2024-12-18T13-15-44Z
    container_name: genstudio-minio
    restart: unless-stopped
    command: ["server", "/data", "--console-address", ":9001"]
    environment:
      MINIO_ROOT_USER: ${MINIO_ROOT_USER}
      MINIO_ROOT_PASSWORD: ${MINIO_ROOT_PASSWORD}
    volumes:
      - genstudio-minio-data:/data
    ports:
      - "${MINIO_API_PORT}:9000"
      - "${MINIO_CONSOLE_PORT}:9001"
    healthcheck:
      test: ["CMD", "mc", "ready", "local"]
      interval: 10s
      timeout: 5s
      retries: 5

volumes:
  genstudio-mongo-data:
  genstudio-redis-data:
  genstudio-minio-data:
`

// infraServices 状态探测的容器名 → 服务名
var infraServices = map[string]string{
	"mongo": "genstudio-mongo",
	"redis": "genstudio-redis",
	"minio": "genstudio-minio",
}

// handleGenerateInfra POST /setup/api/generate-infra
func (s *Server) handleGenerateInfra(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req InfraGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonResp(w, http.StatusBadRequest, InfraGenerateResponse{Message: "Invalid JSON: " + err.Error()})
		return
	}
	if req.MongoPort == 0 {
		req.MongoPort = 27017
	}
	if req.RedisPort == 0 {
		req.RedisPort = 6379
	}
	if req.MinIOAPIPort == 0 {
		req.MinIOAPIPort = 9000
	}
	if req.MinIOConsolePort == 0 {
		req.MinIOConsolePort = 9001
	}

	infraDir := filepath.Join(s.configDir, "infra")
	if err := os.MkdirAll(infraDir, 0755); err != nil {
		jsonResp(w, http.StatusInternalServerError, InfraGenerateResponse{Message: "Cannot create infra dir: " + err.Error()})
		return
	}

	composeFile := filepath.Join(infraDir, "docker-compose.yml")
	envFile := filepath.Join(infraDir, ".env")

	// 复用已有凭据：数据卷里的旧密码必须继续有效
	creds := readEnvFile(envFile)
	mongoUser := credOr(creds, "MONGO_ROOT_USERNAME", "genstudio")
	mongoPassword := credOr(creds, "MONGO_ROOT_PASSWORD", "")
	redisPassword := credOr(creds, "REDIS_PASSWORD", "")
	minioUser := credOr(creds, "MINIO_ROOT_USER", "genstudio")
	minioPassword := credOr(creds, "MINIO_ROOT_PASSWORD", "")
	if mongoPassword == "" {
		mongoPassword = generateRandomString(24)
	}
	if redisPassword == "" {
		redisPassword = generateRandomString(24)
	}
	if minioPassword == "" {
		minioPassword = generateRandomString(24)
	}

	var b strings.Builder
	b.WriteString("# GenStudio infrastructure credentials (generated by setup wizard)\n")
	fmt.Fprintf(&b, "MONGO_ROOT_USERNAME=%s\n", mongoUser)
	fmt.Fprintf(&b, "MONGO_ROOT_PASSWORD=%s\n", mongoPassword)
	fmt.Fprintf(&b, "MONGO_PORT=%d\n", req.MongoPort)
	fmt.Fprintf(&b, "REDIS_PASSWORD=%s\n", redisPassword)
	fmt.Fprintf(&b, "REDIS_PORT=%d\n", req.RedisPort)
	fmt.Fprintf(&b, "MINIO_ROOT_USER=%s\n", minioUser)
	fmt.Fprintf(&b, "MINIO_ROOT_PASSWORD=%s\n", minioPassword)
	fmt.Fprintf(&b, "MINIO_API_PORT=%d\n", req.MinIOAPIPort)
	fmt.Fprintf(&b, "MINIO_CONSOLE_PORT=%d\n", req.MinIOConsolePort)

	if err := os.WriteFile(envFile, []byte(b.String()), 0600); err != nil {
		jsonResp(w, http.StatusInternalServerError, InfraGenerateResponse{Message: "Failed to write .env: " + err.Error()})
		return
	}
	if err := os.WriteFile(composeFile, []byte(infraComposeTemplate), 0644); err != nil {
		jsonResp(w, http.StatusInternalServerError, InfraGenerateResponse{Message: "Failed to write docker-compose.yml: " + err.Error()})
		return
	}

	s.infra.mu.Lock()
	s.infra.generated = true
	s.infra.composeFile = composeFile
	s.infra.envFile = envFile
	s.infra.mu.Unlock()

	log.Printf("Infrastructure files generated in %s/", infraDir)

	jsonResp(w, http.StatusOK, InfraGenerateResponse{
		Success:          true,
		Message:          "Infrastructure files generated.",
		MongoUser:        mongoUser,
		MongoPassword:    mongoPassword,
		MongoPort:        req.MongoPort,
		RedisPassword:    redisPassword,
		RedisPort:        req.RedisPort,
		MinIOUser:        minioUser,
		MinIOPassword:    minioPassword,
		MinIOAPIPort:     req.MinIOAPIPort,
		MinIOConsolePort: req.MinIOConsolePort,
		ComposeFile:      composeFile,
		EnvFile:          envFile,
	})
}

// handleDeployInfra POST /setup/api/deploy-infra
func (s *Server) handleDeployInfra(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	s.infra.mu.Lock()
	composeFile, envFile := s.infra.composeFile, s.infra.envFile
	generated, deploying := s.infra.generated, s.infra.deploying
	s.infra.mu.Unlock()

	if !generated {
		jsonResp(w, http.StatusBadRequest, InfraDeployResponse{
			Message: "Infrastructure files not generated yet. Call generate-infra first.",
		})
		return
	}
	if deploying {
		jsonResp(w, http.StatusOK, InfraDeployResponse{
			Success: true,
			Message: "Deployment already in progress.",
		})
		return
	}

	composeCmd := findDockerCompose()
	if composeCmd == "" {
		jsonResp(w, http.StatusOK, InfraDeployResponse{
			Message: "docker compose not found. Install Docker first: https://docs.docker.com/engine/install/",
		})
		return
	}

	s.infra.mu.Lock()
	s.infra.deploying = true
	s.infra.deployErr = ""
	s.infra.mu.Unlock()

	go func() {
		args := strings.Fields(composeCmd)
		args = append(args, "-f", composeFile, "--env-file", envFile, "up", "-d", "--wait")
		log.Printf("Deploying infrastructure: %s", strings.Join(args, " "))

		cmd := exec.Command(args[0], args[1:]...)
		out, err := cmd.CombinedOutput()

		s.infra.mu.Lock()
		s.infra.deploying = false
		s.infra.deployOutput = string(out)
		if err != nil {
			s.infra.deployErr = err.Error()
			log.Printf("Infrastructure deploy failed: %v\n%s", err, out)
		} else {
			log.Printf("Infrastructure deployed successfully")
		}
		s.infra.mu.Unlock()
	}()

	jsonResp(w, http.StatusOK, InfraDeployResponse{
		Success: true,
		Message: "Deployment started. Poll infra-status for progress.",
	})
}

// handleInfraStatus GET /setup/api/infra-status
func (s *Server) handleInfraStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	s.infra.mu.Lock()
	generated, deploying := s.infra.generated, s.infra.deploying
	deployErr, deployOutput := s.infra.deployErr, s.infra.deployOutput
	s.infra.mu.Unlock()

	// 未生成且磁盘上也没有历史产物 → 未部署
	if !generated {
		composeFile := filepath.Join(s.configDir, "infra", "docker-compose.yml")
		if _, err := os.Stat(composeFile); err != nil {
			jsonResp(w, http.StatusOK, InfraStatusResponse{Status: "not_deployed"})
			return
		}
	}

	if deployErr != "" {
		jsonResp(w, http.StatusOK, InfraStatusResponse{
			Status:  "error",
			Message: deployErr + "\n" + deployOutput,
		})
		return
	}

	services := make(map[string]ServiceStatus)
	anyRunning := false
	allHealthy := true
	anyStarting := false
	for name, container := range infraServices {
		st := inspectContainer(container)
		services[name] = st
		if st.Running {
			anyRunning = true
		}
		if st.Health == "starting" {
			anyStarting = true
		}
		if !st.Running || (st.Health != "healthy" && st.Health != "none") {
			allHealthy = false
		}
	}

	status := "unhealthy"
	switch {
	case !anyRunning && !deploying:
		status = "not_deployed"
	case deploying || anyStarting:
		status = "starting"
	case allHealthy:
		status = "healthy"
	}

	jsonResp(w, http.StatusOK, InfraStatusResponse{Status: status, Services: services})
}

// inspectContainer 查询单个容器的运行与健康状态
func inspectContainer(name string) ServiceStatus {
	cmd := exec.Command("docker", "inspect", "--format",
		"{{.State.Running}} {{if .State.Health}}{{.State.Health.Status}}{{else}}none{{end}}", name)
	out, err := cmd.Output()
	if err != nil {
		return ServiceStatus{Running: false, Health: "none"}
	}
	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) != 2 {
		return ServiceStatus{Running: false, Health: "none"}
	}
	return ServiceStatus{Running: fields[0] == "true", Health: fields[1]}
}

// findDockerCompose 定位 docker compose 命令
// 优先 v2 插件（docker compose），回退 v1 独立二进制（docker-compose）
func findDockerCompose() string {
	if _, err := exec.LookPath("docker"); err == nil {
		probe := exec.Command("docker", "compose", "version")
		if err := probe.Run(); err == nil {
			return "docker compose"
		}
	}
	if _, err := exec.LookPath("docker-compose"); err == nil {
		return "docker-compose"
	}
	return ""
}

// readEnvFile 解析 KEY=VALUE 格式的 env 文件（不存在时返回空 map）
func readEnvFile(path string) map[string]string {
	out := make(map[string]string)
	f, err := os.Open(path)
	if err != nil {
		return out
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if found {
			out[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return out
}

// credOr 返回已有凭据，缺失时用默认值
func credOr(creds map[string]string, key, fallback string) string {
	if v := creds[key]; v != "" {
		return v
	}
	return fallback
}
