package setup

import "sync"

// 向导各步骤的请求/响应契约。字段名与 static/index.html 里
// payload() 构造的 JSON 一致，改这里要同步改前端。

// ========== 第一步：环境探测 ==========

// InfoResponse GET /setup/api/info 响应
type InfoResponse struct {
	Hostname string   `json:"hostname"`
	IPs      []string `json:"ips"`
	IsRoot   bool     `json:"is_root"` // 前端据此显示 systemd 安装选项
}

// ========== 第二步：连通性校验 / 最终应用 ==========

// ValidateRequest POST /setup/api/validate 请求体，
// /setup/api/apply 复用同一载荷。
type ValidateRequest struct {
	Database DatabaseConfig   `json:"database"`
	Redis    RedisConfig      `json:"redis"`
	MinIO    SetupMinIOConfig `json:"minio"`
	TLS      TLSConfig        `json:"tls"`
	Auth     AuthConfig       `json:"auth"`
	Server   ServerConfig     `json:"server"`
}

// DatabaseConfig 数据库连接参数
// Type 取 mongodb / postgres / sqlite，Path 仅 sqlite 使用
type DatabaseConfig struct {
	Type    string `json:"type"`
	Path    string `json:"path"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	DBName  string `json:"dbname"`
	SSLMode string `json:"sslmode"`

	User     string `json:"user"`
	Password string `json:"password"`
}

// RedisConfig Redis 连接参数
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"` // 未启用鉴权时留空
}

// SetupMinIOConfig 产物对象存储参数
//
// endpoint 留空表示不接 MinIO，产物下载退回存储路径模式。
type SetupMinIOConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
}

// TLSConfig HTTPS 参数，mode 取 auto_generate / manual
type TLSConfig struct {
	Enabled  bool   `json:"enabled"`
	Mode     string `json:"mode"`
	Hosts    string `json:"hosts,omitempty"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}

// AuthConfig 管理员账号参数
type AuthConfig struct {
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
}

// ServerConfig API 服务监听参数
type ServerConfig struct {
	Port string `json:"port"`
}

// CheckResult 单项检查结论
type CheckResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// ValidateResponse 校验结果，checks 按 database/redis/minio/auth 分项
type ValidateResponse struct {
	Valid  bool                   `json:"valid"`
	Checks map[string]CheckResult `json:"checks"`
}

// ApplyResponse 配置落盘结果
type ApplyResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ConfigDir      string `json:"config_dir"`
	SystemdInstall bool   `json:"systemd_install,omitempty"`
}

// ========== 数据库初始化 ==========

// InitDBRequest 建库建表请求，必须显式确认可能的破坏性操作
type InitDBRequest struct {
	Database       DatabaseConfig `json:"database"`
	ConfirmDestroy bool           `json:"confirm_destroy"`
}

// InitDBResponse 建库建表结果
type InitDBResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ========== 一键基础设施（docker-compose） ==========

// InfraGenerateRequest 生成 compose 编排的端口参数
type InfraGenerateRequest struct {
	MongoPort        int `json:"mongo_port"`
	MinIOAPIPort     int `json:"minio_api_port"`
	MinIOConsolePort int `json:"minio_console_port"`
	RedisPort        int `json:"redis_port"`
}

// InfraGenerateResponse 生成结果，凭据回传给前端自动填表
type InfraGenerateResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ComposeFile string `json:"compose_file"`
	EnvFile     string `json:"env_file"`

	// 随机生成的各服务凭据
	MongoUser     string `json:"mongo_user"`
	MongoPassword string `json:"mongo_password"`
	MongoPort     int    `json:"mongo_port"`

	RedisPassword string `json:"redis_password"`
	RedisPort     int    `json:"redis_port"`

	MinIOUser        string `json:"minio_user"`
	MinIOPassword    string `json:"minio_password"`
	MinIOAPIPort     int    `json:"minio_api_port"`
	MinIOConsolePort int    `json:"minio_console_port"`
}

// InfraDeployResponse compose up 触发结果
type InfraDeployResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Output  string `json:"output,omitempty"` // compose 命令合并输出，失败时排查用
}

// InfraStatusResponse 容器健康状况
// status 取 not_deployed / starting / healthy / unhealthy / error
type InfraStatusResponse struct {
	Status   string                   `json:"status"`
	Services map[string]ServiceStatus `json:"services"`
	Message  string                   `json:"message,omitempty"`
}

// ServiceStatus 单容器状况，health 取 healthy / unhealthy / starting / none
type ServiceStatus struct {
	Running bool   `json:"running"`
	Health  string `json:"health"`
}

// infraState 部署进度，挂在 Server 上跨请求共享
type infraState struct {
	mu sync.Mutex

	generated   bool
	composeFile string
	envFile     string

	deploying    bool
	deployOutput string
	deployErr    string
}
