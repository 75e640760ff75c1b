// Package sysinstall 收拢服务在宿主机上的安装约定
//
// 二进制直装和 deb 包走同一套路径与账号约定，setup 向导在
// root 模式下通过本包落地 systemd 部署：建账号、建目录、
// 写 unit 文件、探测运行环境。
package sysinstall

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
)

// 目录布局沿用 FHS：配置、数据、日志各归其位
const (
	// ServiceUser 运行服务的系统账号
	ServiceUser = "genstudio"
	// ConfigDir 配置根目录
	ConfigDir = "/etc/genstudio"
	// DataDir 运行数据目录（SQLite 库、产物文件）
	DataDir = "/var/lib/genstudio"
	// LogDir 日志目录
	LogDir = "/var/log/genstudio"
	// CertsSubDir ConfigDir 下的证书子目录
	CertsSubDir = "certs"
)

// EnsureSystemUser 保证服务账号存在，重复调用无副作用
func EnsureSystemUser() error {
	if _, err := user.Lookup(ServiceUser); err == nil {
		return nil
	}

	out, err := exec.Command("useradd",
		"--system",
		"--no-create-home",
		"--shell", "/usr/sbin/nologin",
		ServiceUser,
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("create system user %s: %v (%s)", ServiceUser, err, strings.TrimSpace(string(out)))
	}

	log.Printf("System user %s created", ServiceUser)
	return nil
}

// serviceDirs 安装需要保证存在的目录
func serviceDirs() []string {
	return []string{
		ConfigDir,
		filepath.Join(ConfigDir, CertsSubDir),
		DataDir,
		filepath.Join(DataDir, "artifacts"),
		LogDir,
	}
}

// EnsureDirectories 创建目录树并把所有权交给服务账号
func EnsureDirectories() error {
	dirs := serviceDirs()
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	// 账号还没建出来时跳过 chown，目录本身已经可用
	if u, err := user.Lookup(ServiceUser); err == nil {
		for _, dir := range dirs {
			chownRecursive(dir, u.Uid, u.Gid)
		}
	}
	return nil
}

// chownRecursive 尽力而为地递归改所有权，个别文件失败不阻塞安装
func chownRecursive(path, uid, gid string) {
	exec.Command("chown", "-R", uid+":"+gid, path).Run()
}

// InstallSystemdService 写入 unit 文件并设为开机自启
//
// daemon-reload 让 systemd 看到新 unit；启动时机交给调用方。
func InstallSystemdService(serviceName, serviceContent string) error {
	unitPath := filepath.Join("/etc/systemd/system", serviceName+".service")
	if err := os.WriteFile(unitPath, []byte(serviceContent), 0644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}

	for _, args := range [][]string{
		{"daemon-reload"},
		{"enable", serviceName},
	} {
		if err := exec.Command("systemctl", args...).Run(); err != nil {
			return fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
		}
	}

	log.Printf("Systemd unit installed at %s", unitPath)
	return nil
}

// unitTemplate 的空位依次为：描述、After 列表、账号 x2、
// EnvironmentFile 行（可为空串）、二进制路径、配置目录、
// 可写路径列表、SyslogIdentifier。
const unitTemplate = `[Unit]
Description=%s
Wants=network-online.target
After=%s

[Service]
Type=simple
User=%s
Group=%s
%sExecStart=%s --config %s

# 沙箱：只放开自家目录的写权限
NoNewPrivileges=true
PrivateTmp=true
ProtectHome=true
ProtectSystem=strict
ReadWritePaths=%s /tmp

Restart=always
RestartSec=3
StartLimitIntervalSec=60
StartLimitBurst=5

StandardOutput=journal
StandardError=journal
SyslogIdentifier=%s

[Install]
WantedBy=multi-user.target
`

// GenerateServiceFile 渲染 systemd unit 文件内容
//
// binaryPath 传 os.Executable() 解析后的真实路径；extraAfter
// 追加数据库等启动依赖（如 "postgresql.service redis.service"）；
// envFile 为空则不写 EnvironmentFile 行。
func GenerateServiceFile(binaryPath, serviceName, description, envFile, extraAfter string) string {
	after := "network-online.target"
	if extraAfter != "" {
		after += " " + extraAfter
	}

	var envLine string
	if envFile != "" {
		envLine = "EnvironmentFile=-" + envFile + "\n"
	}

	writable := strings.Join([]string{ConfigDir, DataDir, LogDir}, " ")
	return fmt.Sprintf(unitTemplate,
		description, after,
		ServiceUser, ServiceUser,
		envLine, binaryPath, ConfigDir,
		writable, serviceName)
}

// GetExecutablePath 返回当前二进制解析符号链接后的真实路径
func GetExecutablePath() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if real, err := filepath.EvalSymlinks(exe); err == nil {
		return real
	}
	return exe
}

// IsRoot 是否以 root 运行
func IsRoot() bool {
	return os.Getuid() == 0
}

// IsUnderSystemd 是否由 systemd 拉起
//
// systemd 会给子进程注入 INVOCATION_ID；兜底再看父进程是否为 1 号。
func IsUnderSystemd() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getppid() == 1
}

// HasSystemd 宿主机上是否有 systemctl 可用
func HasSystemd() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}

// SetFileOwnership 把文件或目录树的所有权交给服务账号
func SetFileOwnership(path string) {
	u, err := user.Lookup(ServiceUser)
	if err != nil {
		return
	}
	chownRecursive(path, u.Uid, u.Gid)
}

// SetSecureFilePermissions 收紧敏感文件权限为 root:genstudio 0640
func SetSecureFilePermissions(path string) {
	os.Chmod(path, 0640)
	if u, err := user.Lookup(ServiceUser); err == nil {
		exec.Command("chown", "root:"+u.Gid, path).Run()
	}
}
