// Package tlsutil 自签名证书生成
//
// 首次启动时生成一个本地 CA 和由它签发的服务端证书，
// 内网部署无需申请证书即可启用 HTTPS。客户端导入 ca.pem 后
// 可完整校验链。
package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultCertDir 默认证书目录
const DefaultCertDir = "/etc/genstudio/certs"

// caValidity CA 有效期。服务端证书按 ValidFor 滚动，CA 保持长效。
const caValidity = 10 * 365 * 24 * time.Hour

// 目录下的约定文件名
const (
	caFileName   = "ca.pem"
	certFileName = "server.pem"
	keyFileName  = "server-key.pem"
)

// CertFiles 一套证书的落盘路径
type CertFiles struct {
	CAFile   string // 根证书，客户端导入后可校验完整链
	CertFile string // 服务端证书
	KeyFile  string // 服务端私钥，写盘权限 0600
}

// DefaultCertFiles 返回目录下的约定路径
func DefaultCertFiles(dir string) CertFiles {
	if dir == "" {
		dir = DefaultCertDir
	}
	return CertFiles{
		CAFile:   filepath.Join(dir, caFileName),
		CertFile: filepath.Join(dir, certFileName),
		KeyFile:  filepath.Join(dir, keyFileName),
	}
}

// CertsExist 三个文件是否齐全
func (c CertFiles) CertsExist() bool {
	for _, f := range [...]string{c.CAFile, c.CertFile, c.KeyFile} {
		_, err := os.Stat(f)
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// GenerateOptions 控制证书的主体、有效期与输出位置
type GenerateOptions struct {
	// Hosts 额外的 SANs，逗号分隔的 IP 或域名。
	// localhost、回环地址、本机 hostname 和网卡 IP 自动并入。
	Hosts string

	// Organization 证书主体组织名
	Organization string

	// ValidFor 服务端证书有效期
	ValidFor time.Duration

	// CertDir 输出目录
	CertDir string

	// Force 为 true 时无视已有文件重新生成
	Force bool
}

// DefaultGenerateOptions 内网部署的缺省参数
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Hosts:        "localhost,127.0.0.1",
		Organization: "GenStudio",
		ValidFor:     365 * 24 * time.Hour,
		CertDir:      DefaultCertDir,
	}
}

// EnsureCerts 证书齐全时直接返回路径，缺失或 Force 时生成
func EnsureCerts(opts GenerateOptions) (*CertFiles, error) {
	files := DefaultCertFiles(opts.CertDir)
	if files.CertsExist() && !opts.Force {
		log.Printf("[tls] Reusing certificates in %s", opts.CertDir)
		return &files, nil
	}

	log.Printf("[tls] Generating self-signed certificates in %s ...", opts.CertDir)
	if err := GenerateCerts(opts); err != nil {
		return nil, err
	}
	return &files, nil
}

// GenerateCerts 生成 CA 与服务端证书并写盘
func GenerateCerts(opts GenerateOptions) error {
	if opts.CertDir == "" {
		opts.CertDir = DefaultCertDir
	}
	if opts.Organization == "" {
		opts.Organization = "GenStudio"
	}
	if opts.ValidFor == 0 {
		opts.ValidFor = 365 * 24 * time.Hour
	}
	if err := os.MkdirAll(opts.CertDir, 0755); err != nil {
		return fmt.Errorf("create cert dir: %w", err)
	}

	caCert, caDER, caKey, err := newCA(opts.Organization)
	if err != nil {
		return err
	}

	sans := sanList(opts.Hosts)
	serverDER, serverKey, err := issueServerCert(caCert, caKey, opts, sans)
	if err != nil {
		return err
	}

	files := DefaultCertFiles(opts.CertDir)
	if err := writePEM(files.CAFile, "CERTIFICATE", caDER, 0644); err != nil {
		return fmt.Errorf("write CA cert: %w", err)
	}
	if err := writePEM(files.CertFile, "CERTIFICATE", serverDER, 0644); err != nil {
		return fmt.Errorf("write server cert: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(serverKey)
	if err != nil {
		return fmt.Errorf("marshal server key: %w", err)
	}
	// 私钥 600，其余公开
	if err := writePEM(files.KeyFile, "EC PRIVATE KEY", keyDER, 0600); err != nil {
		return fmt.Errorf("write server key: %w", err)
	}

	log.Printf("[tls] Generated files:")
	log.Printf("[tls]   CA cert:     %s", files.CAFile)
	log.Printf("[tls]   Server cert: %s (SANs: %s)", files.CertFile, strings.Join(sans, ", "))
	log.Printf("[tls]   Server key:  %s", files.KeyFile)
	log.Printf("[tls]   Valid for:   %s", opts.ValidFor)
	return nil
}

// newCA 生成自签名 CA
func newCA(org string) (*x509.Certificate, []byte, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generate CA key: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: randomSerial(),
		Subject: pkix.Name{
			Organization: []string{org},
			CommonName:   org + " CA",
		},
		// 回拨 1 小时，容忍新机器的时钟偏差
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(caValidity),
		IsCA:                  true,
		MaxPathLen:            1,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create CA cert: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse CA cert: %w", err)
	}
	return cert, der, key, nil
}

// issueServerCert 由 CA 签发服务端证书
func issueServerCert(ca *x509.Certificate, caKey *ecdsa.PrivateKey, opts GenerateOptions, sans []string) ([]byte, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate server key: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: randomSerial(),
		Subject: pkix.Name{
			Organization: []string{opts.Organization},
			CommonName:   "GenStudio Server",
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(opts.ValidFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	for _, s := range sans {
		if ip := net.ParseIP(s); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, s)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, fmt.Errorf("create server cert: %w", err)
	}
	return der, key, nil
}

// randomSerial 128 位随机序列号
func randomSerial() *big.Int {
	n, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	return n
}

// sanList 汇总 SANs：固定回环项 + 用户指定 + hostname + 网卡地址，去重保序
func sanList(extra string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add("localhost")
	add("127.0.0.1")
	add("::1")
	for _, h := range strings.Split(extra, ",") {
		add(h)
	}
	if hostname, err := os.Hostname(); err == nil {
		add(hostname)
	}
	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				add(ipnet.IP.String())
			}
		}
	}
	return out
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: der})
}
