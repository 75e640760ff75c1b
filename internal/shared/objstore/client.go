// Package objstore 提供生成产物的 MinIO 对象存储访问。
//
// worker 完成生成后把产物写进这里；API 侧下载走限时预签名 URL，
// 引用解析也用预签名 URL 把 artifact_path 换成插件可直接拉取的地址，
// 两条路径都不暴露存储凭证。
package objstore

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"genstudio/internal/config"
)

// defaultBucket 未配置 bucket 时的落点
const defaultBucket = "genstudio"

// Client 绑定单一 bucket 的对象存储句柄
type Client struct {
	mc     *minio.Client
	bucket string
}

// NewClient 按配置建立 MinIO 连接
//
// endpoint 与密钥缺一不可；API 服务把返回的错误当作
// “对象存储未接入”降级处理，worker 则直接失败退出。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	switch {
	case cfg.Endpoint == "":
		return nil, fmt.Errorf("minio endpoint is required")
	case cfg.AccessKey == "" || cfg.SecretKey == "":
		return nil, fmt.Errorf("minio access_key and secret_key are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Secure: cfg.UseSSL,
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	c := &Client{mc: mc, bucket: cfg.Bucket}
	if c.bucket == "" {
		c.bucket = defaultBucket
	}
	return c, nil
}

// EnsureBucket 启动时确认 bucket 可用，缺失则创建
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	log.Printf("[minio] Created bucket: %s", c.bucket)
	return nil
}

// Upload 写入产物对象
func (c *Client) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}
	if _, err := c.mc.PutObject(ctx, c.bucket, key, reader, size, opts); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Delete 删除产物对象
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
}

// PresignedGetURL 生成限时下载 URL，expiry 非正时取 15 分钟
func (c *Client) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
