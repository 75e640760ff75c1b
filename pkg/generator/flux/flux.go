// Package flux 实现 Black Forest Labs FLUX 系列图像生成器
//
// 通过 source 机制接入：声明 source: "flux" 时，RegisterSource 注册的
// hook 一次注册 flux-pro 与 flux-dev 两个生成器。
// API 为提交-轮询模式：POST 创建任务，轮询 get_result 直到 Ready。
package flux

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"genstudio/pkg/generator"
)

const (
	defaultAPIBase      = "https://api.bfl.ml"
	defaultPollInterval = 2 * time.Second
	defaultTimeout      = 5 * time.Minute
)

func init() {
	generator.RegisterSource("flux", func(r *generator.SourceRegistrar) {
		opts := r.Options()
		r.Register(newGen("flux-pro", "flux-pro-1.1", opts))
		r.Register(newGen("flux-dev", "flux-dev", opts))
	})
}

// gen 单个 FLUX 模型的生成器
type gen struct {
	name         string
	model        string
	apiBase      string
	apiKey       string
	client       *http.Client
	pollInterval time.Duration
	timeout      time.Duration
}

func newGen(name, model string, opts map[string]interface{}) *gen {
	g := &gen{
		name:         name,
		model:        model,
		apiBase:      defaultAPIBase,
		client:       &http.Client{Timeout: 60 * time.Second},
		pollInterval: defaultPollInterval,
		timeout:      defaultTimeout,
	}
	if base, ok := opts["api_base"].(string); ok && base != "" {
		g.apiBase = strings.TrimRight(base, "/")
	}
	if key, ok := opts["api_key"].(string); ok {
		g.apiKey = key
	}
	return g
}

func (g *gen) Name() string { return g.name }

func (g *gen) ArtifactType() generator.ArtifactType { return generator.ArtifactTypeImage }

func (g *gen) InputShape() []generator.FieldSpec {
	return []generator.FieldSpec{
		{Name: "prompt", Kind: generator.FieldScalar, Required: true},
		{Name: "width", Kind: generator.FieldScalar, Default: 1024},
		{Name: "height", Kind: generator.FieldScalar, Default: 1024},
		{Name: "steps", Kind: generator.FieldScalar, Default: 28},
		{Name: "guidance", Kind: generator.FieldScalar, Default: 3.0},
		{Name: "seed", Kind: generator.FieldScalar},
		// img2img：引用一张已生成的图片作为底图
		{Name: "image_prompt", Kind: generator.FieldArtifactRef, Ref: generator.ArtifactTypeImage},
	}
}

// Generate 提交生成任务并轮询结果
func (g *gen) Generate(ctx context.Context, req *generator.Request) (*generator.Result, error) {
	req.Progress("submitting", 0)

	payload := map[string]interface{}{"model": g.model}
	for k, v := range req.Params {
		payload[k] = v
	}

	taskID, err := g.submit(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("flux submit: %w", err)
	}

	req.Progress("generating", 10)
	sample, err := g.poll(ctx, taskID, req)
	if err != nil {
		return nil, err
	}

	data, err := g.fetchSample(ctx, sample)
	if err != nil {
		return nil, fmt.Errorf("flux fetch sample: %w", err)
	}

	req.Progress("done", 100)
	return &generator.Result{Data: data, ContentType: "image/png", FileExt: "png"}, nil
}

// submit 创建生成任务，返回任务 ID
func (g *gen) submit(ctx context.Context, payload map[string]interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.apiBase+"/v1/"+g.model, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("empty task id in response")
	}
	return result.ID, nil
}

// poll 轮询任务状态直到 Ready，返回 sample（URL 或 base64）
func (g *gen) poll(ctx context.Context, taskID string, req *generator.Request) (string, error) {
	deadline := time.Now().Add(g.timeout)
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("flux task %s timed out", taskID)
		}

		httpReq, err := http.NewRequestWithContext(ctx, "GET", g.apiBase+"/v1/get_result?id="+taskID, nil)
		if err != nil {
			return "", err
		}
		httpReq.Header.Set("x-key", g.apiKey)

		resp, err := g.client.Do(httpReq)
		if err != nil {
			return "", err
		}

		var result struct {
			Status string `json:"status"`
			Result struct {
				Sample string `json:"sample"`
			} `json:"result"`
			Progress float64 `json:"progress"`
		}
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return "", err
		}

		switch result.Status {
		case "Ready":
			return result.Result.Sample, nil
		case "Error", "Content Moderated", "Request Moderated":
			return "", fmt.Errorf("flux task %s failed: %s", taskID, result.Status)
		default:
			if result.Progress > 0 {
				req.Progress("generating", 10+int(result.Progress*80))
			}
		}
	}
}

// fetchSample 取回产物字节：sample 可能是下载 URL，也可能是内联 base64
func (g *gen) fetchSample(ctx context.Context, sample string) ([]byte, error) {
	if strings.HasPrefix(sample, "http://") || strings.HasPrefix(sample, "https://") {
		httpReq, err := http.NewRequestWithContext(ctx, "GET", sample, nil)
		if err != nil {
			return nil, err
		}
		resp, err := g.client.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("sample download status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return base64.StdEncoding.DecodeString(sample)
}
