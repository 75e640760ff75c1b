// Package veo 实现 Veo 3.1 视频生成器
//
// 通过 plugin entry 机制接入：init() 发布两个入口，
// 声明 plugin_entry: "veo31-text-to-video" 或
// "veo31-first-last-frame-to-video" 即可启用。
// 首尾帧入口引用两张已生成的图片作为视频的第一帧与最后一帧。
package veo

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
	defaultAPIBase      = "https://generativelanguage.googleapis.com"
	defaultModel        = "veo-3.1"
	defaultPollInterval = 5 * time.Second
	defaultTimeout      = 15 * time.Minute
)

func init() {
	generator.PublishPlugin("veo31-text-to-video", func(options map[string]interface{}) (generator.Generator, error) {
		return newGen("veo31-text-to-video", textToVideoShape, options)
	})
	generator.PublishPlugin("veo31-first-last-frame-to-video", func(options map[string]interface{}) (generator.Generator, error) {
		return newGen("veo31-first-last-frame-to-video", firstLastFrameShape, options)
	})
}

// textToVideoShape 纯文本生视频
var textToVideoShape = []generator.FieldSpec{
	{Name: "prompt", Kind: generator.FieldScalar, Required: true},
	{Name: "duration_seconds", Kind: generator.FieldScalar, Default: 8},
	{Name: "resolution", Kind: generator.FieldScalar, Default: "1080p"},
	{Name: "negative_prompt", Kind: generator.FieldScalar},
}

// firstLastFrameShape 首尾帧生视频：两个引用字段的声明顺序决定血缘顺序
var firstLastFrameShape = []generator.FieldSpec{
	{Name: "prompt", Kind: generator.FieldScalar, Required: true},
	{Name: "first_frame", Kind: generator.FieldArtifactRef, Ref: generator.ArtifactTypeImage, Required: true},
	{Name: "last_frame", Kind: generator.FieldArtifactRef, Ref: generator.ArtifactTypeImage, Required: true},
	{Name: "duration_seconds", Kind: generator.FieldScalar, Default: 8},
	{Name: "resolution", Kind: generator.FieldScalar, Default: "1080p"},
}

// gen 单个 Veo 入口的生成器
type gen struct {
	name         string
	model        string
	apiBase      string
	apiKey       string
	shape        []generator.FieldSpec
	client       *http.Client
	pollInterval time.Duration
	timeout      time.Duration
}

func newGen(name string, shape []generator.FieldSpec, opts map[string]interface{}) (*gen, error) {
	g := &gen{
		name:         name,
		model:        defaultModel,
		apiBase:      defaultAPIBase,
		shape:        shape,
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
	if model, ok := opts["model"].(string); ok && model != "" {
		g.model = model
	}
	return g, nil
}

func (g *gen) Name() string { return g.name }

func (g *gen) ArtifactType() generator.ArtifactType { return generator.ArtifactTypeVideo }

func (g *gen) InputShape() []generator.FieldSpec { return g.shape }

// Generate 提交长时操作并轮询完成
func (g *gen) Generate(ctx context.Context, req *generator.Request) (*generator.Result, error) {
	req.Progress("submitting", 0)

	opName, err := g.submit(ctx, req.Params)
	if err != nil {
		return nil, fmt.Errorf("veo submit: %w", err)
	}

	req.Progress("generating", 5)
	videoURI, err := g.waitOperation(ctx, opName, req)
	if err != nil {
		return nil, err
	}

	data, err := g.download(ctx, videoURI)
	if err != nil {
		return nil, fmt.Errorf("veo download: %w", err)
	}

	req.Progress("done", 100)
	return &generator.Result{Data: data, ContentType: "video/mp4", FileExt: "mp4"}, nil
}

func (g *gen) submit(ctx context.Context, params map[string]interface{}) (string, error) {
	payload := map[string]interface{}{"instances": []interface{}{params}}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:predictLongRunning", g.apiBase, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

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
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Name == "" {
		return "", fmt.Errorf("empty operation name in response")
	}
	return result.Name, nil
}

// waitOperation 轮询长时操作直到 done，返回视频 URI 或内联 base64
func (g *gen) waitOperation(ctx context.Context, opName string, req *generator.Request) (string, error) {
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
			return "", fmt.Errorf("veo operation %s timed out", opName)
		}

		httpReq, err := http.NewRequestWithContext(ctx, "GET", g.apiBase+"/v1beta/"+opName, nil)
		if err != nil {
			return "", err
		}
		httpReq.Header.Set("x-goog-api-key", g.apiKey)

		resp, err := g.client.Do(httpReq)
		if err != nil {
			return "", err
		}

		var result struct {
			Done  bool `json:"done"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
			Response struct {
				GenerateVideoResponse struct {
					GeneratedSamples []struct {
						Video struct {
							URI          string `json:"uri"`
							EncodedVideo string `json:"encodedVideo"`
						} `json:"video"`
					} `json:"generatedSamples"`
				} `json:"generateVideoResponse"`
			} `json:"response"`
		}
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return "", err
		}

		if !result.Done {
			req.Progress("generating", 20)
			continue
		}
		if result.Error != nil {
			return "", fmt.Errorf("veo operation %s failed: %s", opName, result.Error.Message)
		}
		samples := result.Response.GenerateVideoResponse.GeneratedSamples
		if len(samples) == 0 {
			return "", fmt.Errorf("veo operation %s returned no samples", opName)
		}
		if samples[0].Video.URI != "" {
			return samples[0].Video.URI, nil
		}
		return samples[0].Video.EncodedVideo, nil
	}
}

func (g *gen) download(ctx context.Context, uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return base64.StdEncoding.DecodeString(uri)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "GET", uri, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video download status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
