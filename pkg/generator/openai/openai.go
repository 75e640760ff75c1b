// Package openai 实现 OpenAI 图像生成器
//
// 通过 type_path 机制接入：声明 type_path: "openai.ImageGenerator"，
// 工厂按 options 构造实例，加载器断言其满足 Generator 契约。
// 默认注册名取 model 选项（如 "dall-e-3"），可用声明的 name 覆盖。
package openai

import (
	"context"
	"encoding/base64"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"genstudio/pkg/generator"
)

func init() {
	generator.RegisterType("openai.ImageGenerator", func(options map[string]interface{}) (interface{}, error) {
		return NewImageGenerator(options)
	})
}

// ImageGenerator OpenAI 图像生成器（DALL·E / gpt-image 系列）
type ImageGenerator struct {
	model  string
	size   string
	client *goopenai.Client
}

// NewImageGenerator 按 options 构造实例
//
// options:
//   - api_key: OpenAI API Key（必填）
//   - api_base: 自定义 API 地址（兼容网关场景，可选）
//   - model: 模型名，默认 "dall-e-3"
//   - size: 输出尺寸，默认 "1024x1024"
func NewImageGenerator(options map[string]interface{}) (*ImageGenerator, error) {
	apiKey, _ := options["api_key"].(string)
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api_key option is required")
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if base, ok := options["api_base"].(string); ok && base != "" {
		cfg.BaseURL = base
	}

	g := &ImageGenerator{
		model:  goopenai.CreateImageModelDallE3,
		size:   goopenai.CreateImageSize1024x1024,
		client: goopenai.NewClientWithConfig(cfg),
	}
	if model, ok := options["model"].(string); ok && model != "" {
		g.model = model
	}
	if size, ok := options["size"].(string); ok && size != "" {
		g.size = size
	}
	return g, nil
}

func (g *ImageGenerator) Name() string { return g.model }

func (g *ImageGenerator) ArtifactType() generator.ArtifactType { return generator.ArtifactTypeImage }

func (g *ImageGenerator) InputShape() []generator.FieldSpec {
	return []generator.FieldSpec{
		{Name: "prompt", Kind: generator.FieldScalar, Required: true},
		{Name: "size", Kind: generator.FieldScalar, Default: "1024x1024"},
		{Name: "quality", Kind: generator.FieldScalar, Default: "standard"},
		{Name: "style", Kind: generator.FieldScalar},
	}
}

// Generate 调用 CreateImage，产物以 base64 返回后解码
func (g *ImageGenerator) Generate(ctx context.Context, req *generator.Request) (*generator.Result, error) {
	prompt, _ := req.Params["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("openai: prompt is required")
	}

	imgReq := goopenai.ImageRequest{
		Prompt:         prompt,
		Model:          g.model,
		N:              1,
		Size:           g.size,
		ResponseFormat: goopenai.CreateImageResponseFormatB64JSON,
	}
	if size, ok := req.Params["size"].(string); ok && size != "" {
		imgReq.Size = size
	}
	if quality, ok := req.Params["quality"].(string); ok && quality != "" {
		imgReq.Quality = quality
	}
	if style, ok := req.Params["style"].(string); ok && style != "" {
		imgReq.Style = style
	}

	req.Progress("generating", 10)
	resp, err := g.client.CreateImage(ctx, imgReq)
	if err != nil {
		return nil, fmt.Errorf("openai create image: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai: empty image response")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("openai decode image: %w", err)
	}

	req.Progress("done", 100)
	return &generator.Result{Data: data, ContentType: "image/png", FileExt: "png"}, nil
}
