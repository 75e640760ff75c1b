// Package mockgen 模拟生成器，面向开发环境与端到端测试
//
// 通过 plugin entry 机制接入：声明 plugin_entry: "mock" 即可启用。
// 不调用任何外部 Provider：按固定阶段休眠，模拟真实生成的进度节奏，
// 产物是回显输入参数的 JSON 文本，链路测试可据此断言引用解析结果。
package mockgen

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"genstudio/pkg/generator"
)

const defaultStageDelay = 200 * time.Millisecond

func init() {
	generator.PublishPlugin("mock", func(options map[string]interface{}) (generator.Generator, error) {
		return newGen(options)
	})
}

// shape 提供一个可选的 text 引用，让 mock 之间可以串成血缘链
var shape = []generator.FieldSpec{
	{Name: "prompt", Kind: generator.FieldScalar, Required: true},
	{Name: "source", Kind: generator.FieldArtifactRef, Ref: generator.ArtifactTypeText},
	{Name: "fail", Kind: generator.FieldScalar, Default: false},
}

// stages 模拟的阶段序列，对应 mock 生成的四次进度上报
var stages = []struct {
	name    string
	percent int
}{
	{"submitting", 0},
	{"generating", 30},
	{"rendering", 70},
	{"done", 100},
}

type gen struct {
	stageDelay time.Duration
}

func newGen(opts map[string]interface{}) (*gen, error) {
	g := &gen{stageDelay: defaultStageDelay}
	if ms, ok := intOption(opts, "stage_delay_ms"); ok {
		if ms < 0 {
			return nil, fmt.Errorf("stage_delay_ms must be >= 0, got %d", ms)
		}
		g.stageDelay = time.Duration(ms) * time.Millisecond
	}
	return g, nil
}

// intOption 读取整数构造参数
// YAML 解码给 int，JSON 解码给 float64，两者都接受
func intOption(opts map[string]interface{}, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func (g *gen) Name() string { return "mock" }

func (g *gen) ArtifactType() generator.ArtifactType { return generator.ArtifactTypeText }

func (g *gen) InputShape() []generator.FieldSpec { return shape }

// Generate 走完整的阶段序列后返回回显产物
// params 中 fail 为真时在 generating 阶段后返回错误，用于测试失败路径
func (g *gen) Generate(ctx context.Context, req *generator.Request) (*generator.Result, error) {
	for _, s := range stages {
		if err := g.sleep(ctx); err != nil {
			return nil, err
		}
		req.Progress(s.name, s.percent)

		if s.name == "generating" && truthy(req.Params["fail"]) {
			return nil, fmt.Errorf("mock generation failed as requested")
		}
	}

	echo := map[string]interface{}{
		"generator":    "mock",
		"prompt":       req.Params["prompt"],
		"source":       req.Params["source"],
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(echo)
	if err != nil {
		return nil, fmt.Errorf("marshal echo artifact: %w", err)
	}

	return &generator.Result{Data: data, ContentType: "application/json", FileExt: "json"}, nil
}

func (g *gen) sleep(ctx context.Context) error {
	if g.stageDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(g.stageDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "true" || x == "1"
	}
	return false
}
