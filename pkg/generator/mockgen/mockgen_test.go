package mockgen

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"genstudio/pkg/generator"
)

func newTestGen(t *testing.T) *gen {
	t.Helper()
	g, err := newGen(map[string]interface{}{"stage_delay_ms": 0})
	if err != nil {
		t.Fatalf("newGen: %v", err)
	}
	return g
}

func TestGenerate(t *testing.T) {
	g := newTestGen(t)

	var gotStages []string
	req := &generator.Request{
		GenerationID: "gen-mock-1",
		Params: map[string]interface{}{
			"prompt": "hello",
			"source": "https://minio.local/generations/gen-up/artifact.json",
		},
		Report: func(stage string, percent int) {
			gotStages = append(gotStages, stage)
		},
	}

	result, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.ContentType != "application/json" || result.FileExt != "json" {
		t.Errorf("产物元信息 = (%s, %s), 期望 (application/json, json)", result.ContentType, result.FileExt)
	}

	var echo map[string]interface{}
	if err := json.Unmarshal(result.Data, &echo); err != nil {
		t.Fatalf("产物不是合法 JSON: %v", err)
	}
	if echo["prompt"] != "hello" {
		t.Errorf("回显 prompt = %v, 期望 hello", echo["prompt"])
	}
	if echo["source"] != "https://minio.local/generations/gen-up/artifact.json" {
		t.Errorf("回显 source = %v", echo["source"])
	}

	want := []string{"submitting", "generating", "rendering", "done"}
	if len(gotStages) != len(want) {
		t.Fatalf("进度阶段 = %v, 期望 %v", gotStages, want)
	}
	for i, s := range want {
		if gotStages[i] != s {
			t.Errorf("阶段[%d] = %s, 期望 %s", i, gotStages[i], s)
		}
	}
}

func TestGenerateFailRequested(t *testing.T) {
	g := newTestGen(t)

	req := &generator.Request{
		GenerationID: "gen-mock-2",
		Params:       map[string]interface{}{"prompt": "x", "fail": true},
	}
	if _, err := g.Generate(context.Background(), req); err == nil {
		t.Fatal("fail=true 时 Generate 应返回错误")
	}
}

func TestGenerateCancelled(t *testing.T) {
	g, err := newGen(map[string]interface{}{"stage_delay_ms": 5000})
	if err != nil {
		t.Fatalf("newGen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Generate(ctx, &generator.Request{Params: map[string]interface{}{"prompt": "x"}})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("取消后错误 = %v, 期望 context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("取消后 Generate 未及时返回")
	}
}

func TestOptions(t *testing.T) {
	// JSON 解码的数值是 float64，也要能接受
	g, err := newGen(map[string]interface{}{"stage_delay_ms": float64(50)})
	if err != nil {
		t.Fatalf("newGen(float64): %v", err)
	}
	if g.stageDelay != 50*time.Millisecond {
		t.Errorf("stageDelay = %v, 期望 50ms", g.stageDelay)
	}

	if _, err := newGen(map[string]interface{}{"stage_delay_ms": -1}); err == nil {
		t.Error("负的 stage_delay_ms 应返回错误")
	}

	g, err = newGen(nil)
	if err != nil {
		t.Fatalf("newGen(nil): %v", err)
	}
	if g.stageDelay != defaultStageDelay {
		t.Errorf("默认 stageDelay = %v, 期望 %v", g.stageDelay, defaultStageDelay)
	}
}

func TestShape(t *testing.T) {
	g := newTestGen(t)

	if g.Name() != "mock" {
		t.Errorf("Name = %q", g.Name())
	}
	if g.ArtifactType() != generator.ArtifactTypeText {
		t.Errorf("ArtifactType = %q, 期望 text", g.ArtifactType())
	}
	if err := generator.ValidateShape(g.InputShape()); err != nil {
		t.Errorf("InputShape 未通过校验: %v", err)
	}

	refs := generator.ExtractArtifactFields(g.InputShape())
	if len(refs) != 1 || refs[0].Name != "source" || refs[0].IsList {
		t.Errorf("引用字段视图 = %+v, 期望单个非列表 source", refs)
	}
}
