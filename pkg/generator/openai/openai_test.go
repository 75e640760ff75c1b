package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"genstudio/pkg/generator"
)

func TestImageGeneratorTypePath(t *testing.T) {
	reg, _, err := generator.Load(
		[]generator.Declaration{{
			TypePath: "openai.ImageGenerator",
			Options:  map[string]interface{}{"api_key": "test", "model": "dall-e-3"},
		}},
		generator.LoadOptions{StrictMode: true},
	)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	e, ok := reg.Get("dall-e-3")
	if !ok {
		t.Fatal("dall-e-3 not registered via type path")
	}
	if e.Generator.ArtifactType() != generator.ArtifactTypeImage {
		t.Errorf("artifact type = %s, want image", e.Generator.ArtifactType())
	}
}

func TestNewImageGeneratorRequiresAPIKey(t *testing.T) {
	if _, err := NewImageGenerator(nil); err == nil {
		t.Fatal("NewImageGenerator() expected error without api_key")
	}
	if _, err := NewImageGenerator(map[string]interface{}{"model": "dall-e-3"}); err == nil {
		t.Fatal("NewImageGenerator() expected error without api_key")
	}
}

func TestImageGeneratorShape(t *testing.T) {
	g, err := NewImageGenerator(map[string]interface{}{"api_key": "test"})
	if err != nil {
		t.Fatalf("NewImageGenerator() error = %v", err)
	}
	if err := generator.ValidateShape(g.InputShape()); err != nil {
		t.Fatalf("invalid shape: %v", err)
	}
	if fields := generator.ExtractArtifactFields(g.InputShape()); len(fields) != 0 {
		t.Errorf("text-to-image generator should have no artifact refs, got %+v", fields)
	}
}

func TestImageGeneratorGenerate(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte("png-bytes"))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		if req["prompt"] != "a lighthouse at dusk" {
			t.Errorf("prompt = %v", req["prompt"])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"created": 1700000000,
			"data":    []map[string]string{{"b64_json": b64}},
		})
	}))
	defer server.Close()

	g, err := NewImageGenerator(map[string]interface{}{
		"api_key":  "test-key",
		"api_base": server.URL,
	})
	if err != nil {
		t.Fatalf("NewImageGenerator() error = %v", err)
	}

	result, err := g.Generate(context.Background(), &generator.Request{
		GenerationID: "gen-test",
		Params:       map[string]interface{}{"prompt": "a lighthouse at dusk", "quality": "hd"},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if string(result.Data) != "png-bytes" {
		t.Errorf("Data = %q, want png-bytes", result.Data)
	}
}

func TestImageGeneratorGenerateMissingPrompt(t *testing.T) {
	g, _ := NewImageGenerator(map[string]interface{}{"api_key": "test"})
	_, err := g.Generate(context.Background(), &generator.Request{Params: map[string]interface{}{}})
	if err == nil {
		t.Fatal("Generate() expected error without prompt")
	}
}
