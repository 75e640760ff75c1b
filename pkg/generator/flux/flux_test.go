package flux

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"genstudio/pkg/generator"
)

func TestFluxSourceRegistersBothModels(t *testing.T) {
	reg, summary, err := generator.Load(
		[]generator.Declaration{{Source: "flux", Options: map[string]interface{}{"api_key": "test"}}},
		generator.LoadOptions{StrictMode: true},
	)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if summary.Registered != 2 {
		t.Fatalf("Registered = %d, want 2", summary.Registered)
	}
	for _, name := range []string{"flux-pro", "flux-dev"} {
		e, ok := reg.Get(name)
		if !ok {
			t.Fatalf("%s not registered", name)
		}
		if e.Generator.ArtifactType() != generator.ArtifactTypeImage {
			t.Errorf("%s artifact type = %s, want image", name, e.Generator.ArtifactType())
		}
	}
}

func TestFluxInputShape(t *testing.T) {
	g := newGen("flux-pro", "flux-pro-1.1", nil)
	if err := generator.ValidateShape(g.InputShape()); err != nil {
		t.Fatalf("invalid shape: %v", err)
	}

	fields := generator.ExtractArtifactFields(g.InputShape())
	if len(fields) != 1 || fields[0].Name != "image_prompt" || fields[0].Ref != generator.ArtifactTypeImage {
		t.Errorf("artifact fields = %+v, want single image_prompt image ref", fields)
	}
}

func TestFluxGenerate(t *testing.T) {
	sample := base64.StdEncoding.EncodeToString([]byte("png-bytes"))

	var polls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/v1/flux-pro-1.1":
			if r.Header.Get("x-key") != "test-key" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			if body["prompt"] != "a red fox" {
				t.Errorf("prompt = %v, want a red fox", body["prompt"])
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "task-1"})
		case r.Method == "GET" && r.URL.Path == "/v1/get_result":
			polls++
			if polls < 2 {
				json.NewEncoder(w).Encode(map[string]interface{}{"status": "Pending", "progress": 0.5})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "Ready",
				"result": map[string]string{"sample": sample},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	g := newGen("flux-pro", "flux-pro-1.1", map[string]interface{}{
		"api_base": server.URL,
		"api_key":  "test-key",
	})
	g.pollInterval = 10 * time.Millisecond

	result, err := g.Generate(context.Background(), &generator.Request{
		GenerationID: "gen-test",
		Params:       map[string]interface{}{"prompt": "a red fox", "width": 1024},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if string(result.Data) != "png-bytes" {
		t.Errorf("Data = %q, want png-bytes", result.Data)
	}
	if result.ContentType != "image/png" || result.FileExt != "png" {
		t.Errorf("result meta = %s/%s, want image/png", result.ContentType, result.FileExt)
	}
}

func TestFluxGenerateTaskFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			json.NewEncoder(w).Encode(map[string]string{"id": "task-2"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "Error"})
	}))
	defer server.Close()

	g := newGen("flux-dev", "flux-dev", map[string]interface{}{"api_base": server.URL})
	g.pollInterval = 10 * time.Millisecond

	_, err := g.Generate(context.Background(), &generator.Request{Params: map[string]interface{}{"prompt": "x"}})
	if err == nil {
		t.Fatal("Generate() expected error for failed task")
	}
}

func TestFluxGenerateCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			json.NewEncoder(w).Encode(map[string]string{"id": "task-3"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "Pending"})
	}))
	defer server.Close()

	g := newGen("flux-pro", "flux-pro-1.1", map[string]interface{}{"api_base": server.URL})
	g.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, &generator.Request{Params: map[string]interface{}{"prompt": "x"}})
	if err == nil {
		t.Fatal("Generate() expected context error")
	}
}
