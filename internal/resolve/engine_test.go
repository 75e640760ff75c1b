package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"genstudio/internal/shared/model"
	"genstudio/pkg/generator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore 内存存储，记录每个 ID 的读取次数
type fakeStore struct {
	gens    map[string]*model.Generation
	fetches map[string]int
	err     error
}

func newFakeStore(gens ...*model.Generation) *fakeStore {
	s := &fakeStore{gens: make(map[string]*model.Generation), fetches: make(map[string]int)}
	for _, g := range gens {
		s.gens[g.ID] = g
	}
	return s
}

func (s *fakeStore) GetGeneration(_ context.Context, id string) (*model.Generation, error) {
	s.fetches[id]++
	if s.err != nil {
		return nil, s.err
	}
	return s.gens[id], nil
}

// countingAuthorizer 记录每个 ID 的可见性判定次数
type countingAuthorizer struct {
	inner  Authorizer
	checks map[string]int
}

func newCountingAuthorizer() *countingAuthorizer {
	return &countingAuthorizer{inner: OwnershipAuthorizer{}, checks: make(map[string]int)}
}

func (a *countingAuthorizer) CanSee(caller model.Caller, gen *model.Generation) bool {
	a.checks[gen.ID]++
	return a.inner.CanSee(caller, gen)
}

// refGen 测试生成器：可配置的引用字段
type refGen struct {
	name  string
	shape []generator.FieldSpec
}

func (g *refGen) Name() string                         { return g.name }
func (g *refGen) ArtifactType() generator.ArtifactType { return generator.ArtifactTypeVideo }
func (g *refGen) InputShape() []generator.FieldSpec    { return g.shape }
func (g *refGen) Generate(_ context.Context, _ *generator.Request) (*generator.Result, error) {
	return nil, errors.New("not used in resolution tests")
}

// firstLastFrameShape veo31-first-last-frame-to-video 的字段形状
func firstLastFrameShape() []generator.FieldSpec {
	return []generator.FieldSpec{
		{Name: "prompt", Kind: generator.FieldScalar, Required: true},
		{Name: "first_frame", Kind: generator.FieldArtifactRef, Ref: generator.ArtifactTypeImage, Required: true},
		{Name: "last_frame", Kind: generator.FieldArtifactRef, Ref: generator.ArtifactTypeImage, Required: true},
	}
}

func buildRegistry(t *testing.T, gens ...generator.Generator) *generator.Registry {
	t.Helper()
	var decls []generator.Declaration
	for _, g := range gens {
		// entry 名带上测试名，避免跨用例重复发布
		entry := "resolve-test-" + t.Name() + "-" + g.Name()
		gen := g
		generator.PublishPlugin(entry, func(_ map[string]interface{}) (generator.Generator, error) {
			return gen, nil
		})
		decls = append(decls, generator.Declaration{PluginEntry: entry})
	}
	reg, _, err := generator.Load(decls, generator.LoadOptions{StrictMode: true})
	require.NoError(t, err)
	return reg
}

func completedImage(id, owner string) *model.Generation {
	path := "generations/" + id + "/artifact.png"
	now := time.Now()
	return &model.Generation{
		ID:            id,
		OwnerID:       owner,
		GeneratorName: "flux-pro",
		ArtifactType:  generator.ArtifactTypeImage,
		Status:        model.GenerationStatusCompleted,
		ArtifactPath:  &path,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestResolveLineageOrder(t *testing.T) {
	reg := buildRegistry(t, &refGen{name: "veo31-first-last-frame-to-video", shape: firstLastFrameShape()})
	store := newFakeStore(
		completedImage("gen-first", "user-1"),
		completedImage("gen-last", "user-1"),
	)
	auth := newCountingAuthorizer()
	engine := NewEngine(reg, store, auth, nil)

	caller := model.Caller{UserID: "user-1"}
	resolved, lineage, err := engine.Resolve(context.Background(), "veo31-first-last-frame-to-video",
		map[string]interface{}{
			"prompt":      "sunrise over the bay",
			"first_frame": "gen-first",
			"last_frame":  "gen-last",
		}, caller)
	require.NoError(t, err)

	// 血缘顺序 = 字段声明顺序
	require.Len(t, lineage, 2)
	assert.Equal(t, model.InputArtifact{SourceGenerationID: "gen-first", Role: "first_frame", ArtifactType: generator.ArtifactTypeImage}, lineage[0])
	assert.Equal(t, model.InputArtifact{SourceGenerationID: "gen-last", Role: "last_frame", ArtifactType: generator.ArtifactTypeImage}, lineage[1])

	// 标量透传，引用字段被替换为句柄
	assert.Equal(t, "sunrise over the bay", resolved["prompt"])
	assert.Equal(t, "generations/gen-first/artifact.png", resolved["first_frame"])
	assert.Equal(t, "generations/gen-last/artifact.png", resolved["last_frame"])

	// 每个引用恰好一次读取 + 一次可见性判定
	assert.Equal(t, 1, store.fetches["gen-first"])
	assert.Equal(t, 1, store.fetches["gen-last"])
	assert.Equal(t, 1, auth.checks["gen-first"])
	assert.Equal(t, 1, auth.checks["gen-last"])
}

func TestResolveListFieldOrder(t *testing.T) {
	shape := []generator.FieldSpec{
		{Name: "style_refs", Kind: generator.FieldArtifactRefList, Ref: generator.ArtifactTypeImage},
	}
	reg := buildRegistry(t, &refGen{name: "list-gen", shape: shape})
	store := newFakeStore(
		completedImage("gen-a", "user-1"),
		completedImage("gen-b", "user-1"),
		completedImage("gen-c", "user-1"),
	)
	engine := NewEngine(reg, store, nil, nil)

	_, lineage, err := engine.Resolve(context.Background(), "list-gen",
		map[string]interface{}{
			"style_refs": []interface{}{"gen-b", "gen-a", "gen-c"},
		}, model.Caller{UserID: "user-1"})
	require.NoError(t, err)

	// 列表内顺序保持参数给定顺序
	require.Len(t, lineage, 3)
	assert.Equal(t, "gen-b", lineage[0].SourceGenerationID)
	assert.Equal(t, "gen-a", lineage[1].SourceGenerationID)
	assert.Equal(t, "gen-c", lineage[2].SourceGenerationID)
	for _, edge := range lineage {
		assert.Equal(t, "style_refs", edge.Role)
	}
}

func TestResolveUnknownGenerator(t *testing.T) {
	reg := buildRegistry(t)
	engine := NewEngine(reg, newFakeStore(), nil, nil)

	_, _, err := engine.Resolve(context.Background(), "no-such-generator", nil, model.AnonymousAdmin())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownGenerator)
}

func TestResolveReferenceNotFound(t *testing.T) {
	reg := buildRegistry(t, &refGen{name: "veo31-first-last-frame-to-video", shape: firstLastFrameShape()})

	t.Run("记录不存在", func(t *testing.T) {
		store := newFakeStore(completedImage("gen-first", "user-1"))
		engine := NewEngine(reg, store, nil, nil)

		_, _, err := engine.Resolve(context.Background(), "veo31-first-last-frame-to-video",
			map[string]interface{}{
				"prompt":      "p",
				"first_frame": "gen-first",
				"last_frame":  "gen-missing",
			}, model.Caller{UserID: "user-1"})
		require.Error(t, err)

		var notFound *ReferenceNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "last_frame", notFound.Field)
		assert.Equal(t, "gen-missing", notFound.ID)
	})

	t.Run("记录不可见时错误与不存在一致", func(t *testing.T) {
		store := newFakeStore(
			completedImage("gen-first", "user-1"),
			completedImage("gen-other", "user-2"), // 他人的记录
		)
		engine := NewEngine(reg, store, nil, nil)

		_, _, err := engine.Resolve(context.Background(), "veo31-first-last-frame-to-video",
			map[string]interface{}{
				"prompt":      "p",
				"first_frame": "gen-first",
				"last_frame":  "gen-other",
			}, model.Caller{UserID: "user-1"})
		require.Error(t, err)

		var notFound *ReferenceNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "gen-other", notFound.ID)
	})

	t.Run("admin 可见他人记录", func(t *testing.T) {
		store := newFakeStore(
			completedImage("gen-first", "user-1"),
			completedImage("gen-other", "user-2"),
		)
		engine := NewEngine(reg, store, nil, nil)

		_, lineage, err := engine.Resolve(context.Background(), "veo31-first-last-frame-to-video",
			map[string]interface{}{
				"prompt":      "p",
				"first_frame": "gen-first",
				"last_frame":  "gen-other",
			}, model.Caller{UserID: "admin-1", Admin: true})
		require.NoError(t, err)
		assert.Len(t, lineage, 2)
	})
}

func TestResolveArtifactTypeMismatch(t *testing.T) {
	reg := buildRegistry(t, &refGen{name: "veo31-first-last-frame-to-video", shape: firstLastFrameShape()})

	video := completedImage("gen-video", "user-1")
	video.ArtifactType = generator.ArtifactTypeVideo
	store := newFakeStore(completedImage("gen-first", "user-1"), video)
	engine := NewEngine(reg, store, nil, nil)

	_, _, err := engine.Resolve(context.Background(), "veo31-first-last-frame-to-video",
		map[string]interface{}{
			"prompt":      "p",
			"first_frame": "gen-first",
			"last_frame":  "gen-video",
		}, model.Caller{UserID: "user-1"})
	require.Error(t, err)

	var mismatch *ArtifactTypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "last_frame", mismatch.Field)
	assert.Equal(t, generator.ArtifactTypeImage, mismatch.Want)
	assert.Equal(t, generator.ArtifactTypeVideo, mismatch.Got)
}

func TestResolveArtifactNotReady(t *testing.T) {
	reg := buildRegistry(t, &refGen{name: "veo31-first-last-frame-to-video", shape: firstLastFrameShape()})

	for _, status := range []model.GenerationStatus{
		model.GenerationStatusQueued,
		model.GenerationStatusRunning,
		model.GenerationStatusFailed,
		model.GenerationStatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			pending := completedImage("gen-pending", "user-1")
			pending.Status = status
			store := newFakeStore(completedImage("gen-first", "user-1"), pending)
			engine := NewEngine(reg, store, nil, nil)

			_, _, err := engine.Resolve(context.Background(), "veo31-first-last-frame-to-video",
				map[string]interface{}{
					"prompt":      "p",
					"first_frame": "gen-first",
					"last_frame":  "gen-pending",
				}, model.Caller{UserID: "user-1"})
			require.Error(t, err)

			var notReady *ArtifactNotReadyError
			require.ErrorAs(t, err, &notReady)
			assert.Equal(t, status, notReady.Status)
		})
	}
}

func TestResolveRequiredReferenceMissing(t *testing.T) {
	reg := buildRegistry(t, &refGen{name: "veo31-first-last-frame-to-video", shape: firstLastFrameShape()})
	engine := NewEngine(reg, newFakeStore(completedImage("gen-first", "user-1")), nil, nil)

	_, _, err := engine.Resolve(context.Background(), "veo31-first-last-frame-to-video",
		map[string]interface{}{
			"prompt":      "p",
			"first_frame": "gen-first",
		}, model.Caller{UserID: "user-1"})
	require.Error(t, err)

	var reqErr *ReferenceRequiredError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "last_frame", reqErr.Field)
}

func TestResolveRequiredListEmpty(t *testing.T) {
	shape := []generator.FieldSpec{
		{Name: "frames", Kind: generator.FieldArtifactRefList, Ref: generator.ArtifactTypeImage, Required: true},
	}
	reg := buildRegistry(t, &refGen{name: "frames-gen", shape: shape})
	engine := NewEngine(reg, newFakeStore(), nil, nil)

	_, _, err := engine.Resolve(context.Background(), "frames-gen",
		map[string]interface{}{"frames": []interface{}{}}, model.AnonymousAdmin())
	require.Error(t, err)

	var reqErr *ReferenceRequiredError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "frames", reqErr.Field)
}

func TestResolveReferenceValueErrors(t *testing.T) {
	reg := buildRegistry(t,
		&refGen{name: "veo31-first-last-frame-to-video", shape: firstLastFrameShape()},
		&refGen{name: "list-gen", shape: []generator.FieldSpec{
			{Name: "refs", Kind: generator.FieldArtifactRefList, Ref: generator.ArtifactTypeImage},
		}},
	)
	engine := NewEngine(reg, newFakeStore(completedImage("gen-first", "user-1")), nil, nil)
	caller := model.Caller{UserID: "user-1"}

	tests := []struct {
		name      string
		generator string
		params    map[string]interface{}
	}{
		{"单引用非字符串", "veo31-first-last-frame-to-video", map[string]interface{}{
			"first_frame": 42, "last_frame": "gen-first",
		}},
		{"单引用空串", "veo31-first-last-frame-to-video", map[string]interface{}{
			"first_frame": "", "last_frame": "gen-first",
		}},
		{"列表元素非字符串", "list-gen", map[string]interface{}{
			"refs": []interface{}{"gen-first", 7},
		}},
		{"列表本身非数组", "list-gen", map[string]interface{}{
			"refs": "gen-first",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := engine.Resolve(context.Background(), tt.generator, tt.params, caller)
			require.Error(t, err)

			var valErr *ReferenceValueError
			assert.ErrorAs(t, err, &valErr)
		})
	}
}

func TestResolveUnknownParamsPassThrough(t *testing.T) {
	reg := buildRegistry(t, &refGen{name: "veo31-first-last-frame-to-video", shape: firstLastFrameShape()})
	store := newFakeStore(completedImage("gen-first", "user-1"), completedImage("gen-last", "user-1"))
	engine := NewEngine(reg, store, nil, nil)

	resolved, _, err := engine.Resolve(context.Background(), "veo31-first-last-frame-to-video",
		map[string]interface{}{
			"prompt":         "p",
			"first_frame":    "gen-first",
			"last_frame":     "gen-last",
			"provider_knob":  "ultra",
			"guidance_scale": 7.5,
		}, model.Caller{UserID: "user-1"})
	require.NoError(t, err)

	// 未声明的顶层参数原样透传
	assert.Equal(t, "ultra", resolved["provider_knob"])
	assert.Equal(t, 7.5, resolved["guidance_scale"])
}

func TestResolveCustomHandle(t *testing.T) {
	reg := buildRegistry(t, &refGen{name: "veo31-first-last-frame-to-video", shape: firstLastFrameShape()})
	store := newFakeStore(completedImage("gen-first", "user-1"), completedImage("gen-last", "user-1"))

	presign := func(_ context.Context, gen *model.Generation) (string, error) {
		return "https://minio.local/presigned/" + gen.ID, nil
	}
	engine := NewEngine(reg, store, nil, presign)

	resolved, _, err := engine.Resolve(context.Background(), "veo31-first-last-frame-to-video",
		map[string]interface{}{
			"prompt":      "p",
			"first_frame": "gen-first",
			"last_frame":  "gen-last",
		}, model.Caller{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/presigned/gen-first", resolved["first_frame"])
	assert.Equal(t, "https://minio.local/presigned/gen-last", resolved["last_frame"])
}

func TestResolveOptionalRefOmitted(t *testing.T) {
	shape := []generator.FieldSpec{
		{Name: "prompt", Kind: generator.FieldScalar, Required: true},
		{Name: "style_ref", Kind: generator.FieldArtifactRef, Ref: generator.ArtifactTypeImage},
	}
	reg := buildRegistry(t, &refGen{name: "optional-gen", shape: shape})
	store := newFakeStore()
	engine := NewEngine(reg, store, nil, nil)

	resolved, lineage, err := engine.Resolve(context.Background(), "optional-gen",
		map[string]interface{}{"prompt": "p"}, model.AnonymousAdmin())
	require.NoError(t, err)
	assert.Empty(t, lineage)
	assert.Equal(t, "p", resolved["prompt"])
	assert.Empty(t, store.fetches)
}
