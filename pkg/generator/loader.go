// Package generator 声明驱动的加载器
package generator

import (
	"errors"
	"fmt"
	"log"
)

// ============================================================================
// Declaration - 生成器声明
// ============================================================================

// Declaration 配置文件中的一条生成器声明
//
// Source / TypePath / PluginEntry 三者必须恰好填一个。
// Enabled 为 nil 时视为 true。
type Declaration struct {
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`             // source hook key
	TypePath    string `json:"type_path,omitempty" yaml:"type_path,omitempty"`       // type factory path
	PluginEntry string `json:"plugin_entry,omitempty" yaml:"plugin_entry,omitempty"` // plugin entry 名称

	Enabled       *bool                  `json:"enabled,omitempty" yaml:"enabled,omitempty"`               // 是否启用，默认 true
	Name          string                 `json:"name,omitempty" yaml:"name,omitempty"`                     // 注册名覆盖
	Options       map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`               // 构造参数，原样转发
	InputDefaults map[string]interface{} `json:"input_defaults,omitempty" yaml:"input_defaults,omitempty"` // 建议默认值，仅透出
}

// IsEnabled 声明是否启用
func (d *Declaration) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Mechanism 返回声明使用的加载机制与 key
// 恰好填一个机制字段，否则返回错误。
func (d *Declaration) Mechanism() (kind string, key string, err error) {
	n := 0
	if d.Source != "" {
		kind, key = "source", d.Source
		n++
	}
	if d.TypePath != "" {
		kind, key = "type", d.TypePath
		n++
	}
	if d.PluginEntry != "" {
		kind, key = "plugin", d.PluginEntry
		n++
	}
	switch n {
	case 1:
		return kind, key, nil
	case 0:
		return "", "", errors.New("declaration must set one of source, type_path, plugin_entry")
	default:
		return "", "", errors.New("declaration must set exactly one of source, type_path, plugin_entry")
	}
}

// ============================================================================
// LoadOptions / LoadSummary
// ============================================================================

// LoadOptions 加载行为开关
//
// 配置层负责默认值（strict_mode 默认 true，allow_unlisted 默认 false），
// Load 只消费显式取值。
type LoadOptions struct {
	// StrictMode true 时任一声明出错则整次加载失败，不注册任何生成器
	StrictMode bool

	// AllowUnlisted true 时接纳包 init() 宣告但未在声明列表中的生成器
	AllowUnlisted bool
}

// LoadError 单条声明的加载错误
type LoadError struct {
	Index     int    // 声明在列表中的下标（从 0 开始），宣告结算错误为 -1
	Mechanism string // source / type / plugin / announce
	Key       string // 机制 key 或宣告的生成器名
	Err       error
}

// Error 实现 error 接口
func (e *LoadError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("announced generator %q: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("declaration %d (%s %q): %v", e.Index, e.Mechanism, e.Key, e.Err)
}

// Unwrap 支持 errors.Is / errors.As
func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadSummary 加载结果汇总
type LoadSummary struct {
	Requested  int          // 声明总数
	Registered int          // 成功注册数（含接纳的宣告）
	Skipped    int          // 因 enabled=false 跳过的声明数
	Unlisted   int          // 接纳的宣告数
	Errors     []*LoadError // 全部错误
}

// ============================================================================
// Load
// ============================================================================

// Load 按声明列表构建只读注册表
//
// 处理顺序与声明顺序一致；source hook 内部按注册顺序生效。
// 重名无论严格与否都会被拒绝：后到者计入 Errors，先注册者保留。
// StrictMode=true 且存在任何错误时返回 (nil, summary, err)，不注册任何生成器。
// StrictMode=false 时失败的声明被跳过，其余正常注册，错误保留在 summary 中。
func Load(decls []Declaration, opts LoadOptions) (*Registry, *LoadSummary, error) {
	reg := newRegistry()
	summary := &LoadSummary{Requested: len(decls)}

	fail := func(i int, mechanism, key string, err error) {
		le := &LoadError{Index: i, Mechanism: mechanism, Key: key, Err: err}
		summary.Errors = append(summary.Errors, le)
		log.Printf("[generator.load] error: %v", le)
	}

	for i := range decls {
		d := &decls[i]

		mechanism, key, err := d.Mechanism()
		if err != nil {
			fail(i, "?", "", err)
			continue
		}
		if !d.IsEnabled() {
			summary.Skipped++
			log.Printf("[generator.load] skipped declaration %d (%s %q): disabled", i, mechanism, key)
			continue
		}

		captured, err := instantiate(d, mechanism, key)
		if err != nil {
			fail(i, mechanism, key, err)
			continue
		}

		for _, g := range captured {
			name := g.Name()
			if d.Name != "" {
				// 覆盖名只对单生成器声明有意义
				if len(captured) > 1 {
					fail(i, mechanism, key, fmt.Errorf("name override %q is ambiguous: declaration registered %d generators", d.Name, len(captured)))
					break
				}
				name = d.Name
			}

			if err := validateGenerator(name, g); err != nil {
				fail(i, mechanism, key, err)
				continue
			}
			if prev, ok := reg.Get(name); ok {
				fail(i, mechanism, key, fmt.Errorf("duplicate generator name %q: already registered by %s", name, prev.Origin))
				continue
			}

			reg.add(&Entry{
				Name:          name,
				Generator:     g,
				InputDefaults: d.InputDefaults,
				Origin:        mechanism + ":" + key,
			})
			log.Printf("[generator.load] registered %q (%s:%s, artifact_type=%s)", name, mechanism, key, g.ArtifactType())
		}
	}

	// 宣告结算：包 init() 自注册但不属于任何声明的生成器
	for _, g := range snapshotAnnounced() {
		name := g.Name()
		if _, ok := reg.Get(name); ok {
			// 声明路径已经注册了同名生成器，宣告视为已被覆盖
			log.Printf("[generator.load] announced %q already covered by declarations", name)
			continue
		}
		if !opts.AllowUnlisted {
			fail(-1, "announce", name, errors.New("unlisted registration rejected (allow_unlisted=false)"))
			continue
		}
		if err := validateGenerator(name, g); err != nil {
			fail(-1, "announce", name, err)
			continue
		}
		reg.add(&Entry{Name: name, Generator: g, Origin: "unlisted"})
		summary.Unlisted++
		log.Printf("[generator.load] adopted unlisted generator %q (artifact_type=%s)", name, g.ArtifactType())
	}

	summary.Registered = reg.Len()

	if opts.StrictMode && len(summary.Errors) > 0 {
		log.Printf("[generator.load] aborted: strict_mode=true errors=%d", len(summary.Errors))
		return nil, summary, fmt.Errorf("generator load failed with %d error(s), first: %w", len(summary.Errors), summary.Errors[0])
	}

	log.Printf("[generator.load] done: requested=%d registered=%d skipped=%d unlisted=%d errors=%d",
		summary.Requested, summary.Registered, summary.Skipped, summary.Unlisted, len(summary.Errors))
	return reg, summary, nil
}

// instantiate 按机制实例化声明对应的生成器
func instantiate(d *Declaration, mechanism, key string) ([]Generator, error) {
	switch mechanism {
	case "source":
		hook, ok := lookupSource(key)
		if !ok {
			return nil, fmt.Errorf("unknown source %q", key)
		}
		r := &SourceRegistrar{options: d.Options}
		hook(r)
		if len(r.generators) == 0 {
			return nil, fmt.Errorf("source %q registered no generators", key)
		}
		return r.generators, nil

	case "type":
		factory, ok := lookupType(key)
		if !ok {
			return nil, fmt.Errorf("unknown type %q", key)
		}
		obj, err := factory(d.Options)
		if err != nil {
			return nil, fmt.Errorf("construct failed: %w", err)
		}
		g, ok := obj.(Generator)
		if !ok {
			return nil, fmt.Errorf("type %q does not satisfy the Generator contract", key)
		}
		return []Generator{g}, nil

	case "plugin":
		factory, ok := lookupPlugin(key)
		if !ok {
			return nil, fmt.Errorf("unknown plugin entry %q", key)
		}
		g, err := factory(d.Options)
		if err != nil {
			return nil, fmt.Errorf("construct failed: %w", err)
		}
		if g == nil {
			return nil, fmt.Errorf("plugin entry %q returned nil generator", key)
		}
		return []Generator{g}, nil
	}
	return nil, fmt.Errorf("unknown mechanism %q", mechanism)
}

// validateGenerator 注册前校验：名称、产物类型、输入 Schema
func validateGenerator(name string, g Generator) error {
	if name == "" {
		return errors.New("generator name is empty")
	}
	if !g.ArtifactType().Valid() {
		return fmt.Errorf("generator %q: invalid artifact type %q", name, g.ArtifactType())
	}
	if err := ValidateShape(g.InputShape()); err != nil {
		return fmt.Errorf("generator %q: invalid input shape: %w", name, err)
	}
	return nil
}
