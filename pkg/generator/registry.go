// Package generator 只读注册表
package generator

// ============================================================================
// Registry - 加载完成后的只读注册表
// ============================================================================

// Entry 注册表中的一条生成器记录
type Entry struct {
	// Name 生效的注册名（声明覆盖优先于 Generator.Name()）
	Name string

	// Generator 生成器实例
	Generator Generator

	// InputDefaults 声明携带的建议默认值
	// 仅通过 Schema 查询接口透出给客户端，服务端从不代入参数。
	InputDefaults map[string]interface{}

	// Origin 来源标识，如 "source:flux"、"type:openai.ImageGenerator"、
	// "plugin:veo31-text-to-video"、"unlisted"
	Origin string
}

// Registry 生成器注册表
//
// Load 构建完成后只读：仅提供查找与遍历，任何变更都意味着进程重启。
type Registry struct {
	byName map[string]*Entry
	order  []string // 注册顺序
}

// newRegistry 创建空注册表，仅供 Load 使用
func newRegistry() *Registry {
	return &Registry{byName: make(map[string]*Entry)}
}

// add 追加一条记录，调用方负责重名检查
func (r *Registry) add(e *Entry) {
	r.byName[e.Name] = e
	r.order = append(r.order, e.Name)
}

// Get 按名称查找
func (r *Registry) Get(name string) (*Entry, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Names 返回注册顺序下的全部名称
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All 返回注册顺序下的全部记录
func (r *Registry) All() []*Entry {
	entries := make([]*Entry, 0, len(r.order))
	for _, name := range r.order {
		entries = append(entries, r.byName[name])
	}
	return entries
}

// Len 返回注册数量
func (r *Registry) Len() int {
	return len(r.order)
}
