// Package generator 进程级注册表
//
// 三种加载机制对应三张进程级注册表，全部在包初始化阶段写入：
//   - RegisterSource: source hook 表，Load 按声明的 source key 调用 hook，
//     hook 通过 SourceRegistrar 注册一个或多个 Generator
//   - RegisterType: type factory 表，Load 按 type_path 查找工厂并断言
//     返回值满足 Generator 契约
//   - PublishPlugin: plugin entry 索引，插件包在 init() 中发布构造函数
//
// Announce 是第四条路径：包在 init() 中直接宣告一个现成的 Generator 实例。
// 宣告的实例不属于任何声明，是否接纳由 LoadOptions.AllowUnlisted 决定。
package generator

import (
	"fmt"
	"sync"
)

// SourceHook source 机制的注册钩子
// Load 为对应声明调用 hook，hook 注册的所有 Generator 都归属于该声明。
type SourceHook func(r *SourceRegistrar)

// TypeFactory type_path 机制的构造工厂
// 返回值类型为 interface{}，由 Load 断言是否满足 Generator 契约。
type TypeFactory func(options map[string]interface{}) (interface{}, error)

// PluginFactory plugin_entry 机制的构造工厂
type PluginFactory func(options map[string]interface{}) (Generator, error)

// SourceRegistrar source hook 的注册句柄
//
// hook 通过 Options() 读取声明携带的构造参数，通过 Register() 注册生成器。
// 注册顺序即该声明内部的生效顺序。
type SourceRegistrar struct {
	options    map[string]interface{}
	generators []Generator
}

// Options 返回声明携带的构造参数，可能为 nil
func (r *SourceRegistrar) Options() map[string]interface{} {
	return r.options
}

// Register 注册一个 Generator
func (r *SourceRegistrar) Register(g Generator) {
	r.generators = append(r.generators, g)
}

// ============================================================================
// 进程级注册表
// ============================================================================

var (
	tablesMu      sync.Mutex
	sourceHooks   = make(map[string]SourceHook)
	typeFactories = make(map[string]TypeFactory)
	pluginIndex   = make(map[string]PluginFactory)
	announced     []Generator
)

// RegisterSource 注册 source hook
// 在包 init() 中调用；key 重复注册视为编程错误，直接 panic。
func RegisterSource(key string, hook SourceHook) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	if _, ok := sourceHooks[key]; ok {
		panic(fmt.Sprintf("generator: source %q registered twice", key))
	}
	sourceHooks[key] = hook
}

// RegisterType 注册 type factory
// 在包 init() 中调用；path 重复注册视为编程错误，直接 panic。
func RegisterType(path string, factory TypeFactory) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	if _, ok := typeFactories[path]; ok {
		panic(fmt.Sprintf("generator: type %q registered twice", path))
	}
	typeFactories[path] = factory
}

// PublishPlugin 发布 plugin entry
// 在插件包 init() 中调用；entry 重复发布视为编程错误，直接 panic。
func PublishPlugin(entry string, factory PluginFactory) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	if _, ok := pluginIndex[entry]; ok {
		panic(fmt.Sprintf("generator: plugin entry %q published twice", entry))
	}
	pluginIndex[entry] = factory
}

// Announce 宣告一个未经声明的 Generator 实例
//
// 典型来源是被间接 import 的包在 init() 中的自注册。
// 宣告不等于注册：Load 结束时统一结算，AllowUnlisted=false 时逐个拒绝。
func Announce(g Generator) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	announced = append(announced, g)
}

// lookupSource 查找 source hook
func lookupSource(key string) (SourceHook, bool) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	h, ok := sourceHooks[key]
	return h, ok
}

// lookupType 查找 type factory
func lookupType(path string) (TypeFactory, bool) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	f, ok := typeFactories[path]
	return f, ok
}

// lookupPlugin 查找 plugin factory
func lookupPlugin(entry string) (PluginFactory, bool) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	f, ok := pluginIndex[entry]
	return f, ok
}

// snapshotAnnounced 拷贝当前宣告列表
func snapshotAnnounced() []Generator {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	out := make([]Generator, len(announced))
	copy(out, announced)
	return out
}
