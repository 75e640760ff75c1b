package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"genstudio/pkg/generator"
)

// GeneratorsFile 生成器声明文件结构（generators.yaml）
//
// 示例：
//
//	strict_mode: true
//	allow_unlisted: false
//	generators:
//	  - source: flux
//	    options:
//	      api_base: https://api.bfl.ai
//	  - type_path: openai.ImageGenerator
//	    name: dalle-3
//	  - plugin_entry: veo31-first-last-frame-to-video
//	    input_defaults:
//	      duration_seconds: 8
//
// 每条声明的 source / type_path / plugin_entry 必须恰好填一个；
// 违反该约束的声明由加载器按 strict_mode 结算（严格模式整体失败，
// 非严格模式跳过该条并记入加载汇总）。
type GeneratorsFile struct {
	StrictMode    *bool                   `yaml:"strict_mode"`    // 默认 true
	AllowUnlisted bool                    `yaml:"allow_unlisted"` // 默认 false
	Generators    []generator.Declaration `yaml:"generators"`
}

// LoadGenerators 读取生成器声明文件
//
// 返回声明列表与加载选项，交给 generator.Load 构建注册表。
// 文件不存在或格式错误直接返回错误：没有声明文件的进程不应该
// 带着空注册表启动。
func LoadGenerators(path string) ([]generator.Declaration, generator.LoadOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, generator.LoadOptions{StrictMode: true}, fmt.Errorf("read generators file %s: %w", path, err)
	}
	decls, opts, err := ParseGenerators(data)
	if err != nil {
		return nil, opts, fmt.Errorf("parse generators file %s: %w", path, err)
	}
	expandOptions(decls)
	return decls, opts, nil
}

// expandOptions 展开 options 字符串值里的 ${VAR} 环境变量引用
//
// 凭据单一数据源：generators.yaml 不存密钥，声明写 api_key: ${BFL_API_KEY}，
// 实际取值来自 .env / systemd 注入的环境变量。未定义的变量展开为空串。
func expandOptions(decls []generator.Declaration) {
	for i := range decls {
		for k, v := range decls[i].Options {
			if s, ok := v.(string); ok && strings.Contains(s, "${") {
				decls[i].Options[k] = os.ExpandEnv(s)
			}
		}
	}
}

// ParseGenerators 解析生成器声明内容
//
// strict_mode 缺省为 true，allow_unlisted 缺省为 false。
// 声明内容本身不在这里校验，机制约束由 generator.Load 统一结算，
// 保证非严格模式下坏声明只跳过单条。
func ParseGenerators(data []byte) ([]generator.Declaration, generator.LoadOptions, error) {
	var f GeneratorsFile
	opts := generator.LoadOptions{StrictMode: true}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, opts, err
	}
	if f.StrictMode != nil {
		opts.StrictMode = *f.StrictMode
	}
	opts.AllowUnlisted = f.AllowUnlisted
	return f.Generators, opts, nil
}
