// Package api 内嵌 API 契约与文档页
//
// openapi/openapi.yaml 在启动时经 kin-openapi 校验后对外提供，
// docs/index.html 是基于该契约渲染的只读文档页。
package api

import "embed"

// OpenAPIFS 规范原文，启动时校验后原样对外提供
//
//go:embed openapi/*.yaml
var OpenAPIFS embed.FS

// DocsFS 渲染上述契约的静态文档页
//
//go:embed docs/index.html
var DocsFS embed.FS
