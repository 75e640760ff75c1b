// Package lineage 血缘图遍历
//
// 基于溯源图（Generation.InputArtifacts 边）的只读递归查询：
//   - Ancestry：沿入边向上，回答"这个产物由什么生成"
//   - Descendants：沿出边向下（FindByLineageContains 反向索引），
//     回答"这个产物被用来生成了什么"
//
// 遍历规则（两个方向一致）：
//   - 深度默认与上限均为 25，越界取值收敛到 [1, 25]
//   - 不可见节点静默排除且不再继续展开
//   - 悬空引用（源记录已删除）按图边界处理，不是错误
//   - 每次遍历维护全局 visited 集：同一记录只展开一次，
//     重复引用处出现边界节点（带当次 role/depth，不再展开父级）
//   - 深度截断与取消都以 partial 标志报告，永远不是错误
package lineage

import (
	"context"
	"fmt"

	"genstudio/internal/shared/model"
)

// MaxDepth 遍历深度上限，同时是未指定时的默认值
const MaxDepth = 25

// ClampDepth 将深度收敛到 [1, MaxDepth]
func ClampDepth(d int) int {
	if d < 1 {
		return 1
	}
	if d > MaxDepth {
		return MaxDepth
	}
	return d
}

// ============================================================================
// 依赖接口与结果类型
// ============================================================================

// Store 遍历需要的最小存储面
type Store interface {
	GetGeneration(ctx context.Context, id string) (*model.Generation, error)
	FindByLineageContains(ctx context.Context, sourceGenerationID string) ([]*model.Generation, error)
}

// Authorizer 可见性判定
type Authorizer interface {
	CanSee(caller model.Caller, gen *model.Generation) bool
}

// OwnershipAuthorizer 默认可见性规则：admin 全可见，用户只可见本人记录
type OwnershipAuthorizer struct{}

func (OwnershipAuthorizer) CanSee(caller model.Caller, gen *model.Generation) bool {
	return caller.CanSee(gen)
}

// AncestryNode 祖先树节点，按需构建，不落库
type AncestryNode struct {
	Generation *model.Generation `json:"generation"`
	Depth      int               `json:"depth"`             // 0 = 查询起点
	Role       string            `json:"role,omitempty"`    // 到达该节点的血缘 role，根节点为空
	Parents    []*AncestryNode   `json:"parents,omitempty"` // 上游节点
}

// DescendantNode 后代列表项（扁平、去重）
type DescendantNode struct {
	Generation *model.Generation `json:"generation"`
	Depth      int               `json:"depth"` // 1 = 直接后代
	Role       string            `json:"role"`  // 发现该节点的首条血缘边 role
}

// ============================================================================
// Resolver
// ============================================================================

// Resolver 血缘图查询器
type Resolver struct {
	store Store
	auth  Authorizer
}

// NewResolver 创建查询器，auth 为 nil 时使用 OwnershipAuthorizer
func NewResolver(store Store, auth Authorizer) *Resolver {
	if auth == nil {
		auth = OwnershipAuthorizer{}
	}
	return &Resolver{store: store, auth: auth}
}

// ============================================================================
// Ancestry - 祖先遍历（DFS）
// ============================================================================

// Ancestry 构建祖先树
//
// 返回值：根节点、partial 标志、错误。起点不存在或不可见时返回
// (nil, false, nil)，由调用方决定对外表现（API 层映射为 404）。
// partial 在两种情况下为 true：深度边界截掉了尚未展开的血缘边，
// 或遍历因 ctx 取消提前返回。
func (r *Resolver) Ancestry(ctx context.Context, id string, maxDepth int, caller model.Caller) (*AncestryNode, bool, error) {
	root, err := r.store.GetGeneration(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("fetch generation %s: %w", id, err)
	}
	if root == nil || !r.auth.CanSee(caller, root) {
		return nil, false, nil
	}

	t := &traversal{
		store:    r.store,
		auth:     r.auth,
		caller:   caller,
		maxDepth: ClampDepth(maxDepth),
		expanded: make(map[string]bool),
		fetched:  map[string]*model.Generation{id: root},
	}
	node, err := t.expand(ctx, root, 0, "")
	if err != nil {
		return nil, false, err
	}
	return node, t.partial, nil
}

// traversal 单次祖先遍历的状态
type traversal struct {
	store    Store
	auth     Authorizer
	caller   model.Caller
	maxDepth int
	expanded map[string]bool              // 已展开父级的节点，重复引用不再展开
	fetched  map[string]*model.Generation // 单次遍历内的读取缓存，悬空引用记 nil
	partial  bool
}

// fetch 读取一条记录，同一 ID 在一次遍历内只访问存储一次
func (t *traversal) fetch(ctx context.Context, id string) (*model.Generation, error) {
	if gen, ok := t.fetched[id]; ok {
		return gen, nil
	}
	gen, err := t.store.GetGeneration(ctx, id)
	if err != nil {
		return nil, err
	}
	t.fetched[id] = gen
	return gen, nil
}

// expand 展开一个节点的祖先
//
// 深度边界节点与已展开过的节点都只挂载、不再展开；
// 取消时立即收口并置 partial，不返回错误。
func (t *traversal) expand(ctx context.Context, gen *model.Generation, depth int, role string) (*AncestryNode, error) {
	node := &AncestryNode{Generation: gen, Depth: depth, Role: role}

	if depth >= t.maxDepth {
		// 边界节点：仍有未遍历的血缘边时结果不完整
		if len(gen.InputArtifacts) > 0 {
			t.partial = true
		}
		return node, nil
	}
	if t.expanded[gen.ID] {
		return node, nil
	}
	t.expanded[gen.ID] = true

	for _, edge := range gen.InputArtifacts {
		select {
		case <-ctx.Done():
			t.partial = true
			return node, nil
		default:
		}

		parent, err := t.fetch(ctx, edge.SourceGenerationID)
		if err != nil {
			if ctx.Err() != nil {
				t.partial = true
				return node, nil
			}
			return nil, fmt.Errorf("fetch ancestor %s: %w", edge.SourceGenerationID, err)
		}
		// 悬空引用与不可见节点都按图边界处理
		if parent == nil || !t.auth.CanSee(t.caller, parent) {
			continue
		}

		child, err := t.expand(ctx, parent, depth+1, edge.Role)
		if err != nil {
			return nil, err
		}
		node.Parents = append(node.Parents, child)
	}
	return node, nil
}

// ============================================================================
// Descendants - 后代遍历（BFS）
// ============================================================================

// Descendants 按层遍历后代
//
// 起点不存在或不可见时返回 (nil, false, nil)。结果为扁平去重列表，
// 同一记录以最先发现的深度与 role 出现一次。partial 在以下情况为
// true：完成遍历后边界层之下仍有可见后代被深度截掉，或遍历因
// ctx 取消提前返回。
func (r *Resolver) Descendants(ctx context.Context, id string, maxDepth int, caller model.Caller) ([]*DescendantNode, bool, error) {
	root, err := r.store.GetGeneration(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("fetch generation %s: %w", id, err)
	}
	if root == nil || !r.auth.CanSee(caller, root) {
		return nil, false, nil
	}

	depth := ClampDepth(maxDepth)
	visited := map[string]bool{id: true}
	result := []*DescendantNode{}
	frontier := []string{id}

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		var next []string
		for _, sourceID := range frontier {
			select {
			case <-ctx.Done():
				return result, true, nil
			default:
			}

			children, err := r.store.FindByLineageContains(ctx, sourceID)
			if err != nil {
				if ctx.Err() != nil {
					return result, true, nil
				}
				return nil, false, fmt.Errorf("find descendants of %s: %w", sourceID, err)
			}

			for _, child := range children {
				if visited[child.ID] {
					continue
				}
				visited[child.ID] = true
				// 不可见节点既不出现也不再展开
				if !r.auth.CanSee(caller, child) {
					continue
				}
				result = append(result, &DescendantNode{
					Generation: child,
					Depth:      level,
					Role:       firstEdgeRole(child, sourceID),
				})
				next = append(next, child.ID)
			}
		}
		frontier = next
	}

	// 边界层探测：还有可见后代被深度截掉时置 partial
	if len(frontier) > 0 {
		partial, err := r.hasVisibleChildren(ctx, frontier, visited, caller)
		if err != nil {
			// 探测期间取消：结果本身完整性未知，保守置 partial
			if ctx.Err() != nil {
				return result, true, nil
			}
			return nil, false, err
		}
		return result, partial, nil
	}
	return result, false, nil
}

// hasVisibleChildren 判断 frontier 之下是否还有未收入结果的可见后代
func (r *Resolver) hasVisibleChildren(ctx context.Context, frontier []string, visited map[string]bool, caller model.Caller) (bool, error) {
	for _, sourceID := range frontier {
		children, err := r.store.FindByLineageContains(ctx, sourceID)
		if err != nil {
			return false, fmt.Errorf("probe descendants of %s: %w", sourceID, err)
		}
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			if r.auth.CanSee(caller, child) {
				return true, nil
			}
		}
	}
	return false, nil
}

// firstEdgeRole 返回 child 指向 sourceID 的首条血缘边的 role
func firstEdgeRole(child *model.Generation, sourceID string) string {
	for _, edge := range child.InputArtifacts {
		if edge.SourceGenerationID == sourceID {
			return edge.Role
		}
	}
	return ""
}
