// Package server WebSocket 事件网关
//
// 事件网关提供生成生命周期事件的实时推送，支持前端实时
// 展示排队 / 执行 / 进度 / 完成的全过程。
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"genstudio/internal/apiserver/auth"
	"genstudio/internal/shared/eventbus"
	"genstudio/internal/shared/model"
)

// WebSocket 读写节奏参数，pingPeriod 必须小于 pongWait
const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	pollInterval = 500 * time.Millisecond
	maxClientMsg = 512
	historyLimit = 200
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 来源不限，生产部署靠反向代理收敛
	CheckOrigin: func(r *http.Request) bool { return true },
}

// generationStore 网关所需的最小存储接口
type generationStore interface {
	GetGeneration(ctx context.Context, id string) (*model.Generation, error)
}

// EventGateway WebSocket 事件网关
//
// 事件网关负责：
//   - 管理 WebSocket 连接（按 generation ID 分组）
//   - 通过 Redis Streams 接收实时事件并推送给订阅客户端
//   - 无事件总线时降级为轮询生成状态
//   - 在生成进入终态时通知客户端并关闭连接
type EventGateway struct {
	store   generationStore             // 生成记录存储（连接时校验 + 状态轮询）
	events  eventbus.GenerationEventBus // 事件流（可为 nil）
	authCfg auth.Config
	metrics *Metrics

	clients map[string]map[*websocket.Conn]bool // 按 generation ID 索引的客户端连接
	mu      sync.RWMutex                        // 保护 clients 映射
}

// NewEventGateway 创建事件网关实例
func NewEventGateway(store generationStore, events eventbus.GenerationEventBus) *EventGateway {
	return &EventGateway{
		store:   store,
		events:  events,
		clients: make(map[string]map[*websocket.Conn]bool),
	}
}

// SetAuthConfig 设置认证配置
//
// WebSocket 握手不经过认证中间件（浏览器无法在升级请求上带
// Authorization 头），网关自行解析 token 查询参数做可见性判定。
func (g *EventGateway) SetAuthConfig(cfg auth.Config) {
	g.authCfg = cfg
}

// SetMetrics 设置指标实例
func (g *EventGateway) SetMetrics(m *Metrics) {
	g.metrics = m
}

// caller 解析连接请求的调用方身份
//
// 优先使用 Authorization 头（非浏览器客户端），其次接受 token
// 查询参数。认证未启用时按匿名 admin 处理；令牌无效返回零值
// Caller（看不到任何记录，表现为 404）。
func (g *EventGateway) caller(r *http.Request) model.Caller {
	if !g.authCfg.Enabled() {
		return model.AnonymousAdmin()
	}

	token := ""
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = parts[1]
		}
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	claims, err := auth.ParseToken(g.authCfg, token)
	if err != nil || claims.Type != auth.TokenTypeAccess {
		return model.Caller{}
	}
	return model.Caller{UserID: claims.Subject, Admin: claims.Role == auth.UserRoleAdmin}
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /ws/generations/{id}/events
//
// 查询参数：
//   - from_id: 起始事件 ID（可选），断线重连时回放错过的事件
//   - token: 访问令牌（可选，浏览器 WebSocket 无法设置请求头）
//
// 推送消息格式：
//
//	事件消息：{"type": "event", "data": {...}}
//	状态消息：{"type": "status", "data": {"status": "completed", "finished_at": "..."}}
//
// 客户端消息：
//
//	心跳：{"type": "ping"} -> 响应 {"type": "pong"}
//
// 推送模式：
//  1. Redis Streams 订阅（事件驱动，低延迟）
//  2. 轮询生成状态（无事件总线时的降级方案）
func (g *EventGateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	genID := r.PathValue("id")
	if genID == "" {
		http.Error(w, "generation id required", http.StatusBadRequest)
		return
	}

	// 升级前校验记录存在且对调用方可见，不存在与不可见统一 404
	caller := g.caller(r)
	gen, err := g.store.GetGeneration(r.Context(), genID)
	if err != nil {
		http.Error(w, "failed to get generation", http.StatusInternalServerError)
		return
	}
	if gen == nil || !caller.CanSee(gen) {
		http.Error(w, "generation not found", http.StatusNotFound)
		return
	}

	fromID := r.URL.Query().Get("from_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if g.metrics != nil {
		g.metrics.WSConnectionOpened()
		defer g.metrics.WSConnectionClosed()
	}

	g.addClient(genID, conn)
	defer g.removeClient(genID, conn)

	log.Printf("[ws] client connected for generation %s", genID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go g.readPump(conn, cancel)

	if g.events != nil {
		g.writePumpStreams(ctx, conn, genID, fromID)
		return
	}

	// 降级：轮询生成状态
	g.writePumpPolling(ctx, conn, genID)
}

// addClient 将连接加入指定 generation 的客户端列表
func (g *EventGateway) addClient(genID string, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.clients[genID] == nil {
		g.clients[genID] = make(map[*websocket.Conn]bool)
	}
	g.clients[genID][conn] = true
}

// removeClient 从客户端列表移除连接，最后一个连接移除后清理条目
func (g *EventGateway) removeClient(genID string, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if clients, ok := g.clients[genID]; ok {
		delete(clients, conn)
		if len(clients) == 0 {
			delete(g.clients, genID)
		}
	}
}

// readPump 读取客户端消息
//
// 在独立 goroutine 中运行，处理心跳并在连接关闭时取消上下文。
func (g *EventGateway) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxClientMsg)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			return
		}

		// 客户端侧仅有应用层心跳一种消息
		var req map[string]interface{}
		if json.Unmarshal(msg, &req) == nil && req["type"] == "ping" {
			conn.WriteJSON(map[string]string{"type": "pong"})
		}
	}
}

// ping 发送控制帧心跳，失败说明连接已不可写
func ping(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// writeEvent 推送单条事件消息
func (g *EventGateway) writeEvent(conn *websocket.Conn, event *model.GenerationEvent) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := map[string]interface{}{
		"type": "event",
		"data": event,
	}
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	if g.metrics != nil {
		g.metrics.RecordWSMessage("out", string(event.Type))
	}
	return nil
}

// writeStatus 推送终态通知
func (g *EventGateway) writeStatus(conn *websocket.Conn, status model.GenerationStatus, finishedAt *time.Time) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteJSON(map[string]interface{}{
		"type": "status",
		"data": map[string]interface{}{
			"status":      status,
			"finished_at": finishedAt,
		},
	})
	if g.metrics != nil {
		g.metrics.RecordWSMessage("out", "status")
	}
}

// terminalStatus 终止事件对应的最终状态，非终止事件返回 ""
func terminalStatus(t model.GenerationEventType) model.GenerationStatus {
	switch t {
	case model.EventGenerationCompleted:
		return model.GenerationStatusCompleted
	case model.EventGenerationFailed:
		return model.GenerationStatusFailed
	case model.EventGenerationCancelled:
		return model.GenerationStatusCancelled
	}
	return ""
}

// writePumpStreams Redis Streams 事件驱动模式
//
// 先回放 from_id 之后的历史事件（断线重连恢复），再订阅实时流。
// 订阅从当前流尾开始，回放与订阅之间存在极小的事件丢失窗口，
// 前端以事件轮询接口兜底。
func (g *EventGateway) writePumpStreams(ctx context.Context, conn *websocket.Conn, genID string, fromID string) {
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	if fromID != "" {
		history, err := g.events.GetGenerationEvents(ctx, genID, fromID, historyLimit)
		if err == nil {
			for _, event := range history {
				if err := g.writeEvent(conn, event); err != nil {
					log.Printf("[ws] write error: %v", err)
					return
				}
			}
		}
	}

	eventCh, err := g.events.SubscribeGenerationEvents(ctx, genID)
	if err != nil {
		log.Printf("[ws] subscribe error, falling back to polling: %v", err)
		g.writePumpPolling(ctx, conn, genID)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			if ping(conn) != nil {
				return
			}
		case event, ok := <-eventCh:
			if !ok {
				// 事件通道关闭，检查生成是否已进入终态
				gen, err := g.store.GetGeneration(ctx, genID)
				if err == nil && gen != nil && gen.Status.IsTerminal() {
					g.writeStatus(conn, gen.Status, gen.FinishedAt)
				}
				return
			}

			if err := g.writeEvent(conn, event); err != nil {
				log.Printf("[ws] write error: %v", err)
				return
			}

			if status := terminalStatus(event.Type); status != "" {
				g.writeStatus(conn, status, nil)
				return
			}
		}
	}
}

// writePumpPolling 轮询降级模式
//
// 无事件总线时每 500ms 读取生成记录，状态变化时推送通知，
// 进入终态后发送最终状态并退出。
func (g *EventGateway) writePumpPolling(ctx context.Context, conn *websocket.Conn, genID string) {
	ticker := time.NewTicker(pollInterval)
	pingTicker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer pingTicker.Stop()

	var lastStatus model.GenerationStatus

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			if ping(conn) != nil {
				return
			}
		case <-ticker.C:
			gen, err := g.store.GetGeneration(ctx, genID)
			if err != nil {
				log.Printf("[ws] failed to get generation: %v", err)
				continue
			}
			if gen == nil {
				// 记录被删除，直接断开
				return
			}

			if gen.Status != lastStatus {
				lastStatus = gen.Status
				if gen.Status.IsTerminal() {
					g.writeStatus(conn, gen.Status, gen.FinishedAt)
					return
				}

				// 非终态只有 queued / running，合成对应的生命周期事件
				evType := model.EventGenerationQueued
				if gen.Status == model.GenerationStatusRunning {
					evType = model.EventGenerationStarted
				}
				event := &model.GenerationEvent{
					GenerationID: genID,
					Type:         evType,
					Timestamp:    time.Now(),
					Payload:      map[string]interface{}{"status": gen.Status},
				}
				if err := g.writeEvent(conn, event); err != nil {
					log.Printf("[ws] write error: %v", err)
					return
				}
			}
		}
	}
}

// Broadcast 广播事件到指定 generation 的所有客户端
//
// 可在事件发布后立即调用，实现不依赖订阅延迟的低时延推送。
func (g *EventGateway) Broadcast(genID string, event interface{}) {
	g.mu.RLock()
	clients := g.clients[genID]
	g.mu.RUnlock()

	msg := map[string]interface{}{"type": "event", "data": event}
	for conn := range clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("[ws] broadcast error: %v", err)
		}
	}
}
