// Package redis 生成事件流操作
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"genstudio/internal/shared/eventbus"
	"genstudio/internal/shared/model"
)

func eventKey(generationID string) string {
	return eventbus.KeyGenerationEvents + generationID
}

func parseEventMessage(generationID string, msg redis.XMessage) *model.GenerationEvent {
	event := &model.GenerationEvent{
		ID:           msg.ID,
		GenerationID: generationID,
	}

	if typ, ok := msg.Values["type"].(string); ok {
		event.Type = model.GenerationEventType(typ)
	}

	if ts, ok := msg.Values["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			event.Timestamp = t
		}
	}

	if payloadStr, ok := msg.Values["payload"].(string); ok && payloadStr != "" {
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(payloadStr), &payload); err == nil {
			event.Payload = payload
		}
	}

	return event
}

// PublishGenerationEvent 发布生成生命周期事件
func (s *Store) PublishGenerationEvent(ctx context.Context, generationID string, event *model.GenerationEvent) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: eventKey(generationID),
		MaxLen: eventbus.MaxStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"type":      string(event.Type),
			"timestamp": timestamp.Format(time.RFC3339Nano),
			"payload":   string(payloadJSON),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Printf("[Redis/EventBus] Published event: %s seq=%s type=%s", generationID, id, event.Type)
	return nil
}

// GetGenerationEvents 获取生成事件列表
func (s *Store) GetGenerationEvents(ctx context.Context, generationID string, fromID string, count int64) ([]*model.GenerationEvent, error) {
	if fromID == "" {
		fromID = "0"
	}

	// count>0 时让服务端截断，不整段读回再丢弃
	var msgs []redis.XMessage
	var err error
	if count > 0 {
		msgs, err = s.client.XRangeN(ctx, eventKey(generationID), fromID, "+", count).Result()
	} else {
		msgs, err = s.client.XRange(ctx, eventKey(generationID), fromID, "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	var events []*model.GenerationEvent
	for _, msg := range msgs {
		events = append(events, parseEventMessage(generationID, msg))
	}
	return events, nil
}

// GetGenerationEventCount 获取事件数量
func (s *Store) GetGenerationEventCount(ctx context.Context, generationID string) (int64, error) {
	return s.client.XLen(ctx, eventKey(generationID)).Result()
}

// SubscribeGenerationEvents 订阅生成事件
//
// 从当前流位置开始推送，历史事件由调用方走 GetGenerationEvents
// 自行补齐。返回的 channel 在 ctx 取消或读流出错时关闭。
func (s *Store) SubscribeGenerationEvents(ctx context.Context, generationID string) (<-chan *model.GenerationEvent, error) {
	ch := make(chan *model.GenerationEvent, 100)
	go s.pumpEvents(ctx, generationID, ch)
	return ch, nil
}

// pumpEvents 阻塞读事件流并转发，直到 ctx 取消或出错
func (s *Store) pumpEvents(ctx context.Context, generationID string, ch chan<- *model.GenerationEvent) {
	defer close(ch)

	key := eventKey(generationID)
	lastID := "$"
	for ctx.Err() == nil {
		streams, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, lastID},
			Count:   10,
			Block:   5 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[Redis/EventBus] Event subscription error: %v", err)
			}
			return
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				select {
				case ch <- parseEventMessage(generationID, msg):
					lastID = msg.ID
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// DeleteGenerationEvents 删除生成事件流
func (s *Store) DeleteGenerationEvents(ctx context.Context, generationID string) error {
	return s.client.Del(ctx, eventKey(generationID)).Err()
}
