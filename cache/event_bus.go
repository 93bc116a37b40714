package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"FlowCash/logger"
	"FlowCash/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const eventQueueSize = 1024

// envelope 跨实例传递的事件，Origin 用于过滤本实例发出的消息
type envelope struct {
	Origin string            `json:"origin"`
	Event  model.LedgerEvent `json:"event"`
}

// EventBus publishes committed ledger events on a Redis channel so feeds
// on other instances can relay them.
type EventBus struct {
	client  *redis.Client
	channel string
	origin  string
	queue   chan model.LedgerEvent
}

// NewEventBus 创建事件总线，client 为 nil 时只做本地排队
func NewEventBus(client *redis.Client, channel string) *EventBus {
	return &EventBus{
		client:  client,
		channel: channel,
		origin:  uuid.New().String(),
		queue:   make(chan model.LedgerEvent, eventQueueSize),
	}
}

// Notify queues ev for publishing. It never blocks; when the queue is
// full the event is dropped and logged.
func (b *EventBus) Notify(ev model.LedgerEvent) {
	select {
	case b.queue <- ev:
	default:
		logger.Warn("[EventBus] queue full, event dropped",
			logger.Uint64("seq", ev.Seq), logger.String("type", string(ev.Type)))
	}
}

// Run publishes queued events until ctx is done.
func (b *EventBus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			if err := b.publish(ctx, ev); err != nil {
				logger.Error("[EventBus] publish failed",
					logger.Uint64("seq", ev.Seq), logger.ErrorField(err))
			}
		}
	}
}

func (b *EventBus) publish(ctx context.Context, ev model.LedgerEvent) error {
	if b.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	payload, err := b.encode(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe calls handle for every event published by other instances
// until ctx is done.
func (b *EventBus) Subscribe(ctx context.Context, handle func(model.LedgerEvent)) error {
	if b.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev, remote, err := b.decode([]byte(msg.Payload))
				if err != nil {
					logger.Warn("[EventBus] malformed message", logger.ErrorField(err))
					continue
				}
				if remote {
					handle(ev)
				}
			}
		}
	}()
	return nil
}

func (b *EventBus) encode(ev model.LedgerEvent) ([]byte, error) {
	payload, err := json.Marshal(envelope{Origin: b.origin, Event: ev})
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %d: %w", ev.Seq, err)
	}
	return payload, nil
}

// decode reports remote=false for messages this instance published.
func (b *EventBus) decode(payload []byte) (model.LedgerEvent, bool, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return model.LedgerEvent{}, false, err
	}
	return env.Event, env.Origin != b.origin, nil
}
