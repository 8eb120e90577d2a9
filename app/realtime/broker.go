package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher pushes a chat event to every instance's subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev ChatEvent) error
}

// LocalPublisher delivers straight to this instance's hub.
type LocalPublisher struct {
	hub *Hub
}

func NewLocalPublisher(hub *Hub) *LocalPublisher {
	return &LocalPublisher{hub: hub}
}

func (p *LocalPublisher) Publish(ctx context.Context, ev ChatEvent) error {
	p.hub.Deliver(ev)
	publishedEvents.WithLabelValues("local", "ok").Inc()
	return nil
}

// RedisBroker publishes events on one channel per room and relays every
// room channel it hears back into the local hub.
type RedisBroker struct {
	rc     *redis.Client
	prefix string
	hub    *Hub
}

func NewRedisBroker(rc *redis.Client, prefix string, hub *Hub) *RedisBroker {
	return &RedisBroker{rc: rc, prefix: prefix, hub: hub}
}

func (b *RedisBroker) Channel(roomID uint) string {
	return b.prefix + strconv.FormatUint(uint64(roomID), 10)
}

func (b *RedisBroker) Publish(ctx context.Context, ev ChatEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal chat event: %w", err)
	}
	if err := b.rc.Publish(ctx, b.Channel(ev.RoomID), payload).Err(); err != nil {
		publishedEvents.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("failed to publish chat event for room %d: %w", ev.RoomID, err)
	}
	publishedEvents.WithLabelValues("redis", "ok").Inc()
	return nil
}

// Start subscribes to all room channels and relays them until the returned stop func runs.
func (b *RedisBroker) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		backoff := time.Second
		for ctx.Err() == nil {
			err := b.relay(ctx)
			if ctx.Err() != nil {
				return
			}
			log.Printf("chat-broker: subscription ended: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (b *RedisBroker) relay(ctx context.Context) error {
	ps := b.rc.PSubscribe(ctx, b.prefix+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("pubsub channel closed")
			}
			if err := b.handle(msg.Channel, msg.Payload); err != nil {
				log.Printf("chat-broker: dropped message on %s: %v", msg.Channel, err)
			}
		}
	}
}

// handle decodes one pub/sub payload and delivers it to the local hub.
func (b *RedisBroker) handle(channel, payload string) error {
	roomID, err := strconv.ParseUint(strings.TrimPrefix(channel, b.prefix), 10, 64)
	if err != nil {
		return fmt.Errorf("unexpected channel: %w", err)
	}

	var ev ChatEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.RoomID != uint(roomID) {
		return fmt.Errorf("event for room %d arrived on channel for room %d", ev.RoomID, roomID)
	}
	b.hub.Deliver(ev)
	return nil
}
