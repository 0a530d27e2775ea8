package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/courant-live/courant/internal/config"
)

// Publisher carries stored notifications to the push hub. The local bus
// delivers in-process; the Redis bus routes through a pub/sub channel so
// several server instances can share one stream.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// LocalBus hands payloads straight to the hub.
type LocalBus struct {
	hub *Hub
}

func NewLocalBus(hub *Hub) *LocalBus {
	return &LocalBus{hub: hub}
}

func (b *LocalBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.hub.Publish(topic, payload)
	return nil
}

func (b *LocalBus) Close() error { return nil }

// redisEnvelope wraps a payload with its topic so one Redis channel can
// carry any topic.
type redisEnvelope struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

// RedisBus publishes through a Redis channel; a subscriber goroutine feeds
// everything received, from this instance or any other, into the hub.
type RedisBus struct {
	rdb     *redis.Client
	hub     *Hub
	channel string
	log     zerolog.Logger
	cancel  context.CancelFunc
}

func NewRedisBus(cfg config.Redis, hub *Hub, log zerolog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		rdb:     rdb,
		hub:     hub,
		channel: cfg.Channel,
		log:     log.With().Str("component", "redisbus").Logger(),
		cancel:  cancel,
	}
	go b.forward(ctx)
	return b, nil
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	data, err := json.Marshal(redisEnvelope{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, data).Err()
}

func (b *RedisBus) forward(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	for msg := range sub.Channel() {
		var env redisEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			b.log.Warn().Err(err).Msg("unreadable bus message, dropped")
			continue
		}
		b.hub.Publish(env.Topic, env.Payload)
	}
}

func (b *RedisBus) Close() error {
	b.cancel()
	return b.rdb.Close()
}
