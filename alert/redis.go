package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/SkogAI/agentpool/health"
)

// RedisSink publishes events as JSON to a Redis channel so other deployment
// components can subscribe to pool alerts.
type RedisSink struct {
	rdb     *redis.Client
	channel string
}

// RedisOption configures a RedisSink
type RedisOption func(*RedisSink)

// WithChannel overrides the publish channel.
func WithChannel(channel string) RedisOption {
	return func(s *RedisSink) {
		if c := strings.TrimSpace(channel); c != "" {
			s.channel = c
		}
	}
}

// NewRedisSink creates a sink publishing to rdb.
func NewRedisSink(rdb *redis.Client, opts ...RedisOption) *RedisSink {
	s := &RedisSink{
		rdb:     rdb,
		channel: "agentpool:alerts",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit publishes the event. A nil client is a silent no-op so the sink can
// be wired unconditionally.
func (s *RedisSink) Emit(ctx context.Context, ev health.Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish alert to %s: %w", s.channel, err)
	}
	return nil
}
