package alert

import (
	"context"
	"fmt"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"tri-arb-go/infrastructure/logger"
)

// LogChannel 写入结构化日志
type LogChannel struct {
	logger *logger.Logger
}

func NewLogChannel(log *logger.Logger) *LogChannel {
	if log == nil {
		log = logger.Nop()
	}
	return &LogChannel{logger: log}
}

func (c *LogChannel) Send(a Alert) error {
	fields := make([]zap.Field, 0, len(a.Fields)+2)
	fields = append(fields, zap.String("level", string(a.Level)), zap.Time("at", a.Timestamp))
	for k, v := range a.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	msg := "[ALERT] " + a.Message
	switch a.Level {
	case LevelCritical:
		c.logger.Error(msg, fields...)
	case LevelWarning:
		c.logger.Warn(msg, fields...)
	default:
		c.logger.Info(msg, fields...)
	}
	return nil
}

func (c *LogChannel) Name() string { return "log" }

// redisPublisher go-redis 客户端的发布子集
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisChannel 把告警以 JSON PUBLISH 到 Redis 频道
type RedisChannel struct {
	client  redisPublisher
	channel string
	timeout time.Duration
}

func NewRedisChannel(client redisPublisher, channel string) *RedisChannel {
	return &RedisChannel{client: client, channel: channel, timeout: 2 * time.Second}
}

type alertPayload struct {
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (c *RedisChannel) Send(a Alert) error {
	payload, err := sonnet.Marshal(alertPayload{Level: a.Level, Message: a.Message, Timestamp: a.Timestamp, Fields: a.Fields})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.client.Publish(ctx, c.channel, payload).Err()
}

func (c *RedisChannel) Name() string { return "redis:" + c.channel }
