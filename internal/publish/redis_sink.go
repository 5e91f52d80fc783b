// Package publish 把扫描结果推送到外部系统。
package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"tri-arb-go/infrastructure/logger"
	"tri-arb-go/internal/engine"
)

// RedisOptions Redis 推送配置
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Key 保存最近一次扫描 JSON；Key+":top" 为按费后收益排序的 zset。
	Key     string
	Channel string
	TTL     time.Duration
	// TopN zset 中最多保留的机会数。
	TopN int
}

// RedisSink 每次扫描：SET 最近结果、重建 top zset、PUBLISH 到频道，在一个 pipeline 中完成。
type RedisSink struct {
	client *redis.Client
	opts   RedisOptions
	logger *logger.Logger
}

func NewRedisSink(opts RedisOptions, log *logger.Logger) *RedisSink {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Key == "" {
		opts.Key = "triarb:last_scan"
	}
	if opts.TopN <= 0 {
		opts.TopN = 50
	}
	log.Info("initializing Redis sink", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	rdb := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 2 * time.Second,
		MaxRetries:  1,
	})
	return &RedisSink{client: rdb, opts: opts, logger: log}
}

func (r *RedisSink) Name() string { return "redis" }

// Client 共享连接，告警通道复用。
func (r *RedisSink) Client() *redis.Client { return r.client }

func (r *RedisSink) topKey() string { return r.opts.Key + ":top" }

// Publish 实现 engine.ResultSink。
func (r *RedisSink) Publish(ctx context.Context, res engine.ScanResult) error {
	payload, err := sonnet.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode scan result: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.opts.Key, payload, r.opts.TTL)
	pipe.Del(ctx, r.topKey())
	if members := topMembers(res, r.opts.TopN); len(members) > 0 {
		pipe.ZAdd(ctx, r.topKey(), members...)
		if r.opts.TTL > 0 {
			pipe.Expire(ctx, r.topKey(), r.opts.TTL)
		}
	}
	if r.opts.Channel != "" {
		pipe.Publish(ctx, r.opts.Channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	r.logger.Debug("scan published", zap.String("key", r.opts.Key), zap.Int("opportunities", res.CountOpportunities))
	return nil
}

// topMembers 成员为规范三角 "A>B>C"，分值为费后收益。
func topMembers(res engine.ScanResult, n int) []*redis.Z {
	if len(res.Opportunities) < n {
		n = len(res.Opportunities)
	}
	out := make([]*redis.Z, 0, n)
	for _, o := range res.Opportunities[:n] {
		out = append(out, &redis.Z{
			Score:  o.ProfitAfterFeesPct,
			Member: strings.Join(o.Triangle[:], ">"),
		})
	}
	return out
}

// Start 探测连通性；Redis 暂不可用只记录日志，推送失败由引擎计数。
func (r *RedisSink) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		r.logger.LogError(err, map[string]interface{}{"component": "redis_sink", "action": "ping"})
	}
	return nil
}

func (r *RedisSink) Stop() error {
	r.logger.Info("closing Redis sink")
	return r.client.Close()
}

func (r *RedisSink) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
