package metrics

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/logger"
)

// Sink receives snapshots
type Sink interface {
	Push(ctx context.Context, s Snapshot) error
	Close() error
}

// NopSink discards snapshots
type NopSink struct{}

func (NopSink) Push(context.Context, Snapshot) error { return nil }
func (NopSink) Close() error                          { return nil }

// LogSink writes snapshots to the structured log
type LogSink struct {
	logger *zap.SugaredLogger
}

// NewLogSink creates a log sink
func NewLogSink(log *zap.SugaredLogger) *LogSink {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LogSink{logger: log}
}

func (l *LogSink) Push(ctx context.Context, s Snapshot) error {
	l.logger.Infow("Metrics snapshot",
		logger.FieldState, s.State,
		logger.FieldProcessed, s.JobsProcessed,
		logger.FieldFailed, s.JobsFailed,
		logger.FieldPending, s.JobsPending,
		logger.FieldDailySpend, s.SpentTodayUSD,
		logger.FieldTotalSpend, s.SpentTotalUSD,
		"jobs_per_hour", s.JobsPerHour,
		"eta_days", s.ETADays,
		"degraded", s.Degraded)
	return nil
}

func (l *LogSink) Close() error { return nil }

// RedisSink stores the latest snapshot in a hash and publishes it as JSON
type RedisSink struct {
	client  *redis.Client
	key     string
	channel string
}

// NewRedisSink connects to cfg.RedisURL (redis:// or rediss://)
func NewRedisSink(cfg am.MetricsConfig) (*RedisSink, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid metrics.redis_url")
	}
	return NewRedisSinkWithClient(redis.NewClient(opts), cfg.Key, cfg.Channel), nil
}

// NewRedisSinkWithClient wraps an existing client
func NewRedisSinkWithClient(client *redis.Client, key, channel string) *RedisSink {
	return &RedisSink{client: client, key: key, channel: channel}
}

func (r *RedisSink) Push(ctx context.Context, s Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key, s.Fields())
	if r.channel != "" {
		pipe.Publish(ctx, r.channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.MarkTransient(errors.Wrap(err, "push snapshot to redis"))
	}
	return nil
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}

// NewSink builds the sink named by cfg
func NewSink(cfg am.MetricsConfig, log *zap.SugaredLogger) (Sink, error) {
	switch cfg.Sink {
	case "", "none":
		return NopSink{}, nil
	case "log":
		return NewLogSink(log), nil
	case "redis":
		return NewRedisSink(cfg)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "unknown metrics sink %q", cfg.Sink)
	}
}
