package metrics

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/logger"
)

// pushTimeout bounds a single push so a stuck sink cannot pile up cron runs
const pushTimeout = 10 * time.Second

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Provider builds the snapshot to push
type Provider func() Snapshot

// Pusher pushes snapshots to a sink on a cron schedule
type Pusher struct {
	c        *cron.Cron
	sink     Sink
	provider Provider
	logger   *zap.SugaredLogger
}

// NewPusher parses schedule ("@every 5m", "*/10 * * * *") and registers the push
func NewPusher(schedule string, sink Sink, provider Provider, log *zap.SugaredLogger) (*Pusher, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Pusher{
		c:        cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sink:     sink,
		provider: provider,
		logger:   log,
	}
	if _, err := p.c.AddFunc(schedule, func() { p.PushNow(context.Background()) }); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "metrics.schedule %q: %v", schedule, err)
	}
	return p, nil
}

// Start begins the schedule
func (p *Pusher) Start() {
	p.c.Start()
}

// PushNow pushes one snapshot, logging failures
func (p *Pusher) PushNow(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	snap := p.provider()
	if err := p.sink.Push(ctx, snap); err != nil {
		p.logger.Warnw("Metrics push failed", logger.FieldError, err)
	}
}

// Stop halts the schedule, waits for a running push, then pushes a final snapshot
func (p *Pusher) Stop(ctx context.Context) {
	done := p.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	p.PushNow(ctx)
	if err := p.sink.Close(); err != nil {
		p.logger.Debugw("Metrics sink close failed", logger.FieldError, err)
	}
}
