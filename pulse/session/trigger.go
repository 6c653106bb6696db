package session

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/internal/httpclient"
	"github.com/Diomandeee/learnnko-sub000/logger"
)

// Trigger signals the downstream training service that a session closed
type Trigger interface {
	Fire(ctx context.Context, s Summary) error
}

// HTTPTrigger POSTs the session summary to the training service
type HTTPTrigger struct {
	url    string
	client *resty.Client
	logger *zap.SugaredLogger
}

// NewHTTPTrigger creates a trigger posting to url
func NewHTTPTrigger(url string, timeout time.Duration, log *zap.SugaredLogger) *HTTPTrigger {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &HTTPTrigger{
		url:    url,
		client: httpclient.New(httpclient.Options{Timeout: timeout}),
		logger: log,
	}
}

// Fire implements Trigger
func (h *HTTPTrigger) Fire(ctx context.Context, s Summary) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(s).
		Post(h.url)
	if err != nil {
		return errors.MarkTransient(errors.Wrap(err, "post training trigger"))
	}
	if err := httpclient.StatusError(resp); err != nil {
		return err
	}
	h.logger.Infow("Training trigger accepted",
		logger.FieldSessionID, s.SessionID,
		"status", resp.StatusCode())
	return nil
}

// LogTrigger only logs the summary; used when no trigger URL is configured
type LogTrigger struct {
	logger *zap.SugaredLogger
}

// NewLogTrigger creates a log-only trigger
func NewLogTrigger(log *zap.SugaredLogger) *LogTrigger {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LogTrigger{logger: log}
}

// Fire implements Trigger
func (l *LogTrigger) Fire(ctx context.Context, s Summary) error {
	l.logger.Infow("Training trigger (log only)",
		logger.FieldSessionID, s.SessionID,
		logger.FieldProcessed, s.JobsProcessed,
		logger.FieldCostUSD, s.CostUSD)
	return nil
}

// NewTrigger picks the trigger for cfg
func NewTrigger(cfg am.TrainingConfig, log *zap.SugaredLogger) Trigger {
	if cfg.TriggerURL == "" {
		return NewLogTrigger(log)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewHTTPTrigger(cfg.TriggerURL, timeout, log)
}
