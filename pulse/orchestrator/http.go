package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/internal/httpclient"
	"github.com/Diomandeee/learnnko-sub000/logger"
	"github.com/Diomandeee/learnnko-sub000/pulse/jobs"
)

// HTTPOrchestrator POSTs the job to the analysis service and reads a Result back.
// The per-job timeout comes from ctx.
type HTTPOrchestrator struct {
	url    string
	client *resty.Client
	logger *zap.SugaredLogger
}

// NewHTTPOrchestrator creates an orchestrator for url
func NewHTTPOrchestrator(url, apiKey string, log *zap.SugaredLogger) *HTTPOrchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &HTTPOrchestrator{
		url:    url,
		client: httpclient.New(httpclient.Options{APIKey: apiKey}),
		logger: log,
	}
}

// Process implements Orchestrator
func (h *HTTPOrchestrator) Process(ctx context.Context, job jobs.Job) (Result, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(job).
		Post(h.url)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{Status: StatusError}, errors.Mark(errors.Wrapf(err, "dispatch %s", job.ID), errors.ErrTimeout)
		}
		return Result{Status: StatusError}, errors.Wrapf(err, "dispatch %s", job.ID)
	}

	var res Result
	decodeErr := json.Unmarshal(resp.Body(), &res)

	if statusErr := httpclient.StatusError(resp); statusErr != nil {
		// Error responses may still report what was spent
		if decodeErr != nil || res.Status == "" {
			res = Result{Status: StatusError}
		}
		if res.CostUSD < 0 {
			res.CostUSD = 0
		}
		return res, statusErr
	}
	if decodeErr != nil {
		return Result{Status: StatusError}, errors.Wrapf(decodeErr, "parse result for %s", job.ID)
	}

	res, err = normalize(res)
	if err != nil {
		return Result{Status: StatusError}, errors.Wrapf(err, "result for %s", job.ID)
	}

	h.logger.Debugw("Dispatch returned",
		logger.FieldJobID, job.ID,
		"status", res.Status,
		logger.FieldCostUSD, res.CostUSD)
	return res, nil
}
