// Package orchestrator dispatches one job to the external analysis pipeline.
//
// The scheduler only needs to know what a dispatch cost and whether it
// succeeded; everything else about processing a video lives behind the
// Orchestrator interface.
package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/pulse/jobs"
)

// Status is the terminal status reported for a dispatch
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusError     Status = "ERROR"
)

// Result is what the pipeline reports for one job
type Result struct {
	Status  Status                 `json:"status"`
	CostUSD float64                `json:"cost_usd"`
	Stats   map[string]interface{} `json:"stats,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Succeeded reports whether the job completed
func (r Result) Succeeded() bool {
	return r.Status == StatusCompleted
}

// Orchestrator processes a single job.
//
// A non-nil error means the dispatch itself failed (transport, timeout,
// unreadable result); the returned Result still carries any cost the
// pipeline reported. Implementations must honor ctx cancellation.
type Orchestrator interface {
	Process(ctx context.Context, job jobs.Job) (Result, error)
}

// Func adapts a function to the Orchestrator interface
type Func func(ctx context.Context, job jobs.Job) (Result, error)

// Process implements Orchestrator
func (f Func) Process(ctx context.Context, job jobs.Job) (Result, error) {
	return f(ctx, job)
}

// New builds the orchestrator named by cfg
func New(cfg am.OrchestratorConfig, log *zap.SugaredLogger) (Orchestrator, error) {
	switch cfg.Kind {
	case "http":
		return NewHTTPOrchestrator(cfg.URL, cfg.APIKey, log), nil
	case "command":
		argv, err := cfg.Argv()
		if err != nil {
			return nil, err
		}
		if len(argv) == 0 {
			return nil, errors.Wrap(errors.ErrInvalidConfig, "orchestrator.command is empty")
		}
		return NewCommandOrchestrator(argv, log), nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "unknown orchestrator kind %q", cfg.Kind)
	}
}

// normalize validates a decoded result
func normalize(res Result) (Result, error) {
	if res.CostUSD < 0 {
		return res, errors.Newf("invalid result: negative cost_usd %f", res.CostUSD)
	}
	switch res.Status {
	case StatusCompleted, StatusFailed, StatusError:
		return res, nil
	case "":
		return res, errors.New("invalid result: missing status")
	default:
		return res, errors.Newf("invalid result: unknown status %q", res.Status)
	}
}
