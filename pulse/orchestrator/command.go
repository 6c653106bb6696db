package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/logger"
	"github.com/Diomandeee/learnnko-sub000/pulse/jobs"
)

// stderrLimit bounds how much subprocess stderr is kept in error messages
const stderrLimit = 2048

// CommandOrchestrator runs a subprocess per job. The job is written to stdin
// as JSON; the last non-empty stdout line must be the Result JSON, so the
// pipeline may print progress before it.
type CommandOrchestrator struct {
	argv      []string
	waitDelay time.Duration
	logger    *zap.SugaredLogger
}

// NewCommandOrchestrator creates an orchestrator running argv
func NewCommandOrchestrator(argv []string, log *zap.SugaredLogger) *CommandOrchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CommandOrchestrator{
		argv:      append([]string(nil), argv...),
		waitDelay: 5 * time.Second,
		logger:    log,
	}
}

// Process implements Orchestrator
func (c *CommandOrchestrator) Process(ctx context.Context, job jobs.Job) (Result, error) {
	input, err := json.Marshal(job)
	if err != nil {
		return Result{Status: StatusError}, errors.Wrap(err, "marshal job")
	}

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children that keep the pipes open must not outlive the deadline
	cmd.WaitDelay = c.waitDelay

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return Result{Status: StatusError}, errors.Mark(
			errors.Newf("dispatch %s: timed out after %s", job.ID, elapsed.Round(time.Millisecond)),
			errors.ErrTimeout)
	}

	res, parseErr := lastResultLine(stdout.Bytes())
	if runErr != nil {
		if parseErr != nil {
			res = Result{Status: StatusError}
		}
		return res, errors.WithDetail(
			errors.Wrapf(runErr, "dispatch %s", job.ID),
			tail(stderr.String()))
	}
	if parseErr != nil {
		return Result{Status: StatusError}, errors.Wrapf(parseErr, "parse result for %s", job.ID)
	}
	if res, err = normalize(res); err != nil {
		return Result{Status: StatusError}, errors.Wrapf(err, "result for %s", job.ID)
	}

	c.logger.Debugw("Subprocess returned",
		logger.FieldJobID, job.ID,
		"status", res.Status,
		logger.FieldCostUSD, res.CostUSD,
		logger.FieldDurationMS, elapsed.Milliseconds())
	return res, nil
}

// lastResultLine decodes the last non-empty line of out
func lastResultLine(out []byte) (Result, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return Result{}, errors.New("parse result: empty stdout")
	}
	var res Result
	if err := json.Unmarshal([]byte(last), &res); err != nil {
		return Result{}, errors.Wrap(err, "parse result")
	}
	return res, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrLimit {
		return "..." + s[len(s)-stderrLimit:]
	}
	return s
}
