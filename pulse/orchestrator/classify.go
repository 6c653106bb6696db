package orchestrator

import (
	"context"
	"strings"

	"github.com/Diomandeee/learnnko-sub000/errors"
)

// FailureCode classifies why a dispatch did not complete
type FailureCode string

const (
	FailureTimeout  FailureCode = "timeout"
	FailureNetwork  FailureCode = "network_error"
	FailureParse    FailureCode = "parse_error"
	FailureRemote   FailureCode = "remote_error"
	FailureCanceled FailureCode = "canceled"
	FailureUnknown  FailureCode = "unknown"
)

// Classify categorizes a dispatch failure from the returned error and result
func Classify(res Result, err error) FailureCode {
	if err == nil {
		if res.Succeeded() {
			return ""
		}
		return FailureRemote
	}

	switch {
	case errors.Is(err, errors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timed out"):
		return FailureTimeout
	case strings.Contains(msg, "parse") || strings.Contains(msg, "unmarshal") || strings.Contains(msg, "invalid result"):
		return FailureParse
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") || strings.Contains(msg, "no such host"):
		return FailureNetwork
	case strings.Contains(msg, "http "):
		return FailureRemote
	default:
		return FailureUnknown
	}
}

// Describe builds the error message recorded for a failed attempt
func Describe(res Result, err error) string {
	code := Classify(res, err)
	switch {
	case err != nil:
		return string(code) + ": " + err.Error()
	case res.Error != "":
		return string(res.Status) + ": " + res.Error
	default:
		return string(res.Status)
	}
}
