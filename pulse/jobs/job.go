// Package jobs fetches the ordered work list once per run and caches it locally.
package jobs

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/Diomandeee/learnnko-sub000/errors"
)

// Job is one unit of work: a video to analyze
type Job struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// envelope accepts the object shapes work lists come in
type envelope struct {
	Jobs    []Job `json:"jobs"`
	Videos  []Job `json:"videos"`
	Items   []Job `json:"items"`
	HasMore bool  `json:"has_more"`
}

// decodeList parses a bare array or an object holding jobs/videos/items.
// hasMore is only meaningful for paginated HTTP responses.
func decodeList(data []byte) (list []Job, hasMore bool, err error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, false, errors.Wrap(err, "parse job list")
		}
		return list, false, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, errors.Wrap(err, "parse job list")
	}
	switch {
	case env.Jobs != nil:
		return env.Jobs, env.HasMore, nil
	case env.Videos != nil:
		return env.Videos, env.HasMore, nil
	default:
		return env.Items, env.HasMore, nil
	}
}

// Normalize drops jobs without an id and later duplicates, keeping fetch order
func Normalize(list []Job, log *zap.SugaredLogger) []Job {
	seen := make(map[string]struct{}, len(list))
	out := make([]Job, 0, len(list))
	for _, j := range list {
		j.ID = strings.TrimSpace(j.ID)
		if j.ID == "" {
			if log != nil {
				log.Warnw("Skipping job without id", "url", j.URL)
			}
			continue
		}
		if _, dup := seen[j.ID]; dup {
			if log != nil {
				log.Warnw("Skipping duplicate job id", "job_id", j.ID)
			}
			continue
		}
		seen[j.ID] = struct{}{}
		out = append(out, j)
	}
	return out
}
