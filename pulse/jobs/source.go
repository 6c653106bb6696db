package jobs

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Diomandeee/learnnko-sub000/am"
	"github.com/Diomandeee/learnnko-sub000/errors"
	"github.com/Diomandeee/learnnko-sub000/internal/httpclient"
)

// Source fetches the full ordered job list
type Source interface {
	// Identity names the source for cache keying ("file:/path", "http:https://...")
	Identity() string
	Fetch(ctx context.Context) ([]Job, error)
}

// FileSource reads the job list from a local JSON file
type FileSource struct {
	path string
}

// NewFileSource creates a source for path
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Identity() string { return "file:" + s.path }

func (s *FileSource) Fetch(ctx context.Context) ([]Job, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "read work list %s", s.path)
	}
	list, _, err := decodeList(data)
	if err != nil {
		return nil, errors.Wrapf(err, "work list %s", s.path)
	}
	return list, nil
}

// maxPages bounds pagination against a server that never stops reporting has_more
const maxPages = 10000

// HTTPSource fetches the job list page by page, pacing requests with a token bucket
type HTTPSource struct {
	url      string
	pageSize int
	client   *resty.Client
	limiter  *rate.Limiter
	logger   *zap.SugaredLogger
}

// NewHTTPSource creates a source for cfg.URL
func NewHTTPSource(cfg am.WorkSourceConfig, apiKey string, log *zap.SugaredLogger) *HTTPSource {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &HTTPSource{
		url:      cfg.URL,
		pageSize: cfg.PageSize,
		client:   httpclient.New(httpclient.Options{Timeout: 60 * time.Second, APIKey: apiKey}),
		limiter:  rate.NewLimiter(limit, 1),
		logger:   log,
	}
}

func (s *HTTPSource) Identity() string { return "http:" + s.url }

func (s *HTTPSource) Fetch(ctx context.Context) ([]Job, error) {
	if _, err := httpclient.ValidateURL(s.url, httpclient.Options{}); err != nil {
		return nil, errors.Wrap(err, "work source url")
	}

	var all []Job
	for page := 1; page <= maxPages; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "work source rate limiter")
		}

		req := s.client.R().SetContext(ctx)
		if s.pageSize > 0 {
			req.SetQueryParams(map[string]string{
				"page":      strconv.Itoa(page),
				"page_size": strconv.Itoa(s.pageSize),
			})
		}
		resp, err := req.Get(s.url)
		if err != nil {
			return nil, errors.MarkTransient(errors.Wrapf(err, "fetch work list page %d", page))
		}
		if err := httpclient.StatusError(resp); err != nil {
			return nil, errors.Wrapf(err, "fetch work list page %d", page)
		}

		list, hasMore, err := decodeList(resp.Body())
		if err != nil {
			return nil, errors.Wrapf(err, "work list page %d", page)
		}
		all = append(all, list...)
		s.logger.Debugw("Fetched work list page", "page", page, "count", len(list))

		if !hasMore || len(list) == 0 || s.pageSize <= 0 {
			return all, nil
		}
	}
	return nil, errors.Newf("work source %s exceeded %d pages", s.url, maxPages)
}

// NewSource builds the Source named by cfg
func NewSource(cfg am.WorkSourceConfig, apiKey string, log *zap.SugaredLogger) (Source, error) {
	switch cfg.Kind {
	case "file":
		return NewFileSource(cfg.Path), nil
	case "http":
		return NewHTTPSource(cfg, apiKey, log), nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "unknown work source kind %q", cfg.Kind)
	}
}
