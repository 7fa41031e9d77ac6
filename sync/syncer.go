// Package sync drives incremental resource polling: it resumes a paginated
// listing from the last durable checkpoint, feeds every record to a caller
// sink, and leaves a fresh checkpoint behind after each page so interrupted
// runs pick up where they stopped.
package sync

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/paginate"
	"github.com/google/uuid"
)

// timeParamLayout is the wire format for time-window query parameters.
const timeParamLayout = "2006-01-02T15:04:05Z"

// Sink receives one raw record at a time. Returning an error stops the run;
// the checkpoint of the last fully fetched page stays durable.
type Sink func(ctx context.Context, record map[string]any) error

// RunRequest describes one incremental walk over a listing endpoint.
type RunRequest struct {
	// Resource keys the checkpoint and defaults the endpoint path
	// ("issues" -> "/issues").
	Resource string
	// Path overrides the derived endpoint path.
	Path string
	// Query carries fixed query parameters merged into every page request.
	Query map[string]string
	// Since and Until bound the listing window via start_time/end_time.
	Since time.Time
	Until time.Time
	// PageSize overrides the iterator default when positive.
	PageSize int
	Sink     Sink
}

// RunResult summarizes a finished or interrupted run.
type RunResult struct {
	RunID   string
	Records int
	Pages   int
	Cursor  string
}

// Syncer runs incremental listings over a shared transport. The zero delay
// and clock fields fall back to sensible defaults; tests swap them.
type Syncer struct {
	Transport   core.Transport
	Checkpoints core.CheckpointStore
	PageDelay   time.Duration
	Logger      core.Logger
	Now         func() time.Time
}

func NewSyncer(transport core.Transport, checkpoints core.CheckpointStore) *Syncer {
	return &Syncer{
		Transport:   transport,
		Checkpoints: checkpoints,
		Logger:      glog.Nop(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Run walks the listing once. A stored checkpoint for the resource seeds the
// start cursor; every fetched page refreshes it. On a sink or transport
// failure the result reports the progress made before the error.
func (s *Syncer) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if s == nil || s.Transport == nil {
		return RunResult{}, goerrors.New("sync: transport is required", goerrors.CategoryBadInput)
	}
	if req.Sink == nil {
		return RunResult{}, goerrors.New("sync: sink is required", goerrors.CategoryBadInput)
	}
	resource := strings.TrimSpace(req.Resource)
	if resource == "" {
		return RunResult{}, goerrors.New("sync: resource is required", goerrors.CategoryBadInput)
	}

	result := RunResult{RunID: uuid.NewString()}

	startCursor := ""
	if s.Checkpoints != nil {
		checkpoint, err := s.Checkpoints.Load(ctx, resource)
		switch {
		case err == nil:
			startCursor = strings.TrimSpace(checkpoint.Cursor)
		case errors.Is(err, core.ErrCheckpointNotFound):
		default:
			return result, err
		}
	}

	it, err := s.iterator(req, resource, startCursor)
	if err != nil {
		return result, err
	}

	for {
		record, err := it.Next(ctx)
		if errors.Is(err, paginate.ErrDone) {
			break
		}
		result.Pages = it.Pages()
		result.Cursor = it.Cursor()
		if err != nil {
			s.logRun(ctx, resource, result, err)
			return result, err
		}
		if err := req.Sink(ctx, record); err != nil {
			s.logRun(ctx, resource, result, err)
			return result, goerrors.Wrap(err, goerrors.CategoryOperation, "sync: sink failed").
				WithMetadata(map[string]any{
					"resource": resource,
					"run_id":   result.RunID,
				})
		}
		result.Records++
	}

	result.Pages = it.Pages()
	result.Cursor = it.Cursor()
	s.logRun(ctx, resource, result, nil)
	return result, nil
}

func (s *Syncer) iterator(
	req RunRequest,
	resource string,
	startCursor string,
) (*paginate.Iterator[map[string]any], error) {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		path = "/" + resource
	}

	query := map[string]string{}
	for key, value := range req.Query {
		query[key] = value
	}
	if !req.Since.IsZero() {
		query["start_time"] = req.Since.UTC().Format(timeParamLayout)
	}
	if !req.Until.IsZero() {
		query["end_time"] = req.Until.UTC().Format(timeParamLayout)
	}

	template := core.Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
	}

	opts := []paginate.Option{
		paginate.WithPageDelay(s.PageDelay),
		paginate.WithStartCursor(startCursor),
	}
	if req.PageSize > 0 {
		opts = append(opts, paginate.WithPageSize(req.PageSize))
	}
	if s.Checkpoints != nil {
		opts = append(opts, paginate.WithCheckpointStore(s.Checkpoints, resource))
	}
	return paginate.New[map[string]any](s.Transport, template, opts...)
}

func (s *Syncer) logRun(ctx context.Context, resource string, result RunResult, cause error) {
	if s == nil || s.Logger == nil {
		return
	}
	logger := s.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{
		"run_id", result.RunID,
		"resource", resource,
		"records", result.Records,
		"pages", result.Pages,
		"cursor", result.Cursor,
	}
	if cause != nil {
		logger.Error("incremental sync interrupted", append(args, "error", cause.Error())...)
		return
	}
	logger.Info("incremental sync completed", args...)
}
