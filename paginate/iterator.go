// Package paginate walks cursor-paginated list endpoints. An Iterator fetches
// pages lazily through a core.Transport and yields typed records one at a
// time, pacing page fetches and optionally checkpointing cursors so
// interrupted walks can resume.
package paginate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-pylon/core"
)

// ErrDone reports that iteration ran out of records.
var ErrDone = errors.New("paginate: no more records")

type options struct {
	pageSize     int
	delay        time.Duration
	startCursor  string
	cursorInBody *bool
	checkpoints  core.CheckpointStore
	resource     string
}

type Option func(*options)

// WithPageSize sets the per-page record count. Values at or below zero omit
// the limit parameter and accept the server default.
func WithPageSize(size int) Option {
	return func(o *options) {
		o.pageSize = size
	}
}

// WithPageDelay sets the pause between consecutive page fetches. The pause
// never runs before the first page or after the last.
func WithPageDelay(delay time.Duration) Option {
	return func(o *options) {
		o.delay = delay
	}
}

// WithStartCursor resumes iteration from a previously observed cursor.
func WithStartCursor(cursor string) Option {
	return func(o *options) {
		o.startCursor = strings.TrimSpace(cursor)
	}
}

// WithCursorInBody carries the cursor and limit inside the JSON request body,
// the shape search endpoints expect.
func WithCursorInBody() Option {
	return func(o *options) {
		mode := true
		o.cursorInBody = &mode
	}
}

// WithCursorInQuery forces cursor and limit into the query string even for
// POST requests.
func WithCursorInQuery() Option {
	return func(o *options) {
		mode := false
		o.cursorInBody = &mode
	}
}

// WithCheckpointStore persists the continuation cursor under resource after
// every fetched page.
func WithCheckpointStore(store core.CheckpointStore, resource string) Option {
	return func(o *options) {
		o.checkpoints = store
		o.resource = strings.TrimSpace(resource)
	}
}

// Iterator yields records of type T from a cursor-paginated endpoint.
// Iterators are not safe for concurrent use; Stream provides a channel view
// for fan-out.
type Iterator[T any] struct {
	transport    core.Transport
	template     core.Request
	pageSize     int
	delay        time.Duration
	cursorInBody bool
	checkpoints  core.CheckpointStore
	resource     string

	cursor    string
	requestID string
	started   bool
	done      bool
	pages     int
	buffer    []json.RawMessage
	index     int

	// sleep and now are swapped by tests.
	sleep func(ctx context.Context, delay time.Duration) error
	now   func() time.Time
}

func New[T any](transport core.Transport, template core.Request, opts ...Option) (*Iterator[T], error) {
	if transport == nil {
		return nil, fmt.Errorf("paginate: transport is required")
	}
	if strings.TrimSpace(template.Path) == "" {
		return nil, fmt.Errorf("paginate: request path is required")
	}

	cfg := options{
		pageSize: core.DefaultPageSize,
		delay:    core.DefaultPageDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	inBody := strings.EqualFold(strings.TrimSpace(template.Method), http.MethodPost)
	if cfg.cursorInBody != nil {
		inBody = *cfg.cursorInBody
	}

	return &Iterator[T]{
		transport:    transport,
		template:     template.Clone(),
		pageSize:     cfg.pageSize,
		delay:        cfg.delay,
		cursorInBody: inBody,
		checkpoints:  cfg.checkpoints,
		resource:     cfg.resource,
		cursor:       cfg.startCursor,
		sleep:        waitContext,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Next returns the next record, fetching pages as needed. It returns ErrDone
// once the endpoint reports no further pages and the buffer drains.
func (it *Iterator[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if it == nil || it.transport == nil {
		return zero, fmt.Errorf("paginate: iterator requires a transport")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for it.index >= len(it.buffer) {
		if it.done {
			return zero, ErrDone
		}
		if err := it.fetch(ctx); err != nil {
			return zero, err
		}
	}

	raw := it.buffer[it.index]
	it.index++

	var record T
	if err := json.Unmarshal(raw, &record); err != nil {
		return zero, malformedError("paginate: decode record", err, map[string]any{
			"request_id": it.requestID,
		})
	}
	return record, nil
}

// Collect drains the iterator. On failure it returns the records gathered so
// far along with the error.
func (it *Iterator[T]) Collect(ctx context.Context) ([]T, error) {
	records := []T{}
	for {
		record, err := it.Next(ctx)
		if errors.Is(err, ErrDone) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
}

// Stream drains the iterator on its own goroutine. The record channel closes
// when iteration ends; at most one error arrives on the error channel.
func (it *Iterator[T]) Stream(ctx context.Context) (<-chan T, <-chan error) {
	records := make(chan T)
	failures := make(chan error, 1)
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer close(records)
		defer close(failures)
		for {
			record, err := it.Next(ctx)
			if errors.Is(err, ErrDone) {
				return
			}
			if err != nil {
				failures <- err
				return
			}
			select {
			case records <- record:
			case <-ctx.Done():
				failures <- cancelledError(ctx.Err())
				return
			}
		}
	}()
	return records, failures
}

// Cursor reports the continuation cursor after the most recent page.
func (it *Iterator[T]) Cursor() string {
	if it == nil {
		return ""
	}
	return it.cursor
}

// RequestID reports the provider request id of the most recent page.
func (it *Iterator[T]) RequestID() string {
	if it == nil {
		return ""
	}
	return it.requestID
}

// Done reports whether the endpoint has no further pages. Buffered records
// may still remain for Next.
func (it *Iterator[T]) Done() bool {
	return it == nil || it.done
}

// Pages reports how many pages have been fetched so far.
func (it *Iterator[T]) Pages() int {
	if it == nil {
		return 0
	}
	return it.pages
}

func (it *Iterator[T]) fetch(ctx context.Context) error {
	if it.started && it.delay > 0 {
		if err := it.sleep(ctx, it.delay); err != nil {
			return cancelledError(err)
		}
	}

	req, err := it.pageRequest()
	if err != nil {
		return err
	}
	res, err := it.transport.Execute(ctx, req)
	if err != nil {
		return err
	}
	if res == nil {
		return malformedError("paginate: transport returned no response", nil, nil)
	}
	envelope, err := parseEnvelope(res.Body)
	if err != nil {
		return err
	}

	it.started = true
	it.pages++
	it.buffer = envelope.Data
	it.index = 0
	it.cursor = envelope.cursor()
	it.done = !envelope.hasMore()
	it.requestID = envelope.RequestID
	if it.requestID == "" {
		it.requestID = res.RequestID
	}

	if it.checkpoints != nil && it.resource != "" {
		checkpoint := core.Checkpoint{
			Resource:  it.resource,
			Cursor:    it.cursor,
			UpdatedAt: it.now(),
		}
		if err := it.checkpoints.Save(ctx, checkpoint); err != nil {
			return err
		}
	}
	return nil
}

func (it *Iterator[T]) pageRequest() (core.Request, error) {
	req := it.template.Clone()
	if it.cursorInBody {
		payload := map[string]any{}
		if len(req.Body) > 0 {
			if err := json.Unmarshal(req.Body, &payload); err != nil {
				return core.Request{}, fmt.Errorf("paginate: request body must be a json object: %w", err)
			}
		}
		if it.pageSize > 0 {
			payload["limit"] = it.pageSize
		}
		if it.cursor != "" {
			payload["cursor"] = it.cursor
		} else {
			delete(payload, "cursor")
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return core.Request{}, fmt.Errorf("paginate: encode page request: %w", err)
		}
		req.Body = body
		return req, nil
	}

	if req.Query == nil {
		req.Query = map[string]string{}
	}
	if it.pageSize > 0 {
		req.Query["limit"] = strconv.Itoa(it.pageSize)
	}
	if it.cursor != "" {
		req.Query["cursor"] = it.cursor
	}
	return req, nil
}

func waitContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
