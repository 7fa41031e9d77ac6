package core

import (
	"context"
	"errors"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Request describes one provider API call before transport execution. Query
// keys are encoded in sorted order so equal requests produce equal URLs.
type Request struct {
	Method               string
	Path                 string
	Query                map[string]string
	Headers              map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

// Clone returns a deep copy so signers and retries never mutate the caller's
// request.
func (r Request) Clone() Request {
	out := r
	if len(r.Query) > 0 {
		out.Query = make(map[string]string, len(r.Query))
		for key, value := range r.Query {
			out.Query[key] = value
		}
	}
	if len(r.Headers) > 0 {
		out.Headers = make(map[string]string, len(r.Headers))
		for key, value := range r.Headers {
			out.Headers[key] = value
		}
	}
	if len(r.Body) > 0 {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	RequestID  string
	Metadata   map[string]any
}

// Page is one decoded page of a cursor-paginated listing. Records keep the
// array order the provider returned them in.
type Page struct {
	Records   []map[string]any
	Cursor    string
	HasMore   bool
	RequestID string
}

type Transport interface {
	Kind() string
	Execute(ctx context.Context, req Request) (*Response, error)
}

type Signer interface {
	Sign(ctx context.Context, req *Request) error
}

var ErrCheckpointNotFound = errors.New("core: checkpoint not found")

// Checkpoint records the resume cursor for one paginated resource walk.
type Checkpoint struct {
	Resource  string
	Cursor    string
	UpdatedAt time.Time
	Metadata  map[string]any
}

type CheckpointStore interface {
	Load(ctx context.Context, resource string) (Checkpoint, error)
	Save(ctx context.Context, checkpoint Checkpoint) error
}

type ThrottleKey struct {
	Host   string
	Bucket string
}

type ResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
}

type ThrottlePolicy interface {
	BeforeCall(ctx context.Context, key ThrottleKey) error
	AfterCall(ctx context.Context, key ThrottleKey, res ResponseMeta) error
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type CommandMessage interface {
	Type() string
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}
