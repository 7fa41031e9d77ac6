package transport

import (
	"context"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pylon/core"
)

// Call is an in-flight request. Result blocks until completion; Done lets
// callers multiplex with select. A Call completes exactly once.
type Call struct {
	done chan struct{}
	res  *core.Response
	err  error
}

func (c *Call) Done() <-chan struct{} {
	if c == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

func (c *Call) Result() (*core.Response, error) {
	if c == nil {
		return nil, transportError(
			"transport: call is nil",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	<-c.done
	return c.res, c.err
}

// Wait returns early when ctx ends, leaving the underlying request to finish
// in the background; its own context still governs the attempt.
func (c *Call) Wait(ctx context.Context) (*core.Response, error) {
	if c == nil {
		return nil, transportError(
			"transport: call is nil",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	if ctx == nil {
		return c.Result()
	}
	select {
	case <-c.done:
		return c.res, c.err
	case <-ctx.Done():
		return nil, cancellationError(ctx.Err(), nil)
	}
}

// AsyncClient runs requests on their own goroutines while preserving the
// blocking client's retry and classification semantics.
type AsyncClient struct {
	base core.Transport
}

func NewAsyncClient(base core.Transport) (*AsyncClient, error) {
	if base == nil {
		return nil, transportError(
			"transport: async client requires a base transport",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			nil,
		)
	}
	return &AsyncClient{base: base}, nil
}

func (a *AsyncClient) Kind() string {
	if a == nil || a.base == nil {
		return KindREST
	}
	return a.base.Kind()
}

// Go starts the request immediately and returns a handle to its outcome.
func (a *AsyncClient) Go(ctx context.Context, req core.Request) *Call {
	call := &Call{done: make(chan struct{})}
	if a == nil || a.base == nil {
		call.err = transportError(
			"transport: async client requires a base transport",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
		close(call.done)
		return call
	}
	go func() {
		defer close(call.done)
		call.res, call.err = a.base.Execute(ctx, req)
	}()
	return call
}

// Execute satisfies core.Transport by running the request and waiting on it.
func (a *AsyncClient) Execute(ctx context.Context, req core.Request) (*core.Response, error) {
	return a.Go(ctx, req).Result()
}

var _ core.Transport = (*AsyncClient)(nil)
