package transport

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-pylon/core"
)

type blockingTransport struct {
	mu      sync.Mutex
	release chan struct{}
	res     *core.Response
	err     error
	calls   int
}

func (t *blockingTransport) Kind() string { return KindREST }

func (t *blockingTransport) Execute(ctx context.Context, _ core.Request) (*core.Response, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if t.release != nil {
		select {
		case <-t.release:
		case <-ctx.Done():
			return nil, cancellationError(ctx.Err(), nil)
		}
	}
	return t.res, t.err
}

func TestAsyncClient_GoMatchesBlockingResult(t *testing.T) {
	base := &blockingTransport{res: &core.Response{StatusCode: http.StatusOK, Body: []byte(`{"data":[]}`)}}
	async, err := NewAsyncClient(base)
	if err != nil {
		t.Fatalf("create async client: %v", err)
	}

	call := async.Go(context.Background(), core.Request{Method: "GET", Path: "/issues"})
	res, err := call.Result()
	if err != nil {
		t.Fatalf("await call: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}

	again, err := call.Result()
	if err != nil || again != res {
		t.Fatalf("expected repeated awaits to return the same outcome")
	}
}

func TestAsyncClient_CallsRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	base := &blockingTransport{
		release: release,
		res:     &core.Response{StatusCode: http.StatusOK},
	}
	async, err := NewAsyncClient(base)
	if err != nil {
		t.Fatalf("create async client: %v", err)
	}

	first := async.Go(context.Background(), core.Request{Method: "GET", Path: "/issues"})
	second := async.Go(context.Background(), core.Request{Method: "GET", Path: "/accounts"})

	deadline := time.After(time.Second)
	for {
		base.mu.Lock()
		started := base.calls
		base.mu.Unlock()
		if started == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected both calls in flight, saw %d", started)
		case <-time.After(time.Millisecond):
		}
	}

	close(release)
	if _, err := first.Result(); err != nil {
		t.Fatalf("await first call: %v", err)
	}
	if _, err := second.Result(); err != nil {
		t.Fatalf("await second call: %v", err)
	}
}

func TestCall_WaitStopsOnContextWhileCallFinishes(t *testing.T) {
	release := make(chan struct{})
	base := &blockingTransport{
		release: release,
		res:     &core.Response{StatusCode: http.StatusOK},
	}
	async, err := NewAsyncClient(base)
	if err != nil {
		t.Fatalf("create async client: %v", err)
	}

	call := async.Go(context.Background(), core.Request{Method: "GET", Path: "/issues"})

	waitCtx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := call.Wait(waitCtx); !core.IsCancelled(err) {
		t.Fatalf("expected cancellation from wait, got %v", err)
	}

	close(release)
	res, err := call.Result()
	if err != nil {
		t.Fatalf("expected underlying call to finish, got %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 from finished call, got %d", res.StatusCode)
	}
}

func TestAsyncClient_ExecuteDelegatesToBase(t *testing.T) {
	base := &blockingTransport{res: &core.Response{StatusCode: http.StatusOK}}
	async, err := NewAsyncClient(base)
	if err != nil {
		t.Fatalf("create async client: %v", err)
	}

	res, err := async.Execute(context.Background(), core.Request{Method: "GET", Path: "/issues"})
	if err != nil {
		t.Fatalf("execute through async client: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}
	if base.calls != 1 {
		t.Fatalf("expected one delegated call, got %d", base.calls)
	}
}

func TestNewAsyncClient_RequiresBaseTransport(t *testing.T) {
	if _, err := NewAsyncClient(nil); err == nil {
		t.Fatalf("expected base transport requirement error")
	}
}
