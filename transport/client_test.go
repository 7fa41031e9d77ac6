package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-pylon/core"
)

type scriptedStep struct {
	status  int
	headers http.Header
	body    string
	err     error
}

type scriptedDoer struct {
	calls int
	steps []scriptedStep
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	idx := d.calls
	if idx >= len(d.steps) {
		idx = len(d.steps) - 1
	}
	d.calls++
	step := d.steps[idx]
	if step.err != nil {
		return nil, step.err
	}
	headers := step.headers
	if headers == nil {
		headers = http.Header{}
	}
	return &http.Response{
		StatusCode: step.status,
		Header:     headers,
		Body:       io.NopCloser(strings.NewReader(step.body)),
		Request:    req,
	}, nil
}

type countingSigner struct {
	calls int
}

func (s *countingSigner) Sign(_ context.Context, req *core.Request) error {
	s.calls++
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	req.Headers["Authorization"] = "Bearer signed"
	return nil
}

func newScriptedClient(t *testing.T, doer *scriptedDoer, options ...Option) *Client {
	t.Helper()
	cfg := core.DefaultConfig()
	options = append([]Option{WithHTTPClient(doer)}, options...)
	client, err := New(cfg, options...)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	client.sleep = func(context.Context, time.Duration) error { return nil }
	return client
}

func TestClient_ExecuteReturnsDecodedResponse(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{{
		status:  http.StatusOK,
		headers: http.Header{"X-Request-Id": []string{"req_123"}},
		body:    `{"data":[]}`,
	}}}
	client := newScriptedClient(t, doer)

	res, err := client.Execute(context.Background(), core.Request{Method: "GET", Path: "/issues"})
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}
	if res.RequestID != "req_123" {
		t.Fatalf("expected request id from header, got %q", res.RequestID)
	}
	if res.Metadata["kind"] != KindREST {
		t.Fatalf("expected rest metadata kind, got %v", res.Metadata["kind"])
	}
	if doer.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", doer.calls)
	}
}

func TestClient_ExecuteSendsSortedQueryAndBearerAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("expected GET method, got %s", r.Method)
		}
		if r.URL.Path != "/issues" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if r.URL.RawQuery != "cursor=abc&limit=100&status=open" {
			t.Fatalf("expected sorted query encoding, got %q", r.URL.RawQuery)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key_live" {
			t.Fatalf("expected bearer authorization, got %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Fatalf("expected json accept header, got %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "go-pylon" {
			t.Fatalf("expected configured user agent, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	cfg := core.DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.APIKey = "key_live"
	client, err := New(cfg, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	_, err = client.Execute(context.Background(), core.Request{
		Method: "GET",
		Path:   "issues",
		Query:  map[string]string{"status": "open", "cursor": "abc", "limit": "100"},
	})
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
}

func TestClient_ExecuteDoesNotRetryTerminalStatuses(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		matches func(error) bool
	}{
		{"authentication", http.StatusUnauthorized, `{"message":"bad key"}`, core.IsAuthentication},
		{"not found", http.StatusNotFound, `{"message":"missing"}`, core.IsNotFound},
		{"validation", http.StatusUnprocessableEntity, `{"message":"invalid","errors":["title required"]}`, core.IsValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doer := &scriptedDoer{steps: []scriptedStep{{status: tc.status, body: tc.body}}}
			client := newScriptedClient(t, doer, WithRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}))

			_, err := client.Execute(context.Background(), core.Request{Method: "GET", Path: "/issues"})
			if err == nil {
				t.Fatalf("expected classified error for status %d", tc.status)
			}
			if !tc.matches(err) {
				t.Fatalf("unexpected classification for status %d: %v", tc.status, err)
			}
			if doer.calls != 1 {
				t.Fatalf("expected a single attempt for status %d, got %d", tc.status, doer.calls)
			}
		})
	}
}

func TestClient_ExecuteRetriesRateLimitWithRetryAfterHint(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{
		{status: http.StatusTooManyRequests, headers: http.Header{"Retry-After": []string{"2"}}, body: `{"message":"slow down"}`},
		{status: http.StatusOK, body: `{"data":[]}`},
	}}
	client := newScriptedClient(t, doer, WithRetryPolicy(RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
	}))

	var delays []time.Duration
	client.sleep = func(_ context.Context, delay time.Duration) error {
		delays = append(delays, delay)
		return nil
	}

	res, err := client.Execute(context.Background(), core.Request{Method: "GET", Path: "/issues"})
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected recovery after retry, got status %d", res.StatusCode)
	}
	if doer.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", doer.calls)
	}
	if len(delays) != 1 {
		t.Fatalf("expected one backoff wait, got %d", len(delays))
	}
	if delays[0] != 2*time.Second {
		t.Fatalf("expected retry-after hint to win over backoff, got %s", delays[0])
	}
}

func TestClient_ExecuteExhaustsRetryBudgetOnServerFailures(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{{status: http.StatusInternalServerError, body: `{"message":"boom"}`}}}
	client := newScriptedClient(t, doer, WithRetryPolicy(RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
	}))

	var delays []time.Duration
	client.sleep = func(_ context.Context, delay time.Duration) error {
		delays = append(delays, delay)
		return nil
	}

	_, err := client.Execute(context.Background(), core.Request{Method: "GET", Path: "/issues"})
	if err == nil {
		t.Fatalf("expected server failure after exhausting retries")
	}
	if !core.IsServerFailure(err) {
		t.Fatalf("expected server failure classification, got %v", err)
	}
	if doer.calls != 4 {
		t.Fatalf("expected initial attempt plus 3 retries, got %d attempts", doer.calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected %d backoff waits, got %d", len(want), len(delays))
	}
	for i, delay := range delays {
		if delay != want[i] {
			t.Fatalf("expected doubling backoff %s at retry %d, got %s", want[i], i, delay)
		}
	}
}

func TestClient_ExecuteRetriesTransportFailures(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{
		{err: errors.New("connection reset")},
		{status: http.StatusOK, body: `{"data":[]}`},
	}}
	client := newScriptedClient(t, doer, WithRetryPolicy(RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}))

	res, err := client.Execute(context.Background(), core.Request{Method: "GET", Path: "/issues"})
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected recovery after transport failure, got %d", res.StatusCode)
	}
	if doer.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", doer.calls)
	}
}

func TestClient_ExecuteZeroRetriesDisablesRetrying(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{{status: http.StatusInternalServerError, body: `{"message":"boom"}`}}}
	client := newScriptedClient(t, doer, WithRetryPolicy(RetryPolicy{MaxRetries: 0}))

	_, err := client.Execute(context.Background(), core.Request{Method: "GET", Path: "/issues"})
	if err == nil {
		t.Fatalf("expected server failure")
	}
	if doer.calls != 1 {
		t.Fatalf("expected a single attempt with zero retry budget, got %d", doer.calls)
	}
}

func TestClient_ExecuteSignsOncePerLogicalRequest(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{
		{status: http.StatusInternalServerError, body: `{"message":"boom"}`},
		{status: http.StatusOK, body: `{"data":[]}`},
	}}
	signer := &countingSigner{}
	client := newScriptedClient(t, doer,
		WithSigner(signer),
		WithRetryPolicy(RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}),
	)

	if _, err := client.Execute(context.Background(), core.Request{Method: "GET", Path: "/issues"}); err != nil {
		t.Fatalf("execute request: %v", err)
	}
	if signer.calls != 1 {
		t.Fatalf("expected signer to run once, got %d", signer.calls)
	}
	if doer.calls != 2 {
		t.Fatalf("expected retry to reuse signed request, got %d attempts", doer.calls)
	}
}

func TestClient_ExecuteDoesNotMutateCallerRequest(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{{status: http.StatusOK, body: `{"data":[]}`}}}
	client := newScriptedClient(t, doer, WithSigner(&countingSigner{}))

	req := core.Request{Method: "GET", Path: "/issues", Headers: map[string]string{"X-Trace": "abc"}}
	if _, err := client.Execute(context.Background(), req); err != nil {
		t.Fatalf("execute request: %v", err)
	}
	if _, ok := req.Headers["Authorization"]; ok {
		t.Fatalf("expected caller request to stay unsigned")
	}
}

func TestClient_ExecuteCancellationDuringBackoffIsTerminal(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{{status: http.StatusInternalServerError, body: `{"message":"boom"}`}}}
	client := newScriptedClient(t, doer, WithRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}))
	client.sleep = func(context.Context, time.Duration) error {
		return context.Canceled
	}

	_, err := client.Execute(context.Background(), core.Request{Method: "GET", Path: "/issues"})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if !core.IsCancelled(err) {
		t.Fatalf("expected cancellation classification, got %v", err)
	}
	if core.IsRetryable(err) {
		t.Fatalf("cancellation must never be retryable")
	}
	if doer.calls != 1 {
		t.Fatalf("expected no further attempts after cancellation, got %d", doer.calls)
	}
}

func TestClient_ExecuteCancelledContextShortCircuits(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{{status: http.StatusOK, body: `{"data":[]}`}}}
	client := newScriptedClient(t, doer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Execute(ctx, core.Request{Method: "GET", Path: "/issues"})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if !core.IsCancelled(err) {
		t.Fatalf("expected cancellation classification, got %v", err)
	}
	if doer.calls != 0 {
		t.Fatalf("expected no attempts on a cancelled context, got %d", doer.calls)
	}
}

func TestClient_ExecuteFailsOnResponseBodyOverLimit(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{{status: http.StatusOK, body: "12345"}}}
	client := newScriptedClient(t, doer, WithMaxResponseBodyBytes(4))

	_, err := client.Execute(context.Background(), core.Request{Method: "GET", Path: "/issues"})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}
	if !strings.Contains(err.Error(), "response body exceeds limit") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_ExecuteRequestBodyLimitOverridesClientLimit(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{{status: http.StatusOK, body: "12345"}}}
	client := newScriptedClient(t, doer, WithMaxResponseBodyBytes(1024))

	_, err := client.Execute(context.Background(), core.Request{
		Method:               "GET",
		Path:                 "/issues",
		MaxResponseBodyBytes: 4,
	})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}
	if !strings.Contains(err.Error(), "response body exceeds limit of 4 bytes") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_ExecuteInvokesHooksInOrder(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{
		{status: http.StatusInternalServerError, body: `{"message":"boom"}`},
		{status: http.StatusOK, body: `{"data":[]}`},
	}}

	var events []string
	client := newScriptedClient(t, doer,
		WithRetryPolicy(RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}),
		WithRequestHook(func(_ context.Context, _ core.Request, _ int) {
			events = append(events, "request")
		}),
		WithResponseHook(func(_ context.Context, _ core.Request, _ *core.Response, err error) {
			if err != nil {
				events = append(events, "response-err")
				return
			}
			events = append(events, "response-ok")
		}),
		WithRetryHook(func(_ context.Context, _ core.Request, retry int, delay time.Duration, _ error) {
			events = append(events, "retry")
			if retry != 0 {
				t.Fatalf("expected first retry index 0, got %d", retry)
			}
			if delay != time.Millisecond {
				t.Fatalf("expected base delay, got %s", delay)
			}
		}),
	)

	if _, err := client.Execute(context.Background(), core.Request{Method: "GET", Path: "/issues"}); err != nil {
		t.Fatalf("execute request: %v", err)
	}

	want := []string{"request", "response-err", "retry", "request", "response-ok"}
	if len(events) != len(want) {
		t.Fatalf("expected %d hook events, got %d (%v)", len(want), len(events), events)
	}
	for i, event := range events {
		if event != want[i] {
			t.Fatalf("expected hook order %v, got %v", want, events)
		}
	}
}

type recordingThrottle struct {
	beforeErr error
	keys      []core.ThrottleKey
	metas     []core.ResponseMeta
}

func (p *recordingThrottle) BeforeCall(_ context.Context, key core.ThrottleKey) error {
	p.keys = append(p.keys, key)
	return p.beforeErr
}

func (p *recordingThrottle) AfterCall(_ context.Context, _ core.ThrottleKey, meta core.ResponseMeta) error {
	p.metas = append(p.metas, meta)
	return nil
}

func TestClient_ExecuteConsultsThrottlePolicy(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{{
		status:  http.StatusOK,
		headers: http.Header{"Retry-After": []string{"3"}},
		body:    `{"data":[]}`,
	}}}
	throttle := &recordingThrottle{}
	client := newScriptedClient(t, doer, WithThrottlePolicy(throttle))

	if _, err := client.Execute(context.Background(), core.Request{Method: "GET", Path: "/issues/123"}); err != nil {
		t.Fatalf("execute request: %v", err)
	}
	if len(throttle.keys) != 1 {
		t.Fatalf("expected one throttle consultation, got %d", len(throttle.keys))
	}
	if throttle.keys[0].Bucket != "issues" {
		t.Fatalf("expected first path segment as bucket, got %q", throttle.keys[0].Bucket)
	}
	if len(throttle.metas) != 1 {
		t.Fatalf("expected one throttle observation, got %d", len(throttle.metas))
	}
	if throttle.metas[0].RetryAfter == nil || *throttle.metas[0].RetryAfter != 3*time.Second {
		t.Fatalf("expected retry-after hint forwarded to throttle policy")
	}
}

func TestClient_ExecuteThrottleDenialShortCircuits(t *testing.T) {
	doer := &scriptedDoer{steps: []scriptedStep{{status: http.StatusOK, body: `{"data":[]}`}}}
	denied := errors.New("bucket saturated")
	client := newScriptedClient(t, doer, WithThrottlePolicy(&recordingThrottle{beforeErr: denied}))

	_, err := client.Execute(context.Background(), core.Request{Method: "GET", Path: "/issues"})
	if !errors.Is(err, denied) {
		t.Fatalf("expected throttle denial to propagate, got %v", err)
	}
	if doer.calls != 0 {
		t.Fatalf("expected no attempts after throttle denial, got %d", doer.calls)
	}
}

func TestNew_RejectsRelativeBaseURL(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.BaseURL = "api.usepylon.com/v1"

	if _, err := New(cfg); err == nil {
		t.Fatalf("expected base url validation error")
	}
}

func TestNew_DefaultsHTTPClientTimeout(t *testing.T) {
	client, err := New(core.DefaultConfig())
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	httpClient, ok := client.httpClient.(*http.Client)
	if !ok {
		t.Fatalf("expected default http client implementation")
	}
	if httpClient.Timeout != core.DefaultTimeout {
		t.Fatalf("expected default timeout %s, got %s", core.DefaultTimeout, httpClient.Timeout)
	}
	if client.maxBodyBytes != defaultResponseBodyLimit {
		t.Fatalf("expected default response body limit %d, got %d", defaultResponseBodyLimit, client.maxBodyBytes)
	}
}
