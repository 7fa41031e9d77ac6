package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-pylon/core"
)

const KindREST = "rest"

const defaultResponseBodyLimit int64 = 10 << 20 // 10 MiB

// RequestHook observes a request before each attempt.
type RequestHook func(ctx context.Context, req core.Request, attempt int)

// ResponseHook observes the outcome of each attempt.
type ResponseHook func(ctx context.Context, req core.Request, res *core.Response, err error)

// RetryHook observes the decision to retry, before the backoff wait.
type RetryHook func(ctx context.Context, req core.Request, retry int, delay time.Duration, err error)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client executes requests against the provider API: one attempt per do,
// classification plus bounded retries per Execute.
type Client struct {
	httpClient     HTTPDoer
	baseURL        *url.URL
	signer         core.Signer
	defaultHeaders map[string]string
	maxBodyBytes   int64
	retry          RetryPolicy
	throttle       core.ThrottlePolicy
	logger         core.Logger
	metrics        core.MetricsRecorder

	requestHooks  []RequestHook
	responseHooks []ResponseHook
	retryHooks    []RetryHook

	// sleep is swapped by tests to observe backoff without waiting.
	sleep func(ctx context.Context, delay time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithSigner(signer core.Signer) Option {
	return func(c *Client) {
		c.signer = signer
	}
}

func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(c *Client) {
		c.metrics = recorder
	}
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

func WithThrottlePolicy(policy core.ThrottlePolicy) Option {
	return func(c *Client) {
		c.throttle = policy
	}
}

func WithDefaultHeader(key, value string) Option {
	return func(c *Client) {
		key = strings.TrimSpace(key)
		if key == "" {
			return
		}
		c.defaultHeaders[key] = strings.TrimSpace(value)
	}
}

func WithMaxResponseBodyBytes(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

func WithRequestHook(hook RequestHook) Option {
	return func(c *Client) {
		if hook != nil {
			c.requestHooks = append(c.requestHooks, hook)
		}
	}
}

func WithResponseHook(hook ResponseHook) Option {
	return func(c *Client) {
		if hook != nil {
			c.responseHooks = append(c.responseHooks, hook)
		}
	}
}

func WithRetryHook(hook RetryHook) Option {
	return func(c *Client) {
		if hook != nil {
			c.retryHooks = append(c.retryHooks, hook)
		}
	}
}

func New(cfg core.Config, options ...Option) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = core.DefaultBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, transportError(
			fmt.Sprintf("transport: base url %q is not absolute", base),
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"base_url": base},
		)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")

	client := &Client{
		baseURL:      parsed,
		maxBodyBytes: defaultResponseBodyLimit,
		retry:        RetryPolicyFromConfig(cfg),
		logger:       glog.Nop(),
		metrics:      core.NopMetricsRecorder{},
		sleep:        waitContext,
		defaultHeaders: map[string]string{
			"Accept":       "application/json",
			"Content-Type": "application/json",
		},
	}
	if agent := strings.TrimSpace(cfg.UserAgent); agent != "" {
		client.defaultHeaders["User-Agent"] = agent
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		client.signer = core.BearerTokenSigner{Token: key}
	}

	for _, option := range options {
		if option != nil {
			option(client)
		}
	}

	if client.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = core.DefaultTimeout
		}
		client.httpClient = &http.Client{Timeout: timeout}
	}
	if client.logger == nil {
		client.logger = glog.Nop()
	}
	if client.metrics == nil {
		client.metrics = core.NopMetricsRecorder{}
	}
	if client.sleep == nil {
		client.sleep = waitContext
	}
	return client, nil
}

func (*Client) Kind() string {
	return KindREST
}

// Execute runs one logical request: attempt, classify, and retry retryable
// failures up to the policy's budget. Cancellation aborts immediately, during
// an attempt or a backoff wait, and is never retried.
func (c *Client) Execute(ctx context.Context, req core.Request) (*core.Response, error) {
	if c == nil || c.httpClient == nil {
		return nil, transportError(
			"transport: client requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	prepared := req.Clone()
	if c.signer != nil {
		if err := c.signer.Sign(ctx, &prepared); err != nil {
			return nil, transportWrapError(
				err,
				goerrors.CategoryBadInput,
				"transport: sign request",
				http.StatusBadRequest,
				map[string]any{"method": prepared.Method, "path": prepared.Path},
			)
		}
	}

	key := c.throttleKey(prepared)
	for retry := 0; ; retry++ {
		if err := ctx.Err(); err != nil {
			return nil, cancellationError(err, requestMetadata(prepared))
		}
		if c.throttle != nil {
			if err := c.throttle.BeforeCall(ctx, key); err != nil {
				return nil, err
			}
		}

		c.fireRequestHooks(ctx, prepared, retry)
		res, err := c.do(ctx, prepared)
		if c.throttle != nil && res != nil {
			meta := core.ResponseMeta{StatusCode: res.StatusCode, Headers: res.Headers}
			if hint, ok := core.RetryAfterHint(res.Headers); ok {
				meta.RetryAfter = &hint
			}
			if afterErr := c.throttle.AfterCall(ctx, key, meta); afterErr != nil {
				c.logResult(ctx, prepared, 0, retry, afterErr)
			}
		}
		if err == nil && res.StatusCode >= 200 && res.StatusCode < 300 {
			c.fireResponseHooks(ctx, prepared, res, nil)
			c.observe(ctx, prepared, res.StatusCode, retry, nil)
			return res, nil
		}
		if err == nil {
			err = core.Classify(res.StatusCode, res.Headers, res.Body)
		}
		c.fireResponseHooks(ctx, prepared, res, err)

		if core.IsCancelled(err) {
			c.observe(ctx, prepared, statusOf(res), retry, err)
			return nil, err
		}
		if !core.IsRetryable(err) || retry >= c.retry.MaxRetries {
			c.observe(ctx, prepared, statusOf(res), retry, err)
			return nil, err
		}

		delay := c.retry.retryDelay(err, retry)
		c.fireRetryHooks(ctx, prepared, retry, delay, err)
		if waitErr := c.sleep(ctx, delay); waitErr != nil {
			return nil, cancellationError(waitErr, requestMetadata(prepared))
		}
	}
}

// do performs exactly one HTTP attempt and flattens the wire response. It
// never classifies non-2xx statuses; Execute owns that.
func (c *Client) do(ctx context.Context, req core.Request) (*core.Response, error) {
	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	target, err := c.resolveURL(req)
	if err != nil {
		return nil, err
	}

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, target, bytes.NewReader(req.Body))
	if err != nil {
		return nil, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"method": method, "url": target},
		)
	}
	for key, value := range c.defaultHeaders {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	startedAt := time.Now().UTC()
	httpRes, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancellationError(ctx.Err(), map[string]any{"method": method, "url": target})
		}
		return nil, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: execute http request",
			http.StatusBadGateway,
			map[string]any{"method": method, "url": target},
		)
	}
	defer httpRes.Body.Close()

	maxBodyBytes := c.maxBodyBytes
	if req.MaxResponseBodyBytes > 0 {
		maxBodyBytes = req.MaxResponseBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancellationError(ctx.Err(), map[string]any{"method": method, "url": target})
		}
		return nil, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: read response body",
			http.StatusBadGateway,
			map[string]any{"method": method, "status_code": httpRes.StatusCode},
		)
	}
	if int64(len(body)) > maxBodyBytes {
		return nil, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"method": method, "status_code": httpRes.StatusCode, "response_limit_b": maxBodyBytes},
		)
	}

	headers := flattenHeaders(httpRes.Header)
	return &core.Response{
		StatusCode: httpRes.StatusCode,
		Headers:    headers,
		Body:       body,
		RequestID:  core.HeaderValue(headers, "x-request-id"),
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"kind":        KindREST,
		},
	}, nil
}

func (c *Client) resolveURL(req core.Request) (string, error) {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return "", transportError(
			"transport: request path is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			nil,
		)
	}
	target := *c.baseURL
	target.Path = target.Path + "/" + strings.TrimLeft(path, "/")

	query := target.Query()
	keys := make([]string, 0, len(req.Query))
	for key := range req.Query {
		if strings.TrimSpace(key) != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		query.Set(strings.TrimSpace(key), strings.TrimSpace(req.Query[key]))
	}
	target.RawQuery = query.Encode()
	return target.String(), nil
}

func (c *Client) throttleKey(req core.Request) core.ThrottleKey {
	bucket := strings.TrimLeft(strings.TrimSpace(req.Path), "/")
	if idx := strings.IndexByte(bucket, '/'); idx > 0 {
		bucket = bucket[:idx]
	}
	return core.ThrottleKey{Host: c.baseURL.Host, Bucket: strings.ToLower(bucket)}
}

func (c *Client) fireRequestHooks(ctx context.Context, req core.Request, attempt int) {
	for _, hook := range c.requestHooks {
		hook(ctx, req, attempt)
	}
}

func (c *Client) fireResponseHooks(ctx context.Context, req core.Request, res *core.Response, err error) {
	for _, hook := range c.responseHooks {
		hook(ctx, req, res, err)
	}
}

func (c *Client) fireRetryHooks(ctx context.Context, req core.Request, retry int, delay time.Duration, err error) {
	for _, hook := range c.retryHooks {
		hook(ctx, req, retry, delay, err)
	}
}

func (c *Client) observe(ctx context.Context, req core.Request, status int, retries int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	tags := map[string]string{
		"method": strings.ToUpper(strings.TrimSpace(req.Method)),
		"status": outcome,
	}
	if status > 0 {
		tags["status_code"] = fmt.Sprintf("%d", status)
	}
	c.metrics.IncCounter(ctx, core.MetricTransportRequests, 1, core.CloneTags(tags))
	if retries > 0 {
		c.metrics.IncCounter(ctx, core.MetricTransportRetries, int64(retries), core.CloneTags(tags))
	}
	c.logResult(ctx, req, status, retries, err)
}

func (c *Client) logResult(ctx context.Context, req core.Request, status int, retries int, err error) {
	if c.logger == nil {
		return
	}
	logger := c.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{
		"method", strings.ToUpper(strings.TrimSpace(req.Method)),
		"path", strings.TrimSpace(req.Path),
		"status_code", status,
		"retries", retries,
	}
	if err != nil {
		logger.Error("transport request failed", append(args, "error", err.Error())...)
		return
	}
	logger.Info("transport request completed", args...)
}

func requestMetadata(req core.Request) map[string]any {
	return map[string]any{
		"method": strings.ToUpper(strings.TrimSpace(req.Method)),
		"path":   strings.TrimSpace(req.Path),
	}
}

func statusOf(res *core.Response) int {
	if res == nil {
		return 0
	}
	return res.StatusCode
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.Transport = (*Client)(nil)
