package pylon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/paginate"
	"github.com/goliatone/go-pylon/security"
	"github.com/goliatone/go-pylon/transport"
)

// Client is the entry point to the Pylon API. Resource accessors share one
// transport, so retry, throttle pacing, and instrumentation behave the same
// for every endpoint.
type Client struct {
	config    core.Config
	transport core.Transport
	logger    core.Logger
	metrics   core.MetricsRecorder
	now       func() time.Time

	issues    *IssuesService
	accounts  *AccountsService
	contacts  *ContactsService
	users     *UsersService
	teams     *TeamsService
	tags      *TagsService
	auditLogs *AuditLogsService
}

type clientBuilder struct {
	transport      core.Transport
	httpClient     transport.HTTPDoer
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	secrets        security.SecretSource
	throttle       core.ThrottlePolicy
	hooks          *Hooks
	now            func() time.Time
}

type Option func(*clientBuilder)

// WithTransport swaps the HTTP execution layer wholesale. The caller owns
// retry, throttling, and hook wiring for a custom transport.
func WithTransport(t core.Transport) Option {
	return func(b *clientBuilder) {
		b.transport = t
	}
}

func WithHTTPClient(doer transport.HTTPDoer) Option {
	return func(b *clientBuilder) {
		b.httpClient = doer
	}
}

func WithLogger(logger core.Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *clientBuilder) {
		b.metrics = recorder
	}
}

// WithSecretSource overrides where missing config secrets resolve from. The
// default checks the process environment (PYLON_API_KEY,
// PYLON_WEBHOOK_SECRET).
func WithSecretSource(source security.SecretSource) Option {
	return func(b *clientBuilder) {
		b.secrets = source
	}
}

func WithThrottlePolicy(policy core.ThrottlePolicy) Option {
	return func(b *clientBuilder) {
		b.throttle = policy
	}
}

func WithHooks(hooks *Hooks) Option {
	return func(b *clientBuilder) {
		b.hooks = hooks
	}
}

func WithNow(now func() time.Time) Option {
	return func(b *clientBuilder) {
		b.now = now
	}
}

func NewClient(cfg core.Config, opts ...Option) (*Client, error) {
	builder := clientBuilder{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	resolved, err := (core.GoOptionsResolver{}).Resolve(core.DefaultConfig(), cfg, core.Config{})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "pylon: resolve config")
	}

	secrets := builder.secrets
	if secrets == nil {
		secrets = security.DefaultSecretSource(nil)
	}
	if strings.TrimSpace(resolved.APIKey) == "" {
		value, resolveErr := secrets.Resolve(context.Background(), security.SecretAPIKey)
		switch {
		case resolveErr == nil:
			resolved.APIKey = value
		case errors.Is(resolveErr, security.ErrSecretNotFound):
			return nil, goerrors.New(
				"pylon: api key is required (set Config.APIKey or PYLON_API_KEY)",
				goerrors.CategoryBadInput,
			).WithTextCode("PYLON_AUTH_FAILED")
		default:
			return nil, goerrors.Wrap(resolveErr, goerrors.CategoryOperation, "pylon: resolve api key")
		}
	}
	if strings.TrimSpace(resolved.Webhooks.Secret) == "" {
		value, resolveErr := secrets.Resolve(context.Background(), security.SecretWebhookSecret)
		switch {
		case resolveErr == nil:
			resolved.Webhooks.Secret = value
		case errors.Is(resolveErr, security.ErrSecretNotFound):
			// webhook verification is optional client-side
		default:
			return nil, goerrors.Wrap(resolveErr, goerrors.CategoryOperation, "pylon: resolve webhook secret")
		}
	}

	provider, logger := glog.Resolve("pylon", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("pylon"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	metrics := builder.metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	now := builder.now
	if now == nil {
		now = func() time.Time {
			return time.Now().UTC()
		}
	}

	exec := builder.transport
	if exec == nil {
		transportOptions := []transport.Option{
			transport.WithLogger(logger),
			transport.WithMetricsRecorder(metrics),
		}
		if builder.httpClient != nil {
			transportOptions = append(transportOptions, transport.WithHTTPClient(builder.httpClient))
		}
		if builder.throttle != nil {
			transportOptions = append(transportOptions, transport.WithThrottlePolicy(builder.throttle))
		}
		for _, hook := range builder.hooks.RequestHooks() {
			transportOptions = append(transportOptions, transport.WithRequestHook(hook))
		}
		for _, hook := range builder.hooks.ResponseHooks() {
			transportOptions = append(transportOptions, transport.WithResponseHook(hook))
		}
		for _, hook := range builder.hooks.RetryHooks() {
			transportOptions = append(transportOptions, transport.WithRetryHook(hook))
		}
		built, buildErr := transport.New(resolved, transportOptions...)
		if buildErr != nil {
			return nil, buildErr
		}
		exec = built
	}

	client := &Client{
		config:    resolved,
		transport: exec,
		logger:    logger,
		metrics:   metrics,
		now:       now,
	}
	client.issues = &IssuesService{client: client}
	client.accounts = &AccountsService{client: client}
	client.contacts = &ContactsService{client: client}
	client.users = &UsersService{client: client}
	client.teams = &TeamsService{client: client}
	client.tags = &TagsService{client: client}
	client.auditLogs = &AuditLogsService{client: client}
	return client, nil
}

// Config returns the resolved configuration the client was built with.
func (c *Client) Config() core.Config {
	if c == nil {
		return core.Config{}
	}
	return c.config
}

// Transport exposes the execution layer so callers can wrap it, for example
// with transport.NewAsyncClient.
func (c *Client) Transport() core.Transport {
	if c == nil {
		return nil
	}
	return c.transport
}

func (c *Client) Issues() *IssuesService {
	if c == nil {
		return nil
	}
	return c.issues
}

func (c *Client) Accounts() *AccountsService {
	if c == nil {
		return nil
	}
	return c.accounts
}

func (c *Client) Contacts() *ContactsService {
	if c == nil {
		return nil
	}
	return c.contacts
}

func (c *Client) Users() *UsersService {
	if c == nil {
		return nil
	}
	return c.users
}

func (c *Client) Teams() *TeamsService {
	if c == nil {
		return nil
	}
	return c.teams
}

func (c *Client) Tags() *TagsService {
	if c == nil {
		return nil
	}
	return c.tags
}

func (c *Client) AuditLogs() *AuditLogsService {
	if c == nil {
		return nil
	}
	return c.auditLogs
}

// doJSON executes one request and decodes the entity envelope into out when
// out is non-nil.
func (c *Client) doJSON(
	ctx context.Context,
	operation string,
	method string,
	path string,
	query map[string]string,
	body any,
	out any,
) (err error) {
	if c == nil || c.transport == nil {
		return goerrors.New("pylon: client is not configured", goerrors.CategoryBadInput)
	}
	startedAt := c.now()
	defer func() {
		c.observeOperation(ctx, startedAt, operation, err)
	}()

	req := core.Request{
		Method: method,
		Path:   path,
		Query:  query,
	}
	if body != nil {
		encoded, encodeErr := json.Marshal(body)
		if encodeErr != nil {
			err = goerrors.Wrap(encodeErr, goerrors.CategoryBadInput, "pylon: encode request body")
			return err
		}
		req.Body = encoded
	}

	res, execErr := c.transport.Execute(ctx, req)
	if execErr != nil {
		err = execErr
		return err
	}
	if out == nil {
		return nil
	}
	err = decodeEntity(res, out)
	return err
}

// searchTemplate wraps a filter expression in the search envelope the API
// expects. Filters are either a leaf {field, operator, value} or a composite
// {operator, subfilters}; the pagination layer merges limit and cursor into
// the same body.
func searchTemplate(path string, filter map[string]any) (core.Request, error) {
	if len(filter) == 0 {
		return core.Request{}, goerrors.New("pylon: search filter is required", goerrors.CategoryBadInput)
	}
	body, err := json.Marshal(map[string]any{"filter": filter})
	if err != nil {
		return core.Request{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "pylon: encode search filter")
	}
	return core.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	}, nil
}

// iterator builds a typed page iterator over the client's transport with the
// configured page size and pacing. Explicit options win over config.
func iterator[T any](c *Client, template core.Request, opts ...paginate.Option) (*paginate.Iterator[T], error) {
	if c == nil || c.transport == nil {
		return nil, goerrors.New("pylon: client is not configured", goerrors.CategoryBadInput)
	}
	base := []paginate.Option{
		paginate.WithPageSize(c.config.PageSize),
		paginate.WithPageDelay(c.config.PageDelay),
	}
	return paginate.New[T](c.transport, template, append(base, opts...)...)
}

// decodeEntity unwraps the {"data": {...}} envelope, falling back to the raw
// object when the envelope is absent.
func decodeEntity(res *core.Response, out any) error {
	if res == nil || len(res.Body) == 0 {
		return goerrors.New("pylon: response body is empty", goerrors.CategoryBadInput).
			WithTextCode("PYLON_MALFORMED_PAYLOAD")
	}
	payload := res.Body
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(res.Body, &envelope); err == nil {
		if trimmed := strings.TrimSpace(string(envelope.Data)); trimmed != "" && trimmed != "null" {
			payload = envelope.Data
		}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "pylon: decode response").
			WithTextCode("PYLON_MALFORMED_PAYLOAD").
			WithMetadata(map[string]any{"request_id": res.RequestID})
	}
	return nil
}

func (c *Client) observeOperation(ctx context.Context, startedAt time.Time, operation string, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	duration := c.now().Sub(startedAt)
	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	if c.metrics != nil {
		c.metrics.IncCounter(ctx, core.MetricClientOperations, 1, core.CloneTags(tags))
		c.metrics.ObserveHistogram(
			ctx,
			core.MetricClientDurationMS,
			float64(duration.Milliseconds()),
			core.CloneTags(tags),
		)
	}
	if c.logger == nil {
		return
	}
	logger := c.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{
		"operation", operation,
		"status", status,
		"duration_ms", duration.Milliseconds(),
	}
	if err != nil {
		logger.Error("client operation failed", append(args, "error", err.Error())...)
		return
	}
	logger.Info("client operation completed", args...)
}
