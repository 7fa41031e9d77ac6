package webhooks

import (
	"context"
	"fmt"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-pylon/core"
)

// Outcome is the result of handling one delivery: the decoded event plus the
// values returned by each handler in invocation order. When a handler fails,
// Outcome carries the results gathered before the failure.
type Outcome struct {
	Event   Event
	Results []any
}

// Pipeline runs a delivery through signature verification, payload decoding,
// and handler dispatch. Verification failures reject the delivery without
// parsing the body.
type Pipeline struct {
	Verifier *SignatureVerifier
	Registry *Registry
	Logger   core.Logger

	// Decode parses a verified payload; defaults to DecodeEvent.
	Decode func(payload []byte) (Event, error)

	// SkipVerification disables the signature check. Development only.
	SkipVerification bool
}

func NewPipeline(verifier *SignatureVerifier, registry *Registry) *Pipeline {
	return &Pipeline{
		Verifier: verifier,
		Registry: registry,
		Logger:   glog.Nop(),
		Decode:   DecodeEvent,
	}
}

// NewPipelineFromConfig builds a pipeline whose verifier follows the webhook
// configuration.
func NewPipelineFromConfig(cfg core.WebhookConfig, registry *Registry) *Pipeline {
	verifier := NewSignatureVerifier(cfg.Secret)
	if cfg.Tolerance > 0 {
		verifier.Tolerance = cfg.Tolerance
	}
	pipeline := NewPipeline(verifier, registry)
	pipeline.SkipVerification = cfg.SkipVerification
	return pipeline
}

// Handle verifies, decodes, and dispatches one delivery.
func (p *Pipeline) Handle(ctx context.Context, payload []byte, headers map[string]string) (Outcome, error) {
	verified, err := p.Verify(payload, headers)
	if err != nil {
		return Outcome{}, err
	}
	return p.HandleVerified(ctx, verified.Payload)
}

// Verify checks the delivery signature using the header aliases. A missing
// signature header fails before the body is touched.
func (p *Pipeline) Verify(payload []byte, headers map[string]string) (VerifiedPayload, error) {
	if p == nil {
		return VerifiedPayload{}, fmt.Errorf("webhooks: pipeline is nil")
	}
	signature := SignatureFromHeaders(headers)
	timestamp := TimestampFromHeaders(headers)
	if p.SkipVerification {
		return VerifiedPayload{Payload: payload, Signature: signature}, nil
	}
	if p.Verifier == nil {
		return VerifiedPayload{}, fmt.Errorf("webhooks: pipeline requires a verifier")
	}
	if signature == "" {
		return VerifiedPayload{}, missingSignatureError()
	}
	return p.Verifier.Verify(payload, signature, timestamp)
}

// HandleVerified decodes and dispatches a payload whose signature check
// already passed.
func (p *Pipeline) HandleVerified(ctx context.Context, payload []byte) (Outcome, error) {
	if p == nil || p.Registry == nil {
		return Outcome{}, fmt.Errorf("webhooks: pipeline requires a registry")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	decode := p.Decode
	if decode == nil {
		decode = DecodeEvent
	}
	event, err := decode(payload)
	if err != nil {
		return Outcome{}, err
	}

	results, err := p.Registry.Dispatch(ctx, event)
	outcome := Outcome{Event: event, Results: results}
	if err != nil {
		p.logDispatch(ctx, event, len(results), err)
		return outcome, err
	}
	p.logDispatch(ctx, event, len(results), nil)
	return outcome, nil
}

func (p *Pipeline) logDispatch(ctx context.Context, event Event, handled int, err error) {
	if p.Logger == nil {
		return
	}
	logger := p.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{
		"event_type", event.Type(),
		"issue_id", event.Issue().IssueID,
		"handlers", handled,
	}
	if err != nil {
		logger.Error("webhook dispatch failed", append(args, "error", err.Error())...)
		return
	}
	logger.Info("webhook dispatched", args...)
}
