package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-pylon/core"
)

// DeliveryIDExtractor derives the dedupe key for a delivery from its headers.
type DeliveryIDExtractor func(headers map[string]string) (string, error)

// DefaultDeliveryIDExtractor prefers an explicit delivery id header and falls
// back to the signature, which is unique per signed (timestamp, payload)
// pair.
func DefaultDeliveryIDExtractor(headers map[string]string) (string, error) {
	for _, key := range []string{HeaderDeliveryID, HeaderDeliveryIDAlias, HeaderSignature, HeaderSignatureAlias} {
		if value := core.HeaderValue(headers, key); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("webhooks: delivery id is required for dedupe")
}

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// Receipt summarizes how a delivery was settled.
type Receipt struct {
	Accepted   bool
	StatusCode int
	DeliveryID string
	EventType  string
	Results    []any
	Metadata   map[string]any
}

// Processor wraps the pipeline with delivery dedupe and retry scheduling:
// verify, claim, dispatch, then settle the claim. Duplicates acknowledge
// without re-dispatching; trust failures reject without claiming.
type Processor struct {
	Pipeline    *Pipeline
	Ledger      DeliveryLedger
	ExtractID   DeliveryIDExtractor
	RetryPolicy RetryPolicy
	ClaimLease  time.Duration
	MaxAttempts int
	Now         func() time.Time
	Logger      core.Logger
}

func NewProcessor(pipeline *Pipeline, ledger DeliveryLedger) *Processor {
	return &Processor{
		Pipeline:    pipeline,
		Ledger:      ledger,
		ExtractID:   DefaultDeliveryIDExtractor,
		RetryPolicy: ExponentialRetryPolicy{},
		ClaimLease:  defaultClaimLease,
		MaxAttempts: 8,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		Logger: glog.Nop(),
	}
}

func (p *Processor) Process(ctx context.Context, payload []byte, headers map[string]string) (Receipt, error) {
	if p == nil || p.Pipeline == nil || p.Ledger == nil {
		return Receipt{}, fmt.Errorf("webhooks: processor requires pipeline and ledger")
	}

	verified, err := p.Pipeline.Verify(payload, headers)
	if err != nil {
		return Receipt{
			Accepted:   false,
			StatusCode: http.StatusUnauthorized,
			Metadata:   map[string]any{"rejected": true},
		}, err
	}

	extractor := p.ExtractID
	if extractor == nil {
		extractor = DefaultDeliveryIDExtractor
	}
	deliveryID, err := extractor(headers)
	if err != nil {
		return Receipt{}, err
	}

	claim, claimed, err := p.Ledger.Claim(ctx, deliveryID, verified.Payload, p.claimLease())
	if err != nil {
		return Receipt{}, err
	}
	if !claimed {
		return Receipt{
			Accepted:   true,
			StatusCode: http.StatusOK,
			DeliveryID: deliveryID,
			Metadata: map[string]any{
				"status":  claim.Status,
				"deduped": true,
			},
		}, nil
	}

	return p.dispatchClaim(ctx, claim, verified.Payload)
}

// Redeliver re-runs dispatch for retry-ready deliveries whose attempt window
// elapsed. Individual failures reschedule and do not stop the batch.
func (p *Processor) Redeliver(ctx context.Context, limit int) (int, error) {
	if p == nil || p.Pipeline == nil || p.Ledger == nil {
		return 0, fmt.Errorf("webhooks: processor requires pipeline and ledger")
	}
	source, ok := p.Ledger.(RetrySource)
	if !ok {
		return 0, fmt.Errorf("webhooks: ledger does not expose due deliveries")
	}
	due, err := source.Due(ctx, limit)
	if err != nil {
		return 0, err
	}

	redelivered := 0
	for _, record := range due {
		claim, claimed, err := p.Ledger.Claim(ctx, record.DeliveryID, record.Payload, p.claimLease())
		if err != nil {
			return redelivered, err
		}
		if !claimed {
			continue
		}
		if _, err := p.dispatchClaim(ctx, claim, claim.Payload); err != nil {
			p.logDelivery(ctx, claim.DeliveryID, "webhook redelivery failed", err)
			continue
		}
		redelivered++
	}
	return redelivered, nil
}

func (p *Processor) dispatchClaim(ctx context.Context, claim DeliveryRecord, payload []byte) (Receipt, error) {
	outcome, err := p.Pipeline.HandleVerified(ctx, payload)
	if err != nil {
		if core.IsMalformedPayload(err) || core.IsUnknownEventType(err) {
			// malformed payloads cannot succeed on a later attempt
			_ = p.Ledger.Fail(ctx, claim.ClaimID, err, p.now(), 1)
			return Receipt{
				Accepted:   false,
				StatusCode: http.StatusBadRequest,
				DeliveryID: claim.DeliveryID,
				Metadata:   map[string]any{"rejected": true},
			}, err
		}
		nextAttemptAt := p.now().Add(p.retryPolicy().NextDelay(claim.Attempts))
		_ = p.Ledger.Fail(ctx, claim.ClaimID, err, nextAttemptAt, p.maxAttempts())
		return Receipt{DeliveryID: claim.DeliveryID}, err
	}

	if err := p.Ledger.Complete(ctx, claim.ClaimID); err != nil {
		return Receipt{}, err
	}

	eventType := ""
	if outcome.Event != nil {
		eventType = outcome.Event.Type()
	}
	return Receipt{
		Accepted:   true,
		StatusCode: http.StatusOK,
		DeliveryID: claim.DeliveryID,
		EventType:  eventType,
		Results:    outcome.Results,
		Metadata: map[string]any{
			"handlers": len(outcome.Results),
			"attempts": claim.Attempts,
		},
	}, nil
}

func (p *Processor) logDelivery(ctx context.Context, deliveryID string, msg string, err error) {
	if p.Logger == nil {
		return
	}
	logger := p.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error(msg, "delivery_id", deliveryID, "error", err.Error())
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p != nil && p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return defaultClaimLease
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 8
}
