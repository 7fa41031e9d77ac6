package webhooks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

// DeliveryRecord tracks one delivery through the claim lifecycle.
type DeliveryRecord struct {
	ID             string
	ClaimID        string
	DeliveryID     string
	Status         string
	Attempts       int
	LastError      string
	Payload        []byte
	NextAttemptAt  *time.Time
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DeliveryLedger claims deliveries exactly once. Claim returns claimed=false
// when the delivery is settled or another worker holds a live lease; expired
// leases and due retries re-claim.
type DeliveryLedger interface {
	Claim(ctx context.Context, deliveryID string, payload []byte, lease time.Duration) (DeliveryRecord, bool, error)
	Get(ctx context.Context, deliveryID string) (DeliveryRecord, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
}

// RetrySource lists retry-ready deliveries whose attempt window has elapsed.
type RetrySource interface {
	Due(ctx context.Context, limit int) ([]DeliveryRecord, error)
}

const (
	defaultLedgerRetention = time.Hour
	defaultLedgerCapacity  = 8192
	defaultClaimLease      = 30 * time.Second
)

// MemoryDeliveryLedger is an in-process ledger for single-instance consumers
// and tests. Settled records age out after Retention; Capacity bounds the
// total map size.
type MemoryDeliveryLedger struct {
	Retention time.Duration
	Capacity  int
	Now       func() time.Time

	mu      sync.Mutex
	records map[string]DeliveryRecord
	claims  map[string]string
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		Retention: defaultLedgerRetention,
		Capacity:  defaultLedgerCapacity,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		records: map[string]DeliveryRecord{},
		claims:  map[string]string{},
	}
}

func (l *MemoryDeliveryLedger) Claim(
	_ context.Context,
	deliveryID string,
	payload []byte,
	lease time.Duration,
) (DeliveryRecord, bool, error) {
	if l == nil {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: ledger is nil")
	}
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: delivery id is required")
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(now)

	record, exists := l.records[deliveryID]
	if !exists {
		leaseExpiry := now.Add(lease)
		record = DeliveryRecord{
			ID:             uuid.NewString(),
			ClaimID:        uuid.NewString(),
			DeliveryID:     deliveryID,
			Status:         DeliveryStatusProcessing,
			Attempts:       1,
			Payload:        append([]byte(nil), payload...),
			LeaseExpiresAt: &leaseExpiry,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		l.records[deliveryID] = record
		l.claims[record.ClaimID] = deliveryID
		return record, true, nil
	}

	switch record.Status {
	case DeliveryStatusProcessed, DeliveryStatusDead:
		return record, false, nil
	case DeliveryStatusProcessing:
		if record.LeaseExpiresAt != nil && now.After(*record.LeaseExpiresAt) {
			return l.reclaim(record, now, lease), true, nil
		}
		return record, false, nil
	case DeliveryStatusPending, DeliveryStatusRetryReady:
		if record.NextAttemptAt == nil || !now.Before(*record.NextAttemptAt) {
			return l.reclaim(record, now, lease), true, nil
		}
		return record, false, nil
	default:
		return record, false, nil
	}
}

func (l *MemoryDeliveryLedger) Get(_ context.Context, deliveryID string) (DeliveryRecord, error) {
	if l == nil {
		return DeliveryRecord{}, fmt.Errorf("webhooks: ledger is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[strings.TrimSpace(deliveryID)]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery %q not found", deliveryID)
	}
	return record, nil
}

func (l *MemoryDeliveryLedger) Complete(_ context.Context, claimID string) error {
	if l == nil {
		return fmt.Errorf("webhooks: ledger is nil")
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.activeClaim(claimID)
	if err != nil {
		return err
	}
	record.Status = DeliveryStatusProcessed
	record.LeaseExpiresAt = nil
	record.NextAttemptAt = nil
	record.UpdatedAt = now
	l.records[record.DeliveryID] = record
	delete(l.claims, record.ClaimID)
	return nil
}

func (l *MemoryDeliveryLedger) Fail(
	_ context.Context,
	claimID string,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	if l == nil {
		return fmt.Errorf("webhooks: ledger is nil")
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.activeClaim(claimID)
	if err != nil {
		return err
	}

	record.Attempts++
	record.LastError = strings.TrimSpace(fmt.Sprint(cause))
	record.LeaseExpiresAt = nil
	record.UpdatedAt = now
	if maxAttempts > 0 && record.Attempts >= maxAttempts {
		record.Status = DeliveryStatusDead
		record.NextAttemptAt = nil
	} else {
		next := nextAttemptAt.UTC()
		record.Status = DeliveryStatusRetryReady
		record.NextAttemptAt = &next
	}
	l.records[record.DeliveryID] = record
	delete(l.claims, record.ClaimID)
	return nil
}

func (l *MemoryDeliveryLedger) Due(_ context.Context, limit int) ([]DeliveryRecord, error) {
	if l == nil {
		return nil, fmt.Errorf("webhooks: ledger is nil")
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	due := []DeliveryRecord{}
	for _, record := range l.records {
		if record.Status != DeliveryStatusRetryReady {
			continue
		}
		if record.NextAttemptAt != nil && now.Before(*record.NextAttemptAt) {
			continue
		}
		due = append(due, record)
	}
	sort.Slice(due, func(i, j int) bool {
		left, right := due[i], due[j]
		if left.NextAttemptAt != nil && right.NextAttemptAt != nil && !left.NextAttemptAt.Equal(*right.NextAttemptAt) {
			return left.NextAttemptAt.Before(*right.NextAttemptAt)
		}
		return left.DeliveryID < right.DeliveryID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (l *MemoryDeliveryLedger) activeClaim(claimID string) (DeliveryRecord, error) {
	deliveryID, ok := l.claims[strings.TrimSpace(claimID)]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("webhooks: claim %q is not active", claimID)
	}
	return l.records[deliveryID], nil
}

func (l *MemoryDeliveryLedger) reclaim(record DeliveryRecord, now time.Time, lease time.Duration) DeliveryRecord {
	delete(l.claims, record.ClaimID)
	leaseExpiry := now.Add(lease)
	record.ClaimID = uuid.NewString()
	record.Status = DeliveryStatusProcessing
	record.LeaseExpiresAt = &leaseExpiry
	record.NextAttemptAt = nil
	record.UpdatedAt = now
	l.records[record.DeliveryID] = record
	l.claims[record.ClaimID] = record.DeliveryID
	return record
}

func (l *MemoryDeliveryLedger) evict(now time.Time) {
	retention := l.Retention
	if retention <= 0 {
		retention = defaultLedgerRetention
	}
	for deliveryID, record := range l.records {
		if record.Status != DeliveryStatusProcessed && record.Status != DeliveryStatusDead {
			continue
		}
		if now.Sub(record.UpdatedAt) > retention {
			delete(l.records, deliveryID)
		}
	}

	capacity := l.Capacity
	if capacity <= 0 {
		capacity = defaultLedgerCapacity
	}
	if len(l.records) <= capacity {
		return
	}
	for deliveryID, record := range l.records {
		if record.Status == DeliveryStatusProcessed || record.Status == DeliveryStatusDead {
			delete(l.records, deliveryID)
			if len(l.records) <= capacity {
				break
			}
		}
	}
}

func (l *MemoryDeliveryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

var (
	_ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
	_ RetrySource    = (*MemoryDeliveryLedger)(nil)
)
