package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-pylon/webhooks"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultClaimLease = 30 * time.Second

// WebhookDeliveryStore is the bun-backed delivery ledger. The unique index on
// delivery_id arbitrates concurrent claims; lease and retry transitions run
// inside a transaction so a crashed worker never strands a delivery.
type WebhookDeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookDeliveryRecord]
}

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookDeliveryRecord](db, webhookDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook delivery repository wiring: %w", err)
		}
	}
	return &WebhookDeliveryStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *WebhookDeliveryStore) Claim(
	ctx context.Context,
	deliveryID string,
	payload []byte,
	lease time.Duration,
) (webhooks.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: delivery id is required")
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}

	var out webhooks.DeliveryRecord
	claimed := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findWebhookDeliveryTx(ctx, tx, deliveryID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if record == nil {
			leaseExpiry := now.Add(lease)
			record = &webhookDeliveryRecord{
				ID:             uuid.NewString(),
				ClaimID:        uuid.NewString(),
				DeliveryID:     deliveryID,
				Status:         webhooks.DeliveryStatusProcessing,
				Attempts:       1,
				Payload:        append([]byte(nil), payload...),
				LeaseExpiresAt: &leaseExpiry,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				record, err = findWebhookDeliveryTx(ctx, tx, deliveryID)
				if err != nil {
					return err
				}
				if record == nil {
					return insertErr
				}
				out = webhookDeliveryToDomain(record)
				return nil
			}
			out = webhookDeliveryToDomain(record)
			claimed = true
			return nil
		}

		switch record.Status {
		case webhooks.DeliveryStatusProcessed, webhooks.DeliveryStatusDead:
			out = webhookDeliveryToDomain(record)
			return nil
		case webhooks.DeliveryStatusProcessing:
			if record.LeaseExpiresAt != nil && now.After(*record.LeaseExpiresAt) {
				reclaimed, reclaimErr := reclaimWebhookDeliveryTx(ctx, tx, record, now, lease)
				if reclaimErr != nil {
					return reclaimErr
				}
				out = webhookDeliveryToDomain(reclaimed)
				claimed = true
				return nil
			}
			out = webhookDeliveryToDomain(record)
			return nil
		case webhooks.DeliveryStatusPending, webhooks.DeliveryStatusRetryReady:
			if record.NextAttemptAt == nil || !now.Before(*record.NextAttemptAt) {
				reclaimed, reclaimErr := reclaimWebhookDeliveryTx(ctx, tx, record, now, lease)
				if reclaimErr != nil {
					return reclaimErr
				}
				out = webhookDeliveryToDomain(reclaimed)
				claimed = true
				return nil
			}
			out = webhookDeliveryToDomain(record)
			return nil
		default:
			out = webhookDeliveryToDomain(record)
			return nil
		}
	})
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	return out, claimed, nil
}

func (s *WebhookDeliveryStore) Get(ctx context.Context, deliveryID string) (webhooks.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	deliveryID = strings.TrimSpace(deliveryID)
	record := &webhookDeliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.delivery_id = ?", deliveryID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return webhooks.DeliveryRecord{}, fmt.Errorf("sqlstore: webhook delivery %q not found", deliveryID)
		}
		return webhooks.DeliveryRecord{}, err
	}
	return webhookDeliveryToDomain(record), nil
}

func (s *WebhookDeliveryStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusProcessed).
		Set("lease_expires_at = NULL").
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", now).
		Where("claim_id = ?", claimID).
		Where("status = ?", webhooks.DeliveryStatusProcessing).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: claim %q is not active", claimID)
	}
	return nil
}

func (s *WebhookDeliveryStore) Fail(
	ctx context.Context,
	claimID string,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &webhookDeliveryRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.claim_id = ?", claimID).
			Where("?TableAlias.status = ?", webhooks.DeliveryStatusProcessing).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("sqlstore: claim %q is not active", claimID)
			}
			return err
		}

		now := time.Now().UTC()
		record.Attempts++
		record.LastError = strings.TrimSpace(fmt.Sprint(cause))
		record.LeaseExpiresAt = nil
		record.UpdatedAt = now
		if maxAttempts > 0 && record.Attempts >= maxAttempts {
			record.Status = webhooks.DeliveryStatusDead
			record.NextAttemptAt = nil
		} else {
			next := nextAttemptAt.UTC()
			record.Status = webhooks.DeliveryStatusRetryReady
			record.NextAttemptAt = &next
		}
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		return nil
	})
}

func (s *WebhookDeliveryStore) Due(ctx context.Context, limit int) ([]webhooks.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	now := time.Now().UTC()
	records := []*webhookDeliveryRecord{}
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", webhooks.DeliveryStatusRetryReady).
		Where("?TableAlias.next_attempt_at IS NULL OR ?TableAlias.next_attempt_at <= ?", now).
		OrderExpr("?TableAlias.next_attempt_at ASC").
		OrderExpr("?TableAlias.delivery_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}

	out := make([]webhooks.DeliveryRecord, 0, len(records))
	for _, record := range records {
		out = append(out, webhookDeliveryToDomain(record))
	}
	return out, nil
}

func findWebhookDeliveryTx(ctx context.Context, tx bun.Tx, deliveryID string) (*webhookDeliveryRecord, error) {
	record := &webhookDeliveryRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.delivery_id = ?", strings.TrimSpace(deliveryID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func reclaimWebhookDeliveryTx(
	ctx context.Context,
	tx bun.Tx,
	record *webhookDeliveryRecord,
	now time.Time,
	lease time.Duration,
) (*webhookDeliveryRecord, error) {
	leaseExpiry := now.Add(lease)
	record.ClaimID = uuid.NewString()
	record.Status = webhooks.DeliveryStatusProcessing
	record.LeaseExpiresAt = &leaseExpiry
	record.NextAttemptAt = nil
	record.UpdatedAt = now
	if _, err := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func webhookDeliveryToDomain(record *webhookDeliveryRecord) webhooks.DeliveryRecord {
	if record == nil {
		return webhooks.DeliveryRecord{}
	}
	result := webhooks.DeliveryRecord{
		ID:         record.ID,
		ClaimID:    record.ClaimID,
		DeliveryID: record.DeliveryID,
		Status:     record.Status,
		Attempts:   record.Attempts,
		LastError:  record.LastError,
		Payload:    append([]byte(nil), record.Payload...),
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
	if record.NextAttemptAt != nil {
		value := *record.NextAttemptAt
		result.NextAttemptAt = &value
	}
	if record.LeaseExpiresAt != nil {
		value := *record.LeaseExpiresAt
		result.LeaseExpiresAt = &value
	}
	return result
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var (
	_ webhooks.DeliveryLedger = (*WebhookDeliveryStore)(nil)
	_ webhooks.RetrySource    = (*WebhookDeliveryStore)(nil)
)
