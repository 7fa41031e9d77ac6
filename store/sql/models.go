package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:pylon_webhook_deliveries,alias:pwd"`

	ID             string     `bun:"id,pk"`
	ClaimID        string     `bun:"claim_id,notnull"`
	DeliveryID     string     `bun:"delivery_id,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	LastError      string     `bun:"last_error"`
	Payload        []byte     `bun:"payload"`
	NextAttemptAt  *time.Time `bun:"next_attempt_at,nullzero"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type pageCheckpointRecord struct {
	bun.BaseModel `bun:"table:pylon_page_checkpoints,alias:ppc"`

	ID        string         `bun:"id,pk"`
	Resource  string         `bun:"resource,notnull"`
	Cursor    string         `bun:"cursor"`
	Metadata  map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:pylon_rate_limit_states,alias:prls"`

	ID             string     `bun:"id,pk"`
	Host           string     `bun:"host,notnull"`
	Bucket         string     `bun:"bucket,notnull"`
	Limit          int        `bun:"limit,notnull"`
	Remaining      int        `bun:"remaining,notnull"`
	ResetAt        *time.Time `bun:"reset_at,nullzero"`
	RetryAfter     *int       `bun:"retry_after_seconds,nullzero"`
	ThrottledUntil *time.Time `bun:"throttled_until,nullzero"`
	LastStatus     int        `bun:"last_status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
