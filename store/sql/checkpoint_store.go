package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-pylon/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CheckpointStore persists pagination checkpoints keyed by resource. An empty
// cursor is a valid save: it records that the walk drained the collection.
type CheckpointStore struct {
	db   *bun.DB
	repo repository.Repository[*pageCheckpointRecord]
}

func NewCheckpointStore(db *bun.DB) (*CheckpointStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*pageCheckpointRecord](db, pageCheckpointHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid checkpoint repository wiring: %w", err)
		}
	}
	return &CheckpointStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *CheckpointStore) Load(ctx context.Context, resource string) (core.Checkpoint, error) {
	if s == nil || s.db == nil {
		return core.Checkpoint{}, fmt.Errorf("sqlstore: checkpoint store is not configured")
	}
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return core.Checkpoint{}, fmt.Errorf("sqlstore: checkpoint resource is required")
	}

	record := &pageCheckpointRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.resource = ?", resource).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Checkpoint{}, core.ErrCheckpointNotFound
		}
		return core.Checkpoint{}, err
	}
	return record.toDomain(), nil
}

func (s *CheckpointStore) Save(ctx context.Context, checkpoint core.Checkpoint) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: checkpoint store is not configured")
	}
	checkpoint.Resource = strings.TrimSpace(checkpoint.Resource)
	checkpoint.Cursor = strings.TrimSpace(checkpoint.Cursor)
	if checkpoint.Resource == "" {
		return fmt.Errorf("sqlstore: checkpoint resource is required")
	}
	updatedAt := checkpoint.UpdatedAt.UTC()
	if checkpoint.UpdatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findPageCheckpointTx(ctx, tx, checkpoint.Resource)
		if err != nil {
			return err
		}
		if record == nil {
			record = &pageCheckpointRecord{
				ID:        uuid.NewString(),
				Resource:  checkpoint.Resource,
				Cursor:    checkpoint.Cursor,
				Metadata:  RedactMetadata(checkpoint.Metadata),
				CreatedAt: updatedAt,
				UpdatedAt: updatedAt,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				record, err = findPageCheckpointTx(ctx, tx, checkpoint.Resource)
				if err != nil {
					return err
				}
				if record == nil {
					return insertErr
				}
			} else {
				return nil
			}
		}

		record.Cursor = checkpoint.Cursor
		record.Metadata = RedactMetadata(checkpoint.Metadata)
		record.UpdatedAt = updatedAt
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		return nil
	})
}

func (r *pageCheckpointRecord) toDomain() core.Checkpoint {
	if r == nil {
		return core.Checkpoint{}
	}
	return core.Checkpoint{
		Resource:  r.Resource,
		Cursor:    r.Cursor,
		UpdatedAt: r.UpdatedAt,
		Metadata:  copyAnyMap(r.Metadata),
	}
}

func findPageCheckpointTx(ctx context.Context, tx bun.Tx, resource string) (*pageCheckpointRecord, error) {
	record := &pageCheckpointRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.resource = ?", strings.TrimSpace(resource)).
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

func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ core.CheckpointStore = (*CheckpointStore)(nil)
