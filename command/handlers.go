package command

import (
	"context"
	"errors"
	"strings"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/webhooks"
)

// IssueWriter is the slice of the client the update command needs. The
// record comes back as the raw wire object so the command layer stays
// decoupled from the typed models.
type IssueWriter interface {
	UpdateIssue(ctx context.Context, issueID string, fields map[string]any) (map[string]any, error)
}

// DeliveryProcessor is satisfied by webhooks.Processor.
type DeliveryProcessor interface {
	Process(ctx context.Context, payload []byte, headers map[string]string) (webhooks.Receipt, error)
}

type UpdateIssueCommand struct {
	service IssueWriter
}

func NewUpdateIssueCommand(service IssueWriter) *UpdateIssueCommand {
	return &UpdateIssueCommand{service: service}
}

func (c *UpdateIssueCommand) Execute(ctx context.Context, msg UpdateIssueMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: issue writer is required")
	}
	out, err := c.service.UpdateIssue(ctx, msg.IssueID, msg.Fields)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ProcessDeliveryCommand struct {
	processor DeliveryProcessor
}

func NewProcessDeliveryCommand(processor DeliveryProcessor) *ProcessDeliveryCommand {
	return &ProcessDeliveryCommand{processor: processor}
}

func (c *ProcessDeliveryCommand) Execute(ctx context.Context, msg ProcessDeliveryMessage) error {
	if c == nil || c.processor == nil {
		return commandDependencyError("command: delivery processor is required")
	}
	receipt, err := c.processor.Process(ctx, msg.Payload, msg.Headers)
	if err != nil {
		return err
	}
	storeResult(ctx, receipt)
	return nil
}

// AdvanceCheckpointCommand persists pagination progress. An empty cursor is
// a valid terminal checkpoint for a drained listing.
type AdvanceCheckpointCommand struct {
	store core.CheckpointStore
	now   func() time.Time
}

func NewAdvanceCheckpointCommand(store core.CheckpointStore) *AdvanceCheckpointCommand {
	return &AdvanceCheckpointCommand{
		store: store,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (c *AdvanceCheckpointCommand) Execute(ctx context.Context, msg AdvanceCheckpointMessage) error {
	if c == nil || c.store == nil {
		return commandDependencyError("command: checkpoint store is required")
	}

	resource := strings.TrimSpace(msg.Resource)
	if expected := strings.TrimSpace(msg.ExpectedCursor); expected != "" {
		current, err := c.store.Load(ctx, resource)
		switch {
		case err == nil:
			if strings.TrimSpace(current.Cursor) != expected {
				return checkpointConflictError(resource, expected, current.Cursor)
			}
		case errors.Is(err, core.ErrCheckpointNotFound):
			return checkpointConflictError(resource, expected, "")
		default:
			return err
		}
	}

	checkpoint := core.Checkpoint{
		Resource:  resource,
		Cursor:    strings.TrimSpace(msg.Cursor),
		UpdatedAt: c.timestamp(),
		Metadata:  core.RedactSensitiveMap(msg.Metadata),
	}
	if err := c.store.Save(ctx, checkpoint); err != nil {
		return err
	}
	storeResult(ctx, checkpoint)
	return nil
}

func (c *AdvanceCheckpointCommand) timestamp() time.Time {
	if c != nil && c.now != nil {
		return c.now().UTC()
	}
	return time.Now().UTC()
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
