package command

import (
	"strings"
)

const (
	TypeUpdateIssue       = "pylon.command.issue.update"
	TypeProcessDelivery   = "pylon.command.delivery.process"
	TypeAdvanceCheckpoint = "pylon.command.checkpoint.advance"
)

// UpdateIssueMessage patches the named fields on one issue.
type UpdateIssueMessage struct {
	IssueID string
	Fields  map[string]any
}

func (UpdateIssueMessage) Type() string { return TypeUpdateIssue }

func (m UpdateIssueMessage) Validate() error {
	if strings.TrimSpace(m.IssueID) == "" {
		return commandValidationError("issue_id", "issue id is required")
	}
	if len(m.Fields) == 0 {
		return commandValidationError("fields", "at least one field is required")
	}
	return nil
}

// ProcessDeliveryMessage runs one inbound webhook delivery through the
// verify/claim/dispatch pipeline.
type ProcessDeliveryMessage struct {
	Payload []byte
	Headers map[string]string
}

func (ProcessDeliveryMessage) Type() string { return TypeProcessDelivery }

func (m ProcessDeliveryMessage) Validate() error {
	if len(m.Payload) == 0 {
		return commandValidationError("payload", "payload is required")
	}
	return nil
}

// AdvanceCheckpointMessage moves the durable resume cursor for one paginated
// resource. When ExpectedCursor is set the advance is conditional: a stored
// cursor that no longer matches fails with a checkpoint conflict instead of
// silently rewinding another worker's progress.
type AdvanceCheckpointMessage struct {
	Resource       string
	Cursor         string
	ExpectedCursor string
	Metadata       map[string]any
}

func (AdvanceCheckpointMessage) Type() string { return TypeAdvanceCheckpoint }

func (m AdvanceCheckpointMessage) Validate() error {
	if strings.TrimSpace(m.Resource) == "" {
		return commandValidationError("resource", "resource is required")
	}
	return nil
}
