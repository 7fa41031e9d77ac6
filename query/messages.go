package query

import (
	"strings"
)

const (
	TypeGetIssue       = "pylon.query.issue.get"
	TypeSearchIssues   = "pylon.query.issue.search"
	TypeLoadCheckpoint = "pylon.query.checkpoint.load"
	TypeGetDelivery    = "pylon.query.delivery.get"
)

type GetIssueMessage struct {
	IssueID string
}

func (GetIssueMessage) Type() string { return TypeGetIssue }

func (m GetIssueMessage) Validate() error {
	if strings.TrimSpace(m.IssueID) == "" {
		return queryValidationError("issue_id", "issue id is required")
	}
	return nil
}

// SearchIssuesMessage runs a server-side filter. The filter is the raw wire
// shape: a leaf {field, operator, value} or a composite {and|or|not: ...}.
// Limit caps the records drained from the paginated result; zero means the
// service default.
type SearchIssuesMessage struct {
	Filter map[string]any
	Limit  int
}

func (SearchIssuesMessage) Type() string { return TypeSearchIssues }

func (m SearchIssuesMessage) Validate() error {
	if len(m.Filter) == 0 {
		return queryValidationError("filter", "filter is required")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type LoadCheckpointMessage struct {
	Resource string
}

func (LoadCheckpointMessage) Type() string { return TypeLoadCheckpoint }

func (m LoadCheckpointMessage) Validate() error {
	if strings.TrimSpace(m.Resource) == "" {
		return queryValidationError("resource", "resource is required")
	}
	return nil
}

type GetDeliveryMessage struct {
	DeliveryID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return queryValidationError("delivery_id", "delivery id is required")
	}
	return nil
}
