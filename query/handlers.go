package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/webhooks"
)

// IssueReader is the slice of the client the issue queries need. Records are
// the raw wire objects; callers wanting typed models use the resource
// services directly.
type IssueReader interface {
	GetIssue(ctx context.Context, issueID string) (map[string]any, error)
	SearchIssues(ctx context.Context, filter map[string]any, limit int) ([]map[string]any, error)
}

// DeliveryReader is satisfied by any webhooks.DeliveryLedger.
type DeliveryReader interface {
	Get(ctx context.Context, deliveryID string) (webhooks.DeliveryRecord, error)
}

type GetIssueQuery struct {
	reader IssueReader
}

func NewGetIssueQuery(reader IssueReader) *GetIssueQuery {
	return &GetIssueQuery{reader: reader}
}

func (q *GetIssueQuery) Query(ctx context.Context, msg GetIssueMessage) (map[string]any, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: issue reader is required")
	}
	return q.reader.GetIssue(ctx, strings.TrimSpace(msg.IssueID))
}

type SearchIssuesQuery struct {
	reader IssueReader
}

func NewSearchIssuesQuery(reader IssueReader) *SearchIssuesQuery {
	return &SearchIssuesQuery{reader: reader}
}

func (q *SearchIssuesQuery) Query(ctx context.Context, msg SearchIssuesMessage) ([]map[string]any, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: issue reader is required")
	}
	return q.reader.SearchIssues(ctx, msg.Filter, msg.Limit)
}

type LoadCheckpointQuery struct {
	store core.CheckpointStore
}

func NewLoadCheckpointQuery(store core.CheckpointStore) *LoadCheckpointQuery {
	return &LoadCheckpointQuery{store: store}
}

func (q *LoadCheckpointQuery) Query(ctx context.Context, msg LoadCheckpointMessage) (core.Checkpoint, error) {
	if q == nil || q.store == nil {
		return core.Checkpoint{}, queryDependencyError("query: checkpoint store is required")
	}
	return q.store.Load(ctx, strings.TrimSpace(msg.Resource))
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (webhooks.DeliveryRecord, error) {
	if q == nil || q.reader == nil {
		return webhooks.DeliveryRecord{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.Get(ctx, strings.TrimSpace(msg.DeliveryID))
}
