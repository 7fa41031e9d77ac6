package pylon

import (
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/paginate"
)

// AuditLogsService reads the workspace audit trail.
type AuditLogsService struct {
	client *Client
}

// SearchAuditLogsOptions narrows an audit trail search. String filters match
// exactly; zero-value fields are omitted from the request.
type SearchAuditLogsOptions struct {
	Action        string
	ResourceType  string
	ActorID       string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
}

func (s *AuditLogsService) List(limit int) (*paginate.Iterator[AuditLog], error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: audit logs service is not configured", goerrors.CategoryBadInput)
	}
	template := core.Request{
		Method: http.MethodGet,
		Path:   "/audit_logs",
	}
	return iterator[AuditLog](s.client, template, pageSizeOption(limit)...)
}

// Search filters audit log entries. Filters combine with AND; the cursor
// travels in the query string alongside them.
func (s *AuditLogsService) Search(opts SearchAuditLogsOptions) (*paginate.Iterator[AuditLog], error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: audit logs service is not configured", goerrors.CategoryBadInput)
	}

	query := map[string]string{}
	if action := strings.TrimSpace(opts.Action); action != "" {
		query["action"] = action
	}
	if resourceType := strings.TrimSpace(opts.ResourceType); resourceType != "" {
		query["resource_type"] = resourceType
	}
	if actorID := strings.TrimSpace(opts.ActorID); actorID != "" {
		query["actor_id"] = actorID
	}
	if !opts.CreatedAfter.IsZero() {
		query["created_after"] = opts.CreatedAfter.UTC().Format(timeParamLayout)
	}
	if !opts.CreatedBefore.IsZero() {
		query["created_before"] = opts.CreatedBefore.UTC().Format(timeParamLayout)
	}

	template := core.Request{
		Method: http.MethodGet,
		Path:   "/audit_logs/search",
		Query:  query,
	}
	return iterator[AuditLog](s.client, template, pageSizeOption(opts.Limit)...)
}
