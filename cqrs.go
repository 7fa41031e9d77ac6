package pylon

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pylon/paginate"
)

// The raw-record methods below back the command/query surface. They return
// the wire objects untyped so the CQRS layer does not depend on the model
// structs; typed access goes through the resource services.

// UpdateIssue implements command.IssueWriter.
func (c *Client) UpdateIssue(
	ctx context.Context,
	issueID string,
	fields map[string]any,
) (map[string]any, error) {
	if c == nil {
		return nil, goerrors.New("pylon: client is not configured", goerrors.CategoryBadInput)
	}
	issueID = strings.TrimSpace(issueID)
	if issueID == "" {
		return nil, goerrors.New("pylon: issue id is required", goerrors.CategoryBadInput)
	}
	if len(fields) == 0 {
		return nil, goerrors.New("pylon: update fields are required", goerrors.CategoryBadInput)
	}
	record := map[string]any{}
	err := c.doJSON(ctx, "issues.update", http.MethodPatch, "/issues/"+issueID, nil, fields, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetIssue implements half of query.IssueReader.
func (c *Client) GetIssue(ctx context.Context, issueID string) (map[string]any, error) {
	if c == nil {
		return nil, goerrors.New("pylon: client is not configured", goerrors.CategoryBadInput)
	}
	issueID = strings.TrimSpace(issueID)
	if issueID == "" {
		return nil, goerrors.New("pylon: issue id is required", goerrors.CategoryBadInput)
	}
	record := map[string]any{}
	if err := c.doJSON(ctx, "issues.get", http.MethodGet, "/issues/"+issueID, nil, nil, &record); err != nil {
		return nil, err
	}
	return record, nil
}

// SearchIssues implements the other half of query.IssueReader. It drains the
// paginated search up to limit records (the configured page size when limit
// is zero) and stops fetching once the cap is reached.
func (c *Client) SearchIssues(
	ctx context.Context,
	filter map[string]any,
	limit int,
) ([]map[string]any, error) {
	if c == nil {
		return nil, goerrors.New("pylon: client is not configured", goerrors.CategoryBadInput)
	}
	template, err := searchTemplate("/issues/search", filter)
	if err != nil {
		return nil, err
	}
	want := limit
	if want <= 0 {
		want = c.config.PageSize
	}

	opts := append([]paginate.Option{paginate.WithCursorInBody()}, pageSizeOption(limit)...)
	it, err := iterator[map[string]any](c, template, opts...)
	if err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0, want)
	for len(records) < want {
		record, err := it.Next(ctx)
		if errors.Is(err, paginate.ErrDone) {
			break
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
	return records, nil
}
