package pylon

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/paginate"
)

// timeParamLayout is the wire format the API expects for time-window query
// parameters.
const timeParamLayout = "2006-01-02T15:04:05Z"

// IssuesService works with support issues: listing by time window, lookup by
// id or ticket number, updates, conversation messages, and filtered search.
type IssuesService struct {
	client *Client
}

// ListIssuesOptions narrows an issue listing. Days is a convenience that
// derives StartTime from EndTime when StartTime is unset; EndTime defaults
// to now. Limit overrides the configured page size.
type ListIssuesOptions struct {
	StartTime time.Time
	EndTime   time.Time
	Days      int
	Limit     int
}

// List returns an iterator over issues in the requested window, newest page
// first as the API orders them.
func (s *IssuesService) List(opts ListIssuesOptions) (*paginate.Iterator[Issue], error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: issues service is not configured", goerrors.CategoryBadInput)
	}

	endTime := opts.EndTime
	if endTime.IsZero() {
		endTime = s.client.now()
	}
	startTime := opts.StartTime
	if startTime.IsZero() && opts.Days > 0 {
		startTime = endTime.Add(-time.Duration(opts.Days) * 24 * time.Hour)
	}

	query := map[string]string{
		"end_time": endTime.UTC().Format(timeParamLayout),
	}
	if !startTime.IsZero() {
		query["start_time"] = startTime.UTC().Format(timeParamLayout)
	}

	template := core.Request{
		Method: http.MethodGet,
		Path:   "/issues",
		Query:  query,
	}
	return iterator[Issue](s.client, template, pageSizeOption(opts.Limit)...)
}

func (s *IssuesService) Get(ctx context.Context, issueID string) (*Issue, error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: issues service is not configured", goerrors.CategoryBadInput)
	}
	issueID = strings.TrimSpace(issueID)
	if issueID == "" {
		return nil, goerrors.New("pylon: issue id is required", goerrors.CategoryBadInput)
	}
	issue := &Issue{}
	if err := s.client.doJSON(ctx, "issues.get", http.MethodGet, "/issues/"+issueID, nil, nil, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// GetByNumber looks an issue up by its human-readable ticket number. A
// missing ticket returns (nil, nil) rather than an error.
func (s *IssuesService) GetByNumber(ctx context.Context, number int) (*Issue, error) {
	issue, err := s.Get(ctx, strconv.Itoa(number))
	if err != nil {
		if core.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return issue, nil
}

// Update patches the named fields and returns the updated issue.
func (s *IssuesService) Update(ctx context.Context, issueID string, fields map[string]any) (*Issue, error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: issues service is not configured", goerrors.CategoryBadInput)
	}
	issueID = strings.TrimSpace(issueID)
	if issueID == "" {
		return nil, goerrors.New("pylon: issue id is required", goerrors.CategoryBadInput)
	}
	if len(fields) == 0 {
		return nil, goerrors.New("pylon: update fields are required", goerrors.CategoryBadInput)
	}
	issue := &Issue{}
	if err := s.client.doJSON(ctx, "issues.update", http.MethodPatch, "/issues/"+issueID, nil, fields, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// Messages iterates the conversation for one issue.
func (s *IssuesService) Messages(issueID string, limit int) (*paginate.Iterator[Message], error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: issues service is not configured", goerrors.CategoryBadInput)
	}
	issueID = strings.TrimSpace(issueID)
	if issueID == "" {
		return nil, goerrors.New("pylon: issue id is required", goerrors.CategoryBadInput)
	}
	template := core.Request{
		Method: http.MethodGet,
		Path:   "/issues/" + issueID + "/messages",
	}
	return iterator[Message](s.client, template, pageSizeOption(limit)...)
}

// Search filters issues server-side. The filter is either a leaf
// {field, operator, value} or a composite {operator, subfilters}; the cursor
// travels in the request body on continuation pages.
func (s *IssuesService) Search(filter map[string]any, limit int) (*paginate.Iterator[Issue], error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: issues service is not configured", goerrors.CategoryBadInput)
	}
	template, err := searchTemplate("/issues/search", filter)
	if err != nil {
		return nil, err
	}
	opts := append([]paginate.Option{paginate.WithCursorInBody()}, pageSizeOption(limit)...)
	return iterator[Issue](s.client, template, opts...)
}

func pageSizeOption(limit int) []paginate.Option {
	if limit <= 0 {
		return nil
	}
	return []paginate.Option{paginate.WithPageSize(limit)}
}
