package pylon

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/devkit"
)

func newIssuesTestClient(t *testing.T, scripts ...devkit.TransportScript) (*Client, *devkit.ScriptedTransport) {
	t.Helper()
	scripted := devkit.NewScriptedTransport(scripts...)
	client, err := NewClient(core.Config{APIKey: "pylon_api_test", PageDelay: time.Nanosecond},
		WithTransport(scripted),
		WithNow(func() time.Time {
			return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
		}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, scripted
}

func issuePageScript(t *testing.T, records []any, cursor string, requestID string) devkit.TransportScript {
	t.Helper()
	body, err := devkit.PageDocument(records, cursor, requestID)
	if err != nil {
		t.Fatalf("page document: %v", err)
	}
	return devkit.TransportScript{Response: devkit.JSONResponse(http.StatusOK, body, requestID)}
}

func TestIssuesList_WindowParamsFromDays(t *testing.T) {
	client, scripted := newIssuesTestClient(t, issuePageScript(t, []any{}, "", "req_1"))

	it, err := client.Issues().List(ListIssuesOptions{Days: 7, Limit: 50})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := it.Collect(context.Background()); err != nil {
		t.Fatalf("collect: %v", err)
	}

	requests := scripted.Requests()
	if len(requests) != 1 {
		t.Fatalf("expected one request, got %d", len(requests))
	}
	req := requests[0]
	if req.Method != http.MethodGet || req.Path != "/issues" {
		t.Fatalf("unexpected request target: %s %s", req.Method, req.Path)
	}
	if req.Query["end_time"] != "2025-06-15T12:00:00Z" {
		t.Fatalf("expected end_time anchored at now, got %q", req.Query["end_time"])
	}
	if req.Query["start_time"] != "2025-06-08T12:00:00Z" {
		t.Fatalf("expected start_time 7 days back, got %q", req.Query["start_time"])
	}
	if req.Query["limit"] != "50" {
		t.Fatalf("expected limit 50, got %q", req.Query["limit"])
	}
}

func TestIssuesList_ExplicitWindowWinsOverDays(t *testing.T) {
	client, scripted := newIssuesTestClient(t, issuePageScript(t, []any{}, "", "req_1"))

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC)
	it, err := client.Issues().List(ListIssuesOptions{StartTime: start, EndTime: end, Days: 30})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := it.Collect(context.Background()); err != nil {
		t.Fatalf("collect: %v", err)
	}

	query := scripted.Requests()[0].Query
	if query["start_time"] != "2025-05-01T00:00:00Z" || query["end_time"] != "2025-05-08T00:00:00Z" {
		t.Fatalf("unexpected window params: %#v", query)
	}
}

func TestIssuesList_WalksCursorAcrossPages(t *testing.T) {
	client, scripted := newIssuesTestClient(t,
		issuePageScript(t, []any{
			map[string]any{"id": "issue_1", "number": 1},
			map[string]any{"id": "issue_2", "number": 2},
		}, "cur_2", "req_1"),
		issuePageScript(t, []any{
			map[string]any{"id": "issue_3", "number": 3},
		}, "", "req_2"),
	)

	it, err := client.Issues().List(ListIssuesOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	issues, err := it.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	if len(issues) != 3 || issues[0].ID != "issue_1" || issues[2].Number != 3 {
		t.Fatalf("unexpected issues: %#v", issues)
	}
	requests := scripted.Requests()
	if len(requests) != 2 {
		t.Fatalf("expected two page fetches, got %d", len(requests))
	}
	if _, ok := requests[0].Query["cursor"]; ok {
		t.Fatalf("first page must not carry a cursor")
	}
	if requests[1].Query["cursor"] != "cur_2" {
		t.Fatalf("expected continuation cursor, got %#v", requests[1].Query)
	}
}

func TestIssuesGet_DecodesEnvelope(t *testing.T) {
	body, err := devkit.EntityDocument(map[string]any{
		"id":     "issue_123",
		"number": 42,
		"title":  "Printer on fire",
		"state":  "open",
	})
	if err != nil {
		t.Fatalf("entity document: %v", err)
	}
	client, scripted := newIssuesTestClient(t, devkit.TransportScript{
		Response: devkit.JSONResponse(http.StatusOK, body, "req_1"),
	})

	issue, err := client.Issues().Get(context.Background(), "issue_123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if issue.ID != "issue_123" || issue.Number != 42 || issue.Title != "Printer on fire" {
		t.Fatalf("unexpected issue: %#v", issue)
	}
	if scripted.Requests()[0].Path != "/issues/issue_123" {
		t.Fatalf("unexpected path %q", scripted.Requests()[0].Path)
	}
}

func TestIssuesGet_RequiresID(t *testing.T) {
	client, _ := newIssuesTestClient(t)
	if _, err := client.Issues().Get(context.Background(), "  "); err == nil {
		t.Fatalf("expected id requirement error")
	}
}

func TestIssuesGetByNumber_MissingTicketIsNotAnError(t *testing.T) {
	notFound := core.Classify(http.StatusNotFound,
		map[string]string{"x-request-id": "req_404"},
		[]byte(`{"message":"issue not found"}`),
	)
	client, _ := newIssuesTestClient(t, devkit.TransportScript{Err: notFound})

	issue, err := client.Issues().GetByNumber(context.Background(), 9999)
	if err != nil {
		t.Fatalf("expected missing ticket to be swallowed, got %v", err)
	}
	if issue != nil {
		t.Fatalf("expected nil issue for missing ticket, got %#v", issue)
	}
}

func TestIssuesUpdate_PatchesFields(t *testing.T) {
	body, err := devkit.EntityDocument(map[string]any{"id": "issue_123", "state": "closed"})
	if err != nil {
		t.Fatalf("entity document: %v", err)
	}
	client, scripted := newIssuesTestClient(t, devkit.TransportScript{
		Response: devkit.JSONResponse(http.StatusOK, body, "req_1"),
	})

	issue, err := client.Issues().Update(context.Background(), "issue_123", map[string]any{"state": "closed"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if issue.State != "closed" {
		t.Fatalf("unexpected issue: %#v", issue)
	}

	req := scripted.Requests()[0]
	if req.Method != http.MethodPatch || req.Path != "/issues/issue_123" {
		t.Fatalf("unexpected request target: %s %s", req.Method, req.Path)
	}
	var sent map[string]any
	if err := json.Unmarshal(req.Body, &sent); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	if sent["state"] != "closed" {
		t.Fatalf("unexpected request body: %#v", sent)
	}

	if _, err := client.Issues().Update(context.Background(), "issue_123", nil); err == nil {
		t.Fatalf("expected fields requirement error")
	}
}

func TestIssuesMessages_WalksConversation(t *testing.T) {
	client, scripted := newIssuesTestClient(t,
		issuePageScript(t, []any{
			map[string]any{"id": "msg_1", "message_text": "hello"},
		}, "", "req_1"),
	)

	it, err := client.Issues().Messages("issue_123", 20)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	messages, err := it.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(messages) != 1 || messages[0].MessageText != "hello" {
		t.Fatalf("unexpected messages: %#v", messages)
	}
	req := scripted.Requests()[0]
	if req.Path != "/issues/issue_123/messages" || req.Query["limit"] != "20" {
		t.Fatalf("unexpected request: %#v", req)
	}
}

func TestIssuesSearch_CursorTravelsInBody(t *testing.T) {
	client, scripted := newIssuesTestClient(t,
		issuePageScript(t, []any{map[string]any{"id": "issue_1"}}, "cur_2", "req_1"),
		issuePageScript(t, []any{map[string]any{"id": "issue_2"}}, "", "req_2"),
	)

	filter := map[string]any{"field": "state", "operator": "equals", "value": "open"}
	it, err := client.Issues().Search(filter, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	issues, err := it.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}

	requests := scripted.Requests()
	if len(requests) != 2 {
		t.Fatalf("expected two page fetches, got %d", len(requests))
	}
	for i, req := range requests {
		if req.Method != http.MethodPost || req.Path != "/issues/search" {
			t.Fatalf("unexpected request %d target: %s %s", i, req.Method, req.Path)
		}
	}

	var first, second map[string]any
	if err := json.Unmarshal(requests[0].Body, &first); err != nil {
		t.Fatalf("decode first body: %v", err)
	}
	if err := json.Unmarshal(requests[1].Body, &second); err != nil {
		t.Fatalf("decode second body: %v", err)
	}
	if first["filter"] == nil || first["limit"] != float64(10) {
		t.Fatalf("unexpected first body: %#v", first)
	}
	if _, ok := first["cursor"]; ok {
		t.Fatalf("first search page must not carry a cursor")
	}
	if second["cursor"] != "cur_2" {
		t.Fatalf("expected continuation cursor in body, got %#v", second)
	}
	if second["filter"] == nil {
		t.Fatalf("filter must persist on continuation pages: %#v", second)
	}

	if _, err := client.Issues().Search(nil, 10); err == nil {
		t.Fatalf("expected filter requirement error")
	}
}
