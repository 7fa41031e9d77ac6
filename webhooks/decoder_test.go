package webhooks

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-pylon/core"
)

func sampleSnapshotFields() map[string]any {
	return map[string]any{
		"event_type":                 "issue_new",
		"issue_id":                   "issue_123",
		"issue_number":               42,
		"issue_title":                "Test Issue",
		"issue_team_name":            "Support",
		"issue_account_id":           "acc_123",
		"issue_account_name":         "Test Account",
		"issue_requester_email":      "user@example.com",
		"issue_requesteer_id":        "user_123",
		"issue_assignee_email":       "agent@example.com",
		"issue_assignee_id":          "agent_123",
		"issue_body":                 "This is a test issue",
		"issue_status":               "open",
		"issue_sf_type":              "support",
		"issue_last_message_sent_at": "2024-01-15T10:30:00Z",
		"issue_link":                 "https://app.usepylon.com/issues/issue_123",
		"issue_tags":                 []string{"billing", "urgent"},
		"issue_account_domains":      []string{"example.com"},
		"issue_attachment_urls":      []string{},
	}
}

func sampleMessageFields() map[string]any {
	return map[string]any{
		"event_type":            "issue_message_new",
		"issue_id":              "issue_123",
		"issue_number":          42,
		"issue_title":           "Test Issue",
		"issue_team_name":       "Support",
		"issue_account_id":      "acc_123",
		"issue_account_name":    "Test Account",
		"issue_requester_email": "user@example.com",
		"issue_requesteer_id":   "user_123",
		"issue_assignee_email":  "agent@example.com",
		"issue_assignee_id":     "agent_123",
		"message_id":            "msg_123",
		"message_author_id":     "user_456",
		"message_author_name":   "Sam Agent",
		"message_body_html":     "<p>Any update on this?</p>",
		"message_is_private":    false,
		"message_sent_at":       "2024-01-15T10:31:00Z",
		"message_ccs":           []string{"cc@example.com"},
	}
}

func encodeFields(t *testing.T, fields map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return payload
}

func TestDecodeEvent_SnapshotEvent(t *testing.T) {
	event, err := DecodeEvent(encodeFields(t, sampleSnapshotFields()))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	snapshot, ok := event.(IssueSnapshotEvent)
	if !ok {
		t.Fatalf("DecodeEvent() = %T, want IssueSnapshotEvent", event)
	}

	if snapshot.Type() != EventIssueNew {
		t.Fatalf("Type() = %q, want %q", snapshot.Type(), EventIssueNew)
	}
	if snapshot.IssueID != "issue_123" || snapshot.IssueNumber != 42 {
		t.Fatalf("issue identity = (%q, %d), want (issue_123, 42)", snapshot.IssueID, snapshot.IssueNumber)
	}
	if snapshot.IssueTitle != "Test Issue" || snapshot.IssueStatus != "open" {
		t.Fatalf("issue fields = (%q, %q), want (Test Issue, open)", snapshot.IssueTitle, snapshot.IssueStatus)
	}
	if snapshot.IssueRequesterID != "user_123" {
		t.Fatalf("IssueRequesterID = %q, want user_123", snapshot.IssueRequesterID)
	}
	wantSentAt := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if !snapshot.IssueLastMessageSentAt.Equal(wantSentAt) {
		t.Fatalf("IssueLastMessageSentAt = %v, want %v", snapshot.IssueLastMessageSentAt, wantSentAt)
	}
	if !reflect.DeepEqual(snapshot.IssueTags, []string{"billing", "urgent"}) {
		t.Fatalf("IssueTags = %v, want [billing urgent]", snapshot.IssueTags)
	}
	if snapshot.IssueAttachmentURLs == nil || len(snapshot.IssueAttachmentURLs) != 0 {
		t.Fatalf("IssueAttachmentURLs = %#v, want empty non-nil list", snapshot.IssueAttachmentURLs)
	}
}

func TestDecodeEvent_MessageEvent(t *testing.T) {
	event, err := DecodeEvent(encodeFields(t, sampleMessageFields()))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	message, ok := event.(IssueMessageEvent)
	if !ok {
		t.Fatalf("DecodeEvent() = %T, want IssueMessageEvent", event)
	}

	if message.Type() != EventIssueMessageNew {
		t.Fatalf("Type() = %q, want %q", message.Type(), EventIssueMessageNew)
	}
	if message.MessageID != "msg_123" || message.MessageAuthorName != "Sam Agent" {
		t.Fatalf("message fields = (%q, %q), want (msg_123, Sam Agent)", message.MessageID, message.MessageAuthorName)
	}
	if message.MessageIsPrivate {
		t.Fatal("MessageIsPrivate = true, want false")
	}
	wantSentAt := time.Date(2024, 1, 15, 10, 31, 0, 0, time.UTC)
	if !message.MessageSentAt.Equal(wantSentAt) {
		t.Fatalf("MessageSentAt = %v, want %v", message.MessageSentAt, wantSentAt)
	}
	if !reflect.DeepEqual(message.MessageCCs, []string{"cc@example.com"}) {
		t.Fatalf("MessageCCs = %v, want [cc@example.com]", message.MessageCCs)
	}
	if message.Issue().IssueID != "issue_123" {
		t.Fatalf("Issue().IssueID = %q, want issue_123", message.Issue().IssueID)
	}
}

func TestDecodeEvent_SnapshotTagsShareShape(t *testing.T) {
	tags := []string{
		EventIssueNew,
		EventIssueAssigned,
		EventIssueFieldChanged,
		EventIssueStatusChanged,
		EventIssueTagsChanged,
		EventIssueReaction,
	}
	for _, tag := range tags {
		fields := sampleSnapshotFields()
		fields["event_type"] = tag
		event, err := DecodeEvent(encodeFields(t, fields))
		if err != nil {
			t.Fatalf("DecodeEvent(%s) error = %v", tag, err)
		}
		if _, ok := event.(IssueSnapshotEvent); !ok {
			t.Fatalf("DecodeEvent(%s) = %T, want IssueSnapshotEvent", tag, event)
		}
		if event.Type() != tag {
			t.Fatalf("Type() = %q, want %q", event.Type(), tag)
		}
	}
}

func TestDecodeEvent_UnknownTypeFailsClosed(t *testing.T) {
	fields := sampleSnapshotFields()
	fields["event_type"] = "issue_deleted"

	_, err := DecodeEvent(encodeFields(t, fields))
	if !core.IsUnknownEventType(err) {
		t.Fatalf("DecodeEvent() error = %v, want unknown event type", err)
	}
}

func TestDecodeEvent_MissingRequiredFieldFails(t *testing.T) {
	for _, field := range []string{"issue_title", "issue_requesteer_id", "issue_body", "issue_last_message_sent_at"} {
		fields := sampleSnapshotFields()
		delete(fields, field)

		_, err := DecodeEvent(encodeFields(t, fields))
		if !core.IsMalformedPayload(err) {
			t.Fatalf("DecodeEvent() without %s error = %v, want malformed payload", field, err)
		}
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("DecodeEvent() without %s error = %q, want the field named", field, err)
		}
	}
}

func TestDecodeEvent_MissingEventTypeFails(t *testing.T) {
	fields := sampleSnapshotFields()
	delete(fields, "event_type")

	_, err := DecodeEvent(encodeFields(t, fields))
	if !core.IsMalformedPayload(err) {
		t.Fatalf("DecodeEvent() error = %v, want malformed payload", err)
	}
}

func TestDecodeEvent_RejectsNonObjectPayload(t *testing.T) {
	for _, payload := range []string{"not valid json", `["issue_new"]`, `{}`} {
		_, err := DecodeEvent([]byte(payload))
		if !core.IsMalformedPayload(err) {
			t.Fatalf("DecodeEvent(%q) error = %v, want malformed payload", payload, err)
		}
	}
}

func TestDecodeEvent_CoercesScalarShapes(t *testing.T) {
	fields := sampleMessageFields()
	fields["issue_number"] = "42"
	fields["message_is_private"] = "true"
	fields["message_sent_at"] = 1705314600 // 2024-01-15T10:30:00Z

	event, err := DecodeEvent(encodeFields(t, fields))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	message := event.(IssueMessageEvent)
	if message.IssueNumber != 42 {
		t.Fatalf("IssueNumber = %d, want 42 from string form", message.IssueNumber)
	}
	if !message.MessageIsPrivate {
		t.Fatal("MessageIsPrivate = false, want true from string form")
	}
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if !message.MessageSentAt.Equal(want) {
		t.Fatalf("MessageSentAt = %v, want %v from epoch seconds", message.MessageSentAt, want)
	}
}

func TestDecodeEvent_RejectsFractionalIssueNumber(t *testing.T) {
	fields := sampleSnapshotFields()
	fields["issue_number"] = 42.5

	_, err := DecodeEvent(encodeFields(t, fields))
	if !core.IsMalformedPayload(err) {
		t.Fatalf("DecodeEvent() error = %v, want malformed payload", err)
	}
	if !strings.Contains(err.Error(), "issue_number") {
		t.Fatalf("DecodeEvent() error = %q, want issue_number named", err)
	}
}

func TestDecodeEvent_ListsDefaultEmpty(t *testing.T) {
	fields := sampleSnapshotFields()
	delete(fields, "issue_tags")
	delete(fields, "issue_account_domains")
	delete(fields, "issue_attachment_urls")

	event, err := DecodeEvent(encodeFields(t, fields))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	snapshot := event.(IssueSnapshotEvent)
	for name, list := range map[string][]string{
		"issue_tags":            snapshot.IssueTags,
		"issue_account_domains": snapshot.IssueAccountDomains,
		"issue_attachment_urls": snapshot.IssueAttachmentURLs,
	} {
		if list == nil || len(list) != 0 {
			t.Fatalf("%s = %#v, want empty non-nil list", name, list)
		}
	}
}

func TestDecodeEvent_RejectsMistypedList(t *testing.T) {
	fields := sampleSnapshotFields()
	fields["issue_tags"] = "billing"

	_, err := DecodeEvent(encodeFields(t, fields))
	if !core.IsMalformedPayload(err) {
		t.Fatalf("DecodeEvent() error = %v, want malformed payload", err)
	}
}

func TestDecodeEvent_OptionalFieldsStayEmpty(t *testing.T) {
	event, err := DecodeEvent(encodeFields(t, sampleSnapshotFields()))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	snapshot := event.(IssueSnapshotEvent)
	if snapshot.IssueSalesforceAccountID != "" || snapshot.CustomFieldPriority != "" {
		t.Fatalf("optional fields = (%q, %q), want empty", snapshot.IssueSalesforceAccountID, snapshot.CustomFieldPriority)
	}

	fields := sampleSnapshotFields()
	fields["issue_salesforce_account_id"] = "sf_123"
	fields["issue_custom_field_priority"] = "p1"
	event, err = DecodeEvent(encodeFields(t, fields))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	snapshot = event.(IssueSnapshotEvent)
	if snapshot.IssueSalesforceAccountID != "sf_123" || snapshot.CustomFieldPriority != "p1" {
		t.Fatalf("optional fields = (%q, %q), want (sf_123, p1)", snapshot.IssueSalesforceAccountID, snapshot.CustomFieldPriority)
	}
}

func TestDecodeEvent_AcceptsOffsetTimestamp(t *testing.T) {
	fields := sampleSnapshotFields()
	fields["issue_last_message_sent_at"] = "2024-01-15T12:30:00+02:00"

	event, err := DecodeEvent(encodeFields(t, fields))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	snapshot := event.(IssueSnapshotEvent)
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if !snapshot.IssueLastMessageSentAt.Equal(want) {
		t.Fatalf("IssueLastMessageSentAt = %v, want %v in UTC", snapshot.IssueLastMessageSentAt, want)
	}
}

func TestDecodeEvent_IsDeterministic(t *testing.T) {
	payload := encodeFields(t, sampleSnapshotFields())

	first, err := DecodeEvent(payload)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	second, err := DecodeEvent(payload)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("DecodeEvent() twice = %#v and %#v, want identical events", first, second)
	}
}

func TestEventTypes_ListsAllTags(t *testing.T) {
	types := EventTypes()
	if len(types) != 7 {
		t.Fatalf("EventTypes() listed %d tags, want 7", len(types))
	}
	for i := 1; i < len(types); i++ {
		if types[i-1] >= types[i] {
			t.Fatalf("EventTypes() = %v, want sorted", types)
		}
	}
}
