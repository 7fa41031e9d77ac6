package devkit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/webhooks"
)

// WebhookSecret signs every fixture delivery.
const WebhookSecret = "test_webhook_secret_12345"

// IssueEventFields returns the documented issue_new payload. Callers may
// mutate the copy to build variants.
func IssueEventFields() map[string]any {
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

// IssueEventPayload marshals IssueEventFields.
func IssueEventPayload() ([]byte, error) {
	payload, err := json.Marshal(IssueEventFields())
	if err != nil {
		return nil, fmt.Errorf("devkit: marshal issue event payload: %w", err)
	}
	return payload, nil
}

// SignedHeaders builds the delivery headers a verifier accepts for payload
// at the given instant.
func SignedHeaders(secret string, deliveryID string, payload []byte, at time.Time) map[string]string {
	timestamp := strconv.FormatInt(at.UTC().Unix(), 10)
	return map[string]string{
		webhooks.HeaderSignature:  webhooks.Sign(secret, timestamp, payload),
		webhooks.HeaderTimestamp:  timestamp,
		webhooks.HeaderDeliveryID: deliveryID,
	}
}

// SignedDelivery returns the canonical issue_new payload with headers signed
// by WebhookSecret.
func SignedDelivery(deliveryID string, at time.Time) ([]byte, map[string]string, error) {
	payload, err := IssueEventPayload()
	if err != nil {
		return nil, nil, err
	}
	return payload, SignedHeaders(WebhookSecret, deliveryID, payload, at), nil
}

// PageDocument builds a list response body in the API page envelope. An empty
// cursor marks the final page.
func PageDocument(records []any, cursor string, requestID string) ([]byte, error) {
	document := map[string]any{
		"data": records,
	}
	if cursor != "" {
		document["pagination"] = map[string]any{
			"cursor":        cursor,
			"has_next_page": true,
		}
	}
	if requestID != "" {
		document["request_id"] = requestID
	}
	body, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("devkit: marshal page document: %w", err)
	}
	return body, nil
}

// EntityDocument wraps a single record in the API data envelope.
func EntityDocument(entity any) ([]byte, error) {
	body, err := json.Marshal(map[string]any{"data": entity})
	if err != nil {
		return nil, fmt.Errorf("devkit: marshal entity document: %w", err)
	}
	return body, nil
}

// JSONResponse builds a transport response carrying a JSON body.
func JSONResponse(statusCode int, body []byte, requestID string) core.Response {
	return core.Response{
		StatusCode: statusCode,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body:      append([]byte(nil), body...),
		RequestID: requestID,
	}
}
