package webhooks

import (
	"sort"
	"time"
)

// Event types a delivery may carry. Anything else fails decoding closed.
const (
	EventIssueNew           = "issue_new"
	EventIssueAssigned      = "issue_assigned"
	EventIssueFieldChanged  = "issue_field_changed"
	EventIssueStatusChanged = "issue_status_changed"
	EventIssueTagsChanged   = "issue_tags_changed"
	EventIssueReaction      = "issue_reaction"
	EventIssueMessageNew    = "issue_message_new"
)

var snapshotEventTypes = map[string]struct{}{
	EventIssueNew:           {},
	EventIssueAssigned:      {},
	EventIssueFieldChanged:  {},
	EventIssueStatusChanged: {},
	EventIssueTagsChanged:   {},
	EventIssueReaction:      {},
}

// EventTypes lists every recognized event type in sorted order.
func EventTypes() []string {
	types := make([]string, 0, len(snapshotEventTypes)+1)
	for eventType := range snapshotEventTypes {
		types = append(types, eventType)
	}
	types = append(types, EventIssueMessageNew)
	sort.Strings(types)
	return types
}

// Event is the decoded form of a delivery payload. Concrete variants are
// IssueSnapshotEvent and IssueMessageEvent; the union is closed and unknown
// discriminators never decode.
type Event interface {
	Type() string
	Issue() IssueEventBase
	isEvent()
}

// IssueEventBase carries the flattened issue fields present on every event
// type. Field names keep the provider's wire spelling, including the
// misspelled requester id key.
type IssueEventBase struct {
	EventType           string `json:"event_type"`
	IssueID             string `json:"issue_id"`
	IssueNumber         int    `json:"issue_number"`
	IssueTitle          string `json:"issue_title"`
	IssueTeamName       string `json:"issue_team_name"`
	IssueAccountID      string `json:"issue_account_id"`
	IssueAccountName    string `json:"issue_account_name"`
	IssueRequesterEmail string `json:"issue_requester_email"`
	IssueRequesterID    string `json:"issue_requesteer_id"`
	IssueAssigneeEmail  string `json:"issue_assignee_email"`
	IssueAssigneeID     string `json:"issue_assignee_id"`

	IssueSalesforceAccountID string `json:"issue_salesforce_account_id,omitempty"`
}

func (b IssueEventBase) Type() string          { return b.EventType }
func (b IssueEventBase) Issue() IssueEventBase { return b }
func (IssueEventBase) isEvent()                {}

// IssueSnapshotEvent is the full issue snapshot sent for issue_new,
// issue_assigned, issue_field_changed, issue_status_changed,
// issue_tags_changed, and issue_reaction deliveries.
type IssueSnapshotEvent struct {
	IssueEventBase

	IssueBody              string    `json:"issue_body"`
	IssueStatus            string    `json:"issue_status"`
	IssueSalesforceType    string    `json:"issue_sf_type"`
	IssueLastMessageSentAt time.Time `json:"issue_last_message_sent_at"`
	IssueLink              string    `json:"issue_link"`

	IssueTags           []string `json:"issue_tags"`
	IssueAccountDomains []string `json:"issue_account_domains"`
	IssueAttachmentURLs []string `json:"issue_attachment_urls"`

	CustomFieldFeatureMentioned  string `json:"issue_custom_field_feature_mentioned,omitempty"`
	CustomFieldIDEMentioned      string `json:"issue_custom_field_ide_mentioned,omitempty"`
	CustomFieldPriority          string `json:"issue_custom_field_priority,omitempty"`
	CustomFieldQuestionType      string `json:"issue_custom_field_question_type,omitempty"`
	CustomFieldRequestID         string `json:"issue_custom_field_request_id_if_applicable,omitempty"`
	CustomFieldSalesforceIssueID string `json:"issue_custom_field_salesforce_issue_id,omitempty"`
}

// IssueMessageEvent is sent for issue_message_new deliveries, covering both
// customer-visible and internal messages.
type IssueMessageEvent struct {
	IssueEventBase

	MessageID         string    `json:"message_id"`
	MessageAuthorID   string    `json:"message_author_id"`
	MessageAuthorName string    `json:"message_author_name"`
	MessageBodyHTML   string    `json:"message_body_html"`
	MessageIsPrivate  bool      `json:"message_is_private"`
	MessageSentAt     time.Time `json:"message_sent_at"`

	MessageCCs []string `json:"message_ccs"`
}

var (
	_ Event = IssueSnapshotEvent{}
	_ Event = IssueMessageEvent{}
)
