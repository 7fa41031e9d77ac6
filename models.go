package pylon

import "time"

// Reference points at a related Pylon entity by id. Many responses embed
// related entities this way instead of inlining them.
type Reference struct {
	ID string `json:"id"`
}

// CustomFieldValue is the slug-keyed custom field payload. Multi-select
// fields carry Values; everything else uses Value.
type CustomFieldValue struct {
	Slug   string   `json:"slug,omitempty"`
	Value  string   `json:"value"`
	Values []string `json:"values,omitempty"`
}

type SlackIssueInfo struct {
	MessageTS   string `json:"message_ts"`
	ChannelID   string `json:"channel_id"`
	WorkspaceID string `json:"workspace_id"`
}

// Issue is a support conversation or ticket. Field coverage is
// representative of the API, not exhaustive.
type Issue struct {
	ID                                string                      `json:"id"`
	Number                            int                         `json:"number"`
	Title                             string                      `json:"title"`
	Link                              string                      `json:"link"`
	BodyHTML                          string                      `json:"body_html"`
	State                             string                      `json:"state"`
	Account                           *Reference                  `json:"account,omitempty"`
	Assignee                          *Reference                  `json:"assignee,omitempty"`
	Requester                         *Reference                  `json:"requester,omitempty"`
	Team                              *Reference                  `json:"team,omitempty"`
	Tags                              []string                    `json:"tags,omitempty"`
	CustomFields                      map[string]CustomFieldValue `json:"custom_fields,omitempty"`
	FirstResponseTime                 *time.Time                  `json:"first_response_time,omitempty"`
	ResolutionTime                    *time.Time                  `json:"resolution_time,omitempty"`
	LatestMessageTime                 time.Time                   `json:"latest_message_time"`
	CreatedAt                         time.Time                   `json:"created_at"`
	CustomerPortalVisible             bool                        `json:"customer_portal_visible"`
	Source                            string                      `json:"source"`
	Slack                             *SlackIssueInfo             `json:"slack,omitempty"`
	Type                              string                      `json:"type"`
	NumberOfTouches                   int                         `json:"number_of_touches"`
	FirstResponseSeconds              *int                        `json:"first_response_seconds,omitempty"`
	BusinessHoursFirstResponseSeconds *int                        `json:"business_hours_first_response_seconds,omitempty"`
}

// Account is a customer organization.
type Account struct {
	ID                         string                      `json:"id"`
	Name                       string                      `json:"name"`
	Owner                      *Reference                  `json:"owner,omitempty"`
	Domain                     string                      `json:"domain,omitempty"`
	Domains                    []string                    `json:"domains,omitempty"`
	PrimaryDomain              string                      `json:"primary_domain,omitempty"`
	Type                       string                      `json:"type"`
	CreatedAt                  time.Time                   `json:"created_at"`
	Tags                       []string                    `json:"tags,omitempty"`
	CustomFields               map[string]CustomFieldValue `json:"custom_fields,omitempty"`
	LatestCustomerActivityTime *time.Time                  `json:"latest_customer_activity_time,omitempty"`
	ExternalIDs                map[string]string           `json:"external_ids,omitempty"`
}

// Contact is a person on the customer side of an account.
type Contact struct {
	ID           string                      `json:"id"`
	Name         string                      `json:"name"`
	Email        string                      `json:"email,omitempty"`
	Emails       []string                    `json:"emails,omitempty"`
	Account      *Reference                  `json:"account,omitempty"`
	CustomFields map[string]CustomFieldValue `json:"custom_fields,omitempty"`
	PortalRole   string                      `json:"portal_role,omitempty"`
	AvatarURL    string                      `json:"avatar_url,omitempty"`
}

// User is a support agent.
type User struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	Email     string   `json:"email"`
	Emails    []string `json:"emails,omitempty"`
	RoleID    string   `json:"role_id"`
	AvatarURL string   `json:"avatar_url,omitempty"`
}

type TeamMember struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Team struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Users []TeamMember `json:"users,omitempty"`
}

// Tag labels issues or accounts. ObjectType is "issue" or "account".
type Tag struct {
	ID         string `json:"id"`
	Value      string `json:"value"`
	ObjectType string `json:"object_type"`
	HexColor   string `json:"hex_color,omitempty"`
}

type MessageAuthorContact struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

type MessageAuthorUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// MessageAuthor is either a contact or a user depending on which side of the
// conversation sent the message.
type MessageAuthor struct {
	Contact   *MessageAuthorContact `json:"contact,omitempty"`
	User      *MessageAuthorUser    `json:"user,omitempty"`
	Name      string                `json:"name,omitempty"`
	AvatarURL string                `json:"avatar_url,omitempty"`
}

type EmailInfo struct {
	FromEmail string   `json:"from_email,omitempty"`
	ToEmails  []string `json:"to_emails,omitempty"`
	CcEmails  []string `json:"cc_emails,omitempty"`
	BccEmails []string `json:"bcc_emails,omitempty"`
}

type SlackMessageInfo struct {
	ChannelID string `json:"channel_id,omitempty"`
	ThreadTS  string `json:"thread_ts,omitempty"`
	MessageTS string `json:"message_ts,omitempty"`
}

// Message is one entry in an issue conversation.
type Message struct {
	ID          string            `json:"id"`
	MessageHTML string            `json:"message_html,omitempty"`
	MessageText string            `json:"message_text,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Source      string            `json:"source,omitempty"`
	Author      *MessageAuthor    `json:"author,omitempty"`
	IsPrivate   bool              `json:"is_private"`
	EmailInfo   *EmailInfo        `json:"email_info,omitempty"`
	SlackInfo   *SlackMessageInfo `json:"slack_info,omitempty"`
	Attachments []map[string]any  `json:"attachments,omitempty"`
}

// AuditLog is a read-only record of an action taken in the workspace.
type AuditLog struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Actor        *Reference     `json:"actor,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
