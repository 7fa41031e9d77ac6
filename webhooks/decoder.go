package webhooks

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// eventTimeLayout is the provider's fixed UTC format. RFC3339 is accepted as
// a fallback for offsets and fractional seconds.
const eventTimeLayout = "2006-01-02T15:04:05Z"

// DecodeEvent parses a raw delivery payload into its typed event. Unknown
// event types fail closed, and a missing or mistyped required field rejects
// the whole payload rather than yielding a partial event.
func DecodeEvent(payload []byte) (Event, error) {
	fields := map[string]any{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, malformedEventError("webhooks: payload is not a json object", err, nil)
	}
	return DecodeEventMap(fields)
}

// DecodeEventMap decodes an already-parsed payload object.
func DecodeEventMap(fields map[string]any) (Event, error) {
	if len(fields) == 0 {
		return nil, malformedEventError("webhooks: payload is empty", nil, nil)
	}
	eventType, err := requiredString(fields, "event_type")
	if err != nil {
		return nil, err
	}

	switch {
	case eventType == EventIssueMessageNew:
		return decodeMessageEvent(fields)
	case isSnapshotEvent(eventType):
		return decodeSnapshotEvent(fields)
	default:
		return nil, unknownEventError(eventType)
	}
}

func isSnapshotEvent(eventType string) bool {
	_, ok := snapshotEventTypes[eventType]
	return ok
}

func decodeSnapshotEvent(fields map[string]any) (Event, error) {
	base, err := decodeBase(fields)
	if err != nil {
		return nil, err
	}

	event := IssueSnapshotEvent{IssueEventBase: base}
	if event.IssueBody, err = requiredString(fields, "issue_body"); err != nil {
		return nil, err
	}
	if event.IssueStatus, err = requiredString(fields, "issue_status"); err != nil {
		return nil, err
	}
	if event.IssueSalesforceType, err = requiredString(fields, "issue_sf_type"); err != nil {
		return nil, err
	}
	if event.IssueLastMessageSentAt, err = requiredTime(fields, "issue_last_message_sent_at"); err != nil {
		return nil, err
	}
	if event.IssueLink, err = requiredString(fields, "issue_link"); err != nil {
		return nil, err
	}
	if event.IssueTags, err = stringList(fields, "issue_tags"); err != nil {
		return nil, err
	}
	if event.IssueAccountDomains, err = stringList(fields, "issue_account_domains"); err != nil {
		return nil, err
	}
	if event.IssueAttachmentURLs, err = stringList(fields, "issue_attachment_urls"); err != nil {
		return nil, err
	}
	if event.CustomFieldFeatureMentioned, err = optionalString(fields, "issue_custom_field_feature_mentioned"); err != nil {
		return nil, err
	}
	if event.CustomFieldIDEMentioned, err = optionalString(fields, "issue_custom_field_ide_mentioned"); err != nil {
		return nil, err
	}
	if event.CustomFieldPriority, err = optionalString(fields, "issue_custom_field_priority"); err != nil {
		return nil, err
	}
	if event.CustomFieldQuestionType, err = optionalString(fields, "issue_custom_field_question_type"); err != nil {
		return nil, err
	}
	if event.CustomFieldRequestID, err = optionalString(fields, "issue_custom_field_request_id_if_applicable"); err != nil {
		return nil, err
	}
	if event.CustomFieldSalesforceIssueID, err = optionalString(fields, "issue_custom_field_salesforce_issue_id"); err != nil {
		return nil, err
	}
	return event, nil
}

func decodeMessageEvent(fields map[string]any) (Event, error) {
	base, err := decodeBase(fields)
	if err != nil {
		return nil, err
	}

	event := IssueMessageEvent{IssueEventBase: base}
	if event.MessageID, err = requiredString(fields, "message_id"); err != nil {
		return nil, err
	}
	if event.MessageAuthorID, err = requiredString(fields, "message_author_id"); err != nil {
		return nil, err
	}
	if event.MessageAuthorName, err = requiredString(fields, "message_author_name"); err != nil {
		return nil, err
	}
	if event.MessageBodyHTML, err = requiredString(fields, "message_body_html"); err != nil {
		return nil, err
	}
	if event.MessageIsPrivate, err = requiredBool(fields, "message_is_private"); err != nil {
		return nil, err
	}
	if event.MessageSentAt, err = requiredTime(fields, "message_sent_at"); err != nil {
		return nil, err
	}
	if event.MessageCCs, err = stringList(fields, "message_ccs"); err != nil {
		return nil, err
	}
	return event, nil
}

func decodeBase(fields map[string]any) (IssueEventBase, error) {
	base := IssueEventBase{}
	var err error
	if base.EventType, err = requiredString(fields, "event_type"); err != nil {
		return base, err
	}
	if base.IssueID, err = requiredString(fields, "issue_id"); err != nil {
		return base, err
	}
	if base.IssueNumber, err = requiredInt(fields, "issue_number"); err != nil {
		return base, err
	}
	if base.IssueTitle, err = requiredString(fields, "issue_title"); err != nil {
		return base, err
	}
	if base.IssueTeamName, err = requiredString(fields, "issue_team_name"); err != nil {
		return base, err
	}
	if base.IssueAccountID, err = requiredString(fields, "issue_account_id"); err != nil {
		return base, err
	}
	if base.IssueAccountName, err = requiredString(fields, "issue_account_name"); err != nil {
		return base, err
	}
	if base.IssueRequesterEmail, err = requiredString(fields, "issue_requester_email"); err != nil {
		return base, err
	}
	if base.IssueRequesterID, err = requiredString(fields, "issue_requesteer_id"); err != nil {
		return base, err
	}
	if base.IssueAssigneeEmail, err = requiredString(fields, "issue_assignee_email"); err != nil {
		return base, err
	}
	if base.IssueAssigneeID, err = requiredString(fields, "issue_assignee_id"); err != nil {
		return base, err
	}
	if base.IssueSalesforceAccountID, err = optionalString(fields, "issue_salesforce_account_id"); err != nil {
		return base, err
	}
	return base, nil
}

func requiredString(fields map[string]any, key string) (string, error) {
	value, ok := fields[key]
	if !ok || value == nil {
		return "", missingFieldError(key)
	}
	text, ok := value.(string)
	if !ok {
		return "", fieldTypeError(key, "a string")
	}
	return text, nil
}

func optionalString(fields map[string]any, key string) (string, error) {
	value, ok := fields[key]
	if !ok || value == nil {
		return "", nil
	}
	text, ok := value.(string)
	if !ok {
		return "", fieldTypeError(key, "a string")
	}
	return text, nil
}

func requiredInt(fields map[string]any, key string) (int, error) {
	value, ok := fields[key]
	if !ok || value == nil {
		return 0, missingFieldError(key)
	}
	switch typed := value.(type) {
	case float64:
		if typed != math.Trunc(typed) {
			return 0, fieldTypeError(key, "an integer")
		}
		return int(typed), nil
	case int:
		return typed, nil
	case int64:
		return int(typed), nil
	case json.Number:
		number, err := typed.Int64()
		if err != nil {
			return 0, fieldTypeError(key, "an integer")
		}
		return int(number), nil
	case string:
		number, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0, fieldTypeError(key, "an integer")
		}
		return number, nil
	default:
		return 0, fieldTypeError(key, "an integer")
	}
}

func requiredBool(fields map[string]any, key string) (bool, error) {
	value, ok := fields[key]
	if !ok || value == nil {
		return false, missingFieldError(key)
	}
	switch typed := value.(type) {
	case bool:
		return typed, nil
	case string:
		parsed, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(typed)))
		if err != nil {
			return false, fieldTypeError(key, "a boolean")
		}
		return parsed, nil
	case float64:
		if typed == 0 {
			return false, nil
		}
		if typed == 1 {
			return true, nil
		}
		return false, fieldTypeError(key, "a boolean")
	default:
		return false, fieldTypeError(key, "a boolean")
	}
}

func requiredTime(fields map[string]any, key string) (time.Time, error) {
	value, ok := fields[key]
	if !ok || value == nil {
		return time.Time{}, missingFieldError(key)
	}
	switch typed := value.(type) {
	case string:
		for _, layout := range []string{eventTimeLayout, time.RFC3339} {
			if parsed, err := time.Parse(layout, strings.TrimSpace(typed)); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, fieldTypeError(key, "a timestamp")
	case float64:
		seconds, fraction := math.Modf(typed)
		return time.Unix(int64(seconds), int64(fraction*float64(time.Second))).UTC(), nil
	default:
		return time.Time{}, fieldTypeError(key, "a timestamp")
	}
}

func stringList(fields map[string]any, key string) ([]string, error) {
	value, ok := fields[key]
	if !ok || value == nil {
		return []string{}, nil
	}
	switch typed := value.(type) {
	case []string:
		return append([]string{}, typed...), nil
	case []any:
		list := make([]string, 0, len(typed))
		for _, item := range typed {
			text, ok := item.(string)
			if !ok {
				return nil, fieldTypeError(key, "a list of strings")
			}
			list = append(list, text)
		}
		return list, nil
	default:
		return nil, fieldTypeError(key, "a list of strings")
	}
}

func missingFieldError(key string) error {
	return malformedEventError(
		fmt.Sprintf("webhooks: event field %s is required", key),
		nil,
		map[string]any{"field": key},
	)
}

func fieldTypeError(key string, expected string) error {
	return malformedEventError(
		fmt.Sprintf("webhooks: event field %s must be %s", key, expected),
		nil,
		map[string]any{"field": key},
	)
}
