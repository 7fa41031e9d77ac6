package paginate

import (
	"bytes"
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pylon/core"
)

type pageInfo struct {
	Cursor      string `json:"cursor"`
	HasNextPage *bool  `json:"has_next_page"`
	HasMore     *bool  `json:"has_more"`
}

type pageEnvelope struct {
	Data       []json.RawMessage `json:"data"`
	Pagination *pageInfo         `json:"pagination"`
	RequestID  string            `json:"request_id"`
}

func (e pageEnvelope) cursor() string {
	if e.Pagination == nil {
		return ""
	}
	return e.Pagination.Cursor
}

func (e pageEnvelope) hasMore() bool {
	if e.Pagination == nil {
		return false
	}
	if e.Pagination.HasNextPage != nil && *e.Pagination.HasNextPage {
		return true
	}
	return e.Pagination.HasMore != nil && *e.Pagination.HasMore
}

// parseEnvelope reads a list payload. A bare JSON array is accepted as a
// single page with no continuation.
func parseEnvelope(body []byte) (pageEnvelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return pageEnvelope{}, nil
	}
	if trimmed[0] == '[' {
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return pageEnvelope{}, malformedError("paginate: decode list payload", err, nil)
		}
		return pageEnvelope{Data: records}, nil
	}

	var envelope pageEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return pageEnvelope{}, malformedError("paginate: decode page envelope", err, nil)
	}
	if envelope.hasMore() && envelope.cursor() == "" {
		return pageEnvelope{}, malformedError("paginate: continuation without cursor", nil, map[string]any{
			"request_id": envelope.RequestID,
		})
	}
	return envelope, nil
}

// DecodePage turns a raw transport response into a generic page of records.
func DecodePage(res *core.Response) (core.Page, error) {
	if res == nil {
		return core.Page{}, malformedError("paginate: response is nil", nil, nil)
	}
	envelope, err := parseEnvelope(res.Body)
	if err != nil {
		return core.Page{}, err
	}

	records := make([]map[string]any, 0, len(envelope.Data))
	for _, raw := range envelope.Data {
		record := map[string]any{}
		if err := json.Unmarshal(raw, &record); err != nil {
			return core.Page{}, malformedError("paginate: decode page record", err, map[string]any{
				"request_id": envelope.RequestID,
			})
		}
		records = append(records, record)
	}

	requestID := envelope.RequestID
	if requestID == "" {
		requestID = res.RequestID
	}
	return core.Page{
		Records:   records,
		Cursor:    envelope.cursor(),
		HasMore:   envelope.hasMore(),
		RequestID: requestID,
	}, nil
}

func malformedError(msg string, cause error, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	if cause != nil {
		richErr := goerrors.Wrap(cause, goerrors.CategoryExternal, msg).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ErrorMalformedPayload)
		return richErr.WithMetadata(metadata)
	}
	return goerrors.New(msg, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ErrorMalformedPayload).
		WithMetadata(metadata)
}

func cancelledError(cause error) error {
	return goerrors.Wrap(cause, goerrors.CategoryOperation, "paginate: iteration cancelled").
		WithTextCode(core.ErrorRequestCancelled)
}
