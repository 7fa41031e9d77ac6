package pylon

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/paginate"
)

// ContactsService reads end-user contacts.
type ContactsService struct {
	client *Client
}

func (s *ContactsService) List(limit int) (*paginate.Iterator[Contact], error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: contacts service is not configured", goerrors.CategoryBadInput)
	}
	template := core.Request{
		Method: http.MethodGet,
		Path:   "/contacts",
	}
	return iterator[Contact](s.client, template, pageSizeOption(limit)...)
}

func (s *ContactsService) Get(ctx context.Context, contactID string) (*Contact, error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: contacts service is not configured", goerrors.CategoryBadInput)
	}
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return nil, goerrors.New("pylon: contact id is required", goerrors.CategoryBadInput)
	}
	contact := &Contact{}
	if err := s.client.doJSON(ctx, "contacts.get", http.MethodGet, "/contacts/"+contactID, nil, nil, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

// Search filters contacts server-side, commonly by email.
func (s *ContactsService) Search(filter map[string]any, limit int) (*paginate.Iterator[Contact], error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: contacts service is not configured", goerrors.CategoryBadInput)
	}
	template, err := searchTemplate("/contacts/search", filter)
	if err != nil {
		return nil, err
	}
	opts := append([]paginate.Option{paginate.WithCursorInBody()}, pageSizeOption(limit)...)
	return iterator[Contact](s.client, template, opts...)
}
