package pylon

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/paginate"
)

// AccountsService reads customer accounts.
type AccountsService struct {
	client *Client
}

// List iterates every account. Limit overrides the configured page size.
func (s *AccountsService) List(limit int) (*paginate.Iterator[Account], error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: accounts service is not configured", goerrors.CategoryBadInput)
	}
	template := core.Request{
		Method: http.MethodGet,
		Path:   "/accounts",
	}
	return iterator[Account](s.client, template, pageSizeOption(limit)...)
}

func (s *AccountsService) Get(ctx context.Context, accountID string) (*Account, error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: accounts service is not configured", goerrors.CategoryBadInput)
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, goerrors.New("pylon: account id is required", goerrors.CategoryBadInput)
	}
	account := &Account{}
	if err := s.client.doJSON(ctx, "accounts.get", http.MethodGet, "/accounts/"+accountID, nil, nil, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Search filters accounts server-side, typically by a custom field such as an
// external CRM id.
func (s *AccountsService) Search(filter map[string]any, limit int) (*paginate.Iterator[Account], error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: accounts service is not configured", goerrors.CategoryBadInput)
	}
	template, err := searchTemplate("/accounts/search", filter)
	if err != nil {
		return nil, err
	}
	opts := append([]paginate.Option{paginate.WithCursorInBody()}, pageSizeOption(limit)...)
	return iterator[Account](s.client, template, opts...)
}
