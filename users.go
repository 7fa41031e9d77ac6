package pylon

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/paginate"
)

// UsersService reads workspace agents.
type UsersService struct {
	client *Client
}

func (s *UsersService) List(limit int) (*paginate.Iterator[User], error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: users service is not configured", goerrors.CategoryBadInput)
	}
	template := core.Request{
		Method: http.MethodGet,
		Path:   "/users",
	}
	return iterator[User](s.client, template, pageSizeOption(limit)...)
}

func (s *UsersService) Get(ctx context.Context, userID string) (*User, error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: users service is not configured", goerrors.CategoryBadInput)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, goerrors.New("pylon: user id is required", goerrors.CategoryBadInput)
	}
	user := &User{}
	if err := s.client.doJSON(ctx, "users.get", http.MethodGet, "/users/"+userID, nil, nil, user); err != nil {
		return nil, err
	}
	return user, nil
}
