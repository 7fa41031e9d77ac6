package pylon

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/paginate"
)

// TagsService reads the workspace tag catalog.
type TagsService struct {
	client *Client
}

func (s *TagsService) List(limit int) (*paginate.Iterator[Tag], error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: tags service is not configured", goerrors.CategoryBadInput)
	}
	template := core.Request{
		Method: http.MethodGet,
		Path:   "/tags",
	}
	return iterator[Tag](s.client, template, pageSizeOption(limit)...)
}
