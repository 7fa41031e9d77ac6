package pylon

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/paginate"
)

// TeamsService reads agent teams and their membership.
type TeamsService struct {
	client *Client
}

func (s *TeamsService) List(limit int) (*paginate.Iterator[Team], error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: teams service is not configured", goerrors.CategoryBadInput)
	}
	template := core.Request{
		Method: http.MethodGet,
		Path:   "/teams",
	}
	return iterator[Team](s.client, template, pageSizeOption(limit)...)
}

func (s *TeamsService) Get(ctx context.Context, teamID string) (*Team, error) {
	if s == nil || s.client == nil {
		return nil, goerrors.New("pylon: teams service is not configured", goerrors.CategoryBadInput)
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return nil, goerrors.New("pylon: team id is required", goerrors.CategoryBadInput)
	}
	team := &Team{}
	if err := s.client.doJSON(ctx, "teams.get", http.MethodGet, "/teams/"+teamID, nil, nil, team); err != nil {
		return nil, err
	}
	return team, nil
}
