package core

import (
	"context"
	"fmt"
	"strings"
)

// BearerTokenSigner attaches the API key as a bearer Authorization header.
type BearerTokenSigner struct {
	Token string
}

func (s BearerTokenSigner) Sign(_ context.Context, req *Request) error {
	if req == nil {
		return fmt.Errorf("core: request is required")
	}
	token := strings.TrimSpace(s.Token)
	if token == "" {
		return fmt.Errorf("core: api key is required for bearer signing")
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	req.Headers["Authorization"] = "Bearer " + token
	return nil
}

var _ Signer = BearerTokenSigner{}
