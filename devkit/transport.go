package devkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-pylon/core"
)

// TransportScript pairs one scripted outcome with its position in the call
// sequence.
type TransportScript struct {
	Response core.Response
	Err      error
}

// ScriptedTransport replays a fixed sequence of responses and records every
// request it sees. Once the script runs out the final step repeats, so drain
// loops terminate deterministically.
type ScriptedTransport struct {
	mu       sync.Mutex
	scripts  []TransportScript
	requests []core.Request
}

func NewScriptedTransport(scripts ...TransportScript) *ScriptedTransport {
	return &ScriptedTransport{
		scripts: append([]TransportScript(nil), scripts...),
	}
}

func (t *ScriptedTransport) Kind() string {
	return "rest"
}

func (t *ScriptedTransport) Execute(_ context.Context, req core.Request) (*core.Response, error) {
	if t == nil {
		return nil, fmt.Errorf("devkit: scripted transport is nil")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.requests = append(t.requests, req.Clone())
	index := len(t.requests) - 1
	if index >= len(t.scripts) {
		if len(t.scripts) == 0 {
			return &core.Response{StatusCode: 200, Headers: map[string]string{}}, nil
		}
		index = len(t.scripts) - 1
	}

	script := t.scripts[index]
	if script.Err != nil {
		return nil, script.Err
	}
	response := cloneResponse(script.Response)
	return &response, nil
}

// Requests returns a copy of every request executed so far, in order.
func (t *ScriptedTransport) Requests() []core.Request {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]core.Request, 0, len(t.requests))
	for _, req := range t.requests {
		out = append(out, req.Clone())
	}
	return out
}

// Calls reports how many requests the transport has served.
func (t *ScriptedTransport) Calls() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func cloneResponse(in core.Response) core.Response {
	out := core.Response{
		StatusCode: in.StatusCode,
		Headers:    map[string]string{},
		Body:       append([]byte(nil), in.Body...),
		RequestID:  in.RequestID,
		Metadata:   map[string]any{},
	}
	for key, value := range in.Headers {
		out.Headers[key] = value
	}
	for key, value := range in.Metadata {
		out.Metadata[key] = value
	}
	return out
}

var _ core.Transport = (*ScriptedTransport)(nil)
