package pylon

import (
	"fmt"
	"sync"

	"github.com/goliatone/go-pylon/transport"
)

// Hook signatures re-exported so callers instrument the client without
// importing the transport package.
type (
	RequestHook  = transport.RequestHook
	ResponseHook = transport.ResponseHook
	RetryHook    = transport.RetryHook
)

// Hooks collects request, response, and retry observers registered before
// the client is built. Hooks fire in registration order.
type Hooks struct {
	mu       sync.RWMutex
	request  []RequestHook
	response []ResponseHook
	retry    []RetryHook
}

func NewHooks() *Hooks {
	return &Hooks{}
}

func (h *Hooks) OnRequest(hook RequestHook) error {
	if h == nil {
		return fmt.Errorf("pylon: hooks are nil")
	}
	if hook == nil {
		return fmt.Errorf("pylon: request hook is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.request = append(h.request, hook)
	return nil
}

func (h *Hooks) OnResponse(hook ResponseHook) error {
	if h == nil {
		return fmt.Errorf("pylon: hooks are nil")
	}
	if hook == nil {
		return fmt.Errorf("pylon: response hook is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.response = append(h.response, hook)
	return nil
}

func (h *Hooks) OnRetry(hook RetryHook) error {
	if h == nil {
		return fmt.Errorf("pylon: hooks are nil")
	}
	if hook == nil {
		return fmt.Errorf("pylon: retry hook is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retry = append(h.retry, hook)
	return nil
}

func (h *Hooks) RequestHooks() []RequestHook {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]RequestHook(nil), h.request...)
}

func (h *Hooks) ResponseHooks() []ResponseHook {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]ResponseHook(nil), h.response...)
}

func (h *Hooks) RetryHooks() []RetryHook {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]RetryHook(nil), h.retry...)
}
