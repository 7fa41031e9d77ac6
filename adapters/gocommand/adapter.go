// Package gocommand exposes the client's command and query handlers on the
// go-command dispatcher and registry, so hosts that already route work through
// go-command can dispatch issue updates, webhook delivery processing, and
// checkpoint operations without touching the HTTP client directly.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	pylon "github.com/goliatone/go-pylon"
	pyloncmd "github.com/goliatone/go-pylon/command"
	"github.com/goliatone/go-pylon/core"
	pylonquery "github.com/goliatone/go-pylon/query"
	"github.com/goliatone/go-pylon/webhooks"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// RegistryAdapter wraps a go-command registry so facade handlers and queue
// resolvers register through one seam.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver routes registry lookups for key to a go-job queue command
// registry, which is how queue-scheduled sync and redelivery messages reach
// their handlers.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// SubscribeFacade places every command and query handler of a configured
// facade on the process-wide dispatcher. Callers keep the subscriptions to
// unsubscribe on shutdown. Handlers for concerns the facade was not wired
// with stay subscribed and surface their dependency errors on dispatch.
func SubscribeFacade(facade *pylon.Facade, runnerOpts ...runner.Option) ([]commanddispatcher.Subscription, error) {
	if facade == nil {
		return nil, fmt.Errorf("gocommand: facade is required")
	}
	commands := facade.Commands()
	queries := facade.Queries()
	return []commanddispatcher.Subscription{
		SubscribeCommand[pyloncmd.UpdateIssueMessage](commands.UpdateIssue, runnerOpts...),
		SubscribeCommand[pyloncmd.ProcessDeliveryMessage](commands.ProcessDelivery, runnerOpts...),
		SubscribeCommand[pyloncmd.AdvanceCheckpointMessage](commands.AdvanceCheckpoint, runnerOpts...),
		SubscribeQuery[pylonquery.GetIssueMessage, map[string]any](queries.GetIssue, runnerOpts...),
		SubscribeQuery[pylonquery.SearchIssuesMessage, []map[string]any](queries.SearchIssues, runnerOpts...),
		SubscribeQuery[pylonquery.LoadCheckpointMessage, core.Checkpoint](queries.LoadCheckpoint, runnerOpts...),
		SubscribeQuery[pylonquery.GetDeliveryMessage, webhooks.DeliveryRecord](queries.GetDelivery, runnerOpts...),
	}, nil
}

// RegisterFacade registers the facade's handlers on the adapter's registry so
// queue-delivered messages resolve to the same handlers the dispatcher uses.
func RegisterFacade(adapter *RegistryAdapter, facade *pylon.Facade) error {
	if adapter == nil || adapter.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if facade == nil {
		return fmt.Errorf("gocommand: facade is required")
	}
	commands := facade.Commands()
	queries := facade.Queries()
	for _, cmd := range []any{commands.UpdateIssue, commands.ProcessDelivery, commands.AdvanceCheckpoint} {
		if err := adapter.RegisterCommand(cmd); err != nil {
			return err
		}
	}
	for _, qry := range []any{queries.GetIssue, queries.SearchIssues, queries.LoadCheckpoint, queries.GetDelivery} {
		if err := adapter.RegisterQuery(qry); err != nil {
			return err
		}
	}
	return nil
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}
