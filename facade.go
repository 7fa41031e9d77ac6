package pylon

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pylon/command"
	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/query"
	"github.com/goliatone/go-pylon/webhooks"
)

// CommandQueryService is the slice of the client the CQRS surface needs.
// *Client satisfies it.
type CommandQueryService interface {
	command.IssueWriter
	query.IssueReader
}

// Commands bundles the constructed command handlers. Handlers for concerns
// the facade was not wired with (delivery processing, checkpoints) fail with
// dependency errors when executed.
type Commands struct {
	UpdateIssue       *command.UpdateIssueCommand
	ProcessDelivery   *command.ProcessDeliveryCommand
	AdvanceCheckpoint *command.AdvanceCheckpointCommand
}

type Queries struct {
	GetIssue       *query.GetIssueQuery
	SearchIssues   *query.SearchIssuesQuery
	LoadCheckpoint *query.LoadCheckpointQuery
	GetDelivery    *query.GetDeliveryQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	processor   command.DeliveryProcessor
	checkpoints core.CheckpointStore
	deliveries  query.DeliveryReader
}

// WithDeliveryProcessor wires webhook delivery processing into the command
// surface. When the processor is a *webhooks.Processor its ledger also backs
// the delivery query unless WithDeliveryReader overrides it.
func WithDeliveryProcessor(processor command.DeliveryProcessor) FacadeOption {
	return func(options *facadeOptions) {
		options.processor = processor
	}
}

func WithCheckpointStore(store core.CheckpointStore) FacadeOption {
	return func(options *facadeOptions) {
		options.checkpoints = store
	}
}

func WithDeliveryReader(reader query.DeliveryReader) FacadeOption {
	return func(options *facadeOptions) {
		options.deliveries = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, goerrors.New("pylon: command/query service is required", goerrors.CategoryBadInput)
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.deliveries == nil {
		cfg.deliveries = resolveDeliveryReader(cfg.processor)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		UpdateIssue:       command.NewUpdateIssueCommand(service),
		ProcessDelivery:   command.NewProcessDeliveryCommand(cfg.processor),
		AdvanceCheckpoint: command.NewAdvanceCheckpointCommand(cfg.checkpoints),
	}
	facade.queries = Queries{
		GetIssue:       query.NewGetIssueQuery(service),
		SearchIssues:   query.NewSearchIssuesQuery(service),
		LoadCheckpoint: query.NewLoadCheckpointQuery(cfg.checkpoints),
		GetDelivery:    query.NewGetDeliveryQuery(cfg.deliveries),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func resolveDeliveryReader(processor command.DeliveryProcessor) query.DeliveryReader {
	if processor == nil {
		return nil
	}
	if typed, ok := processor.(*webhooks.Processor); ok {
		if typed == nil || typed.Ledger == nil {
			return nil
		}
		return typed.Ledger
	}
	if reader, ok := processor.(query.DeliveryReader); ok {
		return reader
	}
	return nil
}

var _ CommandQueryService = (*Client)(nil)
