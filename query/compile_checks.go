package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-pylon/core"
	"github.com/goliatone/go-pylon/webhooks"
)

var (
	_ gocmd.Querier[GetIssueMessage, map[string]any]              = (*GetIssueQuery)(nil)
	_ gocmd.Querier[SearchIssuesMessage, []map[string]any]        = (*SearchIssuesQuery)(nil)
	_ gocmd.Querier[LoadCheckpointMessage, core.Checkpoint]       = (*LoadCheckpointQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, webhooks.DeliveryRecord]  = (*GetDeliveryQuery)(nil)
)
