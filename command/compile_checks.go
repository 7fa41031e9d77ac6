package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[UpdateIssueMessage]       = (*UpdateIssueCommand)(nil)
	_ gocmd.Commander[ProcessDeliveryMessage]   = (*ProcessDeliveryCommand)(nil)
	_ gocmd.Commander[AdvanceCheckpointMessage] = (*AdvanceCheckpointCommand)(nil)
)
