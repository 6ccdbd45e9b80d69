package dispute

import (
	"encoding/hex"
	"strconv"

	"taskmarket/core/types"
)

const (
	EventTypeDisputeOpened   = "dispute.opened"
	EventTypeDisputeResolved = "dispute.resolved"
)

type eventWrapper struct{ evt *types.Event }

func (w eventWrapper) EventType() string {
	if w.evt == nil {
		return ""
	}
	return w.evt.Type
}

func wrapEvent(evt *types.Event) *eventWrapper {
	if evt == nil {
		return nil
	}
	return &eventWrapper{evt: evt}
}

// NewDisputeOpenedEvent reports a freshly opened dispute record.
func NewDisputeOpenedEvent(r *DisputeRecord) *types.Event {
	attrs := map[string]string{
		"taskId":     strconv.FormatUint(r.TaskID, 10),
		"buyer":      hex.EncodeToString(r.Buyer[:]),
		"disputeURI": r.DisputeURI,
	}
	return &types.Event{Type: EventTypeDisputeOpened, Attributes: attrs}
}

// NewDisputeResolvedEvent reports a resolver's outcome.
func NewDisputeResolvedEvent(r *DisputeRecord, resolver [20]byte) *types.Event {
	attrs := map[string]string{
		"taskId":        strconv.FormatUint(r.TaskID, 10),
		"resolver":      hex.EncodeToString(resolver[:]),
		"outcome":       r.Outcome.String(),
		"resolutionURI": r.ResolutionURI,
	}
	return &types.Event{Type: EventTypeDisputeResolved, Attributes: attrs}
}
