package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"taskmarket/core/types"
)

const (
	EventTypeTaskPosted                   = "market.task.posted"
	EventTypeQuoteProposed                = "market.quote.proposed"
	EventTypeTaskAccepted                 = "market.task.accepted"
	EventTypeSellerBondFunded             = "market.bond.funded"
	EventTypeTaskFunded                   = "market.task.funded"
	EventTypeQuoteAccepted                = "market.quote.accepted"
	EventTypeDeliverableSubmitted         = "market.deliverable.submitted"
	EventTypeSubmissionAccepted           = "market.submission.accepted"
	EventTypeSubmissionDisputed           = "market.submission.disputed"
	EventTypeTaskSettled                  = "market.task.settled"
	EventTypeTaskSettledV2                = "market.task.settled_v2"
	EventTypePostDisputeTimeoutSettled    = "market.task.post_dispute_timeout_settled"
	EventTypeTaskCancelled                = "market.task.cancelled"
	EventTypeTaskCancelledForNonDelivery  = "market.task.cancelled_non_delivery"
	EventTypeSellerCancelledQuote         = "market.quote.cancelled"
	EventTypeDisputeModuleUpdateScheduled = "market.dispute_module.update_scheduled"
	EventTypeDisputeModuleUpdateCancelled = "market.dispute_module.update_cancelled"
	EventTypeDisputeModuleUpdated         = "market.dispute_module.updated"
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

func baseTaskAttrs(t *Task) map[string]string {
	return map[string]string{
		"taskId":    strconv.FormatUint(t.ID, 10),
		"listingId": strconv.FormatUint(t.ListingID, 10),
		"agentId":   strconv.FormatUint(t.AgentID, 10),
		"buyer":     hex.EncodeToString(t.Buyer[:]),
		"status":    t.Status.String(),
	}
}

// NewTaskPostedEvent reports a new task entering OPEN.
func NewTaskPostedEvent(t *Task) *types.Event {
	attrs := baseTaskAttrs(t)
	attrs["paymentToken"] = t.PaymentToken
	attrs["taskURI"] = t.TaskURI
	attrs["proposedUnits"] = strconv.FormatUint(t.ProposedUnits, 10)
	return &types.Event{Type: EventTypeTaskPosted, Attributes: attrs}
}

// NewQuoteProposedEvent reports an explicit agent quote.
func NewQuoteProposedEvent(t *Task) *types.Event {
	attrs := baseTaskAttrs(t)
	attrs["quotedUnits"] = strconv.FormatUint(t.QuotedUnits, 10)
	attrs["quotedTotalPrice"] = t.QuotedTotalPrice.String()
	attrs["quoteExpiry"] = strconv.FormatInt(t.QuoteExpiry, 10)
	return &types.Event{Type: EventTypeQuoteProposed, Attributes: attrs}
}

// NewTaskAcceptedEvent reports the implicit-quote variant of acceptTask.
func NewTaskAcceptedEvent(t *Task) *types.Event {
	attrs := baseTaskAttrs(t)
	attrs["quotedUnits"] = strconv.FormatUint(t.QuotedUnits, 10)
	attrs["quotedTotalPrice"] = t.QuotedTotalPrice.String()
	return &types.Event{Type: EventTypeTaskAccepted, Attributes: attrs}
}

// NewSellerBondFundedEvent reports a bond deposit.
func NewSellerBondFundedEvent(t *Task) *types.Event {
	attrs := baseTaskAttrs(t)
	attrs["amount"] = t.SellerBond.String()
	attrs["bondFunder"] = hex.EncodeToString(t.BondFunder[:])
	return &types.Event{Type: EventTypeSellerBondFunded, Attributes: attrs}
}

// NewTaskFundedEvent reports the buyer's escrow deposit.
func NewTaskFundedEvent(t *Task) *types.Event {
	attrs := baseTaskAttrs(t)
	attrs["amount"] = t.FundedAmount.String()
	return &types.Event{Type: EventTypeTaskFunded, Attributes: attrs}
}

// NewQuoteAcceptedEvent reports activation, including the seller snapshot.
func NewQuoteAcceptedEvent(t *Task) *types.Event {
	attrs := baseTaskAttrs(t)
	attrs["seller"] = hex.EncodeToString(t.Seller[:])
	attrs["activatedAt"] = strconv.FormatInt(t.ActivatedAt, 10)
	return &types.Event{Type: EventTypeQuoteAccepted, Attributes: attrs}
}

// NewDeliverableSubmittedEvent reports a seller submission.
func NewDeliverableSubmittedEvent(t *Task) *types.Event {
	attrs := baseTaskAttrs(t)
	attrs["artifactURI"] = t.ArtifactURI
	attrs["artifactHash"] = hex.EncodeToString(t.ArtifactHash[:])
	attrs["submittedAt"] = strconv.FormatInt(t.SubmittedAt, 10)
	return &types.Event{Type: EventTypeDeliverableSubmitted, Attributes: attrs}
}

// NewSubmissionAcceptedEvent reports buyer acceptance prior to settlement.
func NewSubmissionAcceptedEvent(t *Task) *types.Event {
	return &types.Event{Type: EventTypeSubmissionAccepted, Attributes: baseTaskAttrs(t)}
}

// NewSubmissionDisputedEvent reports a dispute opening, surfaced whether the
// call arrived via the buyer directly or routed through the dispute module.
func NewSubmissionDisputedEvent(t *Task, disputeURI string) *types.Event {
	attrs := baseTaskAttrs(t)
	attrs["disputeURI"] = disputeURI
	return &types.Event{Type: EventTypeSubmissionDisputed, Attributes: attrs}
}

func settlementAttrs(t *Task, buyerPayout, sellerPayout, bondFunderPayout *big.Int) map[string]string {
	attrs := baseTaskAttrs(t)
	attrs["settlementPath"] = string(t.SettlementPath)
	attrs["buyerPayout"] = buyerPayout.String()
	attrs["sellerPayout"] = sellerPayout.String()
	attrs["bondFunderPayout"] = bondFunderPayout.String()
	return attrs
}

// NewTaskSettledEvent emits the legacy-shaped settlement payload, kept for
// integrations that have not migrated to the richer v2 event.
func NewTaskSettledEvent(t *Task, buyerPayout, sellerPayout, bondFunderPayout *big.Int) *types.Event {
	return &types.Event{Type: EventTypeTaskSettled, Attributes: settlementAttrs(t, buyerPayout, sellerPayout, bondFunderPayout)}
}

// NewTaskSettledV2Event emits the full settlement payload including the
// originating path, alongside the legacy event on every settlement.
func NewTaskSettledV2Event(t *Task, buyerPayout, sellerPayout, bondFunderPayout *big.Int) *types.Event {
	return &types.Event{Type: EventTypeTaskSettledV2, Attributes: settlementAttrs(t, buyerPayout, sellerPayout, bondFunderPayout)}
}

// NewPostDisputeTimeoutSettledEvent reports settlement via the silent
// post-dispute timeout path.
func NewPostDisputeTimeoutSettledEvent(t *Task, buyerPayout, sellerPayout, bondFunderPayout *big.Int) *types.Event {
	return &types.Event{Type: EventTypePostDisputeTimeoutSettled, Attributes: settlementAttrs(t, buyerPayout, sellerPayout, bondFunderPayout)}
}

// NewTaskCancelledEvent reports a pre-activation cancellation.
func NewTaskCancelledEvent(t *Task) *types.Event {
	return &types.Event{Type: EventTypeTaskCancelled, Attributes: baseTaskAttrs(t)}
}

// NewTaskCancelledForNonDeliveryEvent reports cancellation with the
// escrowed amount and the forfeited seller bond both paid to the buyer.
func NewTaskCancelledForNonDeliveryEvent(t *Task, escrowRefund, sellerBondPenalty *big.Int) *types.Event {
	attrs := baseTaskAttrs(t)
	attrs["escrowRefund"] = escrowRefund.String()
	attrs["sellerBondPenalty"] = sellerBondPenalty.String()
	return &types.Event{Type: EventTypeTaskCancelledForNonDelivery, Attributes: attrs}
}

// NewSellerCancelledQuoteEvent reports a seller withdrawing an open quote,
// carrying the bond amount refunded to bondFunder, if any.
func NewSellerCancelledQuoteEvent(t *Task, bondRefund *big.Int) *types.Event {
	attrs := baseTaskAttrs(t)
	attrs["bondRefund"] = bondRefund.String()
	return &types.Event{Type: EventTypeSellerCancelledQuote, Attributes: attrs}
}

func disputeModuleAttrs(current, pending [20]byte, activateAt int64) map[string]string {
	return map[string]string{
		"current":    hex.EncodeToString(current[:]),
		"pending":    hex.EncodeToString(pending[:]),
		"activateAt": strconv.FormatInt(activateAt, 10),
	}
}

// NewDisputeModuleUpdateScheduledEvent reports a timelocked upgrade request.
func NewDisputeModuleUpdateScheduledEvent(current, pending [20]byte, activateAt int64) *types.Event {
	return &types.Event{Type: EventTypeDisputeModuleUpdateScheduled, Attributes: disputeModuleAttrs(current, pending, activateAt)}
}

// NewDisputeModuleUpdateCancelledEvent reports an admin aborting a pending upgrade.
func NewDisputeModuleUpdateCancelledEvent(current, pending [20]byte) *types.Event {
	return &types.Event{Type: EventTypeDisputeModuleUpdateCancelled, Attributes: disputeModuleAttrs(current, pending, 0)}
}

// NewDisputeModuleUpdatedEvent reports a completed dispute module swap.
func NewDisputeModuleUpdatedEvent(previous, current [20]byte) *types.Event {
	attrs := map[string]string{
		"previous": hex.EncodeToString(previous[:]),
		"current":  hex.EncodeToString(current[:]),
	}
	return &types.Event{Type: EventTypeDisputeModuleUpdated, Attributes: attrs}
}
