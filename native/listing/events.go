package listing

import (
	"strconv"

	"taskmarket/core/types"
)

const (
	EventTypeListingCreated = "listing.created"
	EventTypeListingUpdated = "listing.updated"
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

func newListingEvent(eventType string, l *Listing) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["listingId"] = strconv.FormatUint(sanitized.ID, 10)
	attrs["agentId"] = strconv.FormatUint(sanitized.AgentID, 10)
	attrs["uri"] = sanitized.URI
	attrs["active"] = strconv.FormatBool(sanitized.Active)
	attrs["paymentToken"] = sanitized.Pricing.PaymentToken
	attrs["basePrice"] = sanitized.Pricing.BasePrice.String()
	attrs["unitPrice"] = sanitized.Pricing.UnitPrice.String()
	attrs["minUnits"] = strconv.FormatUint(sanitized.Pricing.MinUnits, 10)
	attrs["maxUnits"] = strconv.FormatUint(sanitized.Pricing.MaxUnits, 10)
	attrs["quoteRequired"] = strconv.FormatBool(sanitized.Pricing.QuoteRequired)
	attrs["challengeWindowSec"] = strconv.FormatInt(sanitized.Policy.ChallengeWindowSec, 10)
	attrs["deliveryWindowSec"] = strconv.FormatInt(sanitized.Policy.DeliveryWindowSec, 10)
	attrs["postDisputeWindowSec"] = strconv.FormatInt(sanitized.Policy.PostDisputeWindowSec, 10)
	attrs["sellerBondBps"] = strconv.FormatUint(uint64(sanitized.Policy.SellerBondBps), 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewListingCreatedEvent reports the canonical payload for listing creation.
func NewListingCreatedEvent(l *Listing) *types.Event { return newListingEvent(EventTypeListingCreated, l) }

// NewListingUpdatedEvent reports a URI/active mutation.
func NewListingUpdatedEvent(l *Listing) *types.Event { return newListingEvent(EventTypeListingUpdated, l) }
