package identity

import (
	"encoding/hex"
	"strconv"

	"taskmarket/core/types"
)

const (
	EventTypeAgentRegistered     = "identity.agent.registered"
	EventTypeAgentURIUpdated     = "identity.agent.uri_updated"
	EventTypeAgentApproved       = "identity.agent.approved"
	EventTypeAgentApprovalForAll = "identity.agent.approval_for_all"
	EventTypeAgentTransferred    = "identity.agent.transferred"
)

func newAgentEvent(eventType string, a *Agent) *types.Event {
	attrs := make(map[string]string)
	if a == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeAgent(a)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["agentId"] = strconv.FormatUint(sanitized.ID, 10)
	attrs["owner"] = hex.EncodeToString(sanitized.Owner[:])
	if sanitized.Approved != ([20]byte{}) {
		attrs["approved"] = hex.EncodeToString(sanitized.Approved[:])
	}
	attrs["uri"] = sanitized.URI
	attrs["updatedAt"] = strconv.FormatInt(sanitized.UpdatedAt, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewAgentRegisteredEvent reports the canonical payload for agent creation.
func NewAgentRegisteredEvent(a *Agent) *types.Event {
	return newAgentEvent(EventTypeAgentRegistered, a)
}

// NewAgentURIUpdatedEvent reports a metadata URI change.
func NewAgentURIUpdatedEvent(a *Agent) *types.Event {
	return newAgentEvent(EventTypeAgentURIUpdated, a)
}

// NewAgentTransferredEvent reports an ownership transfer, including the
// previous owner for indexers that need the delta.
func NewAgentTransferredEvent(a *Agent, previousOwner [20]byte) *types.Event {
	evt := newAgentEvent(EventTypeAgentTransferred, a)
	evt.Attributes["previousOwner"] = hex.EncodeToString(previousOwner[:])
	return evt
}

// NewAgentApprovedEvent reports a single-address approval change.
func NewAgentApprovedEvent(agentID uint64, owner, approved [20]byte) *types.Event {
	attrs := map[string]string{
		"agentId": strconv.FormatUint(agentID, 10),
		"owner":   hex.EncodeToString(owner[:]),
		"approved": func() string {
			if approved == ([20]byte{}) {
				return ""
			}
			return hex.EncodeToString(approved[:])
		}(),
	}
	return &types.Event{Type: EventTypeAgentApproved, Attributes: attrs}
}

// NewAgentApprovalForAllEvent reports an operator approval change.
func NewAgentApprovalForAllEvent(owner, operator [20]byte, approved bool) *types.Event {
	attrs := map[string]string{
		"owner":    hex.EncodeToString(owner[:]),
		"operator": hex.EncodeToString(operator[:]),
		"approved": strconv.FormatBool(approved),
	}
	return &types.Event{Type: EventTypeAgentApprovalForAll, Attributes: attrs}
}
