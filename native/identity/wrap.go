package identity

import "taskmarket/core/types"

// eventWrapper adapts the package's *types.Event payloads to the
// events.Event interface expected by the shared emitter.
type eventWrapper struct {
	evt *types.Event
}

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
