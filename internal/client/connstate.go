package client

import "context"

// classifyConnState maps a connection state transition to its notification
// policy: whether it is an error, whether the user should be told, and a
// fallback message.
//
// The first unreachable or connected report after an unknown/connecting
// state is suppressed: during normal startup races these fire before the
// backend has settled and would be noisy false alarms. Every later
// occurrence notifies.
func classifyConnState(prev, next ConnState) (isError, notify bool, message string) {
	startup := prev == ConnStateUnknown || prev == ConnStateConnecting

	switch next {
	case ConnStateConnecting:
		return false, false, "connecting to backend"
	case ConnStateConnected:
		return false, !startup, "connection established"
	case ConnStateDisconnected:
		return true, true, "connection lost"
	case ConnStateUnreachable:
		return true, !startup, "backend unreachable"
	case ConnStateVersionMismatch:
		return true, true, "backend version not supported"
	case ConnStateServerMismatch:
		return true, true, "backend not compatible"
	case ConnStateAccessDenied:
		return true, true, "access denied by backend"
	default:
		return true, true, "unknown connection state"
	}
}

// ConnectionStateChange records a client's new connection state, logs the
// transition, notifies the user per the classification policy, and feeds
// telemetry. The previously recorded state on the handle decides whether
// the notification is suppressed.
func (r *Registry) ConnectionStateChange(ctx context.Context, c Client, newState ConnState, message string) {
	prev := c.ConnectionState()
	isError, notify, fallback := classifyConnState(prev, newState)
	c.SetConnectionState(newState)

	msg := message
	if msg == "" {
		msg = fallback
	}

	logArgs := []any{
		"client_id", c.ID(),
		"module", c.ModuleID(),
		"from", prev.String(),
		"to", newState.String(),
		"message", msg,
	}
	if isError {
		r.log.Error("client connection state changed", logArgs...)
	} else {
		r.log.Info("client connection state changed", logArgs...)
	}

	if notify {
		if err := r.notifier.Notify(ctx, isError, c.Name(), msg); err != nil {
			r.log.Warn("sending connection notification", "client_id", c.ID(), "error", err)
		}
	}

	if r.telemetry != nil {
		r.telemetry.RecordConnectionState(
			c.ModuleID(),
			uint32(c.InstanceID()),
			c.ID(),
			newState.String(),
			newState == ConnStateConnected,
		)
	}
}
