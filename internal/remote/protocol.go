package remote

import (
	"encoding/json"

	"github.com/ashgrove-media/mediafleet/internal/client"
)

// Request methods understood by connector processes.
const (
	methodCreate             = "create"
	methodDestroy            = "destroy"
	methodRecreate           = "recreate"
	methodStop               = "stop"
	methodContinue           = "continue"
	methodReloadSettings     = "reload_settings"
	methodCapabilities       = "capabilities"
	methodChannels           = "channels"
	methodChannelGroups      = "channel_groups"
	methodTimers             = "timers"
	methodRecordings         = "recordings"
	methodDeleteTrash        = "delete_trash"
	methodSetEPGPastDays     = "set_epg_max_past_days"
	methodSetEPGFutureDays   = "set_epg_max_future_days"
	methodProviders          = "providers"
	methodBackendProperties  = "backend_properties"
	methodSystemSleep        = "on_system_sleep"
	methodSystemWake         = "on_system_wake"
	methodPowerSavingOn      = "on_power_saving_activated"
	methodPowerSavingOff     = "on_power_saving_deactivated"
)

// request is the JSON envelope published to a connector's request topic.
// The response arrives on the response topic suffixed with the request ID.
type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// response is the JSON envelope a connector publishes back.
type response struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// statePayload is published retained on a connector's state topic.
type statePayload struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// parseStatus maps a wire status string to a typed outcome. Unknown strings
// read as recoverable: a misbehaving connector should not poison the fleet
// permanently.
func parseStatus(s string) client.Status {
	switch s {
	case "ok":
		return client.StatusOK
	case "not_implemented":
		return client.StatusNotImplemented
	case "recoverable":
		return client.StatusRecoverable
	case "permanent_failure":
		return client.StatusPermanentFailure
	case "server_error":
		return client.StatusServerError
	default:
		return client.StatusRecoverable
	}
}

// parseConnState maps a wire state string to a connection state. Unknown
// strings read as ConnStateUnknown.
func parseConnState(s string) client.ConnState {
	switch s {
	case "connecting":
		return client.ConnStateConnecting
	case "connected":
		return client.ConnStateConnected
	case "disconnected":
		return client.ConnStateDisconnected
	case "unreachable":
		return client.ConnStateUnreachable
	case "version_mismatch":
		return client.ConnStateVersionMismatch
	case "server_mismatch":
		return client.ConnStateServerMismatch
	case "access_denied":
		return client.ConnStateAccessDenied
	default:
		return client.ConnStateUnknown
	}
}
