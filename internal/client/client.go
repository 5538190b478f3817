package client

import (
	"context"
	"time"

	"github.com/ashgrove-media/mediafleet/internal/modulestore"
)

// Status is the typed outcome of a single client operation.
type Status int

const (
	// StatusOK means the operation succeeded.
	StatusOK Status = iota

	// StatusNotImplemented means the client does not support the operation.
	// Never treated as a failure: heterogeneous clients support disjoint
	// capability subsets.
	StatusNotImplemented

	// StatusRecoverable is a transient failure; the operation may succeed
	// if retried later.
	StatusRecoverable

	// StatusPermanentFailure means the client cannot work in its current
	// configuration. During creation this disables the module at the store.
	StatusPermanentFailure

	// StatusServerError is the aggregate "one or more clients unreachable"
	// outcome of callable-set computation.
	StatusServerError
)

// IsFailure reports whether the status counts against aggregate fan-out
// results. Success and not-implemented do not.
func (s Status) IsFailure() bool {
	return s != StatusOK && s != StatusNotImplemented
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotImplemented:
		return "not_implemented"
	case StatusRecoverable:
		return "recoverable"
	case StatusPermanentFailure:
		return "permanent_failure"
	case StatusServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// ConnState is a client's last known connection state to its backend.
type ConnState int

const (
	// ConnStateUnknown is the initial state before any report.
	ConnStateUnknown ConnState = iota

	// ConnStateConnecting means the client is establishing its connection.
	ConnStateConnecting

	// ConnStateConnected means the backend is reachable and serving.
	ConnStateConnected

	// ConnStateDisconnected means an established connection was lost.
	ConnStateDisconnected

	// ConnStateUnreachable means the backend cannot be reached.
	ConnStateUnreachable

	// ConnStateVersionMismatch means the backend runs an unsupported version.
	ConnStateVersionMismatch

	// ConnStateServerMismatch means the backend speaks an incompatible protocol.
	ConnStateServerMismatch

	// ConnStateAccessDenied means the backend rejected the credentials.
	ConnStateAccessDenied
)

func (s ConnState) String() string {
	switch s {
	case ConnStateUnknown:
		return "unknown"
	case ConnStateConnecting:
		return "connecting"
	case ConnStateConnected:
		return "connected"
	case ConnStateDisconnected:
		return "disconnected"
	case ConnStateUnreachable:
		return "unreachable"
	case ConnStateVersionMismatch:
		return "version_mismatch"
	case ConnStateServerMismatch:
		return "server_mismatch"
	case ConnStateAccessDenied:
		return "access_denied"
	default:
		return "invalid"
	}
}

// Capabilities is the feature set one client supports.
type Capabilities struct {
	TV               bool
	Radio            bool
	EPG              bool
	Recordings       bool
	RecordingsSize   bool
	RecordingsDelete bool
	Timers           bool
	ChannelGroups    bool
	ChannelScan      bool
	ChannelSettings  bool
	Providers        bool
}

// Client is the contract the registry requires of one connector instance.
//
// Lifecycle calls (Create, Destroy, Recreate) may block on network I/O and
// are never invoked while the registry lock is held. Data operations return
// a typed Status; StatusNotImplemented is a valid, non-failing answer.
type Client interface {
	// ID returns the stable client identity derived from module and
	// instance (see ClientID).
	ID() int
	ModuleID() string
	InstanceID() modulestore.InstanceID
	Name() string

	// Create brings the client up. Idempotent: creating an already-ready
	// client returns StatusOK.
	Create(ctx context.Context) Status

	// Destroy shuts the client down. The handle stays valid for existing
	// holders; it only stops being ready.
	Destroy(ctx context.Context) error

	// Recreate tears down and rebuilds the connection in place. Identity
	// and registry slot are unchanged.
	Recreate(ctx context.Context) error

	// Stop suspends the client without destroying it: the handle stays
	// registered but leaves the callable set until Continue. Used around
	// host sleep, where a full destroy/create cycle would be wasteful.
	Stop(ctx context.Context) error

	// Continue lifts a Stop. No-op on a client that is not stopped.
	Continue(ctx context.Context) error

	// ReloadSettings re-reads instance configuration on the live client.
	ReloadSettings(ctx context.Context) error

	// ReadyToUse reports whether the client is created and serving.
	ReadyToUse() bool

	// Ignored reports whether the backend flagged this client unreachable;
	// ignored clients are excluded from the callable set.
	Ignored() bool

	Capabilities() Capabilities

	// ConnectionState returns the last recorded connection state.
	ConnectionState() ConnState

	// SetConnectionState records a new connection state.
	SetConnectionState(state ConnState)

	// Data operations.
	Channels(ctx context.Context, radio bool) ([]Channel, Status)
	ChannelGroups(ctx context.Context, radio bool) ([]ChannelGroup, Status)
	Timers(ctx context.Context) ([]Timer, Status)
	Recordings(ctx context.Context, deleted bool) ([]Recording, Status)
	DeleteAllRecordingsFromTrash(ctx context.Context) Status
	SetEPGMaxPastDays(ctx context.Context, days int) Status
	SetEPGMaxFutureDays(ctx context.Context, days int) Status
	Providers(ctx context.Context) ([]Provider, Status)
	BackendProperties(ctx context.Context) (BackendProperties, Status)

	// Power event notifications.
	OnSystemSleep(ctx context.Context) Status
	OnSystemWake(ctx context.Context) Status
	OnPowerSavingActivated(ctx context.Context) Status
	OnPowerSavingDeactivated(ctx context.Context) Status
}

// Factory constructs a client handle for one module instance. The registry
// calls it during reconciliation; Create is invoked separately.
type Factory func(moduleID string, instanceID modulestore.InstanceID, clientID int) (Client, error)

// DataService is the dependent data-serving subsystem. The registry pauses
// it around reconciliation so no fan-out call lands on a handle
// mid-transition.
type DataService interface {
	Pause()
	Resume()

	// StopActiveSession stops any active session using the given client
	// before it is destroyed or recreated.
	StopActiveSession(clientID int)
}

// Notifier delivers user-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, isError bool, title, message string) error
}

// Telemetry records fleet metrics. All methods must be non-blocking.
type Telemetry interface {
	RecordConnectionState(moduleID string, instanceID uint32, clientID int, state string, connected bool)
	RecordFanout(operation string, targeted, failed int, duration time.Duration)
	RecordReconciliation(created, recreated, destroyed int, duration time.Duration)
}

// Logger is the logging surface the registry needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
