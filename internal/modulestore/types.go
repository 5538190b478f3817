package modulestore

// InstanceID identifies one configured instance of a connector module.
//
// A module that does not support multiple instances has exactly one
// instance with SingletonInstanceID. Multi-instance modules number their
// instances from FirstInstanceID upwards.
type InstanceID uint32

const (
	// SingletonInstanceID is the instance ID of single-instance modules.
	SingletonInstanceID InstanceID = 0

	// FirstInstanceID is the lowest instance ID of multi-instance modules.
	FirstInstanceID InstanceID = 1
)

// Module describes one installed connector module and its configured
// instances.
type Module struct {
	ID          string
	Name        string
	Icon        string
	Thumb       string
	Disabled    bool
	InstanceIDs []InstanceID
}

// DisabledReason records why a module was disabled.
type DisabledReason int

const (
	// NotDisabled means the module is enabled.
	NotDisabled DisabledReason = iota

	// DisabledByUser means the user disabled the module.
	DisabledByUser

	// DisabledBySystem means the orchestrator disabled the module, for
	// example after a permanent creation failure.
	DisabledBySystem
)

// EventKind identifies a module store lifecycle event.
type EventKind string

// Module lifecycle events published on the module-event topic.
const (
	EventEnabled         EventKind = "enabled"
	EventDisabled        EventKind = "disabled"
	EventUninstalled     EventKind = "uninstalled"
	EventReinstalled     EventKind = "reinstalled"
	EventInstanceAdded   EventKind = "instance_added"
	EventInstanceRemoved EventKind = "instance_removed"
)

// Event is a single module store lifecycle event.
type Event struct {
	Kind       EventKind  `json:"event"`
	ModuleID   string     `json:"module_id"`
	InstanceID InstanceID `json:"instance_id,omitempty"`
}
