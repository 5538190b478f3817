package modulestore

import "context"

// SettingEnabled is the per-instance setting key controlling whether a
// client should be created for that instance.
const SettingEnabled = "enabled"

// Store provides read and limited write access to the module store.
//
// The store is the source of truth for which connector modules are
// installed, which of them are disabled, and which instances each module
// has configured. The client registry reconciles the live fleet against it.
type Store interface {
	// Modules returns all installed connector modules with their instance
	// IDs. Disabled modules are included only when includeDisabled is true.
	Modules(ctx context.Context, includeDisabled bool) ([]Module, error)

	// IsDisabled reports whether the module is disabled.
	IsDisabled(ctx context.Context, moduleID string) (bool, error)

	// Disable marks the module disabled with the given reason.
	Disable(ctx context.Context, moduleID string, reason DisabledReason) error

	// BoolSetting returns a boolean instance setting. A missing instance or
	// missing key reads as false.
	BoolSetting(ctx context.Context, moduleID string, instanceID InstanceID, key string) (bool, error)

	// SetBoolSetting writes a boolean instance setting, creating the
	// instance row if needed.
	SetBoolSetting(ctx context.Context, moduleID string, instanceID InstanceID, key string, value bool) error
}
