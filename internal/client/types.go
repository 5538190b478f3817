package client

import (
	"time"

	"github.com/ashgrove-media/mediafleet/internal/modulestore"
)

// Channel is one TV or radio channel reported by a client.
type Channel struct {
	UID      uint32 `json:"uid"`
	ClientID int    `json:"client_id"`
	Name     string `json:"name"`
	Number   int    `json:"number"`
	Radio    bool   `json:"radio"`
	IconPath string `json:"icon_path,omitempty"`
}

// ChannelGroup is one channel group reported by a client. Members holds the
// UIDs of the channels in the group, in presentation order.
type ChannelGroup struct {
	ClientID int      `json:"client_id"`
	Name     string   `json:"name"`
	Radio    bool     `json:"radio"`
	Position int      `json:"position"`
	Members  []uint32 `json:"members,omitempty"`
}

// Timer is one scheduled or running recording timer.
type Timer struct {
	ID        uint32    `json:"id"`
	ClientID  int       `json:"client_id"`
	Type      string    `json:"type,omitempty"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	State     string    `json:"state"`
}

// Recording is one completed recording held by a backend.
type Recording struct {
	ID        string        `json:"id"`
	ClientID  int           `json:"client_id"`
	Title     string        `json:"title"`
	Duration  time.Duration `json:"duration"`
	SizeBytes int64         `json:"size_bytes"`
	Deleted   bool          `json:"deleted"`
}

// Provider is one content provider reported by a client.
type Provider struct {
	ID       int    `json:"id"`
	ClientID int    `json:"client_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IconPath string `json:"icon_path,omitempty"`
}

// BackendProperties describes one backend for presentation.
type BackendProperties struct {
	ClientID       int    `json:"client_id"`
	Name           string `json:"name"`
	Version        string `json:"version"`
	Host           string `json:"host"`
	DiskTotalBytes int64  `json:"disk_total_bytes"`
	DiskUsedBytes  int64  `json:"disk_used_bytes"`
}

// ClientInfo is a per-module-per-instance descriptive record, computed for
// every known module regardless of created state. Used for presentation.
type ClientInfo struct {
	ClientID   int                    `json:"client_id"`
	ModuleID   string                 `json:"module_id"`
	InstanceID modulestore.InstanceID `json:"instance_id"`
	Enabled    bool                   `json:"enabled"`
	Name       string                 `json:"name"`
	Icon       string                 `json:"icon,omitempty"`
	Thumb      string                 `json:"thumb,omitempty"`

	// Capabilities is populated for created clients; nil means the client
	// has not been created, so its feature set is not yet known.
	Capabilities *Capabilities `json:"capabilities,omitempty"`
}
