package client

import "context"

// Typed fan-out wrappers. Each one shares the dispatcher's single
// failure-classification and diagnostic path instead of duplicating
// try-and-log logic at every call site. Fan-out runs sequentially, so the
// collection closures need no locking.

// GetChannels collects TV or radio channels from every callable client.
func (r *Registry) GetChannels(ctx context.Context, radio bool) ([]Channel, Status, []int) {
	var all []Channel
	status, failed := r.forCreatedClients(ctx, "get_channels", func(c Client) Status {
		items, st := c.Channels(ctx, radio)
		if st == StatusOK {
			all = append(all, items...)
		}
		return st
	})
	return all, status, failed
}

// GetChannelGroups collects channel groups from every callable client.
func (r *Registry) GetChannelGroups(ctx context.Context, radio bool) ([]ChannelGroup, Status, []int) {
	var all []ChannelGroup
	status, failed := r.forCreatedClients(ctx, "get_channel_groups", func(c Client) Status {
		items, st := c.ChannelGroups(ctx, radio)
		if st == StatusOK {
			all = append(all, items...)
		}
		return st
	})
	return all, status, failed
}

// GetTimers collects timers from every callable client that supports them.
func (r *Registry) GetTimers(ctx context.Context) ([]Timer, Status, []int) {
	var all []Timer
	status, failed := r.forCreatedClients(ctx, "get_timers", func(c Client) Status {
		if !c.Capabilities().Timers {
			return StatusNotImplemented
		}
		items, st := c.Timers(ctx)
		if st == StatusOK {
			all = append(all, items...)
		}
		return st
	})
	return all, status, failed
}

// GetRecordings collects recordings from every callable client that supports
// them. With deleted true, the trash folders are listed instead.
func (r *Registry) GetRecordings(ctx context.Context, deleted bool) ([]Recording, Status, []int) {
	var all []Recording
	status, failed := r.forCreatedClients(ctx, "get_recordings", func(c Client) Status {
		if !c.Capabilities().Recordings {
			return StatusNotImplemented
		}
		items, st := c.Recordings(ctx, deleted)
		if st == StatusOK {
			all = append(all, items...)
		}
		return st
	})
	return all, status, failed
}

// DeleteAllRecordingsFromTrash empties the trash on every callable client
// that supports recording deletion.
func (r *Registry) DeleteAllRecordingsFromTrash(ctx context.Context) (Status, []int) {
	return r.forCreatedClients(ctx, "delete_trash", func(c Client) Status {
		if !c.Capabilities().RecordingsDelete {
			return StatusNotImplemented
		}
		return c.DeleteAllRecordingsFromTrash(ctx)
	})
}

// GetProviders collects content providers from every callable client.
func (r *Registry) GetProviders(ctx context.Context) ([]Provider, Status, []int) {
	var all []Provider
	status, failed := r.forCreatedClients(ctx, "get_providers", func(c Client) Status {
		if !c.Capabilities().Providers {
			return StatusNotImplemented
		}
		items, st := c.Providers(ctx)
		if st == StatusOK {
			all = append(all, items...)
		}
		return st
	})
	return all, status, failed
}

// GetBackendProperties collects backend descriptions from every callable
// client. Used for presentation.
func (r *Registry) GetBackendProperties(ctx context.Context) ([]BackendProperties, Status, []int) {
	var all []BackendProperties
	status, failed := r.forCreatedClients(ctx, "backend_properties", func(c Client) Status {
		props, st := c.BackendProperties(ctx)
		if st == StatusOK {
			all = append(all, props)
		}
		return st
	})
	return all, status, failed
}

// SetEPGMaxPastDays pushes the EPG past-days window to every callable client.
func (r *Registry) SetEPGMaxPastDays(ctx context.Context, days int) (Status, []int) {
	return r.forCreatedClients(ctx, "set_epg_max_past_days", func(c Client) Status {
		if !c.Capabilities().EPG {
			return StatusNotImplemented
		}
		return c.SetEPGMaxPastDays(ctx, days)
	})
}

// SetEPGMaxFutureDays pushes the EPG future-days window to every callable client.
func (r *Registry) SetEPGMaxFutureDays(ctx context.Context, days int) (Status, []int) {
	return r.forCreatedClients(ctx, "set_epg_max_future_days", func(c Client) Status {
		if !c.Capabilities().EPG {
			return StatusNotImplemented
		}
		return c.SetEPGMaxFutureDays(ctx, days)
	})
}

// OnSystemSleep tells every callable client the system is suspending.
// Outcomes are ignored; a client that cannot handle the event has no
// recourse anyway.
func (r *Registry) OnSystemSleep(ctx context.Context) {
	r.forCreatedClients(ctx, "on_system_sleep", func(c Client) Status {
		return c.OnSystemSleep(ctx)
	})
}

// OnSystemWake tells every callable client the system resumed.
func (r *Registry) OnSystemWake(ctx context.Context) {
	r.forCreatedClients(ctx, "on_system_wake", func(c Client) Status {
		return c.OnSystemWake(ctx)
	})
}

// OnPowerSavingActivated tells every callable client power saving started.
func (r *Registry) OnPowerSavingActivated(ctx context.Context) {
	r.forCreatedClients(ctx, "on_power_saving_activated", func(c Client) Status {
		return c.OnPowerSavingActivated(ctx)
	})
}

// OnPowerSavingDeactivated tells every callable client power saving ended.
func (r *Registry) OnPowerSavingDeactivated(ctx context.Context) {
	r.forCreatedClients(ctx, "on_power_saving_deactivated", func(c Client) Status {
		return c.OnPowerSavingDeactivated(ctx)
	})
}

// ClientsSupportingChannelScan returns the ready clients that can scan for
// channels.
func (r *Registry) ClientsSupportingChannelScan() []Client {
	return r.clientsMatching(func(c Client) bool {
		return c.ReadyToUse() && c.Capabilities().ChannelScan
	})
}

// ClientsSupportingChannelSettings returns the ready clients that support
// client-side channel settings for the given channel kind.
func (r *Registry) ClientsSupportingChannelSettings(radio bool) []Client {
	return r.clientsMatching(func(c Client) bool {
		if !c.ReadyToUse() {
			return false
		}
		caps := c.Capabilities()
		if !caps.ChannelSettings {
			return false
		}
		if radio {
			return caps.Radio
		}
		return caps.TV
	})
}

// AnyClientSupportingEPG reports whether any ready client serves an EPG.
func (r *Registry) AnyClientSupportingEPG() bool {
	return r.AnyClient(func(c Client) bool {
		return c.ReadyToUse() && c.Capabilities().EPG
	})
}

// AnyClientSupportingRecordings reports whether any ready client serves
// recordings.
func (r *Registry) AnyClientSupportingRecordings() bool {
	return r.AnyClient(func(c Client) bool {
		return c.ReadyToUse() && c.Capabilities().Recordings
	})
}

// AnyClientSupportingRecordingsDelete reports whether any ready client can
// delete recordings.
func (r *Registry) AnyClientSupportingRecordingsDelete() bool {
	return r.AnyClient(func(c Client) bool {
		return c.ReadyToUse() && c.Capabilities().RecordingsDelete
	})
}

// AnyClientSupportingRecordingsSize reports whether any ready client reports
// recording sizes.
func (r *Registry) AnyClientSupportingRecordingsSize() bool {
	return r.AnyClient(func(c Client) bool {
		return c.ReadyToUse() && c.Capabilities().RecordingsSize
	})
}

// clientsMatching snapshots the registered clients matching a predicate.
// The predicate runs under the registry lock and must not block.
func (r *Registry) clientsMatching(match func(Client) bool) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Client
	for _, c := range r.clients {
		if match(c) {
			out = append(out, c)
		}
	}
	return out
}
