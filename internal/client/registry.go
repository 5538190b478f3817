package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashgrove-media/mediafleet/internal/modulestore"
)

const (
	// defaultQueueSize bounds the async reconcile job queue.
	defaultQueueSize = 64

	// defaultCreateTimeout bounds one client creation call.
	defaultCreateTimeout = 60 * time.Second
)

// RegistryOptions configures a Registry. Store, Factory, Data, and Notifier
// are required; Telemetry and Logger are optional.
type RegistryOptions struct {
	Store     modulestore.Store
	Factory   Factory
	Data      DataService
	Notifier  Notifier
	Telemetry Telemetry
	Logger    Logger

	// QueueSize bounds the async job queue. Defaults to 64.
	QueueSize int

	// CreateTimeout bounds one client creation call. Defaults to 60s.
	CreateTimeout time.Duration
}

type jobKind int

const (
	jobReconcile jobKind = iota
	jobRestart
)

// job is one unit of asynchronous registry work. Module events and restart
// requests are queued rather than handled inline so the notifying goroutine
// never blocks on client network I/O.
type job struct {
	kind       jobKind
	scoped     bool
	moduleID   string
	instanceID modulestore.InstanceID
}

// Registry owns the authoritative mapping from client identity to live
// client handle and reconciles it against the module store.
//
// The map is the only contended shared state and is guarded by one lock.
// The lock is never held across a call into a client: lifecycle and data
// calls may block on network I/O, so holders snapshot what they need and
// release first. Handles stay valid after removal from the map; destruction
// transitions the handle to a terminal phase, it never invalidates a
// reference another goroutine still holds.
type Registry struct {
	mu      sync.RWMutex
	clients map[int]Client

	store     modulestore.Store
	factory   Factory
	data      DataService
	notifier  Notifier
	telemetry Telemetry
	log       Logger

	createTimeout time.Duration

	jobs    chan job
	quit    chan struct{}
	done    chan struct{}
	started bool

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewRegistry creates a registry. Call Start to reconcile the fleet and
// begin processing async triggers.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Store == nil || opts.Factory == nil || opts.Data == nil || opts.Notifier == nil {
		return nil, fmt.Errorf("%w: store, factory, data service and notifier are required", ErrInvalidOptions)
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	createTimeout := opts.CreateTimeout
	if createTimeout <= 0 {
		createTimeout = defaultCreateTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Registry{
		clients:       make(map[int]Client),
		store:         opts.Store,
		factory:       opts.Factory,
		data:          opts.Data,
		notifier:      opts.Notifier,
		telemetry:     opts.Telemetry,
		log:           logger,
		createTimeout: createTimeout,
		jobs:          make(chan job, queueSize),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

// Start runs an initial full reconciliation and launches the worker that
// processes async module events and restart requests.
func (r *Registry) Start(ctx context.Context) error {
	var err error
	r.startOnce.Do(func() {
		err = r.reconcile(ctx, "", 0, false)
		r.started = true
		go r.worker(ctx)
	})
	return err
}

// Stop drains the worker and destroys every remaining client handle
// unconditionally. Safe to call more than once.
func (r *Registry) Stop(ctx context.Context) {
	r.stopOnce.Do(func() {
		close(r.quit)
		if r.started {
			<-r.done
		}
		r.destroyAll(ctx)
	})
}

func (r *Registry) worker(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.quit:
			return
		case j := <-r.jobs:
			r.handleJob(ctx, j)
		}
	}
}

func (r *Registry) handleJob(ctx context.Context, j job) {
	switch j.kind {
	case jobReconcile:
		if err := r.reconcile(ctx, j.moduleID, j.instanceID, j.scoped); err != nil {
			r.log.Error("reconciliation failed",
				"module", j.moduleID,
				"instance", j.instanceID,
				"error", err,
			)
		}
	case jobRestart:
		r.restart(ctx, j.moduleID, j.instanceID)
	}
}

func (r *Registry) enqueue(j job) error {
	select {
	case <-r.quit:
		return ErrRegistryStopped
	default:
	}

	select {
	case r.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// OnModuleEvent queues a reconciliation scoped to the event's module and
// instance. Fire-and-forget: reconciliation is idempotent and safe to run
// back-to-back for overlapping scopes, so at-least-once delivery is fine.
func (r *Registry) OnModuleEvent(event modulestore.Event) {
	err := r.enqueue(job{
		kind:       jobReconcile,
		scoped:     true,
		moduleID:   event.ModuleID,
		instanceID: event.InstanceID,
	})
	if err != nil {
		r.log.Error("queueing module event", "module", event.ModuleID, "kind", string(event.Kind), "error", err)
	}
}

// RequestRestart queues an asynchronous restart of one client.
func (r *Registry) RequestRestart(moduleID string, instanceID modulestore.InstanceID) error {
	return r.enqueue(job{
		kind:       jobRestart,
		moduleID:   moduleID,
		instanceID: instanceID,
	})
}

// UpdateClients runs a full reconciliation pass synchronously.
func (r *Registry) UpdateClients(ctx context.Context) error {
	return r.reconcile(ctx, "", 0, false)
}

// reconcileEntry is one (module, instance) pair with its effective enabled
// state for this pass.
type reconcileEntry struct {
	module     modulestore.Module
	instanceID modulestore.InstanceID
	enabled    bool
}

// reconcile brings the live client map in line with the module store.
//
// Within one pass, creates run before recreates before destroys so a client
// queued for immediate recreation is never destroyed out of order. Newly
// created handles are inserted only after all lifecycle calls completed:
// concurrent readers see the pre-pass or post-pass map, never an
// intermediate one.
func (r *Registry) reconcile(ctx context.Context, scopeModuleID string, scopeInstanceID modulestore.InstanceID, scoped bool) error {
	modules, err := r.store.Modules(ctx, true)
	if err != nil {
		return fmt.Errorf("listing modules: %w", err)
	}
	if len(modules) == 0 {
		return nil
	}

	if scoped {
		found := false
		for _, m := range modules {
			if m.ID == scopeModuleID {
				modules = []modulestore.Module{m}
				found = true
				break
			}
		}
		if !found {
			// Nothing relevant changed.
			return nil
		}
	}

	var entries []reconcileEntry
	for _, m := range modules {
		scopeSeen := false
		for _, instanceID := range m.InstanceIDs {
			if scoped && instanceID == scopeInstanceID {
				scopeSeen = true
			}
			entries = append(entries, reconcileEntry{
				module:     m,
				instanceID: instanceID,
				enabled:    r.instanceEnabled(ctx, m, instanceID),
			})
		}
		// A scoped instance missing from the known-instances list was
		// removed at the source; queue it for destruction anyway. Only for
		// real instance scopes: the singleton ID aliases the first
		// instance's identity and module-level events carry it.
		if scoped && !scopeSeen && scopeInstanceID > modulestore.SingletonInstanceID {
			entries = append(entries, reconcileEntry{
				module:     m,
				instanceID: scopeInstanceID,
				enabled:    false,
			})
		}
	}

	snapshot := r.snapshot()

	var toCreate []Client
	var toRecreate, toDestroy []int

	for _, e := range entries {
		clientID := ClientID(e.module.ID, e.instanceID)
		existing, known := snapshot[clientID]

		switch {
		case e.enabled && (!known || !existing.ReadyToUse()):
			handle := existing
			if !known {
				h, ferr := r.factory(e.module.ID, e.instanceID, clientID)
				if ferr != nil {
					r.log.Error("constructing client handle",
						"module", e.module.ID,
						"instance", e.instanceID,
						"error", ferr,
					)
					continue
				}
				handle = h
			}
			// Instance-level enablement is authoritative once the handle
			// exists; re-check and reclassify if it flipped meanwhile.
			if r.instanceEnabled(ctx, e.module, e.instanceID) {
				toCreate = append(toCreate, handle)
			} else if known {
				toDestroy = append(toDestroy, clientID)
			}

		case e.enabled:
			// Known and ready. Force a settings reload, which may itself
			// flip the instance to disabled.
			if rerr := existing.ReloadSettings(ctx); rerr != nil {
				r.log.Warn("reloading client settings",
					"client_id", clientID,
					"error", rerr,
				)
			}
			if r.instanceEnabled(ctx, e.module, e.instanceID) {
				toRecreate = append(toRecreate, clientID)
			} else {
				toDestroy = append(toDestroy, clientID)
			}

		case known:
			toDestroy = append(toDestroy, clientID)
		}
	}

	if len(toCreate) == 0 && len(toRecreate) == 0 && len(toDestroy) == 0 {
		// No visible state change; dependent subsystems keep running.
		return nil
	}

	r.log.Info("reconciling client fleet",
		"create", len(toCreate),
		"recreate", len(toRecreate),
		"destroy", len(toDestroy),
	)
	start := time.Now()

	// No fan-out call may land on a handle mid-transition.
	r.data.Pause()
	defer r.data.Resume()

	var created []Client
	for i, handle := range toCreate {
		createCtx, cancel := context.WithTimeout(ctx, r.createTimeout)
		status := handle.Create(createCtx)
		cancel()

		r.log.Info("client creation",
			"module", handle.ModuleID(),
			"instance", handle.InstanceID(),
			"client_id", handle.ID(),
			"status", status.String(),
			"progress", fmt.Sprintf("%d/%d", i+1, len(toCreate)),
		)

		if status == StatusPermanentFailure {
			// One bad module must not block the others.
			if derr := r.store.Disable(ctx, handle.ModuleID(), modulestore.DisabledBySystem); derr != nil {
				r.log.Error("disabling failed module", "module", handle.ModuleID(), "error", derr)
			}
			if nerr := r.notifier.Notify(ctx, true, handle.Name(),
				"Connector failed to start and has been disabled"); nerr != nil {
				r.log.Warn("sending failure notification", "module", handle.ModuleID(), "error", nerr)
			}
			continue
		}
		created = append(created, handle)
	}

	for _, clientID := range toRecreate {
		r.recreateClient(ctx, clientID)
	}

	destroyed := 0
	for _, clientID := range toDestroy {
		if r.destroyClient(ctx, clientID) {
			destroyed++
		}
	}

	r.mu.Lock()
	for _, handle := range created {
		// A re-entrant pass may have inserted this identity already; the
		// existing handle wins.
		if _, exists := r.clients[handle.ID()]; exists {
			continue
		}
		r.clients[handle.ID()] = handle
	}
	r.mu.Unlock()

	if r.telemetry != nil {
		r.telemetry.RecordReconciliation(len(created), len(toRecreate), destroyed, time.Since(start))
	}
	return nil
}

// instanceEnabled computes the effective enabled state of one instance:
// module enabled AND (default singleton OR instance-level enabled setting).
func (r *Registry) instanceEnabled(ctx context.Context, m modulestore.Module, instanceID modulestore.InstanceID) bool {
	if m.Disabled {
		return false
	}
	if instanceID == modulestore.SingletonInstanceID {
		return true
	}

	enabled, err := r.store.BoolSetting(ctx, m.ID, instanceID, modulestore.SettingEnabled)
	if err != nil {
		r.log.Warn("reading instance enabled setting",
			"module", m.ID,
			"instance", instanceID,
			"error", err,
		)
		return false
	}
	return enabled
}

// restart recreates one client in place, or falls back to a scoped
// reconciliation when the client has not been created yet.
func (r *Registry) restart(ctx context.Context, moduleID string, instanceID modulestore.InstanceID) {
	clientID := ClientID(moduleID, instanceID)
	if r.recreateClient(ctx, clientID) {
		return
	}
	if err := r.reconcile(ctx, moduleID, instanceID, true); err != nil {
		r.log.Error("restart reconciliation failed",
			"module", moduleID,
			"instance", instanceID,
			"error", err,
		)
	}
}

// recreateClient tears down and rebuilds one client's connection in place.
// Identity and map slot are unchanged. Returns whether a handle was found.
func (r *Registry) recreateClient(ctx context.Context, clientID int) bool {
	// A client cannot be torn down safely mid-use.
	r.data.StopActiveSession(clientID)

	r.mu.RLock()
	handle, found := r.clients[clientID]
	r.mu.RUnlock()
	if !found {
		return false
	}

	if err := handle.Recreate(ctx); err != nil {
		r.log.Error("recreating client", "client_id", clientID, "error", err)
	}
	return true
}

// destroyClient removes one client from the map and shuts it down.
// Returns whether a handle was found.
func (r *Registry) destroyClient(ctx context.Context, clientID int) bool {
	r.data.StopActiveSession(clientID)

	r.mu.Lock()
	handle, found := r.clients[clientID]
	if found {
		delete(r.clients, clientID)
	}
	r.mu.Unlock()
	if !found {
		return false
	}

	if err := handle.Destroy(ctx); err != nil {
		r.log.Error("destroying client", "client_id", clientID, "error", err)
	}
	return true
}

// StopAll suspends every ready client without destroying it, pausing the
// data subsystem first so no refresh lands on a suspended client. Used when
// the host sleeps; ContinueAll reverses it on wake.
func (r *Registry) StopAll(ctx context.Context) {
	r.data.Pause()

	for _, c := range r.snapshot() {
		if !c.ReadyToUse() {
			continue
		}
		if err := c.Stop(ctx); err != nil {
			r.log.Warn("stopping client", "client_id", c.ID(), "error", err)
		}
	}
	r.log.Info("all clients stopped")
}

// ContinueAll resumes every client suspended by StopAll and lifts the
// matching data subsystem pause.
func (r *Registry) ContinueAll(ctx context.Context) {
	for _, c := range r.snapshot() {
		if err := c.Continue(ctx); err != nil {
			r.log.Warn("continuing client", "client_id", c.ID(), "error", err)
		}
	}

	r.data.Resume()
	r.log.Info("all clients continued")
}

// destroyAll shuts down every remaining handle on registry stop.
func (r *Registry) destroyAll(ctx context.Context) {
	r.mu.Lock()
	remaining := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		remaining = append(remaining, c)
	}
	r.clients = make(map[int]Client)
	r.mu.Unlock()

	for _, c := range remaining {
		r.data.StopActiveSession(c.ID())
		if err := c.Destroy(ctx); err != nil {
			r.log.Error("destroying client on shutdown", "client_id", c.ID(), "error", err)
		}
	}
}

// snapshot copies the identity map under the read lock.
func (r *Registry) snapshot() map[int]Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int]Client, len(r.clients))
	for id, c := range r.clients {
		out[id] = c
	}
	return out
}

// GetClient returns the handle for an identity. Identities <= 0 are invalid.
func (r *Registry) GetClient(clientID int) (Client, error) {
	if clientID <= 0 {
		return nil, fmt.Errorf("%w: invalid id %d", ErrClientNotFound, clientID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrClientNotFound, clientID)
	}
	return c, nil
}

// GetCreatedClient returns the handle for an identity only if it is ready
// to use.
func (r *Registry) GetCreatedClient(clientID int) (Client, error) {
	c, err := r.GetClient(clientID)
	if err != nil {
		return nil, err
	}
	if !c.ReadyToUse() {
		return nil, fmt.Errorf("%w: id %d not ready", ErrClientNotFound, clientID)
	}
	return c, nil
}

// GetClientID resolves an identity from (module, instance) by scanning the
// registered clients. Returns InvalidClientID when absent. A positive result
// means "known"; check readiness separately for "created and usable".
func (r *Registry) GetClientID(moduleID string, instanceID modulestore.InstanceID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, c := range r.clients {
		if c.ModuleID() == moduleID && c.InstanceID() == instanceID {
			return id
		}
	}
	return InvalidClientID
}

// CreatedClientCount returns the number of ready-to-use clients.
func (r *Registry) CreatedClientCount() int {
	count := 0
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.clients {
		if c.ReadyToUse() {
			count++
		}
	}
	return count
}

// HasCreatedClients reports whether any client is ready to use.
func (r *Registry) HasCreatedClients() bool {
	return r.AnyClient(func(c Client) bool { return c.ReadyToUse() })
}

// FirstCreatedClientID returns the lowest identity among ready clients, or
// InvalidClientID if none are ready. Gives callers a deterministic default
// client.
func (r *Registry) FirstCreatedClientID() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	first := InvalidClientID
	for id, c := range r.clients {
		if !c.ReadyToUse() {
			continue
		}
		if first == InvalidClientID || id < first {
			first = id
		}
	}
	return first
}

// HasIgnoredClients reports whether any client is flagged unreachable by
// its backend.
func (r *Registry) HasIgnoredClients() bool {
	return r.AnyClient(func(c Client) bool { return c.Ignored() })
}

// AnyClient reports whether any registered client matches the predicate.
// The predicate runs under the registry lock and must not block.
func (r *Registry) AnyClient(match func(Client) bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.clients {
		if match(c) {
			return true
		}
	}
	return false
}

// ClientInfos enumerates descriptive records for every known module
// instance, created or not. Used for presentation.
func (r *Registry) ClientInfos(ctx context.Context) ([]ClientInfo, error) {
	modules, err := r.store.Modules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}

	var infos []ClientInfo
	for _, m := range modules {
		for _, instanceID := range m.InstanceIDs {
			info := ClientInfo{
				ClientID:   ClientID(m.ID, instanceID),
				ModuleID:   m.ID,
				InstanceID: instanceID,
				Enabled:    r.instanceEnabled(ctx, m, instanceID),
				Name:       m.Name,
				Icon:       m.Icon,
				Thumb:      m.Thumb,
			}
			if c, err := r.GetCreatedClient(info.ClientID); err == nil {
				caps := c.Capabilities()
				info.Capabilities = &caps
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
