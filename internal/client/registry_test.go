package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashgrove-media/mediafleet/internal/modulestore"
)

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

// recorder captures the order of side-effecting calls across test doubles.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

// indexOf returns the position of the first event with the given prefix,
// or -1.
func (r *recorder) indexOf(prefix string) int {
	for i, e := range r.all() {
		if strings.HasPrefix(e, prefix) {
			return i
		}
	}
	return -1
}

// mockStore is an in-memory module store.
type mockStore struct {
	mu       sync.Mutex
	modules  []modulestore.Module
	settings map[string]bool
	disabled map[string]modulestore.DisabledReason
}

func newMockStore(modules ...modulestore.Module) *mockStore {
	return &mockStore{
		modules:  modules,
		settings: make(map[string]bool),
		disabled: make(map[string]modulestore.DisabledReason),
	}
}

func settingKey(moduleID string, instanceID modulestore.InstanceID, key string) string {
	return fmt.Sprintf("%s/%d/%s", moduleID, instanceID, key)
}

func (s *mockStore) Modules(_ context.Context, includeDisabled bool) ([]modulestore.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []modulestore.Module
	for _, m := range s.modules {
		m.Disabled = s.disabled[m.ID] != modulestore.NotDisabled
		if m.Disabled && !includeDisabled {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *mockStore) IsDisabled(_ context.Context, moduleID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled[moduleID] != modulestore.NotDisabled, nil
}

func (s *mockStore) Disable(_ context.Context, moduleID string, reason modulestore.DisabledReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[moduleID] = reason
	return nil
}

func (s *mockStore) BoolSetting(_ context.Context, moduleID string, instanceID modulestore.InstanceID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[settingKey(moduleID, instanceID, key)], nil
}

func (s *mockStore) SetBoolSetting(_ context.Context, moduleID string, instanceID modulestore.InstanceID, key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settingKey(moduleID, instanceID, key)] = value
	return nil
}

func (s *mockStore) disabledReason(moduleID string) modulestore.DisabledReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled[moduleID]
}

// mockData records pause/resume/session-stop calls.
type mockData struct {
	rec *recorder

	mu      sync.Mutex
	paused  int
	resumed int
}

func (d *mockData) Pause() {
	d.mu.Lock()
	d.paused++
	d.mu.Unlock()
	d.rec.add("pause")
}

func (d *mockData) Resume() {
	d.mu.Lock()
	d.resumed++
	d.mu.Unlock()
	d.rec.add("resume")
}

func (d *mockData) StopActiveSession(clientID int) {
	d.rec.add(fmt.Sprintf("stop_session:%d", clientID))
}

func (d *mockData) pauseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// mockNotifier counts notifications.
type mockNotifier struct {
	mu       sync.Mutex
	errors   int
	infos    int
	messages []string
}

func (n *mockNotifier) Notify(_ context.Context, isError bool, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if isError {
		n.errors++
	} else {
		n.infos++
	}
	n.messages = append(n.messages, title+": "+message)
	return nil
}

func (n *mockNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.errors
}

func (n *mockNotifier) notifyCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.errors + n.infos
}

// mockClient is a scriptable client handle.
type mockClient struct {
	id         int
	moduleID   string
	instanceID modulestore.InstanceID
	rec        *recorder

	mu        sync.Mutex
	ready     bool
	stopped   bool
	ignored   bool
	connState ConnState
	caps      Capabilities

	createStatus Status // zero value is StatusOK
	opStatus     Status
	opCalls      int
	channels     []Channel
}

func (c *mockClient) ID() int                            { return c.id }
func (c *mockClient) ModuleID() string                   { return c.moduleID }
func (c *mockClient) InstanceID() modulestore.InstanceID { return c.instanceID }
func (c *mockClient) Name() string                       { return c.moduleID }

func (c *mockClient) Create(context.Context) Status {
	c.rec.add(fmt.Sprintf("create:%s/%d", c.moduleID, c.instanceID))
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createStatus == StatusOK {
		c.ready = true
	}
	return c.createStatus
}

func (c *mockClient) Destroy(context.Context) error {
	c.rec.add(fmt.Sprintf("destroy:%s/%d", c.moduleID, c.instanceID))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
	return nil
}

func (c *mockClient) Recreate(context.Context) error {
	c.rec.add(fmt.Sprintf("recreate:%s/%d", c.moduleID, c.instanceID))
	return nil
}

func (c *mockClient) Stop(context.Context) error {
	c.rec.add(fmt.Sprintf("stop:%s/%d", c.moduleID, c.instanceID))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}

func (c *mockClient) Continue(context.Context) error {
	c.rec.add(fmt.Sprintf("continue:%s/%d", c.moduleID, c.instanceID))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = false
	return nil
}

func (c *mockClient) ReloadSettings(context.Context) error {
	c.rec.add(fmt.Sprintf("reload:%s/%d", c.moduleID, c.instanceID))
	return nil
}

func (c *mockClient) ReadyToUse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready && !c.stopped
}

func (c *mockClient) Ignored() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ignored
}

func (c *mockClient) Capabilities() Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

func (c *mockClient) ConnectionState() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connState
}

func (c *mockClient) SetConnectionState(state ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connState = state
}

func (c *mockClient) invoke() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opCalls++
	return c.opStatus
}

func (c *mockClient) invocations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opCalls
}

func (c *mockClient) Channels(context.Context, bool) ([]Channel, Status) {
	st := c.invoke()
	if st != StatusOK {
		return nil, st
	}
	return c.channels, st
}

func (c *mockClient) ChannelGroups(context.Context, bool) ([]ChannelGroup, Status) {
	return nil, c.invoke()
}

func (c *mockClient) Timers(context.Context) ([]Timer, Status) { return nil, c.invoke() }

func (c *mockClient) Recordings(context.Context, bool) ([]Recording, Status) {
	return nil, c.invoke()
}

func (c *mockClient) DeleteAllRecordingsFromTrash(context.Context) Status { return c.invoke() }
func (c *mockClient) SetEPGMaxPastDays(context.Context, int) Status       { return c.invoke() }
func (c *mockClient) SetEPGMaxFutureDays(context.Context, int) Status     { return c.invoke() }

func (c *mockClient) Providers(context.Context) ([]Provider, Status) { return nil, c.invoke() }

func (c *mockClient) BackendProperties(context.Context) (BackendProperties, Status) {
	return BackendProperties{ClientID: c.id, Name: c.moduleID}, c.invoke()
}

func (c *mockClient) OnSystemSleep(context.Context) Status            { return c.invoke() }
func (c *mockClient) OnSystemWake(context.Context) Status             { return c.invoke() }
func (c *mockClient) OnPowerSavingActivated(context.Context) Status   { return c.invoke() }
func (c *mockClient) OnPowerSavingDeactivated(context.Context) Status { return c.invoke() }

// testHarness bundles a registry with its doubles.
type testHarness struct {
	registry *Registry
	store    *mockStore
	data     *mockData
	notifier *mockNotifier
	rec      *recorder

	mu      sync.Mutex
	clients map[string]*mockClient // moduleID/instanceID -> handle
	scripts map[string]Status      // createStatus per moduleID
}

func newHarness(t *testing.T, modules ...modulestore.Module) *testHarness {
	t.Helper()

	rec := &recorder{}
	h := &testHarness{
		store:    newMockStore(modules...),
		data:     &mockData{rec: rec},
		notifier: &mockNotifier{},
		rec:      rec,
		clients:  make(map[string]*mockClient),
		scripts:  make(map[string]Status),
	}

	factory := func(moduleID string, instanceID modulestore.InstanceID, clientID int) (Client, error) {
		c := &mockClient{
			id:           clientID,
			moduleID:     moduleID,
			instanceID:   instanceID,
			rec:          rec,
			createStatus: h.scripts[moduleID],
			caps:         Capabilities{TV: true, EPG: true, Recordings: true, Timers: true, Providers: true},
		}
		h.mu.Lock()
		h.clients[fmt.Sprintf("%s/%d", moduleID, instanceID)] = c
		h.mu.Unlock()
		return c, nil
	}

	registry, err := NewRegistry(RegistryOptions{
		Store:    h.store,
		Factory:  factory,
		Data:     h.data,
		Notifier: h.notifier,
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	h.registry = registry
	return h
}

func (h *testHarness) client(moduleID string, instanceID modulestore.InstanceID) *mockClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients[fmt.Sprintf("%s/%d", moduleID, instanceID)]
}

func singleton(id string) modulestore.Module {
	return modulestore.Module{
		ID:          id,
		Name:        id,
		InstanceIDs: []modulestore.InstanceID{modulestore.SingletonInstanceID},
	}
}

func TestNewRegistryRequiresDependencies(t *testing.T) {
	_, err := NewRegistry(RegistryOptions{})
	if !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("NewRegistry() error = %v, want ErrInvalidOptions", err)
	}
}

func TestReconcileEmptyStoreIsNoOp(t *testing.T) {
	h := newHarness(t)

	if err := h.registry.UpdateClients(context.Background()); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	if h.data.pauseCount() != 0 {
		t.Errorf("pause count = %d, want 0 for empty store", h.data.pauseCount())
	}
	if got := h.registry.CreatedClientCount(); got != 0 {
		t.Errorf("CreatedClientCount() = %d, want 0", got)
	}
}

func TestReconcileScopedToUnknownModuleIsNoOp(t *testing.T) {
	h := newHarness(t, singleton("pvr.hts"))

	if err := h.registry.reconcile(context.Background(), "pvr.missing", 0, true); err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}

	if h.data.pauseCount() != 0 {
		t.Errorf("pause count = %d, want 0 for unknown scope", h.data.pauseCount())
	}
	if got := h.registry.CreatedClientCount(); got != 0 {
		t.Errorf("CreatedClientCount() = %d, want 0", got)
	}
}

func TestReconcileCreatesEnabledClients(t *testing.T) {
	h := newHarness(t, singleton("pvr.hts"), singleton("pvr.iptvsimple"))
	ctx := context.Background()

	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	if got := h.registry.CreatedClientCount(); got != 2 {
		t.Fatalf("CreatedClientCount() = %d, want 2", got)
	}

	id := ClientID("pvr.hts", modulestore.SingletonInstanceID)
	c, err := h.registry.GetCreatedClient(id)
	if err != nil {
		t.Fatalf("GetCreatedClient(%d) error = %v", id, err)
	}
	if c.ModuleID() != "pvr.hts" {
		t.Errorf("client module = %q, want pvr.hts", c.ModuleID())
	}

	// Map reads resolve identities back.
	if got := h.registry.GetClientID("pvr.hts", modulestore.SingletonInstanceID); got != id {
		t.Errorf("GetClientID() = %d, want %d", got, id)
	}
}

func TestReconcileSkipsDisabledModule(t *testing.T) {
	h := newHarness(t, singleton("pvr.hts"), singleton("pvr.iptvsimple"))
	ctx := context.Background()

	if err := h.store.Disable(ctx, "pvr.iptvsimple", modulestore.DisabledByUser); err != nil {
		t.Fatal(err)
	}

	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	if _, err := h.registry.GetClient(ClientID("pvr.iptvsimple", 0)); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("GetClient(disabled module) error = %v, want ErrClientNotFound", err)
	}
	if got := h.registry.CreatedClientCount(); got != 1 {
		t.Errorf("CreatedClientCount() = %d, want 1", got)
	}
}

func TestReconcileDestroysDisabledClient(t *testing.T) {
	h := newHarness(t, singleton("pvr.hts"))
	ctx := context.Background()

	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}
	if err := h.store.Disable(ctx, "pvr.hts", modulestore.DisabledByUser); err != nil {
		t.Fatal(err)
	}
	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	if _, err := h.registry.GetClient(ClientID("pvr.hts", 0)); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("GetClient() error = %v, want ErrClientNotFound after disable", err)
	}

	c := h.client("pvr.hts", 0)
	if c.ReadyToUse() {
		t.Error("client still ready after destroy")
	}
	if h.rec.indexOf("destroy:pvr.hts/0") == -1 {
		t.Error("Destroy was not called on the disabled client")
	}
}

func TestReconcileInstanceEnableSetting(t *testing.T) {
	h := newHarness(t, modulestore.Module{
		ID:          "pvr.hts",
		Name:        "pvr.hts",
		InstanceIDs: []modulestore.InstanceID{1, 2},
	})
	ctx := context.Background()

	// Instance 1 enabled, instance 2 not.
	if err := h.store.SetBoolSetting(ctx, "pvr.hts", 1, modulestore.SettingEnabled, true); err != nil {
		t.Fatal(err)
	}

	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	if _, err := h.registry.GetCreatedClient(ClientID("pvr.hts", 1)); err != nil {
		t.Errorf("enabled instance not created: %v", err)
	}
	if _, err := h.registry.GetClient(ClientID("pvr.hts", 2)); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("disabled instance present: err = %v, want ErrClientNotFound", err)
	}
}

func TestReconcileOrderCreateRecreateDestroy(t *testing.T) {
	h := newHarness(t, modulestore.Module{
		ID:          "pvr.hts",
		Name:        "pvr.hts",
		InstanceIDs: []modulestore.InstanceID{1, 2, 3},
	})
	ctx := context.Background()

	for _, instanceID := range []modulestore.InstanceID{1, 2} {
		if err := h.store.SetBoolSetting(ctx, "pvr.hts", instanceID, modulestore.SettingEnabled, true); err != nil {
			t.Fatal(err)
		}
	}

	// First pass creates instances 1 and 2.
	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	// Second pass: instance 3 newly enabled (create), instance 1 still
	// enabled and ready (recreate), instance 2 now disabled (destroy).
	if err := h.store.SetBoolSetting(ctx, "pvr.hts", 3, modulestore.SettingEnabled, true); err != nil {
		t.Fatal(err)
	}
	if err := h.store.SetBoolSetting(ctx, "pvr.hts", 2, modulestore.SettingEnabled, false); err != nil {
		t.Fatal(err)
	}

	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	createIdx := h.rec.indexOf("create:pvr.hts/3")
	recreateIdx := h.rec.indexOf("recreate:pvr.hts/1")
	destroyIdx := h.rec.indexOf("destroy:pvr.hts/2")

	if createIdx == -1 || recreateIdx == -1 || destroyIdx == -1 {
		t.Fatalf("missing lifecycle events: %v", h.rec.all())
	}
	if !(createIdx < recreateIdx && recreateIdx < destroyIdx) {
		t.Errorf("lifecycle order create=%d recreate=%d destroy=%d, want create < recreate < destroy; events: %v",
			createIdx, recreateIdx, destroyIdx, h.rec.all())
	}
}

func TestReconcilePausesAroundLifecycle(t *testing.T) {
	h := newHarness(t, singleton("pvr.hts"))
	ctx := context.Background()

	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	pauseIdx := h.rec.indexOf("pause")
	createIdx := h.rec.indexOf("create:pvr.hts/0")
	resumeIdx := h.rec.indexOf("resume")

	if pauseIdx == -1 || createIdx == -1 || resumeIdx == -1 {
		t.Fatalf("missing events: %v", h.rec.all())
	}
	if !(pauseIdx < createIdx && createIdx < resumeIdx) {
		t.Errorf("event order pause=%d create=%d resume=%d, want pause < create < resume",
			pauseIdx, createIdx, resumeIdx)
	}
}

func TestPermanentCreateFailureDisablesModule(t *testing.T) {
	h := newHarness(t, singleton("pvr.broken"), singleton("pvr.hts"))
	h.scripts["pvr.broken"] = StatusPermanentFailure
	ctx := context.Background()

	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	if got := h.store.disabledReason("pvr.broken"); got != modulestore.DisabledBySystem {
		t.Errorf("disabled reason = %v, want DisabledBySystem", got)
	}
	if got := h.notifier.errorCount(); got != 1 {
		t.Errorf("error notifications = %d, want exactly 1", got)
	}

	// The failed handle must not be inserted.
	if _, err := h.registry.GetClient(ClientID("pvr.broken", 0)); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("GetClient(broken) error = %v, want ErrClientNotFound", err)
	}

	// One bad module must not block the others.
	if _, err := h.registry.GetCreatedClient(ClientID("pvr.hts", 0)); err != nil {
		t.Errorf("healthy module was not created: %v", err)
	}
}

func TestRecoverableCreateFailureKeepsHandle(t *testing.T) {
	h := newHarness(t, singleton("pvr.flaky"))
	h.scripts["pvr.flaky"] = StatusRecoverable
	ctx := context.Background()

	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	// The handle stays known-but-not-ready so the next pass retries.
	id := ClientID("pvr.flaky", 0)
	if _, err := h.registry.GetClient(id); err != nil {
		t.Fatalf("GetClient() error = %v, want known handle", err)
	}
	if _, err := h.registry.GetCreatedClient(id); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("GetCreatedClient() error = %v, want ErrClientNotFound", err)
	}
	if h.store.disabledReason("pvr.flaky") != modulestore.NotDisabled {
		t.Error("recoverable failure must not disable the module")
	}

	// Retry succeeds and reuses the same handle.
	handle := h.client("pvr.flaky", 0)
	handle.mu.Lock()
	handle.createStatus = StatusOK
	handle.mu.Unlock()

	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() retry error = %v", err)
	}
	if _, err := h.registry.GetCreatedClient(id); err != nil {
		t.Errorf("GetCreatedClient() after retry error = %v", err)
	}
}

func TestStopDestroysAllClients(t *testing.T) {
	h := newHarness(t, singleton("pvr.hts"), singleton("pvr.iptvsimple"))
	ctx := context.Background()

	if err := h.registry.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := h.registry.CreatedClientCount(); got != 2 {
		t.Fatalf("CreatedClientCount() = %d, want 2", got)
	}

	h.registry.Stop(ctx)

	if got := h.registry.CreatedClientCount(); got != 0 {
		t.Errorf("CreatedClientCount() after Stop = %d, want 0", got)
	}
	if h.rec.indexOf("destroy:pvr.hts/0") == -1 || h.rec.indexOf("destroy:pvr.iptvsimple/0") == -1 {
		t.Errorf("not all clients destroyed on Stop: %v", h.rec.all())
	}

	// Triggers after Stop are rejected.
	if err := h.registry.RequestRestart("pvr.hts", 0); !errors.Is(err, ErrRegistryStopped) {
		t.Errorf("RequestRestart() after Stop error = %v, want ErrRegistryStopped", err)
	}
}

func TestScopedReconcileRemovedInstanceDestroysHandle(t *testing.T) {
	h := newHarness(t, modulestore.Module{
		ID:          "pvr.hts",
		Name:        "pvr.hts",
		InstanceIDs: []modulestore.InstanceID{1, 2},
	})
	ctx := context.Background()

	for _, instanceID := range []modulestore.InstanceID{1, 2} {
		if err := h.store.SetBoolSetting(ctx, "pvr.hts", instanceID, modulestore.SettingEnabled, true); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	// Instance 2 disappears from the known-instances list. A scoped
	// reconcile must still destroy its handle.
	h.store.mu.Lock()
	h.store.modules[0].InstanceIDs = []modulestore.InstanceID{1}
	h.store.mu.Unlock()

	if err := h.registry.reconcile(ctx, "pvr.hts", 2, true); err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}

	if _, err := h.registry.GetClient(ClientID("pvr.hts", 2)); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("removed instance still registered: err = %v", err)
	}
	if _, err := h.registry.GetCreatedClient(ClientID("pvr.hts", 1)); err != nil {
		t.Errorf("surviving instance lost: %v", err)
	}
}

func TestClientInfosEnumeratesUncreated(t *testing.T) {
	h := newHarness(t, modulestore.Module{
		ID:          "pvr.hts",
		Name:        "Tvheadend",
		Icon:        "icon.png",
		InstanceIDs: []modulestore.InstanceID{1, 2},
	})
	ctx := context.Background()

	// No reconciliation: infos are computed without requiring creation.
	infos, err := h.registry.ClientInfos(ctx)
	if err != nil {
		t.Fatalf("ClientInfos() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("ClientInfos() returned %d records, want 2", len(infos))
	}
	if infos[0].ClientID != ClientID("pvr.hts", 1) || infos[0].Name != "Tvheadend" {
		t.Errorf("infos[0] = %+v", infos[0])
	}
	if infos[0].Enabled {
		t.Error("instance without enabled setting reported as enabled")
	}
	if infos[0].Capabilities != nil {
		t.Error("uncreated client must not report capabilities")
	}
}

func TestClientInfosCarryCapabilitiesForCreatedClients(t *testing.T) {
	h := newHarness(t, singleton("pvr.hts"))
	ctx := context.Background()

	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	infos, err := h.registry.ClientInfos(ctx)
	if err != nil {
		t.Fatalf("ClientInfos() error = %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("ClientInfos() returned %d records, want 1", len(infos))
	}

	caps := infos[0].Capabilities
	if caps == nil {
		t.Fatal("created client reported no capabilities")
	}
	if !caps.EPG || !caps.Recordings || caps.RecordingsDelete {
		t.Errorf("capabilities = %+v, want the created client's feature set", *caps)
	}
}

func TestStopAllSuspendsFleet(t *testing.T) {
	h := newHarness(t, singleton("pvr.hts"), singleton("pvr.iptvsimple"))
	ctx := context.Background()

	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	h.registry.StopAll(ctx)

	// Suspended clients leave the callable set but keep their registry slot.
	if got := h.registry.CreatedClientCount(); got != 0 {
		t.Errorf("CreatedClientCount() after StopAll = %d, want 0", got)
	}
	if _, err := h.registry.GetClient(ClientID("pvr.hts", 0)); err != nil {
		t.Errorf("stopped client lost its registry slot: %v", err)
	}
	if h.rec.indexOf("destroy:") != -1 {
		t.Errorf("StopAll must not destroy handles: %v", h.rec.all())
	}

	// The data subsystem pauses alongside (one pause from the reconcile,
	// one held by StopAll until ContinueAll).
	if got := h.data.pauseCount(); got != 2 {
		t.Errorf("pause count = %d, want 2", got)
	}

	h.registry.ContinueAll(ctx)

	if got := h.registry.CreatedClientCount(); got != 2 {
		t.Errorf("CreatedClientCount() after ContinueAll = %d, want 2", got)
	}
	if h.rec.indexOf("continue:pvr.hts/0") == -1 || h.rec.indexOf("continue:pvr.iptvsimple/0") == -1 {
		t.Errorf("not all clients continued: %v", h.rec.all())
	}
}

func TestStopAllSkipsNotReadyClients(t *testing.T) {
	h := newHarness(t, singleton("pvr.hts"), singleton("pvr.flaky"))
	h.scripts["pvr.flaky"] = StatusRecoverable
	ctx := context.Background()

	if err := h.registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	h.registry.StopAll(ctx)

	if h.rec.indexOf("stop:pvr.hts/0") == -1 {
		t.Errorf("ready client was not stopped: %v", h.rec.all())
	}
	if h.rec.indexOf("stop:pvr.flaky/0") != -1 {
		t.Errorf("not-ready client must not receive Stop: %v", h.rec.all())
	}
}

// gateData is a DataService whose Pause blocks until the gate closes,
// mirroring the wired guide manager draining an in-flight refresh before
// reconciliation may touch any handle.
type gateData struct {
	rec *recorder

	mu   sync.Mutex
	gate chan struct{}
}

func (d *gateData) setGate(gate chan struct{}) {
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
}

func (d *gateData) Pause() {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}
	d.rec.add("pause")
}

func (d *gateData) Resume()               { d.rec.add("resume") }
func (d *gateData) StopActiveSession(int) {}

func TestFanoutDrainsBeforeReconcileDestroys(t *testing.T) {
	rec := &recorder{}
	data := &gateData{rec: rec}
	store := newMockStore(singleton("pvr.hts"))

	factory := func(moduleID string, instanceID modulestore.InstanceID, clientID int) (Client, error) {
		return &mockClient{id: clientID, moduleID: moduleID, instanceID: instanceID, rec: rec}, nil
	}

	registry, err := NewRegistry(RegistryOptions{
		Store:    store,
		Factory:  factory,
		Data:     data,
		Notifier: &mockNotifier{},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	ctx := context.Background()
	if err := registry.UpdateClients(ctx); err != nil {
		t.Fatalf("UpdateClients() error = %v", err)
	}

	opEntered := make(chan struct{})
	opProceed := make(chan struct{})
	fanoutDone := make(chan struct{})
	data.setGate(fanoutDone)

	var sawLiveHandle bool
	go func() {
		registry.ForCreatedClients(ctx, func(c Client) Status {
			close(opEntered)
			<-opProceed
			sawLiveHandle = c.ReadyToUse()
			rec.add("fanout_op_done")
			return StatusOK
		})
		close(fanoutDone)
	}()

	select {
	case <-opEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("fan-out never started")
	}

	// Disable the module mid-fan-out. The reconcile pass must wait for the
	// fan-out to drain before it destroys the handle.
	if err := store.Disable(ctx, "pvr.hts", modulestore.DisabledByUser); err != nil {
		t.Fatal(err)
	}

	reconcileDone := make(chan struct{})
	go func() {
		if err := registry.UpdateClients(ctx); err != nil {
			t.Errorf("UpdateClients() error = %v", err)
		}
		close(reconcileDone)
	}()

	select {
	case <-reconcileDone:
		t.Fatal("reconciliation completed while a fan-out was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(opProceed)

	select {
	case <-reconcileDone:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciliation never completed after the fan-out drained")
	}

	if !sawLiveHandle {
		t.Error("fan-out observed a handle that was no longer ready")
	}

	opIdx := rec.indexOf("fanout_op_done")
	destroyIdx := rec.indexOf("destroy:pvr.hts/0")
	if destroyIdx == -1 {
		t.Fatalf("handle never destroyed: %v", rec.all())
	}
	if opIdx == -1 || opIdx > destroyIdx {
		t.Errorf("destroy (%d) ran before the in-flight fan-out finished (%d): %v",
			destroyIdx, opIdx, rec.all())
	}
}

func TestRequestRestartRecreatesClient(t *testing.T) {
	h := newHarness(t, singleton("pvr.hts"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.registry.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.registry.Stop(ctx)

	if err := h.registry.RequestRestart("pvr.hts", modulestore.SingletonInstanceID); err != nil {
		t.Fatalf("RequestRestart() error = %v", err)
	}

	// The restart is asynchronous; drive the assertion by waiting for the
	// recorder to observe the recreate.
	waitFor(t, func() bool {
		return h.rec.indexOf("recreate:pvr.hts/0") != -1
	})

	// The session using the client is stopped before recreation.
	stopIdx := h.rec.indexOf(fmt.Sprintf("stop_session:%d", ClientID("pvr.hts", 0)))
	recreateIdx := h.rec.indexOf("recreate:pvr.hts/0")
	if stopIdx == -1 || stopIdx > recreateIdx {
		t.Errorf("session stop (%d) must precede recreate (%d): %v", stopIdx, recreateIdx, h.rec.all())
	}
}
