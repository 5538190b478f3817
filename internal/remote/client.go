package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashgrove-media/mediafleet/internal/client"
	"github.com/ashgrove-media/mediafleet/internal/infrastructure/mqtt"
	"github.com/ashgrove-media/mediafleet/internal/modulestore"
)

const defaultRequestTimeout = 15 * time.Second

// Logger is the logging surface the connector needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateHandler is invoked when a connector reports a new connection state.
// Called from an MQTT delivery goroutine; must not block.
type StateHandler func(c client.Client, state client.ConnState, message string)

// Options configures a Connector.
type Options struct {
	ModuleID   string
	InstanceID modulestore.InstanceID
	ClientID   int
	Name       string

	Bus *mqtt.Client
	QoS byte

	// RequestTimeout bounds one request/response round trip. Defaults to 15s.
	RequestTimeout time.Duration

	// OnStateChange receives connection state reports from the connector.
	OnStateChange StateHandler

	Logger Logger
}

// Connector implements client.Client over MQTT request/response topics.
//
// The orchestrator publishes a request envelope with a correlation ID to the
// connector's request topic; the connector process answers on the response
// topic suffixed with that ID. Connection state arrives on a retained state
// topic.
type Connector struct {
	id         int
	moduleID   string
	instanceID modulestore.InstanceID
	name       string

	bus            *mqtt.Client
	qos            byte
	requestTimeout time.Duration
	onStateChange  StateHandler
	log            Logger

	topics mqtt.Topics

	mu            sync.Mutex
	ready         bool
	stopped       bool
	subscribed    bool
	everConnected bool
	connState     client.ConnState
	caps          client.Capabilities

	pendMu  sync.Mutex
	pending map[string]chan response
}

// New creates a connector handle. No network traffic happens until Create.
func New(opts Options) (*Connector, error) {
	if opts.ModuleID == "" || opts.Bus == nil {
		return nil, fmt.Errorf("%w: module ID and bus are required", ErrInvalidOptions)
	}

	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	name := opts.Name
	if name == "" {
		name = opts.ModuleID
	}

	return &Connector{
		id:             opts.ClientID,
		moduleID:       opts.ModuleID,
		instanceID:     opts.InstanceID,
		name:           name,
		bus:            opts.Bus,
		qos:            opts.QoS,
		requestTimeout: requestTimeout,
		onStateChange:  opts.OnStateChange,
		log:            logger,
		pending:        make(map[string]chan response),
	}, nil
}

func (c *Connector) ID() int                            { return c.id }
func (c *Connector) ModuleID() string                   { return c.moduleID }
func (c *Connector) InstanceID() modulestore.InstanceID { return c.instanceID }
func (c *Connector) Name() string                       { return c.name }

// ReadyToUse reports whether Create succeeded and neither Destroy nor Stop
// has taken the client out of service.
func (c *Connector) ReadyToUse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready && !c.stopped
}

// Ignored is true until the connector has reported connected at least once.
// A backend that never came up is excluded from fan-out instead of failing
// every operation.
func (c *Connector) Ignored() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.everConnected
}

func (c *Connector) Capabilities() client.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

func (c *Connector) ConnectionState() client.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connState
}

func (c *Connector) SetConnectionState(state client.ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connState = state
}

// Create subscribes to the connector's response and state topics and asks
// the connector process to bring its backend connection up. Idempotent.
func (c *Connector) Create(ctx context.Context) client.Status {
	c.mu.Lock()
	if c.ready {
		c.mu.Unlock()
		return client.StatusOK
	}
	c.mu.Unlock()

	if err := c.subscribe(); err != nil {
		c.log.Warn("subscribing connector topics", "module", c.moduleID, "instance", c.instanceID, "error", err)
		return client.StatusRecoverable
	}

	params, _ := json.Marshal(map[string]any{"instance_id": c.instanceID}) //nolint:errcheck // Static shape
	status := c.call(ctx, methodCreate, params, nil)
	if status != client.StatusOK {
		return status
	}

	// Capabilities are fetched once at creation; not-implemented leaves the
	// zero set, which is valid.
	var caps client.Capabilities
	if st := c.call(ctx, methodCapabilities, nil, &caps); st == client.StatusOK {
		c.mu.Lock()
		c.caps = caps
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
	return client.StatusOK
}

// Destroy tells the connector process to shut down and releases the topic
// subscriptions. The handle stays valid but stops being ready.
func (c *Connector) Destroy(ctx context.Context) error {
	c.mu.Lock()
	wasReady := c.ready
	c.ready = false
	c.stopped = false
	c.mu.Unlock()

	var callErr error
	if wasReady {
		if status := c.call(ctx, methodDestroy, nil, nil); status.IsFailure() {
			callErr = fmt.Errorf("%w: destroy returned %s", ErrRequestFailed, status)
		}
	}

	if err := c.unsubscribe(); err != nil {
		c.log.Warn("unsubscribing connector topics", "module", c.moduleID, "error", err)
	}
	return callErr
}

// Recreate tears down and rebuilds the backend connection in place.
func (c *Connector) Recreate(ctx context.Context) error {
	if status := c.call(ctx, methodRecreate, nil, nil); status.IsFailure() {
		return fmt.Errorf("%w: recreate returned %s", ErrRequestFailed, status)
	}
	return nil
}

// Stop suspends the connector's backend interaction without tearing the
// connection down. The subscriptions stay attached so Continue is cheap.
func (c *Connector) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.ready || c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	if status := c.call(ctx, methodStop, nil, nil); status.IsFailure() {
		return fmt.Errorf("%w: stop returned %s", ErrRequestFailed, status)
	}
	return nil
}

// Continue lifts a Stop and tells the connector to resume serving.
func (c *Connector) Continue(ctx context.Context) error {
	c.mu.Lock()
	if !c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = false
	c.mu.Unlock()

	if status := c.call(ctx, methodContinue, nil, nil); status.IsFailure() {
		return fmt.Errorf("%w: continue returned %s", ErrRequestFailed, status)
	}
	return nil
}

// ReloadSettings asks the connector to re-read its instance configuration.
func (c *Connector) ReloadSettings(ctx context.Context) error {
	if status := c.call(ctx, methodReloadSettings, nil, nil); status.IsFailure() {
		return fmt.Errorf("%w: reload_settings returned %s", ErrRequestFailed, status)
	}
	return nil
}

// Channels lists the connector's TV or radio channels.
func (c *Connector) Channels(ctx context.Context, radio bool) ([]client.Channel, client.Status) {
	params, _ := json.Marshal(map[string]bool{"radio": radio}) //nolint:errcheck // Static shape
	var items []client.Channel
	status := c.call(ctx, methodChannels, params, &items)
	for i := range items {
		items[i].ClientID = c.id
	}
	return items, status
}

// ChannelGroups lists the connector's channel groups.
func (c *Connector) ChannelGroups(ctx context.Context, radio bool) ([]client.ChannelGroup, client.Status) {
	params, _ := json.Marshal(map[string]bool{"radio": radio}) //nolint:errcheck // Static shape
	var items []client.ChannelGroup
	status := c.call(ctx, methodChannelGroups, params, &items)
	for i := range items {
		items[i].ClientID = c.id
	}
	return items, status
}

// Timers lists the connector's recording timers.
func (c *Connector) Timers(ctx context.Context) ([]client.Timer, client.Status) {
	var items []client.Timer
	status := c.call(ctx, methodTimers, nil, &items)
	for i := range items {
		items[i].ClientID = c.id
	}
	return items, status
}

// Recordings lists recordings; with deleted true, the trash folder.
func (c *Connector) Recordings(ctx context.Context, deleted bool) ([]client.Recording, client.Status) {
	params, _ := json.Marshal(map[string]bool{"deleted": deleted}) //nolint:errcheck // Static shape
	var items []client.Recording
	status := c.call(ctx, methodRecordings, params, &items)
	for i := range items {
		items[i].ClientID = c.id
	}
	return items, status
}

// DeleteAllRecordingsFromTrash empties the connector's trash folder.
func (c *Connector) DeleteAllRecordingsFromTrash(ctx context.Context) client.Status {
	return c.call(ctx, methodDeleteTrash, nil, nil)
}

// SetEPGMaxPastDays pushes the EPG past-days window.
func (c *Connector) SetEPGMaxPastDays(ctx context.Context, days int) client.Status {
	params, _ := json.Marshal(map[string]int{"days": days}) //nolint:errcheck // Static shape
	return c.call(ctx, methodSetEPGPastDays, params, nil)
}

// SetEPGMaxFutureDays pushes the EPG future-days window.
func (c *Connector) SetEPGMaxFutureDays(ctx context.Context, days int) client.Status {
	params, _ := json.Marshal(map[string]int{"days": days}) //nolint:errcheck // Static shape
	return c.call(ctx, methodSetEPGFutureDays, params, nil)
}

// Providers lists the connector's content providers.
func (c *Connector) Providers(ctx context.Context) ([]client.Provider, client.Status) {
	var items []client.Provider
	status := c.call(ctx, methodProviders, nil, &items)
	for i := range items {
		items[i].ClientID = c.id
	}
	return items, status
}

// BackendProperties describes the connector's backend.
func (c *Connector) BackendProperties(ctx context.Context) (client.BackendProperties, client.Status) {
	var props client.BackendProperties
	status := c.call(ctx, methodBackendProperties, nil, &props)
	props.ClientID = c.id
	return props, status
}

func (c *Connector) OnSystemSleep(ctx context.Context) client.Status {
	return c.call(ctx, methodSystemSleep, nil, nil)
}

func (c *Connector) OnSystemWake(ctx context.Context) client.Status {
	return c.call(ctx, methodSystemWake, nil, nil)
}

func (c *Connector) OnPowerSavingActivated(ctx context.Context) client.Status {
	return c.call(ctx, methodPowerSavingOn, nil, nil)
}

func (c *Connector) OnPowerSavingDeactivated(ctx context.Context) client.Status {
	return c.call(ctx, methodPowerSavingOff, nil, nil)
}

// call performs one request/response round trip. A timeout or transport
// error reads as recoverable: the connector may simply be restarting.
func (c *Connector) call(ctx context.Context, method string, params json.RawMessage, result any) client.Status {
	req := request{
		ID:     uuid.NewString(),
		Method: method,
		Params: params,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		c.log.Error("encoding request", "method", method, "error", err)
		return client.StatusRecoverable
	}

	ch := make(chan response, 1)
	c.pendMu.Lock()
	c.pending[req.ID] = ch
	c.pendMu.Unlock()
	defer func() {
		c.pendMu.Lock()
		delete(c.pending, req.ID)
		c.pendMu.Unlock()
	}()

	topic := c.topics.ConnectorRequest(c.moduleID, uint32(c.instanceID))
	if err := c.bus.Publish(topic, payload, c.qos, false); err != nil {
		c.log.Warn("publishing request", "method", method, "module", c.moduleID, "error", err)
		return client.StatusRecoverable
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return client.StatusRecoverable
	case <-timer.C:
		c.log.Warn("request timed out", "method", method, "module", c.moduleID, "instance", c.instanceID)
		return client.StatusRecoverable
	case resp := <-ch:
		status := parseStatus(resp.Status)
		if status == client.StatusOK && result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				c.log.Warn("decoding response", "method", method, "error", err)
				return client.StatusRecoverable
			}
		}
		if resp.Error != "" {
			c.log.Debug("connector reported error", "method", method, "status", resp.Status, "error", resp.Error)
		}
		return status
	}
}

// subscribe attaches the response and state topic handlers once.
func (c *Connector) subscribe() error {
	c.mu.Lock()
	if c.subscribed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	responses := c.topics.ConnectorResponses(c.moduleID, uint32(c.instanceID))
	if err := c.bus.Subscribe(responses, c.qos, c.onResponse); err != nil {
		return err
	}

	state := c.topics.ConnectorState(c.moduleID, uint32(c.instanceID))
	if err := c.bus.Subscribe(state, c.qos, c.onState); err != nil {
		c.bus.Unsubscribe(responses) //nolint:errcheck // Best effort on error path
		return err
	}

	c.mu.Lock()
	c.subscribed = true
	c.mu.Unlock()
	return nil
}

func (c *Connector) unsubscribe() error {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return nil
	}
	c.subscribed = false
	c.mu.Unlock()

	var firstErr error
	if err := c.bus.Unsubscribe(c.topics.ConnectorResponses(c.moduleID, uint32(c.instanceID))); err != nil {
		firstErr = err
	}
	if err := c.bus.Unsubscribe(c.topics.ConnectorState(c.moduleID, uint32(c.instanceID))); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// onResponse routes a response payload to the pending request that asked
// for it. Responses for unknown IDs (late answers to timed-out requests)
// are dropped.
func (c *Connector) onResponse(_ string, payload []byte) error {
	var resp response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	c.pendMu.Lock()
	ch, ok := c.pending[resp.ID]
	c.pendMu.Unlock()
	if !ok {
		c.log.Debug("dropping late response", "module", c.moduleID, "request_id", resp.ID)
		return nil
	}

	select {
	case ch <- resp:
	default:
	}
	return nil
}

// onState handles a retained connection state report.
func (c *Connector) onState(_ string, payload []byte) error {
	var state statePayload
	if err := json.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("decoding state: %w", err)
	}

	newState := parseConnState(state.State)

	c.mu.Lock()
	if newState == client.ConnStateConnected {
		c.everConnected = true
	}
	handler := c.onStateChange
	c.mu.Unlock()

	// The registry records the state on the handle and decides whether to
	// notify; the handler must not block.
	if handler != nil {
		handler(c, newState, state.Message)
	}
	return nil
}
