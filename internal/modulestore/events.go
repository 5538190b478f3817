package modulestore

import (
	"encoding/json"
	"fmt"

	"github.com/ashgrove-media/mediafleet/internal/infrastructure/mqtt"
)

// Handler receives decoded module store events.
//
// Handlers run on the MQTT client's delivery goroutines and must not block;
// the registry's handler only enqueues a reconcile job.
type Handler func(Event)

// Watcher subscribes to the module-event topic and forwards decoded events
// to a handler. Malformed payloads are dropped with an error returned to the
// MQTT layer for logging.
type Watcher struct {
	bus     *mqtt.Client
	qos     byte
	handler Handler
}

// NewWatcher creates a watcher that delivers events to handler.
func NewWatcher(bus *mqtt.Client, qos byte, handler Handler) *Watcher {
	return &Watcher{
		bus:     bus,
		qos:     qos,
		handler: handler,
	}
}

// Start subscribes to the module-event topic.
func (w *Watcher) Start() error {
	topic := mqtt.Topics{}.ModuleEvents()
	if err := w.bus.Subscribe(topic, w.qos, w.onMessage); err != nil {
		return fmt.Errorf("subscribing to module events: %w", err)
	}
	return nil
}

// Stop unsubscribes from the module-event topic.
func (w *Watcher) Stop() error {
	topic := mqtt.Topics{}.ModuleEvents()
	if err := w.bus.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribing from module events: %w", err)
	}
	return nil
}

func (w *Watcher) onMessage(_ string, payload []byte) error {
	event, err := decodeEvent(payload)
	if err != nil {
		return err
	}
	w.handler(event)
	return nil
}

// decodeEvent parses and validates a module event payload.
func decodeEvent(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	if event.ModuleID == "" {
		return Event{}, fmt.Errorf("%w: missing module_id", ErrInvalidEvent)
	}

	switch event.Kind {
	case EventEnabled, EventDisabled, EventUninstalled, EventReinstalled,
		EventInstanceAdded, EventInstanceRemoved:
		return event, nil
	default:
		return Event{}, fmt.Errorf("%w: unknown event %q", ErrInvalidEvent, event.Kind)
	}
}
