package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ashgrove-media/mediafleet/internal/infrastructure/mqtt"
)

// ErrInvalidOptions is returned when required notifier options are missing.
var ErrInvalidOptions = errors.New("notify: invalid notifier options")

// Severity labels a notification for display purposes.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Notification is the payload published to the notification topic.
type Notification struct {
	ID        string   `json:"id"`
	Severity  Severity `json:"severity"`
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
}

// Options configures a Notifier.
type Options struct {
	Bus *mqtt.Client
	QoS byte
}

// Notifier publishes user-facing notifications over MQTT.
type Notifier struct {
	bus    *mqtt.Client
	qos    byte
	topics mqtt.Topics
}

// New creates a notifier publishing to the shared notification topic.
func New(opts Options) (*Notifier, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("%w: bus is required", ErrInvalidOptions)
	}
	return &Notifier{bus: opts.Bus, qos: opts.QoS}, nil
}

// Notify publishes one notification. Satisfies client.Notifier.
func (n *Notifier) Notify(_ context.Context, isError bool, title, message string) error {
	severity := SeverityInfo
	if isError {
		severity = SeverityError
	}

	payload, err := json.Marshal(Notification{
		ID:        uuid.NewString(),
		Severity:  severity,
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	if err := n.bus.Publish(n.topics.Notifications(), payload, n.qos, false); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	return nil
}
