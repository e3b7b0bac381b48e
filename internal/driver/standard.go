package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/open-automation/relay-core/internal/infrastructure/relay"
)

// eventEnvelope is the wire shape devices publish events in. The
// correlation id is optional; when present the device expects an
// acknowledgement on its event-ack topic.
type eventEnvelope struct {
	CorrelationID string         `json:"correlation_id,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// commandEnvelope is the wire shape commands are published in. The device
// acknowledges on its ack topic keyed by the correlation id.
type commandEnvelope struct {
	CorrelationID string         `json:"correlation_id"`
	Data          map[string]any `json:"data,omitempty"`
}

// commandAck is the device's response to a command.
type commandAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Standard is the pass-through family: devices that already speak the
// canonical event and command vocabulary. It is also the default for
// unknown device types and the gateway type.
type Standard struct {
	conn   Conn
	opts   Options
	topics relay.Topics
	logger *slog.Logger

	mu        sync.Mutex
	handler   EventHandler
	connected bool
}

// NewStandard builds a standard-family driver.
func NewStandard(conn Conn, opts Options) (Driver, error) {
	if conn == nil {
		return nil, fmt.Errorf("driver: %w: nil connection", ErrInvalidOptions)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Standard{conn: conn, opts: opts, logger: logger}, nil
}

// Connect subscribes to the device's event wildcard and begins delivering
// canonical events.
func (d *Standard) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return nil
	}
	if d.handler == nil {
		return fmt.Errorf("driver: %w", ErrNoHandler)
	}

	topic := d.topics.DeviceEvents(d.opts.DeviceID)
	if err := d.conn.Subscribe(topic, d.opts.QoS, d.receive); err != nil {
		return fmt.Errorf("driver: subscribe %s: %w", topic, err)
	}
	d.connected = true
	return nil
}

// Disconnect drops the event subscription.
func (d *Standard) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}
	d.connected = false

	topic := d.topics.DeviceEvents(d.opts.DeviceID)
	if err := d.conn.Unsubscribe(topic); err != nil {
		return fmt.Errorf("driver: unsubscribe %s: %w", topic, err)
	}
	return nil
}

// SendCommand publishes one command and waits for the device's
// acknowledgement.
func (d *Standard) SendCommand(ctx context.Context, name string, payload map[string]any) error {
	if name == "" {
		return fmt.Errorf("driver: %w: empty command name", ErrInvalidCommand)
	}

	corr := uuid.NewString()
	body, err := json.Marshal(commandEnvelope{CorrelationID: corr, Data: payload})
	if err != nil {
		return fmt.Errorf("driver: encode command %s: %w", name, err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.CommandTimeout)
		defer cancel()
	}

	commandTopic := d.topics.DeviceCommand(d.opts.DeviceID, name)
	ackTopic := d.topics.DeviceAck(d.opts.DeviceID, corr)

	response, err := d.conn.Request(ctx, commandTopic, ackTopic, body, d.opts.QoS)
	if err != nil {
		return fmt.Errorf("driver: command %s: %w", name, err)
	}

	var ack commandAck
	if err := json.Unmarshal(response, &ack); err != nil {
		return fmt.Errorf("driver: decode ack for %s: %w", name, err)
	}
	if !ack.OK {
		if ack.Error == "" {
			ack.Error = "device rejected command"
		}
		return fmt.Errorf("driver: command %s: %w: %s", name, ErrCommandRejected, ack.Error)
	}
	return nil
}

// SetHandler registers the canonical event sink.
func (d *Standard) SetHandler(handler EventHandler) {
	d.mu.Lock()
	d.handler = handler
	d.mu.Unlock()
}

// Close disconnects permanently.
func (d *Standard) Close() error {
	return d.Disconnect()
}

// receive decodes one inbound message and delivers it as a canonical
// event. Malformed payloads are logged and dropped rather than propagated,
// so one bad publish cannot wedge the subscription.
func (d *Standard) receive(topic string, payload []byte) error {
	_, event, ok := relay.ParseDeviceEvent(topic)
	if !ok {
		d.logger.Warn("dropping message on unexpected topic", "topic", topic)
		return nil
	}

	var envelope eventEnvelope
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &envelope); err != nil {
			d.logger.Warn("dropping undecodable event",
				"device_id", d.opts.DeviceID, "event", event, "error", err)
			return nil
		}
	}

	d.deliver(event, envelope.Data)

	if envelope.CorrelationID != "" {
		d.acknowledgeEvent(envelope.CorrelationID)
	}
	return nil
}

// deliver hands one canonical event to the registered handler.
func (d *Standard) deliver(event string, data map[string]any) {
	d.mu.Lock()
	handler := d.handler
	connected := d.connected
	d.mu.Unlock()

	if !connected || handler == nil {
		return
	}
	handler(event, data)
}

func (d *Standard) acknowledgeEvent(correlationID string) {
	topic := d.topics.DeviceEventAck(d.opts.DeviceID, correlationID)
	if err := d.conn.Publish(topic, []byte(`{"ok":true}`), d.opts.QoS, false); err != nil {
		d.logger.Warn("event acknowledgement failed",
			"device_id", d.opts.DeviceID, "error", err)
	}
}
