package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/open-automation/relay-core/internal/infrastructure/relay"
)

// Canonical event names every family translates its wire vocabulary into.
// Capability action events (e.g. "light/state") pass through alongside
// these.
const (
	EventConnect     = "connect"
	EventDisconnect  = "disconnect"
	EventLoad        = "load"
	EventServiceLoad = "service/load"
	EventDriverData  = "driver-data"
	EventToken       = "token"
)

// Canonical outbound command names.
const (
	CommandLightOn        = "lightOn/set"
	CommandLightOff       = "lightOff/set"
	CommandBrightness     = "brightness/set"
	CommandColor          = "color/set"
	CommandSiren          = "siren"
	CommandLock           = "lock/set"
	CommandThermostatMode = "thermostat-mode/set"
	CommandTargetTemp     = "target-temperature/set"
	CommandMediaPlay      = "play"
	CommandMediaPause     = "pause"
	CommandToken          = "token"
	CommandReconnect      = "reconnect-to-relay"
	CommandSettings       = "settings/set"
)

// EventHandler receives one canonical inbound event. Handlers must not be
// invoked concurrently for one device; the driver serialises delivery.
type EventHandler func(event string, payload map[string]any)

// Driver translates between one hardware family's wire vocabulary and the
// canonical event and command sets.
//
// Implementations never panic past this boundary. Translation and
// transport failures come back as errors from SendCommand or are dropped
// with a log entry on the inbound path.
type Driver interface {
	// Connect subscribes to the device's inbound traffic and begins
	// delivering canonical events to the registered handler.
	Connect(ctx context.Context) error

	// Disconnect stops inbound delivery. The driver may be reconnected.
	Disconnect() error

	// SendCommand performs one command round-trip to the physical device
	// and returns once the device acknowledges or the context expires.
	SendCommand(ctx context.Context, name string, payload map[string]any) error

	// SetHandler registers the canonical event sink. Must be called before
	// Connect.
	SetHandler(handler EventHandler)

	// Close releases the driver permanently.
	Close() error
}

// Conn is the relay transport a driver needs. *relay.Client satisfies it.
type Conn interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler relay.MessageHandler) error
	Unsubscribe(topic string) error
	Request(ctx context.Context, requestTopic, responseTopic string, payload []byte, qos byte) ([]byte, error)
}

// Options carries the per-device parameters a factory needs beyond the
// transport itself.
type Options struct {
	// DeviceID is the relay identity commands and events are keyed by.
	DeviceID string

	// GenericType selects the sub-adapter for the generic family. Ignored
	// by other families.
	GenericType string

	// QoS applies to every publish and subscription for this device.
	QoS byte

	// CommandTimeout bounds a command round-trip when the caller's context
	// carries no deadline of its own.
	CommandTimeout time.Duration

	Logger *slog.Logger
}

// Factory builds a family-specific driver for one device.
type Factory func(conn Conn, opts Options) (Driver, error)

// Registry maps device-type strings to driver factories. A device whose
// type has no registered family falls back to the standard family.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry preloaded with the built-in families.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("standard", NewStandard)
	r.Register("gateway", NewStandard)
	r.Register("liger", NewLiger)
	r.Register("generic", NewGeneric)
	return r
}

// Register adds or replaces the factory for a device type.
func (r *Registry) Register(deviceType string, factory Factory) {
	r.mu.Lock()
	r.factories[deviceType] = factory
	r.mu.Unlock()
}

// Create builds a driver for the given device type, defaulting to the
// standard family for unknown types.
func (r *Registry) Create(deviceType string, conn Conn, opts Options) (Driver, error) {
	if opts.DeviceID == "" {
		return nil, fmt.Errorf("driver: %w: device id is required", ErrInvalidOptions)
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}

	r.mu.RLock()
	factory, ok := r.factories[deviceType]
	r.mu.RUnlock()
	if !ok {
		factory = NewStandard
	}
	return factory(conn, opts)
}

// Types returns the registered device types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

const defaultCommandTimeout = 10 * time.Second
