package driver

import (
	"context"
	"fmt"
)

// SubAdapter performs per-capability translation for the generic family.
// Implementations must be stateless and safe for concurrent use.
type SubAdapter interface {
	// TranslateCommand converts a canonical command into the wire command
	// the hardware expects. Returning the inputs unchanged is valid.
	TranslateCommand(name string, payload map[string]any) (string, map[string]any, error)

	// TranslateEvent converts a wire event into its canonical form.
	TranslateEvent(event string, payload map[string]any) (string, map[string]any, error)
}

// subAdapters maps a generic_type to its capability translator. The
// generic family refuses to construct for types absent from this table.
var subAdapters = map[string]SubAdapter{
	"button": buttonAdapter{},
	"sensor": passthroughAdapter{},
	"switch": passthroughAdapter{},
}

// RegisterSubAdapter adds or replaces the translator for a generic_type.
// Call during start-up, before devices are created.
func RegisterSubAdapter(genericType string, adapter SubAdapter) {
	subAdapters[genericType] = adapter
}

// Generic is the family for devices declaring a generic_type. Transport is
// the standard family's; a capability sub-adapter supplies the vocabulary
// translation.
type Generic struct {
	inner *Standard
	sub   SubAdapter
}

// NewGeneric builds a generic-family driver for the generic_type declared
// in the options.
func NewGeneric(conn Conn, opts Options) (Driver, error) {
	sub, ok := subAdapters[opts.GenericType]
	if !ok {
		return nil, fmt.Errorf("driver: %w: generic_type %q",
			ErrUnknownGenericType, opts.GenericType)
	}
	inner, err := NewStandard(conn, opts)
	if err != nil {
		return nil, err
	}
	return &Generic{inner: inner.(*Standard), sub: sub}, nil
}

func (d *Generic) Connect(ctx context.Context) error { return d.inner.Connect(ctx) }
func (d *Generic) Disconnect() error                 { return d.inner.Disconnect() }
func (d *Generic) Close() error                      { return d.inner.Close() }

func (d *Generic) SendCommand(ctx context.Context, name string, payload map[string]any) error {
	wireName, wirePayload, err := d.sub.TranslateCommand(name, payload)
	if err != nil {
		return fmt.Errorf("driver: translate command %s: %w", name, err)
	}
	return d.inner.SendCommand(ctx, wireName, wirePayload)
}

func (d *Generic) SetHandler(handler EventHandler) {
	if handler == nil {
		d.inner.SetHandler(nil)
		return
	}
	d.inner.SetHandler(func(event string, payload map[string]any) {
		canonical, data, err := d.sub.TranslateEvent(event, payload)
		if err != nil {
			d.inner.logger.Warn("dropping untranslatable event",
				"device_id", d.inner.opts.DeviceID, "event", event, "error", err)
			return
		}
		handler(canonical, data)
	})
}

// passthroughAdapter is the identity translation for generic capabilities
// whose wire vocabulary already matches the canonical one.
type passthroughAdapter struct{}

func (passthroughAdapter) TranslateCommand(name string, payload map[string]any) (string, map[string]any, error) {
	return name, payload, nil
}

func (passthroughAdapter) TranslateEvent(event string, payload map[string]any) (string, map[string]any, error) {
	return event, payload, nil
}
