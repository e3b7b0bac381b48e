package driver

import (
	"context"
	"fmt"
)

// Liger devices speak their own wire vocabulary and wrap every payload in
// a body envelope. The driver renames commands and events at the boundary
// so the rest of the system only ever sees the canonical set.

// ligerCommands maps canonical command names to the Liger wire names.
var ligerCommands = map[string]string{
	CommandLightOn:        "power/on",
	CommandLightOff:       "power/off",
	CommandBrightness:     "level/set",
	CommandColor:          "rgb/set",
	CommandSiren:          "alarm/sound",
	CommandLock:           "bolt/set",
	CommandThermostatMode: "hvac-mode/set",
	CommandTargetTemp:     "setpoint/set",
	CommandMediaPlay:      "media/play",
	CommandMediaPause:     "media/pause",
	CommandSettings:       "prefs/set",
	CommandToken:          "token",
	CommandReconnect:      "relay/reconnect",
}

// ligerEvents maps Liger wire event names to the canonical names. Events
// absent from the map pass through unchanged.
var ligerEvents = map[string]string{
	"online":        EventConnect,
	"offline":       EventDisconnect,
	"hello":         EventLoad,
	"endpoint/load": EventServiceLoad,
	"vendor-data":   EventDriverData,
	"token":         EventToken,
	"power/state":   "light/state",
	"level/state":   "brightness/state",
	"rgb/state":     "color/state",
	"alarm/state":   "siren/state",
	"bolt/state":    "lock/state",
}

// Liger is the vendor family driver. Transport is the standard family's;
// only the vocabulary and envelope differ.
type Liger struct {
	inner *Standard
}

// NewLiger builds a Liger-family driver.
func NewLiger(conn Conn, opts Options) (Driver, error) {
	inner, err := NewStandard(conn, opts)
	if err != nil {
		return nil, err
	}
	return &Liger{inner: inner.(*Standard)}, nil
}

func (d *Liger) Connect(ctx context.Context) error { return d.inner.Connect(ctx) }
func (d *Liger) Disconnect() error                 { return d.inner.Disconnect() }
func (d *Liger) Close() error                      { return d.inner.Close() }

// SendCommand renames the canonical command to its wire name and wraps the
// payload in the Liger body envelope.
func (d *Liger) SendCommand(ctx context.Context, name string, payload map[string]any) error {
	wireName, ok := ligerCommands[name]
	if !ok {
		return fmt.Errorf("driver: %w: liger family has no wire command for %q",
			ErrInvalidCommand, name)
	}

	var wirePayload map[string]any
	if payload != nil {
		wirePayload = map[string]any{"body": payload}
	}
	return d.inner.SendCommand(ctx, wireName, wirePayload)
}

// SetHandler installs a handler that first renames wire events to their
// canonical names and unwraps the body envelope.
func (d *Liger) SetHandler(handler EventHandler) {
	if handler == nil {
		d.inner.SetHandler(nil)
		return
	}
	d.inner.SetHandler(func(event string, payload map[string]any) {
		handler(translateLigerEvent(event, payload))
	})
}

func translateLigerEvent(event string, payload map[string]any) (string, map[string]any) {
	if canonical, ok := ligerEvents[event]; ok {
		event = canonical
	}
	if body, ok := payload["body"].(map[string]any); ok {
		payload = body
	}
	return event, payload
}
