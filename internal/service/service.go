package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/open-automation/relay-core/internal/driver"
	"github.com/open-automation/relay-core/internal/settings"
	"github.com/open-automation/relay-core/internal/state"
)

// Commander is what a service needs from its owning device: connection
// state and a path to the driver.
type Commander interface {
	Connected() bool
	SendCommand(ctx context.Context, name string, payload map[string]any) error
}

// Descriptor is the wire shape a driver reports one capability in (the
// `load` and `service/load` event payloads).
type Descriptor struct {
	ID                  string               `json:"id,omitempty"`
	Type                string               `json:"type"`
	Settings            map[string]any       `json:"settings,omitempty"`
	SettingsDefinitions settings.Definitions `json:"settings_definitions,omitempty"`
	State               map[string]any       `json:"state,omitempty"`
}

// Service is one controllable capability of a device.
type Service struct {
	id          string
	deviceID    string
	serviceType string
	capability  Capability

	settings *settings.Model
	state    *state.State
	device   Commander

	mu               sync.Mutex
	selfDisconnected bool
}

// New builds a service from a driver descriptor. The onChange callback is
// wired into the service's state so every driver-confirmed mutation
// reaches the owning device's debounce path.
func New(descriptor Descriptor, deviceID string, device Commander, onChange func()) (*Service, error) {
	capability, ok := CapabilityFor(descriptor.Type)
	if !ok {
		return nil, fmt.Errorf("service: %w: %q", ErrUnknownType, descriptor.Type)
	}

	id := descriptor.ID
	if id == "" {
		id = uuid.NewString()
	}

	s := &Service{
		id:          id,
		deviceID:    deviceID,
		serviceType: descriptor.Type,
		capability:  capability,
		device:      device,
		settings: settings.NewModel(
			capability.SettingsDefinitions,
			descriptor.SettingsDefinitions,
			descriptor.Settings,
		),
		state: state.New(descriptor.State, onChange),
	}

	s.settings.SetHooks(s.pushSettings, nil)
	return s, nil
}

// ID returns the service identifier.
func (s *Service) ID() string { return s.id }

// Type returns the capability type.
func (s *Service) Type() string { return s.serviceType }

// Settings returns the service's settings model.
func (s *Service) Settings() *settings.Model { return s.settings }

// Connected reports whether this service is reachable. True only when the
// owning device is connected and the service has not independently
// reported disconnection.
func (s *Service) Connected() bool {
	s.mu.Lock()
	self := s.selfDisconnected
	s.mu.Unlock()
	return s.device.Connected() && !self
}

// MarkDisconnected records an independent service-level disconnect.
func (s *Service) MarkDisconnected() {
	s.mu.Lock()
	s.selfDisconnected = true
	s.mu.Unlock()
	s.state.Set("connected", false)
}

// MarkConnected clears an independent service-level disconnect.
func (s *Service) MarkConnected() {
	s.mu.Lock()
	s.selfDisconnected = false
	s.mu.Unlock()
	s.state.Set("connected", s.device.Connected())
}

// UpdateState merges driver-confirmed state. Actions never call this;
// state only moves on what the hardware reports.
func (s *Service) UpdateState(values map[string]any) {
	s.state.Merge(values)
}

// merge folds a fresh descriptor for the same capability into this
// service: driver settings definitions layer over the existing ones and
// reported state merges in.
func (s *Service) merge(descriptor Descriptor) {
	if len(descriptor.SettingsDefinitions) > 0 {
		s.settings.SetDefinitions(descriptor.SettingsDefinitions)
	}
	if len(descriptor.State) > 0 {
		s.state.Merge(descriptor.State)
	}
}

// SetPower switches the capability on or off.
func (s *Service) SetPower(ctx context.Context, on bool) error {
	if err := s.checkAction("power"); err != nil {
		return err
	}
	command := driver.CommandLightOff
	if on {
		command = driver.CommandLightOn
	}
	return s.send(ctx, command, nil)
}

// SetBrightness sets the light level as a 0-1 fraction. The implicit
// power command goes out before the level: a positive level on a light
// known to be off powers it on, a zero level on a light known to be on
// powers it off. An unknown power state sends no implicit command.
func (s *Service) SetBrightness(ctx context.Context, level float64) error {
	if err := s.checkAction("brightness"); err != nil {
		return err
	}
	if err := s.validateInput("brightness", level); err != nil {
		return err
	}

	if power, ok := s.state.Get("power"); ok {
		if on, isBool := power.(bool); isBool {
			if level > 0 && !on {
				if err := s.send(ctx, driver.CommandLightOn, nil); err != nil {
					return err
				}
			} else if level <= 0 && on {
				if err := s.send(ctx, driver.CommandLightOff, nil); err != nil {
					return err
				}
			}
		}
	}
	return s.send(ctx, driver.CommandBrightness, map[string]any{"level": level})
}

// SetColor sets the light color as a 3-element RGB array.
func (s *Service) SetColor(ctx context.Context, rgb []any) error {
	if err := s.checkAction("color"); err != nil {
		return err
	}
	if err := s.validateInput("color", rgb); err != nil {
		return err
	}
	return s.send(ctx, driver.CommandColor, map[string]any{"color": rgb})
}

// SetSiren sounds or silences the siren.
func (s *Service) SetSiren(ctx context.Context, on bool) error {
	if err := s.checkAction("on"); err != nil {
		return err
	}
	return s.send(ctx, driver.CommandSiren, map[string]any{"on": on})
}

// SetLocked locks or unlocks the lock.
func (s *Service) SetLocked(ctx context.Context, locked bool) error {
	if err := s.checkAction("locked"); err != nil {
		return err
	}
	return s.send(ctx, driver.CommandLock, map[string]any{"locked": locked})
}

// SetTargetTemperature sets the thermostat setpoint.
func (s *Service) SetTargetTemperature(ctx context.Context, temperature float64) error {
	if err := s.checkAction("target_temperature"); err != nil {
		return err
	}
	if err := s.validateInput("target_temperature", temperature); err != nil {
		return err
	}
	return s.send(ctx, driver.CommandTargetTemp, map[string]any{"value": temperature})
}

// SetMode sets the thermostat operating mode.
func (s *Service) SetMode(ctx context.Context, mode string) error {
	if err := s.checkAction("mode"); err != nil {
		return err
	}
	if err := s.validateInput("mode", mode); err != nil {
		return err
	}
	return s.send(ctx, driver.CommandThermostatMode, map[string]any{"mode": mode})
}

// Play starts media playback.
func (s *Service) Play(ctx context.Context) error {
	if err := s.checkAction("playing"); err != nil {
		return err
	}
	return s.send(ctx, driver.CommandMediaPlay, nil)
}

// Pause pauses media playback.
func (s *Service) Pause(ctx context.Context) error {
	if err := s.checkAction("playing"); err != nil {
		return err
	}
	return s.send(ctx, driver.CommandMediaPause, nil)
}

// checkAction verifies this capability carries the state field the action
// drives.
func (s *Service) checkAction(field string) error {
	if _, ok := s.capability.StateDefinitions[field]; !ok {
		return fmt.Errorf("service: %w: %s has no %s", ErrActionNotSupported, s.serviceType, field)
	}
	return nil
}

// validateInput type-checks an action input against the capability's
// state definition for the field.
func (s *Service) validateInput(field string, value any) error {
	def := s.capability.StateDefinitions[field]
	if err := settings.Validate(def, field, value); err != nil {
		return fmt.Errorf("service: %w", err)
	}
	return nil
}

// send routes one command through the owning device. Local state is never
// mutated here; the driver reports confirmed changes back as events.
func (s *Service) send(ctx context.Context, command string, payload map[string]any) error {
	if !s.Connected() {
		return fmt.Errorf("service: %w", ErrNotConnected)
	}
	return s.device.SendCommand(ctx, command, payload)
}

// pushSettings forwards accepted settings values to the hardware.
func (s *Service) pushSettings(values map[string]any) {
	payload := map[string]any{"service_id": s.id}
	for k, v := range values {
		payload[k] = v
	}
	if err := s.device.SendCommand(context.Background(), driver.CommandSettings, payload); err != nil {
		// Stored settings stay authoritative; the device re-syncs on its
		// next load event.
		return
	}
}

// Serialize returns the internal view of the service.
func (s *Service) Serialize() map[string]any {
	return map[string]any{
		"id":                   s.id,
		"device_id":            s.deviceID,
		"type":                 s.serviceType,
		"settings":             s.settings.Serialize(),
		"settings_definitions": s.settings.DriverDefinitions(),
		"state":                s.state.Snapshot(),
	}
}

// DBSerialize returns the persisted view: identity plus settings under
// their DB visibility policy. Live state is not persisted.
func (s *Service) DBSerialize() map[string]any {
	return map[string]any{
		"id":                   s.id,
		"type":                 s.serviceType,
		"settings":             s.settings.DBSerialize(),
		"settings_definitions": s.settings.DriverDefinitions(),
	}
}

// ClientSerialize returns the externally shared view: identity, settings
// under the client visibility policy, live state, and reachability.
// Tokens and driver-internal blobs never appear here.
func (s *Service) ClientSerialize() map[string]any {
	return map[string]any{
		"id":        s.id,
		"type":      s.serviceType,
		"settings":  s.settings.Serialize(),
		"state":     s.state.Snapshot(),
		"connected": s.Connected(),
	}
}
