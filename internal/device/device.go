package device

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-automation/relay-core/internal/driver"
	"github.com/open-automation/relay-core/internal/service"
	"github.com/open-automation/relay-core/internal/settings"
	"github.com/open-automation/relay-core/internal/state"
)

const defaultUpdateDebounce = 100 * time.Millisecond

// Info is the descriptive block a device reports about itself.
type Info struct {
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Firmware     string `json:"firmware,omitempty"`
	Hardware     string `json:"hardware,omitempty"`
	Serial       string `json:"serial,omitempty"`
	LocalIP      string `json:"local_ip,omitempty"`
	PublicIP     string `json:"public_ip,omitempty"`
}

// Saver persists one device record.
type Saver interface {
	SaveDevice(ctx context.Context, record Record) error
}

// ConnectivityRecorder receives connect/disconnect transitions for
// telemetry. Implementations must tolerate being called from the driver's
// delivery goroutine.
type ConnectivityRecorder interface {
	WriteConnectivity(deviceID string, connected bool)
	WriteStateMetric(deviceID, serviceID, field string, value float64)
}

// Options carries the persisted or newly submitted fields a device is
// constructed from.
type Options struct {
	ID        string
	Token     string
	Type      string
	AccountID string
	RoomID    string
	GatewayID string

	// Saveable is true for devices restored from persistence, whose token
	// was confirmed in an earlier session.
	Saveable bool

	Info                Info
	DriverData          map[string]any
	Settings            map[string]any
	SettingsDefinitions settings.Definitions
	Services            []service.Descriptor

	// UpdateDebounce bounds notification and save amplification from
	// streaming telemetry. Zero means the 100ms default.
	UpdateDebounce time.Duration
}

// Deps are the collaborators a device needs.
type Deps struct {
	Driver driver.Driver
	Saver  Saver
	Logger *slog.Logger

	// Telemetry may be nil.
	Telemetry ConnectivityRecorder

	// OnUpdated receives the client-serialized device after each debounced
	// state flush. May be nil.
	OnUpdated func(clientView map[string]any)
}

// Device is the top-level addressable unit: one physical device with its
// driver, services, settings, connection state and token lifecycle.
type Device struct {
	id string

	mu         sync.Mutex
	token      string
	deviceType string
	accountID  string
	roomID     string
	gatewayID  string
	isSaveable bool
	driverData map[string]any
	info       Info

	state    *state.State
	services *service.Manager
	settings *settings.Model
	driver   driver.Driver
	debounce *state.Debouncer

	saver     Saver
	telemetry ConnectivityRecorder
	onUpdated func(map[string]any)
	logger    *slog.Logger
}

// deviceSettingsDefinitions is the device-level base settings layer.
var deviceSettingsDefinitions = settings.Definitions{
	"name": {
		Type:       "string",
		Label:      "Name",
		Validation: map[string]any{"max_length": 24},
	},
}

// New constructs a device from persisted or newly submitted data. The
// driver handler is registered here; call Start to begin receiving events.
func New(opts Options, deps Deps) (*Device, error) {
	if deps.Driver == nil {
		return nil, fmt.Errorf("device: driver is required")
	}
	if deps.Saver == nil {
		return nil, fmt.Errorf("device: saver is required")
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := opts.UpdateDebounce
	if window <= 0 {
		window = defaultUpdateDebounce
	}
	driverData := opts.DriverData
	if driverData == nil {
		driverData = make(map[string]any)
	}

	d := &Device{
		id:         id,
		token:      opts.Token,
		deviceType: opts.Type,
		accountID:  opts.AccountID,
		roomID:     opts.RoomID,
		gatewayID:  opts.GatewayID,
		isSaveable: opts.Saveable,
		driverData: driverData,
		info:       opts.Info,
		driver:     deps.Driver,
		saver:      deps.Saver,
		telemetry:  deps.Telemetry,
		onUpdated:  deps.OnUpdated,
		logger:     logger.With("device_id", id),
		settings: settings.NewModel(
			deviceSettingsDefinitions,
			opts.SettingsDefinitions,
			opts.Settings,
		),
	}

	d.debounce = state.NewDebouncer(window, d.flushUpdate)
	d.state = state.New(map[string]any{"connected": false}, d.debounce.Trigger)
	d.services = service.NewManager(id, d, d.debounce.Trigger, d.saveIfSaveable)
	d.settings.SetHooks(d.pushSettings, d.saveIfSaveable)

	d.services.UpdateServices(opts.Services, func(descriptor service.Descriptor, err error) {
		d.logger.Warn("skipping stored service", "type", descriptor.Type, "error", err)
	})

	deps.Driver.SetHandler(d.handleDriverEvent)
	return d, nil
}

// Start connects the driver and begins event delivery.
func (d *Device) Start(ctx context.Context) error {
	if err := d.driver.Connect(ctx); err != nil {
		return fmt.Errorf("device %s: %w", d.id, err)
	}
	return nil
}

// ID returns the device identifier.
func (d *Device) ID() string { return d.id }

// Type returns the device type.
func (d *Device) Type() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deviceType
}

// AccountID returns the owning account, empty when unclaimed.
func (d *Device) AccountID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accountID
}

// Token returns the current authentication token.
func (d *Device) Token() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token
}

// IsSaveable reports whether the current token has ever been confirmed by
// the physical device, making the record safe to persist.
func (d *Device) IsSaveable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isSaveable
}

// Connected reports the live connection state.
func (d *Device) Connected() bool {
	return d.state.Bool("connected")
}

// Services returns the device's services manager.
func (d *Device) Services() *service.Manager { return d.services }

// Settings returns the device's settings model.
func (d *Device) Settings() *settings.Model { return d.settings }

// SendCommand routes one command to the driver. Satisfies
// service.Commander.
func (d *Device) SendCommand(ctx context.Context, name string, payload map[string]any) error {
	return d.driver.SendCommand(ctx, name, payload)
}

// VerifyToken reports whether the presented token matches the device's, in
// constant time.
func (d *Device) VerifyToken(token string) bool {
	d.mu.Lock()
	current := d.token
	d.mu.Unlock()
	if current == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(current), []byte(token)) == 1
}

// Emit forwards an event to the driver. Token changes are rejected here;
// they must go through SetToken so the persistence and rollback contract
// holds.
func (d *Device) Emit(ctx context.Context, event string, payload map[string]any) error {
	if event == driver.CommandToken {
		return fmt.Errorf("device %s: %w: use SetToken", d.id, ErrTokenViaEmit)
	}
	return d.driver.SendCommand(ctx, event, payload)
}

// SetRoom moves the device to a room. The local value changes
// optimistically and reverts if persistence fails.
func (d *Device) SetRoom(ctx context.Context, roomID string) error {
	d.mu.Lock()
	previous := d.roomID
	d.roomID = roomID
	d.mu.Unlock()

	if err := d.Save(ctx); err != nil {
		d.mu.Lock()
		d.roomID = previous
		d.mu.Unlock()
		return err
	}
	return nil
}

// SetType updates the device type and persists on change.
func (d *Device) SetType(ctx context.Context, deviceType string) error {
	d.mu.Lock()
	if d.deviceType == deviceType {
		d.mu.Unlock()
		return nil
	}
	previous := d.deviceType
	d.deviceType = deviceType
	d.mu.Unlock()

	if err := d.Save(ctx); err != nil {
		d.mu.Lock()
		d.deviceType = previous
		d.mu.Unlock()
		return err
	}
	return nil
}

// SetSettings validates and stores device-level settings.
func (d *Device) SetSettings(values map[string]any) error {
	return d.settings.Set(values)
}

// SetAccount links or unlinks the owning account and persists.
func (d *Device) SetAccount(ctx context.Context, accountID string) error {
	d.mu.Lock()
	previous := d.accountID
	d.accountID = accountID
	d.mu.Unlock()

	if err := d.Save(ctx); err != nil {
		d.mu.Lock()
		d.accountID = previous
		d.mu.Unlock()
		return err
	}
	return nil
}

// SetToken rotates the device token through a three-step exchange: the
// physical device confirms the new token first, then the record persists,
// then the device is asked to reconnect under the new token.
//
// If persistence fails after the device confirmed, the local token and
// saveable flag are restored and a compensating token command returns the
// device to the old token. A failed compensation leaves the two sides
// desynchronized; that is logged at the highest severity and never
// retried here.
func (d *Device) SetToken(ctx context.Context, newToken string) error {
	if newToken == "" {
		return fmt.Errorf("device %s: %w: empty token", d.id, ErrInvalidToken)
	}
	if !d.Connected() {
		return fmt.Errorf("device %s: %w", d.id, ErrNotConnected)
	}

	// Step 1: the physical device must confirm before anything changes.
	if err := d.driver.SendCommand(ctx, driver.CommandToken, map[string]any{"token": newToken}); err != nil {
		return fmt.Errorf("device %s: token exchange: %w", d.id, err)
	}

	d.mu.Lock()
	previousToken := d.token
	previousSaveable := d.isSaveable
	d.token = newToken
	d.isSaveable = true
	d.mu.Unlock()

	// Step 2: persist the confirmed token.
	if err := d.Save(ctx); err != nil {
		d.mu.Lock()
		d.token = previousToken
		d.isSaveable = previousSaveable
		d.mu.Unlock()

		compensation := d.driver.SendCommand(ctx, driver.CommandToken,
			map[string]any{"token": previousToken})
		if compensation != nil {
			d.logger.Error("token rollback failed, device token desynchronized",
				"error", compensation, "persist_error", err)
		}
		return fmt.Errorf("device %s: persisting token: %w", d.id, err)
	}

	// Step 3: reconnect under the new token. Best effort; the device
	// record is already consistent.
	if err := d.driver.SendCommand(ctx, driver.CommandReconnect, nil); err != nil {
		d.logger.Warn("reconnect request after token change failed", "error", err)
	}
	return nil
}

// Save persists the device record. Refused until a token exchange has
// marked the device saveable.
func (d *Device) Save(ctx context.Context) error {
	if !d.IsSaveable() {
		return fmt.Errorf("device %s: %w", d.id, ErrNotSaveable)
	}
	if err := d.saver.SaveDevice(ctx, d.Record()); err != nil {
		return fmt.Errorf("device %s: %w", d.id, err)
	}
	return nil
}

// Destroy tears the device down: pending debounce cancelled, driver
// closed, services dropped.
func (d *Device) Destroy() {
	d.debounce.Stop()
	if err := d.driver.Close(); err != nil {
		d.logger.Warn("driver close failed", "error", err)
	}
	d.services.Destroy()
}

// saveIfSaveable is the save hook for settings and service changes.
// Unsaveable devices skip persistence silently; their record is adopted
// wholesale once the token exchange completes.
func (d *Device) saveIfSaveable() {
	if !d.IsSaveable() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.saver.SaveDevice(ctx, d.Record()); err != nil {
		d.logger.Error("device save failed", "error", err)
	}
}

// pushSettings forwards accepted device-level settings to the hardware.
func (d *Device) pushSettings(values map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.driver.SendCommand(ctx, driver.CommandSettings, values); err != nil {
		d.logger.Warn("settings push failed", "error", err)
	}
}

// flushUpdate is the debounced notify-and-persist step. One burst of state
// mutations lands here exactly once, with the state after the last
// mutation.
func (d *Device) flushUpdate() {
	if d.onUpdated != nil {
		d.onUpdated(d.ClientSerialize())
	}
	d.saveIfSaveable()
}
