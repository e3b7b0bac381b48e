package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory builds a runtime device from a stored record. The composition
// root supplies it so the registry stays free of driver and transport
// wiring.
type Factory func(record Record) (*Device, error)

// Registry is the process-wide device collection. All mutation goes
// through its methods; nothing outside holds the map.
type Registry struct {
	repo    *Repository
	factory Factory
	logger  *slog.Logger

	mu      sync.Mutex
	devices map[string]*Device
}

// NewRegistry creates an empty registry.
func NewRegistry(repo *Repository, factory Factory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		repo:    repo,
		factory: factory,
		logger:  logger,
		devices: make(map[string]*Device),
	}
}

// Load populates the registry from persistence at boot. A record that
// fails to construct is logged and skipped; one bad device must not keep
// the rest offline.
func (r *Registry) Load(ctx context.Context) error {
	records, err := r.repo.GetDevices(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	for _, record := range records {
		d, err := r.factory(record)
		if err != nil {
			r.logger.Error("skipping stored device", "device_id", record.ID, "error", err)
			continue
		}
		if err := r.register(d); err != nil {
			r.logger.Error("skipping stored device", "device_id", record.ID, "error", err)
			d.Destroy()
			continue
		}
		if err := d.Start(ctx); err != nil {
			r.logger.Error("device start failed", "device_id", record.ID, "error", err)
		}
	}

	r.logger.Info("devices loaded", "count", r.Count())
	return nil
}

// CreateDevice builds, registers and starts a device from a new record
// (relay pairing path). The record is not persisted here; that happens
// once its token exchange succeeds.
func (r *Registry) CreateDevice(ctx context.Context, record Record) (*Device, error) {
	d, err := r.factory(record)
	if err != nil {
		return nil, err
	}
	if err := r.register(d); err != nil {
		d.Destroy()
		return nil, err
	}
	if err := d.Start(ctx); err != nil {
		r.deregister(d.ID())
		d.Destroy()
		return nil, err
	}
	return d, nil
}

// AddDevice registers an already constructed device.
func (r *Registry) AddDevice(d *Device) error {
	return r.register(d)
}

// GetDeviceByID returns one registered device.
func (r *Registry) GetDeviceByID(id string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	return d, nil
}

// GetDevicesByAccountID returns the devices owned by one account, ordered
// by id.
func (r *Registry) GetDevicesByAccountID(accountID string) []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Device
	for _, d := range r.devices {
		if d.AccountID() == accountID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Devices returns every registered device, ordered by id.
func (r *Registry) Devices() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// RemoveDevice destroys a device and deletes its record. Used when an
// account unlinks or deletes a device.
func (r *Registry) RemoveDevice(ctx context.Context, id string) error {
	d, err := r.GetDeviceByID(id)
	if err != nil {
		return err
	}

	if err := r.repo.DeleteDevice(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	r.deregister(id)
	d.Destroy()
	return nil
}

// Shutdown destroys every device without touching persistence.
func (r *Registry) Shutdown() {
	for _, d := range r.Devices() {
		d.Destroy()
	}
	r.mu.Lock()
	r.devices = make(map[string]*Device)
	r.mu.Unlock()
}

func (r *Registry) register(d *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.devices[d.ID()]; exists {
		return fmt.Errorf("device %s: %w", d.ID(), ErrAlreadyRegistered)
	}
	r.devices[d.ID()] = d
	return nil
}

func (r *Registry) deregister(id string) {
	r.mu.Lock()
	delete(r.devices, id)
	r.mu.Unlock()
}
