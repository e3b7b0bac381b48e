package service

import (
	"fmt"
	"sort"
	"sync"
)

// Manager owns the set of services for one device. It is created and
// destroyed with the device and is the only mutation path for that set.
type Manager struct {
	deviceID string
	device   Commander
	onChange func()
	onSave   func()

	mu       sync.Mutex
	services map[string]*Service
}

// NewManager creates an empty manager. onChange is wired into every
// service's state; onSave schedules device persistence after a structural
// change (service added or replaced).
func NewManager(deviceID string, device Commander, onChange func(), onSave func()) *Manager {
	return &Manager{
		deviceID: deviceID,
		device:   device,
		onChange: onChange,
		onSave:   onSave,
		services: make(map[string]*Service),
	}
}

// UpdateServices reconciles the driver's reported capability list with the
// current set: known services merge in place, unknown ones are created,
// and a descriptor whose type changed under an existing id replaces the
// old service. Invalid descriptors report one error each through onError
// without aborting the batch.
func (m *Manager) UpdateServices(descriptors []Descriptor, onError func(Descriptor, error)) {
	for _, descriptor := range descriptors {
		if err := m.applyDescriptor(descriptor); err != nil {
			if onError != nil {
				onError(descriptor, err)
			}
		}
	}
}

// applyDescriptor creates, merges, or replaces one service.
func (m *Manager) applyDescriptor(descriptor Descriptor) error {
	m.mu.Lock()
	existing := m.matchLocked(descriptor)
	if existing != nil && existing.Type() == descriptor.Type {
		m.mu.Unlock()
		existing.merge(descriptor)
		return nil
	}
	m.mu.Unlock()

	// New capability, or the type changed under the same id.
	replacement, err := New(descriptor, m.deviceID, m.device, m.onChange)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if existing != nil {
		delete(m.services, existing.ID())
	}
	m.services[replacement.ID()] = replacement
	m.mu.Unlock()
	return nil
}

// matchLocked finds the service a descriptor refers to: by id when given,
// otherwise the first of the same type. Caller must hold m.mu.
func (m *Manager) matchLocked(descriptor Descriptor) *Service {
	if descriptor.ID != "" {
		return m.services[descriptor.ID]
	}
	for _, s := range m.sortedLocked() {
		if s.Type() == descriptor.Type {
			return s
		}
	}
	return nil
}

// AddService adds one service at runtime (hot-plug). When the owning
// device is saveable the structural change persists immediately via the
// save hook; isDynamic services skip persistence entirely.
func (m *Manager) AddService(descriptor Descriptor, isDynamic bool) (*Service, error) {
	m.mu.Lock()
	if descriptor.ID != "" {
		if _, exists := m.services[descriptor.ID]; exists {
			m.mu.Unlock()
			return nil, fmt.Errorf("service: %w: id %s", ErrAlreadyExists, descriptor.ID)
		}
	}
	m.mu.Unlock()

	s, err := New(descriptor, m.deviceID, m.device, m.onChange)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.services[s.ID()] = s
	m.mu.Unlock()

	if !isDynamic && m.onSave != nil {
		m.onSave()
	}
	return s, nil
}

// GetServiceByID returns one service.
func (m *Manager) GetServiceByID(id string) (*Service, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	return s, ok
}

// GetServiceByType returns the first service of a capability type.
func (m *Manager) GetServiceByType(serviceType string) (*Service, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sortedLocked() {
		if s.Type() == serviceType {
			return s, true
		}
	}
	return nil, false
}

// Services returns the current set, ordered by id for stable output.
func (m *Manager) Services() []*Service {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked()
}

// Count returns the number of services.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.services)
}

func (m *Manager) sortedLocked() []*Service {
	out := make([]*Service, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// GetSerializedServices returns the internal view of every service.
func (m *Manager) GetSerializedServices() []map[string]any {
	return m.serializeAll(func(s *Service) map[string]any { return s.Serialize() })
}

// GetDBSerializedServices returns the persisted view of every service.
func (m *Manager) GetDBSerializedServices() []map[string]any {
	return m.serializeAll(func(s *Service) map[string]any { return s.DBSerialize() })
}

// GetClientSerializedServices returns the externally shared view of every
// service.
func (m *Manager) GetClientSerializedServices() []map[string]any {
	return m.serializeAll(func(s *Service) map[string]any { return s.ClientSerialize() })
}

func (m *Manager) serializeAll(view func(*Service) map[string]any) []map[string]any {
	services := m.Services()
	out := make([]map[string]any, len(services))
	for i, s := range services {
		out[i] = view(s)
	}
	return out
}

// Destroy drops every service. Called when the owning device is destroyed.
func (m *Manager) Destroy() {
	m.mu.Lock()
	m.services = make(map[string]*Service)
	m.mu.Unlock()
}
