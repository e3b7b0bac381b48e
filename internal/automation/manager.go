package automation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Automator wires a registered automation's conditions into the live
// event stream. The condition evaluation engine is a sibling system; this
// registry only calls its lifecycle hooks.
type Automator interface {
	SetUpAutomation(a Automation) error
	TearDownAutomation(a Automation) error
}

// Notifier receives the account-scoped update fan-out.
type Notifier interface {
	Notify(event string, payload map[string]any)
}

// Store is the persistence contract for automations.
type Store interface {
	SaveAutomation(ctx context.Context, a Automation) error
	DeleteAutomation(ctx context.Context, id string) error
	GetAutomations(ctx context.Context) ([]Automation, error)
}

// Manager is the process-wide, account-scoped automation registry.
// Persistence always precedes memory: an automation that failed to
// persist never becomes visible.
type Manager struct {
	store     Store
	automator Automator
	notifier  Notifier
	logger    *slog.Logger

	mu          sync.Mutex
	automations map[string]Automation
}

// NewManager creates an empty registry. automator and notifier may be nil.
func NewManager(store Store, automator Automator, notifier Notifier, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:       store,
		automator:   automator,
		notifier:    notifier,
		logger:      logger,
		automations: make(map[string]Automation),
	}
}

// Load populates the registry from persistence at boot.
func (m *Manager) Load(ctx context.Context) error {
	stored, err := m.store.GetAutomations(ctx)
	if err != nil {
		return fmt.Errorf("automation: loading: %w", err)
	}
	for _, a := range stored {
		m.register(a, false)
	}
	m.logger.Info("automations loaded", "count", len(stored))
	return nil
}

// SaveAutomation creates or updates an automation for the requesting
// account. Updating an automation owned by another account is an
// authorization error. The record persists first; only then does the
// in-memory registration change.
func (m *Manager) SaveAutomation(ctx context.Context, a Automation, accountID string) (Automation, error) {
	if a.ID != "" {
		if existing, ok := m.lookup(a.ID); ok {
			if existing.AccountID != accountID {
				return Automation{}, fmt.Errorf("automation %s: %w", a.ID, ErrUnauthorized)
			}
			if err := applyEditLocks(&a, existing); err != nil {
				return Automation{}, err
			}
		}
	} else {
		a.ID = uuid.NewString()
	}
	a.AccountID = accountID

	if err := m.store.SaveAutomation(ctx, a); err != nil {
		return Automation{}, fmt.Errorf("automation %s: %w", a.ID, err)
	}

	m.deregister(a.ID, false)
	m.register(a, true)
	return a, nil
}

// applyEditLocks enforces the stored automation's edit locks on a
// candidate update. Editability and system origin always come from the
// stored record, never the request; a security or system automation
// keeps its type, and fields with a cleared editable flag keep their
// stored values. Without the type lock an owner could retype a
// security automation and then delete it.
func applyEditLocks(a *Automation, existing Automation) error {
	if (existing.Type == TypeSecurity || existing.SourceSystem) && a.Type != existing.Type {
		return fmt.Errorf("automation %s: type: %w", existing.ID, ErrNotEditable)
	}
	a.SourceSystem = existing.SourceSystem
	a.Editable = existing.Editable
	if !existing.Editable.Name {
		a.Name = existing.Name
	}
	if !existing.Editable.Conditions {
		a.Conditions = existing.Conditions
	}
	return nil
}

// DeleteAutomation removes an account-owned automation. Security
// automations are permanently protected regardless of ownership.
func (m *Manager) DeleteAutomation(ctx context.Context, id, accountID string) error {
	existing, ok := m.lookup(id)
	if !ok || existing.AccountID != accountID {
		return fmt.Errorf("automation %s: %w", id, ErrNotFound)
	}
	if existing.Type == TypeSecurity {
		return fmt.Errorf("automation %s: %w", id, ErrSecurityProtected)
	}

	if err := m.store.DeleteAutomation(ctx, id); err != nil {
		return fmt.Errorf("automation %s: %w", id, err)
	}
	m.deregister(id, true)
	return nil
}

// GetAutomationsByAccountID returns an account's automations, provisioning
// the baseline security pair first if the account has none of that type.
// Provisioning is idempotent: a second call finds the stored pair and
// creates nothing.
func (m *Manager) GetAutomationsByAccountID(ctx context.Context, accountID string) ([]Automation, error) {
	if !m.hasSecurityAutomation(accountID) {
		if err := m.provisionSecurity(ctx, accountID); err != nil {
			return nil, err
		}
	}
	return m.byAccount(accountID), nil
}

// GetAutomationByID returns one automation after an ownership check. This
// is the only lookup external callers reach.
func (m *Manager) GetAutomationByID(id, accountID string) (Automation, error) {
	a, ok := m.lookup(id)
	if !ok || a.AccountID != accountID {
		return Automation{}, fmt.Errorf("automation %s: %w", id, ErrNotFound)
	}
	return a, nil
}

// lookup is the internal accessor with no ownership check. It stays
// unexported so only in-package system paths (provisioning, save) can
// cross account boundaries.
func (m *Manager) lookup(id string) (Automation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.automations[id]
	return a, ok
}

// securityDefaults is the baseline pair every account receives.
var securityDefaults = []Automation{
	{
		Name:       "Armed Stay",
		Enabled:    true,
		Type:       TypeSecurity,
		Conditions: []Condition{{Type: "armed", Mode: ArmedStay}},
	},
	{
		Name:       "Armed Away",
		Enabled:    true,
		Type:       TypeSecurity,
		Conditions: []Condition{{Type: "armed", Mode: ArmedAway}},
	},
}

// provisionSecurity persists and registers the default security pair for
// one account. Name, conditions and deletion stay locked.
func (m *Manager) provisionSecurity(ctx context.Context, accountID string) error {
	for _, template := range securityDefaults {
		a := template
		a.ID = uuid.NewString()
		a.AccountID = accountID
		a.SourceSystem = true
		a.Editable = UserEditable{}

		if err := m.store.SaveAutomation(ctx, a); err != nil {
			return fmt.Errorf("automation: provisioning %q: %w", a.Name, err)
		}
		m.register(a, true)
	}
	return nil
}

func (m *Manager) hasSecurityAutomation(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.automations {
		if a.AccountID == accountID && a.Type == TypeSecurity {
			return true
		}
	}
	return false
}

func (m *Manager) byAccount(accountID string) []Automation {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Automation
	for _, a := range m.automations {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// register adds one automation to memory, wires it into the automator and
// fans the account's list out.
func (m *Manager) register(a Automation, notify bool) {
	m.mu.Lock()
	m.automations[a.ID] = a
	m.mu.Unlock()

	if m.automator != nil {
		if err := m.automator.SetUpAutomation(a); err != nil {
			m.logger.Error("automation setup failed", "automation_id", a.ID, "error", err)
		}
	}
	if notify {
		m.notifyAccount(a.AccountID)
	}
}

// deregister drops one automation from memory and tears it down.
func (m *Manager) deregister(id string, notify bool) {
	m.mu.Lock()
	a, ok := m.automations[id]
	if ok {
		delete(m.automations, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if m.automator != nil {
		if err := m.automator.TearDownAutomation(a); err != nil {
			m.logger.Error("automation teardown failed", "automation_id", a.ID, "error", err)
		}
	}
	if notify {
		m.notifyAccount(a.AccountID)
	}
}

// notifyAccount emits the account's full automation list in client-safe
// form.
func (m *Manager) notifyAccount(accountID string) {
	if m.notifier == nil {
		return
	}

	automations := m.byAccount(accountID)
	serialized := make([]map[string]any, len(automations))
	for i, a := range automations {
		serialized[i] = a.ClientSerialize()
	}
	m.notifier.Notify(
		fmt.Sprintf("automations-update/account/%s", accountID),
		map[string]any{"automations": serialized},
	)
}
