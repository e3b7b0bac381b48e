package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// memoryStore implements Store in memory and can be told to fail saves.
type memoryStore struct {
	mu      sync.Mutex
	saved   map[string]Automation
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[string]Automation)}
}

func (s *memoryStore) SaveAutomation(ctx context.Context, a Automation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[a.ID] = a
	return nil
}

func (s *memoryStore) DeleteAutomation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, id)
	return nil
}

func (s *memoryStore) GetAutomations(ctx context.Context) ([]Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Automation, 0, len(s.saved))
	for _, a := range s.saved {
		out = append(out, a)
	}
	return out, nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// recordingAutomator records lifecycle hook calls.
type recordingAutomator struct {
	setUp    []string
	tornDown []string
}

func (r *recordingAutomator) SetUpAutomation(a Automation) error {
	r.setUp = append(r.setUp, a.ID)
	return nil
}

func (r *recordingAutomator) TearDownAutomation(a Automation) error {
	r.tornDown = append(r.tornDown, a.ID)
	return nil
}

// recordingNotifier records fan-out events.
type recordingNotifier struct {
	events   []string
	payloads []map[string]any
}

func (r *recordingNotifier) Notify(event string, payload map[string]any) {
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
}

func TestSaveAutomationPersistsBeforeRegistering(t *testing.T) {
	store := newMemoryStore()
	automator := &recordingAutomator{}
	m := NewManager(store, automator, nil, nil)

	saved, err := m.SaveAutomation(context.Background(), Automation{
		Name:       "Evening lights",
		Enabled:    true,
		Type:       "scene",
		Conditions: []Condition{{Type: "time"}},
	}, "acc-1")
	if err != nil {
		t.Fatalf("SaveAutomation: %v", err)
	}
	if saved.ID == "" || saved.AccountID != "acc-1" {
		t.Fatalf("saved = %+v", saved)
	}
	if store.count() != 1 {
		t.Fatalf("store has %d records", store.count())
	}
	if len(automator.setUp) != 1 || automator.setUp[0] != saved.ID {
		t.Fatalf("setUp calls = %v", automator.setUp)
	}
}

func TestSaveAutomationPersistFailureLeavesMemoryUntouched(t *testing.T) {
	store := newMemoryStore()
	store.saveErr = errors.New("disk full")
	m := NewManager(store, nil, nil, nil)

	_, err := m.SaveAutomation(context.Background(), Automation{Name: "x"}, "acc-1")
	if err == nil {
		t.Fatal("expected persistence error")
	}

	store.saveErr = nil
	automations, err := m.GetAutomationsByAccountID(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("GetAutomationsByAccountID: %v", err)
	}
	// Only the provisioned security pair exists; the failed save never
	// registered.
	if len(automations) != 2 {
		t.Fatalf("expected only the security pair, got %d automations", len(automations))
	}
	for _, a := range automations {
		if a.Type != TypeSecurity {
			t.Fatalf("unexpected automation %+v", a)
		}
	}
}

func TestSaveAutomationCrossAccountRejected(t *testing.T) {
	store := newMemoryStore()
	m := NewManager(store, nil, nil, nil)

	saved, err := m.SaveAutomation(context.Background(), Automation{Name: "Mine"}, "acc-1")
	if err != nil {
		t.Fatalf("SaveAutomation: %v", err)
	}

	saved.Name = "Hijacked"
	_, err = m.SaveAutomation(context.Background(), saved, "acc-2")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	kept, err := m.GetAutomationByID(saved.ID, "acc-1")
	if err != nil {
		t.Fatalf("GetAutomationByID: %v", err)
	}
	if kept.Name != "Mine" {
		t.Fatalf("rejected save mutated the automation: %+v", kept)
	}
}

func TestSecurityProvisioningIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	m := NewManager(store, nil, nil, nil)
	ctx := context.Background()

	first, err := m.GetAutomationsByAccountID(ctx, "acc-1")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := m.GetAutomationsByAccountID(ctx, "acc-1")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected the security pair both times, got %d then %d",
			len(first), len(second))
	}
	if first[0].ID != second[0].ID || first[1].ID != second[1].ID {
		t.Fatal("second call created new automations")
	}
	if store.count() != 2 {
		t.Fatalf("store has %d records, want 2", store.count())
	}

	names := map[string]int{}
	for _, a := range first {
		if a.Type != TypeSecurity || !a.SourceSystem {
			t.Fatalf("provisioned automation %+v is not a system security rule", a)
		}
		if a.Editable.Name || a.Editable.Conditions || a.Editable.Delete {
			t.Fatalf("provisioned automation %+v is editable", a)
		}
		if len(a.Conditions) != 1 || a.Conditions[0].Type != "armed" {
			t.Fatalf("conditions = %+v", a.Conditions)
		}
		names[a.Name] = a.Conditions[0].Mode
	}
	if names["Armed Stay"] != ArmedStay || names["Armed Away"] != ArmedAway {
		t.Fatalf("provisioned pair = %v", names)
	}
}

func TestProvisioningScopedPerAccount(t *testing.T) {
	store := newMemoryStore()
	m := NewManager(store, nil, nil, nil)
	ctx := context.Background()

	if _, err := m.GetAutomationsByAccountID(ctx, "acc-1"); err != nil {
		t.Fatalf("acc-1: %v", err)
	}
	if _, err := m.GetAutomationsByAccountID(ctx, "acc-2"); err != nil {
		t.Fatalf("acc-2: %v", err)
	}
	if store.count() != 4 {
		t.Fatalf("expected 2 pairs, store has %d", store.count())
	}
}

func TestDeleteSecurityAutomationAlwaysFails(t *testing.T) {
	store := newMemoryStore()
	m := NewManager(store, nil, nil, nil)
	ctx := context.Background()

	automations, err := m.GetAutomationsByAccountID(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetAutomationsByAccountID: %v", err)
	}

	// Even the owner cannot delete a security automation.
	err = m.DeleteAutomation(ctx, automations[0].ID, "acc-1")
	if !errors.Is(err, ErrSecurityProtected) {
		t.Fatalf("expected ErrSecurityProtected, got %v", err)
	}
	if store.count() != 2 {
		t.Fatalf("security automation deleted from store")
	}
}

func TestSecurityAutomationSurvivesRetypeAttempt(t *testing.T) {
	store := newMemoryStore()
	m := NewManager(store, nil, nil, nil)
	ctx := context.Background()

	automations, err := m.GetAutomationsByAccountID(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetAutomationsByAccountID: %v", err)
	}
	target := automations[0]

	// Retyping would slip the automation past the delete protection.
	candidate := target
	candidate.Type = "scene"
	if _, err := m.SaveAutomation(ctx, candidate, "acc-1"); !errors.Is(err, ErrNotEditable) {
		t.Fatalf("expected ErrNotEditable, got %v", err)
	}

	kept, err := m.GetAutomationByID(target.ID, "acc-1")
	if err != nil {
		t.Fatalf("GetAutomationByID: %v", err)
	}
	if kept.Type != TypeSecurity {
		t.Fatalf("retype went through: %+v", kept)
	}
	if err := m.DeleteAutomation(ctx, target.ID, "acc-1"); !errors.Is(err, ErrSecurityProtected) {
		t.Fatalf("expected ErrSecurityProtected, got %v", err)
	}
}

func TestSaveHonoursStoredEditLocks(t *testing.T) {
	store := newMemoryStore()
	m := NewManager(store, nil, nil, nil)
	ctx := context.Background()

	automations, err := m.GetAutomationsByAccountID(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetAutomationsByAccountID: %v", err)
	}
	target := automations[0]

	// Locked name and conditions keep their stored values; editability
	// and system provenance come from the store, not the request.
	candidate := target
	candidate.Name = "Renamed"
	candidate.Enabled = false
	candidate.Conditions = []Condition{{Type: "time"}}
	candidate.Editable = UserEditable{Name: true, Conditions: true, Delete: true}
	candidate.SourceSystem = false

	saved, err := m.SaveAutomation(ctx, candidate, "acc-1")
	if err != nil {
		t.Fatalf("SaveAutomation: %v", err)
	}
	if saved.Name != target.Name {
		t.Fatalf("locked name changed to %q", saved.Name)
	}
	if len(saved.Conditions) != 1 || saved.Conditions[0].Type != "armed" {
		t.Fatalf("locked conditions changed: %+v", saved.Conditions)
	}
	if saved.Editable.Name || saved.Editable.Conditions || saved.Editable.Delete {
		t.Fatalf("edit locks lifted: %+v", saved.Editable)
	}
	if !saved.SourceSystem {
		t.Fatal("system provenance dropped")
	}
	if saved.Enabled {
		t.Fatal("enabled toggle should still apply")
	}
}

func TestDeleteAutomation(t *testing.T) {
	store := newMemoryStore()
	automator := &recordingAutomator{}
	m := NewManager(store, automator, nil, nil)
	ctx := context.Background()

	saved, err := m.SaveAutomation(ctx, Automation{Name: "Temp", Type: "scene"}, "acc-1")
	if err != nil {
		t.Fatalf("SaveAutomation: %v", err)
	}

	// Another account cannot see or delete it.
	if err := m.DeleteAutomation(ctx, saved.ID, "acc-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign account, got %v", err)
	}

	if err := m.DeleteAutomation(ctx, saved.ID, "acc-1"); err != nil {
		t.Fatalf("DeleteAutomation: %v", err)
	}
	if _, err := m.GetAutomationByID(saved.ID, "acc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted automation still visible: %v", err)
	}
	if len(automator.tornDown) == 0 || automator.tornDown[len(automator.tornDown)-1] != saved.ID {
		t.Fatalf("tearDown calls = %v", automator.tornDown)
	}
}

func TestNotificationsCarryClientSerializedList(t *testing.T) {
	store := newMemoryStore()
	notifier := &recordingNotifier{}
	m := NewManager(store, nil, notifier, nil)

	saved, err := m.SaveAutomation(context.Background(), Automation{
		Name: "Evening", Type: "scene", Enabled: true,
	}, "acc-1")
	if err != nil {
		t.Fatalf("SaveAutomation: %v", err)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.events))
	}
	if notifier.events[0] != "automations-update/account/acc-1" {
		t.Fatalf("event = %q", notifier.events[0])
	}

	list := notifier.payloads[0]["automations"].([]map[string]any)
	if len(list) != 1 || list[0]["id"] != saved.ID {
		t.Fatalf("payload = %#v", notifier.payloads[0])
	}
	if _, leaked := list[0]["account_id"]; leaked {
		t.Fatal("account id leaked into client payload")
	}
	if _, leaked := list[0]["source_system"]; leaked {
		t.Fatal("provenance leaked into client payload")
	}
}

func TestGetAutomationByIDOwnershipCheck(t *testing.T) {
	store := newMemoryStore()
	m := NewManager(store, nil, nil, nil)

	saved, err := m.SaveAutomation(context.Background(), Automation{Name: "Mine"}, "acc-1")
	if err != nil {
		t.Fatalf("SaveAutomation: %v", err)
	}

	if _, err := m.GetAutomationByID(saved.ID, "acc-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign account, got %v", err)
	}
	if _, err := m.GetAutomationByID(saved.ID, "acc-1"); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
}

func TestLoadRestoresRegistry(t *testing.T) {
	store := newMemoryStore()
	seed := NewManager(store, nil, nil, nil)
	ctx := context.Background()
	if _, err := seed.GetAutomationsByAccountID(ctx, "acc-1"); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	restored := NewManager(store, nil, nil, nil)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	automations, err := restored.GetAutomationsByAccountID(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetAutomationsByAccountID: %v", err)
	}
	if len(automations) != 2 {
		t.Fatalf("restored %d automations, want 2", len(automations))
	}
	if store.count() != 2 {
		t.Fatalf("restore re-provisioned: store has %d", store.count())
	}
}
