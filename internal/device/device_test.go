package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/open-automation/relay-core/internal/driver"
	"github.com/open-automation/relay-core/internal/service"
)

type sentCommand struct {
	name    string
	payload map[string]any
}

// fakeDriver implements driver.Driver in memory.
type fakeDriver struct {
	mu       sync.Mutex
	handler  driver.EventHandler
	commands []sentCommand
	failOn   map[string]error

	// tokenBudget, when non-negative, is how many token commands succeed
	// before the rest fail. Used to fail the compensating command only.
	tokenBudget int
	tokenSent   int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{failOn: make(map[string]error), tokenBudget: -1}
}

func (f *fakeDriver) Connect(ctx context.Context) error { return nil }
func (f *fakeDriver) Disconnect() error                 { return nil }
func (f *fakeDriver) Close() error                      { return nil }

func (f *fakeDriver) SendCommand(ctx context.Context, name string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOn[name]; ok {
		return err
	}
	if name == driver.CommandToken && f.tokenBudget >= 0 {
		f.tokenSent++
		if f.tokenSent > f.tokenBudget {
			return errors.New("device unreachable")
		}
	}
	f.commands = append(f.commands, sentCommand{name: name, payload: payload})
	return nil
}

func (f *fakeDriver) SetHandler(handler driver.EventHandler) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
}

func (f *fakeDriver) emit(event string, payload map[string]any) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	handler(event, payload)
}

func (f *fakeDriver) commandNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.commands))
	for i, c := range f.commands {
		names[i] = c.name
	}
	return names
}

// fakeSaver records saved records and can be told to fail.
type fakeSaver struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (f *fakeSaver) SaveDevice(ctx context.Context, record Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeSaver) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSaver) last() (Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) == 0 {
		return Record{}, false
	}
	return f.records[len(f.records)-1], true
}

// notifications collects debounced update callbacks.
type notifications struct {
	mu    sync.Mutex
	views []map[string]any
}

func (n *notifications) record(view map[string]any) {
	n.mu.Lock()
	n.views = append(n.views, view)
	n.mu.Unlock()
}

func (n *notifications) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.views)
}

func (n *notifications) lastView() map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.views) == 0 {
		return nil
	}
	return n.views[len(n.views)-1]
}

func newTestDevice(t *testing.T, opts Options, drv *fakeDriver, saver *fakeSaver, notes *notifications) *Device {
	t.Helper()
	if opts.ID == "" {
		opts.ID = "d1"
	}
	if opts.Type == "" {
		opts.Type = "standard"
	}
	if opts.UpdateDebounce == 0 {
		opts.UpdateDebounce = 20 * time.Millisecond
	}
	deps := Deps{Driver: drv, Saver: saver}
	if notes != nil {
		deps.OnUpdated = notes.record
	}
	d, err := New(opts, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func waitFor(t *testing.T, timeout time.Duration, predicate func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if predicate() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestConnectDisconnectEvents(t *testing.T) {
	drv := newFakeDriver()
	d := newTestDevice(t, Options{}, drv, &fakeSaver{}, nil)

	if d.Connected() {
		t.Fatal("device connected before any event")
	}

	drv.emit(driver.EventConnect, nil)
	if !d.Connected() {
		t.Fatal("connect event not applied")
	}

	drv.emit(driver.EventDisconnect, nil)
	if d.Connected() {
		t.Fatal("disconnect event not applied")
	}
}

func TestDebouncedUpdatesCoalesce(t *testing.T) {
	drv := newFakeDriver()
	notes := &notifications{}
	d := newTestDevice(t, Options{
		Services: []service.Descriptor{{ID: "svc-1", Type: "light"}},
	}, drv, &fakeSaver{}, notes)

	svc, ok := d.Services().GetServiceByID("svc-1")
	if !ok {
		t.Fatal("stored service missing")
	}

	// A burst of mutations within one window.
	for i := 1; i <= 5; i++ {
		svc.UpdateState(map[string]any{"brightness": float64(i) / 10})
	}

	waitFor(t, time.Second, func() bool { return notes.count() > 0 })
	time.Sleep(60 * time.Millisecond)

	if notes.count() != 1 {
		t.Fatalf("expected exactly 1 notification for a burst, got %d", notes.count())
	}

	services := notes.lastView()["services"].([]map[string]any)
	brightness := services[0]["state"].(map[string]any)["brightness"]
	if brightness != 0.5 {
		t.Fatalf("notification carries brightness %v, want the final 0.5", brightness)
	}
}

func TestSetTokenRequiresConnection(t *testing.T) {
	drv := newFakeDriver()
	d := newTestDevice(t, Options{Token: "t0"}, drv, &fakeSaver{}, nil)

	err := d.SetToken(context.Background(), "t1")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if d.Token() != "t0" || d.IsSaveable() {
		t.Fatalf("rejected exchange mutated state: token=%q saveable=%v",
			d.Token(), d.IsSaveable())
	}
}

func TestSetTokenHappyPath(t *testing.T) {
	drv := newFakeDriver()
	saver := &fakeSaver{}
	d := newTestDevice(t, Options{Token: "t0"}, drv, saver, nil)
	drv.emit(driver.EventConnect, nil)

	if err := d.SetToken(context.Background(), "t1"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	if d.Token() != "t1" || !d.IsSaveable() {
		t.Fatalf("token=%q saveable=%v after confirmed exchange", d.Token(), d.IsSaveable())
	}

	record, ok := saver.last()
	if !ok || record.Token != "t1" {
		t.Fatalf("persisted record token = %v", record.Token)
	}

	names := drv.commandNames()
	if len(names) != 2 || names[0] != driver.CommandToken || names[1] != driver.CommandReconnect {
		t.Fatalf("commands = %v, want [token reconnect-to-relay]", names)
	}
}

func TestSetTokenDeviceRejection(t *testing.T) {
	drv := newFakeDriver()
	drv.failOn[driver.CommandToken] = driver.ErrCommandRejected
	saver := &fakeSaver{}
	d := newTestDevice(t, Options{Token: "t0"}, drv, saver, nil)
	drv.emit(driver.EventConnect, nil)

	err := d.SetToken(context.Background(), "t1")
	if !errors.Is(err, driver.ErrCommandRejected) {
		t.Fatalf("expected device rejection to surface, got %v", err)
	}
	if d.Token() != "t0" || d.IsSaveable() {
		t.Fatalf("unconfirmed exchange mutated state: token=%q saveable=%v",
			d.Token(), d.IsSaveable())
	}
	if _, saved := saver.last(); saved {
		t.Fatal("unconfirmed token reached persistence")
	}
}

func TestSetTokenPersistFailureRollsBack(t *testing.T) {
	drv := newFakeDriver()
	saver := &fakeSaver{}
	d := newTestDevice(t, Options{Token: "t0"}, drv, saver, nil)
	drv.emit(driver.EventConnect, nil)

	// First exchange succeeds and establishes t1.
	if err := d.SetToken(context.Background(), "t1"); err != nil {
		t.Fatalf("SetToken t1: %v", err)
	}

	// Second exchange: device confirms t2 but persistence fails.
	persistErr := errors.New("disk full")
	saver.setErr(persistErr)

	err := d.SetToken(context.Background(), "t2")
	if !errors.Is(err, persistErr) {
		t.Fatalf("expected persistence error to surface, got %v", err)
	}

	if d.Token() != "t1" {
		t.Fatalf("token = %q after rollback, want t1", d.Token())
	}
	if !d.IsSaveable() {
		t.Fatal("saveable flag lost on rollback")
	}

	// The compensating command carried the previous token.
	names := drv.commandNames()
	last := drv.commands[len(drv.commands)-1]
	if last.name != driver.CommandToken || last.payload["token"] != "t1" {
		t.Fatalf("compensating command = %+v (all: %v)", last, names)
	}
}

func TestSetTokenCompensationFailureKeepsLocalRollback(t *testing.T) {
	drv := newFakeDriver()
	saver := &fakeSaver{}
	d := newTestDevice(t, Options{Token: "t1", Saveable: true}, drv, saver, nil)
	drv.emit(driver.EventConnect, nil)

	// The device confirms t2 (one token command allowed), persistence
	// fails, and the compensating token command fails too.
	persistErr := errors.New("disk full")
	saver.setErr(persistErr)
	drv.mu.Lock()
	drv.tokenBudget = 1
	drv.mu.Unlock()

	err := d.SetToken(context.Background(), "t2")
	if !errors.Is(err, persistErr) {
		t.Fatalf("expected the persistence error to surface, got %v", err)
	}

	// The local rollback holds even though the device side is now
	// desynchronized.
	if d.Token() != "t1" || !d.IsSaveable() {
		t.Fatalf("local rollback incomplete: token=%q saveable=%v",
			d.Token(), d.IsSaveable())
	}
}

func TestEmitRejectsToken(t *testing.T) {
	drv := newFakeDriver()
	d := newTestDevice(t, Options{}, drv, &fakeSaver{}, nil)

	err := d.Emit(context.Background(), "token", map[string]any{"token": "t9"})
	if !errors.Is(err, ErrTokenViaEmit) {
		t.Fatalf("expected ErrTokenViaEmit, got %v", err)
	}
	if len(drv.commandNames()) != 0 {
		t.Fatal("token emit reached the driver")
	}

	if err := d.Emit(context.Background(), driver.CommandSiren, nil); err != nil {
		t.Fatalf("Emit siren: %v", err)
	}
}

func TestSetRoomRevertsOnPersistFailure(t *testing.T) {
	drv := newFakeDriver()
	saver := &fakeSaver{}
	d := newTestDevice(t, Options{RoomID: "kitchen", Saveable: true}, drv, saver, nil)

	if err := d.SetRoom(context.Background(), "hall"); err != nil {
		t.Fatalf("SetRoom: %v", err)
	}
	if record, _ := saver.last(); record.RoomID != "hall" {
		t.Fatalf("persisted room = %q", record.RoomID)
	}

	saver.setErr(errors.New("disk full"))
	if err := d.SetRoom(context.Background(), "garage"); err == nil {
		t.Fatal("expected persistence error")
	}
	if d.Record().RoomID != "hall" {
		t.Fatalf("room = %q after failed persist, want hall", d.Record().RoomID)
	}
}

func TestSaveRefusedWhileNotSaveable(t *testing.T) {
	drv := newFakeDriver()
	saver := &fakeSaver{}
	d := newTestDevice(t, Options{Token: "t0"}, drv, saver, nil)

	if err := d.Save(context.Background()); !errors.Is(err, ErrNotSaveable) {
		t.Fatalf("expected ErrNotSaveable, got %v", err)
	}
	if _, saved := saver.last(); saved {
		t.Fatal("unsaveable device persisted")
	}
}

func TestLoadEventAppliesAndAggregatesErrors(t *testing.T) {
	drv := newFakeDriver()
	notes := &notifications{}
	d := newTestDevice(t, Options{UpdateDebounce: time.Hour}, drv, &fakeSaver{}, notes)

	err := d.handleEvent(driver.EventLoad, map[string]any{
		"services": []any{
			map[string]any{"id": "svc-1", "type": "light"},
			map[string]any{"id": "svc-2", "type": "antigravity"},
			map[string]any{"id": "svc-3", "type": "lock"},
		},
		"info": map[string]any{"manufacturer": "Acme", "firmware": "2.1.0"},
	})

	// The two valid services applied despite the failure.
	if d.Services().Count() != 2 {
		t.Fatalf("expected 2 services after partial load, got %d", d.Services().Count())
	}
	if d.Record().Info.Manufacturer != "Acme" {
		t.Fatalf("info not merged: %+v", d.Record().Info)
	}

	if err == nil || !strings.Contains(err.Error(), "antigravity") {
		t.Fatalf("expected aggregate error naming the bad service, got %v", err)
	}

	// Load flushes immediately; the hour-long debounce never fires by
	// itself, so a notification proves the flush.
	if notes.count() != 1 {
		t.Fatalf("expected 1 immediate notification from load, got %d", notes.count())
	}
}

func TestLoadErrorJoinsWithNewlines(t *testing.T) {
	drv := newFakeDriver()
	d := newTestDevice(t, Options{UpdateDebounce: time.Hour}, drv, &fakeSaver{}, nil)

	err := d.handleEvent(driver.EventLoad, map[string]any{
		"services": []any{
			map[string]any{"id": "svc-1", "type": "antigravity"},
			map[string]any{"id": "svc-2", "type": "chronoport"},
		},
	})
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	if !strings.Contains(err.Error(), "\n") {
		t.Fatalf("sub-errors not newline-joined: %q", err.Error())
	}
}

func TestServiceLoadEventHotAddsService(t *testing.T) {
	drv := newFakeDriver()
	d := newTestDevice(t, Options{}, drv, &fakeSaver{}, nil)

	err := d.handleEvent(driver.EventServiceLoad, map[string]any{
		"service":    map[string]any{"id": "svc-9", "type": "sensor"},
		"is_dynamic": true,
	})
	if err != nil {
		t.Fatalf("service/load: %v", err)
	}
	if _, ok := d.Services().GetServiceByID("svc-9"); !ok {
		t.Fatal("hot-added service missing")
	}
}

func TestServiceLoadNotifiesAndPersists(t *testing.T) {
	drv := newFakeDriver()
	saver := &fakeSaver{}
	notes := &notifications{}
	d := newTestDevice(t, Options{Token: "tok", Saveable: true, UpdateDebounce: time.Hour},
		drv, saver, notes)

	err := d.handleEvent(driver.EventServiceLoad, map[string]any{
		"service": map[string]any{"id": "svc-hot", "type": "sensor"},
	})
	if err != nil {
		t.Fatalf("service/load: %v", err)
	}

	// The hot-add flushes immediately, without waiting out the window.
	if notes.count() != 1 {
		t.Fatalf("expected 1 update notification, got %d", notes.count())
	}
	record, ok := saver.last()
	if !ok {
		t.Fatal("hot-add did not persist the device")
	}
	found := false
	for _, svc := range record.Services {
		if svc["id"] == "svc-hot" {
			found = true
		}
	}
	if !found {
		t.Fatalf("persisted record lacks the new service: %+v", record.Services)
	}
}

func TestServiceStateEventRouting(t *testing.T) {
	drv := newFakeDriver()
	d := newTestDevice(t, Options{
		Services: []service.Descriptor{{ID: "svc-1", Type: "light"}},
	}, drv, &fakeSaver{}, nil)

	// By service id.
	if err := d.handleEvent("light/state", map[string]any{
		"service_id": "svc-1",
		"state":      map[string]any{"power": true},
	}); err != nil {
		t.Fatalf("state by id: %v", err)
	}

	// By capability type.
	if err := d.handleEvent("light/state", map[string]any{
		"state": map[string]any{"brightness": 0.3},
	}); err != nil {
		t.Fatalf("state by type: %v", err)
	}

	svc, _ := d.Services().GetServiceByID("svc-1")
	view := svc.ClientSerialize()["state"].(map[string]any)
	if view["power"] != true || view["brightness"] != 0.3 {
		t.Fatalf("state = %#v", view)
	}

	if err := d.handleEvent("warp/engage", nil); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

// fakeTelemetry records connectivity transitions and state metrics.
type fakeTelemetry struct {
	mu           sync.Mutex
	connectivity []bool
	metrics      map[string]float64
}

func newFakeTelemetry() *fakeTelemetry {
	return &fakeTelemetry{metrics: make(map[string]float64)}
}

func (f *fakeTelemetry) WriteConnectivity(deviceID string, connected bool) {
	f.mu.Lock()
	f.connectivity = append(f.connectivity, connected)
	f.mu.Unlock()
}

func (f *fakeTelemetry) WriteStateMetric(deviceID, serviceID, field string, value float64) {
	f.mu.Lock()
	f.metrics[serviceID+"/"+field] = value
	f.mu.Unlock()
}

func TestTelemetryRecordsConnectivityAndState(t *testing.T) {
	drv := newFakeDriver()
	sink := newFakeTelemetry()
	d, err := New(Options{
		ID:             "d1",
		Type:           "standard",
		Services:       []service.Descriptor{{ID: "svc-1", Type: "light"}},
		UpdateDebounce: time.Hour,
	}, Deps{Driver: drv, Saver: &fakeSaver{}, Telemetry: sink})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Destroy)

	if err := d.handleEvent(driver.EventConnect, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := d.handleEvent("light/state", map[string]any{
		"service_id": "svc-1",
		"state":      map[string]any{"brightness": 0.4, "power": true},
	}); err != nil {
		t.Fatalf("state: %v", err)
	}
	if err := d.handleEvent(driver.EventDisconnect, nil); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.connectivity) != 2 || !sink.connectivity[0] || sink.connectivity[1] {
		t.Fatalf("connectivity = %v", sink.connectivity)
	}
	if sink.metrics["svc-1/brightness"] != 0.4 {
		t.Fatalf("brightness metric = %v", sink.metrics)
	}
	if sink.metrics["svc-1/power"] != 1.0 {
		t.Fatalf("power metric = %v", sink.metrics)
	}
}

func TestDriverDataEventStoresBlob(t *testing.T) {
	drv := newFakeDriver()
	d := newTestDevice(t, Options{Saveable: true, Token: "t1"}, drv, &fakeSaver{}, nil)

	if err := d.handleEvent(driver.EventDriverData, map[string]any{"bus": "zigbee"}); err != nil {
		t.Fatalf("driver-data: %v", err)
	}
	if d.Record().DriverData["bus"] != "zigbee" {
		t.Fatalf("driver data = %#v", d.Record().DriverData)
	}
}

func TestVerifyToken(t *testing.T) {
	drv := newFakeDriver()
	d := newTestDevice(t, Options{Token: "t1"}, drv, &fakeSaver{}, nil)

	if !d.VerifyToken("t1") {
		t.Fatal("valid token rejected")
	}
	if d.VerifyToken("t2") {
		t.Fatal("wrong token accepted")
	}

	empty := newTestDevice(t, Options{ID: "d2"}, drv, &fakeSaver{}, nil)
	if empty.VerifyToken("") {
		t.Fatal("empty token matched empty token")
	}
}

func TestClientSerializeHidesToken(t *testing.T) {
	drv := newFakeDriver()
	d := newTestDevice(t, Options{
		Token:      "secret",
		DriverData: map[string]any{"pairing": "blob"},
	}, drv, &fakeSaver{}, nil)

	view := d.ClientSerialize()
	if _, ok := view["token"]; ok {
		t.Fatal("token leaked into client view")
	}
	if _, ok := view["driver_data"]; ok {
		t.Fatal("driver data leaked into client view")
	}
	if _, ok := view["is_saveable"]; ok {
		t.Fatal("saveable flag leaked into client view")
	}
}
