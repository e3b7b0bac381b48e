package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/open-automation/relay-core/internal/infrastructure/database"
	"github.com/open-automation/relay-core/internal/settings"

	_ "github.com/open-automation/relay-core/migrations"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return NewRepository(db)
}

func testRecord(id string) Record {
	return Record{
		ID:    id,
		Type:  "standard",
		Token: "tok-" + id,
		Info:  Info{Manufacturer: "Acme", Firmware: "1.0.0"},
		DriverData: map[string]any{
			"bus": "zigbee",
		},
		Services: []map[string]any{
			{"id": "svc-1", "type": "light", "settings": map[string]any{"name": "Porch"}},
		},
		Settings: map[string]any{"name": "Porch light"},
		SettingsDefinitions: settings.Definitions{
			"sensitivity": {Type: "percentage", Label: "Sensitivity"},
		},
	}
}

func TestSaveAndGetDevice(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	if err := repo.SaveDevice(ctx, testRecord("d1")); err != nil {
		t.Fatalf("SaveDevice: %v", err)
	}

	got, err := repo.GetDeviceByID(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDeviceByID: %v", err)
	}
	if got.Token != "tok-d1" || got.Type != "standard" {
		t.Fatalf("record = %+v", got)
	}
	if got.Info.Manufacturer != "Acme" {
		t.Fatalf("info = %+v", got.Info)
	}
	if got.DriverData["bus"] != "zigbee" {
		t.Fatalf("driver data = %#v", got.DriverData)
	}
	if len(got.Services) != 1 || got.Services[0]["type"] != "light" {
		t.Fatalf("services = %#v", got.Services)
	}
	if got.SettingsDefinitions["sensitivity"].Type != "percentage" {
		t.Fatalf("definitions = %#v", got.SettingsDefinitions)
	}
}

func TestSaveDeviceUpserts(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	record := testRecord("d1")
	if err := repo.SaveDevice(ctx, record); err != nil {
		t.Fatalf("SaveDevice: %v", err)
	}

	record.Token = "rotated"
	record.RoomID = "hall"
	if err := repo.SaveDevice(ctx, record); err != nil {
		t.Fatalf("SaveDevice update: %v", err)
	}

	got, err := repo.GetDeviceByID(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDeviceByID: %v", err)
	}
	if got.Token != "rotated" || got.RoomID != "hall" {
		t.Fatalf("record not updated: %+v", got)
	}

	all, err := repo.GetDevices(ctx)
	if err != nil {
		t.Fatalf("GetDevices: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("upsert created %d rows", len(all))
	}
}

func TestGetDeviceByIDNotFound(t *testing.T) {
	repo := openTestRepository(t)

	_, err := repo.GetDeviceByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteDevice(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	if err := repo.SaveDevice(ctx, testRecord("d1")); err != nil {
		t.Fatalf("SaveDevice: %v", err)
	}
	if err := repo.DeleteDevice(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDevice: %v", err)
	}
	if err := repo.DeleteDevice(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestGetDevicesByAccountID(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	// The account must exist for the devices foreign key.
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, password_hash, registration_date, created_at, updated_at)
		VALUES ('acc-1', 'frida', 'hash', '2026-01-01', '2026-01-01', '2026-01-01')`)
	if err != nil {
		t.Fatalf("inserting account: %v", err)
	}

	owned := testRecord("d1")
	owned.AccountID = "acc-1"
	unclaimed := testRecord("d2")

	if err := repo.SaveDevice(ctx, owned); err != nil {
		t.Fatalf("SaveDevice owned: %v", err)
	}
	if err := repo.SaveDevice(ctx, unclaimed); err != nil {
		t.Fatalf("SaveDevice unclaimed: %v", err)
	}

	records, err := repo.GetDevicesByAccountID(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetDevicesByAccountID: %v", err)
	}
	if len(records) != 1 || records[0].ID != "d1" {
		t.Fatalf("records = %+v", records)
	}
}
