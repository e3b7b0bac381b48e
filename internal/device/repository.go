package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/open-automation/relay-core/internal/infrastructure/database"
	"github.com/open-automation/relay-core/internal/settings"
)

// Repository persists device records in SQLite. Capability-specific
// documents (info, services, settings) are stored as JSON columns.
type Repository struct {
	db *database.DB
}

// NewRepository creates a device repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// SaveDevice inserts or updates one device record.
func (r *Repository) SaveDevice(ctx context.Context, record Record) error {
	info, err := json.Marshal(record.Info)
	if err != nil {
		return fmt.Errorf("encoding device info: %w", err)
	}
	driverData, err := marshalOr(record.DriverData, "{}")
	if err != nil {
		return fmt.Errorf("encoding driver data: %w", err)
	}
	services, err := marshalOr(record.Services, "[]")
	if err != nil {
		return fmt.Errorf("encoding services: %w", err)
	}
	storedSettings, err := marshalOr(record.Settings, "{}")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	definitions, err := marshalOr(record.SettingsDefinitions, "{}")
	if err != nil {
		return fmt.Errorf("encoding settings definitions: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (
			id, account_id, type, token, room_id, gateway_id,
			info, driver_data, services, settings, settings_definitions,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			type = excluded.type,
			token = excluded.token,
			room_id = excluded.room_id,
			gateway_id = excluded.gateway_id,
			info = excluded.info,
			driver_data = excluded.driver_data,
			services = excluded.services,
			settings = excluded.settings,
			settings_definitions = excluded.settings_definitions,
			updated_at = excluded.updated_at`,
		record.ID, nullable(record.AccountID), record.Type, record.Token,
		nullable(record.RoomID), nullable(record.GatewayID),
		string(info), driverData, services, storedSettings, definitions,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("saving device %s: %w", record.ID, err)
	}
	return nil
}

// GetDevices returns every stored device record.
func (r *Repository) GetDevices(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, selectDevices+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetDeviceByID returns one stored device record.
func (r *Repository) GetDeviceByID(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, selectDevices+` WHERE id = ?`, id)
	record, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	return record, err
}

// GetDevicesByAccountID returns the records owned by one account.
func (r *Repository) GetDevicesByAccountID(ctx context.Context, accountID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		selectDevices+` WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying devices for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteDevice removes one device record.
func (r *Repository) DeleteDevice(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	return nil
}

const selectDevices = `
	SELECT id, account_id, type, token, room_id, gateway_id,
	       info, driver_data, services, settings, settings_definitions
	FROM devices`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (Record, error) {
	var (
		record                        Record
		accountID, roomID, gatewayID  sql.NullString
		info, driverData, services    string
		storedSettings, definitionRaw string
	)
	err := row.Scan(
		&record.ID, &accountID, &record.Type, &record.Token,
		&roomID, &gatewayID,
		&info, &driverData, &services, &storedSettings, &definitionRaw,
	)
	if err != nil {
		return Record{}, err
	}

	record.AccountID = accountID.String
	record.RoomID = roomID.String
	record.GatewayID = gatewayID.String

	if err := json.Unmarshal([]byte(info), &record.Info); err != nil {
		return Record{}, fmt.Errorf("decoding device %s info: %w", record.ID, err)
	}
	if err := json.Unmarshal([]byte(driverData), &record.DriverData); err != nil {
		return Record{}, fmt.Errorf("decoding device %s driver data: %w", record.ID, err)
	}
	if err := json.Unmarshal([]byte(services), &record.Services); err != nil {
		return Record{}, fmt.Errorf("decoding device %s services: %w", record.ID, err)
	}
	if err := json.Unmarshal([]byte(storedSettings), &record.Settings); err != nil {
		return Record{}, fmt.Errorf("decoding device %s settings: %w", record.ID, err)
	}
	record.SettingsDefinitions = settings.Definitions{}
	if err := json.Unmarshal([]byte(definitionRaw), &record.SettingsDefinitions); err != nil {
		return Record{}, fmt.Errorf("decoding device %s settings definitions: %w", record.ID, err)
	}
	return record, nil
}

func marshalOr(value any, empty string) (string, error) {
	if value == nil {
		return empty, nil
	}
	body, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
