package device

import (
	"github.com/open-automation/relay-core/internal/service"
	"github.com/open-automation/relay-core/internal/settings"
)

// Record is the persisted shape of one device.
type Record struct {
	ID                  string               `json:"id"`
	AccountID           string               `json:"account_id,omitempty"`
	Type                string               `json:"type"`
	Token               string               `json:"token"`
	RoomID              string               `json:"room_id,omitempty"`
	GatewayID           string               `json:"gateway_id,omitempty"`
	Info                Info                 `json:"info"`
	DriverData          map[string]any       `json:"driver_data"`
	Services            []map[string]any     `json:"services"`
	Settings            map[string]any       `json:"settings"`
	SettingsDefinitions settings.Definitions `json:"settings_definitions"`
}

// Descriptors converts the record's raw service list into typed
// descriptors for construction.
func (r Record) Descriptors() ([]service.Descriptor, error) {
	if len(r.Services) == 0 {
		return nil, nil
	}
	return decodeDescriptors(r.Services)
}

// Record builds the persisted view of the device.
func (d *Device) Record() Record {
	d.mu.Lock()
	driverData := make(map[string]any, len(d.driverData))
	for k, v := range d.driverData {
		driverData[k] = v
	}
	record := Record{
		ID:        d.id,
		AccountID: d.accountID,
		Type:      d.deviceType,
		Token:     d.token,
		RoomID:    d.roomID,
		GatewayID: d.gatewayID,
		Info:      d.info,
	}
	d.mu.Unlock()

	record.DriverData = driverData
	record.Services = d.services.GetDBSerializedServices()
	record.Settings = d.settings.DBSerialize()
	record.SettingsDefinitions = d.settings.DriverDefinitions()
	return record
}

// Serialize returns the full internal view, token included.
func (d *Device) Serialize() map[string]any {
	d.mu.Lock()
	out := map[string]any{
		"id":          d.id,
		"account_id":  d.accountID,
		"type":        d.deviceType,
		"token":       d.token,
		"room_id":     d.roomID,
		"gateway_id":  d.gatewayID,
		"info":        d.info,
		"is_saveable": d.isSaveable,
	}
	d.mu.Unlock()

	out["state"] = d.state.Snapshot()
	out["services"] = d.services.GetSerializedServices()
	out["settings"] = d.settings.Serialize()
	return out
}

// ClientSerialize returns the externally shared view. The token, the
// saveable flag and the driver-opaque blob never appear here.
func (d *Device) ClientSerialize() map[string]any {
	d.mu.Lock()
	out := map[string]any{
		"id":         d.id,
		"account_id": d.accountID,
		"type":       d.deviceType,
		"room_id":    d.roomID,
		"gateway_id": d.gatewayID,
		"info":       d.info,
	}
	d.mu.Unlock()

	out["state"] = d.state.Snapshot()
	out["services"] = d.services.GetClientSerializedServices()
	out["settings"] = d.settings.Serialize()
	return out
}
