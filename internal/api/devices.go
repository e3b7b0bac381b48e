package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/open-automation/relay-core/internal/device"
	"github.com/open-automation/relay-core/internal/settings"
)

// handleListDevices returns the caller's devices in client-safe form.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.GetDevicesByAccountID(accountID(r))

	views := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		views = append(views, d.ClientSerialize())
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views})
}

// handleCreateDevice registers a device submitted by the caller. The
// device is not persisted until its token exchange completes.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var record device.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	record.AccountID = accountID(r)
	// A submitted token is never trusted; tokens are established through
	// the exchange endpoint after the device confirms.
	record.Token = ""

	d, err := s.registry.CreateDevice(r.Context(), record)
	switch {
	case errors.Is(err, device.ErrAlreadyRegistered):
		writeConflict(w, "device already registered")
		return
	case err != nil:
		s.logger.Error("device creation failed", "error", err)
		writeInternalError(w, "failed to create device")
		return
	}

	writeJSON(w, http.StatusCreated, d.ClientSerialize())
}

// ownedDevice resolves the device and checks account ownership. A device
// owned by another account reads as not found so existence never leaks.
func (s *Server) ownedDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	d, err := s.registry.GetDeviceByID(chi.URLParam(r, "id"))
	if err != nil || d.AccountID() != accountID(r) {
		writeNotFound(w, "device not found")
		return nil, false
	}
	return d, true
}

// writePersistError maps a failed device field update to a response.
// Unsaveable devices revert the change, so the caller learns the write
// did not stick rather than receiving a silent success.
func (s *Server) writePersistError(w http.ResponseWriter, d *device.Device, field string, err error) {
	if errors.Is(err, device.ErrNotSaveable) {
		writeConflict(w, "device has not completed token exchange")
		return
	}
	s.logger.Error("device update failed", "device_id", d.ID(), "field", field, "error", err)
	writeInternalError(w, "failed to update "+field)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.ownedDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d.ClientSerialize())
}

// updateDeviceRequest carries the mutable device fields. Pointers
// distinguish an absent field from an explicit empty value.
type updateDeviceRequest struct {
	RoomID   *string        `json:"room_id"`
	Type     *string        `json:"type"`
	Settings map[string]any `json:"settings"`
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.ownedDevice(w, r)
	if !ok {
		return
	}

	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.RoomID != nil {
		if err := d.SetRoom(r.Context(), *req.RoomID); err != nil {
			s.writePersistError(w, d, "room", err)
			return
		}
	}
	if req.Type != nil {
		if err := d.SetType(r.Context(), *req.Type); err != nil {
			s.writePersistError(w, d, "type", err)
			return
		}
	}
	if req.Settings != nil {
		if err := d.SetSettings(req.Settings); err != nil {
			var fields *settings.ValidationErrors
			if errors.As(err, &fields) {
				writeValidationError(w, fields.Fields())
				return
			}
			s.logger.Error("settings update failed", "device_id", d.ID(), "error", err)
			writeInternalError(w, "failed to update settings")
			return
		}
	}

	writeJSON(w, http.StatusOK, d.ClientSerialize())
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.ownedDevice(w, r)
	if !ok {
		return
	}

	if err := s.registry.RemoveDevice(r.Context(), d.ID()); err != nil {
		s.logger.Error("device removal failed", "device_id", d.ID(), "error", err)
		writeInternalError(w, "failed to remove device")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": d.ID()})
}

type rotateTokenRequest struct {
	Token string `json:"token"`
}

// handleRotateToken runs the three-step token exchange for a device.
func (s *Server) handleRotateToken(w http.ResponseWriter, r *http.Request) {
	d, ok := s.ownedDevice(w, r)
	if !ok {
		return
	}

	var req rotateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := d.SetToken(r.Context(), req.Token)
	switch {
	case errors.Is(err, device.ErrInvalidToken):
		writeBadRequest(w, "token must not be empty")
		return
	case errors.Is(err, device.ErrNotConnected):
		writeConflict(w, "device is not connected")
		return
	case err != nil:
		s.logger.Error("token exchange failed", "device_id", d.ID(), "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "token exchange failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rotated": true})
}
