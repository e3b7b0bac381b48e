package device

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/open-automation/relay-core/internal/driver"
	"github.com/open-automation/relay-core/internal/service"
	"github.com/open-automation/relay-core/internal/settings"
)

// handleDriverEvent is the canonical event sink registered with the
// driver. Errors never propagate past this boundary; failed events are
// logged and the stream continues.
func (d *Device) handleDriverEvent(event string, payload map[string]any) {
	if err := d.handleEvent(event, payload); err != nil {
		d.logger.Warn("driver event failed", "event", event, "error", err)
	}
}

func (d *Device) handleEvent(event string, payload map[string]any) error {
	switch event {
	case driver.EventConnect:
		d.setConnected(true)
		return nil

	case driver.EventDisconnect:
		d.setConnected(false)
		return nil

	case driver.EventLoad:
		return d.handleLoad(payload)

	case driver.EventServiceLoad:
		return d.handleServiceLoad(payload)

	case driver.EventDriverData:
		d.mu.Lock()
		for k, v := range payload {
			d.driverData[k] = v
		}
		d.mu.Unlock()
		d.saveIfSaveable()
		return nil

	case driver.EventToken:
		// Token state only moves through SetToken's exchange.
		return fmt.Errorf("%w: unsolicited token event dropped", ErrTokenViaEmit)

	default:
		return d.handleServiceState(event, payload)
	}
}

// setConnected drives the device connection state and the connectivity
// metric.
func (d *Device) setConnected(connected bool) {
	d.state.Set("connected", connected)
	if d.telemetry != nil {
		d.telemetry.WriteConnectivity(d.id, connected)
	}
}

// handleLoad applies a device's one-shot self-description: its capability
// list, driver-declared settings definitions and info block. Everything
// that can apply does; per-service failures aggregate into one
// newline-joined error. The update flushes immediately rather than
// debouncing, since load is reconciliation rather than telemetry.
func (d *Device) handleLoad(payload map[string]any) error {
	var errs []string

	if raw, ok := payload["services"]; ok {
		descriptors, err := decodeDescriptors(raw)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			d.services.UpdateServices(descriptors, func(descriptor service.Descriptor, err error) {
				errs = append(errs, fmt.Sprintf("service %s: %v", descriptor.Type, err))
			})
		}
	}

	if raw, ok := payload["settings_definitions"]; ok {
		defs, err := decodeDefinitions(raw)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			d.settings.SetDefinitions(defs)
		}
	}

	if raw, ok := payload["info"]; ok {
		if err := d.mergeInfo(raw); err != nil {
			errs = append(errs, err.Error())
		}
	}

	d.debounce.Flush()

	if len(errs) > 0 {
		return fmt.Errorf("device %s: load: %s", d.id, strings.Join(errs, "\n"))
	}
	return nil
}

// handleServiceLoad hot-adds one service reported after the initial load.
func (d *Device) handleServiceLoad(payload map[string]any) error {
	descriptors, err := decodeDescriptors([]any{payload["service"]})
	if err != nil || len(descriptors) == 0 {
		return fmt.Errorf("device %s: service/load: %v", d.id, err)
	}
	isDynamic, _ := payload["is_dynamic"].(bool)

	if _, err := d.services.AddService(descriptors[0], isDynamic); err != nil {
		return fmt.Errorf("device %s: service/load: %w", d.id, err)
	}

	// Clients learn about the new capability immediately; structural
	// changes do not wait out the debounce window.
	d.debounce.Flush()
	return nil
}

// handleServiceState routes a capability state event to its service. The
// payload names the target by service_id, or the event name carries the
// capability type as "<type>/state".
func (d *Device) handleServiceState(event string, payload map[string]any) error {
	values, _ := payload["state"].(map[string]any)
	if values == nil {
		values = payload
	}

	if id, ok := payload["service_id"].(string); ok && id != "" {
		target, found := d.services.GetServiceByID(id)
		if !found {
			return fmt.Errorf("device %s: state for unknown service %s", d.id, id)
		}
		stripped := stripRoutingKeys(values)
		target.UpdateState(stripped)
		d.recordStateMetrics(target.ID(), stripped)
		return nil
	}

	if serviceType, ok := strings.CutSuffix(event, "/state"); ok {
		target, found := d.services.GetServiceByType(serviceType)
		if !found {
			return fmt.Errorf("device %s: state for absent capability %s", d.id, serviceType)
		}
		stripped := stripRoutingKeys(values)
		target.UpdateState(stripped)
		d.recordStateMetrics(target.ID(), stripped)
		return nil
	}

	return fmt.Errorf("device %s: %w: %s", d.id, ErrUnknownEvent, event)
}

// recordStateMetrics forwards numeric and boolean state fields to the
// time-series sink.
func (d *Device) recordStateMetrics(serviceID string, values map[string]any) {
	if d.telemetry == nil {
		return
	}
	for field, raw := range values {
		switch v := raw.(type) {
		case float64:
			d.telemetry.WriteStateMetric(d.id, serviceID, field, v)
		case int:
			d.telemetry.WriteStateMetric(d.id, serviceID, field, float64(v))
		case bool:
			val := 0.0
			if v {
				val = 1.0
			}
			d.telemetry.WriteStateMetric(d.id, serviceID, field, val)
		}
	}
}

func stripRoutingKeys(values map[string]any) map[string]any {
	if _, ok := values["service_id"]; !ok {
		return values
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		if k == "service_id" {
			continue
		}
		out[k] = v
	}
	return out
}

// decodeDescriptors converts the raw JSON shape of a service list into
// typed descriptors.
func decodeDescriptors(raw any) ([]service.Descriptor, error) {
	body, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid service list: %w", err)
	}
	var descriptors []service.Descriptor
	if err := json.Unmarshal(body, &descriptors); err != nil {
		return nil, fmt.Errorf("invalid service list: %w", err)
	}
	return descriptors, nil
}

// decodeDefinitions converts the raw JSON shape of a definitions map.
func decodeDefinitions(raw any) (settings.Definitions, error) {
	body, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid settings definitions: %w", err)
	}
	var defs settings.Definitions
	if err := json.Unmarshal(body, &defs); err != nil {
		return nil, fmt.Errorf("invalid settings definitions: %w", err)
	}
	return defs, nil
}

func (d *Device) mergeInfo(raw any) error {
	body, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("invalid info block: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := json.Unmarshal(body, &d.info); err != nil {
		return fmt.Errorf("invalid info block: %w", err)
	}
	return nil
}
