package service

import "github.com/open-automation/relay-core/internal/settings"

// Capability describes one service type: the shape of its live state
// (which also types action inputs) and its default settings schema.
// Drivers may layer further settings definitions on top per instance.
type Capability struct {
	Type                string
	StateDefinitions    settings.Definitions
	SettingsDefinitions settings.Definitions
}

// nameDefinition is shared by every capability's settings schema.
var nameDefinition = settings.Definition{
	Type:  "string",
	Label: "Name",
	Validation: map[string]any{
		"max_length": 24,
	},
}

// capabilities is the closed set of service types.
var capabilities = map[string]Capability{
	"light": {
		Type: "light",
		StateDefinitions: settings.Definitions{
			"power":      {Type: "boolean", Label: "Power"},
			"brightness": {Type: "percentage", Label: "Brightness"},
			"color":      {Type: "color", Label: "Color"},
		},
		SettingsDefinitions: settings.Definitions{
			"name": nameDefinition,
		},
	},
	"siren": {
		Type: "siren",
		StateDefinitions: settings.Definitions{
			"on": {Type: "boolean", Label: "Sounding"},
		},
		SettingsDefinitions: settings.Definitions{
			"name": nameDefinition,
			"auto_off_seconds": {
				Type:         "integer",
				Label:        "Auto-off delay",
				DefaultValue: 120,
				Validation:   map[string]any{"min": 0, "max": 600},
			},
		},
	},
	"lock": {
		Type: "lock",
		StateDefinitions: settings.Definitions{
			"locked": {Type: "boolean", Label: "Locked"},
		},
		SettingsDefinitions: settings.Definitions{
			"name": nameDefinition,
		},
	},
	"thermostat": {
		Type: "thermostat",
		StateDefinitions: settings.Definitions{
			"power": {Type: "boolean", Label: "Power"},
			"mode": {
				Type:       "string",
				Label:      "Mode",
				Validation: map[string]any{"one-of": []any{"heat", "cool", "auto", "off"}},
			},
			"target_temperature": {
				Type:       "decimal",
				Label:      "Target temperature",
				Validation: map[string]any{"min": 5, "max": 35},
			},
			"current_temperature": {Type: "decimal", Label: "Current temperature"},
		},
		SettingsDefinitions: settings.Definitions{
			"name": nameDefinition,
			"unit": {
				Type:         "string",
				Label:        "Unit",
				DefaultValue: "c",
				Validation:   map[string]any{"one-of": []any{"c", "f"}},
			},
		},
	},
	"media": {
		Type: "media",
		StateDefinitions: settings.Definitions{
			"playing": {Type: "boolean", Label: "Playing"},
			"volume":  {Type: "percentage", Label: "Volume"},
		},
		SettingsDefinitions: settings.Definitions{
			"name": nameDefinition,
		},
	},
	"button": {
		Type: "button",
		StateDefinitions: settings.Definitions{
			"pressed": {Type: "boolean", Label: "Pressed"},
		},
		SettingsDefinitions: settings.Definitions{
			"name": nameDefinition,
			"sensitivity": {
				Type:         "percentage",
				Label:        "Sensitivity",
				DefaultValue: 0.5,
			},
		},
	},
	"sensor": {
		Type: "sensor",
		StateDefinitions: settings.Definitions{
			"active": {Type: "boolean", Label: "Active"},
			"value":  {Type: "decimal", Label: "Value"},
		},
		SettingsDefinitions: settings.Definitions{
			"name": nameDefinition,
		},
	},
	"gateway": {
		Type:             "gateway",
		StateDefinitions: settings.Definitions{},
		SettingsDefinitions: settings.Definitions{
			"name": nameDefinition,
		},
	},
}

// CapabilityFor returns the capability for a service type.
func CapabilityFor(serviceType string) (Capability, bool) {
	c, ok := capabilities[serviceType]
	return c, ok
}
