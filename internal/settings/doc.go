// Package settings provides typed, constrained configuration schemas for
// devices and their services.
//
// A Model merges definition layers (capability defaults, then
// driver-declared definitions, then per-instance stored values) and
// validates every write against the merged schema before mutating
// anything. Validation failures are batched per field; a Set call either
// applies every submitted value or none of them.
//
// # Definitions
//
// Each setting is described by a Definition carrying a type (string,
// boolean, decimal, integer, percentage, color), a label used in error
// messages, an optional default, and a validation map:
//
//	settings.Definition{
//	    Type:  "percentage",
//	    Label: "Sensitivity",
//	    DefaultValue: 0.5,
//	    Validation: map[string]any{"is_required": true},
//	}
//
// Visibility flags on a definition control which serialised view a stored
// value may appear in: ExcludeFromClient keeps server-authoritative values
// out of client payloads, ExcludeFromDB keeps ephemeral values out of
// persistence.
package settings
